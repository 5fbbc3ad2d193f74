// Package engine wires the equalizer, noise gate, spectral denoiser and
// safety limiter into one real-time processing chain.
//
// An Engine is an explicit handle: hosts may create as many as they need.
// Its methods split into two sides. The audio side (Process, ProcessStereo,
// ProcessInterleaved32) must be driven by a single goroutine and never
// blocks or allocates. The control side (setters, Report, Stats, Poll,
// Summary) may be called from any goroutine. Gate, denoiser and limiter
// changes are staged by the control side and picked up by the audio side at
// the next block boundary; equalizer changes go through the equalizer's own
// lock-free update protocol.
//
//	eng, err := engine.New(engine.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	eng.ProcessInterleaved32(deviceBuffer)
package engine
