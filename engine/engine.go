package engine

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath/cpu"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-rtfx/dsp/buffer"
	"github.com/cwbudde/algo-rtfx/dsp/core"
	"github.com/cwbudde/algo-rtfx/dsp/denoise"
	"github.com/cwbudde/algo-rtfx/dsp/effects/dynamics"
	"github.com/cwbudde/algo-rtfx/dsp/equalizer"
	"github.com/cwbudde/algo-rtfx/dsp/rt"
)

// scratchAlign is the byte alignment of the per-channel scratch buffers.
const scratchAlign = 64

// Engine runs EQ -> gate -> denoiser -> limiter on a mono or stereo stream.
type Engine struct {
	log *logrus.Logger

	// control side
	mu       sync.Mutex
	cfg      Config
	lastPoll Stats

	eq       *equalizer.Equalizer
	gate     *dynamics.NoiseGate
	denoiser *denoise.Denoiser
	limiter  *dynamics.SafetyLimiter

	// Staged changes, taken by the audio side at block boundaries.
	pendingGate        atomic.Pointer[dynamics.NoiseGateConfig]
	pendingLimiter     atomic.Pointer[dynamics.LimiterConfig]
	pendingDenoiser    atomic.Pointer[denoise.Denoiser]
	pendingDenoiserCfg atomic.Pointer[denoise.Config]
	resetPending       atomic.Bool

	arena    *rt.Arena
	channels int
	maxBlock int

	reportMu sync.Mutex
	report   dynamics.Report

	closed   atomic.Bool
	counters counters
}

type counters struct {
	blocks         atomic.Uint64
	frames         atomic.Uint64
	nanBlocks      atomic.Uint64
	overloadBlocks atomic.Uint64
	feedbackBlocks atomic.Uint64
	clipped        atomic.Uint64
	droppedReports atomic.Uint64
}

// Stats are cumulative audio-side counters.
type Stats struct {
	Blocks uint64 `json:"blocks"`
	Frames uint64 `json:"frames"`
	// DeferredUpdates counts blocks that ran on stale equalizer
	// coefficients because a writer held the parameter lock.
	DeferredUpdates uint64 `json:"deferred_updates"`
	NaNBlocks       uint64 `json:"nan_blocks"`
	OverloadBlocks  uint64 `json:"overload_blocks"`
	FeedbackBlocks  uint64 `json:"feedback_blocks"`
	ClippedSamples  uint64 `json:"clipped_samples"`
	// DroppedReports counts limiter reports not published because a
	// reader held the report lock.
	DroppedReports uint64 `json:"dropped_reports"`
}

func (s Stats) sub(prev Stats) Stats {
	return Stats{
		Blocks:          s.Blocks - prev.Blocks,
		Frames:          s.Frames - prev.Frames,
		DeferredUpdates: s.DeferredUpdates - prev.DeferredUpdates,
		NaNBlocks:       s.NaNBlocks - prev.NaNBlocks,
		OverloadBlocks:  s.OverloadBlocks - prev.OverloadBlocks,
		FeedbackBlocks:  s.FeedbackBlocks - prev.FeedbackBlocks,
		ClippedSamples:  s.ClippedSamples - prev.ClippedSamples,
		DroppedReports:  s.DroppedReports - prev.DroppedReports,
	}
}

// New validates cfg and builds an engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger

	log.WithFields(logrus.Fields{
		"function":    "engine.New",
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
		"bands":       cfg.Bands,
	}).Info("Creating engine")

	if err := cfg.Validate(); err != nil {
		log.WithFields(logrus.Fields{
			"function": "engine.New",
			"error":    err.Error(),
		}).Error("Engine configuration rejected")

		return nil, err
	}

	cfg.Denoiser = cfg.denoiserConfig()
	sr := float64(cfg.SampleRate)

	eq, err := newEqualizer(cfg)
	if err != nil {
		return nil, err
	}

	gate, err := dynamics.NewNoiseGate(sr, denoise.MaxChannels)
	if err != nil {
		return nil, err
	}

	if err := gate.SetConfig(cfg.Gate); err != nil {
		return nil, err
	}

	den, err := denoise.New(cfg.Denoiser)
	if err != nil {
		return nil, err
	}

	lim, err := dynamics.NewSafetyLimiter(sr, denoise.MaxChannels)
	if err != nil {
		return nil, err
	}

	if err := lim.SetConfig(cfg.Limiter); err != nil {
		return nil, err
	}

	padding := scratchAlign / 8
	arena, err := rt.NewArena(cfg.Channels*(cfg.MaxBlockSize+padding) + o.arenaSlack)
	if err != nil {
		return nil, err
	}

	if o.lockMemory {
		if err := arena.Lock(); err != nil {
			log.WithFields(logrus.Fields{
				"function": "engine.New",
				"error":    err.Error(),
			}).Warn("Could not lock scratch memory, continuing unlocked")
		}
	}

	e := &Engine{
		log:      log,
		cfg:      cfg,
		eq:       eq,
		gate:     gate,
		denoiser: den,
		limiter:  lim,
		arena:    arena,
		channels: cfg.Channels,
		maxBlock: cfg.MaxBlockSize,
	}

	log.WithFields(logrus.Fields{
		"function":       "engine.New",
		"latency":        den.Latency(),
		"arena_capacity": arena.Cap(),
		"memory_locked":  arena.Locked(),
	}).Info("Engine created")

	return e, nil
}

func newEqualizer(cfg Config) (*equalizer.Equalizer, error) {
	eq, err := equalizer.New(cfg.Bands, cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	var preset *equalizer.Preset

	if cfg.Preset != "" {
		p, err := equalizer.LookupPreset(cfg.Preset)
		if err != nil {
			return nil, err
		}

		p = p.Resample(cfg.Bands)
		preset = &p
	}

	eq.Update(func(u *equalizer.Update) {
		if preset != nil {
			u.LoadPreset(*preset)
		}

		for i, b := range cfg.Equalizer {
			u.SetBand(i, b)
		}
	})

	eq.SetMasterGain(cfg.MasterGainDB)
	eq.SetBypass(cfg.EqualizerBypass)

	return eq, nil
}

// Close releases the scratch memory lock. Processing after Close passes
// audio through unchanged. Close is idempotent.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}

	var err error
	if e.arena.Locked() {
		err = e.arena.Unlock()
	}

	e.log.WithFields(logrus.Fields{
		"function": "Engine.Close",
		"blocks":   e.counters.blocks.Load(),
	}).Info("Engine closed")

	return err
}

// Process runs the chain on a mono block (channel 0). in and out may alias.
func (e *Engine) Process(in, out []float64) {
	n := min(len(in), len(out))
	if e.closed.Load() {
		copy(out[:n], in[:n])
		return
	}

	e.applyPending()

	for off := 0; off < n; off += e.maxBlock {
		end := min(off+e.maxBlock, n)
		e.runMono(in[off:end], out[off:end])
	}
}

// ProcessStereo runs the chain on two channels with independent state.
func (e *Engine) ProcessStereo(inL, inR, outL, outR []float64) {
	n := min(len(inL), len(inR), len(outL), len(outR))
	if e.closed.Load() {
		copy(outL[:n], inL[:n])
		copy(outR[:n], inR[:n])

		return
	}

	e.applyPending()

	for off := 0; off < n; off += e.maxBlock {
		end := min(off+e.maxBlock, n)
		e.runStereo(inL[off:end], inR[off:end], outL[off:end], outR[off:end])
	}
}

// ProcessInterleaved32 processes a device buffer in place. The layout is
// Config.Channels interleaved float32 samples per frame; a trailing partial
// frame is left untouched.
func (e *Engine) ProcessInterleaved32(buf []float32) {
	if e.closed.Load() {
		return
	}

	e.applyPending()

	nch := e.channels
	frames := len(buf) / nch

	m := e.arena.Mark()
	defer e.arena.Restore(m)

	var scratch, views [denoise.MaxChannels][]float64

	for ch := range nch {
		s, err := e.arena.Alloc(e.maxBlock, scratchAlign)
		if err != nil {
			return
		}

		scratch[ch] = s
	}

	for off := 0; off < frames; off += e.maxBlock {
		k := min(e.maxBlock, frames-off)
		chunk := buf[off*nch : (off+k)*nch]

		for ch := range nch {
			views[ch] = scratch[ch][:k]
		}

		buffer.DeinterleaveFloat32(views[:nch], chunk)

		if nch == 1 {
			e.runMono(views[0], views[0])
		} else {
			e.runStereo(views[0], views[1], views[0], views[1])
		}

		buffer.InterleaveFloat32(chunk, views[:nch])
	}
}

func (e *Engine) runMono(in, out []float64) {
	bad := hasNonFinite(in)

	e.eq.Process(in, out)
	e.gate.Process(out, out)
	e.denoiser.Process(out, out)
	e.limiter.Process(out, out)
	e.finishBlock(len(out), bad)
}

func (e *Engine) runStereo(inL, inR, outL, outR []float64) {
	bad := hasNonFinite(inL) || hasNonFinite(inR)

	e.eq.ProcessStereo(inL, inR, outL, outR)
	e.gate.ProcessStereo(outL, outR, outL, outR)
	e.denoiser.ProcessStereo(outL, outR, outL, outR)
	e.limiter.ProcessStereo(outL, outR, outL, outR)
	e.finishBlock(len(outL), bad)
}

func hasNonFinite(buf []float64) bool {
	for _, x := range buf {
		if !core.IsFinite(x) {
			return true
		}
	}

	return false
}

// applyPending takes staged configuration. Everything staged was validated
// by the control side, so the errors below cannot occur.
func (e *Engine) applyPending() {
	if c := e.pendingGate.Swap(nil); c != nil {
		_ = e.gate.SetConfig(*c)
	}

	if c := e.pendingLimiter.Swap(nil); c != nil {
		_ = e.limiter.SetConfig(*c)
	}

	if d := e.pendingDenoiser.Swap(nil); d != nil {
		e.denoiser = d
	}

	// A parameter change only applies to a denoiser with matching frame
	// sizes; otherwise it waits for the rebuilt denoiser.
	if c := e.pendingDenoiserCfg.Load(); c != nil && sameFraming(*c, e.denoiser.Config()) {
		if e.pendingDenoiserCfg.CompareAndSwap(c, nil) {
			_ = e.denoiser.SetConfig(*c)
		}
	}

	if e.resetPending.Swap(false) {
		e.gate.Reset()
		e.denoiser.Reset()
		e.limiter.Reset()
	}
}

func sameFraming(a, b denoise.Config) bool {
	return a.FFTSize == b.FFTSize && a.HopSize == b.HopSize
}

// finishBlock counts the block and publishes the limiter report. nonFinite
// reports whether the block entered the chain with NaN or Inf samples.
func (e *Engine) finishBlock(frames int, nonFinite bool) {
	r := e.limiter.Report()

	e.counters.blocks.Add(1)
	e.counters.frames.Add(uint64(frames))
	e.counters.clipped.Add(uint64(r.ClippedSamples))

	if nonFinite || r.HasNaN {
		e.counters.nanBlocks.Add(1)
	}

	if r.OverloadActive {
		e.counters.overloadBlocks.Add(1)
	}

	if r.FeedbackSuspected {
		e.counters.feedbackBlocks.Add(1)
	}

	if !e.reportMu.TryLock() {
		e.counters.droppedReports.Add(1)
		return
	}

	e.report = r
	e.reportMu.Unlock()
}

// Equalizer returns the engine's equalizer. Its setters are safe to call
// while the engine is processing.
func (e *Engine) Equalizer() *equalizer.Equalizer { return e.eq }

// SetPreset loads a catalog preset into the equalizer, resampled to its
// band count.
func (e *Engine) SetPreset(name string) error {
	p, err := equalizer.LookupPreset(name)
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"function": "Engine.SetPreset",
			"preset":   name,
			"error":    err.Error(),
		}).Error("Preset rejected")

		return err
	}

	if n := e.eq.BandCount(); len(p.Gains) != n {
		p = p.Resample(n)
	}

	e.eq.LoadPreset(p)

	e.mu.Lock()
	e.cfg.Preset = name
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"function": "Engine.SetPreset",
		"preset":   name,
	}).Info("Preset loaded")

	return nil
}

// SetGateConfig stages a noise gate configuration.
func (e *Engine) SetGateConfig(cfg dynamics.NoiseGateConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := cfg.Validate(float64(e.cfg.SampleRate)); err != nil {
		e.rejected("Engine.SetGateConfig", err)
		return err
	}

	e.cfg.Gate = cfg
	e.pendingGate.Store(&cfg)

	e.log.WithFields(logrus.Fields{
		"function":  "Engine.SetGateConfig",
		"threshold": cfg.ThresholdDB,
		"ratio":     cfg.Ratio,
		"enabled":   cfg.Enabled,
	}).Debug("Gate configuration staged")

	return nil
}

// SetLimiterConfig stages a safety limiter configuration.
func (e *Engine) SetLimiterConfig(cfg dynamics.LimiterConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		e.rejected("Engine.SetLimiterConfig", err)
		return err
	}

	e.cfg.Limiter = cfg
	e.pendingLimiter.Store(&cfg)

	e.log.WithFields(logrus.Fields{
		"function":  "Engine.SetLimiterConfig",
		"threshold": cfg.LimiterThresholdDB,
		"enabled":   cfg.Enabled,
	}).Debug("Limiter configuration staged")

	return nil
}

// SetDenoiserConfig stages a denoiser configuration. The sample rate is
// forced to the engine's. A change of FFT or hop size builds a fresh
// denoiser here, on the control side, and hands it over whole; the stream
// restarts with an empty noise estimate.
func (e *Engine) SetDenoiserConfig(cfg denoise.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg.SampleRate = float64(e.cfg.SampleRate)
	if err := cfg.Validate(); err != nil {
		e.rejected("Engine.SetDenoiserConfig", err)
		return err
	}

	rebuild := !sameFraming(cfg, e.cfg.Denoiser)

	if rebuild {
		d, err := denoise.New(cfg)
		if err != nil {
			e.rejected("Engine.SetDenoiserConfig", err)
			return err
		}

		e.pendingDenoiserCfg.Store(nil)
		e.pendingDenoiser.Store(d)
	} else {
		e.pendingDenoiserCfg.Store(&cfg)
	}

	e.cfg.Denoiser = cfg

	e.log.WithFields(logrus.Fields{
		"function": "Engine.SetDenoiserConfig",
		"fft_size": cfg.FFTSize,
		"hop_size": cfg.HopSize,
		"beta":     cfg.Beta,
		"enabled":  cfg.Enabled,
		"rebuild":  rebuild,
	}).Debug("Denoiser configuration staged")

	return nil
}

func (e *Engine) rejected(function string, err error) {
	e.log.WithFields(logrus.Fields{
		"function": function,
		"error":    err.Error(),
	}).Error("Configuration rejected")
}

// Reset clears the state of every stage at the next block boundary.
func (e *Engine) Reset() {
	e.eq.Reset()
	e.resetPending.Store(true)
}

// Config returns the current configuration, including the live equalizer
// settings.
func (e *Engine) Config() Config {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	cfg.Equalizer = e.eq.Bands()
	cfg.MasterGainDB = e.eq.MasterGain()
	cfg.EqualizerBypass = e.eq.Bypassed()

	return cfg
}

// Latency returns the chain delay in samples.
func (e *Engine) Latency() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.cfg.Denoiser.Latency()
}

// Report returns the most recently published limiter report.
func (e *Engine) Report() dynamics.Report {
	e.reportMu.Lock()
	defer e.reportMu.Unlock()

	return e.report
}

// Stats returns the cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Blocks:          e.counters.blocks.Load(),
		Frames:          e.counters.frames.Load(),
		DeferredUpdates: e.eq.DeferredUpdates(),
		NaNBlocks:       e.counters.nanBlocks.Load(),
		OverloadBlocks:  e.counters.overloadBlocks.Load(),
		FeedbackBlocks:  e.counters.feedbackBlocks.Load(),
		ClippedSamples:  e.counters.clipped.Load(),
		DroppedReports:  e.counters.droppedReports.Load(),
	}
}

// Poll logs the soft conditions seen since the previous Poll and returns
// the counter deltas.
func (e *Engine) Poll() Stats {
	s := e.Stats()

	e.mu.Lock()
	d := s.sub(e.lastPoll)
	e.lastPoll = s
	e.mu.Unlock()

	fields := logrus.Fields{"function": "Engine.Poll", "blocks": d.Blocks}

	if d.NaNBlocks > 0 {
		e.log.WithFields(fields).WithField("nan_blocks", d.NaNBlocks).Warn("Non-finite input replaced")
	}

	if d.FeedbackBlocks > 0 {
		e.log.WithFields(fields).WithField("feedback_blocks", d.FeedbackBlocks).Warn("Acoustic feedback suspected")
	}

	if d.DeferredUpdates > 0 {
		e.log.WithFields(fields).WithField("deferred_updates", d.DeferredUpdates).Warn("Equalizer updates deferred by lock contention")
	}

	if d.OverloadBlocks > 0 {
		e.log.WithFields(fields).WithFields(logrus.Fields{
			"overload_blocks": d.OverloadBlocks,
			"clipped_samples": d.ClippedSamples,
		}).Debug("Limiter engaged")
	}

	if d.DroppedReports > 0 {
		e.log.WithFields(fields).WithField("dropped_reports", d.DroppedReports).Debug("Reports dropped by lock contention")
	}

	return d
}

// Summary returns a multi-line description of the engine for logs and the
// CLI.
func (e *Engine) Summary() string {
	cfg := e.Config()
	f := cpu.DetectFeatures()

	var sb strings.Builder

	fmt.Fprintf(&sb, "engine: %d Hz, %d ch, max block %d, latency %d samples (%.1f ms)\n",
		cfg.SampleRate, cfg.Channels, cfg.MaxBlockSize, cfg.Denoiser.Latency(),
		1000*float64(cfg.Denoiser.Latency())/float64(cfg.SampleRate))
	fmt.Fprintf(&sb, "cpu: %s sse2=%v avx2=%v neon=%v\n", f.Architecture, f.HasSSE2, f.HasAVX2, f.HasNEON)
	fmt.Fprintf(&sb, "gate: enabled=%v threshold %.1f dB ratio %.1f floor %.1f dB attack %.1f ms release %.1f ms\n",
		cfg.Gate.Enabled, cfg.Gate.ThresholdDB, cfg.Gate.Ratio, cfg.Gate.FloorDB, cfg.Gate.AttackMs, cfg.Gate.ReleaseMs)
	fmt.Fprintf(&sb, "denoiser: enabled=%v fft %d hop %d beta %.2f floor %.2f update %.2f\n",
		cfg.Denoiser.Enabled, cfg.Denoiser.FFTSize, cfg.Denoiser.HopSize,
		cfg.Denoiser.Beta, cfg.Denoiser.FloorGain, cfg.Denoiser.NoiseUpdate)
	fmt.Fprintf(&sb, "limiter: enabled=%v threshold %.1f dB soft knee %v (%.1f dB) dc removal %v feedback detect %v\n",
		cfg.Limiter.Enabled, cfg.Limiter.LimiterThresholdDB, cfg.Limiter.SoftKnee, cfg.Limiter.KneeWidthDB,
		cfg.Limiter.DCRemovalEnabled, cfg.Limiter.FeedbackDetectEnabled)
	sb.WriteString(e.eq.String())

	return sb.String()
}
