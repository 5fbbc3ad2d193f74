// Package loudness measures programme loudness after ITU-R BS.1770 /
// EBU R128: K-weighted momentary (400 ms), short-term (3 s) and gated
// integrated loudness in LUFS.
package loudness

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-rtfx/dsp/core"
	"github.com/cwbudde/algo-rtfx/dsp/filter/biquad"
)

const (
	// K-weighting: a high shelf for the head response followed by a
	// highpass (RLB curve).
	kShelfFreq   = 1500.0
	kShelfGainDB = 4.0
	kHighpass    = 38.0

	momentarySeconds = 0.4
	shortTermSeconds = 3.0

	// Gating blocks are momentary windows taken every 100 ms.
	blockStepSeconds = 0.1

	absoluteGateLUFS = -70.0
	relativeGateLU   = -10.0

	// Silence floor reported instead of -Inf.
	floorLUFS = -120.0

	// MaxChannels bounds the channel count of a Meter.
	MaxChannels = 8
)

// window is a running sum of squares over a fixed number of samples.
type window struct {
	history []float64
	pos     int
	sum     float64
	filled  int
}

func newWindow(n int) window {
	return window{history: make([]float64, n)}
}

func (w *window) push(sq float64) {
	w.sum += sq - w.history[w.pos]
	if w.sum < 0 {
		w.sum = 0
	}

	w.history[w.pos] = sq
	w.pos = (w.pos + 1) % len(w.history)

	if w.filled < len(w.history) {
		w.filled++
	}
}

func (w *window) meanSquare() float64 { return w.sum / float64(len(w.history)) }

func (w *window) full() bool { return w.filled == len(w.history) }

func (w *window) reset() {
	clear(w.history)
	w.pos, w.sum, w.filled = 0, 0, 0
}

type channelState struct {
	shelf, highpass *biquad.Filter
	momentary       window
	shortTerm       window
}

// Meter accumulates loudness over a multi-channel stream. It is not safe
// for concurrent use.
type Meter struct {
	sampleRate float64
	channels   []channelState

	step      int
	sinceStep int

	// blocks holds the summed mean square of every complete gating block.
	blocks []float64
}

// NewMeter returns a meter for the given sample rate and channel count.
// All channels are weighted equally.
func NewMeter(sampleRate float64, channels int) (*Meter, error) {
	if !core.IsFinite(sampleRate) || sampleRate <= 2*kShelfFreq {
		return nil, fmt.Errorf("%w: loudness sample rate must exceed %g Hz: %g",
			core.ErrInvalidArgument, 2*kShelfFreq, sampleRate)
	}

	if channels < 1 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: loudness channels must be in [1, %d]: %d",
			core.ErrInvalidArgument, MaxChannels, channels)
	}

	q := 1 / math.Sqrt2
	shelf := biquad.HighShelfCoefficients(kShelfFreq, sampleRate, q, kShelfGainDB)
	hp := biquad.HighpassCoefficients(kHighpass, sampleRate, q)

	m := &Meter{
		sampleRate: sampleRate,
		channels:   make([]channelState, channels),
		step:       max(int(math.Round(blockStepSeconds*sampleRate)), 1),
	}

	for i := range m.channels {
		m.channels[i] = channelState{
			shelf:     biquad.NewFilter(shelf),
			highpass:  biquad.NewFilter(hp),
			momentary: newWindow(int(math.Round(momentarySeconds * sampleRate))),
			shortTerm: newWindow(int(math.Round(shortTermSeconds * sampleRate))),
		}
	}

	return m, nil
}

// Channels returns the channel count.
func (m *Meter) Channels() int { return len(m.channels) }

// ProcessFrame adds one frame holding a sample per channel. Short frames
// are ignored.
func (m *Meter) ProcessFrame(frame []float64) {
	if len(frame) < len(m.channels) {
		return
	}

	for i := range m.channels {
		c := &m.channels[i]
		v := c.highpass.ProcessSample(c.shelf.ProcessSample(core.Sanitize(frame[i])))
		sq := v * v
		c.momentary.push(sq)
		c.shortTerm.push(sq)
	}

	m.sinceStep++
	if m.sinceStep < m.step {
		return
	}

	m.sinceStep = 0

	if m.channels[0].momentary.full() {
		m.blocks = append(m.blocks, m.momentaryPower())
	}
}

// ProcessInterleaved adds interleaved frames.
func (m *Meter) ProcessInterleaved(buf []float64) {
	n := len(m.channels)
	for i := 0; i+n <= len(buf); i += n {
		m.ProcessFrame(buf[i : i+n])
	}
}

// ProcessPlanar adds one block per channel. Frames beyond the shortest
// channel are ignored.
func (m *Meter) ProcessPlanar(chans [][]float64) {
	if len(chans) < len(m.channels) {
		return
	}

	frames := len(chans[0])
	for _, c := range chans[:len(m.channels)] {
		frames = min(frames, len(c))
	}

	var frame [MaxChannels]float64

	for i := range frames {
		for ch := range m.channels {
			frame[ch] = chans[ch][i]
		}

		m.ProcessFrame(frame[:len(m.channels)])
	}
}

func (m *Meter) momentaryPower() float64 {
	sum := 0.0
	for i := range m.channels {
		sum += m.channels[i].momentary.meanSquare()
	}

	return sum
}

// Momentary returns the loudness of the last 400 ms in LUFS.
func (m *Meter) Momentary() float64 {
	return toLUFS(m.momentaryPower())
}

// ShortTerm returns the loudness of the last 3 s in LUFS.
func (m *Meter) ShortTerm() float64 {
	sum := 0.0
	for i := range m.channels {
		sum += m.channels[i].shortTerm.meanSquare()
	}

	return toLUFS(sum)
}

// Integrated returns the gated loudness since the last Reset in LUFS, or
// the silence floor when no block passed the gates.
func (m *Meter) Integrated() float64 {
	mean := func(threshold float64) (float64, int) {
		sum, n := 0.0, 0

		for _, b := range m.blocks {
			if toLUFS(b) > threshold {
				sum += b
				n++
			}
		}

		if n == 0 {
			return 0, 0
		}

		return sum / float64(n), n
	}

	abs, n := mean(absoluteGateLUFS)
	if n == 0 {
		return floorLUFS
	}

	rel, n := mean(toLUFS(abs) + relativeGateLU)
	if n == 0 {
		return floorLUFS
	}

	return toLUFS(rel)
}

// Blocks returns the number of complete gating blocks seen.
func (m *Meter) Blocks() int { return len(m.blocks) }

// Reset clears filter state, windows and the integration history.
func (m *Meter) Reset() {
	for i := range m.channels {
		c := &m.channels[i]
		c.shelf.Reset()
		c.highpass.Reset()
		c.momentary.reset()
		c.shortTerm.reset()
	}

	m.sinceStep = 0
	m.blocks = m.blocks[:0]
}

func toLUFS(meanSquare float64) float64 {
	if meanSquare <= 0 {
		return floorLUFS
	}

	return max(-0.691+10*math.Log10(meanSquare), floorLUFS)
}
