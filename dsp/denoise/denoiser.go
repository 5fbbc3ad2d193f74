// Package denoise implements a streaming spectral-subtraction noise reducer.
//
// Input is framed into Hann-windowed FFT frames advancing by a hop. Each
// frame's magnitude spectrum is compared against a slowly adapting noise
// estimate, over-subtracted with a spectral floor and resynthesized by
// weighted overlap-add. The stream delay is FFTSize samples while enabled
// and one hop while disabled, when input is passed through unchanged.
package denoise

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-rtfx/dsp/core"
	"github.com/cwbudde/algo-rtfx/dsp/fft"
	"github.com/cwbudde/algo-rtfx/dsp/window"
)

const (
	normFloor = 1e-12

	// inputLimit bounds finite input so that frame sums cannot overflow.
	inputLimit = 1e8
)

// Denoiser is a spectral-subtraction noise reducer for up to two channels.
//
// Process calls must come from a single goroutine. SetConfig reallocates
// when frame sizes change and must not run concurrently with processing.
type Denoiser struct {
	cfg  Config
	plan *fft.Plan

	window  []float64
	invNorm []float64

	// Frame scratch shared by all channels.
	re  []float64
	im  []float64
	mag []float64

	channels [MaxChannels]channelState
	frames   uint64
}

type channelState struct {
	analysis []float64
	accum    []float64

	inFIFO  []float64
	outFIFO []float64
	pos     int

	// filled counts input samples until the analysis window is full.
	filled int

	noise     []float64
	noiseInit bool
}

// New creates a denoiser from cfg.
func New(cfg Config) (*Denoiser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Denoiser{cfg: cfg}
	if err := d.allocate(); err != nil {
		return nil, err
	}

	return d, nil
}

// Config returns the active configuration.
func (d *Denoiser) Config() Config {
	return d.cfg
}

// SetConfig validates and applies cfg. Changing FFTSize or HopSize
// reallocates all buffers and clears the stream; other fields take effect on
// the next frame with state preserved.
func (d *Denoiser) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	resize := cfg.FFTSize != d.cfg.FFTSize || cfg.HopSize != d.cfg.HopSize
	d.cfg = cfg

	if resize {
		return d.allocate()
	}

	return nil
}

// Latency returns the stream delay in samples for the current mode.
func (d *Denoiser) Latency() int {
	return d.cfg.Latency()
}

// FramesProcessed returns the number of frames analysed on channel 0.
func (d *Denoiser) FramesProcessed() uint64 {
	return d.frames
}

// NoiseEstimate returns a copy of the per-bin noise magnitude estimate of
// channel ch, or nil if ch is out of range or no estimate exists yet.
func (d *Denoiser) NoiseEstimate(ch int) []float64 {
	if ch < 0 || ch >= MaxChannels || !d.channels[ch].noiseInit {
		return nil
	}

	return append([]float64(nil), d.channels[ch].noise...)
}

// Reset clears all buffers and the noise estimates.
func (d *Denoiser) Reset() {
	for i := range d.channels {
		c := &d.channels[i]
		core.Zero(c.analysis)
		core.Zero(c.accum)
		core.Zero(c.inFIFO)
		core.Zero(c.outFIFO)
		core.Zero(c.noise)
		c.pos = 0
		c.filled = 0
		c.noiseInit = false
	}

	d.frames = 0
}

// Process denoises channel 0. in and out must have equal length and may
// alias.
func (d *Denoiser) Process(in, out []float64) {
	d.processChannel(0, in, out)
}

// ProcessStereo denoises two channels with independent state.
func (d *Denoiser) ProcessStereo(inL, inR, outL, outR []float64) {
	d.processChannel(0, inL, outL)
	d.processChannel(1, inR, outR)
}

// ProcessChannel denoises channel ch. Out-of-range channels copy in to out.
func (d *Denoiser) ProcessChannel(ch int, in, out []float64) {
	if ch < 0 || ch >= MaxChannels {
		copy(out, in)
		return
	}

	d.processChannel(ch, in, out)
}

func (d *Denoiser) processChannel(ch int, in, out []float64) {
	c := &d.channels[ch]
	hop := d.cfg.HopSize

	n := min(len(in), len(out))
	for i := 0; i < n; {
		chunk := min(hop-c.pos, n-i)

		// Read the input chunk before writing output; in and out may alias.
		dstIn := c.inFIFO[c.pos : c.pos+chunk]
		for j, x := range in[i : i+chunk] {
			dstIn[j] = conditionInput(x)
		}
		copy(out[i:i+chunk], c.outFIFO[c.pos:c.pos+chunk])

		c.pos += chunk
		i += chunk

		if c.pos == hop {
			d.frame(ch)
			c.pos = 0
		}
	}
}

func conditionInput(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x > inputLimit:
		if math.IsInf(x, 1) {
			return 0
		}
		return inputLimit
	case x < -inputLimit:
		if math.IsInf(x, -1) {
			return 0
		}
		return -inputLimit
	default:
		return x
	}
}

func (d *Denoiser) frame(ch int) {
	c := &d.channels[ch]
	n := d.cfg.FFTSize
	hop := d.cfg.HopSize

	copy(c.analysis, c.analysis[hop:])
	copy(c.analysis[n-hop:], c.inFIFO)

	if c.filled < n {
		c.filled += hop
	}

	if ch == 0 {
		d.frames++
	}

	if !d.cfg.Enabled {
		copy(c.outFIFO, c.inFIFO)
		core.Zero(c.accum)

		return
	}

	re, im := d.re, d.im
	_ = window.ApplyTo(re, c.analysis, d.window)
	core.Zero(im)

	d.plan.Forward(re, im)
	d.subtract(c)
	d.plan.Inverse(re, im)

	_ = window.Apply(re, d.window)
	vecmath.AddBlockInPlace(c.accum, re)

	for i := range hop {
		c.outFIFO[i] = c.accum[i] * d.invNorm[i]
	}
	core.SanitizeBlock(c.outFIFO)

	copy(c.accum, c.accum[hop:])
	core.Zero(c.accum[n-hop:])
}

// subtract applies spectral subtraction to bins 0..N/2 of the scratch
// spectrum and mirrors them into the upper half.
func (d *Denoiser) subtract(c *channelState) {
	n := d.cfg.FFTSize
	bins := n/2 + 1
	re, im, mag := d.re, d.im, d.mag

	vecmath.Magnitude(mag, re[:bins], im[:bins])

	// Frames are passed through until the analysis window holds a full
	// FFTSize of signal; the first full frame seeds the noise estimate.
	if c.filled < n {
		return
	}

	if !c.noiseInit {
		copy(c.noise, mag)
		c.noiseInit = true
	} else {
		u := d.cfg.NoiseUpdate
		for k, m := range mag {
			c.noise[k] = u*c.noise[k] + (1-u)*m
		}
	}

	beta := d.cfg.Beta
	floor := d.cfg.FloorGain

	for k, m := range mag {
		noise := c.noise[k]
		target := math.Max(m-beta*noise, floor*noise)

		if m > 0 {
			g := target / m
			re[k] *= g
			im[k] *= g
		} else {
			re[k] = target
			im[k] = 0
		}
	}

	im[0] = 0
	im[n/2] = 0

	for k := 1; k < n/2; k++ {
		re[n-k] = re[k]
		im[n-k] = -im[k]
	}
}

func (d *Denoiser) allocate() error {
	n := d.cfg.FFTSize
	hop := d.cfg.HopSize

	plan, err := fft.NewPlan(n)
	if err != nil {
		return fmt.Errorf("denoiser: %w", err)
	}

	w, err := window.Hann(n)
	if err != nil {
		return fmt.Errorf("%w: denoiser window: %w", core.ErrInvalidConfig, err)
	}

	norm, err := window.OverlapNormalization(w, hop)
	if err != nil {
		return fmt.Errorf("%w: denoiser overlap: %w", core.ErrInvalidConfig, err)
	}

	invNorm := make([]float64, hop)
	for i, v := range norm {
		if v > normFloor {
			invNorm[i] = 1 / v
		}
	}

	d.plan = plan
	d.window = w
	d.invNorm = invNorm
	d.re = make([]float64, n)
	d.im = make([]float64, n)
	d.mag = make([]float64, n/2+1)

	for i := range d.channels {
		d.channels[i] = channelState{
			analysis: make([]float64, n),
			accum:    make([]float64, n),
			inFIFO:   make([]float64, hop),
			outFIFO:  make([]float64, hop),
			noise:    make([]float64, n/2+1),
		}
	}

	d.frames = 0

	return nil
}
