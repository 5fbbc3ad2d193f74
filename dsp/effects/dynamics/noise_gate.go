package dynamics

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-rtfx/dsp/core"
	"github.com/cwbudde/algo-rtfx/dsp/filter/biquad"
)

const (
	// Default noise gate parameters
	defaultNoiseGateThresholdDB = -40.0
	defaultNoiseGateRatio       = 3.0
	defaultNoiseGateFloorDB     = -30.0
	defaultNoiseGateAttackMs    = 5.0
	defaultNoiseGateReleaseMs   = 100.0
	defaultNoiseGateHighPassHz  = 80.0

	// Noise gate validation ranges
	minNoiseGateThresholdDB = -96.0
	maxNoiseGateThresholdDB = 0.0
	minNoiseGateRatio       = 1.0
	maxNoiseGateRatio       = 20.0
	minNoiseGateFloorDB     = -96.0
	maxNoiseGateFloorDB     = 0.0
	minNoiseGateAttackMs    = 0.1
	maxNoiseGateAttackMs    = 500.0
	minNoiseGateReleaseMs   = 1.0
	maxNoiseGateReleaseMs   = 5000.0
	minNoiseGateHighPassHz  = 10.0
	maxNoiseGateHighPassHz  = 1000.0

	// The envelope detector runs at half the configured times so that it
	// leads the gain smoother.
	envelopeTimeScale = 0.5
)

// NoiseGateConfig holds the downward-expander parameters.
type NoiseGateConfig struct {
	ThresholdDB    float64 `json:"threshold_db"`
	Ratio          float64 `json:"ratio"`
	FloorDB        float64 `json:"floor_db"`
	AttackMs       float64 `json:"attack_ms"`
	ReleaseMs      float64 `json:"release_ms"`
	HighPassHz     float64 `json:"high_pass_hz"`
	EnableHighPass bool    `json:"enable_high_pass"`
	Enabled        bool    `json:"enabled"`
}

// DefaultNoiseGateConfig returns the default gate configuration:
//   - Threshold: -40 dB
//   - Ratio: 3:1
//   - Floor: -30 dB
//   - Attack: 5 ms
//   - Release: 100 ms
//   - High-pass: 80 Hz, enabled
func DefaultNoiseGateConfig() NoiseGateConfig {
	return NoiseGateConfig{
		ThresholdDB:    defaultNoiseGateThresholdDB,
		Ratio:          defaultNoiseGateRatio,
		FloorDB:        defaultNoiseGateFloorDB,
		AttackMs:       defaultNoiseGateAttackMs,
		ReleaseMs:      defaultNoiseGateReleaseMs,
		HighPassHz:     defaultNoiseGateHighPassHz,
		EnableHighPass: true,
		Enabled:        true,
	}
}

// Validate checks every field against its range for the given sample rate.
// Failures wrap core.ErrInvalidArgument.
func (c NoiseGateConfig) Validate(sampleRate float64) error {
	checks := []struct {
		name     string
		v        float64
		min, max float64
	}{
		{"threshold", c.ThresholdDB, minNoiseGateThresholdDB, maxNoiseGateThresholdDB},
		{"ratio", c.Ratio, minNoiseGateRatio, maxNoiseGateRatio},
		{"floor", c.FloorDB, minNoiseGateFloorDB, maxNoiseGateFloorDB},
		{"attack", c.AttackMs, minNoiseGateAttackMs, maxNoiseGateAttackMs},
		{"release", c.ReleaseMs, minNoiseGateReleaseMs, maxNoiseGateReleaseMs},
		{"high-pass frequency", c.HighPassHz, minNoiseGateHighPassHz, maxNoiseGateHighPassHz},
	}

	for _, chk := range checks {
		if math.IsNaN(chk.v) || chk.v < chk.min || chk.v > chk.max {
			return fmt.Errorf("%w: gate %s must be in [%g, %g]: %g",
				core.ErrInvalidArgument, chk.name, chk.min, chk.max, chk.v)
		}
	}

	if c.HighPassHz >= sampleRate/2 {
		return fmt.Errorf("%w: gate high-pass frequency must be below Nyquist (%g): %g",
			core.ErrInvalidArgument, sampleRate/2, c.HighPassHz)
	}

	return nil
}

// NoiseGate is a per-channel downward expander with an optional first-order
// high-pass pre-filter for rumble removal.
//
// Below the threshold the gain falls by (ratio-1) dB per dB of undershoot
// until it reaches the floor. Gain changes are smoothed with separate
// attack (opening) and release (closing) time constants.
//
// This implementation is single-threaded and not thread-safe. Parameter
// changes should occur outside audio processing callbacks.
type NoiseGate struct {
	cfg        NoiseGateConfig
	sampleRate float64
	channels   int

	// Computed coefficients (cached for performance)
	threshLin     float64
	floorLin      float64
	thresholdLog2 float64
	floorLog2     float64
	envAttack     float64
	envRelease    float64
	gainAttack    float64
	gainRelease   float64
	highPass      biquad.Coefficients

	state [maxChannels]gateChannel
}

type gateChannel struct {
	hp       biquad.Filter
	envelope float64
	gain     float64
}

// NewNoiseGate creates a gate with DefaultNoiseGateConfig for channels (1 or
// 2) at sampleRate, which must be in [8000, 384000] Hz.
func NewNoiseGate(sampleRate float64, channels int) (*NoiseGate, error) {
	if err := validateSampleRate("gate", sampleRate); err != nil {
		return nil, err
	}

	if channels < 1 || channels > maxChannels {
		return nil, fmt.Errorf("%w: gate channel count must be 1 or 2: %d", core.ErrInvalidArgument, channels)
	}

	g := &NoiseGate{
		cfg:        DefaultNoiseGateConfig(),
		sampleRate: sampleRate,
		channels:   channels,
	}

	g.updateCoefficients()
	g.Reset()

	return g, nil
}

// Config returns the active configuration.
func (g *NoiseGate) Config() NoiseGateConfig { return g.cfg }

// SampleRate returns the sample rate in Hz.
func (g *NoiseGate) SampleRate() float64 { return g.sampleRate }

// Channels returns the channel count.
func (g *NoiseGate) Channels() int { return g.channels }

// SetConfig validates and applies cfg. An invalid cfg leaves the previous
// configuration in place. Channel state is preserved.
func (g *NoiseGate) SetConfig(cfg NoiseGateConfig) error {
	if err := cfg.Validate(g.sampleRate); err != nil {
		return err
	}

	g.cfg = cfg
	g.updateCoefficients()

	return nil
}

// SetSampleRate updates the sample rate and recalculates coefficients.
func (g *NoiseGate) SetSampleRate(sampleRate float64) error {
	if err := validateSampleRate("gate", sampleRate); err != nil {
		return err
	}

	if err := g.cfg.Validate(sampleRate); err != nil {
		return err
	}

	g.sampleRate = sampleRate
	g.updateCoefficients()

	return nil
}

// Gain returns the current linear gain applied on channel ch.
func (g *NoiseGate) Gain(ch int) float64 {
	if ch < 0 || ch >= g.channels {
		return 0
	}

	return g.state[ch].gain
}

// Envelope returns the current detector envelope of channel ch.
func (g *NoiseGate) Envelope(ch int) float64 {
	if ch < 0 || ch >= g.channels {
		return 0
	}

	return g.state[ch].envelope
}

// Reset clears detector and filter state; the gate starts fully open.
func (g *NoiseGate) Reset() {
	for i := range g.state {
		g.resetChannel(i)
	}
}

func (g *NoiseGate) resetChannel(ch int) {
	s := &g.state[ch]
	s.hp.Reset()
	s.envelope = 0
	s.gain = 1
}

// ProcessSample gates one sample of channel ch. Non-finite input yields 0
// and resets the channel.
func (g *NoiseGate) ProcessSample(ch int, x float64) float64 {
	if ch < 0 || ch >= g.channels {
		return core.Sanitize(x)
	}

	if !g.cfg.Enabled {
		return core.Sanitize(x)
	}

	if math.IsNaN(x) || math.IsInf(x, 0) {
		g.resetChannel(ch)
		return 0
	}

	s := &g.state[ch]

	if g.cfg.EnableHighPass {
		x = s.hp.ProcessSample(x)
	}

	// Envelope follower: attack coefficient when rising.
	level := math.Abs(x)
	if level > s.envelope {
		s.envelope = g.envAttack*s.envelope + (1-g.envAttack)*level
	} else {
		s.envelope = g.envRelease*s.envelope + (1-g.envRelease)*level
	}

	s.envelope = core.FlushDenormals(s.envelope)
	if math.IsInf(s.envelope, 0) {
		g.resetChannel(ch)
		return 0
	}

	target := g.targetGain(s.envelope)

	// Gain smoother: attack while opening, release while closing.
	if target > s.gain {
		s.gain = g.gainAttack*s.gain + (1-g.gainAttack)*target
	} else {
		s.gain = g.gainRelease*s.gain + (1-g.gainRelease)*target
	}

	y := x * s.gain
	if math.IsNaN(y) || math.IsInf(y, 0) {
		g.resetChannel(ch)
		return 0
	}

	return y
}

// ProcessChannel gates in into out for channel ch. in and out must have
// equal length and may alias.
func (g *NoiseGate) ProcessChannel(ch int, in, out []float64) {
	n := min(len(in), len(out))

	if !g.cfg.Enabled || ch < 0 || ch >= g.channels {
		copy(out[:n], in[:n])
		core.SanitizeBlock(out[:n])

		return
	}

	for i, x := range in[:n] {
		out[i] = g.ProcessSample(ch, x)
	}
}

// Process gates channel 0.
func (g *NoiseGate) Process(in, out []float64) {
	g.ProcessChannel(0, in, out)
}

// ProcessStereo gates two channels with independent detectors. On a mono
// gate the right channel is copied through.
func (g *NoiseGate) ProcessStereo(inL, inR, outL, outR []float64) {
	g.ProcessChannel(0, inL, outL)
	g.ProcessChannel(1, inR, outR)
}

// CalculateGain returns the static target gain for a detector level,
// without smoothing. Useful for plotting the transfer curve.
func (g *NoiseGate) CalculateGain(level float64) float64 {
	return g.targetGain(math.Abs(level))
}

func (g *NoiseGate) targetGain(envelope float64) float64 {
	if envelope >= g.threshLin {
		return 1
	}

	if envelope <= 0 {
		return g.floorLin
	}

	undershoot := g.thresholdLog2 - mathLog2(envelope)
	gainLog2 := math.Max(-undershoot*(g.cfg.Ratio-1), g.floorLog2)

	return mathPower2(gainLog2)
}

// updateCoefficients recalculates all internal cached values.
func (g *NoiseGate) updateCoefficients() {
	g.thresholdLog2 = dbToLog2(g.cfg.ThresholdDB)
	g.floorLog2 = dbToLog2(g.cfg.FloorDB)
	g.threshLin = mathPower10(g.cfg.ThresholdDB / 20)
	g.floorLin = mathPower10(g.cfg.FloorDB / 20)

	g.envAttack = timeCoefficient(g.cfg.AttackMs*envelopeTimeScale, g.sampleRate)
	g.envRelease = timeCoefficient(g.cfg.ReleaseMs*envelopeTimeScale, g.sampleRate)
	g.gainAttack = timeCoefficient(g.cfg.AttackMs, g.sampleRate)
	g.gainRelease = timeCoefficient(g.cfg.ReleaseMs, g.sampleRate)

	g.highPass = biquad.FirstOrderHighpass(g.cfg.HighPassHz, g.sampleRate)
	for i := range g.state {
		g.state[i].hp.SetNormalized(g.highPass)
	}
}

func validateSampleRate(component string, sampleRate float64) error {
	if math.IsNaN(sampleRate) || sampleRate < minSampleRate || sampleRate > maxSampleRate {
		return fmt.Errorf("%w: %s sample rate must be in [%g, %g]: %g",
			core.ErrInvalidArgument, component, minSampleRate, maxSampleRate, sampleRate)
	}

	return nil
}
