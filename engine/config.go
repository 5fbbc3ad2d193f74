package engine

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-rtfx/dsp/core"
	"github.com/cwbudde/algo-rtfx/dsp/denoise"
	"github.com/cwbudde/algo-rtfx/dsp/effects/dynamics"
	"github.com/cwbudde/algo-rtfx/dsp/equalizer"
)

const (
	defaultSampleRate   = 48000
	defaultChannels     = 2
	defaultBands        = 10
	defaultMaxBlockSize = 4096

	minBlockSize = 16
	maxBlockSize = 1 << 16
)

// Config is the complete engine configuration. It is plain data and can be
// loaded from JSON.
type Config struct {
	SampleRate uint32 `json:"sample_rate"`
	// Channels is the interleaved layout used by ProcessInterleaved32, 1 or 2.
	Channels int `json:"channels"`
	Bands    int `json:"bands"`
	// MaxBlockSize bounds the frames processed per chain pass. Longer
	// blocks are split.
	MaxBlockSize int `json:"max_block_size"`

	// Equalizer overrides the default bands, in band order. It may be
	// shorter than Bands.
	Equalizer       []equalizer.BandConfig `json:"equalizer,omitempty"`
	Preset          string                 `json:"preset,omitempty"`
	MasterGainDB    float64                `json:"master_gain_db"`
	EqualizerBypass bool                   `json:"equalizer_bypass"`

	Gate     dynamics.NoiseGateConfig `json:"gate"`
	Denoiser denoise.Config           `json:"denoiser"`
	Limiter  dynamics.LimiterConfig   `json:"limiter"`
}

// DefaultConfig returns a stereo 48 kHz engine with a flat 10-band
// equalizer and default gate, denoiser and limiter settings.
func DefaultConfig() Config {
	return Config{
		SampleRate:   defaultSampleRate,
		Channels:     defaultChannels,
		Bands:        defaultBands,
		MaxBlockSize: defaultMaxBlockSize,
		Gate:         dynamics.DefaultNoiseGateConfig(),
		Denoiser:     denoise.DefaultConfig(),
		Limiter:      dynamics.DefaultLimiterConfig(),
	}
}

// Validate checks the whole configuration. The denoiser sample rate is
// taken from SampleRate.
func (c Config) Validate() error {
	if c.SampleRate < equalizer.MinSampleRate || c.SampleRate > equalizer.MaxSampleRate {
		return fmt.Errorf("%w: sample rate must be in [%d, %d]: %d",
			core.ErrInvalidConfig, equalizer.MinSampleRate, equalizer.MaxSampleRate, c.SampleRate)
	}

	if c.Channels < 1 || c.Channels > denoise.MaxChannels {
		return fmt.Errorf("%w: channels must be 1 or 2: %d", core.ErrInvalidConfig, c.Channels)
	}

	if c.Bands < equalizer.MinBands || c.Bands > equalizer.MaxBands {
		return fmt.Errorf("%w: band count must be in [%d, %d]: %d",
			core.ErrInvalidConfig, equalizer.MinBands, equalizer.MaxBands, c.Bands)
	}

	if c.MaxBlockSize < minBlockSize || c.MaxBlockSize > maxBlockSize {
		return fmt.Errorf("%w: max block size must be in [%d, %d]: %d",
			core.ErrInvalidConfig, minBlockSize, maxBlockSize, c.MaxBlockSize)
	}

	if len(c.Equalizer) > c.Bands {
		return fmt.Errorf("%w: %d equalizer bands configured for a %d-band equalizer",
			core.ErrInvalidConfig, len(c.Equalizer), c.Bands)
	}

	for i, b := range c.Equalizer {
		if !b.Type.Valid() {
			return fmt.Errorf("%w: equalizer band %d has unknown type %v", core.ErrInvalidConfig, i, b.Type)
		}

		if math.IsNaN(b.Frequency) || math.IsNaN(b.GainDB) || math.IsNaN(b.Q) {
			return fmt.Errorf("%w: equalizer band %d has a NaN parameter", core.ErrInvalidConfig, i)
		}
	}

	if c.Preset != "" {
		if _, err := equalizer.LookupPreset(c.Preset); err != nil {
			return err
		}
	}

	if math.IsNaN(c.MasterGainDB) {
		return fmt.Errorf("%w: master gain is NaN", core.ErrInvalidConfig)
	}

	if err := c.Gate.Validate(float64(c.SampleRate)); err != nil {
		return err
	}

	if err := c.denoiserConfig().Validate(); err != nil {
		return err
	}

	return c.Limiter.Validate()
}

func (c Config) denoiserConfig() denoise.Config {
	d := c.Denoiser
	d.SampleRate = float64(c.SampleRate)

	return d
}
