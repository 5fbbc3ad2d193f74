package denoise

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

const (
	defaultFFTSize     = 1024
	defaultHopSize     = 256
	defaultBeta        = 1.5
	defaultFloorGain   = 0.05
	defaultNoiseUpdate = 0.98
	defaultSampleRate  = 48000

	minFFTSize    = 64
	maxFFTSize    = 8192
	minBeta       = 0.0
	maxBeta       = 10.0
	minSampleRate = 8000.0
	maxSampleRate = 384000.0

	// MaxChannels is the number of independent channels a Denoiser tracks.
	MaxChannels = 2
)

// Config holds the denoiser parameters.
type Config struct {
	// FFTSize is the analysis frame length, a power of two in [64, 8192].
	FFTSize int `json:"fft_size"`
	// HopSize is the frame advance in samples, in (0, FFTSize].
	HopSize int `json:"hop_size"`
	// Beta is the over-subtraction factor in [0, 10].
	Beta float64 `json:"beta"`
	// FloorGain is the spectral floor relative to the noise estimate, in [0, 1].
	FloorGain float64 `json:"floor_gain"`
	// NoiseUpdate is the noise smoothing factor in [0, 1]; higher adapts slower.
	NoiseUpdate float64 `json:"noise_update"`
	Enabled     bool    `json:"enabled"`
	SampleRate  float64 `json:"sample_rate"`
}

// DefaultConfig returns the default configuration: 1024-point frames with a
// 256-sample hop, beta 1.5, floor 0.05, noise update 0.98 at 48 kHz.
func DefaultConfig() Config {
	return Config{
		FFTSize:     defaultFFTSize,
		HopSize:     defaultHopSize,
		Beta:        defaultBeta,
		FloorGain:   defaultFloorGain,
		NoiseUpdate: defaultNoiseUpdate,
		Enabled:     true,
		SampleRate:  defaultSampleRate,
	}
}

// Validate checks every field against its documented range. Failures wrap
// core.ErrInvalidConfig.
func (c Config) Validate() error {
	if c.FFTSize < minFFTSize || c.FFTSize > maxFFTSize || !core.IsPowerOfTwo(c.FFTSize) {
		return fmt.Errorf("%w: denoiser fft size must be a power of two in [%d, %d]: %d",
			core.ErrInvalidConfig, minFFTSize, maxFFTSize, c.FFTSize)
	}

	if c.HopSize <= 0 || c.HopSize > c.FFTSize {
		return fmt.Errorf("%w: denoiser hop size must be in [1, %d]: %d",
			core.ErrInvalidConfig, c.FFTSize, c.HopSize)
	}

	if !inRange(c.Beta, minBeta, maxBeta) {
		return fmt.Errorf("%w: denoiser beta must be in [%g, %g]: %g",
			core.ErrInvalidConfig, minBeta, maxBeta, c.Beta)
	}

	if !inRange(c.FloorGain, 0, 1) {
		return fmt.Errorf("%w: denoiser floor gain must be in [0, 1]: %g", core.ErrInvalidConfig, c.FloorGain)
	}

	if !inRange(c.NoiseUpdate, 0, 1) {
		return fmt.Errorf("%w: denoiser noise update must be in [0, 1]: %g", core.ErrInvalidConfig, c.NoiseUpdate)
	}

	if !inRange(c.SampleRate, minSampleRate, maxSampleRate) {
		return fmt.Errorf("%w: denoiser sample rate must be in [%g, %g]: %g",
			core.ErrInvalidConfig, minSampleRate, maxSampleRate, c.SampleRate)
	}

	return nil
}

// Latency returns the stream delay in samples a denoiser running c
// introduces: FFTSize while enabled, HopSize while disabled.
func (c Config) Latency() int {
	if c.Enabled {
		return c.FFTSize
	}

	return c.HopSize
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
