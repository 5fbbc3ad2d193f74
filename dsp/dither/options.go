package dither

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

const (
	defaultAmplitude = 1.0
	minBitDepth      = 2
	maxBitDepth      = 32
)

type config struct {
	amplitude float64
	rng       *rand.Rand
}

// Option configures a Quantizer.
type Option func(*config) error

// WithAmplitude scales the dither noise (default 1.0).
func WithAmplitude(amp float64) Option {
	return func(cfg *config) error {
		if amp < 0 || math.IsNaN(amp) || math.IsInf(amp, 0) {
			return fmt.Errorf("%w: dither amplitude must be >= 0 and finite: %g", core.ErrInvalidArgument, amp)
		}

		cfg.amplitude = amp

		return nil
	}
}

// WithSeed makes the dither noise reproducible.
func WithSeed(seed uint64) Option {
	return func(cfg *config) error {
		cfg.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		return nil
	}
}
