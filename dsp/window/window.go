// Package window generates the analysis/synthesis windows used by the
// short-time Fourier processors and applies them to sample blocks.
package window

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Option configures window generation.
type Option func(*config)

type config struct {
	periodic bool
}

// WithPeriodic configures periodic form (FFT framing) instead of the
// default symmetric form.
func WithPeriodic() Option {
	return func(c *config) {
		c.periodic = true
	}
}

// Hann returns Hann coefficients 0.5*(1 - cos(2*pi*x)). The symmetric form
// (default) evaluates x = n/(size-1), the periodic form x = n/size.
func Hann(size int, opts ...Option) ([]float64, error) {
	if err := validateLength(size); err != nil {
		return nil, err
	}

	var cfg config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	out := make([]float64, size)
	for i := range out {
		x := math.Max(0, math.Min(1, samplePosition(i, size, cfg.periodic)))
		out[i] = 0.5 * (1 - math.Cos(2*math.Pi*x))
	}

	return out, nil
}

// Apply multiplies buf in place by coeffs.
func Apply(buf, coeffs []float64) error {
	if len(buf) != len(coeffs) {
		return errMismatchedLength
	}

	vecmath.MulBlockInPlace(buf, coeffs)

	return nil
}

// ApplyTo writes src*coeffs into dst. All three slices must have the same
// length; dst may alias src.
func ApplyTo(dst, src, coeffs []float64) error {
	if len(src) != len(coeffs) || len(dst) != len(src) {
		return errMismatchedLength
	}

	vecmath.MulBlock(dst, src, coeffs)

	return nil
}

// OverlapNormalization returns, for every position inside one hop, the sum
// of squared window values of all frames overlapping that position when
// frames advance by hop. It is the divisor that makes weighted overlap-add
// (window applied at analysis and synthesis) reconstruct unity gain.
func OverlapNormalization(coeffs []float64, hop int) ([]float64, error) {
	if len(coeffs) == 0 {
		return nil, errEmptyCoeffs
	}

	if hop <= 0 || hop > len(coeffs) {
		return nil, errInvalidHop
	}

	norm := make([]float64, hop)
	for i := range norm {
		for k := i; k < len(coeffs); k += hop {
			norm[i] += coeffs[k] * coeffs[k]
		}
	}

	return norm, nil
}

func samplePosition(n, size int, periodic bool) float64 {
	if size <= 1 {
		return 0
	}

	den := float64(size - 1)
	if periodic {
		den = float64(size)
	}

	return float64(n) / den
}
