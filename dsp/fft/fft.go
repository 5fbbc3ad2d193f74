// Package fft provides a radix-2 Cooley-Tukey FFT over split real/imaginary
// float64 slices. A Plan precomputes the bit-reversal permutation and the
// twiddle factors once, so Forward and Inverse run in place without
// allocating or evaluating trigonometric functions.
package fft

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

// Plan is a precomputed transform of a fixed power-of-two size. A Plan holds
// no per-call state and may be shared between goroutines.
type Plan struct {
	n      int
	stages int

	// reversed[i] is i with its low log2(n) bits reversed.
	reversed []int

	// Twiddles for all stages, stage s (span 2^s) starts at offset 2^s - 1
	// and holds 2^s entries: cos and -sin of 2*pi*k/2^(s+1).
	cos []float64
	sin []float64
}

// NewPlan returns a plan for transforms of size n. n must be a power of two
// and at least 2.
func NewPlan(n int) (*Plan, error) {
	if n < 2 || !core.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("%w: fft size must be a power of two >= 2: %d", core.ErrInvalidConfig, n)
	}

	stages := bits.TrailingZeros(uint(n))
	p := &Plan{
		n:        n,
		stages:   stages,
		reversed: make([]int, n),
		cos:      make([]float64, n-1),
		sin:      make([]float64, n-1),
	}

	shift := bits.UintSize - stages
	for i := range p.reversed {
		p.reversed[i] = int(bits.Reverse(uint(i)) >> shift)
	}

	for s := range stages {
		half := 1 << s
		base := half - 1
		for k := range half {
			angle := math.Pi * float64(k) / float64(half)
			p.cos[base+k] = math.Cos(angle)
			p.sin[base+k] = -math.Sin(angle)
		}
	}

	return p, nil
}

// Size returns the transform length.
func (p *Plan) Size() int {
	return p.n
}

// Forward computes the unnormalized forward DFT of (re, im) in place.
// Both slices must have length Size().
func (p *Plan) Forward(re, im []float64) {
	p.transform(re, im, 1)
}

// Inverse computes the inverse DFT of (re, im) in place, scaled by 1/N so
// that Inverse(Forward(x)) == x.
func (p *Plan) Inverse(re, im []float64) {
	p.transform(re, im, -1)

	scale := 1 / float64(p.n)
	for i := range re[:p.n] {
		re[i] *= scale
		im[i] *= scale
	}
}

func (p *Plan) transform(re, im []float64, sign float64) {
	n := p.n
	re = re[:n]
	im = im[:n]

	for i, j := range p.reversed {
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for s := range p.stages {
		half := 1 << s
		span := half << 1
		tc := p.cos[half-1 : span-1]
		ts := p.sin[half-1 : span-1]

		for start := 0; start < n; start += span {
			for k := range half {
				wr := tc[k]
				wi := sign * ts[k]

				a := start + k
				b := a + half

				xr := re[b]*wr - im[b]*wi
				xi := re[b]*wi + im[b]*wr

				re[b] = re[a] - xr
				im[b] = im[a] - xi
				re[a] += xr
				im[a] += xi
			}
		}
	}
}
