package dither

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

// Quantizer maps samples in [-1, 1) to signed integers of a fixed bit
// depth. It keeps per-stream state, so use one Quantizer per channel.
type Quantizer struct {
	kind      Type
	bitDepth  int
	amplitude float64
	rng       *rand.Rand

	scale  float64
	lo, hi float64

	// err is the previous quantization error, used by Shaped.
	err float64
}

// NewQuantizer returns a Quantizer for bitDepth-bit output.
func NewQuantizer(bitDepth int, kind Type, opts ...Option) (*Quantizer, error) {
	if bitDepth < minBitDepth || bitDepth > maxBitDepth {
		return nil, fmt.Errorf("%w: bit depth must be in [%d, %d]: %d",
			core.ErrInvalidArgument, minBitDepth, maxBitDepth, bitDepth)
	}

	if !kind.Valid() {
		return nil, fmt.Errorf("%w: invalid dither type: %d", core.ErrInvalidArgument, int(kind))
	}

	cfg := config{amplitude: defaultAmplitude}
	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	scale := math.Exp2(float64(bitDepth - 1))

	return &Quantizer{
		kind:      kind,
		bitDepth:  bitDepth,
		amplitude: cfg.amplitude,
		rng:       cfg.rng,
		scale:     scale,
		lo:        -scale,
		hi:        scale - 1,
	}, nil
}

// Quantize converts one sample. Non-finite input yields 0 and out-of-range
// input is clamped.
func (q *Quantizer) Quantize(x float64) int {
	target := core.Sanitize(x) * q.scale

	var noise float64

	switch q.kind {
	case Rectangular:
		noise = q.amplitude * (q.rng.Float64() - 0.5)
	case Triangular:
		noise = q.amplitude * (q.rng.Float64() - q.rng.Float64())
	case Shaped:
		target -= q.err
		noise = q.amplitude * (q.rng.Float64() - q.rng.Float64())
	}

	y := math.Round(target + noise)

	switch {
	case y > q.hi:
		y = q.hi
		q.err = 0
	case y < q.lo:
		y = q.lo
		q.err = 0
	case q.kind == Shaped:
		q.err = y - target
	}

	return int(y)
}

// QuantizeStrided converts src into dst[0], dst[stride], ... and returns
// the number of samples written. It is used to fill one channel of an
// interleaved buffer.
func (q *Quantizer) QuantizeStrided(dst []int, stride int, src []float64) int {
	if stride < 1 {
		return 0
	}

	n := min(len(src), (len(dst)+stride-1)/stride)
	for i := range n {
		dst[i*stride] = q.Quantize(src[i])
	}

	return n
}

// Reset clears the noise shaping state.
func (q *Quantizer) Reset() { q.err = 0 }

// BitDepth returns the output bit depth.
func (q *Quantizer) BitDepth() int { return q.bitDepth }

// Type returns the dither type.
func (q *Quantizer) Type() Type { return q.kind }

// FullScale returns the integer magnitude of a -1.0 sample.
func (q *Quantizer) FullScale() float64 { return q.scale }
