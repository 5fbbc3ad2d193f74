// Package time provides block-level time-domain statistics used for
// metering and safety analysis.
package time

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Levels holds the level statistics of a block or a stream.
//
//nolint:revive
type Levels struct {
	Length         int
	DC             float64 // mean
	RMS            float64
	RMS_dB         float64
	Peak           float64 // max |x|
	Peak_dB        float64
	CrestFactor    float64 // peak / RMS (linear)
	CrestFactor_dB float64
	ZeroCrossings  int
}

// ampTodB converts an amplitude value to decibels: 20 * log10(|value|).
// Returns -Inf for zero values.
func ampTodB(value float64) float64 {
	a := math.Abs(value)
	if a == 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(a)
}

func levelsFrom(n int, dc, rms, peak float64, zeroCrossings int) Levels {
	l := Levels{
		Length:        n,
		DC:            dc,
		RMS:           rms,
		RMS_dB:        ampTodB(rms),
		Peak:          peak,
		Peak_dB:       ampTodB(peak),
		ZeroCrossings: zeroCrossings,
	}

	if rms > 0 {
		l.CrestFactor = peak / rms
		l.CrestFactor_dB = ampTodB(l.CrestFactor)
	}

	return l
}

// Measure computes the level statistics of signal.
func Measure(signal []float64) Levels {
	if len(signal) == 0 {
		return levelsFrom(0, 0, 0, 0, 0)
	}

	return levelsFrom(len(signal), DC(signal), RMS(signal), Peak(signal), ZeroCrossings(signal))
}

// RMS returns the root-mean-square of the signal.
func RMS(signal []float64) float64 {
	if len(signal) == 0 {
		return 0
	}

	return math.Sqrt(vecmath.DotProduct(signal, signal) / float64(len(signal)))
}

// DC returns the mean (DC offset) of the signal.
func DC(signal []float64) float64 {
	if len(signal) == 0 {
		return 0
	}
	// Use Kahan summation for numerical stability.
	var sum, c float64
	for _, x := range signal {
		y := x - c
		t := sum + y
		c = (t - sum) - y
		sum = t
	}

	return sum / float64(len(signal))
}

// Peak returns the peak absolute amplitude of the signal.
func Peak(signal []float64) float64 {
	if len(signal) == 0 {
		return 0
	}

	return vecmath.MaxAbs(signal)
}

// CrestFactor returns the crest factor (peak / RMS) of the signal.
// Returns 0 if RMS is zero.
func CrestFactor(signal []float64) float64 {
	r := RMS(signal)
	if r == 0 {
		return 0
	}

	return Peak(signal) / r
}

// ZeroCrossings returns the number of zero crossings in the signal.
// A crossing is counted when consecutive samples have opposite signs.
func ZeroCrossings(signal []float64) int {
	if len(signal) < 2 {
		return 0
	}

	var count int

	for i := 1; i < len(signal); i++ {
		if signal[i-1]*signal[i] < 0 {
			count++
		}
	}

	return count
}

// NormalizedAutocorrelation returns the autocorrelation of signal at lag,
// normalized by the geometric mean of the energies of the two overlapping
// segments. The result lies in [-1, 1]; it is 0 when lag is out of range
// or either segment is silent.
func NormalizedAutocorrelation(signal []float64, lag int) float64 {
	if lag <= 0 || lag >= len(signal) {
		return 0
	}

	head := signal[:len(signal)-lag]
	tail := signal[lag:]

	e0 := vecmath.DotProduct(head, head)
	e1 := vecmath.DotProduct(tail, tail)
	if e0 <= 0 || e1 <= 0 || math.IsInf(e0, 0) || math.IsInf(e1, 0) {
		return 0
	}

	r := vecmath.DotProduct(head, tail) / math.Sqrt(e0*e1)

	return math.Max(-1, math.Min(1, r))
}

// StreamingStats accumulates level statistics across consecutive blocks.
// Update does not allocate and may run on the audio path.
type StreamingStats struct {
	n             int
	mean          float64
	sumSq         float64
	peak          float64
	zeroCrossings int
	lastSample    float64
}

// NewStreamingStats creates a new StreamingStats accumulator.
func NewStreamingStats() *StreamingStats {
	return &StreamingStats{}
}

// Update adds a block of samples to the running statistics.
func (s *StreamingStats) Update(samples []float64) {
	for _, x := range samples {
		s.n++

		// Welford mean.
		s.mean += (x - s.mean) / float64(s.n)
		s.sumSq += x * x

		if a := math.Abs(x); a > s.peak {
			s.peak = a
		}

		if s.n > 1 && s.lastSample*x < 0 {
			s.zeroCrossings++
		}

		s.lastSample = x
	}
}

// Result computes the statistics of everything seen since the last Reset.
func (s *StreamingStats) Result() Levels {
	if s.n == 0 {
		return levelsFrom(0, 0, 0, 0, 0)
	}

	return levelsFrom(s.n, s.mean, math.Sqrt(s.sumSq/float64(s.n)), s.peak, s.zeroCrossings)
}

// Reset clears all accumulated data, allowing the StreamingStats to be reused.
func (s *StreamingStats) Reset() {
	*s = StreamingStats{}
}
