package core

import "math"

const (
	// DenormalThreshold is the magnitude below which recursive filter state is
	// snapped to exact zero.
	DenormalThreshold = 1e-20

	// CoefficientEpsilon is the smallest normalizing coefficient accepted as a
	// divisor. Smaller values are treated as 1.
	CoefficientEpsilon = 1e-12
)

// Clamp limits value to the inclusive range [min, max].
func Clamp(value, min, max float64) float64 {
	if min > max {
		min, max = max, min
	}

	if value < min {
		return min
	}

	if value > max {
		return max
	}

	return value
}

// FlushDenormals converts tiny denormal-like values to exact zero.
// This can reduce denormal-related CPU slowdowns in hot DSP loops.
func FlushDenormals(x float64) float64 {
	if x > -DenormalThreshold && x < DenormalThreshold {
		return 0
	}

	return x
}

// IsFinite reports whether x is neither NaN nor ±Inf.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Sanitize returns x, or 0 when x is NaN or infinite.
func Sanitize(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}

	return x
}

// SanitizeBlock replaces every non-finite sample in buf with 0 and reports
// whether any replacement happened.
func SanitizeBlock(buf []float64) bool {
	replaced := false

	for i, x := range buf {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			buf[i] = 0
			replaced = true
		}
	}

	return replaced
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// DBToLinear converts dB to linear amplitude (20*log10 convention).
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts linear amplitude to dB (20*log10 convention).
// Returns -Inf for zero and NaN for negative values.
func LinearToDB(linear float64) float64 {
	if linear < 0 {
		return math.NaN()
	}

	if linear == 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(linear)
}
