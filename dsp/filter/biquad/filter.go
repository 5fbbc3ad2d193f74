package biquad

import (
	"math"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

// Filter is a single biquad with its coefficients and recursive state for a
// mono (or left) channel and a right channel.
//
// The recursion is
//
//	w  = x - B1*y1 - B2*y2
//	y  = A0*w + A1*y1 + A2*y2
//	y2 = y1
//	y1 = w  (snapped to zero below core.DenormalThreshold)
//
// A non-finite output resets the affected channel and yields 0, so the
// filter recovers by itself from NaN or overflowing input.
//
// Changing coefficients keeps the recursive state. A Filter is not safe for
// concurrent use; see package rt for guarded wrappers.
type Filter struct {
	coeffs Coefficients

	y1, y2   float64
	y1R, y2R float64
}

// NewFilter returns a Filter with the given coefficients and zero state.
func NewFilter(c Coefficients) *Filter {
	return &Filter{coeffs: c}
}

// Coefficients returns the current normalized coefficients.
func (f *Filter) Coefficients() Coefficients {
	return f.coeffs
}

// SetNormalized installs already-normalized coefficients. Non-finite sets are
// replaced by [Identity].
func (f *Filter) SetNormalized(c Coefficients) {
	if !c.finite() {
		c = Identity()
	}

	f.coeffs = c
}

// SetCoefficients normalizes the raw transfer-function coefficients by b0
// and stores them. See [Normalize].
func (f *Filter) SetCoefficients(a0, a1, a2, b0, b1, b2 float64) {
	f.coeffs = Normalize(a0, a1, a2, b0, b1, b2)
}

// Calculate designs response t into the filter. See [Design].
func (f *Filter) Calculate(t Type, freq, sampleRate, q, gainDB float64) {
	f.coeffs = Design(t, freq, sampleRate, q, gainDB)
}

// CalculateLowpass designs a lowpass into the filter.
func (f *Filter) CalculateLowpass(freq, sampleRate, q float64) {
	f.coeffs = LowpassCoefficients(freq, sampleRate, q)
}

// CalculateHighpass designs a highpass into the filter.
func (f *Filter) CalculateHighpass(freq, sampleRate, q float64) {
	f.coeffs = HighpassCoefficients(freq, sampleRate, q)
}

// CalculateBandpass designs a bandpass into the filter.
func (f *Filter) CalculateBandpass(freq, sampleRate, q float64) {
	f.coeffs = BandpassCoefficients(freq, sampleRate, q)
}

// CalculateNotch designs a notch into the filter.
func (f *Filter) CalculateNotch(freq, sampleRate, q float64) {
	f.coeffs = NotchCoefficients(freq, sampleRate, q)
}

// CalculatePeaking designs a peaking EQ into the filter.
func (f *Filter) CalculatePeaking(freq, sampleRate, q, gainDB float64) {
	f.coeffs = PeakingCoefficients(freq, sampleRate, q, gainDB)
}

// CalculateLowShelf designs a low shelf into the filter.
func (f *Filter) CalculateLowShelf(freq, sampleRate, q, gainDB float64) {
	f.coeffs = LowShelfCoefficients(freq, sampleRate, q, gainDB)
}

// CalculateHighShelf designs a high shelf into the filter.
func (f *Filter) CalculateHighShelf(freq, sampleRate, q, gainDB float64) {
	f.coeffs = HighShelfCoefficients(freq, sampleRate, q, gainDB)
}

// CalculateAllpass designs an allpass into the filter.
func (f *Filter) CalculateAllpass(freq, sampleRate, q float64) {
	f.coeffs = AllpassCoefficients(freq, sampleRate, q)
}

// ProcessSample filters one sample of the mono (left) channel.
func (f *Filter) ProcessSample(x float64) float64 {
	c := &f.coeffs

	w := x - c.B1*f.y1 - c.B2*f.y2
	y := c.A0*w + c.A1*f.y1 + c.A2*f.y2

	if math.IsNaN(y) || math.IsInf(y, 0) {
		f.y1, f.y2 = 0, 0
		return 0
	}

	f.y2 = f.y1
	f.y1 = core.FlushDenormals(w)

	return y
}

// ProcessSampleRight filters one sample of the right channel.
func (f *Filter) ProcessSampleRight(x float64) float64 {
	c := &f.coeffs

	w := x - c.B1*f.y1R - c.B2*f.y2R
	y := c.A0*w + c.A1*f.y1R + c.A2*f.y2R

	if math.IsNaN(y) || math.IsInf(y, 0) {
		f.y1R, f.y2R = 0, 0
		return 0
	}

	f.y2R = f.y1R
	f.y1R = core.FlushDenormals(w)

	return y
}

// Process filters buf in place on the mono channel. Zero-alloc.
func (f *Filter) Process(buf []float64) {
	f.y1, f.y2 = processBlock(&f.coeffs, f.y1, f.y2, buf, buf)
}

// ProcessTo filters src into dst on the mono channel. dst must be at least as
// long as src and may alias it.
func (f *Filter) ProcessTo(dst, src []float64) {
	if len(src) == 0 {
		return
	}

	_ = dst[len(src)-1] // bounds check hint
	f.y1, f.y2 = processBlock(&f.coeffs, f.y1, f.y2, dst, src)
}

// ProcessStereo filters left and right in place using independent state.
func (f *Filter) ProcessStereo(left, right []float64) {
	f.y1, f.y2 = processBlock(&f.coeffs, f.y1, f.y2, left, left)
	f.y1R, f.y2R = processBlock(&f.coeffs, f.y1R, f.y2R, right, right)
}

// ProcessStereoTo filters srcL/srcR into dstL/dstR. Aliasing is permitted.
func (f *Filter) ProcessStereoTo(dstL, dstR, srcL, srcR []float64) {
	f.ProcessTo(dstL, srcL)

	if len(srcR) == 0 {
		return
	}

	_ = dstR[len(srcR)-1]
	f.y1R, f.y2R = processBlock(&f.coeffs, f.y1R, f.y2R, dstR, srcR)
}

func processBlock(c *Coefficients, y1, y2 float64, dst, src []float64) (float64, float64) {
	a0, a1, a2 := c.A0, c.A1, c.A2
	b1, b2 := c.B1, c.B2

	for i, x := range src {
		w := x - b1*y1 - b2*y2
		y := a0*w + a1*y1 + a2*y2

		if math.IsNaN(y) || math.IsInf(y, 0) {
			y1, y2 = 0, 0
			dst[i] = 0

			continue
		}

		y2 = y1
		if w > -core.DenormalThreshold && w < core.DenormalThreshold {
			w = 0
		}
		y1 = w
		dst[i] = y
	}

	return y1, y2
}

// Reset clears the state of both channels.
func (f *Filter) Reset() {
	f.y1, f.y2 = 0, 0
	f.y1R, f.y2R = 0, 0
}

// State returns the recursive state as [y1, y2, y1R, y2R].
func (f *Filter) State() [4]float64 {
	return [4]float64{f.y1, f.y2, f.y1R, f.y2R}
}

// SetState restores a previously saved state.
func (f *Filter) SetState(state [4]float64) {
	f.y1, f.y2 = state[0], state[1]
	f.y1R, f.y2R = state[2], state[3]
}
