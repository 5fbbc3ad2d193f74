package biquad

import (
	"math"
	"math/cmplx"
	"testing"
)

func TestMagnitudeSquaredMatchesResponse(t *testing.T) {
	c := testCoefficients()
	sr := 48000.0

	for _, freq := range []float64{100, 500, 1000, 5000, 10000, 20000} {
		h := c.Response(freq, sr)
		fromResponse := real(h)*real(h) + imag(h)*imag(h)
		fromClosed := c.MagnitudeSquared(freq, sr)
		if !almostEqual(fromClosed, fromResponse, 1e-10) {
			t.Errorf("freq=%v: MagnitudeSquared=%.15f, |Response|^2=%.15f", freq, fromClosed, fromResponse)
		}
	}
}

func TestMagnitudeDBMatchesMagnitudeSquared(t *testing.T) {
	c := PeakingCoefficients(2000, 48000, 0.9, -4)

	for _, freq := range []float64{100, 1000, 10000} {
		db := c.MagnitudeDB(freq, 48000)
		fromSq := 10 * math.Log10(c.MagnitudeSquared(freq, 48000))
		if !almostEqual(db, fromSq, 1e-12) {
			t.Errorf("freq=%v: MagnitudeDB=%.15f, want %.15f", freq, db, fromSq)
		}
	}
}

func TestPhaseMatchesResponse(t *testing.T) {
	c := testCoefficients()

	for _, freq := range []float64{100, 1000, 10000} {
		if got, want := c.Phase(freq, 48000), cmplx.Phase(c.Response(freq, 48000)); !almostEqual(got, want, 1e-12) {
			t.Errorf("freq=%v: Phase=%v, want %v", freq, got, want)
		}
	}
}

func TestIdentityResponse(t *testing.T) {
	c := Identity()

	for _, freq := range []float64{0, 100, 1000, 10000, 24000} {
		if mag := cmplx.Abs(c.Response(freq, 48000)); !almostEqual(mag, 1, 1e-12) {
			t.Errorf("freq=%v: |H|=%v, want 1", freq, mag)
		}
	}
}

func TestResponseMatchesImpulseDFT(t *testing.T) {
	c := PeakingCoefficients(3000, 48000, 2, 9)
	ir := NewFilter(c).ImpulseResponse(8192)

	for _, freq := range []float64{250, 3000, 9000} {
		w := 2 * math.Pi * freq / 48000
		var sum complex128
		for n, h := range ir {
			sum += complex(h, 0) * cmplx.Exp(complex(0, -w*float64(n)))
		}

		if got, want := cmplx.Abs(sum), cmplx.Abs(c.Response(freq, 48000)); !almostEqual(got, want, 1e-6) {
			t.Errorf("freq=%v: DFT |H|=%v, Response |H|=%v", freq, got, want)
		}
	}
}
