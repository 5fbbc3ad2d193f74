package biquad

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

const defaultQ = 1 / math.Sqrt2

// Type selects one of the supported filter responses.
type Type int

const (
	Lowpass Type = iota
	Highpass
	Bandpass
	Notch
	Peak
	LowShelf
	HighShelf
	Allpass
)

var typeNames = [...]string{
	Lowpass:   "lowpass",
	Highpass:  "highpass",
	Bandpass:  "bandpass",
	Notch:     "notch",
	Peak:      "peak",
	LowShelf:  "lowshelf",
	HighShelf: "highshelf",
	Allpass:   "allpass",
}

// String returns the lower-case response name.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}

	return typeNames[t]
}

// Valid reports whether t names a supported response.
func (t Type) Valid() bool {
	return t >= Lowpass && t <= Allpass
}

// ParseType parses a response name as produced by [Type.String]. Matching is
// case-insensitive and ignores '-' and '_' separators.
func ParseType(name string) (Type, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name))
	if key == "peaking" {
		key = "peak"
	}

	for i, n := range typeNames {
		if n == key {
			return Type(i), nil
		}
	}

	return 0, fmt.Errorf("%w: unknown filter type %q", core.ErrInvalidArgument, name)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown filter type %d", core.ErrInvalidArgument, int(t))
	}

	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using [ParseType].
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

// Coefficients holds the normalized transfer function of one biquad.
type Coefficients struct {
	A0, A1, A2 float64 // feed-forward
	B1, B2     float64 // feedback, B0 normalized to 1
}

// Identity returns the pass-through section.
func Identity() Coefficients {
	return Coefficients{A0: 1}
}

// Normalize divides the raw coefficients by b0. When |b0| is below
// [core.CoefficientEpsilon] it is treated as 1. A non-finite result falls back
// to [Identity].
func Normalize(a0, a1, a2, b0, b1, b2 float64) Coefficients {
	if math.Abs(b0) < core.CoefficientEpsilon || math.IsNaN(b0) {
		b0 = 1
	}

	c := Coefficients{
		A0: a0 / b0,
		A1: a1 / b0,
		A2: a2 / b0,
		B1: b1 / b0,
		B2: b2 / b0,
	}
	if !c.finite() {
		return Identity()
	}

	return c
}

func (c Coefficients) finite() bool {
	return core.IsFinite(c.A0) && core.IsFinite(c.A1) && core.IsFinite(c.A2) &&
		core.IsFinite(c.B1) && core.IsFinite(c.B2)
}

// Design returns the coefficients for response t. gainDB is ignored by
// responses that do not use it. Degenerate input (frequency outside
// (0, Nyquist), non-positive sample rate, non-finite values) yields
// [Identity]; a non-positive Q is replaced by 1/sqrt(2).
func Design(t Type, freq, sampleRate, q, gainDB float64) Coefficients {
	switch t {
	case Lowpass:
		return LowpassCoefficients(freq, sampleRate, q)
	case Highpass:
		return HighpassCoefficients(freq, sampleRate, q)
	case Bandpass:
		return BandpassCoefficients(freq, sampleRate, q)
	case Notch:
		return NotchCoefficients(freq, sampleRate, q)
	case Peak:
		return PeakingCoefficients(freq, sampleRate, q, gainDB)
	case LowShelf:
		return LowShelfCoefficients(freq, sampleRate, q, gainDB)
	case HighShelf:
		return HighShelfCoefficients(freq, sampleRate, q, gainDB)
	case Allpass:
		return AllpassCoefficients(freq, sampleRate, q)
	default:
		return Identity()
	}
}

// LowpassCoefficients designs an RBJ lowpass.
func LowpassCoefficients(freq, sampleRate, q float64) Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok {
		return Identity()
	}

	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * normalizedQ(q))

	return Normalize(
		(1-cw)/2, 1-cw, (1-cw)/2,
		1+alpha, -2*cw, 1-alpha,
	)
}

// HighpassCoefficients designs an RBJ highpass.
func HighpassCoefficients(freq, sampleRate, q float64) Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok {
		return Identity()
	}

	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * normalizedQ(q))

	return Normalize(
		(1+cw)/2, -(1 + cw), (1+cw)/2,
		1+alpha, -2*cw, 1-alpha,
	)
}

// BandpassCoefficients designs a constant 0 dB peak-gain bandpass.
func BandpassCoefficients(freq, sampleRate, q float64) Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok {
		return Identity()
	}

	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * normalizedQ(q))

	return Normalize(
		alpha, 0, -alpha,
		1+alpha, -2*cw, 1-alpha,
	)
}

// NotchCoefficients designs a notch centered at freq.
func NotchCoefficients(freq, sampleRate, q float64) Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok {
		return Identity()
	}

	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * normalizedQ(q))

	return Normalize(
		1, -2*cw, 1,
		1+alpha, -2*cw, 1-alpha,
	)
}

// AllpassCoefficients designs a second-order allpass centered at freq.
func AllpassCoefficients(freq, sampleRate, q float64) Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok {
		return Identity()
	}

	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * normalizedQ(q))

	return Normalize(
		1-alpha, -2*cw, 1+alpha,
		1+alpha, -2*cw, 1-alpha,
	)
}

// PeakingCoefficients designs a peaking EQ with gainDB at freq.
func PeakingCoefficients(freq, sampleRate, q, gainDB float64) Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok || !core.IsFinite(gainDB) {
		return Identity()
	}

	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * normalizedQ(q))
	a := math.Pow(10, gainDB/40)

	return Normalize(
		1+alpha*a, -2*cw, 1-alpha*a,
		1+alpha/a, -2*cw, 1-alpha/a,
	)
}

// LowShelfCoefficients designs a low shelf with gainDB below freq.
func LowShelfCoefficients(freq, sampleRate, q, gainDB float64) Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok || !core.IsFinite(gainDB) {
		return Identity()
	}

	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * normalizedQ(q))
	a := math.Pow(10, gainDB/40)
	beta := 2 * math.Sqrt(a) * alpha

	return Normalize(
		a*((a+1)-(a-1)*cw+beta),
		2*a*((a-1)-(a+1)*cw),
		a*((a+1)-(a-1)*cw-beta),
		(a+1)+(a-1)*cw+beta,
		-2*((a-1)+(a+1)*cw),
		(a+1)+(a-1)*cw-beta,
	)
}

// HighShelfCoefficients designs a high shelf with gainDB above freq.
func HighShelfCoefficients(freq, sampleRate, q, gainDB float64) Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok || !core.IsFinite(gainDB) {
		return Identity()
	}

	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * normalizedQ(q))
	a := math.Pow(10, gainDB/40)
	beta := 2 * math.Sqrt(a) * alpha

	return Normalize(
		a*((a+1)+(a-1)*cw+beta),
		-2*a*((a-1)+(a+1)*cw),
		a*((a+1)+(a-1)*cw-beta),
		(a+1)-(a-1)*cw+beta,
		2*((a-1)-(a+1)*cw),
		(a+1)-(a-1)*cw-beta,
	)
}

// FirstOrderHighpass designs a one-pole/one-zero highpass (bilinear
// transform, 6 dB/octave) expressed as a biquad with A2 = B2 = 0.
func FirstOrderHighpass(freq, sampleRate float64) Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok {
		return Identity()
	}

	k := math.Tan(w0 / 2)

	return Normalize(
		1, -1, 0,
		1+k, k-1, 0,
	)
}

func normalizedW0(freq, sampleRate float64) (float64, bool) {
	if sampleRate <= 0 || !core.IsFinite(sampleRate) {
		return 0, false
	}

	if freq <= 0 || freq >= sampleRate/2 || !core.IsFinite(freq) {
		return 0, false
	}

	return 2 * math.Pi * freq / sampleRate, true
}

func normalizedQ(q float64) float64 {
	if q <= 0 || !core.IsFinite(q) {
		return defaultQ
	}

	return q
}
