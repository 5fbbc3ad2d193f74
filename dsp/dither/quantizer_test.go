package dither

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

func TestNewQuantizerValidation(t *testing.T) {
	tests := []struct {
		name string
		bits int
		kind Type
		opts []Option
	}{
		{"bit depth too small", 1, None, nil},
		{"bit depth too large", 33, None, nil},
		{"unknown type", 16, Type(9), nil},
		{"negative amplitude", 16, Triangular, []Option{WithAmplitude(-1)}},
		{"NaN amplitude", 16, Triangular, []Option{WithAmplitude(math.NaN())}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewQuantizer(tt.bits, tt.kind, tt.opts...); !errors.Is(err, core.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	if _, err := NewQuantizer(16, Shaped, nil, WithSeed(1)); err != nil {
		t.Fatalf("nil option: %v", err)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"none", None},
		{"Rectangular", Rectangular},
		{"tpdf", Triangular},
		{" triangular ", Triangular},
		{"SHAPED", Shaped},
	}

	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseType(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}

		if again, _ := ParseType(got.String()); again != got {
			t.Errorf("String round trip of %v gave %v", got, again)
		}
	}

	if _, err := ParseType("gaussian"); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}

	if got := Type(7).String(); got != "Type(7)" {
		t.Errorf("String() = %q", got)
	}
}

func TestQuantizeNoneRoundsAndClamps(t *testing.T) {
	q, err := NewQuantizer(16, None)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{0.5, 16384},
		{-1, -32768},
		{1, 32767},
		{2, 32767},
		{-2, -32768},
		{1.4 / 32768, 1},
		{-1.6 / 32768, -2},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}

	for _, tt := range tests {
		if got := q.Quantize(tt.in); got != tt.want {
			t.Errorf("Quantize(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}

	for v := -32768; v < 32768; v += 97 {
		if got := q.Quantize(float64(v) / 32768); got != v {
			t.Fatalf("integer sample %d came back as %d", v, got)
		}
	}
}

func TestDitherErrorBounds(t *testing.T) {
	tests := []struct {
		kind  Type
		bound float64
	}{
		{Rectangular, 1.0},
		{Triangular, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			q, err := NewQuantizer(16, tt.kind, WithSeed(3))
			if err != nil {
				t.Fatal(err)
			}

			for i := range 20000 {
				x := 0.3 * math.Sin(float64(i)*0.01)
				if d := math.Abs(float64(q.Quantize(x)) - x*32768); d > tt.bound+1e-9 {
					t.Fatalf("sample %d: error %.3f steps exceeds %.1f", i, d, tt.bound)
				}
			}
		})
	}
}

func TestDitherLinearizesSubStepLevels(t *testing.T) {
	const (
		n     = 100000
		level = 0.3
	)

	for _, kind := range []Type{Triangular, Shaped} {
		t.Run(kind.String(), func(t *testing.T) {
			q, err := NewQuantizer(16, kind, WithSeed(11))
			if err != nil {
				t.Fatal(err)
			}

			sum := 0
			for range n {
				sum += q.Quantize(level / 32768)
			}

			if mean := float64(sum) / n; math.Abs(mean-level) > 0.02 {
				t.Fatalf("mean output %.4f steps, want %.1f", mean, level)
			}
		})
	}

	plain, _ := NewQuantizer(16, None)
	if got := plain.Quantize(level / 32768); got != 0 {
		t.Fatalf("undithered sub-step level should vanish, got %d", got)
	}
}

func TestShapedNoiseIsHighpass(t *testing.T) {
	const n = 1 << 14

	lowBandError := func(kind Type) float64 {
		q, err := NewQuantizer(8, kind, WithSeed(5))
		if err != nil {
			t.Fatal(err)
		}

		// Running sum of the error approximates its low-frequency content.
		acc, energy := 0.0, 0.0
		for i := range n {
			x := 0.25 * math.Sin(2*math.Pi*float64(i)/97)
			acc += float64(q.Quantize(x)) - x*q.FullScale()
			energy += acc * acc
		}

		return energy / n
	}

	flat := lowBandError(Triangular)
	shaped := lowBandError(Shaped)

	if shaped*10 > flat {
		t.Fatalf("shaped low-band error %.3g not well below flat %.3g", shaped, flat)
	}
}

func TestQuantizeStrided(t *testing.T) {
	q, _ := NewQuantizer(16, None)

	dst := make([]int, 6)
	if n := q.QuantizeStrided(dst[1:], 2, []float64{0.5, -0.5, 0.25, 1}); n != 3 {
		t.Fatalf("wrote %d samples, want 3", n)
	}

	want := []int{0, 16384, 0, -16384, 0, 8192}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst = %v, want %v", dst, want)
		}
	}

	if n := q.QuantizeStrided(dst, 0, []float64{1}); n != 0 {
		t.Fatalf("stride 0 wrote %d samples", n)
	}
}

func TestResetClearsShapingState(t *testing.T) {
	a, _ := NewQuantizer(16, Shaped, WithSeed(9), WithAmplitude(0))
	b, _ := NewQuantizer(16, Shaped, WithSeed(9), WithAmplitude(0))

	for i := range 100 {
		a.Quantize(float64(i) * 1e-5)
	}

	a.Reset()

	for i := range 50 {
		x := 0.1 + float64(i)*3.3e-6
		if ga, gb := a.Quantize(x), b.Quantize(x); ga != gb {
			t.Fatalf("sample %d: %d after Reset, %d fresh", i, ga, gb)
		}
	}

	if a.BitDepth() != 16 || a.Type() != Shaped || a.FullScale() != 32768 {
		t.Fatal("accessors do not reflect construction")
	}
}
