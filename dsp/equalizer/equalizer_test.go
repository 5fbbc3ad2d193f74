package equalizer

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/cwbudde/algo-rtfx/dsp/core"
	"github.com/cwbudde/algo-rtfx/dsp/filter/biquad"
	"github.com/cwbudde/algo-rtfx/internal/testutil"
)

func newTestEQ(t *testing.T, bands int) *Equalizer {
	t.Helper()

	e, err := New(bands, 48000)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return e
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name       string
		bands      int
		sampleRate uint32
		wantErr    bool
	}{
		{"10 bands 48k", 10, 48000, false},
		{"1 band", 1, 44100, false},
		{"31 bands", 31, 96000, false},
		{"no bands", 0, 48000, true},
		{"32 bands", 32, 48000, true},
		{"rate too low", 10, 7999, true},
		{"rate too high", 10, 384001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.bands, tt.sampleRate)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil {
				if !errors.Is(err, core.ErrInvalidArgument) {
					t.Errorf("error %v does not wrap ErrInvalidArgument", err)
				}

				return
			}

			if e.BandCount() != tt.bands || e.SampleRate() != tt.sampleRate {
				t.Errorf("BandCount/SampleRate = %d/%d", e.BandCount(), e.SampleRate())
			}
		})
	}
}

func TestDefaultBands(t *testing.T) {
	e := newTestEQ(t, 10)

	for i, b := range e.Bands() {
		want := 31.25 * math.Pow(2, float64(i))
		if math.Abs(b.Frequency-want) > 1e-9*want {
			t.Errorf("band %d frequency = %g, want %g", i, b.Frequency, want)
		}

		if b.GainDB != 0 || b.Q != defaultQ || b.Type != biquad.Peak || !b.Enabled {
			t.Errorf("band %d = %+v, want default peak band", i, b)
		}
	}

	single := newTestEQ(t, 1)
	if f := single.BandFrequency(0); f != defaultFrequency {
		t.Errorf("single band frequency = %g, want %g", f, defaultFrequency)
	}

	low, err := New(10, 8000)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if f := low.BandFrequency(9); f != maxFrequency(8000) {
		t.Errorf("top band at 8 kHz sample rate = %g, want %g", f, maxFrequency(8000))
	}
}

func TestSetterClamping(t *testing.T) {
	tests := []struct {
		name string
		set  func(e *Equalizer)
		get  func(e *Equalizer) float64
		want float64
	}{
		{"gain above range", func(e *Equalizer) { e.SetBandGain(2, 30) }, func(e *Equalizer) float64 { return e.BandGain(2) }, 24},
		{"gain below range", func(e *Equalizer) { e.SetBandGain(2, -100) }, func(e *Equalizer) float64 { return e.BandGain(2) }, -24},
		{"gain in range", func(e *Equalizer) { e.SetBandGain(2, -3.5) }, func(e *Equalizer) float64 { return e.BandGain(2) }, -3.5},
		{"gain NaN ignored", func(e *Equalizer) { e.SetBandGain(2, math.NaN()) }, func(e *Equalizer) float64 { return e.BandGain(2) }, 0},
		{"gain +Inf", func(e *Equalizer) { e.SetBandGain(2, math.Inf(1)) }, func(e *Equalizer) float64 { return e.BandGain(2) }, 24},
		{"q below range", func(e *Equalizer) { e.SetBandQ(1, 0.01) }, func(e *Equalizer) float64 { return e.BandQ(1) }, 0.1},
		{"q above range", func(e *Equalizer) { e.SetBandQ(1, 50) }, func(e *Equalizer) float64 { return e.BandQ(1) }, 10},
		{"frequency below range", func(e *Equalizer) { e.SetBandFrequency(0, 5) }, func(e *Equalizer) float64 { return e.BandFrequency(0) }, 20},
		{"frequency above Nyquist", func(e *Equalizer) { e.SetBandFrequency(0, 30000) }, func(e *Equalizer) float64 { return e.BandFrequency(0) }, maxFrequency(48000)},
		{"master above range", func(e *Equalizer) { e.SetMasterGain(40) }, func(e *Equalizer) float64 { return e.MasterGain() }, 24},
		{"master below range", func(e *Equalizer) { e.SetMasterGain(-40) }, func(e *Equalizer) float64 { return e.MasterGain() }, -24},
		{"master NaN ignored", func(e *Equalizer) { e.SetMasterGain(math.NaN()) }, func(e *Equalizer) float64 { return e.MasterGain() }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEQ(t, 10)
			tt.set(e)

			if got := tt.get(e); got != tt.want {
				t.Errorf("got %g, want %g", got, tt.want)
			}
		})
	}
}

func TestOutOfRangeIndexIsNoOp(t *testing.T) {
	e := newTestEQ(t, 4)
	before := e.Bands()

	e.SetBandGain(4, 6)
	e.SetBandGain(-1, 6)
	e.SetBandFrequency(10, 500)
	e.SetBandQ(-3, 2)
	e.SetBandType(4, biquad.Lowpass)
	e.SetBandEnabled(99, false)
	e.SetBand(4, BandConfig{Frequency: 100, GainDB: 3, Q: 1})
	e.SetBandType(0, biquad.Type(77))

	after := e.Bands()
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("band %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}

	if _, ok := e.Band(4); ok {
		t.Error("Band(4) reported ok on a 4-band equalizer")
	}

	if e.BandGain(7) != 0 || e.BandEnabled(-1) {
		t.Error("out-of-range getters should return zero values")
	}
}

func TestSetBand(t *testing.T) {
	e := newTestEQ(t, 3)
	e.SetBand(1, BandConfig{Frequency: 50000, GainDB: -40, Q: 2, Type: biquad.HighShelf, Enabled: false})

	got, ok := e.Band(1)
	if !ok {
		t.Fatal("Band(1) not found")
	}

	want := BandConfig{Frequency: maxFrequency(48000), GainDB: -24, Q: 2, Type: biquad.HighShelf, Enabled: false}
	if got != want {
		t.Errorf("Band(1) = %+v, want %+v", got, want)
	}
}

func TestBypassIsBitExact(t *testing.T) {
	e := newTestEQ(t, 10)
	e.SetBandGain(3, 12)
	e.SetMasterGain(-6)
	e.SetBypass(true)

	if !e.Bypassed() {
		t.Fatal("Bypassed() = false")
	}

	in := testutil.DeterministicNoise(1, 0.8, 1024)
	out := make([]float64, len(in))
	e.Process(in, out)
	testutil.RequireSliceNearlyEqual(t, out, in, 0)

	outL := make([]float64, len(in))
	outR := make([]float64, len(in))
	e.ProcessStereo(in, in, outL, outR)
	testutil.RequireSliceNearlyEqual(t, outL, in, 0)
	testutil.RequireSliceNearlyEqual(t, outR, in, 0)
}

func TestFlatIsTransparent(t *testing.T) {
	e := newTestEQ(t, 10)

	in := testutil.DeterministicNoise(2, 0.5, 512)
	out := make([]float64, len(in))
	e.Process(in, out)

	testutil.RequireSliceNearlyEqual(t, out, in, 0)
}

func TestPeakBandBoost(t *testing.T) {
	e := newTestEQ(t, 10)
	e.SetBandGain(5, 6) // 1 kHz

	in := testutil.DeterministicSine(1000, 48000, 0.25, 48000)
	out := make([]float64, len(in))
	e.Process(in, out)

	gotDB := 20 * math.Log10(testutil.RMS(out[24000:])/testutil.RMS(in[24000:]))
	if math.Abs(gotDB-6) > 0.1 {
		t.Errorf("boost at 1 kHz = %.3f dB, want 6 dB", gotDB)
	}

	if r := e.Response(1000); math.Abs(r-6) > 1e-9 {
		t.Errorf("Response(1000) = %g, want 6", r)
	}
}

func TestMasterGain(t *testing.T) {
	e := newTestEQ(t, 10)
	e.SetMasterGain(-6)

	in := testutil.DeterministicNoise(3, 0.5, 256)
	out := make([]float64, len(in))
	e.Process(in, out)

	g := math.Pow(10, -6.0/20)
	for i := range in {
		if math.Abs(out[i]-g*in[i]) > 1e-12 {
			t.Fatalf("out[%d] = %g, want %g", i, out[i], g*in[i])
		}
	}

	if r := e.Response(100); math.Abs(r+6) > 1e-12 {
		t.Errorf("Response() = %g, want -6", r)
	}
}

func TestActiveBandSelection(t *testing.T) {
	e := newTestEQ(t, 5)
	e.SetBandGain(0, 0.005)          // below the activity threshold
	e.SetBandGain(1, 3)              // active
	e.SetBandType(2, biquad.Lowpass) // 0 dB: skipped like any other type
	e.SetBandGain(3, 6)              // disabled below
	e.SetBandEnabled(3, false)
	e.SetBandType(4, biquad.Highpass)
	e.SetBandGain(4, -2)

	e.Process(make([]float64, 8), make([]float64, 8))

	if len(e.active) != 2 || e.active[0] != 1 || e.active[1] != 4 {
		t.Errorf("active bands = %v, want [1 4]", e.active)
	}
}

func TestZeroGainPassBandsAreTransparent(t *testing.T) {
	for _, typ := range []biquad.Type{biquad.Lowpass, biquad.Highpass, biquad.Bandpass, biquad.Notch, biquad.Allpass} {
		t.Run(typ.String(), func(t *testing.T) {
			e := newTestEQ(t, 1)
			e.SetBand(0, BandConfig{Frequency: 500, Q: 0.707, Type: typ, Enabled: true})

			in := testutil.DeterministicNoise(5, 0.5, 1024)
			out := make([]float64, len(in))
			e.Process(in, out)

			testutil.RequireSliceNearlyEqual(t, out, in, 0)
		})
	}
}

func TestBatchUpdateDefersWhileLocked(t *testing.T) {
	e := newTestEQ(t, 10)
	in := testutil.DeterministicSine(1000, 48000, 0.25, 256)
	out := make([]float64, len(in))

	// Build clean coefficients first.
	e.Process(in, out)

	u := e.BeginParameterUpdate()
	u.SetBandGain(5, 12)
	u.SetBandQ(5, 2)

	// The audio side cannot take the lock: it keeps the flat coefficients.
	e.Process(in, out)
	testutil.RequireSliceNearlyEqual(t, out, in, 0)

	if e.DeferredUpdates() != 0 {
		t.Errorf("DeferredUpdates() = %d before End, the state is not dirty yet", e.DeferredUpdates())
	}

	u.End()
	u.End() // idempotent

	e.Process(in, out)

	if e.BandGain(5) != 12 || e.BandQ(5) != 2 {
		t.Errorf("batch not applied: gain %g q %g", e.BandGain(5), e.BandQ(5))
	}

	if len(e.active) != 1 {
		t.Errorf("active bands after batch = %v", e.active)
	}
}

func TestDeferredUpdateCounter(t *testing.T) {
	e := newTestEQ(t, 10)
	in := make([]float64, 64)
	out := make([]float64, 64)

	e.SetBandGain(0, 3)

	e.mu.Lock()
	e.Process(in, out)
	e.Process(in, out)
	e.mu.Unlock()

	if got := e.DeferredUpdates(); got != 2 {
		t.Fatalf("DeferredUpdates() = %d, want 2", got)
	}

	e.Process(in, out)

	if e.state.Load() != stateClean || len(e.active) != 1 {
		t.Errorf("rebuild did not happen after the lock was released")
	}
}

func TestScopedUpdate(t *testing.T) {
	e := newTestEQ(t, 10)

	e.Update(func(u *Update) {
		for i := range u.BandCount() {
			u.SetBandGain(i, float64(i))
		}

		u.SetBandType(0, biquad.LowShelf)
		u.SetBandEnabled(9, false)
	})

	for i := range 10 {
		if e.BandGain(i) != float64(i) {
			t.Errorf("band %d gain = %g", i, e.BandGain(i))
		}
	}

	if e.BandType(0) != biquad.LowShelf || e.BandEnabled(9) {
		t.Error("batched type/enable changes missing")
	}

	// The lock is free again.
	e.SetMasterGain(1)
	e.SetBandGain(0, 0)
}

func TestUpdateAfterEndPanics(t *testing.T) {
	e := newTestEQ(t, 2)
	u := e.BeginParameterUpdate()
	u.End()

	defer func() {
		if recover() == nil {
			t.Error("using an ended Update did not panic")
		}
	}()

	u.SetBandGain(0, 1)
}

func TestPresetRoundTrip(t *testing.T) {
	rock, err := LookupPreset("rock")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		bands int
	}{
		{"same size", 10},
		{"truncated", 5},
		{"padded", 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEQ(t, tt.bands)
			e.LoadPreset(rock)

			got := e.SavePreset("saved")
			if got.Name != "saved" || len(got.Gains) != tt.bands {
				t.Fatalf("SavePreset() = %+v", got)
			}

			for i, g := range got.Gains {
				want := 0.0
				if i < len(rock.Gains) {
					want = rock.Gains[i]
				}

				if g != want {
					t.Errorf("gain %d = %g, want %g", i, g, want)
				}
			}
		})
	}
}

func TestLoadPresetClamps(t *testing.T) {
	e := newTestEQ(t, 3)
	e.LoadPreset(Preset{Name: "hot", Gains: []float64{30, -30, math.NaN()}})

	if e.BandGain(0) != 24 || e.BandGain(1) != -24 || e.BandGain(2) != 0 {
		t.Errorf("gains = %v", e.SavePreset("").Gains)
	}

	e.ResetAllBands()

	for i := range 3 {
		if e.BandGain(i) != 0 {
			t.Errorf("band %d gain = %g after ResetAllBands", i, e.BandGain(i))
		}
	}
}

func TestSetSampleRate(t *testing.T) {
	e := newTestEQ(t, 10)

	if err := e.SetSampleRate(1000); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("SetSampleRate(1000) error = %v", err)
	}

	if err := e.SetSampleRate(8000); err != nil {
		t.Fatalf("SetSampleRate(8000) error = %v", err)
	}

	if e.SampleRate() != 8000 || e.BandCount() != 10 {
		t.Errorf("SampleRate/BandCount = %d/%d", e.SampleRate(), e.BandCount())
	}

	if f := e.BandFrequency(9); f != maxFrequency(8000) {
		t.Errorf("top band = %g, want %g", f, maxFrequency(8000))
	}
}

// Changing parameters keeps the filter history; only Reset clears it.
func TestStatePreservedAcrossChanges(t *testing.T) {
	e := newTestEQ(t, 1)
	e.SetBandType(0, biquad.Lowpass)
	e.SetBandGain(0, 3)

	noise := testutil.DeterministicNoise(4, 0.5, 256)
	out := make([]float64, len(noise))
	e.Process(noise, out)

	e.SetBandFrequency(0, 2000)

	zeros := make([]float64, 16)
	e.Process(zeros, out[:16])

	if testutil.RMS(out[:16]) == 0 {
		t.Fatal("history was discarded on a parameter change")
	}

	e.Process(noise, out)
	e.Reset()
	e.Process(zeros, out[:16])

	for i, y := range out[:16] {
		if y != 0 {
			t.Fatalf("out[%d] = %g after Reset, want 0", i, y)
		}
	}
}

func TestProcessStereo(t *testing.T) {
	e := newTestEQ(t, 10)
	e.SetBandGain(2, 9)
	e.SetBandGain(7, -9)

	in := testutil.DeterministicNoise(5, 0.5, 512)
	silent := make([]float64, len(in))
	outL := make([]float64, len(in))
	outR := make([]float64, len(in))

	e.ProcessStereo(in, silent, outL, outR)

	for i, y := range outR {
		if y != 0 {
			t.Fatalf("right channel leaked at %d: %g", i, y)
		}
	}

	mono := newTestEQ(t, 10)
	mono.SetBandGain(2, 9)
	mono.SetBandGain(7, -9)

	want := make([]float64, len(in))
	mono.Process(in, want)

	testutil.RequireSliceNearlyEqual(t, outL, want, 0)
}

func TestStressFiniteness(t *testing.T) {
	e := newTestEQ(t, 10)
	e.LoadPreset(Preset{Gains: []float64{12, -12, 12, -12, 12, -12, 12, -12, 12, -12}})
	e.SetMasterGain(12)

	stress := testutil.Stress()
	in := make([]float64, 0, 64*len(stress))

	for range 64 {
		in = append(in, stress...)
	}

	out := make([]float64, len(in))
	e.Process(in, out)
	testutil.RequireFinite(t, out)

	outL := make([]float64, len(in))
	outR := make([]float64, len(in))
	e.ProcessStereo(in, in, outL, outR)
	testutil.RequireFinite(t, outL)
	testutil.RequireFinite(t, outR)

	// Flat equalizer: no band runs, the sanitizer still catches everything.
	flat := newTestEQ(t, 10)
	flat.Process(in, out)
	testutil.RequireFinite(t, out)
}

func TestConcurrentWriters(t *testing.T) {
	e := newTestEQ(t, 10)

	var wg sync.WaitGroup

	stop := make(chan struct{})

	writer := func(fn func(i int)) {
		defer wg.Done()

		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				fn(i)
			}
		}
	}

	wg.Add(3)

	go writer(func(i int) { e.SetBandGain(i%10, float64(i%25)-12) })
	go writer(func(i int) {
		e.Update(func(u *Update) {
			u.SetBandFrequency(i%10, 100+float64(i%50)*100)
			u.SetBandQ(i%10, 0.5+float64(i%4))
		})
	})
	go writer(func(i int) {
		e.SetMasterGain(float64(i%7) - 3)
		e.SetBypass(i%13 == 0)
		_ = e.String()
	})

	in := testutil.DeterministicNoise(6, 0.5, 128)
	out := make([]float64, len(in))

	for range 3000 {
		e.Process(in, out)
		testutil.RequireFinite(t, out)
	}

	close(stop)
	wg.Wait()
}

func TestString(t *testing.T) {
	e := newTestEQ(t, 2)
	e.SetBandEnabled(1, false)

	s := e.String()
	for _, want := range []string{"2 bands", "48000 Hz", "peak", "off"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func BenchmarkProcess10Bands(b *testing.B) {
	e, err := New(10, 48000)
	if err != nil {
		b.Fatal(err)
	}

	e.LoadPreset(builtinPresets[1])

	in := testutil.DeterministicNoise(1, 0.5, 512)
	out := make([]float64, len(in))

	b.ReportAllocs()

	for b.Loop() {
		e.Process(in, out)
	}
}
