package dynamics

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-rtfx/dsp/core"
	"github.com/cwbudde/algo-rtfx/internal/testutil"
)

func newTestLimiter(t *testing.T, channels int, modify func(*LimiterConfig)) *SafetyLimiter {
	t.Helper()

	l, err := NewSafetyLimiter(48000, channels)
	if err != nil {
		t.Fatalf("NewSafetyLimiter() error = %v", err)
	}

	if modify != nil {
		cfg := l.Config()
		modify(&cfg)

		if err := l.SetConfig(cfg); err != nil {
			t.Fatalf("SetConfig() error = %v", err)
		}
	}

	return l
}

func TestNewSafetyLimiter(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		channels   int
		wantErr    bool
	}{
		{"mono", 48000, 1, false},
		{"stereo", 44100, 2, false},
		{"bad rate", 100, 1, true},
		{"bad channels", 48000, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewSafetyLimiter(tt.sampleRate, tt.channels)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSafetyLimiter() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil {
				if !errors.Is(err, core.ErrInvalidArgument) {
					t.Errorf("error %v does not wrap ErrInvalidArgument", err)
				}

				return
			}

			if l.Config() != DefaultLimiterConfig() {
				t.Errorf("Config() = %+v, want defaults", l.Config())
			}
		})
	}
}

func TestSafetyLimiterFeedbackLag(t *testing.T) {
	tests := []struct {
		sampleRate float64
		want       int
	}{
		{48000, 48},
		{44100, 44},
		{8000, 8},
		{96000, 96},
	}

	for _, tt := range tests {
		l, err := NewSafetyLimiter(tt.sampleRate, 1)
		if err != nil {
			t.Fatalf("NewSafetyLimiter(%g) error = %v", tt.sampleRate, err)
		}

		if got := l.FeedbackLag(); got != tt.want {
			t.Errorf("FeedbackLag() at %g Hz = %d, want %d", tt.sampleRate, got, tt.want)
		}
	}
}

func TestLimiterConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*LimiterConfig)
		wantErr bool
	}{
		{"defaults", func(*LimiterConfig) {}, false},
		{"threshold 0 dB", func(c *LimiterConfig) { c.LimiterThresholdDB = 0 }, false},
		{"threshold above 0", func(c *LimiterConfig) { c.LimiterThresholdDB = 0.5 }, true},
		{"threshold below -24", func(c *LimiterConfig) { c.LimiterThresholdDB = -30 }, true},
		{"zero knee", func(c *LimiterConfig) { c.KneeWidthDB = 0 }, false},
		{"negative knee", func(c *LimiterConfig) { c.KneeWidthDB = -1 }, true},
		{"wide knee", func(c *LimiterConfig) { c.KneeWidthDB = 25 }, true},
		{"DC threshold too high", func(c *LimiterConfig) { c.DCThreshold = 0.6 }, true},
		{"negative DC threshold", func(c *LimiterConfig) { c.DCThreshold = -0.1 }, true},
		{"correlation above 1", func(c *LimiterConfig) { c.FeedbackCorrThreshold = 1.1 }, true},
		{"NaN threshold", func(c *LimiterConfig) { c.LimiterThresholdDB = math.NaN() }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLimiterConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil && !errors.Is(err, core.ErrInvalidArgument) {
				t.Errorf("error %v does not wrap ErrInvalidArgument", err)
			}
		})
	}
}

func TestSafetyLimiterSetConfigKeepsPrevious(t *testing.T) {
	l := newTestLimiter(t, 1, nil)

	bad := DefaultLimiterConfig()
	bad.KneeWidthDB = 100

	if err := l.SetConfig(bad); err == nil {
		t.Fatal("SetConfig() accepted knee width 100")
	}

	if l.Config() != DefaultLimiterConfig() {
		t.Errorf("Config() changed after rejected update")
	}
}

func TestSafetyLimiterHardClamp(t *testing.T) {
	l := newTestLimiter(t, 1, func(c *LimiterConfig) {
		c.SoftKnee = false
		c.LimiterThresholdDB = -6
	})

	in := testutil.DeterministicSine(1000, 48000, 1, 480)
	out := make([]float64, len(in))
	l.Process(in, out)

	limit := math.Pow(10, -6.0/20)
	for i, y := range out {
		if math.Abs(y) > limit+1e-12 {
			t.Fatalf("out[%d] = %g exceeds %g", i, y, limit)
		}

		if math.Abs(in[i]) <= limit && y != in[i] {
			t.Fatalf("out[%d] = %g, sample below threshold changed from %g", i, y, in[i])
		}
	}

	r := l.Report()
	if !r.OverloadActive {
		t.Error("OverloadActive = false, want true")
	}

	if math.Abs(r.Peak-1) > 1e-3 {
		t.Errorf("Peak = %g, want the pre-limit peak ~1", r.Peak)
	}
}

func TestSafetyLimiterSoftKneeCurve(t *testing.T) {
	l := newTestLimiter(t, 1, func(c *LimiterConfig) {
		c.DCRemovalEnabled = false
		c.FeedbackDetectEnabled = false
	})

	// Threshold -1 dB, knee 6 dB: the knee spans [-4, +2] dB.
	tests := []struct {
		inDB, wantDB float64
	}{
		{-10, -10},
		{-4, -4},
		{-1, -1.75},
		{0, -1 - 1.0/3},
		{2, -1},
		{12, -1},
	}

	in := make([]float64, len(tests))
	for i, tt := range tests {
		in[i] = math.Pow(10, tt.inDB/20)
	}

	out := make([]float64, len(in))
	l.Process(in, out)

	for i, tt := range tests {
		got := 20 * math.Log10(out[i])
		if math.Abs(got-tt.wantDB) > 1e-6 {
			t.Errorf("%g dB in: got %g dB, want %g dB", tt.inDB, got, tt.wantDB)
		}
	}

	// Polarity is preserved.
	neg := []float64{-math.Pow(10, 12.0/20)}
	l.Process(neg, neg)

	if want := -math.Pow(10, -1.0/20); math.Abs(neg[0]-want) > 1e-9 {
		t.Errorf("negative overshoot limited to %g, want %g", neg[0], want)
	}
}

func TestSafetyLimiterBelowThresholdUntouched(t *testing.T) {
	l := newTestLimiter(t, 1, nil)

	// 20 full periods: no DC offset to remove.
	in := testutil.DeterministicSine(1000, 48000, 0.5, 960)
	out := make([]float64, len(in))
	l.Process(in, out)

	testutil.RequireSliceNearlyEqual(t, out, in, 0)

	if l.Report().OverloadActive {
		t.Error("OverloadActive = true for a -6 dB signal")
	}
}

func TestSafetyLimiterDCRemoval(t *testing.T) {
	tests := []struct {
		name     string
		offset   float64
		wantMean float64
	}{
		{"offset above threshold removed", 0.05, 0},
		{"offset below threshold kept", 0.001, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLimiter(t, 1, nil)

			// 1 kHz at 48 kHz: 960 samples hold exactly 20 periods.
			in := testutil.Mix(
				testutil.DeterministicSine(1000, 48000, 0.1, 960),
				testutil.DC(tt.offset, 960),
			)
			out := make([]float64, len(in))
			l.Process(in, out)

			r := l.Report()
			if math.Abs(r.DCOffset-tt.offset) > 1e-9 {
				t.Errorf("DCOffset = %g, want %g", r.DCOffset, tt.offset)
			}

			mean := 0.0
			for _, y := range out {
				mean += y
			}
			mean /= float64(len(out))

			if math.Abs(mean-tt.wantMean) > 1e-9 {
				t.Errorf("output mean = %g, want %g", mean, tt.wantMean)
			}
		})
	}
}

func TestSafetyLimiterClipCount(t *testing.T) {
	l := newTestLimiter(t, 1, func(c *LimiterConfig) {
		c.DCRemovalEnabled = false
	})

	in := []float64{1.5, -1.2, 0.5, 1.0, -1.0, 0}
	out := make([]float64, len(in))
	l.Process(in, out)

	r := l.Report()
	if r.ClippedSamples != 2 {
		t.Errorf("ClippedSamples = %d, want 2", r.ClippedSamples)
	}

	limit := math.Pow(10, -1.0/20)
	for i, y := range out {
		if math.Abs(y) > limit+1e-12 {
			t.Errorf("out[%d] = %g exceeds limiter threshold", i, y)
		}
	}
}

func TestSafetyLimiterNaN(t *testing.T) {
	l := newTestLimiter(t, 1, nil)

	in := []float64{0.1, math.NaN(), math.Inf(1), -0.1, math.Inf(-1)}
	out := make([]float64, len(in))
	l.Process(in, out)

	testutil.RequireFinite(t, out)

	if !l.Report().HasNaN {
		t.Error("HasNaN = false, want true")
	}

	l.Process([]float64{0.1, 0.2}, out[:2])

	if l.Report().HasNaN {
		t.Error("HasNaN carried over to a clean block")
	}
}

func TestSafetyLimiterFeedbackDetection(t *testing.T) {
	tests := []struct {
		name    string
		signal  []float64
		suspect bool
	}{
		// A 1 kHz tone repeats every millisecond, the detector's base lag.
		{"sustained tone", testutil.DeterministicSine(1000, 48000, 0.4, 960), true},
		{"white noise", testutil.DeterministicNoise(11, 0.4, 960), false},
		{"silence", make([]float64, 960), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLimiter(t, 1, func(c *LimiterConfig) { c.DCRemovalEnabled = false })

			out := make([]float64, len(tt.signal))
			l.Process(tt.signal, out)

			r := l.Report()
			if r.FeedbackSuspected != tt.suspect {
				t.Errorf("FeedbackSuspected = %v (score %g), want %v", r.FeedbackSuspected, r.FeedbackScore, tt.suspect)
			}

			testutil.RequireSliceNearlyEqual(t, out, tt.signal, 0)
		})
	}
}

func TestSafetyLimiterShortBlockSkipsFeedback(t *testing.T) {
	l := newTestLimiter(t, 1, nil)

	in := testutil.DeterministicSine(1000, 48000, 0.4, 40)
	out := make([]float64, len(in))
	l.Process(in, out)

	if got := l.Report().FeedbackScore; got != 0 {
		t.Errorf("FeedbackScore = %g for a block shorter than the lag, want 0", got)
	}
}

func TestSafetyLimiterStereoReport(t *testing.T) {
	l := newTestLimiter(t, 2, func(c *LimiterConfig) {
		c.DCRemovalEnabled = false
		c.FeedbackDetectEnabled = false
	})

	inL := []float64{0.5, -0.5, 1.5, 0}
	inR := []float64{0.25, -2, 0, 0.25}
	outL := make([]float64, len(inL))
	outR := make([]float64, len(inR))
	l.ProcessStereo(inL, inR, outL, outR)

	r := l.Report()
	if r.Peak != 2 {
		t.Errorf("Peak = %g, want 2", r.Peak)
	}

	if r.ClippedSamples != 2 {
		t.Errorf("ClippedSamples = %d, want 2", r.ClippedSamples)
	}

	wantRMS := math.Sqrt((0.25 + 0.25 + 2.25 + 0.0625 + 4 + 0.0625) / 8)
	if math.Abs(r.RMS-wantRMS) > 1e-12 {
		t.Errorf("RMS = %g, want %g", r.RMS, wantRMS)
	}

	if !r.OverloadActive {
		t.Error("OverloadActive = false, want true")
	}
}

func TestSafetyLimiterDisabled(t *testing.T) {
	l := newTestLimiter(t, 1, func(c *LimiterConfig) { c.Enabled = false })

	in := []float64{2, math.NaN(), -3, 0.5}
	out := make([]float64, len(in))
	l.Process(in, out)

	testutil.RequireSliceNearlyEqual(t, out, []float64{2, 0, -3, 0.5}, 0)

	r := l.Report()
	if !r.HasNaN || r.OverloadActive || r.Peak != 3 {
		t.Errorf("Report() = %+v", r)
	}
}

func TestSafetyLimiterStress(t *testing.T) {
	l := newTestLimiter(t, 2, nil)

	stress := testutil.Stress()
	in := make([]float64, 0, 32*len(stress))

	for range 32 {
		in = append(in, stress...)
	}

	outL := make([]float64, len(in))
	outR := make([]float64, len(in))
	l.ProcessStereo(in, in, outL, outR)

	testutil.RequireFinite(t, outL)
	testutil.RequireFinite(t, outR)

	limit := math.Pow(10, -1.0/20)
	for i := range outL {
		if math.Abs(outL[i]) > limit+1e-12 {
			t.Fatalf("outL[%d] = %g exceeds limiter threshold", i, outL[i])
		}
	}
}

func TestSafetyLimiterReset(t *testing.T) {
	l := newTestLimiter(t, 1, nil)

	out := make([]float64, 2)
	l.Process([]float64{math.NaN(), 3}, out)
	l.Reset()

	if l.Report() != (Report{}) {
		t.Errorf("Report() after Reset = %+v, want zero", l.Report())
	}
}

func BenchmarkSafetyLimiterProcess(b *testing.B) {
	l, err := NewSafetyLimiter(48000, 1)
	if err != nil {
		b.Fatal(err)
	}

	in := testutil.DeterministicNoise(1, 1.2, 512)
	out := make([]float64, len(in))

	b.ReportAllocs()

	for b.Loop() {
		l.Process(in, out)
	}
}
