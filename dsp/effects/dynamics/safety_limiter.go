package dynamics

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-rtfx/dsp/core"
	timestats "github.com/cwbudde/algo-rtfx/stats/time"
)

const (
	// Default safety limiter parameters
	defaultLimiterDCThreshold   = 0.002
	defaultLimiterThresholdDB   = -1.0
	defaultLimiterKneeWidthDB   = 6.0
	defaultLimiterCorrThreshold = 0.95

	// Safety limiter validation ranges
	minLimiterDCThreshold = 0.0
	maxLimiterDCThreshold = 0.5
	minLimiterThresholdDB = -24.0
	maxLimiterThresholdDB = 0.0
	minLimiterKneeWidthDB = 0.0
	maxLimiterKneeWidthDB = 24.0

	// feedbackLagMs is the base lag of the feedback detector; multiples
	// 1..feedbackLagCount of it are evaluated.
	feedbackLagMs    = 1.0
	feedbackLagCount = 4

	clipLevel = 1.0
)

// LimiterConfig holds the safety limiter parameters.
type LimiterConfig struct {
	Enabled               bool    `json:"enabled"`
	DCRemovalEnabled      bool    `json:"dc_removal_enabled"`
	DCThreshold           float64 `json:"dc_threshold"`
	LimiterEnabled        bool    `json:"limiter_enabled"`
	LimiterThresholdDB    float64 `json:"limiter_threshold_db"`
	SoftKnee              bool    `json:"soft_knee"`
	KneeWidthDB           float64 `json:"knee_width_db"`
	FeedbackDetectEnabled bool    `json:"feedback_detect_enabled"`
	FeedbackCorrThreshold float64 `json:"feedback_corr_threshold"`
}

// DefaultLimiterConfig returns the default safety configuration: DC removal
// above 0.002, a -1 dB soft-knee limiter with a 6 dB knee and feedback
// detection at correlation 0.95.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		Enabled:               true,
		DCRemovalEnabled:      true,
		DCThreshold:           defaultLimiterDCThreshold,
		LimiterEnabled:        true,
		LimiterThresholdDB:    defaultLimiterThresholdDB,
		SoftKnee:              true,
		KneeWidthDB:           defaultLimiterKneeWidthDB,
		FeedbackDetectEnabled: true,
		FeedbackCorrThreshold: defaultLimiterCorrThreshold,
	}
}

// Validate checks every numeric field. Failures wrap core.ErrInvalidArgument.
func (c LimiterConfig) Validate() error {
	checks := []struct {
		name     string
		v        float64
		min, max float64
	}{
		{"dc threshold", c.DCThreshold, minLimiterDCThreshold, maxLimiterDCThreshold},
		{"threshold", c.LimiterThresholdDB, minLimiterThresholdDB, maxLimiterThresholdDB},
		{"knee width", c.KneeWidthDB, minLimiterKneeWidthDB, maxLimiterKneeWidthDB},
		{"feedback correlation threshold", c.FeedbackCorrThreshold, 0, 1},
	}

	for _, chk := range checks {
		if math.IsNaN(chk.v) || chk.v < chk.min || chk.v > chk.max {
			return fmt.Errorf("%w: limiter %s must be in [%g, %g]: %g",
				core.ErrInvalidArgument, chk.name, chk.min, chk.max, chk.v)
		}
	}

	return nil
}

// Report describes the most recently processed block. For stereo blocks
// Peak, DCOffset and FeedbackScore are the largest magnitudes of either
// channel, RMS is taken over both channels and ClippedSamples is summed.
type Report struct {
	Peak              float64 `json:"peak"`
	RMS               float64 `json:"rms"`
	DCOffset          float64 `json:"dc_offset"`
	ClippedSamples    int     `json:"clipped_samples"`
	OverloadActive    bool    `json:"overload_active"`
	FeedbackScore     float64 `json:"feedback_score"`
	FeedbackSuspected bool    `json:"feedback_suspected"`
	HasNaN            bool    `json:"has_nan"`
}

// SafetyLimiter is the last stage of the chain: it sanitizes non-finite
// samples, removes DC offset, limits peaks and reports on clipping and
// suspected acoustic feedback. Feedback detection is advisory only.
//
// Processing is block based and keeps no signal state between blocks.
// This implementation is single-threaded and not thread-safe.
type SafetyLimiter struct {
	cfg        LimiterConfig
	sampleRate float64
	channels   int

	thresholdLin float64
	kneeStartLin float64
	feedbackLag  int

	report Report
}

// NewSafetyLimiter creates a limiter with DefaultLimiterConfig.
func NewSafetyLimiter(sampleRate float64, channels int) (*SafetyLimiter, error) {
	if err := validateSampleRate("limiter", sampleRate); err != nil {
		return nil, err
	}

	if channels < 1 || channels > maxChannels {
		return nil, fmt.Errorf("%w: limiter channel count must be 1 or 2: %d", core.ErrInvalidArgument, channels)
	}

	l := &SafetyLimiter{
		cfg:        DefaultLimiterConfig(),
		sampleRate: sampleRate,
		channels:   channels,
	}
	l.updateCoefficients()

	return l, nil
}

// Config returns the active configuration.
func (l *SafetyLimiter) Config() LimiterConfig { return l.cfg }

// SampleRate returns the sample rate in Hz.
func (l *SafetyLimiter) SampleRate() float64 { return l.sampleRate }

// Channels returns the channel count.
func (l *SafetyLimiter) Channels() int { return l.channels }

// FeedbackLag returns the base autocorrelation lag in samples.
func (l *SafetyLimiter) FeedbackLag() int { return l.feedbackLag }

// SetConfig validates and applies cfg. An invalid cfg leaves the previous
// configuration in place.
func (l *SafetyLimiter) SetConfig(cfg LimiterConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.cfg = cfg
	l.updateCoefficients()

	return nil
}

// SetSampleRate updates the sample rate used for the feedback lag.
func (l *SafetyLimiter) SetSampleRate(sampleRate float64) error {
	if err := validateSampleRate("limiter", sampleRate); err != nil {
		return err
	}

	l.sampleRate = sampleRate
	l.updateCoefficients()

	return nil
}

// Report returns a copy of the report of the last processed block.
func (l *SafetyLimiter) Report() Report { return l.report }

// Reset clears the report.
func (l *SafetyLimiter) Reset() { l.report = Report{} }

// Process runs the safety stage on a mono block. in and out must have equal
// length and may alias.
func (l *SafetyLimiter) Process(in, out []float64) {
	n := min(len(in), len(out))
	copy(out[:n], in[:n])

	l.report = Report{}
	sumSq := l.processChannel(out[:n])
	l.finishReport(sumSq, n)
}

// ProcessStereo runs the safety stage on two channels and merges their
// results into one report.
func (l *SafetyLimiter) ProcessStereo(inL, inR, outL, outR []float64) {
	nL := min(len(inL), len(outL))
	nR := min(len(inR), len(outR))
	copy(outL[:nL], inL[:nL])
	copy(outR[:nR], inR[:nR])

	l.report = Report{}
	sumSq := l.processChannel(outL[:nL])
	sumSq += l.processChannel(outR[:nR])
	l.finishReport(sumSq, nL+nR)
}

func (l *SafetyLimiter) finishReport(sumSq float64, n int) {
	if n > 0 {
		l.report.RMS = math.Sqrt(sumSq / float64(n))
	}

	l.report.FeedbackSuspected = l.cfg.Enabled && l.cfg.FeedbackDetectEnabled &&
		l.report.FeedbackScore > l.cfg.FeedbackCorrThreshold
}

// processChannel applies the safety stage to buf in place, merges the
// channel's findings into the report and returns its sum of squares.
// Peak and RMS are measured after DC removal and before limiting.
func (l *SafetyLimiter) processChannel(buf []float64) float64 {
	if len(buf) == 0 {
		return 0
	}

	// Non-finite samples are always removed, even when disabled.
	if core.SanitizeBlock(buf) {
		l.report.HasNaN = true
	}

	if !l.cfg.Enabled {
		l.mergePeak(timestats.Peak(buf))
		return sumSquares(buf)
	}

	dc := core.Sanitize(timestats.DC(buf))
	if math.Abs(dc) > math.Abs(l.report.DCOffset) {
		l.report.DCOffset = dc
	}

	if l.cfg.DCRemovalEnabled && math.Abs(dc) > l.cfg.DCThreshold {
		for i := range buf {
			buf[i] -= dc
		}

		core.SanitizeBlock(buf)
	}

	peak := timestats.Peak(buf)
	l.mergePeak(peak)
	sumSq := sumSquares(buf)

	clipped := 0
	for _, x := range buf {
		if math.Abs(x) > clipLevel {
			clipped++
		}
	}
	l.report.ClippedSamples += clipped

	if l.cfg.LimiterEnabled && peak > l.thresholdLin {
		l.limit(buf)
		l.report.OverloadActive = true
	}

	if l.cfg.FeedbackDetectEnabled {
		if score := l.feedbackScore(buf); score > l.report.FeedbackScore {
			l.report.FeedbackScore = score
		}
	}

	return sumSq
}

func (l *SafetyLimiter) mergePeak(p float64) {
	if p > l.report.Peak {
		l.report.Peak = p
	}
}

// limit applies the hard clamp or the soft-knee curve
//
//	y_dB = x_dB - (x_dB - T + W/2)^2 / (2W)   for T - W/2 < x_dB < T + W/2
//	y_dB = T                                   above the knee
func (l *SafetyLimiter) limit(buf []float64) {
	t := l.thresholdLin

	if !l.cfg.SoftKnee || l.cfg.KneeWidthDB <= 0 {
		for i, x := range buf {
			buf[i] = math.Max(-t, math.Min(t, x))
		}

		return
	}

	thrDB := l.cfg.LimiterThresholdDB
	w := l.cfg.KneeWidthDB
	half := w / 2

	for i, x := range buf {
		a := math.Abs(x)
		if a <= l.kneeStartLin {
			continue
		}

		xDB := linearToDB(a)

		var yDB float64
		if xDB >= thrDB+half {
			yDB = thrDB
		} else {
			d := xDB - thrDB + half
			yDB = xDB - d*d/(2*w)
		}

		y := math.Min(dbToLinear(yDB), t)
		buf[i] = math.Copysign(y, x)
	}
}

// feedbackScore is the largest normalized autocorrelation over the lags
// L, 2L, 3L and 4L, where L corresponds to one millisecond.
func (l *SafetyLimiter) feedbackScore(buf []float64) float64 {
	best := 0.0

	for k := 1; k <= feedbackLagCount; k++ {
		lag := k * l.feedbackLag
		if lag >= len(buf) {
			break
		}

		if r := timestats.NormalizedAutocorrelation(buf, lag); r > best {
			best = r
		}
	}

	return best
}

func (l *SafetyLimiter) updateCoefficients() {
	l.thresholdLin = mathPower10(l.cfg.LimiterThresholdDB / 20)
	l.kneeStartLin = mathPower10((l.cfg.LimiterThresholdDB - l.cfg.KneeWidthDB/2) / 20)
	l.feedbackLag = max(1, int(math.Round(l.sampleRate*feedbackLagMs/1000)))
}

func sumSquares(buf []float64) float64 {
	sum := 0.0
	for _, x := range buf {
		sum += x * x
	}

	return sum
}
