package equalizer

import (
	"math"

	"github.com/cwbudde/algo-rtfx/dsp/core"
	"github.com/cwbudde/algo-rtfx/dsp/filter/biquad"
)

// Parameter ranges. Setters clamp into these ranges.
const (
	MinGainDB = -24.0
	MaxGainDB = 24.0

	MinQ = 0.1
	MaxQ = 10.0

	// MinFrequency is the lowest band frequency. The highest is
	// MaxFrequencyRatio times the sample rate.
	MinFrequency      = 20.0
	MaxFrequencyRatio = 0.49

	MinSampleRate = 8000
	MaxSampleRate = 384000

	MinBands = 1
	MaxBands = 31
)

const (
	defaultFrequency = 1000.0
	defaultQ         = 0.707

	// Bands whose gain is within this many dB of 0 are skipped.
	activeGainThresholdDB = 0.01

	// Master gain is not applied when its linear value is this close to 1.
	unityTolerance = 0.001

	lowestCenterHz  = 31.25
	highestCenterHz = 16000.0
)

// BandConfig is the plain parameter record of one band.
type BandConfig struct {
	Frequency float64     `json:"frequency"`
	GainDB    float64     `json:"gain_db"`
	Q         float64     `json:"q"`
	Type      biquad.Type `json:"type"`
	Enabled   bool        `json:"enabled"`
}

// DefaultBandConfig returns the default band: 1 kHz peak, 0 dB, Q 0.707,
// enabled.
func DefaultBandConfig() BandConfig {
	return BandConfig{
		Frequency: defaultFrequency,
		GainDB:    0,
		Q:         defaultQ,
		Type:      biquad.Peak,
		Enabled:   true,
	}
}

// Band is one equalizer band: its parameters plus the biquad it exclusively
// owns. The filter keeps its recursive state when parameters change.
type Band struct {
	BandConfig

	filter biquad.Filter
}

// NewBand returns a band with DefaultBandConfig and identity coefficients.
func NewBand() Band {
	b := Band{BandConfig: DefaultBandConfig()}
	b.filter.SetNormalized(biquad.Identity())

	return b
}

// active reports whether the band contributes to the output. Bands at ~0 dB
// are skipped whatever their response type.
func (b *Band) active() bool {
	return b.Enabled && math.Abs(b.GainDB) > activeGainThresholdDB
}

// coefficients designs the band's response at sampleRate.
func (b *Band) coefficients(sampleRate float64) biquad.Coefficients {
	return biquad.Design(b.Type, b.Frequency, sampleRate, b.Q, b.GainDB)
}

// clampGain limits v to the gain range. NaN yields ok == false.
func clampGain(v float64) (float64, bool) {
	if math.IsNaN(v) {
		return 0, false
	}

	return core.Clamp(v, MinGainDB, MaxGainDB), true
}

func clampQ(v float64) (float64, bool) {
	if math.IsNaN(v) {
		return 0, false
	}

	return core.Clamp(v, MinQ, MaxQ), true
}

func clampFrequency(v float64, sampleRate uint32) (float64, bool) {
	if math.IsNaN(v) {
		return 0, false
	}

	return core.Clamp(v, MinFrequency, maxFrequency(sampleRate)), true
}

func maxFrequency(sampleRate uint32) float64 {
	return MaxFrequencyRatio * float64(sampleRate)
}

// defaultCenters returns n centre frequencies spaced logarithmically from
// 31.25 Hz to 16 kHz and clamped into the legal range for sampleRate.
func defaultCenters(n int, sampleRate uint32) []float64 {
	centers := make([]float64, n)
	if n == 1 {
		centers[0], _ = clampFrequency(defaultFrequency, sampleRate)
		return centers
	}

	ratio := math.Log(highestCenterHz / lowestCenterHz)
	for i := range centers {
		f := lowestCenterHz * math.Exp(ratio*float64(i)/float64(n-1))
		centers[i], _ = clampFrequency(f, sampleRate)
	}

	return centers
}
