package equalizer

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-rtfx/dsp/core"
	"github.com/cwbudde/algo-rtfx/dsp/filter/biquad"
)

const (
	stateClean int32 = iota
	stateDirty
)

// Equalizer is a cascade of parametric bands followed by a master gain.
//
// All setters and getters are safe for concurrent use. Process and
// ProcessStereo must be called from a single audio goroutine; they never
// block and never allocate. Initialize is a lifecycle call and must not run
// concurrently with processing.
type Equalizer struct {
	mu         sync.Mutex
	bands      []Band
	sampleRate uint32

	state        atomic.Int32
	masterGainDB atomic.Uint64
	bypass       atomic.Bool
	resetPending atomic.Bool
	deferred     atomic.Uint64

	// audio side only
	active []int
}

// New creates an equalizer with bandCount bands at sampleRate.
func New(bandCount int, sampleRate uint32) (*Equalizer, error) {
	e := &Equalizer{}
	if err := e.Initialize(bandCount, sampleRate); err != nil {
		return nil, err
	}

	return e, nil
}

// Initialize replaces every band with a default peak band. Centre
// frequencies are spaced logarithmically from 31.25 Hz to 16 kHz. Master
// gain and bypass are left unchanged.
func (e *Equalizer) Initialize(bandCount int, sampleRate uint32) error {
	if bandCount < MinBands || bandCount > MaxBands {
		return fmt.Errorf("%w: band count must be in [%d, %d]: %d",
			core.ErrInvalidArgument, MinBands, MaxBands, bandCount)
	}

	if err := validateSampleRate(sampleRate); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sampleRate = sampleRate
	e.bands = make([]Band, bandCount)
	e.active = make([]int, 0, bandCount)

	for i, f := range defaultCenters(bandCount, sampleRate) {
		e.bands[i] = NewBand()
		e.bands[i].Frequency = f
	}

	e.markDirty()

	return nil
}

func validateSampleRate(sampleRate uint32) error {
	if sampleRate < MinSampleRate || sampleRate > MaxSampleRate {
		return fmt.Errorf("%w: sample rate must be in [%d, %d]: %d",
			core.ErrInvalidArgument, MinSampleRate, MaxSampleRate, sampleRate)
	}

	return nil
}

// markDirty must be called with mu held.
func (e *Equalizer) markDirty() {
	e.state.Store(stateDirty)
}

// Process equalizes in into out. in and out may alias. In bypass the input
// is copied unchanged; otherwise non-finite output samples are replaced by
// zero.
func (e *Equalizer) Process(in, out []float64) {
	n := min(len(in), len(out))
	buf := out[:n]

	if e.bypass.Load() {
		copy(buf, in[:n])
		return
	}

	e.prepare()
	copy(buf, in[:n])

	for _, i := range e.active {
		e.bands[i].filter.Process(buf)
	}

	e.applyMasterGain(buf)
	core.SanitizeBlock(buf)
}

// ProcessStereo equalizes two channels with independent filter state.
func (e *Equalizer) ProcessStereo(inL, inR, outL, outR []float64) {
	left := outL[:min(len(inL), len(outL))]
	right := outR[:min(len(inR), len(outR))]

	if e.bypass.Load() {
		copy(left, inL)
		copy(right, inR)

		return
	}

	e.prepare()
	copy(left, inL)
	copy(right, inR)

	for _, i := range e.active {
		e.bands[i].filter.ProcessStereo(left, right)
	}

	e.applyMasterGain(left)
	e.applyMasterGain(right)
	core.SanitizeBlock(left)
	core.SanitizeBlock(right)
}

// prepare applies pending resets and, if parameters changed, rebuilds the
// coefficients. A busy lock defers the rebuild to a later block.
func (e *Equalizer) prepare() {
	if e.resetPending.Swap(false) {
		for i := range e.bands {
			e.bands[i].filter.Reset()
		}
	}

	if e.state.Load() != stateDirty {
		return
	}

	if !e.mu.TryLock() {
		e.deferred.Add(1)
		return
	}

	e.state.Store(stateClean)
	e.rebuild()
	e.mu.Unlock()
}

// rebuild recomputes all coefficients and the active band list. mu must be
// held.
func (e *Equalizer) rebuild() {
	sr := float64(e.sampleRate)
	e.active = e.active[:0]

	for i := range e.bands {
		b := &e.bands[i]
		b.filter.SetNormalized(b.coefficients(sr))

		if b.active() {
			e.active = append(e.active, i)
		}
	}
}

func (e *Equalizer) applyMasterGain(buf []float64) {
	g := core.DBToLinear(e.MasterGain())
	if math.Abs(g-1) <= unityTolerance {
		return
	}

	vecmath.ScaleBlockInPlace(buf, g)
}

// SetBandGain sets the gain of band i in dB, clamped to [-24, 24]. An
// out-of-range index or NaN is ignored.
func (e *Equalizer) SetBandGain(i int, db float64) {
	e.withLock(func() bool { return e.setBandGain(i, db) })
}

// SetBandFrequency sets the frequency of band i, clamped to
// [20, 0.49*sampleRate].
func (e *Equalizer) SetBandFrequency(i int, hz float64) {
	e.withLock(func() bool { return e.setBandFrequency(i, hz) })
}

// SetBandQ sets the quality factor of band i, clamped to [0.1, 10].
func (e *Equalizer) SetBandQ(i int, q float64) {
	e.withLock(func() bool { return e.setBandQ(i, q) })
}

// SetBandType sets the response of band i. Unknown types are ignored.
func (e *Equalizer) SetBandType(i int, t biquad.Type) {
	e.withLock(func() bool { return e.setBandType(i, t) })
}

// SetBandEnabled enables or disables band i.
func (e *Equalizer) SetBandEnabled(i int, enabled bool) {
	e.withLock(func() bool { return e.setBandEnabled(i, enabled) })
}

// SetBand applies every field of cfg to band i with the same clamping as the
// individual setters.
func (e *Equalizer) SetBand(i int, cfg BandConfig) {
	e.withLock(func() bool { return e.setBand(i, cfg) })
}

// LoadPreset copies min(len(p.Gains), BandCount) gains into the bands,
// clamped to the gain range. Remaining bands keep their gain.
func (e *Equalizer) LoadPreset(p Preset) {
	e.withLock(func() bool { return e.loadPreset(p) })
}

// ResetAllBands sets every band gain to 0 dB.
func (e *Equalizer) ResetAllBands() {
	e.withLock(e.resetAllBands)
}

func (e *Equalizer) withLock(fn func() bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if fn() {
		e.markDirty()
	}
}

// SavePreset returns the current band gains under name.
func (e *Equalizer) SavePreset(name string) Preset {
	e.mu.Lock()
	defer e.mu.Unlock()

	gains := make([]float64, len(e.bands))
	for i := range e.bands {
		gains[i] = e.bands[i].GainDB
	}

	return Preset{Name: name, Gains: gains}
}

// SetMasterGain sets the output gain in dB, clamped to [-24, 24]. NaN is
// ignored. Takes effect on the next block without locking.
func (e *Equalizer) SetMasterGain(db float64) {
	if v, ok := clampGain(db); ok {
		e.masterGainDB.Store(math.Float64bits(v))
	}
}

// MasterGain returns the output gain in dB.
func (e *Equalizer) MasterGain() float64 {
	return math.Float64frombits(e.masterGainDB.Load())
}

// SetBypass switches bypass on or off.
func (e *Equalizer) SetBypass(bypass bool) { e.bypass.Store(bypass) }

// Bypassed reports whether the equalizer is bypassed.
func (e *Equalizer) Bypassed() bool { return e.bypass.Load() }

// SetSampleRate changes the sample rate and re-clamps band frequencies. The
// band count is kept.
func (e *Equalizer) SetSampleRate(sampleRate uint32) error {
	if err := validateSampleRate(sampleRate); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sampleRate = sampleRate
	for i := range e.bands {
		e.bands[i].Frequency, _ = clampFrequency(e.bands[i].Frequency, sampleRate)
	}

	e.markDirty()

	return nil
}

// SampleRate returns the sample rate in Hz.
func (e *Equalizer) SampleRate() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.sampleRate
}

// BandCount returns the number of bands.
func (e *Equalizer) BandCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.bands)
}

// Band returns the parameters of band i.
func (e *Equalizer) Band(i int) (BandConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if b := e.band(i); b != nil {
		return b.BandConfig, true
	}

	return BandConfig{}, false
}

// Bands returns the parameters of every band.
func (e *Equalizer) Bands() []BandConfig {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]BandConfig, len(e.bands))
	for i := range e.bands {
		out[i] = e.bands[i].BandConfig
	}

	return out
}

// BandGain returns the gain of band i in dB, or 0 for an unknown band.
func (e *Equalizer) BandGain(i int) float64 {
	cfg, _ := e.Band(i)
	return cfg.GainDB
}

// BandFrequency returns the frequency of band i, or 0 for an unknown band.
func (e *Equalizer) BandFrequency(i int) float64 {
	cfg, _ := e.Band(i)
	return cfg.Frequency
}

// BandQ returns the quality factor of band i, or 0 for an unknown band.
func (e *Equalizer) BandQ(i int) float64 {
	cfg, _ := e.Band(i)
	return cfg.Q
}

// BandType returns the response of band i.
func (e *Equalizer) BandType(i int) biquad.Type {
	cfg, _ := e.Band(i)
	return cfg.Type
}

// BandEnabled reports whether band i is enabled.
func (e *Equalizer) BandEnabled(i int) bool {
	cfg, _ := e.Band(i)
	return cfg.Enabled
}

// DeferredUpdates returns how many blocks ran on stale coefficients because
// a writer held the parameter lock.
func (e *Equalizer) DeferredUpdates() uint64 { return e.deferred.Load() }

// Reset clears the recursive state of every band. The reset is carried out
// by the audio side at the start of the next block.
func (e *Equalizer) Reset() { e.resetPending.Store(true) }

// Response returns the combined magnitude in dB of all active bands and the
// master gain at freq, computed from the current parameters.
func (e *Equalizer) Response(freq float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	sr := float64(e.sampleRate)
	db := 0.0

	for i := range e.bands {
		b := &e.bands[i]
		if !b.active() {
			continue
		}

		c := b.coefficients(sr)
		db += c.MagnitudeDB(freq, sr)
	}

	if g := e.MasterGain(); math.Abs(core.DBToLinear(g)-1) > unityTolerance {
		db += g
	}

	return db
}

// String returns a human-readable summary for logs.
func (e *Equalizer) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var sb strings.Builder

	fmt.Fprintf(&sb, "equalizer: %d bands @ %d Hz, master %+.1f dB, bypass %v",
		len(e.bands), e.sampleRate, e.MasterGain(), e.Bypassed())

	for i := range e.bands {
		b := &e.bands[i]

		state := "on"
		if !b.Enabled {
			state = "off"
		}

		fmt.Fprintf(&sb, "\n  %2d %-9s %8.1f Hz %+5.1f dB Q %.2f %s",
			i, b.Type, b.Frequency, b.GainDB, b.Q, state)
	}

	return sb.String()
}

// band returns band i or nil. mu must be held.
func (e *Equalizer) band(i int) *Band {
	if i < 0 || i >= len(e.bands) {
		return nil
	}

	return &e.bands[i]
}

// The set* helpers below require mu and report whether anything changed.

func (e *Equalizer) setBandGain(i int, db float64) bool {
	b := e.band(i)
	v, ok := clampGain(db)

	if b == nil || !ok {
		return false
	}

	b.GainDB = v

	return true
}

func (e *Equalizer) setBandFrequency(i int, hz float64) bool {
	b := e.band(i)
	v, ok := clampFrequency(hz, e.sampleRate)

	if b == nil || !ok {
		return false
	}

	b.Frequency = v

	return true
}

func (e *Equalizer) setBandQ(i int, q float64) bool {
	b := e.band(i)
	v, ok := clampQ(q)

	if b == nil || !ok {
		return false
	}

	b.Q = v

	return true
}

func (e *Equalizer) setBandType(i int, t biquad.Type) bool {
	b := e.band(i)
	if b == nil || !t.Valid() {
		return false
	}

	b.Type = t

	return true
}

func (e *Equalizer) setBandEnabled(i int, enabled bool) bool {
	b := e.band(i)
	if b == nil {
		return false
	}

	b.Enabled = enabled

	return true
}

func (e *Equalizer) setBand(i int, cfg BandConfig) bool {
	if e.band(i) == nil {
		return false
	}

	e.setBandGain(i, cfg.GainDB)
	e.setBandFrequency(i, cfg.Frequency)
	e.setBandQ(i, cfg.Q)
	e.setBandType(i, cfg.Type)
	e.setBandEnabled(i, cfg.Enabled)

	return true
}

func (e *Equalizer) loadPreset(p Preset) bool {
	n := min(len(p.Gains), len(e.bands))
	for i := range n {
		e.setBandGain(i, p.Gains[i])
	}

	return n > 0
}

func (e *Equalizer) resetAllBands() bool {
	for i := range e.bands {
		e.bands[i].GainDB = 0
	}

	return true
}
