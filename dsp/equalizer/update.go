package equalizer

import "github.com/cwbudde/algo-rtfx/dsp/filter/biquad"

// Update is an open parameter batch. It holds the equalizer's parameter
// lock from BeginParameterUpdate until End, so the audio side observes
// either none or all of its changes. Coefficients are rebuilt once, on the
// first block after End.
type Update struct {
	eq      *Equalizer
	changed bool
	done    bool
}

// BeginParameterUpdate acquires the parameter lock and returns the batch.
// End must be called exactly once; prefer Equalizer.Update, which does so
// with defer.
func (e *Equalizer) BeginParameterUpdate() *Update {
	e.mu.Lock()
	return &Update{eq: e}
}

// Update runs fn inside a parameter batch.
func (e *Equalizer) Update(fn func(u *Update)) {
	u := e.BeginParameterUpdate()
	defer u.End()

	fn(u)
}

// End publishes the batch and releases the lock. Further calls are no-ops.
func (u *Update) End() {
	if u.done {
		return
	}

	u.done = true

	if u.changed {
		u.eq.markDirty()
	}

	u.eq.mu.Unlock()
}

func (u *Update) apply(fn func() bool) {
	if u.done {
		panic("equalizer: Update used after End")
	}

	if fn() {
		u.changed = true
	}
}

// SetBandGain is the batched form of Equalizer.SetBandGain.
func (u *Update) SetBandGain(i int, db float64) {
	u.apply(func() bool { return u.eq.setBandGain(i, db) })
}

// SetBandFrequency is the batched form of Equalizer.SetBandFrequency.
func (u *Update) SetBandFrequency(i int, hz float64) {
	u.apply(func() bool { return u.eq.setBandFrequency(i, hz) })
}

// SetBandQ is the batched form of Equalizer.SetBandQ.
func (u *Update) SetBandQ(i int, q float64) {
	u.apply(func() bool { return u.eq.setBandQ(i, q) })
}

// SetBandType is the batched form of Equalizer.SetBandType.
func (u *Update) SetBandType(i int, t biquad.Type) {
	u.apply(func() bool { return u.eq.setBandType(i, t) })
}

// SetBandEnabled is the batched form of Equalizer.SetBandEnabled.
func (u *Update) SetBandEnabled(i int, enabled bool) {
	u.apply(func() bool { return u.eq.setBandEnabled(i, enabled) })
}

// SetBand is the batched form of Equalizer.SetBand.
func (u *Update) SetBand(i int, cfg BandConfig) {
	u.apply(func() bool { return u.eq.setBand(i, cfg) })
}

// LoadPreset is the batched form of Equalizer.LoadPreset.
func (u *Update) LoadPreset(p Preset) {
	u.apply(func() bool { return u.eq.loadPreset(p) })
}

// ResetAllBands is the batched form of Equalizer.ResetAllBands.
func (u *Update) ResetAllBands() {
	u.apply(func() bool { return u.eq.resetAllBands() })
}

// BandCount returns the number of bands without re-locking.
func (u *Update) BandCount() int { return len(u.eq.bands) }
