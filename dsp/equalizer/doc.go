// Package equalizer implements a multi-band parametric equalizer built from
// cascaded biquad sections, together with a catalog of named gain presets.
//
// Parameters may be changed from any goroutine while one audio goroutine
// calls Process. Setters take a parameter mutex and mark the coefficient
// set dirty; the audio side checks the dirty state with a single atomic
// load and rebuilds coefficients under TryLock. When a writer holds the
// lock the audio side keeps the previous coefficients for that block and
// counts a deferred update instead of waiting. Master gain and bypass are
// atomics and are never locked.
//
// Batches of changes that must be observed together go through
// BeginParameterUpdate / Update.End, or the scoped form:
//
//	eq.Update(func(u *equalizer.Update) {
//		u.SetBandGain(0, 6)
//		u.SetBandFrequency(0, 80)
//	})
package equalizer
