package rt

import (
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-rtfx/dsp/filter/biquad"
)

// LockedFilter guards a biquad with a mutex. The audio side only ever calls
// TryLock: when a writer holds the lock the block is passed through
// unfiltered and counted as skipped, so the audio thread never waits.
type LockedFilter struct {
	mu      sync.Mutex
	filter  biquad.Filter
	skipped atomic.Uint64
}

// NewLockedFilter creates a LockedFilter with coefficients c.
func NewLockedFilter(c biquad.Coefficients) *LockedFilter {
	l := &LockedFilter{}
	l.filter.SetNormalized(c)

	return l
}

// Process filters in into out (mono) and reports whether the filter ran.
// in and out may alias.
func (l *LockedFilter) Process(in, out []float64) bool {
	if !l.mu.TryLock() {
		copy(out, in)
		l.skipped.Add(1)

		return false
	}
	defer l.mu.Unlock()

	l.filter.ProcessTo(out, in)

	return true
}

// ProcessStereo filters two channels with independent state.
func (l *LockedFilter) ProcessStereo(inL, inR, outL, outR []float64) bool {
	if !l.mu.TryLock() {
		copy(outL, inL)
		copy(outR, inR)
		l.skipped.Add(1)

		return false
	}
	defer l.mu.Unlock()

	l.filter.ProcessStereoTo(outL, outR, inL, inR)

	return true
}

// Update runs fn with exclusive access to the filter. It blocks and must
// not be called from the audio thread.
func (l *LockedFilter) Update(fn func(f *biquad.Filter)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fn(&l.filter)
}

// Coefficients returns a snapshot of the coefficients.
func (l *LockedFilter) Coefficients() biquad.Coefficients {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.filter.Coefficients()
}

// Skipped returns the number of blocks passed through because the lock was
// busy.
func (l *LockedFilter) Skipped() uint64 { return l.skipped.Load() }
