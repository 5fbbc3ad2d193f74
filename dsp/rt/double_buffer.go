package rt

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-rtfx/dsp/filter/biquad"
)

// acquireAttempts bounds how often the audio side retries pinning the
// active instance while writers keep swapping it.
const acquireAttempts = 4

// DoubleBufferedFilter holds two biquad instances. The audio side runs the
// active one; Configure edits the idle one once no reader is inside it and
// then publishes it with an atomic index swap. Recursive state follows the
// audio side across swaps, so a coefficient change does not reset the
// filter.
//
// Process must be called from a single goroutine. Configure may be called
// from any number of goroutines.
type DoubleBufferedFilter struct {
	filters [2]biquad.Filter
	active  atomic.Int32
	inUse   [2]atomic.Int32
	mu      sync.Mutex

	// audio side only
	last    int32
	state   [4]float64
	swaps   uint64
	skipped atomic.Uint64
}

// NewDoubleBufferedFilter creates a filter with both instances set to c.
func NewDoubleBufferedFilter(c biquad.Coefficients) *DoubleBufferedFilter {
	d := &DoubleBufferedFilter{}
	d.filters[0].SetNormalized(c)
	d.filters[1].SetNormalized(c)

	return d
}

// Process filters in into out. in and out may alias. If the active instance
// could not be pinned the block is passed through and counted as skipped.
func (d *DoubleBufferedFilter) Process(in, out []float64) {
	idx, ok := d.acquire()
	if !ok {
		copy(out, in)
		d.skipped.Add(1)

		return
	}

	f := &d.filters[idx]
	if idx != d.last {
		f.SetState(d.state)
		d.last = idx
		d.swaps++
	}

	f.ProcessTo(out, in)
	d.state = f.State()

	d.inUse[idx].Add(-1)
}

// acquire pins the active instance. The index is re-read after the in-use
// increment; a writer that swapped in between sees the increment or the
// reader sees the swap.
func (d *DoubleBufferedFilter) acquire() (int32, bool) {
	for range acquireAttempts {
		idx := d.active.Load()
		d.inUse[idx].Add(1)

		if d.active.Load() == idx {
			return idx, true
		}

		d.inUse[idx].Add(-1)
	}

	return 0, false
}

// Configure applies fn to a copy of the current coefficients and publishes
// the result. fn must only change coefficients. Configure waits for the
// audio side to leave the idle instance, which takes at most one block.
func (d *DoubleBufferedFilter) Configure(fn func(f *biquad.Filter)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.active.Load()
	idle := 1 - cur

	for d.inUse[idle].Load() != 0 {
		runtime.Gosched()
	}

	d.filters[idle].SetNormalized(d.filters[cur].Coefficients())
	fn(&d.filters[idle])
	d.active.Store(idle)
}

// Coefficients returns the coefficients of the active instance.
func (d *DoubleBufferedFilter) Coefficients() biquad.Coefficients {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.filters[d.active.Load()].Coefficients()
}

// Skipped returns the number of blocks passed through because the active
// instance could not be pinned.
func (d *DoubleBufferedFilter) Skipped() uint64 { return d.skipped.Load() }

// Swaps returns how many instance switches the audio side has seen. It must
// be read from the audio goroutine.
func (d *DoubleBufferedFilter) Swaps() uint64 { return d.swaps }
