package rt

import (
	"fmt"
	"unsafe"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

const sampleBytes = int(unsafe.Sizeof(float64(0)))

var errArenaExhausted = fmt.Errorf("%w: arena exhausted", core.ErrNoResource)

// Arena is a bump allocator over one float64 slab. Allocation is O(1) and
// never touches the Go heap after construction. Memory is released in
// stack order with Mark and Restore, or all at once with Reset:
//
//	m := a.Mark()
//	defer a.Restore(m)
//	scratch, err := a.Alloc(n, 64)
//
// An Arena is not safe for concurrent use; give each thread its own.
type Arena struct {
	buf    []float64
	off    int
	peak   int
	locked bool
}

// Mark is a saved allocation offset.
type Mark struct {
	off int
}

// NewArena allocates an arena holding capacity samples.
func NewArena(capacity int) (*Arena, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: arena capacity must be positive: %d", core.ErrInvalidArgument, capacity)
	}

	return &Arena{buf: make([]float64, capacity)}, nil
}

// Alloc returns n zeroed samples whose first element is aligned to
// alignBytes. alignBytes must be 0 (natural alignment) or a power of two
// that is a multiple of 8. The returned slice has capacity n.
func (a *Arena) Alloc(n, alignBytes int) ([]float64, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: arena allocation size must not be negative: %d", core.ErrInvalidArgument, n)
	}

	if alignBytes == 0 {
		alignBytes = sampleBytes
	}

	if !core.IsPowerOfTwo(alignBytes) || alignBytes%sampleBytes != 0 {
		return nil, fmt.Errorf("%w: arena alignment must be a power of two multiple of %d: %d",
			core.ErrInvalidArgument, sampleBytes, alignBytes)
	}

	start := a.off + a.padding(a.off, alignBytes)
	end := start + n

	if end > len(a.buf) {
		return nil, errArenaExhausted
	}

	a.off = end
	a.peak = max(a.peak, end)

	out := a.buf[start:end:end]
	clear(out)

	return out, nil
}

// padding returns the number of samples to skip so that buf[off] is aligned.
func (a *Arena) padding(off, alignBytes int) int {
	if len(a.buf) == 0 || off >= len(a.buf) {
		return 0
	}

	addr := uintptr(unsafe.Pointer(&a.buf[off]))
	rem := int(addr % uintptr(alignBytes))

	if rem == 0 {
		return 0
	}

	return (alignBytes - rem) / sampleBytes
}

// Mark records the current offset.
func (a *Arena) Mark() Mark { return Mark{off: a.off} }

// Restore releases everything allocated after m. Restoring a mark that lies
// beyond the current offset is a no-op.
func (a *Arena) Restore(m Mark) {
	if m.off >= 0 && m.off <= a.off {
		a.off = m.off
	}
}

// Reset releases every allocation.
func (a *Arena) Reset() { a.off = 0 }

// Used returns the number of samples currently allocated, padding included.
func (a *Arena) Used() int { return a.off }

// Peak returns the high-water mark of Used since construction.
func (a *Arena) Peak() int { return a.peak }

// Cap returns the arena capacity in samples.
func (a *Arena) Cap() int { return len(a.buf) }

// Locked reports whether the slab is locked in physical memory.
func (a *Arena) Locked() bool { return a.locked }

// Lock pins the slab in physical memory so the audio thread never takes a
// page fault on it. It is a no-op on platforms without mlock.
func (a *Arena) Lock() error {
	if a.locked {
		return nil
	}

	if err := lockMemory(a.bytes()); err != nil {
		return fmt.Errorf("rt: lock arena of %d bytes: %w", len(a.buf)*sampleBytes, err)
	}

	a.locked = true

	return nil
}

// Unlock releases a previous Lock.
func (a *Arena) Unlock() error {
	if !a.locked {
		return nil
	}

	if err := unlockMemory(a.bytes()); err != nil {
		return fmt.Errorf("rt: unlock arena: %w", err)
	}

	a.locked = false

	return nil
}

func (a *Arena) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&a.buf[0])), len(a.buf)*sampleBytes)
}
