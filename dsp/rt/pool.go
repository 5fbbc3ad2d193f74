package rt

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

// ErrForeignValue is returned by Put for a pointer that does not belong to
// the pool or is already free.
var ErrForeignValue = errors.New("rt: value does not belong to pool or is already free")

var errPoolExhausted = fmt.Errorf("%w: pool exhausted", core.ErrNoResource)

// Pool is a fixed-capacity pool of preallocated values. Get and Put are
// lock-free, allocation-free and bounded by the capacity, so they are safe
// to call from the audio thread and any number of other goroutines.
type Pool[T any] struct {
	items  []T
	free   []atomic.Pointer[T]
	index  map[*T]int
	cursor atomic.Uint64
	avail  atomic.Int64
}

// NewPool preallocates capacity values. init, when non-nil, is called once
// per slot with the slot index.
func NewPool[T any](capacity int, init func(i int, v *T)) (*Pool[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: pool capacity must be positive: %d", core.ErrInvalidArgument, capacity)
	}

	p := &Pool[T]{
		items: make([]T, capacity),
		free:  make([]atomic.Pointer[T], capacity),
		index: make(map[*T]int, capacity),
	}

	for i := range p.items {
		v := &p.items[i]
		if init != nil {
			init(i, v)
		}

		p.free[i].Store(v)
		p.index[v] = i
	}

	p.avail.Store(int64(capacity))

	return p, nil
}

// Get takes a free value. It fails with core.ErrNoResource when no free slot
// was found within one pass over the pool.
func (p *Pool[T]) Get() (*T, error) {
	n := uint64(len(p.free))

	for range n {
		slot := &p.free[(p.cursor.Add(1)-1)%n]

		v := slot.Load()
		if v != nil && slot.CompareAndSwap(v, nil) {
			p.avail.Add(-1)
			return v, nil
		}
	}

	return nil, errPoolExhausted
}

// Put returns v to the pool. Every value has a home slot, so a double Put or
// a pointer from elsewhere is rejected with ErrForeignValue.
func (p *Pool[T]) Put(v *T) error {
	i, ok := p.index[v]
	if !ok || !p.free[i].CompareAndSwap(nil, v) {
		return ErrForeignValue
	}

	p.avail.Add(1)

	return nil
}

// held reports whether v belongs to the pool and is currently taken.
func (p *Pool[T]) held(v *T) bool {
	i, ok := p.index[v]
	return ok && p.free[i].Load() == nil
}

// Cap returns the number of values owned by the pool.
func (p *Pool[T]) Cap() int { return len(p.items) }

// Available returns the number of free values. Under concurrent use the
// result is a snapshot.
func (p *Pool[T]) Available() int { return int(p.avail.Load()) }

// Block is one fixed-size buffer handed out by a SlabPool.
type Block struct {
	Data []float64
}

// SlabPool hands out equally sized float64 blocks that share one backing
// allocation.
type SlabPool struct {
	*Pool[Block]

	blockSize int
}

// NewSlabPool allocates blocks*blockSize samples and splits them into blocks.
func NewSlabPool(blocks, blockSize int) (*SlabPool, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: slab block size must be positive: %d", core.ErrInvalidArgument, blockSize)
	}

	if blocks <= 0 {
		return nil, fmt.Errorf("%w: slab block count must be positive: %d", core.ErrInvalidArgument, blocks)
	}

	slab := make([]float64, blocks*blockSize)

	pool, err := NewPool(blocks, func(i int, b *Block) {
		b.Data = slab[i*blockSize : (i+1)*blockSize : (i+1)*blockSize]
	})
	if err != nil {
		return nil, err
	}

	return &SlabPool{Pool: pool, blockSize: blockSize}, nil
}

// BlockSize returns the length of every block.
func (s *SlabPool) BlockSize() int { return s.blockSize }

// Put zeroes b and returns it to the pool.
func (s *SlabPool) Put(b *Block) error {
	if !s.held(b) {
		return ErrForeignValue
	}

	clear(b.Data)

	return s.Pool.Put(b)
}

// ObjectPool is a Pool whose values are built by a constructor and reset
// by a callback on Put.
type ObjectPool[T any] struct {
	pool  *Pool[T]
	reset func(*T)
}

// NewObjectPool builds capacity values with newFn. reset, when non-nil, runs
// on every value returned through Put.
func NewObjectPool[T any](capacity int, newFn func() T, reset func(*T)) (*ObjectPool[T], error) {
	pool, err := NewPool(capacity, func(_ int, v *T) {
		if newFn != nil {
			*v = newFn()
		}
	})
	if err != nil {
		return nil, err
	}

	return &ObjectPool[T]{pool: pool, reset: reset}, nil
}

// Get takes a free value or fails with core.ErrNoResource.
func (o *ObjectPool[T]) Get() (*T, error) { return o.pool.Get() }

// Put resets v and returns it to the pool.
func (o *ObjectPool[T]) Put(v *T) error {
	if !o.pool.held(v) {
		return ErrForeignValue
	}

	if o.reset != nil {
		o.reset(v)
	}

	return o.pool.Put(v)
}

// Cap returns the pool capacity.
func (o *ObjectPool[T]) Cap() int { return o.pool.Cap() }

// Available returns the number of free values.
func (o *ObjectPool[T]) Available() int { return o.pool.Available() }
