package buffer

import "sync"

// Pool recycles Buffers between offline processing jobs to reduce GC
// pressure. It is backed by sync.Pool and is not meant for the audio
// thread, which should use preallocated storage instead.
type Pool struct {
	pool sync.Pool
}

// NewPool returns a Pool ready for use.
func NewPool() *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				return &Buffer{}
			},
		},
	}
}

// Get returns a zeroed Buffer with the requested layout. Callers must
// return it via Put when done.
func (p *Pool) Get(channels, frames int) *Buffer {
	b := p.pool.Get().(*Buffer)
	b.Resize(channels, frames)

	return b
}

// Put returns a Buffer to the pool. The caller must not use it afterwards.
func (p *Pool) Put(b *Buffer) {
	if b == nil {
		return
	}

	p.pool.Put(b)
}
