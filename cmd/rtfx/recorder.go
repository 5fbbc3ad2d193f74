package main

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cwbudde/algo-rtfx/dsp/buffer"
	"github.com/cwbudde/algo-rtfx/dsp/dither"
	"github.com/cwbudde/algo-rtfx/dsp/rt"
)

const recordBitDepth = 16

type recordChunk struct {
	block *rt.Block
	n     int
}

// recorder writes the processed live stream to a WAV file. Push runs on
// the audio thread and never blocks or allocates: samples go into
// preallocated slab blocks that a writer goroutine encodes and returns.
// When the writer falls behind, samples are dropped and counted.
type recorder struct {
	file     *os.File
	pool     *rt.SlabPool
	chunks   chan recordChunk
	done     chan error
	closed   atomic.Bool
	dropped  atomic.Uint64
	written  atomic.Uint64
	channels int
}

// newRecorder creates path and starts the writer. blockSamples is rounded
// down to whole frames; blocks bounds the backlog.
func newRecorder(path string, sampleRate, channels, blockSamples, blocks int, kind dither.Type) (*recorder, error) {
	if channels < 1 {
		return nil, fmt.Errorf("recorder: invalid channel count %d", channels)
	}

	blockSamples -= blockSamples % channels
	if blockSamples <= 0 {
		blockSamples = channels
	}

	pool, err := rt.NewSlabPool(blocks, blockSamples)
	if err != nil {
		return nil, err
	}

	quantizers, err := newQuantizers(channels, recordBitDepth, kind, 0)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	r := &recorder{
		file:     f,
		pool:     pool,
		chunks:   make(chan recordChunk, blocks),
		done:     make(chan error, 1),
		channels: channels,
	}

	enc := wav.NewEncoder(f, sampleRate, recordBitDepth, channels, wavFormatPCM)
	go r.run(enc, sampleRate, quantizers)

	return r, nil
}

// Push queues interleaved samples.
func (r *recorder) Push(buf []float32) {
	if r.closed.Load() {
		return
	}

	size := r.pool.BlockSize()

	for len(buf) > 0 {
		n := min(len(buf), size)

		b, err := r.pool.Get()
		if err != nil {
			r.dropped.Add(uint64(n))
			buf = buf[n:]

			continue
		}

		buffer.Float32To64(b.Data[:n], buf[:n])

		select {
		case r.chunks <- recordChunk{block: b, n: n}:
		default:
			_ = r.pool.Put(b)
			r.dropped.Add(uint64(n))
		}

		buf = buf[n:]
	}
}

func (r *recorder) run(enc *wav.Encoder, sampleRate int, quantizers []*dither.Quantizer) {
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: r.channels, SampleRate: sampleRate},
		SourceBitDepth: recordBitDepth,
		Data:           make([]int, r.pool.BlockSize()),
	}

	var err error

	for c := range r.chunks {
		ib.Data = ib.Data[:c.n]
		for i, x := range c.block.Data[:c.n] {
			ib.Data[i] = quantizers[i%r.channels].Quantize(x)
		}

		_ = r.pool.Put(c.block)

		if err == nil {
			if err = enc.Write(ib); err == nil {
				r.written.Add(uint64(c.n))
			}
		}
	}

	if cerr := enc.Close(); err == nil {
		err = cerr
	}

	r.done <- err
}

// Close stops accepting samples, drains the backlog and finalizes the
// file. Push must not run concurrently with Close.
func (r *recorder) Close() error {
	if r.closed.Swap(true) {
		return nil
	}

	close(r.chunks)

	err := <-r.done
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}

	return err
}

// Dropped returns the number of samples lost to a full backlog.
func (r *recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns the number of samples handed to the encoder.
func (r *recorder) Written() uint64 { return r.written.Load() }
