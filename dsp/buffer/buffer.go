package buffer

// Buffer holds planar audio: one contiguous []float64 per channel, all
// carved from a single backing slice.
type Buffer struct {
	data     []float64
	channels int
	frames   int
}

// New returns a zero-filled Buffer. Negative sizes are treated as zero.
func New(channels, frames int) *Buffer {
	b := &Buffer{}
	b.Resize(channels, frames)

	return b
}

// FromChannels copies the given channel slices into a new Buffer. Frames is
// the length of the shortest channel.
func FromChannels(chans ...[]float64) *Buffer {
	frames := 0
	if len(chans) > 0 {
		frames = len(chans[0])
		for _, c := range chans[1:] {
			frames = min(frames, len(c))
		}
	}

	b := New(len(chans), frames)
	for i, c := range chans {
		copy(b.Channel(i), c)
	}

	return b
}

// Channels returns the channel count.
func (b *Buffer) Channels() int { return b.channels }

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int { return b.frames }

// Channel returns the samples of channel ch, or nil when ch is out of range.
// The slice aliases the buffer.
func (b *Buffer) Channel(ch int) []float64 {
	if ch < 0 || ch >= b.channels {
		return nil
	}

	start := ch * b.frames
	end := start + b.frames

	return b.data[start:end:end]
}

// Planar returns every channel slice. The outer slice is allocated; call it
// outside the audio path.
func (b *Buffer) Planar() [][]float64 {
	out := make([][]float64, b.channels)
	for i := range out {
		out[i] = b.Channel(i)
	}

	return out
}

// Resize changes the layout, reusing the backing array when it is large
// enough. The contents are zeroed.
func (b *Buffer) Resize(channels, frames int) {
	channels = max(channels, 0)
	frames = max(frames, 0)
	n := channels * frames

	if n <= cap(b.data) {
		b.data = b.data[:n]
	} else {
		b.data = make([]float64, n)
	}

	b.channels = channels
	b.frames = frames
	b.Zero()
}

// Zero sets all samples to 0.
func (b *Buffer) Zero() {
	clear(b.data)
}

// Copy returns a deep copy of the buffer.
func (b *Buffer) Copy() *Buffer {
	out := &Buffer{
		data:     make([]float64, len(b.data)),
		channels: b.channels,
		frames:   b.frames,
	}
	copy(out.data, b.data)

	return out
}

// ReadInterleaved32 deinterleaves src into the buffer and returns the number
// of frames read, which is limited by both Frames and len(src)/Channels.
func (b *Buffer) ReadInterleaved32(src []float32) int {
	if b.channels == 0 {
		return 0
	}

	n := min(b.frames, len(src)/b.channels)
	for ch := range b.channels {
		dst := b.Channel(ch)
		for i := range n {
			dst[i] = float64(src[i*b.channels+ch])
		}
	}

	return n
}

// WriteInterleaved32 interleaves the buffer into dst and returns the number
// of frames written.
func (b *Buffer) WriteInterleaved32(dst []float32) int {
	if b.channels == 0 {
		return 0
	}

	n := min(b.frames, len(dst)/b.channels)
	for ch := range b.channels {
		src := b.Channel(ch)
		for i := range n {
			dst[i*b.channels+ch] = float32(src[i])
		}
	}

	return n
}
