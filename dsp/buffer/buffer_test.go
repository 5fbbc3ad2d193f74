package buffer

import "testing"

func TestNewZeroFilled(t *testing.T) {
	b := New(2, 8)
	if b.Channels() != 2 || b.Frames() != 8 {
		t.Fatalf("layout = %dx%d, want 2x8", b.Channels(), b.Frames())
	}

	for ch := range 2 {
		for i, v := range b.Channel(ch) {
			if v != 0 {
				t.Fatalf("Channel(%d)[%d] = %v, want 0", ch, i, v)
			}
		}
	}
}

func TestNewNegativeSizes(t *testing.T) {
	b := New(-1, -5)
	if b.Channels() != 0 || b.Frames() != 0 {
		t.Fatalf("layout = %dx%d, want 0x0", b.Channels(), b.Frames())
	}

	if b.Channel(0) != nil {
		t.Fatal("Channel(0) on empty buffer should be nil")
	}
}

func TestChannelsAreDisjoint(t *testing.T) {
	b := New(3, 4)

	for ch := range 3 {
		c := b.Channel(ch)
		if len(c) != 4 || cap(c) != 4 {
			t.Fatalf("Channel(%d) len/cap = %d/%d, want 4/4", ch, len(c), cap(c))
		}

		for i := range c {
			c[i] = float64(ch + 1)
		}
	}

	for ch := range 3 {
		for i, v := range b.Channel(ch) {
			if v != float64(ch+1) {
				t.Fatalf("Channel(%d)[%d] = %v, want %d", ch, i, v, ch+1)
			}
		}
	}

	if b.Channel(3) != nil || b.Channel(-1) != nil {
		t.Fatal("out-of-range Channel should be nil")
	}
}

func TestFromChannelsUsesShortest(t *testing.T) {
	b := FromChannels([]float64{1, 2, 3}, []float64{4, 5})
	if b.Frames() != 2 {
		t.Fatalf("Frames() = %d, want 2", b.Frames())
	}

	if got := b.Channel(1); got[0] != 4 || got[1] != 5 {
		t.Fatalf("Channel(1) = %v, want [4 5]", got)
	}
}

func TestResizeReusesAndZeroes(t *testing.T) {
	b := New(2, 16)
	b.Channel(0)[0] = 42

	backing := &b.data[0]

	b.Resize(1, 8)

	if &b.data[0] != backing {
		t.Fatal("shrinking Resize reallocated")
	}

	if b.Channel(0)[0] != 0 {
		t.Fatal("Resize left stale data")
	}

	b.Resize(4, 64)
	if b.Channels() != 4 || b.Frames() != 64 || len(b.data) != 256 {
		t.Fatalf("grow layout = %dx%d (%d)", b.Channels(), b.Frames(), len(b.data))
	}
}

func TestCopyIsDeep(t *testing.T) {
	b := FromChannels([]float64{1, 2}, []float64{3, 4})
	c := b.Copy()
	c.Channel(0)[0] = 99

	if b.Channel(0)[0] != 1 {
		t.Fatal("Copy shares memory with the original")
	}

	if c.Channels() != 2 || c.Frames() != 2 {
		t.Fatalf("Copy layout = %dx%d", c.Channels(), c.Frames())
	}
}

func TestInterleaved32RoundTrip(t *testing.T) {
	src := []float32{0.5, -0.5, 0.25, -0.25, 1, -1, 9}
	b := New(2, 8)

	if n := b.ReadInterleaved32(src); n != 3 {
		t.Fatalf("ReadInterleaved32() = %d frames, want 3", n)
	}

	if l, r := b.Channel(0), b.Channel(1); l[2] != 1 || r[2] != -1 || r[0] != -0.5 {
		t.Fatalf("deinterleaved L=%v R=%v", l[:3], r[:3])
	}

	dst := make([]float32, 6)
	if n := b.WriteInterleaved32(dst); n != 3 {
		t.Fatalf("WriteInterleaved32() = %d frames, want 3", n)
	}

	for i, v := range dst {
		if v != src[i] {
			t.Fatalf("dst[%d] = %v, want %v", i, v, src[i])
		}
	}
}
