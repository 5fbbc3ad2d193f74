package buffer

// Deinterleave splits interleaved src into the planar dst channels and
// returns the number of frames written. The channel count is len(dst).
func Deinterleave(dst [][]float64, src []float64) int {
	nch := len(dst)
	if nch == 0 {
		return 0
	}

	n := frameCount(dst, len(src), nch)
	for ch, d := range dst {
		for i := range n {
			d[i] = src[i*nch+ch]
		}
	}

	return n
}

// Interleave merges the planar src channels into dst and returns the number
// of frames written.
func Interleave(dst []float64, src [][]float64) int {
	nch := len(src)
	if nch == 0 {
		return 0
	}

	n := frameCount(src, len(dst), nch)
	for ch, s := range src {
		for i := range n {
			dst[i*nch+ch] = s[i]
		}
	}

	return n
}

// DeinterleaveFloat32 is Deinterleave for float32 device buffers.
func DeinterleaveFloat32(dst [][]float64, src []float32) int {
	nch := len(dst)
	if nch == 0 {
		return 0
	}

	n := frameCount(dst, len(src), nch)
	for ch, d := range dst {
		for i := range n {
			d[i] = float64(src[i*nch+ch])
		}
	}

	return n
}

// InterleaveFloat32 is Interleave for float32 device buffers.
func InterleaveFloat32(dst []float32, src [][]float64) int {
	nch := len(src)
	if nch == 0 {
		return 0
	}

	n := frameCount(src, len(dst), nch)
	for ch, s := range src {
		for i := range n {
			dst[i*nch+ch] = float32(s[i])
		}
	}

	return n
}

// Float32To64 converts src into dst and returns the number of samples
// converted.
func Float32To64(dst []float64, src []float32) int {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = float64(src[i])
	}

	return n
}

// Float64To32 converts src into dst and returns the number of samples
// converted.
func Float64To32(dst []float32, src []float64) int {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = float32(src[i])
	}

	return n
}

// frameCount is the number of whole frames that fit both the interleaved
// length and every planar channel.
func frameCount(planar [][]float64, interleavedLen, nch int) int {
	n := interleavedLen / nch
	for _, c := range planar {
		n = min(n, len(c))
	}

	return n
}
