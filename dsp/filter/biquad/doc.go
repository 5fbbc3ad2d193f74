// Package biquad provides biquad (second-order IIR) filter coefficients and
// the recursive runtime used by every tonal stage of the engine.
//
// [Coefficients] hold a normalized transfer function
//
//	H(z) = (A0 + A1*z^-1 + A2*z^-2) / (1 + B1*z^-1 + B2*z^-2)
//
// where the A terms are feed-forward and the B terms are feedback; the
// leading feedback coefficient B0 is normalized to 1 and not stored.
//
// [Design] and the per-response functions implement the RBJ audio-EQ
// cookbook. A [Filter] owns one coefficient set plus mono and right-channel
// recursive state and never allocates while processing.
package biquad
