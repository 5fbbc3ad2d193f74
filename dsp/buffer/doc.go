// Package buffer bridges the host boundary and the float64 processors.
//
// Devices and files deliver interleaved float32 or integer frames; every
// processor in this module works on planar []float64 channels. Buffer holds
// planar audio in one allocation, and the Interleave/Deinterleave helpers
// convert between the layouts without allocating, so they can run inside a
// device callback.
package buffer
