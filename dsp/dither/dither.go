// Package dither converts floating-point samples to integer PCM with
// optional dither noise and first-order noise shaping.
package dither

import (
	"fmt"
	"strings"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

// Type selects the dither applied before rounding.
type Type int

const (
	// None rounds to the nearest step.
	None Type = iota
	// Rectangular adds uniform noise of one step peak-to-peak.
	Rectangular
	// Triangular adds TPDF noise spanning two steps peak-to-peak.
	Triangular
	// Shaped adds TPDF noise and feeds the quantization error back with a
	// first-order highpass, moving noise power towards Nyquist.
	Shaped

	typeCount
)

var typeNames = [typeCount]string{"none", "rectangular", "triangular", "shaped"}

// String returns the lower-case name of t.
func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}

	return fmt.Sprintf("Type(%d)", int(t))
}

// Valid reports whether t is a known dither type.
func (t Type) Valid() bool {
	return t >= 0 && t < typeCount
}

// ParseType maps a name (case-insensitive) to a Type. "tpdf" is accepted
// for Triangular.
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "tpdf" {
		return Triangular, nil
	}

	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}

	return None, fmt.Errorf("%w: unknown dither type %q", core.ErrInvalidArgument, name)
}
