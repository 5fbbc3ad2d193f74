package core

import "errors"

// Sentinel errors shared by all processors. Validation failures wrap one of
// these so callers can classify them with errors.Is.
var (
	// ErrInvalidArgument reports an out-of-range scalar parameter.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidConfig reports a structurally invalid configuration record.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoResource reports that a pool or arena has no capacity left.
	ErrNoResource = errors.New("no resource available")
)
