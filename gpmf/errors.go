package gpmf

import "errors"

// Decode errors.
//
// Per-entry problems are contained wherever continuing yields a still-useful
// stream: an unknown type code keeps the entry as raw bytes, a zero scale
// keeps the unscaled values.  ErrMalformedEntry aborts the current buffer
// because the declared lengths can no longer be trusted.
var (
	// ErrMalformedEntry indicates that an entry declared a payload length
	// that would read past the end of its buffer.
	ErrMalformedEntry = errors.New("malformed entry")

	// ErrUnknownTypeCode indicates that an entry used a type code outside
	// the recognized set.  The entry is still surfaced with its raw payload.
	ErrUnknownTypeCode = errors.New("unknown type code")

	// ErrInvalidScale indicates a scale divisor of zero.  Values fall back
	// to their unscaled form.
	ErrInvalidScale = errors.New("invalid scale")
)
