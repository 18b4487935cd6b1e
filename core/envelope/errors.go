package envelope

import "errors"

var (
	// ErrMalformedFrame is returned when a frame cannot be parsed.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownKind is returned when a frame carries a kind clients may not send.
	ErrUnknownKind = errors.New("unknown envelope kind")

	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")
)
