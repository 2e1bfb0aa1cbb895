package device

import "errors"

// Device errors. Implementations wrap these with fmt.Errorf("...: %w") so
// callers can match them with errors.Is.
var (
	// ErrOutOfMemory is returned when an allocation cannot be satisfied.
	ErrOutOfMemory = errors.New("device: out of memory")

	// ErrInvalidBuffer is returned for an unknown or already freed buffer.
	ErrInvalidBuffer = errors.New("device: invalid buffer")

	// ErrInvalidEvent is returned for an unknown or destroyed event.
	ErrInvalidEvent = errors.New("device: invalid event")

	// ErrInvalidStream is returned for an unknown or destroyed stream.
	ErrInvalidStream = errors.New("device: invalid stream")

	// ErrOutOfRange is returned when a copy or fill exceeds a buffer.
	ErrOutOfRange = errors.New("device: access out of range")

	// ErrDeviceClosed is returned after Close.
	ErrDeviceClosed = errors.New("device: closed")
)
