package framepool

import "errors"

// Pool errors. Device failures are wrapped so that both the pool sentinel and
// the underlying device sentinel match with errors.Is.
var (
	// ErrAllocationFailed is returned when device memory, an event or a
	// stream could not be created.
	ErrAllocationFailed = errors.New("framepool: allocation failed")

	// ErrInvalidAccessor is returned when an accessor or image id does not
	// name a buffer in the state the operation requires.
	ErrInvalidAccessor = errors.New("framepool: invalid accessor")

	// ErrCallbackRegistration is returned when a release callback could not
	// be queued on a stream.
	ErrCallbackRegistration = errors.New("framepool: stream callback registration failed")

	// ErrManagerClosed is returned when operating on a closed manager.
	ErrManagerClosed = errors.New("framepool: manager closed")

	// ErrInvalidDimensions is returned for negative width or height.
	ErrInvalidDimensions = errors.New("framepool: invalid dimensions")

	// ErrInvalidFormat is returned for an unknown pixel format.
	ErrInvalidFormat = errors.New("framepool: invalid format")

	// ErrNoDevice is returned when no device has been registered.
	ErrNoDevice = errors.New("framepool: no device registered")

	// ErrDeviceAlreadyRegistered is returned by a second RegisterDevice.
	ErrDeviceAlreadyRegistered = errors.New("framepool: device already registered")

	// ErrPoolStarted is returned by SetDeviceProvider once Default has
	// created the process-wide pool.
	ErrPoolStarted = errors.New("framepool: device provider must be set before the pool is used")
)
