package device

// Resource IDs
//
// These opaque IDs represent device resources. Each Device implementation
// maintains a mapping between IDs and its actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a region of device memory.
type BufferID uint64

// EventID is an opaque handle to a device completion event.
type EventID uint64

// StreamID is an opaque handle to an ordered device work queue.
type StreamID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Callback is invoked once by a stream after all work submitted to it before
// the callback has completed. status is nil on success or the first error the
// stream encountered.
//
// Callbacks run on a device-owned goroutine. They must not block and must not
// call back into the Device on the same stream.
type Callback func(status error)
