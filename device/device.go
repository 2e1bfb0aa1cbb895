// Package device defines the asynchronous device runtime used by framepool.
//
// A Device owns linear memory, completion events and ordered streams. All
// work submitted to a stream executes in submission order; work on different
// streams is unordered unless joined with events. Copies, fills, event records
// and callbacks are asynchronous: the call returns once the work is queued.
//
// Two implementations ship with this module:
//
//   - device/sim: a software device backed by host memory, used for tests
//     and for running without a GPU
//   - device/halgpu: a device backed by gogpu/wgpu HAL buffers and fences
package device

// Device abstracts over device runtime implementations.
//
// Implementations must be safe for concurrent use.
//
// Resource lifecycle:
//   - Resources are created via Alloc/Create* methods
//   - Resources must be explicitly released via Free/Destroy* methods
//   - Releasing a resource while queued work still references it is undefined
//   - IDs become invalid after release and are never reused
type Device interface {
	// Name returns a human-readable device name for diagnostics.
	Name() string

	// === Memory ===

	// Alloc reserves size bytes of device memory.
	// Returns ErrOutOfMemory (possibly wrapped) when the request cannot be met.
	Alloc(size uint64) (BufferID, error)

	// Free releases device memory. The caller guarantees no queued work
	// still references the buffer.
	Free(id BufferID) error

	// === Events ===

	// CreateEvent creates a completion event. An event that was never
	// recorded counts as signaled.
	CreateEvent() (EventID, error)

	// DestroyEvent releases an event.
	DestroyEvent(id EventID) error

	// RecordEvent captures the current tail of stream s into ev. The event
	// becomes signaled once all work submitted to s before the record has
	// completed. Re-recording replaces the previous capture.
	RecordEvent(ev EventID, s StreamID) error

	// SynchronizeEvent blocks until the most recent record of ev is signaled.
	SynchronizeEvent(ev EventID) error

	// === Streams ===

	// CreateStream creates an independent ordered work queue.
	CreateStream(label string) (StreamID, error)

	// DestroyStream waits for queued work and releases the stream.
	DestroyStream(id StreamID) error

	// StreamWaitEvent makes all work submitted to s after this call wait for
	// the current record of ev. The calling goroutine does not block.
	StreamWaitEvent(s StreamID, ev EventID) error

	// AddCallback queues a one-shot host callback on s.
	AddCallback(s StreamID, fn Callback) error

	// SynchronizeStream blocks until all work submitted to s has completed.
	// It returns the first error the stream encountered since the last call.
	SynchronizeStream(s StreamID) error

	// === Transfers ===

	// CopyHostToDevice queues a strided copy of rows rows of rowBytes bytes
	// from host memory into dst. src must stay untouched until the stream
	// has executed the copy.
	CopyHostToDevice(s StreamID, dst BufferID, dstPitch uint64, src []byte, srcPitch, rowBytes uint64, rows int) error

	// CopyDeviceToHost queues a strided copy from src into host memory.
	// dst is valid to read once the stream has executed the copy.
	CopyDeviceToHost(s StreamID, dst []byte, dstPitch uint64, src BufferID, srcPitch, rowBytes uint64, rows int) error

	// CopyDeviceToDevice queues a strided copy between two device buffers.
	CopyDeviceToDevice(s StreamID, dst BufferID, dstPitch uint64, src BufferID, srcPitch, rowBytes uint64, rows int) error

	// Fill queues a byte fill of size bytes of dst starting at offset.
	Fill(s StreamID, dst BufferID, offset, size uint64, value byte) error

	// Close waits for all streams and releases every resource the device
	// still owns. Close is idempotent.
	Close() error
}

// CheckCopy2D validates a strided copy against the sizes of its source and
// destination.
func CheckCopy2D(dstLen, dstPitch, srcLen, srcPitch, rowBytes uint64, rows int) error {
	if rows <= 0 || rowBytes == 0 {
		return nil
	}
	if rowBytes > dstPitch || rowBytes > srcPitch {
		return ErrOutOfRange
	}
	last := uint64(rows - 1)
	if last*dstPitch+rowBytes > dstLen || last*srcPitch+rowBytes > srcLen {
		return ErrOutOfRange
	}
	return nil
}
