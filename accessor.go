package framepool

import "github.com/gogpu/framepool/device"

// Accessor is implemented by *WriteAccessor and *ReadAccessor.
//
// An accessor is a capability: it carries one reference on its buffer until
// it is finalised or released, after which every getter returns zero values
// and the pool rejects it with ErrInvalidAccessor. Accessors are not safe for
// concurrent use; hand one to a single goroutine at a time.
type Accessor interface {
	ID() ID
	Buffer() device.BufferID
	ReadyEvent() device.EventID
	Width() int
	Height() int
	Pitch() uint64
	Size() uint64
	Format() Format
	Valid() bool

	base() *accessor
}

type accessor struct {
	id     ID
	buf    device.BufferID
	ready  device.EventID
	width  int
	height int
	pitch  uint64
	size   uint64
	format Format
}

// ID returns the image id, or InvalidID once the accessor is spent.
func (a *accessor) ID() ID { return a.id }

// Buffer returns the device memory of the image.
func (a *accessor) Buffer() device.BufferID { return a.buf }

// ReadyEvent returns the event signaled when the last writer finished.
// Consumers order their stream after it with Device.StreamWaitEvent.
func (a *accessor) ReadyEvent() device.EventID { return a.ready }

// Width returns the image width in pixels.
func (a *accessor) Width() int { return a.width }

// Height returns the image height in rows.
func (a *accessor) Height() int { return a.height }

// Pitch returns the aligned row stride in bytes.
func (a *accessor) Pitch() uint64 { return a.pitch }

// Size returns Pitch()*Height(), the logical size of the image.
func (a *accessor) Size() uint64 { return a.size }

// Format returns the pixel format.
func (a *accessor) Format() Format { return a.format }

// Valid reports whether the accessor still holds its reference.
func (a *accessor) Valid() bool { return a.id != InvalidID }

func (a *accessor) base() *accessor { return a }

func (a *accessor) invalidate() {
	*a = accessor{}
}

// WriteAccessor grants exclusive write access to a freshly issued buffer.
// It is returned by RequestOutputImage and spent by Finalise, Autorelease or
// Release.
type WriteAccessor struct {
	accessor
}

// ReadAccessor grants shared read access to a published image.
type ReadAccessor struct {
	accessor
}

var (
	_ Accessor = (*WriteAccessor)(nil)
	_ Accessor = (*ReadAccessor)(nil)
)
