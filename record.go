package framepool

import "github.com/gogpu/framepool/device"

// ID identifies one issue of a pooled buffer. Every RequestOutputImage
// returns a fresh ID, including when the underlying memory is recycled.
type ID uint64

// InvalidID is the zero value and never names an image.
const InvalidID ID = 0

// record is the pool's bookkeeping for one device buffer.
// All fields are guarded by Manager.mu.
type record struct {
	id       ID
	buf      device.BufferID
	ready    device.EventID
	tier     int
	capacity uint64

	width  int
	height int
	pitch  uint64
	size   uint64
	format Format

	// refs counts outstanding accessors, the handle returned by Finalise
	// and retains.
	refs int32

	// published is set while the record is listed in the valid table.
	// Listing never contributes to refs.
	published bool

	lastStream device.StreamID
}

// image returns the published handle for the record.
func (r *record) image() Image {
	return Image{
		ID:     r.id,
		Width:  r.width,
		Height: r.height,
		Pitch:  r.pitch,
		Size:   r.size,
		Format: r.format,
	}
}

func (r *record) view() accessor {
	return accessor{
		id:     r.id,
		buf:    r.buf,
		ready:  r.ready,
		width:  r.width,
		height: r.height,
		pitch:  r.pitch,
		size:   r.size,
		format: r.format,
	}
}

// Image is the handle to a published image returned by Finalise. It owns
// one reference: the image stays readable until the owner gives it back with
// Manager.ReleaseImage. Copies of the value share that single reference; use
// Manager.Retain to hand out more.
type Image struct {
	ID     ID
	Width  int
	Height int
	Pitch  uint64
	Size   uint64
	Format Format
}

// IsValid reports whether the handle names an image.
func (img Image) IsValid() bool {
	return img.ID != InvalidID
}
