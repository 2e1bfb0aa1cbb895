// Package image provides host-side staging frames for framepool transfers.
//
// An ImageBuf holds pixel rows in a contiguous byte slice with a stride. By
// default the stride is the device pitch for the frame, so a whole buffer can
// be handed to a single strided device copy.
package image

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/gogpu/framepool"
)

// Common errors for image operations.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("image: invalid dimensions")

	// ErrInvalidFormat is returned when the format is not recognized.
	ErrInvalidFormat = errors.New("image: invalid format")

	// ErrInvalidStride is returned when stride is less than minimum required.
	ErrInvalidStride = errors.New("image: stride too small for width")

	// ErrDataTooSmall is returned when provided data is smaller than required.
	ErrDataTooSmall = errors.New("image: data buffer too small")

	// ErrOutOfBounds is returned when pixel coordinates are outside image bounds.
	ErrOutOfBounds = errors.New("image: coordinates out of bounds")
)

// ImageBuf is a strided host frame.
//
// Thread safety: ImageBuf is safe for concurrent reads. Writes require
// external synchronization.
type ImageBuf struct {
	data   []byte
	width  int
	height int
	stride int
	format framepool.Format
}

// NewImageBuf creates a frame whose stride matches framepool.Pitch.
func NewImageBuf(width, height int, format framepool.Format) (*ImageBuf, error) {
	if !format.IsValid() {
		return nil, ErrInvalidFormat
	}
	return NewImageBufWithStride(width, height, format, int(framepool.Pitch(width, format)))
}

// NewImageBufWithStride creates a frame with a custom stride. Stride must be
// at least format.RowBytes(width).
func NewImageBufWithStride(width, height int, format framepool.Format, stride int) (*ImageBuf, error) {
	if err := validate(width, height, format, stride); err != nil {
		return nil, err
	}
	return &ImageBuf{
		data:   make([]byte, stride*height),
		width:  width,
		height: height,
		stride: stride,
		format: format,
	}, nil
}

// FromRaw wraps existing data without copying.
// The caller must ensure data remains valid for the lifetime of the ImageBuf.
func FromRaw(data []byte, width, height int, format framepool.Format, stride int) (*ImageBuf, error) {
	if err := validate(width, height, format, stride); err != nil {
		return nil, err
	}
	if len(data) < stride*height {
		return nil, ErrDataTooSmall
	}
	return &ImageBuf{
		data:   data[:stride*height],
		width:  width,
		height: height,
		stride: stride,
		format: format,
	}, nil
}

func validate(width, height int, format framepool.Format, stride int) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}
	if !format.IsValid() {
		return ErrInvalidFormat
	}
	if stride < format.RowBytes(width) {
		return ErrInvalidStride
	}
	return nil
}

// Clone creates a deep copy of the frame.
func (b *ImageBuf) Clone() *ImageBuf {
	c := *b
	c.data = append([]byte(nil), b.data...)
	return &c
}

// Width returns the frame width in pixels.
func (b *ImageBuf) Width() int { return b.width }

// Height returns the frame height in pixels.
func (b *ImageBuf) Height() int { return b.height }

// Stride returns the byte distance between rows.
func (b *ImageBuf) Stride() int { return b.stride }

// Format returns the pixel format.
func (b *ImageBuf) Format() framepool.Format { return b.format }

// Data returns the backing bytes, stride*height long.
func (b *ImageBuf) Data() []byte { return b.data }

// ByteSize returns len(Data()).
func (b *ImageBuf) ByteSize() int { return len(b.data) }

// RowBytes returns the pixel bytes of row y, without stride padding.
func (b *ImageBuf) RowBytes(y int) []byte {
	if y < 0 || y >= b.height {
		return nil
	}
	start := y * b.stride
	return b.data[start : start+b.format.RowBytes(b.width)]
}

// PixelOffset returns the byte offset of pixel (x, y), or -1 if out of bounds.
func (b *ImageBuf) PixelOffset(x, y int) int {
	if x < 0 || x >= b.width || y < 0 || y >= b.height {
		return -1
	}
	return y*b.stride + x*b.format.BytesPerPixel()
}

// PixelBytes returns the bytes of pixel (x, y), or nil if out of bounds.
func (b *ImageBuf) PixelBytes(x, y int) []byte {
	off := b.PixelOffset(x, y)
	if off < 0 {
		return nil
	}
	return b.data[off : off+b.format.BytesPerPixel()]
}

// GetRGBA returns pixel (x, y) as 8-bit RGBA in the frame's own alpha
// convention. Gray16 keeps the high byte; Float32 is clamped to [0, 1].
func (b *ImageBuf) GetRGBA(x, y int) (r, g, bl, a uint8) {
	p := b.PixelBytes(x, y)
	if p == nil {
		return 0, 0, 0, 0
	}
	switch b.format {
	case framepool.FormatGray8:
		return p[0], p[0], p[0], 255
	case framepool.FormatGray16:
		v := uint8(binary.LittleEndian.Uint16(p) >> 8)
		return v, v, v, 255
	case framepool.FormatRGB8:
		return p[0], p[1], p[2], 255
	case framepool.FormatRGBA8, framepool.FormatRGBAPremul:
		return p[0], p[1], p[2], p[3]
	case framepool.FormatBGRA8, framepool.FormatBGRAPremul:
		return p[2], p[1], p[0], p[3]
	case framepool.FormatFloat32:
		v := math.Float32frombits(binary.LittleEndian.Uint32(p))
		g := unitToByte(v)
		return g, g, g, 255
	}
	return 0, 0, 0, 0
}

// SetRGBA stores an 8-bit RGBA value at (x, y). Single channel formats keep
// the Rec. 601 luma of the color.
func (b *ImageBuf) SetRGBA(x, y int, r, g, bl, a uint8) error {
	p := b.PixelBytes(x, y)
	if p == nil {
		return ErrOutOfBounds
	}
	b.encode(p, r, g, bl, a)
	return nil
}

// encode writes an 8-bit RGBA value into the pixel bytes p.
func (b *ImageBuf) encode(p []byte, r, g, bl, a uint8) {
	switch b.format {
	case framepool.FormatGray8:
		p[0] = luma(r, g, bl)
	case framepool.FormatGray16:
		v := uint16(luma(r, g, bl))
		binary.LittleEndian.PutUint16(p, v<<8|v)
	case framepool.FormatRGB8:
		p[0], p[1], p[2] = r, g, bl
	case framepool.FormatRGBA8, framepool.FormatRGBAPremul:
		p[0], p[1], p[2], p[3] = r, g, bl, a
	case framepool.FormatBGRA8, framepool.FormatBGRAPremul:
		p[0], p[1], p[2], p[3] = bl, g, r, a
	case framepool.FormatFloat32:
		binary.LittleEndian.PutUint32(p, math.Float32bits(float32(luma(r, g, bl))/255))
	}
}

// Clear zeroes the whole frame, padding included.
func (b *ImageBuf) Clear() {
	clear(b.data)
}

// Fill sets every pixel to the given color.
func (b *ImageBuf) Fill(r, g, bl, a uint8) {
	if b.width == 0 || b.height == 0 {
		return
	}
	bpp := b.format.BytesPerPixel()
	px := b.data[:bpp]
	b.encode(px, r, g, bl, a)
	row := b.RowBytes(0)
	for x := 1; x < b.width; x++ {
		copy(row[x*bpp:], px)
	}
	for y := 1; y < b.height; y++ {
		copy(b.RowBytes(y), row)
	}
}

// IsEmpty reports whether the frame has no pixels.
func (b *ImageBuf) IsEmpty() bool {
	return b.width == 0 || b.height == 0
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

func unitToByte(v float32) uint8 {
	switch {
	case math.IsNaN(float64(v)) || v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
