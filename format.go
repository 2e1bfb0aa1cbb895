package framepool

import "github.com/gogpu/gputypes"

// Format describes the pixel layout of a pooled image. The pool only uses it
// to compute row pitch; it never interprets pixel contents.
type Format uint8

const (
	// FormatGray8 is 8-bit grayscale (1 byte per pixel).
	FormatGray8 Format = iota

	// FormatGray16 is 16-bit grayscale (2 bytes per pixel).
	FormatGray16

	// FormatRGB8 is 24-bit RGB (3 bytes per pixel, no alpha).
	FormatRGB8

	// FormatRGBA8 is 32-bit RGBA (4 bytes per pixel).
	// This is the usual format for captured video frames.
	FormatRGBA8

	// FormatRGBAPremul is 32-bit RGBA with premultiplied alpha.
	FormatRGBAPremul

	// FormatBGRA8 is 32-bit BGRA (4 bytes per pixel).
	// Common for frames coming from Windows capture APIs and swapchains.
	FormatBGRA8

	// FormatBGRAPremul is 32-bit BGRA with premultiplied alpha.
	FormatBGRAPremul

	// FormatFloat32 is a single 32-bit float channel, used for depth maps
	// and compute output.
	FormatFloat32

	// formatCount is the number of formats (for internal use).
	formatCount
)

// FormatInfo contains metadata about a pixel format.
type FormatInfo struct {
	// BytesPerPixel is the number of bytes per pixel.
	BytesPerPixel int

	// Channels is the number of channels.
	Channels int

	// HasAlpha indicates if the format has an alpha channel.
	HasAlpha bool

	// IsPremultiplied indicates if alpha is premultiplied.
	IsPremultiplied bool
}

var formatInfoTable = [formatCount]FormatInfo{
	FormatGray8:      {BytesPerPixel: 1, Channels: 1},
	FormatGray16:     {BytesPerPixel: 2, Channels: 1},
	FormatRGB8:       {BytesPerPixel: 3, Channels: 3},
	FormatRGBA8:      {BytesPerPixel: 4, Channels: 4, HasAlpha: true},
	FormatRGBAPremul: {BytesPerPixel: 4, Channels: 4, HasAlpha: true, IsPremultiplied: true},
	FormatBGRA8:      {BytesPerPixel: 4, Channels: 4, HasAlpha: true},
	FormatBGRAPremul: {BytesPerPixel: 4, Channels: 4, HasAlpha: true, IsPremultiplied: true},
	FormatFloat32:    {BytesPerPixel: 4, Channels: 1},
}

// Info returns the FormatInfo for this format.
func (f Format) Info() FormatInfo {
	if f >= formatCount {
		return FormatInfo{}
	}
	return formatInfoTable[f]
}

// BytesPerPixel returns the number of bytes per pixel for this format.
func (f Format) BytesPerPixel() int {
	return f.Info().BytesPerPixel
}

// IsValid returns true if the format is a valid known format.
func (f Format) IsValid() bool {
	return f < formatCount
}

// RowBytes returns the unpadded size of one row of the given width.
func (f Format) RowBytes(width int) int {
	return width * f.BytesPerPixel()
}

// String returns a string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatGray8:
		return "Gray8"
	case FormatGray16:
		return "Gray16"
	case FormatRGB8:
		return "RGB8"
	case FormatRGBA8:
		return "RGBA8"
	case FormatRGBAPremul:
		return "RGBAPremul"
	case FormatBGRA8:
		return "BGRA8"
	case FormatBGRAPremul:
		return "BGRAPremul"
	case FormatFloat32:
		return "Float32"
	default:
		return "Unknown"
	}
}

// ParseFormat returns the format whose String matches name.
func ParseFormat(name string) (Format, bool) {
	for f := range formatCount {
		if f.String() == name {
			return f, true
		}
	}
	return 0, false
}

// TextureFormat returns the matching GPU texture format, or
// gputypes.TextureFormatUndefined when the layout has no direct texture
// equivalent and can only live in a linear buffer.
func (f Format) TextureFormat() gputypes.TextureFormat {
	switch f {
	case FormatGray8:
		return gputypes.TextureFormatR8Unorm
	case FormatRGBA8, FormatRGBAPremul:
		return gputypes.TextureFormatRGBA8Unorm
	case FormatBGRA8, FormatBGRAPremul:
		return gputypes.TextureFormatBGRA8Unorm
	default:
		return gputypes.TextureFormatUndefined
	}
}
