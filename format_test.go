package framepool

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
)

func TestFormat_Info(t *testing.T) {
	tests := []struct {
		format Format
		bpp    int
		name   string
	}{
		{FormatGray8, 1, "Gray8"},
		{FormatGray16, 2, "Gray16"},
		{FormatRGB8, 3, "RGB8"},
		{FormatRGBA8, 4, "RGBA8"},
		{FormatRGBAPremul, 4, "RGBAPremul"},
		{FormatBGRA8, 4, "BGRA8"},
		{FormatBGRAPremul, 4, "BGRAPremul"},
		{FormatFloat32, 4, "Float32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.format.IsValid())
			assert.Equal(t, tt.bpp, tt.format.BytesPerPixel())
			assert.Equal(t, tt.name, tt.format.String())
			assert.Equal(t, 10*tt.bpp, tt.format.RowBytes(10))

			parsed, ok := ParseFormat(tt.name)
			assert.True(t, ok)
			assert.Equal(t, tt.format, parsed)
		})
	}
}

func TestFormat_Unknown(t *testing.T) {
	f := Format(99)
	assert.False(t, f.IsValid())
	assert.Equal(t, "Unknown", f.String())
	assert.Equal(t, 0, f.BytesPerPixel())
	assert.Equal(t, gputypes.TextureFormatUndefined, f.TextureFormat())

	_, ok := ParseFormat("YUV420")
	assert.False(t, ok)
}

func TestFormat_TextureFormat(t *testing.T) {
	assert.Equal(t, gputypes.TextureFormatR8Unorm, FormatGray8.TextureFormat())
	assert.Equal(t, gputypes.TextureFormatRGBA8Unorm, FormatRGBA8.TextureFormat())
	assert.Equal(t, gputypes.TextureFormatRGBA8Unorm, FormatRGBAPremul.TextureFormat())
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, FormatBGRA8.TextureFormat())
	assert.Equal(t, gputypes.TextureFormatUndefined, FormatRGB8.TextureFormat())
}

func TestFormat_AlphaInfo(t *testing.T) {
	assert.True(t, FormatRGBA8.Info().HasAlpha)
	assert.False(t, FormatRGBA8.Info().IsPremultiplied)
	assert.True(t, FormatBGRAPremul.Info().IsPremultiplied)
	assert.False(t, FormatRGB8.Info().HasAlpha)
	assert.Equal(t, 1, FormatFloat32.Info().Channels)
}
