package framepool

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierForSize(t *testing.T) {
	tests := []struct {
		size uint64
		want int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{512, 9},
		{513, 10},
		{1 << 20, 20},
		{1<<20 + 1, 21},
		{1 << 63, 63},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tierForSize(tt.size), "size %d", tt.size)
	}
}

func TestTierBounds(t *testing.T) {
	// 2^(k-1) < size <= 2^k for every size above 1.
	for size := uint64(2); size < 1<<16; size = size*3/2 + 1 {
		k := tierForSize(size)
		assert.LessOrEqual(t, size, tierCapacity(k), "size %d", size)
		assert.Greater(t, size, tierCapacity(k-1), "size %d", size)
	}
}

func TestPitch(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		format Format
		want   uint64
	}{
		{"zero width", 0, FormatRGBA8, 512},
		{"one gray pixel", 1, FormatGray8, 512},
		{"exactly aligned", 128, FormatRGBA8, 512},
		{"one byte over", 513, FormatGray8, 1024},
		{"hd rgba", 1920, FormatRGBA8, 7680},
		{"hd rgb", 1920, FormatRGB8, 6144},
		{"gray16", 300, FormatGray16, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pitch(tt.width, tt.format)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, got%PitchAlignment)
			assert.GreaterOrEqual(t, got, uint64(tt.format.RowBytes(tt.width)))
		})
	}
}

func TestPitch_Overflow(t *testing.T) {
	assert.Zero(t, Pitch(-1, FormatRGBA8))
	assert.Zero(t, Pitch(math.MaxInt, FormatRGBA8))
	assert.Equal(t, uint64(1)<<62, Pitch(1<<60, FormatRGBA8))
}

func TestGeometry(t *testing.T) {
	tests := []struct {
		name      string
		width     int
		height    int
		format    Format
		wantPitch uint64
		wantSize  uint64
		wantAlloc uint64
	}{
		{"empty", 0, 0, FormatRGBA8, 512, 0, 512},
		{"hd", 1920, 1080, FormatRGBA8, 7680, 7680 * 1080, 7680 * 1080},
		{"largest tier", 1 << 29, 1 << 31, FormatGray8, 1 << 29, 1 << 60, 1 << 60},
		{"exactly 2^63", 1 << 30, 1 << 31, FormatRGBA8, 1 << 32, 1 << 63, 1 << 63},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pitch, size, alloc, err := geometry(tt.width, tt.height, tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPitch, pitch)
			assert.Equal(t, tt.wantSize, size)
			assert.Equal(t, tt.wantAlloc, alloc)
			assert.Less(t, tierForSize(alloc), maxTiers)
		})
	}
}

func TestGeometry_TooLarge(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		format Format
	}{
		{"above largest tier", 1 << 30, 1<<31 + 1, FormatRGBA8},
		{"wraps to zero", 1 << 31, 1 << 31, FormatRGBA8},
		{"wraps past zero", 1 << 31, 1<<31 + 3, FormatRGBA8},
		{"row overflows", math.MaxInt, 1, FormatRGBA8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := geometry(tt.width, tt.height, tt.format)
			assert.ErrorIs(t, err, ErrInvalidDimensions)
		})
	}
}
