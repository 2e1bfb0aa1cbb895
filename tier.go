package framepool

import (
	"fmt"
	"math/bits"
)

// PitchAlignment is the byte alignment of every row of a pooled image.
const PitchAlignment = 512

// maxTiers bounds the tier index: tier k holds buffers of 2^k bytes.
const maxTiers = 64

// maxImageSize is the capacity of the largest tier.
const maxImageSize = uint64(1) << (maxTiers - 1)

// Pitch returns the aligned row pitch for an image of the given width.
// A zero-width row still occupies one alignment unit. Pitch returns 0 when
// the width is negative or the pitch does not fit in a uint64.
func Pitch(width int, format Format) uint64 {
	pitch, ok := pitchFor(width, format)
	if !ok {
		return 0
	}
	return pitch
}

func pitchFor(width int, format Format) (uint64, bool) {
	if width < 0 {
		return 0, false
	}
	hi, row := bits.Mul64(uint64(width), uint64(format.BytesPerPixel()))
	if hi != 0 {
		return 0, false
	}
	if row == 0 {
		row = 1
	}
	pitch, carry := bits.Add64(row, PitchAlignment-1, 0)
	if carry != 0 {
		return 0, false
	}
	return pitch &^ (PitchAlignment - 1), true
}

// geometry returns the pitch, the logical size and the allocation size of
// a width x height image. A zero-height image allocates one row.
func geometry(width, height int, format Format) (pitch, size, alloc uint64, err error) {
	pitch, ok := pitchFor(width, format)
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: %dx%d row overflows", ErrInvalidDimensions, width, height)
	}
	hi, alloc := bits.Mul64(pitch, uint64(max(height, 1)))
	if hi != 0 || alloc > maxImageSize {
		return 0, 0, 0, fmt.Errorf("%w: %dx%d %s exceeds %d bytes", ErrInvalidDimensions, width, height, format, maxImageSize)
	}
	return pitch, pitch * uint64(height), alloc, nil
}

// tierForSize returns the smallest k with size <= 2^k.
func tierForSize(size uint64) int {
	if size <= 1 {
		return 0
	}
	return bits.Len64(size - 1)
}

// tierCapacity returns the allocation size of tier k.
func tierCapacity(tier int) uint64 {
	return 1 << uint(tier)
}
