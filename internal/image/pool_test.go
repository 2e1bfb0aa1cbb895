package image

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framepool"
)

func TestPoolReuse(t *testing.T) {
	p := NewPool(2)

	a, err := p.Get(64, 8, framepool.FormatRGBA8)
	require.NoError(t, err)
	p.Put(a)

	b, err := p.Get(64, 8, framepool.FormatRGBA8)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := p.Get(64, 8, framepool.FormatBGRA8)
	require.NoError(t, err)
	assert.NotSame(t, a, c, "format is part of the key")

	s := p.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(2), s.Misses)
	assert.Zero(t, s.Idle)
}

func TestPoolBucketLimit(t *testing.T) {
	p := NewPool(1)
	a, _ := p.Get(4, 4, framepool.FormatGray8)
	b, _ := p.Get(4, 4, framepool.FormatGray8)
	p.Put(a)
	p.Put(b)
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestPoolDropsForeignStride(t *testing.T) {
	p := NewPool(0)
	buf, err := NewImageBufWithStride(4, 4, framepool.FormatGray8, 4)
	require.NoError(t, err)
	p.Put(buf)
	p.Put(nil)
	assert.Zero(t, p.Stats().Idle)
}

func TestPoolInvalid(t *testing.T) {
	_, err := NewPool(1).Get(0, 4, framepool.FormatGray8)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestPoolConcurrent(t *testing.T) {
	p := NewPool(4)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				buf, err := p.Get(16, 16, framepool.FormatRGBA8)
				if !assert.NoError(t, err) {
					return
				}
				p.Put(buf)
			}
		}()
	}
	wg.Wait()

	s := p.Stats()
	assert.Equal(t, uint64(400), s.Hits+s.Misses)
	assert.LessOrEqual(t, s.Idle, 4)
}

func TestDefaultPool(t *testing.T) {
	buf, err := GetFromDefault(8, 8, framepool.FormatRGBA8)
	require.NoError(t, err)
	PutToDefault(buf)
}
