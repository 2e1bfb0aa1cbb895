package image

import (
	"sync"

	"github.com/gogpu/framepool"
)

// Pool is a thread-safe pool of host staging frames.
//
// Frames are grouped by dimensions and format. Uploads take a frame, convert
// into it and return it once the device copy that reads it has executed.
//
// Thread safety: All methods are safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	buckets map[poolKey][]*ImageBuf
	maxSize int // max frames per bucket

	hits   uint64
	misses uint64
}

// poolKey identifies a bucket of frames with the same geometry.
type poolKey struct {
	width  int
	height int
	format framepool.Format
}

// PoolStats reports pool reuse.
type PoolStats struct {
	Hits   uint64
	Misses uint64
	Idle   int
}

// NewPool creates a pool keeping at most maxPerBucket idle frames per
// size and format. A maxPerBucket of 0 means unlimited.
func NewPool(maxPerBucket int) *Pool {
	return &Pool{
		buckets: make(map[poolKey][]*ImageBuf),
		maxSize: maxPerBucket,
	}
}

// Get returns a frame with the requested shape, reusing an idle one when
// possible. Reused frames are not cleared; callers overwrite every row.
func (p *Pool) Get(width, height int, format framepool.Format) (*ImageBuf, error) {
	key := poolKey{width: width, height: height, format: format}

	p.mu.Lock()
	if bucket := p.buckets[key]; len(bucket) > 0 {
		buf := bucket[len(bucket)-1]
		bucket[len(bucket)-1] = nil
		p.buckets[key] = bucket[:len(bucket)-1]
		p.hits++
		p.mu.Unlock()
		return buf, nil
	}
	p.misses++
	p.mu.Unlock()

	return NewImageBuf(width, height, format)
}

// Put returns a frame to the pool. Frames with a foreign stride, and frames
// beyond the bucket limit, are dropped.
func (p *Pool) Put(buf *ImageBuf) {
	if buf == nil || buf.stride != int(framepool.Pitch(buf.width, buf.format)) {
		return
	}
	key := poolKey{width: buf.width, height: buf.height, format: buf.format}

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, buf)
}

// Stats returns reuse counters and the number of idle frames.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PoolStats{Hits: p.hits, Misses: p.misses}
	for _, b := range p.buckets {
		s.Idle += len(b)
	}
	return s
}

// defaultPool is the package-level pool used by transfer.
var defaultPool = NewPool(8)

// GetFromDefault takes a frame from the default pool.
func GetFromDefault(width, height int, format framepool.Format) (*ImageBuf, error) {
	return defaultPool.Get(width, height, format)
}

// PutToDefault returns a frame to the default pool.
func PutToDefault(buf *ImageBuf) {
	defaultPool.Put(buf)
}
