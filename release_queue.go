package framepool

import "sync"

// DefaultReleaseQueueSize is the number of preallocated release slots.
const DefaultReleaseQueueSize = 100

// releaseToken is the payload of a stream completion callback. It is a value
// so that a callback firing after the manager is gone touches nothing but the
// queue it captured.
type releaseToken struct {
	epoch uint64
	id    ID
	write bool
}

// releaseQueue holds release requests posted by stream callbacks until the
// manager applies them. It has its own lock: callbacks never take the manager
// mutex and never block on a full queue.
type releaseQueue struct {
	mu    sync.Mutex
	epoch uint64

	// slots is a fixed set of preallocated slots; spill takes the excess.
	slots []releaseToken
	count int
	spill []releaseToken

	closed    bool
	discarded uint64
}

func newReleaseQueue(capacity int, epoch uint64) *releaseQueue {
	if capacity <= 0 {
		capacity = DefaultReleaseQueueSize
	}
	return &releaseQueue{
		epoch: epoch,
		slots: make([]releaseToken, capacity),
	}
}

// push enqueues tok. It reports false when the token is discarded because
// the queue is closed or the token belongs to another manager.
func (q *releaseQueue) push(tok releaseToken) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || tok.epoch != q.epoch {
		q.discarded++
		return false
	}
	if q.count < len(q.slots) {
		q.slots[q.count] = tok
		q.count++
		return true
	}
	q.spill = append(q.spill, tok)
	return true
}

// drain appends every pending token to dst in posting order and empties
// the queue.
func (q *releaseQueue) drain(dst []releaseToken) []releaseToken {
	q.mu.Lock()
	defer q.mu.Unlock()

	dst = append(dst, q.slots[:q.count]...)
	clear(q.slots[:q.count])
	q.count = 0
	dst = append(dst, q.spill...)
	q.spill = q.spill[:0]
	return dst
}

func (q *releaseQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count + len(q.spill)
}

// close drops anything pending and rejects later pushes. It returns the
// number of tokens dropped.
func (q *releaseQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count + len(q.spill)
	q.closed = true
	q.count = 0
	q.spill = nil
	q.discarded += uint64(n)
	return n
}
