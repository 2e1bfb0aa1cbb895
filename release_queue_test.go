package framepool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleaseQueue_Order(t *testing.T) {
	q := newReleaseQueue(2, 7)
	for id := ID(1); id <= 4; id++ {
		require.True(t, q.push(releaseToken{epoch: 7, id: id}))
	}
	assert.Equal(t, 4, q.len())

	got := q.drain(nil)
	require.Len(t, got, 4)
	for i, tok := range got {
		assert.Equal(t, ID(i+1), tok.id)
	}
	assert.Equal(t, 0, q.len())
	assert.Empty(t, q.drain(nil))
}

func TestReleaseQueue_DefaultCapacity(t *testing.T) {
	q := newReleaseQueue(0, 1)
	assert.Len(t, q.slots, DefaultReleaseQueueSize)
}

func TestReleaseQueue_RejectsForeignEpoch(t *testing.T) {
	q := newReleaseQueue(4, 1)
	assert.False(t, q.push(releaseToken{epoch: 2, id: 1}))
	assert.Equal(t, 0, q.len())
	assert.Equal(t, uint64(1), q.discarded)
}

func TestReleaseQueue_Close(t *testing.T) {
	q := newReleaseQueue(1, 1)
	q.push(releaseToken{epoch: 1, id: 1})
	q.push(releaseToken{epoch: 1, id: 2})

	assert.Equal(t, 2, q.close())
	assert.False(t, q.push(releaseToken{epoch: 1, id: 3}))
	assert.Empty(t, q.drain(nil))
	assert.Equal(t, uint64(3), q.discarded)
}

func TestReleaseQueue_ConcurrentPush(t *testing.T) {
	q := newReleaseQueue(8, 1)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				q.push(releaseToken{epoch: 1, id: ID(i*50 + j + 1)})
			}
		}()
	}
	wg.Wait()

	got := q.drain(nil)
	assert.Len(t, got, 800)
	seen := make(map[ID]bool, len(got))
	for _, tok := range got {
		seen[tok.id] = true
	}
	assert.Len(t, seen, 800)
}
