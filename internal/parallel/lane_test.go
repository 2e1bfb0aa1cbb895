// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package parallel

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLane_ExecutesInOrder(t *testing.T) {
	l := NewLane("order")
	defer l.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := range 100 {
		require.NoError(t, l.Submit(func() error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}))
	}
	require.NoError(t, l.Sync())

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLane_SyncReturnsAndClearsStatus(t *testing.T) {
	l := NewLane("status")
	defer l.Close()

	first := errors.New("first")
	second := errors.New("second")
	require.NoError(t, l.Submit(func() error { return first }))
	require.NoError(t, l.Submit(func() error { return second }))

	assert.ErrorIs(t, l.Sync(), first)
	assert.NoError(t, l.Sync())
}

func TestLane_StatusVisibleToLaterTasks(t *testing.T) {
	l := NewLane("status")
	defer l.Close()

	boom := errors.New("boom")
	var seen error
	require.NoError(t, l.Submit(func() error { return boom }))
	require.NoError(t, l.Submit(func() error {
		seen = l.Status()
		return nil
	}))
	_ = l.Sync()

	assert.ErrorIs(t, seen, boom)
}

func TestLane_PauseHoldsWork(t *testing.T) {
	l := NewLane("pause")
	defer l.Close()

	l.Pause()
	ran := make(chan struct{})
	require.NoError(t, l.Submit(func() error {
		close(ran)
		return nil
	}))

	select {
	case <-ran:
		t.Fatal("task ran while lane was paused")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 1, l.Pending())

	l.Resume()
	require.NoError(t, l.Sync())
	<-ran
	assert.Equal(t, 0, l.Pending())
}

func TestLane_CloseDrainsPausedWork(t *testing.T) {
	l := NewLane("close")
	l.Pause()

	executed := false
	require.NoError(t, l.Submit(func() error {
		executed = true
		return nil
	}))
	l.Close()

	assert.True(t, executed)
	assert.False(t, l.IsRunning())
	assert.ErrorIs(t, l.Submit(func() error { return nil }), ErrLaneClosed)

	// Idempotent.
	l.Close()
}

func TestEvent_NeverRecordedIsSignaled(t *testing.T) {
	e := NewEvent()
	e.Wait()
	assert.True(t, e.Done(e.Current()))
}

func TestEvent_GenerationOrdering(t *testing.T) {
	e := NewEvent()
	g1 := e.Record()
	g2 := e.Record()
	require.Less(t, g1, g2)

	e.Signal(g1)
	assert.True(t, e.Done(g1))
	assert.False(t, e.Done(g2))

	// A stale signal never moves the event backwards.
	e.Signal(g2)
	e.Signal(g1)
	assert.True(t, e.Done(g2))
}

func TestEvent_WaitAcrossLanes(t *testing.T) {
	producer := NewLane("producer")
	consumer := NewLane("consumer")
	defer producer.Close()
	defer consumer.Close()

	e := NewEvent()
	producer.Pause()

	value := 0
	require.NoError(t, producer.Submit(func() error {
		value = 42
		return nil
	}))
	gen := e.Record()
	require.NoError(t, producer.Submit(func() error {
		e.Signal(gen)
		return nil
	}))

	var observed int
	require.NoError(t, consumer.Submit(func() error {
		e.WaitFor(gen)
		observed = value
		return nil
	}))

	assert.Equal(t, 1, consumer.Pending())
	producer.Resume()
	require.NoError(t, consumer.Sync())
	assert.Equal(t, 42, observed)
}

func TestEvent_Abandon(t *testing.T) {
	e := NewEvent()
	e.Record()
	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	e.Abandon()
	<-done
}
