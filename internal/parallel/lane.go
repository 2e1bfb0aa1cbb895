// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel provides the ordered executors and completion events that
// back device streams.
package parallel

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrLaneClosed is returned when submitting to a closed lane.
var ErrLaneClosed = errors.New("parallel: lane closed")

// Task is a unit of work executed by a Lane. A non-nil error is recorded as
// the lane status; later tasks still run.
type Task func() error

// Lane is a single goroutine executing tasks strictly in submission order.
//
// A Lane models one device stream: Submit never blocks on execution, Sync
// waits for everything submitted so far, and Pause holds execution so tests
// can observe work that is queued but not yet complete.
//
// Thread safety: Lane is safe for concurrent use.
type Lane struct {
	label string

	mu    sync.Mutex
	cond  *sync.Cond
	queue []Task

	// submitted and completed count tasks; Sync waits on completed.
	submitted uint64
	completed uint64

	// status is the first task error since the last Sync.
	status error

	paused bool
	closed bool

	// running indicates whether the lane is accepting work.
	running atomic.Bool

	wg sync.WaitGroup
}

// NewLane creates a lane and starts its goroutine.
func NewLane(label string) *Lane {
	l := &Lane{label: label}
	l.cond = sync.NewCond(&l.mu)
	l.running.Store(true)

	l.wg.Add(1)
	go l.worker()

	return l
}

// Label returns the label the lane was created with.
func (l *Lane) Label() string {
	return l.label
}

// worker is the main loop of the lane goroutine.
func (l *Lane) worker() {
	defer l.wg.Done()

	l.mu.Lock()
	for {
		for len(l.queue) == 0 || l.paused {
			if l.closed && len(l.queue) == 0 {
				l.mu.Unlock()
				return
			}
			l.cond.Wait()
		}

		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		err := task()

		l.mu.Lock()
		if err != nil && l.status == nil {
			l.status = err
		}
		l.completed++
		l.cond.Broadcast()
	}
}

// Submit queues a task. It returns ErrLaneClosed after Close.
func (l *Lane) Submit(t Task) error {
	if t == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLaneClosed
	}
	l.queue = append(l.queue, t)
	l.submitted++
	l.cond.Broadcast()
	return nil
}

// Status returns the first task error recorded since the last Sync without
// clearing it. Tasks use it to report stream status to callbacks.
func (l *Lane) Status() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Sync blocks until every task submitted before the call has completed and
// returns, then clears, the lane status.
//
// Sync on a paused lane blocks until another goroutine calls Resume.
func (l *Lane) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	target := l.submitted
	for l.completed < target {
		l.cond.Wait()
	}
	err := l.status
	l.status = nil
	return err
}

// Pending returns the number of submitted tasks that have not completed.
func (l *Lane) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.submitted - l.completed)
}

// Pause stops the lane after the task currently executing, if any.
func (l *Lane) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume restarts a paused lane.
func (l *Lane) Resume() {
	l.mu.Lock()
	l.paused = false
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Close stops accepting work, runs everything already queued (resuming a
// paused lane) and waits for the goroutine to exit.
// Close is idempotent.
func (l *Lane) Close() {
	if !l.running.Swap(false) {
		return
	}

	l.mu.Lock()
	l.closed = true
	l.paused = false
	l.cond.Broadcast()
	l.mu.Unlock()

	l.wg.Wait()
}

// IsRunning returns true if the lane is accepting work.
func (l *Lane) IsRunning() bool {
	return l.running.Load()
}
