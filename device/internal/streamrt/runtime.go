// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package streamrt implements the stream and event half of device.Device on
// top of parallel lanes. Device backends embed a Runtime and add memory and
// transfer operations as lane tasks.
package streamrt

import (
	"fmt"
	"sync"

	"github.com/gogpu/framepool/device"
	"github.com/gogpu/framepool/internal/parallel"
)

// Runtime tracks the streams and events of one device.
//
// Thread safety: Runtime is safe for concurrent use.
type Runtime struct {
	newID func() uint64

	mu      sync.RWMutex
	events  map[device.EventID]*parallel.Event
	streams map[device.StreamID]*parallel.Lane
	closed  bool
}

// New creates a runtime. newID must return process-unique non-zero ids; the
// owning device shares it with its buffer ids.
func New(newID func() uint64) *Runtime {
	return &Runtime{
		newID:   newID,
		events:  make(map[device.EventID]*parallel.Event),
		streams: make(map[device.StreamID]*parallel.Lane),
	}
}

// CreateEvent creates a completion event.
func (r *Runtime) CreateEvent() (device.EventID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return device.InvalidID, device.ErrDeviceClosed
	}
	id := device.EventID(r.newID())
	r.events[id] = parallel.NewEvent()
	return id, nil
}

// DestroyEvent releases an event. Waiters on the event are released.
func (r *Runtime) DestroyEvent(id device.EventID) error {
	r.mu.Lock()
	e, ok := r.events[id]
	delete(r.events, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("destroy event %d: %w", id, device.ErrInvalidEvent)
	}
	e.Abandon()
	return nil
}

// CreateStream creates an ordered lane.
func (r *Runtime) CreateStream(label string) (device.StreamID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return device.InvalidID, device.ErrDeviceClosed
	}
	id := device.StreamID(r.newID())
	r.streams[id] = parallel.NewLane(label)
	return id, nil
}

// DestroyStream drains and releases a stream.
func (r *Runtime) DestroyStream(id device.StreamID) error {
	r.mu.Lock()
	l, ok := r.streams[id]
	delete(r.streams, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("destroy stream %d: %w", id, device.ErrInvalidStream)
	}
	l.Close()
	return nil
}

// Lane returns the lane behind a stream.
func (r *Runtime) Lane(id device.StreamID) (*parallel.Lane, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, device.ErrDeviceClosed
	}
	l, ok := r.streams[id]
	if !ok {
		return nil, fmt.Errorf("stream %d: %w", id, device.ErrInvalidStream)
	}
	return l, nil
}

func (r *Runtime) event(id device.EventID) (*parallel.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, device.ErrDeviceClosed
	}
	e, ok := r.events[id]
	if !ok {
		return nil, fmt.Errorf("event %d: %w", id, device.ErrInvalidEvent)
	}
	return e, nil
}

// Submit queues a task on stream s.
func (r *Runtime) Submit(s device.StreamID, task parallel.Task) error {
	l, err := r.Lane(s)
	if err != nil {
		return err
	}
	if err := l.Submit(task); err != nil {
		return fmt.Errorf("stream %d: %w", s, device.ErrInvalidStream)
	}
	return nil
}

// RecordEvent captures the tail of s into ev.
func (r *Runtime) RecordEvent(ev device.EventID, s device.StreamID) error {
	e, err := r.event(ev)
	if err != nil {
		return err
	}
	l, err := r.Lane(s)
	if err != nil {
		return err
	}

	gen := e.Record()
	if err := l.Submit(func() error {
		e.Signal(gen)
		return nil
	}); err != nil {
		// The stream went away between lookup and submit.
		e.Signal(gen)
		return fmt.Errorf("record event %d on stream %d: %w", ev, s, device.ErrInvalidStream)
	}
	return nil
}

// SynchronizeEvent blocks until the latest record of ev has executed.
func (r *Runtime) SynchronizeEvent(ev device.EventID) error {
	e, err := r.event(ev)
	if err != nil {
		return err
	}
	e.Wait()
	return nil
}

// StreamWaitEvent orders later work on s after the current record of ev.
func (r *Runtime) StreamWaitEvent(s device.StreamID, ev device.EventID) error {
	e, err := r.event(ev)
	if err != nil {
		return err
	}
	gen := e.Current()
	return r.Submit(s, func() error {
		e.WaitFor(gen)
		return nil
	})
}

// AddCallback queues fn on s. A panicking callback is reported as a stream
// error instead of killing the lane goroutine.
func (r *Runtime) AddCallback(s device.StreamID, fn device.Callback) error {
	l, err := r.Lane(s)
	if err != nil {
		return err
	}
	if err := l.Submit(func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("stream %q: callback panicked: %v", l.Label(), p)
			}
		}()
		fn(l.Status())
		return nil
	}); err != nil {
		return fmt.Errorf("add callback on stream %d: %w", s, device.ErrInvalidStream)
	}
	return nil
}

// SynchronizeStream blocks until s is idle and returns its status.
func (r *Runtime) SynchronizeStream(s device.StreamID) error {
	l, err := r.Lane(s)
	if err != nil {
		return err
	}
	return l.Sync()
}

// StreamCount returns the number of live streams.
func (r *Runtime) StreamCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// EventCount returns the number of live events.
func (r *Runtime) EventCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

// Close drains every stream, releases every waiter and rejects further
// calls. Close is idempotent.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	streams := r.streams
	events := r.events
	r.streams = make(map[device.StreamID]*parallel.Lane)
	r.events = make(map[device.EventID]*parallel.Event)
	r.mu.Unlock()

	// Lanes may wait on events recorded by other lanes.
	for _, l := range streams {
		l.Resume()
	}
	for _, l := range streams {
		l.Close()
	}
	for _, e := range events {
		e.Abandon()
	}
}

// Closed reports whether Close has been called.
func (r *Runtime) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
