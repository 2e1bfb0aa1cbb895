// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package parallel

import "sync"

// Event is a generation-counted completion flag.
//
// Each Record starts a new generation; a lane task later calls Signal with
// that generation once the work ahead of it has executed. Waiters target a
// generation, so re-recording an event never wakes a waiter early and never
// makes an older wait block on newer work.
type Event struct {
	mu   sync.Mutex
	cond *sync.Cond

	recorded uint64
	signaled uint64
}

// NewEvent returns an event that has never been recorded, which counts as
// signaled.
func NewEvent() *Event {
	e := &Event{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Record starts a new generation and returns it.
func (e *Event) Record() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorded++
	return e.recorded
}

// Current returns the most recently recorded generation.
func (e *Event) Current() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorded
}

// Signal marks gen and every earlier generation complete.
func (e *Event) Signal(gen uint64) {
	e.mu.Lock()
	if gen > e.signaled {
		e.signaled = gen
		e.cond.Broadcast()
	}
	e.mu.Unlock()
}

// Done reports whether gen has been signaled.
func (e *Event) Done(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled >= gen
}

// WaitFor blocks until gen has been signaled.
func (e *Event) WaitFor(gen uint64) {
	e.mu.Lock()
	for e.signaled < gen {
		e.cond.Wait()
	}
	e.mu.Unlock()
}

// Wait blocks until the most recent record has been signaled.
func (e *Event) Wait() {
	e.mu.Lock()
	target := e.recorded
	for e.signaled < target {
		e.cond.Wait()
	}
	e.mu.Unlock()
}

// Abandon signals every recorded generation so that no waiter stays blocked
// on work that will never run.
func (e *Event) Abandon() {
	e.Signal(e.Current())
}
