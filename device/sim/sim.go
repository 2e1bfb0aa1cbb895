// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sim provides a software device.Device.
//
// Device memory is host memory and every stream is a goroutine executing its
// work in order. The device is deterministic enough for tests: streams can be
// paused to hold work in flight, memory can be inspected directly, and the
// next allocation, event creation or callback registration can be made to
// fail.
//
// Usage:
//
//	dev := sim.New(sim.Config{MemoryLimit: 64 << 20})
//	defer dev.Close()
//	framepool.RegisterDevice(dev)
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/framepool/device"
	"github.com/gogpu/framepool/device/internal/streamrt"
)

// DefaultName is used when Config.Name is empty.
const DefaultName = "sim"

// Config holds configuration for a simulated device.
type Config struct {
	// Name is reported by Device.Name. Defaults to DefaultName.
	Name string

	// MemoryLimit caps the total bytes allocated at once.
	// Zero means unlimited.
	MemoryLimit uint64
}

// Stats is a snapshot of simulated device usage.
type Stats struct {
	Buffers     int
	Events      int
	Streams     int
	BytesInUse  uint64
	Allocations uint64
	Frees       uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("sim[%d buffers, %d bytes, %d events, %d streams, %d allocs, %d frees]",
		s.Buffers, s.BytesInUse, s.Events, s.Streams, s.Allocations, s.Frees)
}

// Device is a software device.Device.
//
// Thread safety: Device is safe for concurrent use.
type Device struct {
	*streamrt.Runtime

	name  string
	limit uint64

	nextID atomic.Uint64

	mu      sync.RWMutex
	buffers map[device.BufferID][]byte
	used    uint64
	allocs  uint64
	frees   uint64

	faultMu      sync.Mutex
	failAlloc    error
	failEvent    error
	failCallback error

	logger atomic.Pointer[slog.Logger]
}

var _ device.Device = (*Device)(nil)

// New creates a simulated device.
func New(config Config) *Device {
	name := config.Name
	if name == "" {
		name = DefaultName
	}

	d := &Device{
		name:    name,
		limit:   config.MemoryLimit,
		buffers: make(map[device.BufferID][]byte),
	}
	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	d.Runtime = streamrt.New(d.newID)
	d.logger.Store(slog.New(nopHandler{}))
	return d
}

func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// SetLogger sets the logger used for device diagnostics.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	d.logger.Store(l)
}

func (d *Device) slogger() *slog.Logger { return d.logger.Load() }

// Name returns the configured device name.
func (d *Device) Name() string {
	return d.name
}

// Alloc reserves zeroed host memory standing in for device memory.
func (d *Device) Alloc(size uint64) (device.BufferID, error) {
	if err := d.takeFault(&d.failAlloc); err != nil {
		return device.InvalidID, fmt.Errorf("alloc %d bytes: %w", size, err)
	}
	if d.Closed() {
		return device.InvalidID, device.ErrDeviceClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.limit > 0 && d.used+size > d.limit {
		return device.InvalidID, fmt.Errorf("alloc %d bytes (%d of %d in use): %w",
			size, d.used, d.limit, device.ErrOutOfMemory)
	}

	id := device.BufferID(d.newID())
	d.buffers[id] = make([]byte, size)
	d.used += size
	d.allocs++
	d.slogger().Debug("sim: alloc", "buffer", id, "size", size)
	return id, nil
}

// Free releases a buffer.
func (d *Device) Free(id device.BufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("free buffer %d: %w", id, device.ErrInvalidBuffer)
	}
	delete(d.buffers, id)
	d.used -= uint64(len(buf))
	d.frees++
	return nil
}

// CreateEvent creates an event, honouring FailNextEvent.
func (d *Device) CreateEvent() (device.EventID, error) {
	if err := d.takeFault(&d.failEvent); err != nil {
		return device.InvalidID, fmt.Errorf("create event: %w", err)
	}
	return d.Runtime.CreateEvent()
}

// AddCallback queues a callback, honouring FailNextCallback.
func (d *Device) AddCallback(s device.StreamID, fn device.Callback) error {
	if err := d.takeFault(&d.failCallback); err != nil {
		return fmt.Errorf("add callback on stream %d: %w", s, err)
	}
	return d.Runtime.AddCallback(s, fn)
}

func (d *Device) buffer(id device.BufferID) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	buf, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("buffer %d: %w", id, device.ErrInvalidBuffer)
	}
	return buf, nil
}

// CopyHostToDevice queues a strided host to device copy.
func (d *Device) CopyHostToDevice(s device.StreamID, dst device.BufferID, dstPitch uint64,
	src []byte, srcPitch, rowBytes uint64, rows int) error {
	if err := d.checkBuffer(dst, dstPitch, uint64(len(src)), srcPitch, rowBytes, rows); err != nil {
		return err
	}
	return d.Submit(s, func() error {
		out, err := d.buffer(dst)
		if err != nil {
			return err
		}
		copyRows(out, dstPitch, src, srcPitch, rowBytes, rows)
		return nil
	})
}

// CopyDeviceToHost queues a strided device to host copy.
func (d *Device) CopyDeviceToHost(s device.StreamID, dst []byte, dstPitch uint64,
	src device.BufferID, srcPitch, rowBytes uint64, rows int) error {
	in, err := d.buffer(src)
	if err != nil {
		return err
	}
	if err := device.CheckCopy2D(uint64(len(dst)), dstPitch, uint64(len(in)), srcPitch, rowBytes, rows); err != nil {
		return fmt.Errorf("copy from buffer %d: %w", src, err)
	}
	return d.Submit(s, func() error {
		in, err := d.buffer(src)
		if err != nil {
			return err
		}
		copyRows(dst, dstPitch, in, srcPitch, rowBytes, rows)
		return nil
	})
}

// CopyDeviceToDevice queues a strided device to device copy.
func (d *Device) CopyDeviceToDevice(s device.StreamID, dst device.BufferID, dstPitch uint64,
	src device.BufferID, srcPitch, rowBytes uint64, rows int) error {
	in, err := d.buffer(src)
	if err != nil {
		return err
	}
	if err := d.checkBuffer(dst, dstPitch, uint64(len(in)), srcPitch, rowBytes, rows); err != nil {
		return err
	}
	return d.Submit(s, func() error {
		in, err := d.buffer(src)
		if err != nil {
			return err
		}
		out, err := d.buffer(dst)
		if err != nil {
			return err
		}
		copyRows(out, dstPitch, in, srcPitch, rowBytes, rows)
		return nil
	})
}

// Fill queues a byte fill.
func (d *Device) Fill(s device.StreamID, dst device.BufferID, offset, size uint64, value byte) error {
	out, err := d.buffer(dst)
	if err != nil {
		return err
	}
	if offset+size > uint64(len(out)) {
		return fmt.Errorf("fill buffer %d [%d, %d): %w", dst, offset, offset+size, device.ErrOutOfRange)
	}
	return d.Submit(s, func() error {
		out, err := d.buffer(dst)
		if err != nil {
			return err
		}
		region := out[offset : offset+size]
		for i := range region {
			region[i] = value
		}
		return nil
	})
}

func (d *Device) checkBuffer(dst device.BufferID, dstPitch, srcLen, srcPitch, rowBytes uint64, rows int) error {
	out, err := d.buffer(dst)
	if err != nil {
		return err
	}
	if err := device.CheckCopy2D(uint64(len(out)), dstPitch, srcLen, srcPitch, rowBytes, rows); err != nil {
		return fmt.Errorf("copy into buffer %d: %w", dst, err)
	}
	return nil
}

func copyRows(dst []byte, dstPitch uint64, src []byte, srcPitch, rowBytes uint64, rows int) {
	for y := range uint64(rows) {
		copy(dst[y*dstPitch:y*dstPitch+rowBytes], src[y*srcPitch:y*srcPitch+rowBytes])
	}
}

// Bytes returns the memory behind a buffer. The slice aliases device memory:
// callers synchronize with the owning stream before reading it.
func (d *Device) Bytes(id device.BufferID) ([]byte, error) {
	return d.buffer(id)
}

// Pause holds execution on stream s until Resume.
func (d *Device) Pause(s device.StreamID) error {
	l, err := d.Lane(s)
	if err != nil {
		return err
	}
	l.Pause()
	return nil
}

// Resume restarts a paused stream.
func (d *Device) Resume(s device.StreamID) error {
	l, err := d.Lane(s)
	if err != nil {
		return err
	}
	l.Resume()
	return nil
}

// Pending returns the number of queued, unfinished tasks on stream s.
func (d *Device) Pending(s device.StreamID) (int, error) {
	l, err := d.Lane(s)
	if err != nil {
		return 0, err
	}
	return l.Pending(), nil
}

// FailNextAlloc makes the next Alloc fail with err wrapped.
// A nil err defaults to device.ErrOutOfMemory.
func (d *Device) FailNextAlloc(err error) {
	d.setFault(&d.failAlloc, err, device.ErrOutOfMemory)
}

// FailNextEvent makes the next CreateEvent fail with err wrapped.
func (d *Device) FailNextEvent(err error) {
	d.setFault(&d.failEvent, err, errSimulated)
}

// FailNextCallback makes the next AddCallback fail with err wrapped.
func (d *Device) FailNextCallback(err error) {
	d.setFault(&d.failCallback, err, errSimulated)
}

var errSimulated = errors.New("sim: simulated failure")

func (d *Device) setFault(slot *error, err, fallback error) {
	if err == nil {
		err = fallback
	}
	d.faultMu.Lock()
	*slot = err
	d.faultMu.Unlock()
}

func (d *Device) takeFault(slot *error) error {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	err := *slot
	*slot = nil
	return err
}

// Stats returns a snapshot of device usage.
func (d *Device) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Stats{
		Buffers:     len(d.buffers),
		Events:      d.EventCount(),
		Streams:     d.StreamCount(),
		BytesInUse:  d.used,
		Allocations: d.allocs,
		Frees:       d.frees,
	}
}

// Close drains all streams and releases all memory.
func (d *Device) Close() error {
	d.Runtime.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.buffers); n > 0 {
		d.slogger().Warn("sim: buffers still allocated at close", "count", n, "bytes", d.used)
	}
	d.buffers = make(map[device.BufferID][]byte)
	d.used = 0
	return nil
}
