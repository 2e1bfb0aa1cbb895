// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package halgpu implements device.Device on gogpu/wgpu HAL.
//
// Device memory is a set of hal.Buffer storage buffers. Streams are ordered
// lanes whose tasks submit to the shared hal.Queue and wait on a fence before
// completing, so an event recorded on a stream is signaled only after the GPU
// has executed everything queued ahead of it.
//
// Copies are split into 4-byte aligned row spans, as the HAL requires, and
// never touch the bytes between the end of a row and the next pitch.
package halgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/framepool/device"
	"github.com/gogpu/framepool/device/internal/streamrt"
)

// fenceTimeout bounds every wait for GPU completion.
const fenceTimeout = 5 * time.Second

// copyAlignment is the HAL alignment for buffer copy offsets and sizes.
const copyAlignment = 4

// bufferUsage is the usage of every pooled buffer.
const bufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

// ErrFenceTimeout is returned when the GPU does not finish within fenceTimeout.
var ErrFenceTimeout = errors.New("halgpu: fence wait timed out")

type buffer struct {
	buf  hal.Buffer
	size uint64
}

// Device is a device.Device backed by a hal.Device and hal.Queue.
//
// Thread Safety: Device is safe for concurrent use from multiple goroutines.
type Device struct {
	*streamrt.Runtime

	name string

	mu       sync.RWMutex
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance
	// external is set when the hal device belongs to someone else.
	external bool
	buffers  map[device.BufferID]buffer

	nextID atomic.Uint64
	logger atomic.Pointer[slog.Logger]
}

var _ device.Device = (*Device)(nil)

// New wraps a hal device and queue owned by the caller. Close releases the
// buffers this Device created but leaves the hal device alive.
func New(dev hal.Device, queue hal.Queue) *Device {
	d := newDevice("hal")
	d.device = dev
	d.queue = queue
	d.external = true
	return d
}

// NewFromProvider wraps the HAL device of a gpucontext provider, such as a
// gogpu window, so frames can be shared with its renderer.
//
// The provider must also implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	dev, queue, err := halFromProvider(provider)
	if err != nil {
		return nil, err
	}
	return New(dev, queue), nil
}

// Open creates a device on the first discrete or integrated Vulkan adapter,
// falling back to the first adapter found. The Device owns the hal device
// and destroys it on Close.
func Open() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("halgpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: open device: %w", err)
	}

	d := newDevice(selected.Info.Name)
	d.device = openDev.Device
	d.queue = openDev.Queue
	d.instance = instance
	return d, nil
}

func newDevice(name string) *Device {
	d := &Device{
		name:    name,
		buffers: make(map[device.BufferID]buffer),
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

// Name returns the adapter name.
func (d *Device) Name() string {
	return d.name
}

// SetDeviceProvider switches to the HAL device of an external provider. It
// fails once buffers have been allocated, since they belong to the old
// device.
func (d *Device) SetDeviceProvider(provider any) error {
	dev, queue, err := halFromProvider(provider)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.buffers) > 0 {
		return fmt.Errorf("halgpu: cannot switch devices with %d buffers allocated", len(d.buffers))
	}
	d.destroyOwnedLocked()
	d.device = dev
	d.queue = queue
	d.external = true
	d.slogger().Info("halgpu: using shared device from provider")
	return nil
}

func halFromProvider(provider any) (hal.Device, hal.Queue, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, nil, fmt.Errorf("halgpu: provider does not expose HAL types")
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, nil, fmt.Errorf("halgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, fmt.Errorf("halgpu: provider HalQueue is not hal.Queue")
	}
	return dev, queue, nil
}

func (d *Device) destroyOwnedLocked() {
	if !d.external && d.device != nil {
		d.device.Destroy()
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	d.device = nil
	d.queue = nil
}

// === Memory ===

// Alloc creates a storage buffer of at least size bytes, rounded up to the
// copy alignment.
func (d *Device) Alloc(size uint64) (device.BufferID, error) {
	if d.Closed() {
		return device.InvalidID, device.ErrDeviceClosed
	}
	size = alignUp(max(size, 1), copyAlignment)

	d.mu.RLock()
	dev := d.device
	d.mu.RUnlock()

	buf, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "framepool",
		Size:  size,
		Usage: bufferUsage,
	})
	if err != nil {
		return device.InvalidID, fmt.Errorf("halgpu: create buffer of %d bytes: %w: %w", size, device.ErrOutOfMemory, err)
	}

	id := device.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = buffer{buf: buf, size: size}
	d.mu.Unlock()

	d.slogger().Debug("halgpu: buffer created", "buffer", id, "size", size)
	return id, nil
}

// Free destroys a buffer.
func (d *Device) Free(id device.BufferID) error {
	d.mu.Lock()
	b, ok := d.buffers[id]
	delete(d.buffers, id)
	dev := d.device
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("free buffer %d: %w", id, device.ErrInvalidBuffer)
	}
	dev.DestroyBuffer(b.buf)
	return nil
}

func (d *Device) lookup(id device.BufferID) (buffer, hal.Device, hal.Queue, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.buffers[id]
	if !ok {
		return buffer{}, nil, nil, fmt.Errorf("buffer %d: %w", id, device.ErrInvalidBuffer)
	}
	return b, d.device, d.queue, nil
}

// BufferCount returns the number of live buffers.
func (d *Device) BufferCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.buffers)
}

// Close drains all streams, destroys every remaining buffer and, for a
// device created by Open, the hal device itself.
func (d *Device) Close() error {
	d.Runtime.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if n := len(d.buffers); n > 0 {
		d.slogger().Warn("halgpu: buffers still allocated at close", "count", n)
	}
	for id, b := range d.buffers {
		d.device.DestroyBuffer(b.buf)
		delete(d.buffers, id)
	}
	d.destroyOwnedLocked()
	return nil
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}
