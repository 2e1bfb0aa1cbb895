// Package framepool pools device-resident image buffers for streaming
// pipelines.
//
// # Overview
//
// A video pipeline produces frames on one device stream and consumes them on
// others. framepool hands producers recycled device buffers, lets them publish
// a finished frame under an id, lets any number of consumers read it, and
// recycles the buffer once the last consumer's stream is done with it. The
// calling goroutine never waits for device work except on the explicitly
// synchronous paths (Release, and the copy-and-wait helpers in transfer/).
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/framepool"
//	    "github.com/gogpu/framepool/device/sim"
//	)
//
//	m, _ := framepool.New(framepool.Config{Device: sim.New(sim.Config{})})
//	defer m.Close()
//
//	capture, _ := m.Stream("capture")
//	wa, _ := m.RequestOutputImage(1920, 1080, framepool.FormatRGBA8)
//	// ... queue writes into wa.Buffer() on capture ...
//	img, _ := m.Finalise(wa, capture)
//
//	render, _ := m.Stream("render")
//	ra, _ := m.RequestReadAccess(img.ID)
//	m.ReleaseImage(img.ID) // the reader keeps the image alive
//	m.Device().StreamWaitEvent(render, ra.ReadyEvent())
//	// ... queue reads of ra.Buffer() on render ...
//	m.Autorelease(ra, render)
//
// # Buffer states
//
// Every buffer is in exactly one of three states:
//   - free: on the free list of its size tier
//   - in flight: issued to a WriteAccessor, not yet published
//   - valid: published by Finalise and readable by id
//
// The Image returned by Finalise owns a reference. A valid image returns to
// the free list once that reference and every reader's have been released.
//
// Buffers are grouped in power-of-two tiers; tier k holds 2^k byte buffers.
// Rows are padded to PitchAlignment bytes. Each RequestOutputImage returns a
// fresh id even when the memory is reused, so a stale id can never reach a
// recycled buffer.
//
// # Release
//
// Release gives a reference back immediately. Autorelease registers a stream
// callback that posts the release to a queue; the queue is applied at the
// start of the next RequestOutputImage, by ProcessAutoreleaseQueue, or by a
// RunReclaimer loop. Callbacks therefore never take the pool lock.
//
// # Process-wide pool
//
// Applications that want a single pool register a device once and share the
// manager returned by Default:
//
//	import _ "github.com/gogpu/framepool/gpu" // registers a GPU device
//
//	m, err := framepool.Default()
//	defer framepool.Shutdown()
//
// # Thread Safety
//
// Manager is safe for concurrent use. Accessors are capabilities owned by
// one goroutine at a time.
package framepool
