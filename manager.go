package framepool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/framepool/device"
)

// DefaultReclaimInterval is the RunReclaimer period used when none is given.
const DefaultReclaimInterval = 10 * time.Millisecond

// epochs distinguishes managers so that release tokens cannot cross them.
var epochs atomic.Uint64

// Config holds configuration for creating a Manager.
type Config struct {
	// Device provides memory, events and streams. Required.
	Device device.Device

	// ReleaseQueueSize is the number of preallocated deferred release slots.
	// Defaults to DefaultReleaseQueueSize if <= 0.
	ReleaseQueueSize int
}

// Manager pools device image buffers and arbitrates access to them.
//
// Producers call RequestOutputImage, fill the buffer on a stream and publish
// it with Finalise. Consumers call RequestReadAccess with the published id and
// give the reference back with Release, or with Autorelease to have it
// returned once their stream has finished with the buffer. When the last
// reference to a published image is gone the buffer returns to the free list
// of its size tier and is handed out again under a new id.
//
// Manager is safe for concurrent use.
type Manager struct {
	dev   device.Device
	epoch uint64
	queue *releaseQueue

	mu       sync.Mutex
	streams  map[string]device.StreamID
	inFlight map[ID]*record
	valid    map[ID]*record
	tiers    [maxTiers][]*record
	lastID   ID
	closed   bool

	allocations    uint64
	reuses         uint64
	bytesAllocated uint64

	// scratch is reused by ProcessAutoreleaseQueue under drainMu.
	drainMu sync.Mutex
	scratch []releaseToken
}

// New creates a manager on the given device.
func New(config Config) (*Manager, error) {
	if config.Device == nil {
		return nil, ErrNoDevice
	}
	epoch := epochs.Add(1)
	return &Manager{
		dev:      config.Device,
		epoch:    epoch,
		queue:    newReleaseQueue(config.ReleaseQueueSize, epoch),
		streams:  make(map[string]device.StreamID),
		inFlight: make(map[ID]*record),
		valid:    make(map[ID]*record),
	}, nil
}

// Device returns the device the manager allocates from.
func (m *Manager) Device() device.Device {
	return m.dev
}

// Stream returns the stream registered under name, creating it on first use.
func (m *Manager) Stream(name string) (device.StreamID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return device.InvalidID, ErrManagerClosed
	}
	if s, ok := m.streams[name]; ok {
		return s, nil
	}
	s, err := m.dev.CreateStream(name)
	if err != nil {
		return device.InvalidID, fmt.Errorf("%w: stream %q: %w", ErrAllocationFailed, name, err)
	}
	m.streams[name] = s
	Logger().Debug("framepool: stream created", "name", name, "stream", s)
	return s, nil
}

// Streams returns the registered stream names in sorted order.
func (m *Manager) Streams() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.streams))
	for name := range m.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequestOutputImage issues a write accessor for a width x height image.
//
// Pending deferred releases are applied first so that buffers whose streams
// have finished are available for reuse. The buffer comes from the free list
// of the smallest tier that fits Pitch(width, format)*height; a new buffer is
// allocated only when that list is empty. Images larger than the largest
// tier are rejected with ErrInvalidDimensions.
func (m *Manager) RequestOutputImage(width, height int, format Format) (*WriteAccessor, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if !format.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFormat, format)
	}
	pitch, size, alloc, err := geometry(width, height, format)
	if err != nil {
		return nil, err
	}
	tier := tierForSize(alloc)

	if _, err := m.ProcessAutoreleaseQueue(); err != nil {
		if errors.Is(err, ErrManagerClosed) {
			return nil, err
		}
		Logger().Warn("framepool: deferred release failed", "err", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	rec := m.popFreeLocked(tier)
	if rec == nil {
		rec, err = m.allocateLocked(tier)
		if err != nil {
			return nil, err
		}
	} else {
		m.reuses++
	}

	rec.id = m.issueIDLocked()
	rec.width = width
	rec.height = height
	rec.pitch = pitch
	rec.size = size
	rec.format = format
	rec.refs = 1
	rec.published = false
	rec.lastStream = device.InvalidID
	m.inFlight[rec.id] = rec

	return &WriteAccessor{accessor: rec.view()}, nil
}

// Finalise publishes the image written through wa.
//
// The ready event is recorded on stream, so consumers that wait on it see the
// producer's writes. The record moves to the valid table and wa is spent. Its
// reference passes to the returned Image: the image stays readable until
// that reference is dropped with ReleaseImage and every reader has released.
func (m *Manager) Finalise(wa *WriteAccessor, stream device.StreamID) (Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.writeRecordLocked(wa)
	if err != nil {
		return Image{}, err
	}
	if err := m.dev.RecordEvent(rec.ready, stream); err != nil {
		return Image{}, fmt.Errorf("framepool: finalise image %d: %w", rec.id, err)
	}

	m.publishLocked(rec)
	rec.lastStream = stream
	wa.invalidate()
	return rec.image(), nil
}

// RequestReadAccess issues a read accessor for a published image.
func (m *Manager) RequestReadAccess(id ID) (*ReadAccessor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	rec, ok := m.valid[id]
	if !ok {
		return nil, fmt.Errorf("%w: image %d is not published", ErrInvalidAccessor, id)
	}
	rec.refs++
	return &ReadAccessor{accessor: rec.view()}, nil
}

// Autorelease returns the reference held by acc once all work queued on
// stream so far has completed. The call never blocks on the device.
//
// For a write accessor the ready event is recorded on stream first and the
// image is published when the release is applied. acc is spent on success;
// on failure it keeps its reference and can be released another way.
func (m *Manager) Autorelease(acc Accessor, stream device.StreamID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, write, err := m.recordLocked(acc)
	if err != nil {
		return err
	}
	if write {
		if err := m.dev.RecordEvent(rec.ready, stream); err != nil {
			return fmt.Errorf("framepool: autorelease image %d: %w", rec.id, err)
		}
	}

	tok := releaseToken{epoch: m.epoch, id: rec.id, write: write}
	q := m.queue
	err = m.dev.AddCallback(stream, func(status error) {
		if status != nil {
			Logger().Warn("framepool: stream reported error before release",
				"image", tok.id, "err", status)
		}
		if !q.push(tok) {
			Logger().Debug("framepool: release discarded", "image", tok.id)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: image %d: %w", ErrCallbackRegistration, rec.id, err)
	}

	rec.lastStream = stream
	acc.base().invalidate()
	return nil
}

// Release returns the reference held by acc immediately.
//
// Releasing the last reference to a published image waits for its ready
// event before the buffer is recycled. Releasing a write accessor publishes
// the image first, which makes this the abandon path for a producer that
// gives up on a frame; the producer must have finished its writes.
func (m *Manager) Release(acc Accessor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, write, err := m.recordLocked(acc)
	if err != nil {
		return err
	}
	if write {
		m.publishLocked(rec)
	}
	acc.base().invalidate()
	return m.derefLocked(rec)
}

// FinaliseAndAutorelease publishes wa and schedules the release of ra on the
// same stream. This is the usual end of a processing step that read ra's
// image to produce wa's. The returned Image holds a reference, also when
// only the release of ra failed.
func (m *Manager) FinaliseAndAutorelease(wa *WriteAccessor, ra *ReadAccessor, stream device.StreamID) (Image, error) {
	img, err := m.Finalise(wa, stream)
	if err != nil {
		return Image{}, err
	}
	if err := m.Autorelease(ra, stream); err != nil {
		return img, err
	}
	return img, nil
}

// Retain adds a reference to a published image without issuing an accessor.
// Each Retain must be paired with ReleaseImage.
func (m *Manager) Retain(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	rec, ok := m.valid[id]
	if !ok {
		return fmt.Errorf("%w: image %d is not published", ErrInvalidAccessor, id)
	}
	rec.refs++
	return nil
}

// ReleaseImage drops the reference held by an Image returned from Finalise,
// or one taken with Retain. Dropping the last reference waits for the ready
// event and recycles the buffer.
func (m *Manager) ReleaseImage(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	rec, ok := m.valid[id]
	if !ok {
		return fmt.Errorf("%w: image %d is not published", ErrInvalidAccessor, id)
	}
	return m.derefLocked(rec)
}

// ProcessAutoreleaseQueue applies every release posted by stream callbacks
// and returns how many were applied. Protocol violations found along the way
// are joined into the returned error; the remaining releases still apply.
func (m *Manager) ProcessAutoreleaseQueue() (int, error) {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	m.scratch = m.queue.drain(m.scratch[:0])
	if len(m.scratch) == 0 {
		if m.isClosed() {
			return 0, ErrManagerClosed
		}
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrManagerClosed
	}

	var (
		applied int
		errs    []error
	)
	for _, tok := range m.scratch {
		if err := m.applyLocked(tok); err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}
	Logger().Debug("framepool: deferred releases applied", "count", applied, "failed", len(errs))
	return applied, errors.Join(errs...)
}

func (m *Manager) applyLocked(tok releaseToken) error {
	if tok.epoch != m.epoch {
		return fmt.Errorf("%w: release of image %d from another manager", ErrInvalidAccessor, tok.id)
	}
	if tok.write {
		rec, ok := m.inFlight[tok.id]
		if !ok {
			return fmt.Errorf("%w: deferred write release of image %d not in flight", ErrInvalidAccessor, tok.id)
		}
		m.publishLocked(rec)
	}
	rec, ok := m.valid[tok.id]
	if !ok {
		return fmt.Errorf("%w: deferred release of image %d not published", ErrInvalidAccessor, tok.id)
	}
	return m.derefLocked(rec)
}

// RunReclaimer applies deferred releases every interval until ctx is done,
// so that buffers are recycled even when no producer is requesting images.
// It returns ctx.Err(), or ErrManagerClosed if the manager closes first.
func (m *Manager) RunReclaimer(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultReclaimInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.ProcessAutoreleaseQueue(); err != nil {
				if errors.Is(err, ErrManagerClosed) {
					return err
				}
				Logger().Warn("framepool: deferred release failed", "err", err)
			}
		}
	}
}

// Close tears the pool down.
//
// Streams are destroyed first, which drains their queued work; releases
// posted from then on are discarded. Every buffer and event the pool owns is
// then destroyed directly, whatever its state: images still referenced by
// leaked accessors are destroyed too, and those accessors are rejected from
// then on. Device errors are collected, never panicked on. Close is
// idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if n := m.queue.close(); n > 0 {
		Logger().Debug("framepool: pending releases dropped at close", "count", n)
	}

	var errs []error
	for name, s := range m.streams {
		if err := m.dev.DestroyStream(s); err != nil {
			errs = append(errs, fmt.Errorf("destroy stream %q: %w", name, err))
		}
	}
	clear(m.streams)

	leaked := 0
	for id, rec := range m.valid {
		if rec.refs > 0 {
			leaked++
		}
		errs = append(errs, m.destroyLocked(rec)...)
		delete(m.valid, id)
	}
	for id, rec := range m.inFlight {
		leaked++
		errs = append(errs, m.destroyLocked(rec)...)
		delete(m.inFlight, id)
	}
	for tier, list := range m.tiers {
		for _, rec := range list {
			errs = append(errs, m.destroyLocked(rec)...)
		}
		m.tiers[tier] = nil
	}
	if leaked > 0 {
		Logger().Warn("framepool: images still referenced at close", "count", leaked)
	}

	err := errors.Join(errs...)
	if err != nil {
		Logger().Warn("framepool: close", "err", err)
	}
	return err
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) issueIDLocked() ID {
	m.lastID++
	if m.lastID == InvalidID {
		panic("framepool: image id space exhausted")
	}
	return m.lastID
}

// allocateLocked creates a new record for tier. A failed event creation
// frees the memory that was already allocated.
func (m *Manager) allocateLocked(tier int) (*record, error) {
	capacity := tierCapacity(tier)
	buf, err := m.dev.Alloc(capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes: %w", ErrAllocationFailed, capacity, err)
	}
	ev, err := m.dev.CreateEvent()
	if err != nil {
		if ferr := m.dev.Free(buf); ferr != nil {
			Logger().Warn("framepool: free after failed event creation", "err", ferr)
		}
		return nil, fmt.Errorf("%w: ready event: %w", ErrAllocationFailed, err)
	}

	m.allocations++
	m.bytesAllocated += capacity
	Logger().Debug("framepool: buffer allocated", "tier", tier, "bytes", capacity)
	return &record{buf: buf, ready: ev, tier: tier, capacity: capacity}, nil
}

func (m *Manager) popFreeLocked(tier int) *record {
	list := m.tiers[tier]
	if len(list) == 0 {
		return nil
	}
	rec := list[len(list)-1]
	list[len(list)-1] = nil
	m.tiers[tier] = list[:len(list)-1]
	return rec
}

func (m *Manager) pushFreeLocked(rec *record) {
	rec.id = InvalidID
	m.tiers[rec.tier] = append(m.tiers[rec.tier], rec)
}

func (m *Manager) publishLocked(rec *record) {
	delete(m.inFlight, rec.id)
	m.valid[rec.id] = rec
	rec.published = true
}

// derefLocked drops one reference and recycles the record when it was the
// last reference to a published image.
func (m *Manager) derefLocked(rec *record) error {
	if rec.refs <= 0 {
		return fmt.Errorf("%w: image %d released more often than acquired", ErrInvalidAccessor, rec.id)
	}
	rec.refs--
	if rec.refs > 0 || !rec.published {
		return nil
	}
	return m.allRefsDroppedLocked(rec)
}

// allRefsDroppedLocked waits for the last writer, then moves the record from
// the valid table to the front of its tier's free list.
func (m *Manager) allRefsDroppedLocked(rec *record) error {
	err := m.dev.SynchronizeEvent(rec.ready)
	if err != nil {
		err = fmt.Errorf("framepool: wait for image %d: %w", rec.id, err)
		Logger().Warn("framepool: recycling image after failed wait", "image", rec.id, "err", err)
	}
	delete(m.valid, rec.id)
	rec.published = false
	m.pushFreeLocked(rec)
	return err
}

func (m *Manager) destroyLocked(rec *record) []error {
	var errs []error
	if err := m.dev.DestroyEvent(rec.ready); err != nil {
		errs = append(errs, fmt.Errorf("destroy event of image %d: %w", rec.id, err))
	}
	if err := m.dev.Free(rec.buf); err != nil {
		errs = append(errs, fmt.Errorf("free buffer of image %d: %w", rec.id, err))
	}
	return errs
}

// recordLocked resolves acc to its record and reports whether it is a
// write accessor.
func (m *Manager) recordLocked(acc Accessor) (*record, bool, error) {
	switch a := acc.(type) {
	case *WriteAccessor:
		rec, err := m.writeRecordLocked(a)
		return rec, true, err
	case *ReadAccessor:
		rec, err := m.readRecordLocked(a)
		return rec, false, err
	default:
		return nil, false, fmt.Errorf("%w: %T", ErrInvalidAccessor, acc)
	}
}

func (m *Manager) writeRecordLocked(wa *WriteAccessor) (*record, error) {
	if m.closed {
		return nil, ErrManagerClosed
	}
	if wa == nil || !wa.Valid() {
		return nil, fmt.Errorf("%w: write accessor already spent", ErrInvalidAccessor)
	}
	rec, ok := m.inFlight[wa.id]
	if !ok || rec.buf != wa.buf {
		return nil, fmt.Errorf("%w: image %d is not being written", ErrInvalidAccessor, wa.id)
	}
	return rec, nil
}

func (m *Manager) readRecordLocked(ra *ReadAccessor) (*record, error) {
	if m.closed {
		return nil, ErrManagerClosed
	}
	if ra == nil || !ra.Valid() {
		return nil, fmt.Errorf("%w: read accessor already spent", ErrInvalidAccessor)
	}
	rec, ok := m.valid[ra.id]
	if !ok || rec.buf != ra.buf || rec.refs == 0 {
		return nil, fmt.Errorf("%w: image %d is not published", ErrInvalidAccessor, ra.id)
	}
	return rec, nil
}
