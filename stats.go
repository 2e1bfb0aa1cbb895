package framepool

import "fmt"

// Stats is a snapshot of pool usage.
type Stats struct {
	// InFlight is the number of images being written.
	InFlight int

	// Valid is the number of published images.
	Valid int

	// Pooled is the number of buffers waiting on free lists.
	Pooled int

	// Tiers maps a tier's capacity in bytes to its free buffer count.
	// Only non-empty tiers are listed.
	Tiers map[uint64]int

	// Allocations is the total number of device buffers allocated.
	Allocations uint64

	// Reuses is the number of requests served from a free list.
	Reuses uint64

	// BytesAllocated is the device memory owned by the pool.
	BytesAllocated uint64

	// PendingReleases is the number of posted, not yet applied, releases.
	PendingReleases int

	// LastID is the most recently issued image id.
	LastID ID

	// Streams is the number of registered streams.
	Streams int
}

// String returns a human-readable string of pool stats.
func (s Stats) String() string {
	return fmt.Sprintf("Pool[%d in flight, %d valid, %d pooled, %d allocs, %d reuses, %d bytes, %d pending releases]",
		s.InFlight,
		s.Valid,
		s.Pooled,
		s.Allocations,
		s.Reuses,
		s.BytesAllocated,
		s.PendingReleases)
}

// Stats returns a snapshot of pool usage.
func (m *Manager) Stats() Stats {
	pending := m.queue.len()

	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		InFlight:        len(m.inFlight),
		Valid:           len(m.valid),
		Tiers:           make(map[uint64]int),
		Allocations:     m.allocations,
		Reuses:          m.reuses,
		BytesAllocated:  m.bytesAllocated,
		PendingReleases: pending,
		LastID:          m.lastID,
		Streams:         len(m.streams),
	}
	for tier, list := range m.tiers {
		if len(list) == 0 {
			continue
		}
		s.Pooled += len(list)
		s.Tiers[tierCapacity(tier)] = len(list)
	}
	return s
}
