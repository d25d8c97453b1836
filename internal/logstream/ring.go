// Package logstream captures structured records from the automation
// engine and server components, retains a bounded history, and publishes
// canonical log events onto the event bus.
package logstream

import (
	"sync"

	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// Ring is a fixed-size circular buffer of log events. Overflow evicts
// the oldest entry. Every append gets a monotonically increasing
// sequence number, which snapshot consumers use to tell replayed events
// apart from live ones. Safe for concurrent use.
type Ring struct {
	mu     sync.RWMutex
	events []protocol.LogEvent
	head   int    // index of the next write
	size   int    // number of valid entries
	seq    uint64 // sequence of the newest entry; 0 while empty
}

// NewRing creates a ring retaining at most capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		events: make([]protocol.LogEvent, capacity),
	}
}

// Append adds an event, evicting the oldest when full, and returns the
// event's sequence number.
func (r *Ring) Append(event protocol.LogEvent) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.head] = event
	r.head = (r.head + 1) % len(r.events)
	if r.size < len(r.events) {
		r.size++
	}
	r.seq++
	return r.seq
}

// Snapshot returns up to n most recent events in insertion order, plus
// the ring's current high-water sequence. n <= 0 returns all retained
// events.
func (r *Ring) Snapshot(n int) ([]protocol.LogEvent, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.size
	if n > 0 && n < count {
		count = n
	}

	out := make([]protocol.LogEvent, 0, count)
	start := r.head - count
	if start < 0 {
		start += len(r.events)
	}
	for i := 0; i < count; i++ {
		out = append(out, r.events[(start+i)%len(r.events)])
	}
	return out, r.seq
}

// Len returns the number of retained events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
