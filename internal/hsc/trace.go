package hsc

import (
	"sync"

	"github.com/rs/xid"
)

// traceArenaCapacity bounds the classifier's trace arena, which is shared
// by every batch the classifier processes, so the record storage never
// grows; once full, Append overwrites the oldest entry. Each Append still
// allocates the record's xid string.
const traceArenaCapacity = 4096

// TraceRecord is the per-buffer trace entry: {rx_if_index, next_index,
// reason}. ID is an opaque xid label for correlating a trace record
// across log lines.
type TraceRecord struct {
	ID           string
	RxIfaceIndex int
	Next         NextIndex
	Reason       DropReason
}

// TraceArena is a fixed-capacity, preallocated ring of trace records.
// Append overwrites the oldest entry once full, so a long-running
// classifier with tracing left on never grows memory.
type TraceArena struct {
	mu      sync.Mutex
	records []TraceRecord
	next    int
	full    bool
}

// NewTraceArena preallocates a traceArenaCapacity-entry arena.
func NewTraceArena() *TraceArena {
	return &TraceArena{records: make([]TraceRecord, traceArenaCapacity)}
}

// Append records one trace entry, tagging it with a fresh xid so it can be
// found in logs independent of position in the arena.
func (a *TraceArena) Append(rec TraceRecord) {
	rec.ID = xid.New().String()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[a.next] = rec
	a.next++
	if a.next == len(a.records) {
		a.next = 0
		a.full = true
	}
}

// Snapshot returns the currently-held trace records in insertion order
// (oldest first).
func (a *TraceArena) Snapshot() []TraceRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.full {
		out := make([]TraceRecord, a.next)
		copy(out, a.records[:a.next])
		return out
	}
	out := make([]TraceRecord, len(a.records))
	copy(out, a.records[a.next:])
	copy(out[len(a.records)-a.next:], a.records[:a.next])
	return out
}
