package hsc

import "sync"

// InterfaceState is the per-interface counter row the classifier owns
// and the admin CLI's show verb prints as {pass, drop, redirect} rows.
type InterfaceState struct {
	Enabled       bool
	PassCount     uint64
	DropCount     uint64
	RedirectCount uint64
}

// InterfaceTable holds one InterfaceState per interface index. New
// interfaces default to enabled, matching dual-protection being on by
// default until an operator explicitly disables one via the admin CLI.
type InterfaceTable struct {
	mu    sync.Mutex
	table map[int]*InterfaceState
}

// NewInterfaceTable builds an empty table; rows are created lazily on
// first Accumulate or SetEnabled for a given index.
func NewInterfaceTable() *InterfaceTable {
	return &InterfaceTable{table: make(map[int]*InterfaceState)}
}

func (t *InterfaceTable) rowLocked(ifIndex int) *InterfaceState {
	row, ok := t.table[ifIndex]
	if !ok {
		row = &InterfaceState{Enabled: true}
		t.table[ifIndex] = row
	}
	return row
}

// Accumulate bumps the per-interface counter matching next. ifIndex is
// bounds-checked only in the sense of a non-negative index producing a
// valid map entry; there is no fixed-size vector to overflow here because
// the table grows lazily.
func (t *InterfaceTable) Accumulate(ifIndex int, next NextIndex) {
	if ifIndex < 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	row := t.rowLocked(ifIndex)
	switch next {
	case NextDrop:
		row.DropCount++
	default:
		row.PassCount++
	}
}

// SetEnabled implements the administrative surface's set_enabled(if_index,
// bool). Disabling an interface is a bookkeeping flag only here;
// enforcing it (skipping classification for disabled interfaces) is the
// caller's responsibility in the batching loop.
func (t *InterfaceTable) SetEnabled(ifIndex int, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rowLocked(ifIndex).Enabled = enabled
}

// Enabled reports whether classification is currently enabled for
// ifIndex. Unknown interfaces default to enabled.
func (t *InterfaceTable) Enabled(ifIndex int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.table[ifIndex]
	if !ok {
		return true
	}
	return row.Enabled
}

// Snapshot returns a copy of every known interface's counters, keyed by
// index, for snapshot_stats().
func (t *InterfaceTable) Snapshot() map[int]InterfaceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int]InterfaceState, len(t.table))
	for idx, row := range t.table {
		out[idx] = *row
	}
	return out
}
