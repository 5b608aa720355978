package sml

import (
	"sync"
	"time"

	"github.com/cilium/ebpf"
	"github.com/runZeroInc/xdpfw/internal/netutil"
)

// State is the session state machine. Only NEW is assigned by default;
// see DESIGN.md for the chosen NEW->ESTABLISHED transition rule.
type State uint8

const (
	StateNew         State = 0
	StateEstablished State = 1
	StateClosing     State = 2
)

// TCPTimeout / UDPTimeout are the per-protocol idle timeouts used to
// decide whether a session is stale.
const (
	TCPTimeout = 300 * time.Second
	UDPTimeout = 60 * time.Second
)

// Session is the mutable per-flow record.
type Session struct {
	Tuple    netutil.FiveTuple
	State    State
	LastSeen int64 // unix nanoseconds
	BytesRx  uint64
	BytesTx  uint64
	seen     int // observation count, used for the NEW->ESTABLISHED rule
}

type sessionWire struct {
	SrcIP    uint32
	DstIP    uint32
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
	State    uint8
	LastSeen uint64
	BytesRx  uint64
	BytesTx  uint64
}

// SessionTable is a hash map with an LRU-style capacity bound of
// CONN_TABLE_SIZE entries. In live mode it is backed by a kernel
// BPF_MAP_TYPE_LRU_HASH so eviction happens kernel side; in degraded
// mode (and in all unit tests, which never have a real pinned map to
// open) it is backed by a direct-indexed, collision-overwriting array:
// slot = hash(tuple) % CONN_TABLE_SIZE, with the stored tuple compared
// on lookup so a collision is surfaced as a miss rather than silently
// returning the wrong flow's counters.
type SessionTable struct {
	m *ebpf.Map

	mu    sync.Mutex
	slots []*Session
}

func newSessionTable(m *ebpf.Map) *SessionTable {
	return &SessionTable{m: m, slots: make([]*Session, CONN_TABLE_SIZE)}
}

func hashTuple(t netutil.FiveTuple) uint32 {
	h := uint32(2166136261)
	mix := func(v uint32) {
		h ^= v
		h *= 16777619
	}
	mix(t.SrcIP)
	mix(t.DstIP)
	mix(uint32(t.SrcPort)<<16 | uint32(t.DstPort))
	mix(uint32(t.Protocol))
	return h
}

func slotFor(t netutil.FiveTuple) uint32 {
	return hashTuple(t) % CONN_TABLE_SIZE
}

// Lookup returns the session for tuple, if present and the slot's stored
// tuple still matches.
func (s *SessionTable) Lookup(tuple netutil.FiveTuple) (Session, bool) {
	if s.m != nil {
		key := sessionKeyOf(tuple)
		var value sessionWire
		if err := s.m.Lookup(&key, &value); err != nil {
			return Session{}, false
		}
		return sessionFromWire(value), true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.slots[slotFor(tuple)]
	if slot == nil || slot.Tuple != tuple {
		return Session{}, false
	}
	return *slot, true
}

// Upsert implements "update_session": on hit, bump LastSeen
// and add packetLen to BytesRx; on miss, create a NEW session. In
// degraded mode a colliding insert overwrites the slot's current
// session, whether that flow is idle or live; there is no last-seen
// ordering in that mode.
func (s *SessionTable) Upsert(tuple netutil.FiveTuple, now time.Time, packetLen uint64) (session Session, created bool) {
	if s.m != nil {
		return s.upsertLive(tuple, now, packetLen)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slotFor(tuple)
	slot := s.slots[idx]
	if slot != nil && slot.Tuple == tuple {
		slot.LastSeen = now.UnixNano()
		slot.BytesRx += packetLen
		slot.seen++
		if slot.seen >= 2 && slot.State == StateNew {
			slot.State = StateEstablished
		}
		return *slot, false
	}

	fresh := &Session{
		Tuple:    tuple,
		State:    StateNew,
		LastSeen: now.UnixNano(),
		BytesRx:  packetLen,
		seen:     1,
	}
	s.slots[idx] = fresh
	return *fresh, true
}

func (s *SessionTable) upsertLive(tuple netutil.FiveTuple, now time.Time, packetLen uint64) (Session, bool) {
	key := sessionKeyOf(tuple)
	var value sessionWire
	created := false
	if err := s.m.Lookup(&key, &value); err != nil {
		created = true
		value = sessionWire{
			SrcIP: tuple.SrcIP, DstIP: tuple.DstIP, SrcPort: tuple.SrcPort, DstPort: tuple.DstPort, Protocol: tuple.Protocol,
			State: uint8(StateNew),
		}
	} else if value.State == uint8(StateNew) {
		// An existing row means this is at least the second observation.
		value.State = uint8(StateEstablished)
	}
	value.LastSeen = uint64(now.UnixNano())
	value.BytesRx += packetLen
	_ = s.m.Update(&key, &value, ebpf.UpdateAny)
	return sessionFromWire(value), created
}

// Delete removes tuple's session, if present.
func (s *SessionTable) Delete(tuple netutil.FiveTuple) {
	if s.m != nil {
		key := sessionKeyOf(tuple)
		_ = s.m.Delete(&key)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slotFor(tuple)
	if slot := s.slots[idx]; slot != nil && slot.Tuple == tuple {
		s.slots[idx] = nil
	}
}

// Expired reports whether a session idle for longer than its protocol's
// timeout should be considered expired. Eviction itself is eventual,
// not immediate: callers just need Lookup/Expired to agree the row is
// stale.
func Expired(sess Session, now time.Time) bool {
	timeout := UDPTimeout
	if sess.Tuple.Protocol == netutil.ProtoTCP {
		timeout = TCPTimeout
	}
	return now.Sub(time.Unix(0, sess.LastSeen)) > timeout
}

// Iterate walks every live session row. In degraded mode this skips empty
// slots; in live mode it walks the kernel map.
func (s *SessionTable) Iterate(fn func(Session) bool) {
	if s.m != nil {
		var key sessionWire
		var value sessionWire
		it := s.m.Iterate()
		for it.Next(&key, &value) {
			if !fn(sessionFromWire(value)) {
				return
			}
		}
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		if slot == nil {
			continue
		}
		if !fn(*slot) {
			return
		}
	}
}

// Close releases the underlying map fd, if any.
func (s *SessionTable) Close() {
	if s.m != nil {
		s.m.Close()
	}
}

func sessionKeyOf(t netutil.FiveTuple) sessionWire {
	return sessionWire{SrcIP: t.SrcIP, DstIP: t.DstIP, SrcPort: t.SrcPort, DstPort: t.DstPort, Protocol: t.Protocol}
}

func sessionFromWire(w sessionWire) Session {
	return Session{
		Tuple:    netutil.FiveTuple{SrcIP: w.SrcIP, DstIP: w.DstIP, SrcPort: w.SrcPort, DstPort: w.DstPort, Protocol: w.Protocol},
		State:    State(w.State),
		LastSeen: int64(w.LastSeen),
		BytesRx:  w.BytesRx,
		BytesTx:  w.BytesTx,
	}
}
