package sml

import (
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"github.com/cilium/ebpf"
)

// Counter indices. The first four match the kernel classifier's stats
// map layout; the rest are the extended counters shared across modules.
const (
	StatPass = iota
	StatDrop
	StatRedirect
	StatError

	StatPktsProcessed
	StatPktsDropped
	StatPktsAllowed
	StatMapLookups
	StatMapHits
	StatSessionsCreated
	StatSessionsDeleted

	numStats
)

var statNames = [numStats]string{
	StatPass: "pass", StatDrop: "drop", StatRedirect: "redirect", StatError: "error",
	StatPktsProcessed: "pkts_processed", StatPktsDropped: "pkts_dropped", StatPktsAllowed: "pkts_allowed",
	StatMapLookups: "map_lookups", StatMapHits: "map_hits",
	StatSessionsCreated: "sessions_created", StatSessionsDeleted: "sessions_deleted",
}

// StatsTable is the small per-CPU-array counters table.
// "Per-CPU sharded to avoid contention; readers must sum across shards"
// — in live mode that sharding is the kernel's BPF_MAP_TYPE_PERCPU_ARRAY;
// in degraded/local mode we shard across NumCPU() atomic.Uint64 slices
// ourselves so the fast-path write path never contends across cores
// either way.
type StatsTable struct {
	m      *ebpf.Map
	shards [][numStats]atomic.Uint64
}

func newStatsTable(m *ebpf.Map) *StatsTable {
	return &StatsTable{m: m, shards: make([][numStats]atomic.Uint64, runtime.NumCPU())}
}

func newLocalStatsTable() *StatsTable {
	return newStatsTable(nil)
}

// Add increments counter idx by delta. In degraded/local mode this is an
// atomic add on a randomly chosen shard (see shardIndex). In live mode it
// is a lookup/update of CPU slot 0 in the pinned per-CPU array, which is
// not atomic against concurrent writers.
func (s *StatsTable) Add(idx int, delta uint64) {
	if s.m != nil {
		s.addLive(idx, delta)
		return
	}
	shard := &s.shards[shardIndex(len(s.shards))]
	shard[idx].Add(delta)
}

func (s *StatsTable) addLive(idx int, delta uint64) {
	key := uint32(idx)
	values := make([]uint64, numPossibleCPU(s.m))
	if err := s.m.Lookup(&key, &values); err == nil {
		if len(values) > 0 {
			values[0] += delta
		}
		_ = s.m.Update(&key, &values, ebpf.UpdateAny)
	}
}

// Sum aggregates counter idx across all shards; readers must sum across
// shards since writes are sharded by CPU.
func (s *StatsTable) Sum(idx int) uint64 {
	if s.m != nil {
		var values []uint64
		key := uint32(idx)
		if err := s.m.Lookup(&key, &values); err != nil {
			return 0
		}
		var total uint64
		for _, v := range values {
			total += v
		}
		return total
	}
	var total uint64
	for i := range s.shards {
		total += s.shards[i][idx].Load()
	}
	return total
}

// Snapshot returns every counter's current aggregate value, keyed by name.
func (s *StatsTable) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, numStats)
	for i, name := range statNames {
		out[name] = s.Sum(i)
	}
	return out
}

// Close releases the underlying map fd, if any.
func (s *StatsTable) Close() {
	if s.m != nil {
		s.m.Close()
	}
}

func numPossibleCPU(m *ebpf.Map) int {
	if info, err := m.Info(); err == nil && info.Type == ebpf.PerCPUArray {
		return runtime.NumCPU()
	}
	return runtime.NumCPU()
}

// shardIndex spreads writers across shards at random. Exact per-CPU
// attribution isn't required, only that concurrent writers rarely contend on the
// same cache line; math/rand/v2's top-level functions draw from
// per-thread runtime state, so choosing a shard touches no shared counter.
func shardIndex(n int) uint64 {
	return rand.Uint64N(uint64(n))
}
