package hsc

import "github.com/runZeroInc/xdpfw/internal/sml"

// AggregateStats is the snapshot printed by the admin CLI's show verb.
type AggregateStats struct {
	TotalPackets  uint64
	TotalDrops    uint64
	TotalBytes    uint64
	DropRatePct   float64
	PerInterface  map[int]InterfaceState
}

// SetEnabled toggles classification for one interface.
func (c *Classifier) SetEnabled(ifIndex int, enabled bool) {
	c.ifaces.SetEnabled(ifIndex, enabled)
}

// SnapshotStats implements snapshot_stats() -> struct,
// aggregating the shared counters table with per-interface state.
func (c *Classifier) SnapshotStats() AggregateStats {
	perIface := c.ifaces.Snapshot()

	var totalBytes uint64
	c.tables.Sessions.Iterate(func(s sml.Session) bool {
		totalBytes += s.BytesRx + s.BytesTx
		return true
	})

	processed := c.tables.Stats.Sum(sml.StatPktsProcessed)
	dropped := c.tables.Stats.Sum(sml.StatPktsDropped)
	total := processed + dropped

	var dropRate float64
	if total > 0 {
		dropRate = float64(dropped) / float64(total) * 100
	}

	return AggregateStats{
		TotalPackets: total,
		TotalDrops:   dropped,
		TotalBytes:   totalBytes,
		DropRatePct:  dropRate,
		PerInterface: perIface,
	}
}
