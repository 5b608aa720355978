// Package hsc implements the Host-Stack Classifier: a graph
// node that runs inside an in-process packet-processing pipeline,
// consuming a vector of buffers per invocation and dispatching each to one
// of {drop, ipv4-lookup, ipv6-lookup, ethernet-input}, sharing acl_v4 and
// sessions with the kernel classifier.
//
// Grounded on the batch/vector dispatch shape of
// original_source/vpp/plugins/ebpf_classify.c (VPP_NODE_FN, next-index
// array, per-buffer trace) and on the structured-logging and collector
// conventions used elsewhere in this module.
package hsc

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runZeroInc/xdpfw/internal/classify"
	"github.com/runZeroInc/xdpfw/internal/netutil"
	"github.com/runZeroInc/xdpfw/internal/sml"
)

// NextIndex is the downstream dispatch target for one buffer.
type NextIndex int

const (
	NextDrop NextIndex = iota
	NextIP4Lookup
	NextIP6Lookup
	NextEthernetInput
)

func (n NextIndex) String() string {
	switch n {
	case NextDrop:
		return "drop"
	case NextIP4Lookup:
		return "ip4-lookup"
	case NextIP6Lookup:
		return "ip6-lookup"
	case NextEthernetInput:
		return "ethernet-input"
	default:
		return "unknown"
	}
}

// DropReason records why a buffer was sent to NextDrop, for the trace
// record and for INVALID_PACKET accounting.
type DropReason int

const (
	DropReasonNone DropReason = iota
	DropReasonInvalidPacket
	DropReasonACL
)

// Buffer is one frame plus the metadata the classifier needs: which
// interface it arrived on, and whether tracing is requested for it.
type Buffer struct {
	Data         []byte
	RxIfaceIndex int
	Trace        bool
}

// Verdict is the per-buffer outcome of Classify: the same buffer,
// dispatched to a next-node index with a recorded drop reason.
type Verdict struct {
	Next       NextIndex
	DropReason DropReason
	Tuple      netutil.FiveTuple
	IsIPv4     bool
}

// Classifier runs the Host-Stack Classifier algorithm. It is safe for
// concurrent use by multiple pinned worker threads because all
// shared state lives in sml.Tables (per-key atomic) and InterfaceTable
// (mutex-guarded; its lock is taken once per packet by Accumulate and
// once per Snapshot).
type Classifier struct {
	tables *sml.Tables
	ifaces *InterfaceTable
	traces *TraceArena
	log    *logrus.Logger
}

// New builds a Classifier over the given shared tables. tables.Mode ==
// sml.ModeDegraded disables dual-protection but
// per-instance counting (ifaces) stays functional either way.
func New(tables *sml.Tables, log *logrus.Logger) *Classifier {
	return &Classifier{
		tables: tables,
		ifaces: NewInterfaceTable(),
		traces: NewTraceArena(),
		log:    log,
	}
}

// Tables exposes the shared map handle, for the admin CLI's show verb and
// for wiring the same tables into internal/metrics.
func (c *Classifier) Tables() *sml.Tables { return c.tables }

// Classify runs the per-buffer dispatch algorithm on one buffer. now is
// threaded in explicitly rather than read from time.Now() so the
// batching caller controls the clock used for every buffer in a window
// (keeps session timestamps coherent within one batch).
func (c *Classifier) Classify(buf Buffer, now time.Time) Verdict {
	tuple, isIPv4, ipv4HeaderOK, ethOK := netutil.ExtractFiveTuple(buf.Data)

	if !ethOK {
		// Treated the same as an undersized IPv4 header: both fail the
		// "length >= sizeof(Ethernet)+sizeof(IPv4)" bounds check that
		// yields DROP/InvalidPacket.
		return c.drop(buf, Verdict{Next: NextDrop, DropReason: DropReasonInvalidPacket}, now)
	}
	if !isIPv4 {
		// Non-IPv4 ethertypes skip ACL/session evaluation entirely and go
		// straight to ETHERNET_INPUT.
		return c.finish(buf, Verdict{Next: NextEthernetInput}, now, classify.Result{})
	}
	if !ipv4HeaderOK {
		return c.drop(buf, Verdict{Next: NextDrop, DropReason: DropReasonInvalidPacket, Tuple: tuple, IsIPv4: true}, now)
	}

	result := classify.Evaluate(c.tables, tuple, now, uint64(len(buf.Data)))

	v := Verdict{Tuple: tuple, IsIPv4: true}
	switch result.Verdict {
	case classify.VerdictDrop:
		v.Next = NextDrop
		v.DropReason = DropReasonACL
		c.tables.Stats.Add(sml.StatPktsDropped, 1)
		LogSensitive(c.log, tuple)
	case classify.VerdictLog:
		v.Next = NextIP4Lookup
		c.tables.Stats.Add(sml.StatPktsProcessed, 1)
		LogSensitive(c.log, tuple)
	default: // VerdictAllow
		v.Next = NextIP4Lookup
		c.tables.Stats.Add(sml.StatPktsProcessed, 1)
		LogSensitive(c.log, tuple)
	}

	return c.finish(buf, v, now, result)
}

func (c *Classifier) drop(buf Buffer, v Verdict, now time.Time) Verdict {
	c.tables.Stats.Add(sml.StatPktsDropped, 1)
	c.ifaces.Accumulate(buf.RxIfaceIndex, v.Next)
	if buf.Trace {
		c.traces.Append(TraceRecord{RxIfaceIndex: buf.RxIfaceIndex, Next: v.Next, Reason: v.DropReason})
	}
	return v
}

func (c *Classifier) finish(buf Buffer, v Verdict, now time.Time, _ classify.Result) Verdict {
	c.ifaces.Accumulate(buf.RxIfaceIndex, v.Next)
	if buf.Trace {
		c.traces.Append(TraceRecord{RxIfaceIndex: buf.RxIfaceIndex, Next: v.Next, Reason: v.DropReason})
	}
	return v
}
