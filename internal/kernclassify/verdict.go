// Package kernclassify is the kernel classifier: it loads and attaches
// the compiled XDP object, and mirrors the object's per-packet
// algorithm in Go so it can be unit-tested without a running kernel and
// so internal/classify's shared ACL/session logic has a caller here
// that follows bpf/xdp_filter.c's control flow (Classify lists where the
// two differ).
package kernclassify

import (
	"time"

	"github.com/runZeroInc/xdpfw/internal/classify"
	"github.com/runZeroInc/xdpfw/internal/netutil"
	"github.com/runZeroInc/xdpfw/internal/sml"
)

// Verdict mirrors the XDP return codes.
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictDrop
	VerdictAborted
	VerdictRedirect
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "PASS"
	case VerdictDrop:
		return "DROP"
	case VerdictAborted:
		return "ABORTED"
	case VerdictRedirect:
		return "REDIRECT"
	default:
		return "UNKNOWN"
	}
}

// Classify runs the per-packet control flow of bpf/xdp_filter.c against
// frame and updates tables.Stats. tables must be non-nil; a nil
// tables.ACL skips the ACL consult and redirects (the "optional fast
// path" / "if no map, default ALLOW" case). rxQueueIndex is returned
// unchanged on REDIRECT, matching bpf_redirect_map(&xsk_map, queue_id, 0).
// On the TCP path it differs from the C program: the ACL consult goes
// through classify.Evaluate, which also counts map lookups/hits and
// upserts the sessions table, and ports are read once 4 bytes follow the
// IHL-sized IPv4 header, whereas the C program needs a full TCP header
// after a fixed 20-byte IPv4 header.
func Classify(tables *sml.Tables, frame []byte, rxQueueIndex uint32) (Verdict, uint32) {
	eth, ok := netutil.ParseEthernet(frame)
	if !ok {
		tables.Stats.Add(sml.StatError, 1)
		return VerdictAborted, 0
	}

	if eth.EtherType != netutil.EtherTypeIPv4 {
		tables.Stats.Add(sml.StatPass, 1)
		return VerdictPass, 0
	}

	ip, ok := netutil.ParseIPv4(frame)
	if !ok {
		tables.Stats.Add(sml.StatError, 1)
		return VerdictAborted, 0
	}

	switch ip.Protocol {
	case netutil.ProtoICMP:
		tables.Stats.Add(sml.StatDrop, 1)
		return VerdictDrop, 0
	case netutil.ProtoTCP:
		// Optional ACL fast path: consult acl_v4 if present, default
		// ALLOW when it's missing. A DROP rule here still counts as a
		// DROP and never reaches the ring.
		if tables.ACL != nil {
			tuple := netutil.FiveTuple{SrcIP: ip.SrcIP, DstIP: ip.DstIP, Protocol: ip.Protocol}
			if src, dst, ok := netutil.Ports(frame, netutil.IHLBytes(ip.VersionIHL)); ok {
				tuple.SrcPort, tuple.DstPort = src, dst
			}
			result := classify.Evaluate(tables, tuple, time.Now(), uint64(len(frame)))
			if result.Verdict == classify.VerdictDrop {
				tables.Stats.Add(sml.StatDrop, 1)
				return VerdictDrop, 0
			}
		}
		tables.Stats.Add(sml.StatRedirect, 1)
		return VerdictRedirect, rxQueueIndex
	default:
		tables.Stats.Add(sml.StatPass, 1)
		return VerdictPass, 0
	}
}
