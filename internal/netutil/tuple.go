package netutil

import "fmt"

// FiveTuple identifies a flow. It is the key portion of both the acl_v4 and
// sessions shared tables.
type FiveTuple struct {
	SrcIP    uint32
	DstIP    uint32
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// String renders the tuple in the dotted-quad form used by the sensitive-
// port log line: "A.B.C.D -> E.F.G.H, proto=<n>".
func (t FiveTuple) String() string {
	return fmt.Sprintf("%s -> %s, proto=%d", formatIPv4(t.SrcIP), formatIPv4(t.DstIP), t.Protocol)
}

func formatIPv4(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

// ExtractFiveTuple runs the bounds-checked parse + 5-tuple extraction
// shared by KC's Go mirror and HSC. ok is false only
// when the Ethernet header itself doesn't fit; for a non-IPv4 frame or a
// too-short IPv4 header ok is true, the tuple is zero, and
// isIPv4/ipv4HeaderOK report how far parsing got.
func ExtractFiveTuple(frame []byte) (tuple FiveTuple, isIPv4 bool, ipv4HeaderOK bool, ok bool) {
	eth, ok := ParseEthernet(frame)
	if !ok {
		return FiveTuple{}, false, false, false
	}
	if eth.EtherType != EtherTypeIPv4 {
		return FiveTuple{}, false, false, true
	}

	ip, ipOK := ParseIPv4(frame)
	if !ipOK {
		return FiveTuple{}, true, false, true
	}

	tuple.SrcIP = ip.SrcIP
	tuple.DstIP = ip.DstIP
	tuple.Protocol = ip.Protocol

	if ip.Protocol == ProtoTCP || ip.Protocol == ProtoUDP {
		if src, dst, portsOK := Ports(frame, IHLBytes(ip.VersionIHL)); portsOK {
			tuple.SrcPort = src
			tuple.DstPort = dst
		}
	}

	return tuple, true, true, true
}
