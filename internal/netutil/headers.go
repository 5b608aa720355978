// Package netutil implements the bounds-checked L2/L3/L4 parsing shared by
// the kernel classifier's Go-side reference implementation and the
// host-stack classifier. Both consult the same 5-tuple extraction so their
// verdicts agree.
package netutil

import "encoding/binary"

const (
	EtherTypeIPv4 = 0x0800
	EtherTypeIPv6 = 0x86DD
	EtherTypeARP  = 0x0806

	sizeofEthernet = 14
	sizeofIPv4Min  = 20

	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

// EthernetHeader is the fixed 14-byte Ethernet II header.
type EthernetHeader struct {
	DstMAC    [6]byte
	SrcMAC    [6]byte
	EtherType uint16
}

// ParseEthernet bounds-checks and parses the Ethernet header at the start
// of frame. Mirrors xdp_filter.c's `(void*)(eth+1) > data_end` check.
func ParseEthernet(frame []byte) (EthernetHeader, bool) {
	var eth EthernetHeader
	if len(frame) < sizeofEthernet {
		return eth, false
	}
	copy(eth.DstMAC[:], frame[0:6])
	copy(eth.SrcMAC[:], frame[6:12])
	eth.EtherType = binary.BigEndian.Uint16(frame[12:14])
	return eth, true
}

// IPv4Header is the fixed 20-byte minimum IPv4 header (no options).
type IPv4Header struct {
	VersionIHL  uint8
	TOS         uint8
	TotalLength uint16
	Protocol    uint8
	SrcIP       uint32
	DstIP       uint32
}

// ParseIPv4 bounds-checks and parses the IPv4 header that follows the
// Ethernet header. Does not validate the header checksum or IHL-indicated
// options; only the fixed part needs bounds-checking here.
func ParseIPv4(frame []byte) (IPv4Header, bool) {
	var ip IPv4Header
	if len(frame) < sizeofEthernet+sizeofIPv4Min {
		return ip, false
	}
	b := frame[sizeofEthernet:]
	ip.VersionIHL = b[0]
	ip.TOS = b[1]
	ip.TotalLength = binary.BigEndian.Uint16(b[2:4])
	ip.Protocol = b[9]
	ip.SrcIP = binary.BigEndian.Uint32(b[12:16])
	ip.DstIP = binary.BigEndian.Uint32(b[16:20])
	return ip, true
}

// Ports extracts the source/destination ports for TCP/UDP, if the frame
// is long enough to contain them: requires length >= Eth+IPv4+4 to read
// ports, else ports are zero.
func Ports(frame []byte, ihlBytes int) (src, dst uint16, ok bool) {
	offset := sizeofEthernet + ihlBytes
	if len(frame) < offset+4 {
		return 0, 0, false
	}
	src = binary.BigEndian.Uint16(frame[offset : offset+2])
	dst = binary.BigEndian.Uint16(frame[offset+2 : offset+4])
	return src, dst, true
}

// IHLBytes returns the IPv4 header length in bytes from VersionIHL. Falls
// back to the 20-byte minimum for malformed/zero IHL values, matching the
// original source's habit of treating the fixed struct as the whole header.
func IHLBytes(versionIHL uint8) int {
	ihl := int(versionIHL & 0x0f)
	if ihl < 5 {
		ihl = 5
	}
	return ihl * 4
}
