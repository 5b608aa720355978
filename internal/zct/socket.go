//go:build linux

package zct

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AF_XDP socket option levels/names. Mirrors linux/if_xdp.h; golang.org/x/sys/unix
// does not export all of these as typed helpers, so — the same way
// pkg/tcpinfo/tcpinfo_linux.go's RawTCPInfo hand-defines a kernel struct
// layout — the handful of setsockopt option names libxdp uses are
// defined directly here.
const (
	solXDP = 283 // SOL_XDP

	xdpMmapOffsets        = 1
	xdpRxRing             = 2
	xdpTxRing             = 3
	xdpUmemReg            = 4
	xdpUmemFillRing       = 5
	xdpUmemCompletionRing = 6
)

// mmap pgoffsets for the four ring regions, from linux/if_xdp.h.
const (
	xdpPgoffRxRing             = 0
	xdpPgoffTxRing             = 0x80000000
	xdpUmemPgoffFillRing       = 0x100000000
	xdpUmemPgoffCompletionRing = 0x180000000
)

// umemReg is the wire layout of struct xdp_umem_reg.
type umemReg struct {
	Addr      uint64
	Len       uint64
	ChunkSize uint32
	Headroom  uint32
	Flags     uint32
	_         [4]byte // padding to 8-byte alignment
}

// xdpRingOffset is the wire layout of struct xdp_ring_offset: byte
// offsets, within the region mmap'd for one ring, of the producer
// cursor, the consumer cursor, the descriptor array, and (5.4+) a flags
// word.
type xdpRingOffset struct {
	Producer uint64
	Consumer uint64
	Desc     uint64
	Flags    uint64
}

// xdpMmapOffsets is the wire layout of struct xdp_mmap_offsets returned
// by the XDP_MMAP_OFFSETS getsockopt: one xdpRingOffset per ring.
type xdpMmapOffsets struct {
	Rx xdpRingOffset
	Tx xdpRingOffset
	Fr xdpRingOffset
	Cr xdpRingOffset
}

// Socket wraps one AF_XDP socket bound to a single (interface, queue)
// pair: the raw fd plus the four rings, each mmap'd directly against the
// kernel's ring memory so FR/RX/TX/CR are the same pages the kernel
// reads and writes.
type Socket struct {
	fd    int
	umem  *UMEM
	FR    *Ring // fill ring: user -> kernel
	CR    *Ring // completion ring: kernel -> user (unused for pure RX)
	RX    *Ring // kernel -> user
	TX    *Ring // user -> kernel (unused for pure RX)
}

// OpenSocket creates an AF_XDP socket, registers umem with it, binds it
// to ifaceIndex/queueID, and mmaps the four ring regions the kernel
// allocated in response to the ring-size setsockopts below. Ring
// capacities are fixed at RXBatchSize*4, generous enough to avoid
// starvation when draining RXBatchSize frames per batch.
func OpenSocket(umem *UMEM, ifaceIndex int, queueID uint32) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_XDP, unix.SOCK_RAW, 0)
	if err != nil {
		return nil, fmt.Errorf("zct: socket(AF_XDP): %w", err)
	}

	reg := umemReg{
		Addr:      uint64(uintptr(unsafe.Pointer(&umem.buffer[0]))),
		Len:       uint64(len(umem.buffer)),
		ChunkSize: FrameSize,
		Headroom:  0,
	}
	if err := setsockopt(fd, xdpUmemReg, unsafe.Pointer(&reg), uint32(unsafe.Sizeof(reg))); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("zct: XDP_UMEM_REG: %w", err)
	}

	ringCap := uint32(RXBatchSize * 4)
	for _, opt := range []int{xdpUmemFillRing, xdpUmemCompletionRing, xdpRxRing, xdpTxRing} {
		if err := setsockoptUint32(fd, opt, ringCap); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("zct: ring size setsockopt %d: %w", opt, err)
		}
	}

	offsets, err := getMmapOffsets(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("zct: XDP_MMAP_OFFSETS: %w", err)
	}

	fr, err := mmapRing(fd, xdpUmemPgoffFillRing, offsets.Fr, ringCap, descStrideAddr)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("zct: mmap fill ring: %w", err)
	}
	cr, err := mmapRing(fd, xdpUmemPgoffCompletionRing, offsets.Cr, ringCap, descStrideAddr)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("zct: mmap completion ring: %w", err)
	}
	rx, err := mmapRing(fd, xdpPgoffRxRing, offsets.Rx, ringCap, descStrideXDP)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("zct: mmap rx ring: %w", err)
	}
	tx, err := mmapRing(fd, xdpPgoffTxRing, offsets.Tx, ringCap, descStrideXDP)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("zct: mmap tx ring: %w", err)
	}

	sa := &unix.SockaddrXDP{
		Flags:   0,
		Ifindex: uint32(ifaceIndex),
		QueueID: queueID,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("zct: bind AF_XDP socket: %w", err)
	}

	return &Socket{
		fd:   fd,
		umem: umem,
		FR:   fr,
		CR:   cr,
		RX:   rx,
		TX:   tx,
	}, nil
}

// getMmapOffsets fetches struct xdp_mmap_offsets via getsockopt, telling
// the caller where within each ring's mmap'd region the producer cursor,
// consumer cursor, and descriptor array actually live.
func getMmapOffsets(fd int) (*xdpMmapOffsets, error) {
	var off xdpMmapOffsets
	size := uint32(unsafe.Sizeof(off))
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(fd), uintptr(solXDP), uintptr(xdpMmapOffsets),
		uintptr(unsafe.Pointer(&off)), uintptr(unsafe.Pointer(&size)), 0)
	if errno != 0 {
		return nil, errno
	}
	return &off, nil
}

// mmapRing maps the ring region at pgoff on fd and wraps it in a Ring
// addressing capacity entries of the given per-entry stride, starting
// at off.Desc within the mapped region.
func mmapRing(fd int, pgoff int64, off xdpRingOffset, capacity uint32, stride uintptr) (*Ring, error) {
	size := int(off.Desc) + int(capacity)*int(stride)
	mem, err := unix.Mmap(fd, pgoff, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return nil, err
	}
	return newMappedRing(mem, off.Producer, off.Consumer, off.Desc, capacity, stride), nil
}

func setsockopt(fd int, opt int, val unsafe.Pointer, size uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(solXDP), uintptr(opt),
		uintptr(val), uintptr(size), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func setsockoptUint32(fd int, opt int, v uint32) error {
	return setsockopt(fd, opt, unsafe.Pointer(&v), 4)
}

// FD returns the underlying socket file descriptor, for polling and for
// registration into the kernel's xsk_map.
func (s *Socket) FD() int { return s.fd }

// Close releases the socket and unmaps its four ring regions. Idempotent
// in the sense that a second call just returns EBADF/EINVAL, which
// callers ignore on shutdown.
func (s *Socket) Close() error {
	for _, r := range []*Ring{s.FR, s.CR, s.RX, s.TX} {
		if r != nil {
			unix.Munmap(r.mem)
		}
	}
	return unix.Close(s.fd)
}
