// Package zct implements the Zero-Copy Transport: the UMEM
// frame pool, the four SPSC descriptor rings, the free-frame allocator,
// and the drain loop that moves REDIRECTed frames from the kernel to a
// user-space handler.
package zct

import (
	"errors"
	"sync"
)

// Fixed UMEM/ring sizing.
const (
	FrameSize    = 2048
	NumFrames    = 4096
	RXBatchSize  = 64
	InvalidFrame = ^uint64(0) // UINT64_MAX sentinel
)

// ErrInvariantViolation is fatal: free list overflow, out-of-range
// frame address.
var ErrInvariantViolation = errors.New("zct: invariant violation")

// UMEM is the page-aligned frame pool shared with the kernel, plus the
// user-space free-frame stack.
//
// Every frame address is, at any instant, in exactly one of: the free
// list, FR, the kernel (between fill and RX), RX, or held by the packet
// handler. UMEM only owns the free-list side of that; the ring types
// enforce the rest.
type UMEM struct {
	buffer []byte

	mu       sync.Mutex
	freeList []uint64 // stack of frame addresses
}

// NewUMEM allocates a NumFrames*FrameSize buffer and seeds the free list
// with every frame address, as original_source's xsk_configure_socket
// does for umem_frame_addr[i] = i*FRAME_SIZE.
func NewUMEM() *UMEM {
	u := &UMEM{
		buffer:   make([]byte, NumFrames*FrameSize),
		freeList: make([]uint64, 0, NumFrames),
	}
	for i := uint64(0); i < NumFrames; i++ {
		u.freeList = append(u.freeList, i*FrameSize)
	}
	return u
}

// Alloc pops a frame address from the free list, or returns InvalidFrame
// on exhaustion.
func (u *UMEM) Alloc() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := len(u.freeList)
	if n == 0 {
		return InvalidFrame
	}
	addr := u.freeList[n-1]
	u.freeList = u.freeList[:n-1]
	return addr
}

// Free pushes addr back onto the free list. Pushing past NumFrames total
// outstanding frames is an invariant violation.
func (u *UMEM) Free(addr uint64) error {
	if addr >= NumFrames*FrameSize || addr%FrameSize != 0 {
		return ErrInvariantViolation
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.freeList) >= NumFrames {
		return ErrInvariantViolation
	}
	u.freeList = append(u.freeList, addr)
	return nil
}

// FreeCount reports the number of frames currently on the free list
// (used by conservation-accounting tests; drain.go's fill-ring low-water
// mark reads the fill ring's own free slots instead).
func (u *UMEM) FreeCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.freeList)
}

// Frame returns the byte slice backing the frame at addr, truncated to
// length.
func (u *UMEM) Frame(addr uint64, length uint32) ([]byte, error) {
	if addr >= uint64(len(u.buffer)) || addr+uint64(length) > uint64(len(u.buffer)) {
		return nil, ErrInvariantViolation
	}
	return u.buffer[addr : addr+uint64(length)], nil
}
