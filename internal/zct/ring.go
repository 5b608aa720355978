package zct

import (
	"sync/atomic"
	"unsafe"
)

// Descriptor is the RX/TX descriptor shape: {addr, len, options},
// matching struct xdp_desc's wire layout byte for byte. FR/CR entries
// are a bare __u64 address in the real kernel layout; Ring still hands
// callers a Descriptor for those rings too, with Len/Options left zero.
type Descriptor struct {
	Addr    uint64
	Len     uint32
	Options uint32
}

const (
	descStrideXDP  = 16 // sizeof(struct xdp_desc): RX/TX rings
	descStrideAddr = 8  // bare __u64: FR/CR rings
)

// Ring is a single-producer/single-consumer lock-free descriptor ring.
// Producer and consumer cursors are plain uint32s published with atomic
// release/acquire semantics — the only synchronization edge: lock-free,
// not wait-free, with no third-party ring library pulled in since this
// protocol is hand-rolled to match the kernel's own FR/CR/RX/TX layout.
//
// The cursors and descriptor array may live in ordinary Go-allocated
// memory (NewRing, used by tests exercising the ring protocol in
// isolation) or inside a region mmap'd from an AF_XDP socket fd
// (newMappedRing, used by OpenSocket) — either way Ring only ever reads
// and writes through the producer/consumer pointers and the descriptor
// array base address, never assuming which kind of memory backs them.
type Ring struct {
	mask   uint32
	stride uintptr
	mem    []byte // keeps the backing allocation (or mmap) alive

	producer *uint32
	consumer *uint32
	base     unsafe.Pointer
}

// NewRing creates a ring of the given power-of-two capacity backed by
// ordinary Go-allocated memory, for exercising the producer/consumer
// protocol without a real AF_XDP socket. Entries are full xdp_desc-sized
// slots, the RX/TX shape.
func NewRing(capacity uint32) *Ring {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("zct: ring capacity must be a power of two")
	}
	cursors := make([]byte, 8)
	descs := make([]Descriptor, capacity)
	return &Ring{
		mask:     capacity - 1,
		stride:   descStrideXDP,
		mem:      cursors,
		producer: (*uint32)(unsafe.Pointer(&cursors[0])),
		consumer: (*uint32)(unsafe.Pointer(&cursors[4])),
		base:     unsafe.Pointer(&descs[0]),
	}
}

// newMappedRing wraps a ring region mmap'd from an AF_XDP socket fd: the
// producer and consumer cursors live at byte offsets producerOff/
// consumerOff within mem (as reported by the XDP_MMAP_OFFSETS
// getsockopt), and the entry array starts at descOff with the given
// per-entry stride (descStrideXDP for RX/TX, descStrideAddr for FR/CR).
// mem is retained so it is never munmap'd out from under the pointers
// derived from it.
func newMappedRing(mem []byte, producerOff, consumerOff, descOff uint64, capacity uint32, stride uintptr) *Ring {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("zct: ring capacity must be a power of two")
	}
	return &Ring{
		mask:     capacity - 1,
		stride:   stride,
		mem:      mem,
		producer: (*uint32)(unsafe.Pointer(&mem[producerOff])),
		consumer: (*uint32)(unsafe.Pointer(&mem[consumerOff])),
		base:     unsafe.Pointer(&mem[descOff]),
	}
}

func (r *Ring) entry(idx uint32) unsafe.Pointer {
	return unsafe.Pointer(uintptr(r.base) + uintptr(idx&r.mask)*r.stride)
}

// Capacity returns the ring's fixed power-of-two slot count.
func (r *Ring) Capacity() uint32 {
	return r.mask + 1
}

// ProducerReserve returns how many free slots the producer may write
// before the consumer catches up, i.e. capacity - (prod - cons).
func (r *Ring) ProducerReserve() uint32 {
	prod := atomic.LoadUint32(r.producer)
	cons := atomic.LoadUint32(r.consumer) // acquire-load of the consumer cursor
	return (r.mask + 1) - (prod - cons)
}

// ProducerWrite writes desc at the next producer slot without publishing
// it. Call ProducerSubmit once all pending writes for this batch are
// done.
func (r *Ring) ProducerWrite(offset uint32, desc Descriptor) {
	prod := atomic.LoadUint32(r.producer)
	p := r.entry(prod + offset)
	if r.stride == descStrideAddr {
		*(*uint64)(p) = desc.Addr
		return
	}
	*(*Descriptor)(p) = desc
}

// ProducerSubmit publishes n previously-written descriptors by advancing
// and release-storing the producer cursor.
func (r *Ring) ProducerSubmit(n uint32) {
	atomic.StoreUint32(r.producer, atomic.LoadUint32(r.producer)+n)
}

// ConsumerPeek returns the number of descriptors available to read
// (acquire-load of the producer cursor) and the starting index to read
// from.
func (r *Ring) ConsumerPeek(max uint32) (available uint32, startIdx uint32) {
	prod := atomic.LoadUint32(r.producer) // acquire-load of the producer cursor
	cons := atomic.LoadUint32(r.consumer)
	available = prod - cons
	if available > max {
		available = max
	}
	return available, cons
}

// At returns the descriptor at absolute cursor position idx.
func (r *Ring) At(idx uint32) Descriptor {
	p := r.entry(idx)
	if r.stride == descStrideAddr {
		return Descriptor{Addr: *(*uint64)(p)}
	}
	return *(*Descriptor)(p)
}

// ConsumerRelease advances and release-publishes the consumer cursor by
// n, returning the frames to the producer side.
func (r *Ring) ConsumerRelease(n uint32) {
	atomic.StoreUint32(r.consumer, atomic.LoadUint32(r.consumer)+n)
}

// Len reports the number of descriptors currently queued (producer
// minus consumer), used by tests checking frame conservation.
func (r *Ring) Len() uint32 {
	return atomic.LoadUint32(r.producer) - atomic.LoadUint32(r.consumer)
}
