//go:build linux

package zct

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Handler processes one drained frame. It must not retain data beyond the
// call: the frame is freed immediately after, even if the handler panics.
type Handler func(data []byte)

// Drainer owns the single cooperative drain thread that polls the RX
// ring, hands frames to Handler in arrival order, and frees them. There
// is no internal parallelism — one goroutine runs the whole loop.
type Drainer struct {
	sock    *Socket
	umem    *UMEM
	handler Handler
	log     *logrus.Logger

	cancel atomic.Bool
}

// NewDrainer builds a drainer over sock/umem. handler is invoked once per
// drained frame from the single drain goroutine.
func NewDrainer(sock *Socket, umem *UMEM, handler Handler, log *logrus.Logger) *Drainer {
	return &Drainer{sock: sock, umem: umem, handler: handler, log: log}
}

// Cancel requests the drain loop stop after the current batch.
func (d *Drainer) Cancel() {
	d.cancel.Store(true)
}

// fillLowWaterMark is the point below which the fill ring is
// replenished from the free list in a batch, rather than one frame at a
// time, to avoid the syscall overhead of posting frames one by one.
func (d *Drainer) fillLowWaterMark() uint32 {
	return d.sock.FR.Capacity() / 2
}

// replenishFill tops the fill ring up from the UMEM free list whenever it
// drops below the low-water mark, so the kernel doesn't starve for RX
// frames under sustained load.
func (d *Drainer) replenishFill() {
	free := d.sock.FR.ProducerReserve()
	if free == 0 {
		return
	}
	if d.sock.FR.Capacity()-free >= d.fillLowWaterMark() {
		return // still above the low-water mark
	}

	var posted uint32
	for posted < free {
		addr := d.umem.Alloc()
		if addr == InvalidFrame {
			break
		}
		d.sock.FR.ProducerWrite(posted, Descriptor{Addr: addr})
		posted++
	}
	if posted > 0 {
		d.sock.FR.ProducerSubmit(posted)
	}
}

// Run executes the poll/drain loop until Cancel is called or a fatal poll
// error occurs. It observes cancellation within one poll interval
// (at most 1s).
func (d *Drainer) Run() error {
	d.replenishFill()

	fds := []unix.PollFd{{Fd: int32(d.sock.FD()), Events: unix.POLLIN}}

	for !d.cancel.Load() {
		n, err := unix.Poll(fds, 1000) // 1-second timeout
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			d.log.WithError(err).Error("zct: poll failed")
			return err
		}
		if n == 0 {
			continue // timeout; check cancellation and loop
		}

		available, start := d.sock.RX.ConsumerPeek(RXBatchSize)
		if available == 0 {
			continue
		}

		// Processed strictly in index order (start, start+1, ...) to
		// preserve arrival order within this queue.
		for i := uint32(0); i < available; i++ {
			desc := d.sock.RX.At(start + i)
			d.processOne(desc)
		}

		d.sock.RX.ConsumerRelease(available)
		d.replenishFill()
	}

	return nil
}

// processOne invokes the handler on one RX descriptor and frees the
// frame. Handler panics are recovered so a bad packet never takes down
// the drain loop.
func (d *Drainer) processOne(desc Descriptor) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Error("zct: packet handler panicked")
		}
		if err := d.umem.Free(desc.Addr); err != nil {
			d.log.WithError(err).Fatal("zct: invariant violation freeing frame")
		}
	}()

	data, err := d.umem.Frame(desc.Addr, desc.Len)
	if err != nil {
		d.log.WithError(err).Error("zct: frame address out of range")
		return
	}
	d.handler(data)
}

// WaitQuiescent polls the cancellation flag every 10ms until Cancel has
// been called or maxWait elapses, and reports whether Cancel was called.
// It checks the flag only; it does not wait for Run to observe the flag
// or to return. It polls rather than relying on a channel close so
// callers can use it from a signal handler context.
func (d *Drainer) WaitQuiescent(maxWait time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		if !d.cancel.Load() {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		return true
	}
	return false
}
