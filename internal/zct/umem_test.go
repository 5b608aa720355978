package zct

import (
	"errors"
	"testing"
)

// TestUMEMAllocFreeRoundTrip checks free-list accounting at a quiescent
// point: every frame allocated and freed again leaves the free list at
// its starting size, and the free list never exceeds NumFrames entries.
func TestUMEMAllocFreeRoundTrip(t *testing.T) {
	u := NewUMEM()
	if got := u.FreeCount(); got != NumFrames {
		t.Fatalf("FreeCount() = %d, want %d", got, NumFrames)
	}

	addrs := make([]uint64, 0, 100)
	for i := 0; i < 100; i++ {
		addr := u.Alloc()
		if addr == InvalidFrame {
			t.Fatalf("Alloc() returned InvalidFrame before exhaustion")
		}
		addrs = append(addrs, addr)
	}
	if got := u.FreeCount(); got != NumFrames-100 {
		t.Fatalf("FreeCount() after 100 allocs = %d, want %d", got, NumFrames-100)
	}

	for _, addr := range addrs {
		if err := u.Free(addr); err != nil {
			t.Fatalf("Free(%d) = %v, want nil", addr, err)
		}
	}
	if got := u.FreeCount(); got != NumFrames {
		t.Fatalf("FreeCount() after freeing all = %d, want %d", got, NumFrames)
	}
}

func TestUMEMAllocExhaustion(t *testing.T) {
	u := NewUMEM()
	for i := 0; i < NumFrames; i++ {
		if addr := u.Alloc(); addr == InvalidFrame {
			t.Fatalf("Alloc() exhausted early at i=%d", i)
		}
	}
	if addr := u.Alloc(); addr != InvalidFrame {
		t.Errorf("Alloc() after exhaustion = %d, want InvalidFrame", addr)
	}
}

func TestUMEMFreeOutOfRangeIsInvariantViolation(t *testing.T) {
	u := NewUMEM()
	if err := u.Free(NumFrames * FrameSize); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Free(out of range) = %v, want ErrInvariantViolation", err)
	}
	if err := u.Free(FrameSize + 1); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Free(misaligned) = %v, want ErrInvariantViolation", err)
	}
}

func TestUMEMFreeOverflowIsInvariantViolation(t *testing.T) {
	u := NewUMEM()
	addr := u.Alloc()
	if err := u.Free(addr); err != nil {
		t.Fatalf("Free(addr) = %v, want nil", err)
	}
	if err := u.Free(addr); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Free(addr) a second time = %v, want ErrInvariantViolation", err)
	}
}

func TestUMEMFrameBounds(t *testing.T) {
	u := NewUMEM()
	addr := u.Alloc()

	data, err := u.Frame(addr, 64)
	if err != nil {
		t.Fatalf("Frame(addr, 64) = %v, want nil", err)
	}
	if len(data) != 64 {
		t.Errorf("len(data) = %d, want 64", len(data))
	}

	if _, err := u.Frame(addr, FrameSize+1); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Frame(addr, oversized) = %v, want ErrInvariantViolation", err)
	}
}
