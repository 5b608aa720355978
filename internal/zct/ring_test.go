package zct

import "testing"

func TestRingProducerConsumerRoundTrip(t *testing.T) {
	r := NewRing(8)

	free := r.ProducerReserve()
	if free != 8 {
		t.Fatalf("ProducerReserve() = %d, want 8", free)
	}

	for i := uint32(0); i < 4; i++ {
		r.ProducerWrite(i, Descriptor{Addr: uint64(i) * FrameSize})
	}
	r.ProducerSubmit(4)

	available, start := r.ConsumerPeek(RXBatchSize)
	if available != 4 {
		t.Fatalf("ConsumerPeek available = %d, want 4", available)
	}
	if start != 0 {
		t.Fatalf("ConsumerPeek start = %d, want 0", start)
	}

	for i := uint32(0); i < available; i++ {
		d := r.At(start + i)
		if d.Addr != uint64(i)*FrameSize {
			t.Errorf("At(%d).Addr = %d, want %d", i, d.Addr, uint64(i)*FrameSize)
		}
	}
	r.ConsumerRelease(available)

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after full release", r.Len())
	}
	if got := r.ProducerReserve(); got != 8 {
		t.Errorf("ProducerReserve() after release = %d, want 8", got)
	}
}

func TestRingConsumerPeekCapsAtMax(t *testing.T) {
	r := NewRing(16)
	for i := uint32(0); i < 10; i++ {
		r.ProducerWrite(i, Descriptor{Addr: uint64(i)})
	}
	r.ProducerSubmit(10)

	available, _ := r.ConsumerPeek(4)
	if available != 4 {
		t.Fatalf("ConsumerPeek(4) available = %d, want 4", available)
	}
}

func TestNewRingRejectsNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewRing(3) did not panic")
		}
	}()
	NewRing(3)
}
