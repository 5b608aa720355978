package hsc

import (
	"testing"
	"time"
)

// TestWorkerDisabledInterfacePassesThrough checks that a disabled
// interface's buffers still reach the output channel, dispatched to
// NextEthernetInput rather than silently dropped.
func TestWorkerDisabledInterfacePassesThrough(t *testing.T) {
	c := New(testTables(t), testLogger())
	c.SetEnabled(3, false)

	input := make(chan Buffer, 1)
	output := make(chan Dispatch, 1)
	w := NewWorker(c, input, output)

	go w.Run()

	input <- Buffer{Data: tcpFrame(5000, 80), RxIfaceIndex: 3}
	close(input)

	select {
	case d := <-output:
		if d.Verdict.Next != NextEthernetInput {
			t.Errorf("Next = %v, want NextEthernetInput for disabled interface", d.Verdict.Next)
		}
		if d.Buffer.RxIfaceIndex != 3 {
			t.Errorf("RxIfaceIndex = %d, want 3", d.Buffer.RxIfaceIndex)
		}
	case <-time.After(time.Second):
		t.Fatal("buffer on a disabled interface never reached output")
	}
}

// TestWorkerEnabledInterfaceClassifies checks that an enabled interface's
// buffers still run through the classifier as before.
func TestWorkerEnabledInterfaceClassifies(t *testing.T) {
	c := New(testTables(t), testLogger())

	input := make(chan Buffer, 1)
	output := make(chan Dispatch, 1)
	w := NewWorker(c, input, output)

	go w.Run()

	input <- Buffer{Data: tcpFrame(5000, 80), RxIfaceIndex: 4}
	close(input)

	select {
	case d := <-output:
		if d.Verdict.Next != NextIP4Lookup {
			t.Errorf("Next = %v, want NextIP4Lookup for allowed TCP", d.Verdict.Next)
		}
	case <-time.After(time.Second):
		t.Fatal("buffer on an enabled interface never reached output")
	}
}
