package hsc

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runZeroInc/xdpfw/internal/netutil"
	"github.com/runZeroInc/xdpfw/internal/sml"
)

func testTables(t *testing.T) *sml.Tables {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	tables, err := sml.Open("/nonexistent-pin-root-for-tests", log)
	if err != nil {
		t.Fatalf("sml.Open: %v", err)
	}
	return tables
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func ethFrame(etherType uint16, rest []byte) []byte {
	f := make([]byte, 14)
	f[12] = byte(etherType >> 8)
	f[13] = byte(etherType)
	return append(f, rest...)
}

func ipv4(proto uint8, rest []byte) []byte {
	b := make([]byte, 20)
	b[0] = 0x45
	b[9] = proto
	b[12], b[13], b[14], b[15] = 10, 0, 0, 1
	b[16], b[17], b[18], b[19] = 10, 0, 0, 2
	return append(b, rest...)
}

func tcpFrame(sport, dport uint16) []byte {
	ports := []byte{byte(sport >> 8), byte(sport), byte(dport >> 8), byte(dport)}
	return ethFrame(0x0800, ipv4(6, ports))
}

// TestClassifyNonIPv4GoesToEthernetInput checks the non-IPv4 fast path.
func TestClassifyNonIPv4GoesToEthernetInput(t *testing.T) {
	c := New(testTables(t), testLogger())
	v := c.Classify(Buffer{Data: ethFrame(0x0806, nil), RxIfaceIndex: 0}, time.Now())
	if v.Next != NextEthernetInput {
		t.Fatalf("Next = %v, want NextEthernetInput", v.Next)
	}
}

// TestClassifyInvalidPacketDrops checks the undersized-header bounds
// check drops with InvalidPacket, without aborting the batch.
func TestClassifyInvalidPacketDrops(t *testing.T) {
	c := New(testTables(t), testLogger())
	v := c.Classify(Buffer{Data: ethFrame(0x0800, make([]byte, 5)), RxIfaceIndex: 0}, time.Now())
	if v.Next != NextDrop {
		t.Fatalf("Next = %v, want NextDrop", v.Next)
	}
	if v.DropReason != DropReasonInvalidPacket {
		t.Errorf("DropReason = %v, want DropReasonInvalidPacket", v.DropReason)
	}
}

// TestClassifyACLDrop checks that a DROP rule for a 5-tuple sends the
// matching buffer to NextDrop and leaves the session table untouched.
func TestClassifyACLDrop(t *testing.T) {
	tables := testTables(t)
	tuple := netutil.FiveTuple{SrcIP: 0x0A000001, DstIP: 0x0A000002, SrcPort: 5000, DstPort: 80, Protocol: netutil.ProtoTCP}
	if err := tables.ACL.Update(tuple, sml.Rule{Action: sml.ActionDrop}, sml.ModeAny); err != nil {
		t.Fatalf("ACL.Update: %v", err)
	}

	c := New(tables, testLogger())
	v := c.Classify(Buffer{Data: tcpFrame(5000, 80), RxIfaceIndex: 0}, time.Now())

	if v.Next != NextDrop {
		t.Fatalf("Next = %v, want NextDrop", v.Next)
	}
	if v.DropReason != DropReasonACL {
		t.Errorf("DropReason = %v, want DropReasonACL", v.DropReason)
	}
	if _, ok := tables.Sessions.Lookup(tuple); ok {
		t.Error("session exists after ACL DROP, want none")
	}
	if got := tables.Stats.Sum(sml.StatPktsDropped); got != 1 {
		t.Errorf("StatPktsDropped = %d, want 1", got)
	}
}

// TestClassifyAllowCreatesSessionAndRouting checks the default-ALLOW-on-
// ACL-miss behavior and that an allowed packet creates a session.
func TestClassifyAllowCreatesSessionAndRouting(t *testing.T) {
	tables := testTables(t)
	c := New(tables, testLogger())

	t1 := time.Now()
	v1 := c.Classify(Buffer{Data: tcpFrame(5000, 80), RxIfaceIndex: 2}, t1)
	if v1.Next != NextIP4Lookup {
		t.Fatalf("first packet Next = %v, want NextIP4Lookup", v1.Next)
	}

	t2 := t1.Add(100 * time.Millisecond)
	v2 := c.Classify(Buffer{Data: tcpFrame(5000, 80), RxIfaceIndex: 2}, t2)
	if v2.Next != NextIP4Lookup {
		t.Fatalf("second packet Next = %v, want NextIP4Lookup", v2.Next)
	}

	sess, ok := tables.Sessions.Lookup(v2.Tuple)
	if !ok {
		t.Fatal("session not found after two packets")
	}
	wantBytes := uint64(len(tcpFrame(5000, 80))) * 2
	if sess.BytesRx != wantBytes {
		t.Errorf("BytesRx = %d, want %d", sess.BytesRx, wantBytes)
	}

	snap := c.ifaces.Snapshot()
	if snap[2].PassCount != 2 {
		t.Errorf("PassCount for iface 2 = %d, want 2", snap[2].PassCount)
	}
}

// TestSetEnabledIsBookkeeping checks that SetEnabled flips the
// per-interface flag and that an unknown interface reads as enabled.
// The flag is bookkeeping only: Classify does not consult it, the worker
// loop is what skips disabled interfaces.
func TestSetEnabledIsBookkeeping(t *testing.T) {
	c := New(testTables(t), testLogger())
	c.SetEnabled(5, false)
	if c.ifaces.Enabled(5) {
		t.Error("Enabled(5) = true after SetEnabled(5, false)")
	}
	if c.ifaces.Enabled(6) != true {
		t.Error("Enabled(6) (unknown interface) = false, want true (default enabled)")
	}
}
