package kernclassify

import (
	"io"
	"testing"

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

// TestClassifyZeroLengthFrame covers scenario: zero-length frame ->
// ABORTED.
func TestClassifyZeroLengthFrame(t *testing.T) {
	tables := testTables(t)
	v, _ := Classify(tables, nil, 0)
	if v != VerdictAborted {
		t.Fatalf("Classify(nil) = %v, want VerdictAborted", v)
	}
	if got := tables.Stats.Sum(sml.StatError); got != 1 {
		t.Errorf("StatError = %d, want 1", got)
	}
}

// TestClassifyNonIPv4Passes checks ARP traffic passes untouched.
func TestClassifyNonIPv4Passes(t *testing.T) {
	tables := testTables(t)
	v, _ := Classify(tables, ethFrame(0x0806, nil), 0)
	if v != VerdictPass {
		t.Fatalf("Classify(ARP) = %v, want VerdictPass", v)
	}
	if got := tables.Stats.Sum(sml.StatPass); got != 1 {
		t.Errorf("StatPass = %d, want 1", got)
	}
}

// TestClassifyTruncatedIPv4 checks a too-short IPv4 header aborts.
func TestClassifyTruncatedIPv4(t *testing.T) {
	tables := testTables(t)
	v, _ := Classify(tables, ethFrame(0x0800, make([]byte, 10)), 0)
	if v != VerdictAborted {
		t.Fatalf("Classify(truncated ipv4) = %v, want VerdictAborted", v)
	}
	if got := tables.Stats.Sum(sml.StatError); got != 1 {
		t.Errorf("StatError = %d, want 1", got)
	}
}

// TestClassifyICMPDrops checks ICMP always drops and never touches
// REDIRECT.
func TestClassifyICMPDrops(t *testing.T) {
	tables := testTables(t)
	v, _ := Classify(tables, ethFrame(0x0800, ipv4(1, nil)), 0)
	if v != VerdictDrop {
		t.Fatalf("Classify(ICMP) = %v, want VerdictDrop", v)
	}
	if got := tables.Stats.Sum(sml.StatDrop); got != 1 {
		t.Errorf("StatDrop = %d, want 1", got)
	}
	if got := tables.Stats.Sum(sml.StatRedirect); got != 0 {
		t.Errorf("StatRedirect = %d, want 0", got)
	}
}

// TestClassifyUDPPasses checks UDP traffic passes untouched.
func TestClassifyUDPPasses(t *testing.T) {
	tables := testTables(t)
	v, _ := Classify(tables, ethFrame(0x0800, ipv4(17, []byte{0, 53, 0, 53})), 0)
	if v != VerdictPass {
		t.Fatalf("Classify(UDP) = %v, want VerdictPass", v)
	}
}

// TestClassifyTCPRedirects checks TCP with no matching DROP rule
// redirects to the given queue.
func TestClassifyTCPRedirects(t *testing.T) {
	tables := testTables(t)
	v, queue := Classify(tables, ethFrame(0x0800, ipv4(6, []byte{0x13, 0x88, 0x00, 0x50})), 3)
	if v != VerdictRedirect {
		t.Fatalf("Classify(TCP) = %v, want VerdictRedirect", v)
	}
	if queue != 3 {
		t.Errorf("queue = %d, want 3", queue)
	}
	if got := tables.Stats.Sum(sml.StatRedirect); got != 1 {
		t.Errorf("StatRedirect = %d, want 1", got)
	}
}

// TestClassifyTCPWithDropRuleNeverRedirects checks that a DROP verdict
// never enqueues to any downstream ring.
func TestClassifyTCPWithDropRuleNeverRedirects(t *testing.T) {
	tables := testTables(t)
	frame := ethFrame(0x0800, ipv4(6, []byte{0x13, 0x88, 0x00, 0x50}))
	tuple := netutil.FiveTuple{
		SrcIP: 0x0A000001, DstIP: 0x0A000002, SrcPort: 5000, DstPort: 80, Protocol: netutil.ProtoTCP,
	}

	if err := tables.ACL.Update(tuple, sml.Rule{Action: sml.ActionDrop}, sml.ModeAny); err != nil {
		t.Fatalf("ACL.Update: %v", err)
	}

	v, _ := Classify(tables, frame, 0)
	if v != VerdictDrop {
		t.Fatalf("Classify(TCP with DROP rule) = %v, want VerdictDrop", v)
	}
	if got := tables.Stats.Sum(sml.StatRedirect); got != 0 {
		t.Errorf("StatRedirect = %d, want 0 (I4: DROP never enqueues downstream)", got)
	}
}
