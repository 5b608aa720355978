package classify

import (
	"testing"
	"time"

	"github.com/runZeroInc/xdpfw/internal/netutil"
	"github.com/runZeroInc/xdpfw/internal/sml"
)

func openDegraded(t *testing.T) *sml.Tables {
	t.Helper()
	tables, err := sml.Open("/nonexistent-pin-root-for-tests", testLogger())
	if err != nil {
		t.Fatalf("sml.Open: %v", err)
	}
	if tables.Mode != sml.ModeDegraded {
		t.Fatalf("tables.Mode = %v, want ModeDegraded", tables.Mode)
	}
	return tables
}

func TestEvaluateNoRuleAllowsAndCreatesSession(t *testing.T) {
	tables := openDegraded(t)
	tuple := netutil.FiveTuple{SrcIP: 1, DstIP: 2, SrcPort: 5000, DstPort: 80, Protocol: netutil.ProtoTCP}

	result := Evaluate(tables, tuple, time.Now(), 64)
	if result.Verdict != VerdictAllow {
		t.Fatalf("Verdict = %v, want VerdictAllow", result.Verdict)
	}
	if !result.SessionNew {
		t.Error("SessionNew = false, want true on first observation")
	}
	if result.RuleHit {
		t.Error("RuleHit = true, want false with no installed rule")
	}
}

func TestEvaluateDropRuleNeverTouchesSession(t *testing.T) {
	tables := openDegraded(t)
	tuple := netutil.FiveTuple{SrcIP: 1, DstIP: 2, SrcPort: 5000, DstPort: 80, Protocol: netutil.ProtoTCP}
	if err := tables.ACL.Update(tuple, sml.Rule{Action: sml.ActionDrop}, sml.ModeAny); err != nil {
		t.Fatalf("ACL.Update: %v", err)
	}

	result := Evaluate(tables, tuple, time.Now(), 64)
	if result.Verdict != VerdictDrop {
		t.Fatalf("Verdict = %v, want VerdictDrop", result.Verdict)
	}
	if _, ok := tables.Sessions.Lookup(tuple); ok {
		t.Error("session exists after DROP verdict, want none")
	}
}

func TestEvaluateLogRuleBehavesLikeAllow(t *testing.T) {
	tables := openDegraded(t)
	tuple := netutil.FiveTuple{SrcIP: 1, DstIP: 2, SrcPort: 5000, DstPort: 80, Protocol: netutil.ProtoTCP}
	if err := tables.ACL.Update(tuple, sml.Rule{Action: sml.ActionLog}, sml.ModeAny); err != nil {
		t.Fatalf("ACL.Update: %v", err)
	}

	result := Evaluate(tables, tuple, time.Now(), 64)
	if result.Verdict != VerdictLog {
		t.Fatalf("Verdict = %v, want VerdictLog", result.Verdict)
	}
	if !result.SessionNew {
		t.Error("SessionNew = false, want true: LOG still creates a session like ALLOW")
	}
}
