// Package classify holds the session-tracking and rule-evaluation logic
// shared between the kernel classifier and the host-stack classifier.
// Both the kernel classifier's Go-side test mirror (internal/kernclassify)
// and the host-stack classifier (internal/hsc) call into this package
// so their verdicts agree.
package classify

import (
	"time"

	"github.com/runZeroInc/xdpfw/internal/netutil"
	"github.com/runZeroInc/xdpfw/internal/sml"
)

// Verdict is the outcome of evaluating a 5-tuple against the ACL and
// session tables.
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictDrop
	VerdictLog // treated as Allow by callers, but logged
)

// Result carries the verdict plus the bookkeeping callers need to update
// their own counters and session table.
type Result struct {
	Verdict    Verdict
	RuleHit    bool
	Rule       sml.Rule
	Session    sml.Session
	SessionNew bool
}

// Evaluate consults acl_v4 for tuple, applies its action, and — for
// allowed traffic — upserts the sessions table. This is the single
// place the apply-action and update-session logic is implemented, so
// the kernel classifier's Go mirror and the host-stack classifier
// can't disagree on either.
func Evaluate(tables *sml.Tables, tuple netutil.FiveTuple, now time.Time, packetLen uint64) Result {
	tables.Stats.Add(sml.StatMapLookups, 1)

	rule, hit := tables.ACL.Lookup(tuple)
	if hit {
		tables.Stats.Add(sml.StatMapHits, 1)
	}

	if !hit || rule.Action == sml.ActionAllow || rule.Action == sml.ActionLog {
		sess, created := tables.Sessions.Upsert(tuple, now, packetLen)
		if created {
			tables.Stats.Add(sml.StatSessionsCreated, 1)
		}
		v := VerdictAllow
		if hit && rule.Action == sml.ActionLog {
			v = VerdictLog
		}
		return Result{Verdict: v, RuleHit: hit, Rule: rule, Session: sess, SessionNew: created}
	}

	// hit && rule.Action == ActionDrop
	return Result{Verdict: VerdictDrop, RuleHit: true, Rule: rule}
}
