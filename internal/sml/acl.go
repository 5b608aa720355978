package sml

import (
	"errors"

	"github.com/cilium/ebpf"
	"github.com/runZeroInc/xdpfw/internal/netutil"
)

// UpdateMode mirrors BPF_ANY/BPF_NOEXIST/BPF_EXIST.
type UpdateMode int

const (
	ModeAny UpdateMode = iota
	ModeNoExist
	ModeExist
)

func (m UpdateMode) ebpfFlags() ebpf.MapUpdateFlags {
	switch m {
	case ModeNoExist:
		return ebpf.UpdateNoExist
	case ModeExist:
		return ebpf.UpdateExist
	default:
		return ebpf.UpdateAny
	}
}

// Action is the ACL rule verdict.
type Action uint8

const (
	ActionDrop Action = iota
	ActionAllow
	ActionLog
)

// Rule is the immutable ACL record keyed by 5-tuple.
type Rule struct {
	Action   Action
	Priority uint16
}

// aclKeyWire is the fixed-layout key struct written to and read from the
// eBPF map, matching original_source's packed acl_rule_t (src_ip, dst_ip,
// src_port, dst_port, protocol). Rule values travel as a [4]byte:
// action, a pad byte, then priority low byte first.
type aclKeyWire struct {
	SrcIP    uint32
	DstIP    uint32
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
	_        uint8 // padding to match the kernel struct's natural alignment
}

func aclKey(t netutil.FiveTuple) aclKeyWire {
	return aclKeyWire{SrcIP: t.SrcIP, DstIP: t.DstIP, SrcPort: t.SrcPort, DstPort: t.DstPort, Protocol: t.Protocol}
}

// ACLTable is the read-mostly acl_v4 table: many readers (KC, HSC),
// occasional writer (control plane). Nil-backed in degraded mode.
type ACLTable struct {
	m *ebpf.Map
	// local is used only in degraded mode, where there is no kernel map
	// to consult; the control plane may still populate local rules.
	local map[netutil.FiveTuple]Rule
}

func newACLTable(m *ebpf.Map) *ACLTable {
	return &ACLTable{m: m, local: make(map[netutil.FiveTuple]Rule)}
}

// Lookup returns the rule matching tuple, and whether it was found.
func (a *ACLTable) Lookup(tuple netutil.FiveTuple) (Rule, bool) {
	if a.m == nil {
		r, ok := a.local[tuple]
		return r, ok
	}
	key := aclKey(tuple)
	var value [4]byte
	if err := a.m.Lookup(&key, &value); err != nil {
		return Rule{}, false
	}
	return Rule{Action: Action(value[0]), Priority: uint16(value[2]) | uint16(value[3])<<8}, true
}

// Update installs or replaces a rule for tuple under the given mode.
func (a *ACLTable) Update(tuple netutil.FiveTuple, rule Rule, mode UpdateMode) error {
	if a.m == nil {
		if mode == ModeNoExist {
			if _, exists := a.local[tuple]; exists {
				return errors.New("sml: acl entry exists")
			}
		}
		if mode == ModeExist {
			if _, exists := a.local[tuple]; !exists {
				return errors.New("sml: acl entry missing")
			}
		}
		a.local[tuple] = rule
		return nil
	}
	key := aclKey(tuple)
	value := [4]byte{byte(rule.Action), 0, byte(rule.Priority), byte(rule.Priority >> 8)}
	return a.m.Update(&key, &value, mode.ebpfFlags())
}

// Delete removes the rule for tuple, if any.
func (a *ACLTable) Delete(tuple netutil.FiveTuple) error {
	if a.m == nil {
		delete(a.local, tuple)
		return nil
	}
	key := aclKey(tuple)
	return a.m.Delete(&key)
}

// Iterate walks every (tuple, rule) pair currently installed.
func (a *ACLTable) Iterate(fn func(netutil.FiveTuple, Rule) bool) {
	if a.m == nil {
		for k, v := range a.local {
			if !fn(k, v) {
				return
			}
		}
		return
	}
	var key aclKeyWire
	var value [4]byte
	it := a.m.Iterate()
	for it.Next(&key, &value) {
		tuple := netutil.FiveTuple{SrcIP: key.SrcIP, DstIP: key.DstIP, SrcPort: key.SrcPort, DstPort: key.DstPort, Protocol: key.Protocol}
		rule := Rule{Action: Action(value[0]), Priority: uint16(value[2]) | uint16(value[3])<<8}
		if !fn(tuple, rule) {
			return
		}
	}
}

// Close releases the underlying map fd, if any.
func (a *ACLTable) Close() {
	if a.m != nil {
		a.m.Close()
	}
}
