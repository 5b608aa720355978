// Package sml implements the Shared Map Layer: three pinned
// eBPF maps — acl_v4, sessions, stats — opened through Open by each process
// that uses them (xdp-drainerd and xdpfw-ctl), whose Tables are then
// handed to the classifiers.
package sml

import (
	"errors"
	"fmt"
	"os"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/sirupsen/logrus"
)

// Mode records whether the shared maps were actually reachable at open
// time. Callers degrade to local-only bookkeeping when Degraded.
type Mode int

const (
	ModeLive Mode = iota
	ModeDegraded
)

func (m Mode) String() string {
	if m == ModeLive {
		return "live"
	}
	return "degraded"
}

// Default pinned paths.
const (
	DefaultPinRoot   = "/sys/fs/bpf"
	ACLMapName       = "vpp_acl_v4"
	StatsMapName     = "vpp_stats"
	SessionsMapName  = "vpp_sessions"
	CONN_TABLE_SIZE  = 65536
	StatsShardsPerCPU = true
)

// ErrNotFound is returned when a pinned table cannot be opened.
var ErrNotFound = errors.New("sml: pinned map not found")

// Tables bundles the three shared tables. In ModeDegraded, Open fills
// them with in-process tables that keep their state locally instead of
// in pinned maps. A zero-value Tables has nil tables and is not usable.
type Tables struct {
	Mode     Mode
	ACL      *ACLTable
	Sessions *SessionTable
	Stats    *StatsTable
}

// Open opens all three pinned tables under pinRoot. If any is missing, the
// whole set degrades to local-only operation rather than failing partially-open.
func Open(pinRoot string, log *logrus.Logger) (*Tables, error) {
	if pinRoot == "" {
		pinRoot = DefaultPinRoot
	}
	if err := rlimit.RemoveMemlock(); err != nil {
		log.WithError(err).Warn("failed to remove memlock rlimit; pinned map access may fail")
	}

	aclMap, err := openPinned(pinRoot, ACLMapName)
	if err != nil {
		log.WithError(err).Warnf("acl_v4 map unavailable at %s/%s, running degraded", pinRoot, ACLMapName)
		return degraded(), nil
	}
	sessMap, err := openPinned(pinRoot, SessionsMapName)
	if err != nil {
		aclMap.Close()
		log.WithError(err).Warnf("sessions map unavailable at %s/%s, running degraded", pinRoot, SessionsMapName)
		return degraded(), nil
	}
	statsMap, err := openPinned(pinRoot, StatsMapName)
	if err != nil {
		aclMap.Close()
		sessMap.Close()
		log.WithError(err).Warnf("stats map unavailable at %s/%s, running degraded", pinRoot, StatsMapName)
		return degraded(), nil
	}

	return &Tables{
		Mode:     ModeLive,
		ACL:      newACLTable(aclMap),
		Sessions: newSessionTable(sessMap),
		Stats:    newStatsTable(statsMap),
	}, nil
}

func degraded() *Tables {
	return &Tables{
		Mode:     ModeDegraded,
		ACL:      newACLTable(nil),
		Sessions: newSessionTable(nil),
		Stats:    newLocalStatsTable(),
	}
}

func openPinned(pinRoot, name string) (*ebpf.Map, error) {
	path := pinRoot + "/" + name
	m, err := ebpf.LoadPinnedMap(path, nil)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return m, nil
}

// Close releases any open map file descriptors. Safe to call in degraded
// mode (the underlying maps are nil).
func (t *Tables) Close() {
	if t.ACL != nil {
		t.ACL.Close()
	}
	if t.Sessions != nil {
		t.Sessions.Close()
	}
	if t.Stats != nil {
		t.Stats.Close()
	}
}
