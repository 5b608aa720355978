package hsc

import (
	"github.com/sirupsen/logrus"

	"github.com/runZeroInc/xdpfw/internal/netutil"
)

// logPrefix tags the sensitive-port/ICMP log line.
const logPrefix = "xdpfw"

// sensitivePorts is the destination-port set worth calling out by name.
var sensitivePorts = map[uint16]bool{22: true, 80: true, 443: true}

// LogSensitive emits a fixed-format log line for traffic worth calling
// out by name: ICMP of any kind, or TCP/UDP to ports 22, 80, 443.
// Traffic that doesn't match either condition is silently skipped — this
// is not the general per-packet log, only the named sensitive-traffic
// record.
func LogSensitive(log *logrus.Logger, tuple netutil.FiveTuple) {
	isICMP := tuple.Protocol == netutil.ProtoICMP
	isSensitivePort := sensitivePorts[tuple.DstPort]
	if !isICMP && !isSensitivePort {
		return
	}

	proto := "TCP"
	if isICMP {
		proto = "ICMP"
	}
	log.Infof("%s: %s packet %s", logPrefix, proto, tuple.String())
}
