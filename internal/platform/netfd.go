//go:build linux

package platform

import (
	"fmt"
	"net"

	"github.com/higebu/netfd"
	"github.com/sirupsen/logrus"
)

// ProbeConnFD extracts the raw file descriptor from conn.
//
// Grounded on runZeroInc-sockstats/pkg/exporter/exporter.go's
// netfd.GetFdFromConn(conn) usage for labelling a live TCP connection by
// fd; here it labels a probe socket instead.
func ProbeConnFD(conn net.Conn) int {
	return netfd.GetFdFromConn(conn)
}

// ProbeReadiness opens a loopback TCP listener, dials it, and extracts the
// client side's raw fd via ProbeConnFD, then tears both ends down. It is
// xdp-drainerd's startup sanity check that the host's socket stack will
// hand back usable raw fds before attaching the kernel program and opening
// the AF_XDP socket — the same class of raw-fd plumbing internal/zct's
// socket setup depends on, exercised here on an ordinary loopback
// connection rather than a zero-copy one.
func ProbeReadiness(log *logrus.Logger) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("platform: readiness probe listen: %w", err)
	}
	defer ln.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		return fmt.Errorf("platform: readiness probe dial: %w", err)
	}
	defer conn.Close()

	fd := ProbeConnFD(conn)
	log.WithField("probe_fd", fd).Debug("loopback readiness probe succeeded")
	return nil
}
