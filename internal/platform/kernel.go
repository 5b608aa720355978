//go:build linux

// Package platform holds the startup-time, host-dependent checks that sit
// outside the packet-plane core: kernel version gating and the loopback
// readiness probe xdp-drainerd runs at startup (netfd.go).
//
// Grounded on runZeroInc-sockstats/pkg/linux/init.go's kernel-version-
// gated adaptToKernelVersion, replacing its tcp_info struct-size table
// with the single AF_XDP minimum this repository actually needs.
package platform

import (
	"fmt"

	"github.com/docker/docker/pkg/parsers/kernel"
	"github.com/sirupsen/logrus"
)

// minAFXDPKernel is the first kernel release with AF_XDP zero-copy
// support (5.4, matching upstream kernel history — generic/copy mode
// works on older kernels too but zero-copy is what this transport wants).
var minAFXDPKernel = kernel.VersionInfo{Kernel: 5, Major: 4, Minor: 0}

// CheckKernel probes the running kernel version and reports whether it
// meets the AF_XDP zero-copy minimum. It never returns an error for a
// kernel below the minimum — callers degrade (warn and continue in
// generic/copy mode) rather than abort.
func CheckKernel(log *logrus.Logger) (meetsMinimum bool, err error) {
	v, err := kernel.GetKernelVersion()
	if err != nil {
		return false, fmt.Errorf("platform: get kernel version: %w", err)
	}

	if kernel.CompareKernelVersion(*v, minAFXDPKernel) < 0 {
		log.Warnf("kernel %s is older than %s: AF_XDP zero-copy mode may be unavailable, falling back to generic mode",
			v.String(), minAFXDPKernel.String())
		return false, nil
	}
	return true, nil
}
