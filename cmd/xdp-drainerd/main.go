// Command xdp-drainerd attaches the kernel classifier to an interface,
// opens the zero-copy transport, and drains redirected frames until
// signalled to stop.
//
// Flags are parsed with cobra/pflag rather than hand-rolled os.Args
// handling, matching how command-line tools in this codebase are built.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/runZeroInc/xdpfw/internal/classify"
	"github.com/runZeroInc/xdpfw/internal/kernclassify"
	"github.com/runZeroInc/xdpfw/internal/metrics"
	"github.com/runZeroInc/xdpfw/internal/netutil"
	"github.com/runZeroInc/xdpfw/internal/platform"
	"github.com/runZeroInc/xdpfw/internal/sml"
	"github.com/runZeroInc/xdpfw/internal/zct"
)

var (
	iface     string
	objPath   string
	queueID   uint32
	verbose   bool
	pinRoot   string
	metricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:           "xdp-drainerd",
		Short:         "Attach the kernel classifier and drain redirected frames",
		SilenceUsage:  true,
		RunE:          run,
	}

	root.Flags().StringVarP(&iface, "interface", "i", "veth-a", "network interface to attach to")
	root.Flags().StringVarP(&objPath, "object", "p", "ebpf/xdp_filter.o", "compiled kernel classifier object")
	root.Flags().Uint32VarP(&queueID, "queue", "q", 0, "receive queue id to bind")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) logging")
	root.Flags().StringVar(&pinRoot, "pin-root", sml.DefaultPinRoot, "pinned eBPF map namespace root")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":9433", "address to serve Prometheus metrics on")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := platform.NewLogger(verbose)

	if _, err := platform.CheckKernel(log); err != nil {
		log.WithError(err).Warn("kernel version check failed, continuing anyway")
	}

	if err := platform.ProbeReadiness(log); err != nil {
		return fmt.Errorf("socket failure: %w", err)
	}

	attachment, err := kernclassify.Load(objPath, iface, log)
	if err != nil {
		return fmt.Errorf("attach failure: %w", err)
	}
	defer func() {
		if cerr := attachment.Close(); cerr != nil {
			log.WithError(cerr).Error("detaching kernel program")
		}
	}()

	tables, err := sml.Open(pinRoot, log)
	if err != nil {
		return fmt.Errorf("shared map layer: %w", err)
	}
	defer tables.Close()

	umem := zct.NewUMEM()
	sock, err := zct.OpenSocket(umem, attachment.IfaceIndex(), queueID)
	if err != nil {
		return fmt.Errorf("socket failure: %w", err)
	}
	defer sock.Close()

	if err := attachment.RegisterSocket(queueID, sock.FD()); err != nil {
		return fmt.Errorf("registering socket into xsk_map: %w", err)
	}

	collector := metrics.New(tables, nil)
	prometheus.MustRegister(collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	// The drainer only ever sees TCP frames KC already redirected, so classify.Evaluate here is purely for session
	// bookkeeping and ACL stats — never a second drop decision on the
	// kernel's behalf.
	handler := func(data []byte) {
		tuple, isIPv4, ipv4OK, ok := netutil.ExtractFiveTuple(data)
		if !ok || !isIPv4 || !ipv4OK {
			return
		}
		classify.Evaluate(tables, tuple, time.Now(), uint64(len(data)))
	}

	drainer := zct.NewDrainer(sock, umem, handler, log)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutdown requested")
		drainer.Cancel()
	}()

	log.Infof("draining interface=%s queue=%d object=%s", iface, queueID, objPath)
	if err := drainer.Run(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)

	log.Info("shutdown complete")
	return nil
}
