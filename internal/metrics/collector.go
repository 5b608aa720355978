// Package metrics exposes the shared stats table and HSC's per-interface
// counters as a Prometheus collector.
//
// Grounded on runZeroInc-sockstats/pkg/exporter/exporter.go's
// TCPInfoCollector: a struct holding a mutex and its metric descriptions,
// with Describe sending each description and Collect locking once and
// emitting prometheus.MustNewConstMetric per value. Values come from
// sml.StatsTable and hsc.Classifier.SnapshotStats instead of a live
// TCP_INFO socket.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/runZeroInc/xdpfw/internal/hsc"
	"github.com/runZeroInc/xdpfw/internal/sml"
)

// Collector implements prometheus.Collector over the shared stats table
// and, when non-nil, an HSC classifier's per-interface counters.
type Collector struct {
	mu         sync.Mutex
	tables     *sml.Tables
	classifier *hsc.Classifier

	statDesc *prometheus.Desc
	ifaceDesc *prometheus.Desc
	modeDesc *prometheus.Desc
}

// New builds a Collector over tables. classifier may be nil for the
// drainer binary, which has no HSC instance of its own but still wants
// KC's shared stats exported.
func New(tables *sml.Tables, classifier *hsc.Classifier) *Collector {
	return &Collector{
		tables: tables,
		classifier: classifier,
		statDesc: prometheus.NewDesc(
			"xdpfw_packets_total", "Packet counters shared between the kernel and host-stack classifiers.",
			[]string{"counter"}, nil,
		),
		ifaceDesc: prometheus.NewDesc(
			"xdpfw_interface_packets_total", "Per-interface packet counters from the host-stack classifier.",
			[]string{"interface", "direction"}, nil,
		),
		modeDesc: prometheus.NewDesc(
			"xdpfw_shared_map_mode", "1 if the shared map layer is live (pinned maps opened), 0 if degraded.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.statDesc
	descs <- c.ifaceDesc
	descs <- c.modeDesc
}

// Collect implements prometheus.Collector. It takes the mutex once and
// emits every metric for this scrape without releasing it, so concurrent
// scrapes do not interleave. Counters are read one at a time and are not
// frozen against concurrent writers.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, value := range c.tables.Stats.Snapshot() {
		metrics <- prometheus.MustNewConstMetric(c.statDesc, prometheus.CounterValue, float64(value), name)
	}

	mode := 0.0
	if c.tables.Mode == sml.ModeLive {
		mode = 1.0
	}
	metrics <- prometheus.MustNewConstMetric(c.modeDesc, prometheus.GaugeValue, mode)

	if c.classifier == nil {
		return
	}
	for idx, row := range c.classifier.SnapshotStats().PerInterface {
		label := strconv.Itoa(idx)
		metrics <- prometheus.MustNewConstMetric(c.ifaceDesc, prometheus.CounterValue, float64(row.PassCount), label, "pass")
		metrics <- prometheus.MustNewConstMetric(c.ifaceDesc, prometheus.CounterValue, float64(row.DropCount), label, "drop")
		metrics <- prometheus.MustNewConstMetric(c.ifaceDesc, prometheus.CounterValue, float64(row.RedirectCount), label, "redirect")
	}
}
