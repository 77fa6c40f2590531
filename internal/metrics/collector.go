// Package metrics exposes greplay's replay counters as Prometheus
// metrics, polling a control.Stats snapshot on each scrape rather than
// incrementing counters inline on the hot send path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/greplay/greplay/internal/control"
)

const (
	namespace = "greplay"
	subsystem = "replay"
)

// Collector adapts a *control.Surface's live Stats into Prometheus
// counters (plus a running gauge), scraped on demand via the Collect hook (prometheus.Collector)
// rather than pushed incrementally, since control.Stats already holds
// the authoritative monotonic counters.
type Collector struct {
	surface *control.Surface

	pktsSent  *prometheus.Desc
	bytesSent *prometheus.Desc
	failed    *prometheus.Desc
	skipped   *prometheus.Desc
	running   *prometheus.Desc
}

// NewCollector returns a Collector reporting the live counters of
// surface. Register it against a prometheus.Registerer with
// reg.MustRegister(collector).
func NewCollector(surface *control.Surface) *Collector {
	return &Collector{
		surface: surface,

		pktsSent: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "packets_sent_total"),
			"Total packets successfully dispatched to a sender.",
			nil, nil,
		),
		bytesSent: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "bytes_sent_total"),
			"Total bytes successfully dispatched to a sender.",
			nil, nil,
		),
		failed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "send_failed_total"),
			"Total packets that failed MTU enforcement or sender transmission.",
			nil, nil,
		),
		skipped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "skipped_total"),
			"Total packets dropped by classification-bitmap routing to an unconfigured interface.",
			nil, nil,
		),
		running: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "running"),
			"1 while a Replay call is in progress, 0 otherwise.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pktsSent
	ch <- c.bytesSent
	ch <- c.failed
	ch <- c.skipped
	ch <- c.running
}

// Collect implements prometheus.Collector, snapshotting c.surface.Stats
// at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.surface.Stats.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.pktsSent, prometheus.CounterValue, float64(snap.PktsSent))
	ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(snap.BytesSent))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(snap.Failed))
	ch <- prometheus.MustNewConstMetric(c.skipped, prometheus.CounterValue, float64(snap.Skipped))

	runningVal := 0.0
	if c.surface.IsRunning() {
		runningVal = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, runningVal)
}
