package stream

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics vars follow the teacher pack's package-level CounterVec/GaugeVec
// idiom (pobradovic08-route-beacon-ri's internal/metrics), registered once
// via registerMetrics rather than at package init so a process embedding more than
// one Stream doesn't double-register.
var (
	filesDiscoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpstream_files_discovered_total",
			Help: "Dump files pushed onto the Input Queue by a catalogue refresh.",
		},
		[]string{"catalogue"},
	)

	brokerRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpstream_catalogue_refresh_total",
			Help: "Catalogue refresh calls, partitioned by outcome.",
		},
		[]string{"catalogue", "outcome"}, // outcome: ok, empty, fatal
	)

	readerOpensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpstream_reader_opens_total",
			Help: "Reader open attempts, partitioned by outcome.",
		},
		[]string{"outcome"}, // outcome: ok, failed
	)

	recordsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpstream_records_emitted_total",
			Help: "Records handed back by NextRecord, by dump kind.",
		},
		[]string{"dump_kind"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpstream_input_queue_depth",
			Help: "Entries currently sitting in the Input Queue.",
		},
	)
)

var registerOnce sync.Once

// registerMetrics registers the package's collectors with the default
// registry exactly once per process, regardless of how many Streams are
// constructed.
func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			filesDiscoveredTotal,
			brokerRefreshTotal,
			readerOpensTotal,
			recordsEmittedTotal,
			queueDepth,
		)
	})
}
