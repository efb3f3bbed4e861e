// Package metrics provides Prometheus instrumentation for wallet replays,
// grounded on the market-engine service's metrics package: package-level
// promauto collectors plus a plain promhttp.Handler for exposition.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReplaysTotal counts completed wallet replays, partitioned by outcome.
	ReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_replays_total",
		Help: "Total wallet replays run",
	}, []string{"outcome"})

	// ReplayDuration tracks wall-clock time per wallet replay.
	ReplayDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_replay_duration_seconds",
		Help:    "Wallet replay duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	// EventsProcessed counts unified-stream events dispatched, by kind.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_processed_total",
		Help: "Unified event stream events dispatched by the ledger engine",
	}, []string{"kind"})

	// LedgerEntriesWritten counts rows written to the ledger sink.
	LedgerEntriesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_entries_written_total",
		Help: "Ledger entries written across all replays",
	})

	// SnapshotsWritten counts valuation snapshots written to the sink.
	SnapshotsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_snapshots_written_total",
		Help: "Valuation snapshots written across all replays",
	})

	// BatchInFlight tracks the number of wallet replays currently running
	// inside a batch driver invocation.
	BatchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_batch_replays_in_flight",
		Help: "Wallet replays currently executing in a batch run",
	})
)

// ObserveReplay records outcome and duration for one wallet replay.
func ObserveReplay(outcome string, d time.Duration) {
	ReplaysTotal.WithLabelValues(outcome).Inc()
	ReplayDuration.Observe(d.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler for exposition.
func Handler() http.Handler {
	return promhttp.Handler()
}
