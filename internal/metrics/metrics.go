package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle results used as the result label.
const (
	ResultOK         = "ok"
	ResultFetchError = "fetch"
	ResultStoreError = "store"
	ResultOther      = "other"
)

var (
	CycleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Name:      "cycle_total",
		Help:      "Table cycles by result",
	}, []string{"table", "result"})

	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Name:      "events_applied_total",
		Help:      "Lock events applied to balance tables",
	}, []string{"table"})

	EventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Name:      "events_skipped_total",
		Help:      "Lock events skipped because they could not be decoded or converted",
	}, []string{"table"})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watcher",
		Name:      "reconnects_total",
		Help:      "Chain connection losses followed by a redial",
	})

	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watcher",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one table cycle",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"table"})

	LatestBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watcher",
		Name:      "latest_block",
		Help:      "Latest block reconciled per table",
	}, []string{"table"})
)
