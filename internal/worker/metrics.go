package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricReportsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locator",
		Subsystem: "worker",
		Name:      "reports_processed_total",
		Help:      "Reports taken off the log, by outcome.",
	}, []string{"outcome"})

	metricEmittersUpdated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locator",
		Subsystem: "worker",
		Name:      "emitters_updated_total",
		Help:      "Distinct emitter aggregates written, by kind.",
	}, []string{"kind"})

	metricBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "locator",
		Subsystem: "worker",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of one aggregation transaction.",
		Buckets:   prometheus.DefBuckets,
	})
)
