package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricReportsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "locator",
		Subsystem: "ingest",
		Name:      "reports_accepted_total",
		Help:      "Report items appended to the log.",
	})

	metricReportsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locator",
		Subsystem: "ingest",
		Name:      "reports_dropped_total",
		Help:      "Report items rejected before the log, by reason.",
	}, []string{"reason"})
)
