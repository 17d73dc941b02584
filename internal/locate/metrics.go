package locate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricQueries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "locator",
	Subsystem: "locate",
	Name:      "queries_total",
	Help:      "Locate queries answered, by resolution path.",
}, []string{"source"})
