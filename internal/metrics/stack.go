package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stackOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontstack_stack_operations_total",
			Help: "Total number of stack operations by unit, operation and result",
		},
		[]string{"unit", "operation", "result"},
	)

	stackOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "frontstack_stack_operation_duration_seconds",
			Help:    "Stack operation duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		},
		[]string{"unit", "operation"},
	)

	stackLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "frontstack_stack_last_success_timestamp_seconds",
			Help: "Unix time of the last successful operation per unit",
		},
		[]string{"unit", "operation"},
	)
)

// ObserveStackOperation records one unit operation. result is the deploy
// action ("created", "updated", "unchanged", "deleted") or "error".
func ObserveStackOperation(unit, operation, result string, started time.Time) {
	stackOperationsTotal.WithLabelValues(unit, operation, result).Inc()
	stackOperationDuration.WithLabelValues(unit, operation).Observe(time.Since(started).Seconds())
	if result != "error" {
		stackLastSuccess.WithLabelValues(unit, operation).SetToCurrentTime()
	}
}

// WriteTextfile dumps every registered metric in the node-exporter
// textfile format. Used by one-shot CLI runs that have no scrape endpoint.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
