package migration

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datamove",
		Name:      "operations_total",
		Help:      "Export, import and reconcile calls by outcome.",
	}, []string{"operation", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "datamove",
		Name:      "operation_duration_seconds",
		Help:      "Wall time of export, import and reconcile calls.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"operation"})

	rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datamove",
		Name:      "rows_total",
		Help:      "Rows exported, deleted, inserted or skipped per model.",
	}, []string{"model", "phase"})

	sequenceCorrections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datamove",
		Name:      "sequence_corrections_total",
		Help:      "Sequences advanced by the reconciler.",
	}, []string{"model"})
)

func observe(operation string, start time.Time, err *error) {
	outcome := "success"
	if *err != nil {
		outcome = "error"
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
