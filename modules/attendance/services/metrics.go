package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attendanceOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "engine",
		Name:      "operations_total",
		Help:      "Total number of attendance operations broken down by operation and outcome code.",
	}, []string{"operation", "outcome"})

	attendanceWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of ledger unique violations broken down by constraint.",
	}, []string{"constraint"})

	attendanceCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total number of dashboard cache lookups broken down by hit/miss/error.",
	}, []string{"result"})
)

func recordOperation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if se, ok := asServiceError(err); ok {
			outcome = se.Code
		}
	}
	attendanceOperations.WithLabelValues(op, outcome).Inc()
}

func recordWriteConflict(constraint string) {
	if constraint == "" {
		constraint = "other"
	}
	attendanceWriteConflicts.WithLabelValues(constraint).Inc()
}

func recordCacheRequest(result string) {
	attendanceCacheRequests.WithLabelValues(result).Inc()
}
