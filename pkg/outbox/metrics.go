package outbox

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueueTotal    *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	deadTotal       *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec

	pending     *prometheus.GaugeVec
	locked      *prometheus.GaugeVec
	relayLeader *prometheus.GaugeVec
}

var getMetrics = sync.OnceValue(func() *metrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "outbox", Name: name, Help: help}, labels)
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: "outbox", Name: name, Help: help}, []string{"table"})
	}

	return &metrics{
		enqueueTotal:  counter("enqueue_total", "Total number of outbox enqueue operations.", "table", "topic"),
		dispatchTotal: counter("dispatch_total", "Total number of outbox dispatch operations.", "table", "topic", "result"),
		deadTotal:     counter("dead_total", "Total number of messages that entered dead state.", "table", "topic"),
		dispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "outbox",
			Name:      "dispatch_latency_seconds",
			Help:      "Latency distribution for outbox dispatch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12),
		}, []string{"table", "topic", "result"}),
		pending:     gauge("pending", "Current number of unpublished messages."),
		locked:      gauge("locked", "Current number of locked unpublished messages."),
		relayLeader: gauge("relay_leader", "Whether this instance holds the relay lock for a table (1/0)."),
	}
})
