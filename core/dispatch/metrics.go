package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	routingLatency *prometheus.HistogramVec
	tasksRouted    *prometheus.CounterVec
	ackLatency     *prometheus.HistogramVec
	notifySuccess  prometheus.Counter
	notifyFailure  prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Counter, prometheus.Counter) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_routing_seconds",
			Help:    "Time spent scoring and committing one task",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"priority"},
	)
	routed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_tasks_routed_total",
			Help: "Routing attempts by outcome",
		},
		[]string{"outcome"},
	)
	ack := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_ack_latency_seconds",
			Help:    "Time between assignment and worker response",
			Buckets: prometheus.ExponentialBuckets(5, 2, 8),
		},
		[]string{"action"},
	)
	suc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_notify_success_total",
			Help: "Number of assignment notices delivered to the broker",
		},
	)
	fail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_notify_failure_total",
			Help: "Number of assignment notices that could not be published",
		},
	)
	return lat, routed, ack, suc, fail
}

func init() {
	routingLatency, tasksRouted, ackLatency, notifySuccess, notifyFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(routingLatency, tasksRouted, ackLatency, notifySuccess, notifyFailure)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	routingLatency, tasksRouted, ackLatency, notifySuccess, notifyFailure = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
