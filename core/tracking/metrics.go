package tracking

import "github.com/prometheus/client_golang/prometheus"

var zoneUpdates *prometheus.CounterVec

func newCollectors() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_zone_updates_total",
			Help: "Number of applied worker zone updates",
		},
		[]string{"source"},
	)
}

func init() {
	zoneUpdates = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers tracking metrics on reg, or on
// prometheus.DefaultRegisterer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(zoneUpdates)
}

// ResetMetrics recreates the collectors and registers them on reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	zoneUpdates = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
