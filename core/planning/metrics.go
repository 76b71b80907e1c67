package planning

import "github.com/prometheus/client_golang/prometheus"

var mutationsTotal *prometheus.CounterVec

func newCollectors() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planning_mutations_total",
			Help: "Committed planning board mutations",
		},
		[]string{"op"},
	)
}

func init() {
	mutationsTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers planning metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(mutationsTotal)
}

// ResetMetrics recreates the collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	mutationsTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
