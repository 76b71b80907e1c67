package cut

import "github.com/prometheus/client_golang/prometheus"

var repairsTotal prometheus.Counter

func newCollectors() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cutinfo_repairs_total",
		Help: "Cut info rows corrected by the repair pass",
	})
}

func init() {
	repairsTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers cut metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(repairsTotal)
}

// ResetMetrics recreates the collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	repairsTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
