package notify

import "github.com/prometheus/client_golang/prometheus"

var (
	publishTotal   *prometheus.CounterVec
	publishLatency prometheus.Histogram
)

func newCollectors() (*prometheus.CounterVec, prometheus.Histogram) {
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_publish_total",
			Help: "Remote event publications by result",
		},
		[]string{"result"},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_publish_latency_seconds",
			Help:    "Time spent publishing one event to the remote bus",
			Buckets: prometheus.DefBuckets,
		},
	)
	return total, lat
}

func init() {
	publishTotal, publishLatency = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers notification metrics on reg, or on the
// default registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(publishTotal, publishLatency)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when it is not nil.
func ResetMetrics(reg prometheus.Registerer) {
	publishTotal, publishLatency = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
