package differ

import "github.com/prometheus/client_golang/prometheus"

// totalLabel labels the duration of a whole state diff.
const totalLabel = "all"

// Metrics holds the collectors of a StateDiffer.
type Metrics struct {
	diffDuration *prometheus.HistogramVec
	diffErrors   *prometheus.CounterVec
	skipped      prometheus.Counter
}

// NewMetrics creates the differ collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dmm",
			Subsystem: "differ",
			Name:      "duration_seconds",
			Help:      "Time spent diffing states, per schema and in total.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"schema"}),
		diffErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dmm",
			Subsystem: "differ",
			Name:      "errors_total",
			Help:      "Protocol diffs that failed, per schema.",
		}, []string{"schema"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dmm",
			Subsystem: "differ",
			Name:      "unchanged_protocols_total",
			Help:      "Protocols left out of a diff because nothing changed.",
		}),
	}
	reg.MustRegister(m.diffDuration, m.diffErrors, m.skipped)
	return m
}
