package simulate

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports trial outcomes on a caller-supplied registry.
type Metrics struct {
	trials      *prometheus.CounterVec
	files       *prometheus.CounterVec
	degraded    prometheus.Counter
	rawBER      prometheus.Histogram
	residualBER prometheus.Histogram
}

var berBuckets = prometheus.ExponentialBuckets(1e-6, 10, 7)

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crystal",
			Subsystem: "simulate",
			Name:      "trials_total",
			Help:      "Damage trials by outcome.",
		}, []string{"outcome"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crystal",
			Subsystem: "simulate",
			Name:      "files_total",
			Help:      "Files seen by damage trials, by whether they were recovered.",
		}, []string{"recovered"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crystal",
			Subsystem: "simulate",
			Name:      "degraded_codewords_total",
			Help:      "Inner codewords that did not converge.",
		}),
		rawBER: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crystal",
			Subsystem: "simulate",
			Name:      "raw_bit_error_rate",
			Help:      "Channel bit error rate per trial.",
			Buckets:   berBuckets,
		}),
		residualBER: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crystal",
			Subsystem: "simulate",
			Name:      "residual_bit_error_rate",
			Help:      "Bit error rate after the inner decoder per trial.",
			Buckets:   berBuckets,
		}),
	}
	reg.MustRegister(m.trials, m.files, m.degraded, m.rawBER, m.residualBER)
	return m
}

func outcomeLabel(o Outcome) string {
	switch {
	case o.Complete():
		return "recovered"
	case o.BoundExceeded:
		return "bound_exceeded"
	case o.Recovered > 0:
		return "partial"
	}
	return "failed"
}

func (m *Metrics) observe(o Outcome) {
	if m == nil {
		return
	}
	m.trials.WithLabelValues(outcomeLabel(o)).Inc()
	m.files.WithLabelValues("true").Add(float64(o.Recovered))
	m.files.WithLabelValues("false").Add(float64(o.Total - o.Recovered))
	m.degraded.Add(float64(o.Degraded))
	m.rawBER.Observe(o.RawBER)
	m.residualBER.Observe(o.ResidualBER)
}
