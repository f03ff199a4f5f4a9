package acquirer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "texture_cache"

// Metrics holds the acquisition collectors
type Metrics struct {
	acquisitions    *prometheus.CounterVec
	bytesDownloaded prometheus.Counter
	inFlight        prometheus.Gauge
	deduplicated    prometheus.Counter
	duration        *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "acquisitions_total",
			Help:      "Finished acquisitions by outcome.",
		}, []string{"outcome"}),
		bytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "downloaded_bytes_total",
			Help:      "Archive bytes received.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "acquisitions_in_flight",
			Help:      "Acquisitions currently downloading or extracting.",
		}),
		deduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ensure_deduplicated_total",
			Help:      "Ensure calls joined to an in-flight acquisition.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "acquisition_duration_seconds",
			Help:      "Time from download start to a terminal state.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.acquisitions, m.bytesDownloaded, m.inFlight, m.deduplicated, m.duration)
	}
	return m
}

func (m *Metrics) observeOutcome(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		m.duration.WithLabelValues(outcome).Observe(seconds)
	}
}

func (m *Metrics) addBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesDownloaded.Add(float64(n))
}

func (m *Metrics) started() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) finished() {
	if m != nil {
		m.inFlight.Dec()
	}
}

func (m *Metrics) joined() {
	if m != nil {
		m.deduplicated.Inc()
	}
}
