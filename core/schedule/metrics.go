package schedule

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the registry activity to Prometheus. A nil *Metrics is valid and records nothing.
type Metrics struct {
	pending   prometheus.Gauge
	fired     prometheus.Counter
	failed    prometheus.Counter
	cancelled prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "academia",
			Subsystem: "schedule",
			Name:      "pending_jobs",
			Help:      "Number of deferred jobs waiting for their deadline.",
		}),
		fired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "academia",
			Subsystem: "schedule",
			Name:      "jobs_fired_total",
			Help:      "Number of deferred jobs that reached their deadline and ran.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "academia",
			Subsystem: "schedule",
			Name:      "jobs_failed_total",
			Help:      "Number of deferred jobs that returned an error or panicked.",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "academia",
			Subsystem: "schedule",
			Name:      "jobs_cancelled_total",
			Help:      "Number of deferred jobs cancelled or replaced before running.",
		}),
	}
	reg.MustRegister(m.pending, m.fired, m.failed, m.cancelled)
	return m
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.pending.Set(float64(n))
	}
}

func (m *Metrics) incFired() {
	if m != nil {
		m.fired.Inc()
	}
}

func (m *Metrics) incFailed() {
	if m != nil {
		m.failed.Inc()
	}
}

func (m *Metrics) incCancelled() {
	if m != nil {
		m.cancelled.Inc()
	}
}
