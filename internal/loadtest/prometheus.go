package loadtest

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PromRecorder exports samples and lifecycle events as Prometheus metrics.
// It is both a Recorder and an Observer.
type PromRecorder struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	events   *prometheus.CounterVec
	users    prometheus.Gauge
}

// NewPromRecorder creates the collectors and registers them with reg.
func NewPromRecorder(reg prometheus.Registerer) (*PromRecorder, error) {
	p := &PromRecorder{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadtest_samples_total",
				Help: "Samples recorded by simulated users",
			},
			[]string{"type", "name", "status", "result"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loadtest_sample_duration_seconds",
				Help:    "Duration of recorded samples",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type", "name"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadtest_events_total",
				Help: "Harness lifecycle events",
			},
			[]string{"event"},
		),
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loadtest_target_users",
			Help: "Users requested for the current run",
		}),
	}

	for _, c := range []prometheus.Collector{p.requests, p.latency, p.events, p.users} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Record implements Recorder.
func (p *PromRecorder) Record(s Sample) {
	result := "success"
	if s.Failed() {
		result = "failure"
	}
	status := "none"
	if s.StatusCode != 0 {
		status = strconv.Itoa(s.StatusCode)
	}
	p.requests.WithLabelValues(s.Type, s.Name, status, result).Inc()
	p.latency.WithLabelValues(s.Type, s.Name).Observe(s.Duration.Seconds())
}

// Notify implements Observer.
func (p *PromRecorder) Notify(e Event, info EventInfo) {
	p.events.WithLabelValues(string(e)).Inc()
	switch e {
	case EventStartHatching:
		p.users.Set(float64(info.Users))
	case EventQuitting:
		p.users.Set(0)
	}
}
