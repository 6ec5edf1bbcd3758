// Package telemetry exposes Prometheus metrics for sweeps and replies.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters one process reports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	JobsClaimed   prometheus.Counter
	MessagesSent  *prometheus.CounterVec
	JobsSkipped   *prometheus.CounterVec
	JobsRetried   prometheus.Counter
	JobsFailed    prometheus.Counter
	ClaimsLost    prometheus.Counter
	StaleReleased prometheus.Counter
	Replies       *prometheus.CounterVec
	NoShowsMarked prometheus.Counter
	SweepDuration prometheus.Histogram
}

// New creates metrics on a private registry, plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry:      prometheus.NewRegistry(),
		JobsClaimed:   prometheus.NewCounter(prometheus.CounterOpts{Name: "cadence_jobs_claimed_total", Help: "Jobs claimed by a sweep"}),
		MessagesSent:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cadence_messages_sent_total", Help: "Messages handed to a transport"}, []string{"channel"}),
		JobsSkipped:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cadence_jobs_skipped_total", Help: "Jobs resolved without sending"}, []string{"outcome"}),
		JobsRetried:   prometheus.NewCounter(prometheus.CounterOpts{Name: "cadence_jobs_retried_total", Help: "Failed sends released for retry"}),
		JobsFailed:    prometheus.NewCounter(prometheus.CounterOpts{Name: "cadence_jobs_failed_total", Help: "Jobs cancelled after the retry ceiling"}),
		ClaimsLost:    prometheus.NewCounter(prometheus.CounterOpts{Name: "cadence_claims_lost_total", Help: "Claims lost to a concurrent sweep"}),
		StaleReleased: prometheus.NewCounter(prometheus.CounterOpts{Name: "cadence_stale_claims_released_total", Help: "Expired claims returned to the pending pool"}),
		Replies:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cadence_replies_total", Help: "Inbound replies by classified intent"}, []string{"intent"}),
		NoShowsMarked: prometheus.NewCounter(prometheus.CounterOpts{Name: "cadence_no_shows_marked_total", Help: "Bookings moved to NO_SHOW"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cadence_sweep_duration_seconds", Help: "Wall time of one sweep", Buckets: prometheus.DefBuckets}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobsClaimed,
		m.MessagesSent,
		m.JobsSkipped,
		m.JobsRetried,
		m.JobsFailed,
		m.ClaimsLost,
		m.StaleReleased,
		m.Replies,
		m.NoShowsMarked,
		m.SweepDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Claimed() {
	if m != nil {
		m.JobsClaimed.Inc()
	}
}

func (m *Metrics) Sent(channel string) {
	if m != nil {
		m.MessagesSent.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) Skipped(outcome string) {
	if m != nil {
		m.JobsSkipped.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Retried() {
	if m != nil {
		m.JobsRetried.Inc()
	}
}

func (m *Metrics) Failed() {
	if m != nil {
		m.JobsFailed.Inc()
	}
}

func (m *Metrics) ClaimLost() {
	if m != nil {
		m.ClaimsLost.Inc()
	}
}

func (m *Metrics) Released(n int64) {
	if m != nil && n > 0 {
		m.StaleReleased.Add(float64(n))
	}
}

func (m *Metrics) Reply(intent string) {
	if m != nil {
		m.Replies.WithLabelValues(intent).Inc()
	}
}

func (m *Metrics) NoShow() {
	if m != nil {
		m.NoShowsMarked.Inc()
	}
}

// ObserveSweep records how long a sweep that started at start took.
func (m *Metrics) ObserveSweep(start time.Time) {
	if m != nil {
		m.SweepDuration.Observe(time.Since(start).Seconds())
	}
}
