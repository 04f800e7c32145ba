// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/0x13a/jobapply/internal/apperror"
)

type Metrics struct {
	Submissions         *prometheus.CounterVec
	CompensatingDeletes *prometheus.CounterVec
	StatusTransitions   *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "application_submissions_total",
				Help: "Application submissions by outcome",
			},
			[]string{"outcome"},
		),
		CompensatingDeletes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resume_compensating_deletes_total",
				Help: "Resume deletes run after a failed submission, by result",
			},
			[]string{"result"},
		),
		StatusTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "application_status_transitions_total",
				Help: "Application status updates by target status",
			},
			[]string{"status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "code"},
		),
	}
}

// ObserveSubmission counts a submission under "created" or its error kind.
func (m *Metrics) ObserveSubmission(err error) {
	if m == nil {
		return
	}
	outcome := "created"
	if err != nil {
		outcome = string(apperror.As(err).Kind)
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCompensatingDelete(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.CompensatingDeletes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveStatusTransition(status string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(status).Inc()
}
