// Package metrics records workflow progress as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the workflow collectors.
type Collector struct {
	stepVisits   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	quotaPauses  *prometheus.CounterVec
	failures     *prometheus.CounterVec
	completions  prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		stepVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issueflow_step_visits_total",
			Help: "Total number of step executions.",
		}, []string{"step"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "issueflow_step_duration_seconds",
			Help:    "Duration of step executions.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step"}),
		quotaPauses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issueflow_quota_pauses_total",
			Help: "Workflows paused on a rate limit, by step.",
		}, []string{"step"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issueflow_failures_total",
			Help: "Workflows that ended FAILED, by step.",
		}, []string{"step"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "issueflow_completions_total",
			Help: "Workflows that published a pull request.",
		}),
	}
	for _, col := range []prometheus.Collector{c.stepVisits, c.stepDuration, c.quotaPauses, c.failures, c.completions} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Hooks returns lifecycle hooks that update the collectors.
func (c *Collector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(_ context.Context, e *domain.StepEvent) {
			c.stepVisits.WithLabelValues(string(e.Step)).Inc()
		},
		OnStepLeave: func(_ context.Context, e *domain.StepEvent) {
			c.stepDuration.WithLabelValues(string(e.Step)).Observe(e.Duration.Seconds())
		},
		OnPause: func(_ context.Context, e *domain.StepEvent) {
			c.quotaPauses.WithLabelValues(string(e.Step)).Inc()
		},
		OnFailure: func(_ context.Context, e *domain.StepEvent) {
			c.failures.WithLabelValues(string(e.Step)).Inc()
		},
		OnComplete: func(_ context.Context, _ *domain.StepEvent) {
			c.completions.Inc()
		},
	}
}
