package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver translates orchestrator events into Prometheus metrics:
// a counter per event type/level and a counter specifically for the terminal
// job outcomes the status endpoint's jobStatusBreakdown also tracks, so the
// two surfaces can be cross-checked against each other.
type PrometheusObserver struct {
	eventsTotal *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
}

// NewPrometheusObserver registers its collectors against reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler, or a fresh prometheus.NewRegistry() in tests to avoid collisions
// between parallel test runs.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cycledlist_events_total",
			Help: "Count of orchestrator events by type, level, and source.",
		}, []string{"type", "level", "source"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cycledlist_job_outcomes_total",
			Help: "Count of terminal job outcomes reported through step-complete events.",
		}, []string{"step", "outcome"}),
	}
}

// Events exposes the raw event counter, mainly for tests asserting on
// specific label combinations via prometheus/testutil.
func (p *PrometheusObserver) Events() *prometheus.CounterVec { return p.eventsTotal }

// Outcomes exposes the raw job-outcome counter, mainly for tests.
func (p *PrometheusObserver) Outcomes() *prometheus.CounterVec { return p.outcomes }

func (p *PrometheusObserver) OnEvent(_ context.Context, event Event) {
	p.eventsTotal.WithLabelValues(string(event.Type), event.Level.String(), event.Source).Inc()

	if event.Type != "workflow.step.complete" {
		return
	}
	step, _ := event.Data["step"].(string)
	outcome, _ := event.Data["outcome"].(string)
	if step == "" || outcome == "" {
		return
	}
	p.outcomes.WithLabelValues(step, outcome).Inc()
}
