package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/marketsync/cycledlist/observability"
)

func TestPrometheusObserver_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := observability.NewPrometheusObserver(reg)

	obs.OnEvent(context.Background(), observability.Event{
		Type: "cycle.controller.start", Level: observability.LevelInfo,
		Timestamp: time.Now(), Source: "cycle.Controller",
	})
	obs.OnEvent(context.Background(), observability.Event{
		Type: "cycle.controller.start", Level: observability.LevelInfo,
		Timestamp: time.Now(), Source: "cycle.Controller",
	})

	got := testutil.ToFloat64(obs.Events().WithLabelValues("cycle.controller.start", "INFO", "cycle.Controller"))
	if got != 2 {
		t.Fatalf("expected the event counter at 2, got %v", got)
	}
}

func TestPrometheusObserver_RecordsJobOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := observability.NewPrometheusObserver(reg)

	obs.OnEvent(context.Background(), observability.Event{
		Type: "workflow.step.complete", Level: observability.LevelInfo,
		Timestamp: time.Now(), Source: "workflow.RunCycle",
		Data: map[string]any{"step": "fetch_daily_prices", "outcome": "completed"},
	})

	got := testutil.ToFloat64(obs.Outcomes().WithLabelValues("fetch_daily_prices", "completed"))
	if got != 1 {
		t.Fatalf("expected outcome counter at 1, got %v", got)
	}
}
