package status

import (
	"context"
	"testing"
	"time"

	"github.com/marketsync/cycledlist/cycle"
	"github.com/marketsync/cycledlist/jobstore"
	"github.com/marketsync/cycledlist/workflow"
)

func TestNotInitialized(t *testing.T) {
	doc := NotInitialized("eodhd-sync")
	if doc.OverallStatus != "not_initialized" {
		t.Fatalf("unexpected overallStatus: %s", doc.OverallStatus)
	}
	if doc.StatusColor != "gray" || doc.StatusText != "Not Initialized" {
		t.Fatalf("unexpected sentinel fields: %+v", doc)
	}
	if doc.CycleInterval != 24*3600*1000 {
		t.Fatalf("unexpected default cycleInterval: %d", doc.CycleInterval)
	}
}

func TestProject_MixedStatusTimeline(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemoryStore()

	aID, _ := store.Create(ctx, "A", map[string]any{
		jobstore.MetaCycledListName: "eodhd-sync", jobstore.MetaCycleNumber: 1, jobstore.MetaStepName: "A",
	}, time.Now())
	_ = store.Transition(ctx, aID, jobstore.StatusScheduled, jobstore.StatusRunning, jobstore.Patch{})
	full := 1.0
	_ = store.Transition(ctx, aID, jobstore.StatusRunning, jobstore.StatusCompleted, jobstore.Patch{Progress: &full})

	bID, _ := store.Create(ctx, "B", map[string]any{
		jobstore.MetaCycledListName: "eodhd-sync", jobstore.MetaCycleNumber: 1, jobstore.MetaStepName: "B",
	}, time.Now())
	_ = store.Transition(ctx, bID, jobstore.StatusScheduled, jobstore.StatusRunning, jobstore.Patch{})

	def := workflow.Definition{Steps: []workflow.Step{
		{Name: "A", FunctionName: "A"},
		{Name: "B", FunctionName: "B"},
		{Name: "C", FunctionName: "C", Skipped: true},
		{Name: "D", FunctionName: "D"},
	}}

	cs := cycle.CycledListStatus{
		Name:                "eodhd-sync",
		OverallStatus:       cycle.OverallRunning,
		IsRunning:           true,
		CurrentCycle:        1,
		CurrentAsyncFnIndex: 1,
	}

	doc, err := Project(ctx, store, def, cs, 3600_000)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	if len(doc.JobTimeline) != 3 {
		t.Fatalf("expected 3 non-skipped timeline entries, got %d", len(doc.JobTimeline))
	}
	if doc.JobStatusBreakdown.Completed != 1 || doc.JobStatusBreakdown.Running != 1 || doc.JobStatusBreakdown.Pending != 1 {
		t.Fatalf("unexpected breakdown: %+v", doc.JobStatusBreakdown)
	}
	if doc.JobStatusBreakdown.Skipped != 1 {
		t.Fatalf("expected skipped step C in the breakdown, got %+v", doc.JobStatusBreakdown)
	}
	if doc.PreviousAsyncFn == nil || doc.PreviousAsyncFn.Name != "A" {
		t.Fatalf("expected previous=A, got %+v", doc.PreviousAsyncFn)
	}
	if doc.CurrentAsyncFn == nil || doc.CurrentAsyncFn.Name != "B" {
		t.Fatalf("expected current=B, got %+v", doc.CurrentAsyncFn)
	}
	if doc.NextAsyncFn == nil || doc.NextAsyncFn.Name != "D" {
		t.Fatalf("expected next=D, got %+v", doc.NextAsyncFn)
	}
	if doc.ProgressPercentage != 33 {
		t.Fatalf("expected ~33%% progress (1 of 3 done), got %d", doc.ProgressPercentage)
	}
	if doc.StatusColor != "green" {
		t.Fatalf("expected green for running, got %s", doc.StatusColor)
	}
}

func TestProject_AllStepsSkipped(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemoryStore()
	def := workflow.Definition{Steps: []workflow.Step{
		{Name: "A", FunctionName: "A", Skipped: true},
		{Name: "B", FunctionName: "B", Skipped: true},
	}}

	cs := cycle.CycledListStatus{Name: "n", OverallStatus: cycle.OverallRunning, CurrentCycle: 1}
	doc, err := Project(ctx, store, def, cs, 0)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if doc.JobStatusBreakdown.Skipped != 2 {
		t.Fatalf("expected 2 skipped in breakdown, got %+v", doc.JobStatusBreakdown)
	}
	if doc.TotalAsyncFns != 0 || len(doc.JobTimeline) != 0 {
		t.Fatalf("skipped steps must not join the timeline or totals: %+v", doc)
	}
}

func TestProject_TimeUntilNextCycle(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemoryStore()
	def := workflow.Definition{Steps: []workflow.Step{{Name: "A", FunctionName: "A"}}}

	past := time.Now().Add(-time.Minute)
	cs := cycle.CycledListStatus{Name: "n", OverallStatus: cycle.OverallRunning, NextCycleScheduled: &past}
	doc, err := Project(ctx, store, def, cs, 0)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if doc.TimeUntilNextCycle == nil || *doc.TimeUntilNextCycle != "Now" {
		t.Fatalf("expected \"Now\" for a past schedule, got %v", doc.TimeUntilNextCycle)
	}

	future := time.Now().Add(3*time.Hour + 17*time.Minute)
	cs.NextCycleScheduled = &future
	doc, err = Project(ctx, store, def, cs, 0)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if doc.TimeUntilNextCycle == nil || *doc.TimeUntilNextCycle != "3h 17m" {
		t.Fatalf("expected \"3h 17m\", got %v", doc.TimeUntilNextCycle)
	}
}

func TestProject_CycleProgressWithMaxCycles(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemoryStore()
	def := workflow.Definition{Steps: []workflow.Step{{Name: "A", FunctionName: "A"}}}

	max := 10
	cs := cycle.CycledListStatus{Name: "n", OverallStatus: cycle.OverallRunning, CurrentCycle: 3, TotalCycles: 2, MaxCycles: &max}
	doc, err := Project(ctx, store, def, cs, 0)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if doc.CycleProgress.Total != 10 || doc.CycleProgress.Remaining != 7 || doc.CycleProgress.Completed != 2 {
		t.Fatalf("unexpected cycle progress: %+v", doc.CycleProgress)
	}
}
