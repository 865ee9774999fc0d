package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/marketsync/cycledlist/catalogue"
	"github.com/marketsync/cycledlist/jobstore"
	"github.com/marketsync/cycledlist/provider"
)

func fn(result any) catalogue.Function {
	return func(ctx context.Context, progress catalogue.ProgressSink) (any, error) {
		progress(1.0)
		return result, nil
	}
}

func TestRunCycle_HappyPath(t *testing.T) {
	store := jobstore.NewMemoryStore()
	cat := catalogue.New()
	_ = cat.Register(catalogue.Entry{Name: "A", Function: fn("a")})
	_ = cat.Register(catalogue.Entry{Name: "B", Function: fn("b")})
	_ = cat.Register(catalogue.Entry{Name: "C", Function: fn("c")})

	def := Definition{Steps: []Step{
		{Name: "A", FunctionName: "A"},
		{Name: "B", FunctionName: "B"},
		{Name: "C", FunctionName: "C"},
	}}

	engine := New(store, cat)
	outcome, err := engine.RunCycle(context.Background(), def, "eodhd-sync", 1, OpenGate(), nil)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if outcome.Kind != Finished {
		t.Fatalf("expected Finished, got %s", outcome.Kind)
	}

	recs, _ := store.FindByCycle(context.Background(), "eodhd-sync", 1)
	completed := 0
	for _, r := range recs {
		if r.Status == jobstore.StatusCompleted {
			completed++
		}
	}
	if completed != 3 {
		t.Fatalf("expected 3 completed records, got %d", completed)
	}
}

func TestRunCycle_SkippedStep(t *testing.T) {
	store := jobstore.NewMemoryStore()
	cat := catalogue.New()
	_ = cat.Register(catalogue.Entry{Name: "A", Function: fn("a")})
	_ = cat.Register(catalogue.Entry{Name: "C", Function: fn("c")})

	def := Definition{Steps: []Step{
		{Name: "A", FunctionName: "A"},
		{Name: "B", FunctionName: "B", Skipped: true},
		{Name: "C", FunctionName: "C"},
	}}

	if def.TotalAsyncFns() != 2 {
		t.Fatalf("expected 2 non-skipped steps, got %d", def.TotalAsyncFns())
	}

	engine := New(store, cat)
	outcome, err := engine.RunCycle(context.Background(), def, "eodhd-sync", 1, OpenGate(), nil)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if outcome.Kind != Finished {
		t.Fatalf("expected Finished, got %s", outcome.Kind)
	}

	recs, _ := store.FindByCycle(context.Background(), "eodhd-sync", 1)
	var completed, skipped int
	for _, r := range recs {
		switch r.Status {
		case jobstore.StatusCompleted:
			completed++
		case jobstore.StatusSkipped:
			skipped++
		}
	}
	if completed != 2 || skipped != 1 {
		t.Fatalf("expected 2 completed, 1 skipped, got completed=%d skipped=%d", completed, skipped)
	}
}

func TestRunCycle_ParallelGroupOrdering(t *testing.T) {
	store := jobstore.NewMemoryStore()
	cat := catalogue.New()

	var aEnded, dStarted time.Time
	_ = cat.Register(catalogue.Entry{Name: "A", Function: func(ctx context.Context, progress catalogue.ProgressSink) (any, error) {
		aEnded = time.Now()
		return "a", nil
	}})
	_ = cat.Register(catalogue.Entry{Name: "B", Function: fn("b")})
	_ = cat.Register(catalogue.Entry{Name: "C", Function: fn("c")})
	_ = cat.Register(catalogue.Entry{Name: "D", Function: func(ctx context.Context, progress catalogue.ProgressSink) (any, error) {
		dStarted = time.Now()
		return "d", nil
	}})

	def := Definition{Steps: []Step{
		{Name: "A", FunctionName: "A"},
		{Name: "B", FunctionName: "B", ParallelGroup: "g"},
		{Name: "C", FunctionName: "C", ParallelGroup: "g"},
		{Name: "D", FunctionName: "D"},
	}}

	groups := def.Groups()
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if !groups[1].Parallel() || len(groups[1].Steps) != 2 {
		t.Fatalf("expected middle group to be a parallel pair, got %+v", groups[1])
	}

	engine := New(store, cat)
	outcome, err := engine.RunCycle(context.Background(), def, "eodhd-sync", 1, OpenGate(), nil)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if outcome.Kind != Finished {
		t.Fatalf("expected Finished, got %s", outcome.Kind)
	}
	if dStarted.Before(aEnded) {
		t.Fatal("D must not start before A ends")
	}
}

func TestRunCycle_FailedStepDoesNotAbortCycle(t *testing.T) {
	store := jobstore.NewMemoryStore()
	cat := catalogue.New()
	_ = cat.Register(catalogue.Entry{Name: "A", Function: func(ctx context.Context, progress catalogue.ProgressSink) (any, error) {
		return nil, fmt.Errorf("boom")
	}})
	_ = cat.Register(catalogue.Entry{Name: "B", Function: fn("b")})

	def := Definition{Steps: []Step{
		{Name: "A", FunctionName: "A"},
		{Name: "B", FunctionName: "B"},
	}}

	engine := New(store, cat)
	outcome, err := engine.RunCycle(context.Background(), def, "eodhd-sync", 1, OpenGate(), nil)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if outcome.Kind != Finished {
		t.Fatalf("expected Finished despite a failed step, got %s", outcome.Kind)
	}
}

type stubGate struct {
	closed bool
	reason string
	tag    string
}

func (g *stubGate) Closed() bool { return g.closed }
func (g *stubGate) Close(reason, tag string) {
	g.closed = true
	g.reason = reason
	g.tag = tag
}

func TestRunCycle_QuotaPauseMidCycle(t *testing.T) {
	store := jobstore.NewMemoryStore()
	cat := catalogue.New()
	_ = cat.Register(catalogue.Entry{Name: "A", Function: fn("a")})
	_ = cat.Register(catalogue.Entry{Name: "B", Function: func(ctx context.Context, progress catalogue.ProgressSink) (any, error) {
		return nil, &provider.QuotaExceededError{Tag: "EODHD_DAILY_LIMIT"}
	}})
	_ = cat.Register(catalogue.Entry{Name: "C", Function: fn("c")})

	def := Definition{Steps: []Step{
		{Name: "A", FunctionName: "A"},
		{Name: "B", FunctionName: "B"},
		{Name: "C", FunctionName: "C"},
	}}

	engine := New(store, cat)
	gate := &stubGate{}
	outcome, err := engine.RunCycle(context.Background(), def, "eodhd-sync", 1, gate, nil)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if outcome.Kind != Paused {
		t.Fatalf("expected Paused, got %s", outcome.Kind)
	}
	if outcome.Tag != "EODHD_DAILY_LIMIT" {
		t.Fatalf("unexpected pause tag: %s", outcome.Tag)
	}
	if !gate.closed {
		t.Fatal("expected gate to be closed on quota pause")
	}

	recs, _ := store.FindByCycle(context.Background(), "eodhd-sync", 1)
	var cFound bool
	for _, r := range recs {
		if r.Name == "C" {
			cFound = true
		}
	}
	if cFound {
		t.Fatal("step C must not have started after B paused")
	}
}

func TestRunCycle_ResumesSkippingAlreadyTerminalSteps(t *testing.T) {
	store := jobstore.NewMemoryStore()
	ctx := context.Background()

	aID, _ := store.Create(ctx, "A", map[string]any{
		jobstore.MetaCycledListName: "eodhd-sync", jobstore.MetaCycleNumber: 1, jobstore.MetaStepName: "A",
	}, time.Now())
	_ = store.Transition(ctx, aID, jobstore.StatusScheduled, jobstore.StatusRunning, jobstore.Patch{})
	progress := 1.0
	_ = store.Transition(ctx, aID, jobstore.StatusRunning, jobstore.StatusCompleted, jobstore.Patch{Progress: &progress})

	cat := catalogue.New()
	calledA := false
	_ = cat.Register(catalogue.Entry{Name: "A", Function: func(ctx context.Context, p catalogue.ProgressSink) (any, error) {
		calledA = true
		return nil, nil
	}})
	_ = cat.Register(catalogue.Entry{Name: "B", Function: fn("b")})

	def := Definition{Steps: []Step{
		{Name: "A", FunctionName: "A"},
		{Name: "B", FunctionName: "B"},
	}}

	engine := New(store, cat)
	outcome, err := engine.RunCycle(ctx, def, "eodhd-sync", 1, OpenGate(), nil)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if outcome.Kind != Finished {
		t.Fatalf("expected Finished, got %s", outcome.Kind)
	}
	if calledA {
		t.Fatal("A already completed for this cycle and must not re-execute")
	}
}

func TestRunCycle_AllStepsSkippedFinishesInstantly(t *testing.T) {
	store := jobstore.NewMemoryStore()
	cat := catalogue.New()
	def := Definition{Steps: []Step{
		{Name: "A", FunctionName: "A", Skipped: true},
		{Name: "B", FunctionName: "B", Skipped: true},
	}}

	engine := New(store, cat)
	outcome, err := engine.RunCycle(context.Background(), def, "eodhd-sync", 1, OpenGate(), nil)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if outcome.Kind != Finished {
		t.Fatalf("expected Finished, got %s", outcome.Kind)
	}

	recs, _ := store.FindByCycle(context.Background(), "eodhd-sync", 1)
	for _, r := range recs {
		if r.Status != jobstore.StatusSkipped {
			t.Fatalf("expected all records skipped, got %s for %s", r.Status, r.Name)
		}
	}
}
