package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marketsync/cycledlist/catalogue"
	"github.com/marketsync/cycledlist/executor"
	"github.com/marketsync/cycledlist/jobstore"
	"github.com/marketsync/cycledlist/observability"
)

// ProgressFunc reports the cycle-level aggregate once per group, after all of
// the group's steps have finished; the steps of a parallel group are not
// reported one by one.
type ProgressFunc func(completed, failed, skipped, total int, progress float64)

// Engine drives one runCycle pass over a Definition: dependency order,
// parallel groups, skip flags, pause conditions and cancellation.
type Engine struct {
	Store         jobstore.Store
	Catalogue     *catalogue.Catalogue
	ExecutorOpts  executor.Options
	Observer      observability.Observer
}

// New creates an Engine with sensible executor defaults.
func New(store jobstore.Store, cat *catalogue.Catalogue) *Engine {
	return &Engine{
		Store:        store,
		Catalogue:    cat,
		ExecutorOpts: executor.DefaultOptions(),
		Observer:     observability.NoOpObserver{},
	}
}

type stepResult struct {
	step    Step
	outcome executor.Outcome
}

// RunCycle executes one pass over def.Steps for the given cycle number,
// honoring the pause gate and ctx cancellation, and reports progress via
// onProgress once each group's steps have all finished.
func (e *Engine) RunCycle(ctx context.Context, def Definition, listName string, cycleNumber int, gate PauseGate, onProgress ProgressFunc) (CycleOutcome, error) {
	observer := e.Observer
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	existing, err := e.Store.FindByCycle(ctx, listName, cycleNumber)
	if err != nil {
		return CycleOutcome{}, fmt.Errorf("workflow: find by cycle: %w", err)
	}
	byStep := make(map[string]jobstore.JobRecord, len(existing))
	for _, rec := range existing {
		if name, ok := rec.StepName(); ok {
			byStep[name] = rec
		}
	}

	total := def.TotalAsyncFns()
	var completed, failed, skipped int

	observer.OnEvent(ctx, observability.Event{
		Type: EventCycleStart, Level: observability.LevelInfo, Timestamp: time.Now(),
		Source: "workflow.RunCycle", Data: map[string]any{"list": listName, "cycle": cycleNumber, "total": total},
	})

	groups := def.Groups()
	stepIndex := 0

	for _, group := range groups {
		if gate.Closed() {
			outcome := CycleOutcome{Kind: Paused, StepIndex: stepIndex, Reason: "pause gate closed before group start"}
			return outcome, nil
		}

		observer.OnEvent(ctx, observability.Event{
			Type: EventGroupStart, Level: observability.LevelVerbose, Timestamp: time.Now(),
			Source: "workflow.RunCycle", Data: map[string]any{"group": group.Name, "size": len(group.Steps)},
		})

		results := e.runGroup(ctx, group, listName, cycleNumber, byStep, stepIndex)

		observer.OnEvent(ctx, observability.Event{
			Type: EventGroupComplete, Level: observability.LevelVerbose, Timestamp: time.Now(),
			Source: "workflow.RunCycle", Data: map[string]any{"group": group.Name},
		})

		var pausedResult *stepResult
		var cancelledResult *stepResult

		for i, r := range results {
			switch r.outcome.Kind {
			case executor.Completed:
				completed++
			case executor.Skipped:
				skipped++
			case executor.Failed:
				failed++
			case executor.Paused:
				if pausedResult == nil {
					rr := results[i]
					pausedResult = &rr
				}
			case executor.Cancelled:
				if cancelledResult == nil {
					rr := results[i]
					cancelledResult = &rr
				}
			}

			observer.OnEvent(ctx, observability.Event{
				Type: EventStepComplete, Level: observability.LevelInfo, Timestamp: time.Now(),
				Source: "workflow.RunCycle",
				Data:   map[string]any{"step": r.step.Name, "outcome": r.outcome.Kind.String()},
			})
		}

		if onProgress != nil {
			progress := 0.0
			if total > 0 {
				progress = float64(completed) / float64(total)
			}
			onProgress(completed, failed, skipped, total, progress)
		}

		if pausedResult != nil {
			gate.Close(pausedResult.outcome.Reason, pausedResult.outcome.PauseTag)
			return CycleOutcome{
				Kind: Paused, StepIndex: stepIndex, Reason: pausedResult.outcome.Reason, Tag: pausedResult.outcome.PauseTag,
			}, nil
		}
		if cancelledResult != nil {
			return CycleOutcome{Kind: Cancelled, StepIndex: stepIndex, Reason: cancelledResult.outcome.Reason}, nil
		}

		stepIndex += len(group.Steps)
	}

	observer.OnEvent(ctx, observability.Event{
		Type: EventCycleComplete, Level: observability.LevelInfo, Timestamp: time.Now(),
		Source: "workflow.RunCycle", Data: map[string]any{"list": listName, "cycle": cycleNumber, "completed": completed, "failed": failed},
	})

	return CycleOutcome{Kind: Finished}, nil
}

func (e *Engine) runGroup(ctx context.Context, group Group, listName string, cycleNumber int, byStep map[string]jobstore.JobRecord, baseIndex int) []stepResult {
	if len(group.Steps) == 1 {
		return []stepResult{{step: group.Steps[0], outcome: e.runStep(ctx, group.Steps[0], listName, cycleNumber, byStep[group.Steps[0].Name])}}
	}

	results := make([]stepResult, len(group.Steps))
	var wg sync.WaitGroup
	for i, step := range group.Steps {
		wg.Add(1)
		go func(i int, step Step) {
			defer wg.Done()
			results[i] = stepResult{step: step, outcome: e.runStep(ctx, step, listName, cycleNumber, byStep[step.Name])}
		}(i, step)
	}
	wg.Wait()
	return results
}

func (e *Engine) runStep(ctx context.Context, step Step, listName string, cycleNumber int, existing jobstore.JobRecord) executor.Outcome {
	metadata := map[string]any{
		jobstore.MetaCycledListName: listName,
		jobstore.MetaCycleNumber:    cycleNumber,
		jobstore.MetaStepName:       step.Name,
	}
	if step.ParallelGroup != "" {
		metadata[jobstore.MetaParallelGroup] = step.ParallelGroup
	}

	if step.Skipped {
		outcome, err := executor.Skip(ctx, e.Store, executor.JobRef{Name: step.Name, FunctionName: step.FunctionName, Metadata: metadata}, "workflow step marked skipped")
		if err != nil {
			return executor.Outcome{Kind: executor.Failed, Err: err}
		}
		return outcome
	}

	if existing.ID != "" {
		switch existing.Status {
		case jobstore.StatusCompleted:
			return executor.Outcome{Kind: executor.Completed, RecordID: existing.ID, Result: existing.Result}
		case jobstore.StatusSkipped:
			return executor.Outcome{Kind: executor.Skipped, RecordID: existing.ID}
		case jobstore.StatusFailed:
			return executor.Outcome{Kind: executor.Failed, RecordID: existing.ID, Err: fmt.Errorf("%s", existing.Error)}
		case jobstore.StatusPaused:
			zero := 0.0
			if err := e.Store.Transition(ctx, existing.ID, jobstore.StatusPaused, jobstore.StatusRetrying, jobstore.Patch{Progress: &zero}); err != nil {
				return executor.Outcome{Kind: executor.Failed, Err: err}
			}
			return e.execute(ctx, step, executor.JobRef{
				Name: step.Name, FunctionName: step.FunctionName, Metadata: metadata, ExistingRecordID: existing.ID,
			})
		}
	}

	return e.execute(ctx, step, executor.JobRef{Name: step.Name, FunctionName: step.FunctionName, Metadata: metadata})
}

func (e *Engine) execute(ctx context.Context, step Step, ref executor.JobRef) executor.Outcome {
	entry, ok := e.Catalogue.Lookup(step.FunctionName)
	if !ok {
		outcome, _ := executor.Run(ctx, e.Store, ref, func(context.Context, catalogue.ProgressSink) (any, error) {
			return nil, fmt.Errorf("unknown functionName %q", step.FunctionName)
		}, e.ExecutorOpts)
		if outcome.Err != nil {
			outcome.Err = &StepError{StepName: step.Name, Err: outcome.Err}
		}
		return outcome
	}

	outcome, err := executor.Run(ctx, e.Store, ref, entry.Function, e.ExecutorOpts)
	if err != nil {
		return executor.Outcome{Kind: executor.Failed, Err: &StepError{StepName: step.Name, Err: err}}
	}
	if outcome.Kind == executor.Failed && outcome.Err != nil {
		outcome.Err = &StepError{StepName: step.Name, Err: outcome.Err}
	}
	return outcome
}
