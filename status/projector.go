package status

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/marketsync/cycledlist/cycle"
	"github.com/marketsync/cycledlist/jobstore"
	"github.com/marketsync/cycledlist/workflow"
)

// Project builds the status document for one cycled list. cycleIntervalMS is
// the configured inter-cycle sleep, already in milliseconds, for the
// response's cycleInterval field. Progress fields are re-derived from the
// live JobRecords of cs.CurrentCycle rather than trusted from cs itself —
// def is authoritative on totalAsyncFns and step order.
func Project(ctx context.Context, store jobstore.Store, def workflow.Definition, cs cycle.CycledListStatus, cycleIntervalMS int64) (Document, error) {
	records, err := store.FindByCycle(ctx, cs.Name, cs.CurrentCycle)
	if err != nil {
		return Document{}, fmt.Errorf("status: find by cycle: %w", err)
	}
	byStep := make(map[string]jobstore.JobRecord, len(records))
	for _, r := range records {
		if name, ok := r.StepName(); ok {
			byStep[name] = r
		}
	}

	timeline := make([]AsyncFnView, 0, def.TotalAsyncFns())
	var breakdown JobStatusBreakdown
	index := 0
	for _, step := range def.Steps {
		if step.Skipped {
			// Excluded from the timeline and progress totals, but the
			// breakdown still surfaces them.
			breakdown.Skipped++
			continue
		}
		view := viewForStep(step, byStep[step.Name], index)
		timeline = append(timeline, view)
		tallyStatus(&breakdown, view.Status)
		index++
	}

	// The live records are authoritative on which step the cycle is at;
	// the stored index is only a fallback for a cycle with no active step.
	currentIndex := cs.CurrentAsyncFnIndex
	for i, v := range timeline {
		switch jobstore.Status(v.Status) {
		case jobstore.StatusRunning, jobstore.StatusRetrying, jobstore.StatusPaused:
			currentIndex = i
		default:
			continue
		}
		break
	}

	var previous, current, next *AsyncFnView
	for i := range timeline {
		switch {
		case i == currentIndex:
			v := timeline[i]
			current = &v
		case i == currentIndex-1:
			v := timeline[i]
			previous = &v
		case i == currentIndex+1:
			v := timeline[i]
			next = &v
		}
	}

	completed := 0
	for _, v := range timeline {
		if v.Status == string(jobstore.StatusCompleted) || v.Status == string(jobstore.StatusSkipped) {
			completed++
		}
	}
	total := len(timeline)
	progress := 0.0
	if total > 0 {
		progress = float64(completed) / float64(total) * 100
	}

	doc := Document{
		Name:                cs.Name,
		OverallStatus:       string(cs.OverallStatus),
		IsRunning:           cs.IsRunning,
		IsPaused:            cs.IsPaused,
		ManualPause:         cs.ManualPause,
		PauseReason:         cs.PauseReason,
		StopReason:          cs.StopReason,
		CurrentCycle:        cs.CurrentCycle,
		TotalCycles:         cs.TotalCycles,
		MaxCycles:           cs.MaxCycles,
		CycleInterval:       cycleIntervalMS,
		TotalAsyncFns:       total,
		CompletedAsyncFns:   completed,
		FailedAsyncFns:      breakdown.Failed,
		CurrentAsyncFnIndex: currentIndex,
		Progress:            progress,
		PreviousAsyncFn:     previous,
		CurrentAsyncFn:      current,
		NextAsyncFn:         next,
		PauseConditions:     orEmpty(cs.PauseConditions),
		ContinueConditions:  orEmpty(cs.ContinueConditions),
		NextCycleScheduled:  cs.NextCycleScheduled,
		StatusText:          statusText(cs),
		StatusColor:         statusColor(cs.OverallStatus),
		ProgressPercentage:  int(math.Round(progress)),
		TimeUntilNextCycle:  timeUntilNextCycle(cs.NextCycleScheduled),
		CycleProgress:       cycleProgress(cs),
		JobTimeline:         timeline,
		JobStatusBreakdown:  breakdown,
	}
	return doc, nil
}

func viewForStep(step workflow.Step, rec jobstore.JobRecord, index int) AsyncFnView {
	if rec.ID == "" {
		return AsyncFnView{
			Name:         step.Name,
			DisplayName:  step.Name,
			FunctionName: step.FunctionName,
			Status:       "pending",
			Index:        index,
		}
	}
	return AsyncFnView{
		Name:               step.Name,
		DisplayName:        step.Name,
		FunctionName:       step.FunctionName,
		Status:             string(rec.Status),
		ProgressPercentage: rec.Progress * 100,
		StartedAt:          rec.StartedAt,
		EndedAt:            rec.EndedAt,
		ScheduledAt:        &rec.ScheduledAt,
		MachineName:        rec.MachineName,
		ErrorMessage:       rec.Error,
		Result:             rec.Result,
		Index:              index,
	}
}

func tallyStatus(b *JobStatusBreakdown, status string) {
	switch jobstore.Status(status) {
	case jobstore.StatusRunning:
		b.Running++
	case jobstore.StatusCompleted:
		b.Completed++
	case jobstore.StatusFailed:
		b.Failed++
	case jobstore.StatusCancelled:
		b.Cancelled++
	case jobstore.StatusPaused:
		b.Paused++
	case jobstore.StatusRetrying:
		b.Retrying++
	case jobstore.StatusSkipped:
		b.Skipped++
	default:
		b.Pending++
	}
}

func statusText(cs cycle.CycledListStatus) string {
	switch cs.OverallStatus {
	case cycle.OverallNotInitialized:
		return "Not Initialized"
	case cycle.OverallRunning:
		return "Running"
	case cycle.OverallPaused:
		if cs.ManualPause {
			return "Paused (manual)"
		}
		return "Paused (quota)"
	case cycle.OverallStopped:
		return "Stopped"
	case cycle.OverallCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

func statusColor(s cycle.OverallStatus) string {
	switch s {
	case cycle.OverallRunning:
		return "green"
	case cycle.OverallPaused:
		return "yellow"
	case cycle.OverallStopped:
		return "red"
	case cycle.OverallCompleted:
		return "blue"
	default:
		return "gray"
	}
}

func timeUntilNextCycle(next *time.Time) *string {
	if next == nil {
		return nil
	}
	remaining := time.Until(*next)
	var s string
	if remaining <= 0 {
		s = "Now"
	} else {
		s = formatDuration(remaining)
	}
	return &s
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func cycleProgress(cs cycle.CycledListStatus) CycleProgress {
	total := 0
	if cs.MaxCycles != nil {
		total = *cs.MaxCycles
	}
	percentage := 0.0
	remaining := 0
	if total > 0 {
		percentage = float64(cs.CurrentCycle) / float64(total) * 100
		remaining = total - cs.CurrentCycle
		if remaining < 0 {
			remaining = 0
		}
	}
	return CycleProgress{
		Current:    cs.CurrentCycle,
		Total:      total,
		Percentage: percentage,
		Completed:  cs.TotalCycles,
		Remaining:  remaining,
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
