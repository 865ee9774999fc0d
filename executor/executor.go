// Package executor runs a single named job under a supervised envelope:
// it creates and updates the JobRecord, catches failures, enforces retries,
// reports progress, and respects cancellation — producing exactly one
// terminal JobRecord lifecycle per invocation (possibly spanning several
// internal retry attempts).
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marketsync/cycledlist/catalogue"
	"github.com/marketsync/cycledlist/jobstore"
	"github.com/marketsync/cycledlist/observability"
	"github.com/marketsync/cycledlist/provider"
)

// JobRef identifies the job to run and carries the metadata stamped onto
// its JobRecord.
type JobRef struct {
	Name         string
	FunctionName string
	Metadata     map[string]any

	// ExistingRecordID resumes a previously paused attempt instead of
	// creating a fresh record. The caller (Workflow Engine, on behalf of
	// the Cycle Controller) is responsible for having already transitioned
	// that record paused->retrying before calling Run.
	ExistingRecordID string
}

// Options configures one Run invocation.
type Options struct {
	MaxRetries    int
	RetryBackoff  Backoff
	Timeout       time.Duration // 0 disables the per-job timeout
	QuotaTag      string        // fallback tag when the error carries none
	Observer      observability.Observer
}

// DefaultOptions returns zero retries with a 30s exponential backoff cap —
// callers are expected to override MaxRetries per job.
func DefaultOptions() Options {
	return Options{
		RetryBackoff: ExponentialBackoff(time.Second, 30*time.Second),
		Observer:     observability.NoOpObserver{},
	}
}

// Run executes ref.FunctionName under the supervised envelope described in
// the package doc, persisting every transition through store.
func Run(ctx context.Context, store jobstore.Store, ref JobRef, fn catalogue.Function, opts Options) (Outcome, error) {
	observer := opts.Observer
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	var recordID string
	fromStatus := jobstore.StatusScheduled

	if ref.ExistingRecordID != "" {
		recordID = ref.ExistingRecordID
		fromStatus = jobstore.StatusRetrying
	} else {
		id, err := store.Create(ctx, ref.Name, ref.Metadata, time.Now())
		if err != nil {
			return Outcome{}, fmt.Errorf("executor: create record: %w", err)
		}
		recordID = id
	}

	// The per-job timeout cancels only this job's sub-context; persistence
	// calls below keep the caller's ctx so a timed-out job can still record
	// its cancelled terminal state.
	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	attempt := 1
	for {
		observer.OnEvent(ctx, observability.Event{
			Type:      EventAttemptStart,
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "executor.Run",
			Data:      map[string]any{"name": ref.Name, "record_id": recordID, "attempt": attempt},
		})

		now := time.Now()
		if err := store.Transition(ctx, recordID, fromStatus, jobstore.StatusRunning, jobstore.Patch{StartedAt: &now}); err != nil {
			var conflict *jobstore.ErrConflict
			if errors.As(err, &conflict) {
				return outcomeFromConflict(recordID, *conflict), nil
			}
			return Outcome{}, fmt.Errorf("executor: transition to running: %w", err)
		}

		progress := func(value float64) {
			_ = store.SetProgress(ctx, recordID, value)
		}

		result, runErr := fn(runCtx, progress)

		if runErr == nil {
			end := time.Now()
			full := 1.0
			if err := store.Transition(ctx, recordID, jobstore.StatusRunning, jobstore.StatusCompleted, jobstore.Patch{
				EndedAt: &end, Progress: &full, Result: result,
			}); err != nil {
				return Outcome{}, fmt.Errorf("executor: transition to completed: %w", err)
			}
			observer.OnEvent(ctx, observability.Event{
				Type: EventAttemptComplete, Level: observability.LevelInfo, Timestamp: time.Now(),
				Source: "executor.Run", Data: map[string]any{"name": ref.Name, "outcome": "completed"},
			})
			return Outcome{Kind: Completed, RecordID: recordID, Result: result}, nil
		}

		// A non-completed outcome never keeps a full progress bar: resetting
		// here preserves the progress==1.0 iff completed invariant on every
		// terminal and paused transition below.
		zero := 0.0

		if provider.IsQuotaExceeded(runErr) {
			tag := provider.QuotaTag(runErr)
			if tag == "" {
				tag = opts.QuotaTag
			}
			if err := store.Transition(ctx, recordID, jobstore.StatusRunning, jobstore.StatusPaused, jobstore.Patch{
				Error: runErr.Error(), Progress: &zero,
			}); err != nil {
				var conflict *jobstore.ErrConflict
				if errors.As(err, &conflict) {
					return outcomeFromConflict(recordID, *conflict), nil
				}
				return Outcome{}, fmt.Errorf("executor: transition to paused: %w", err)
			}
			observer.OnEvent(ctx, observability.Event{
				Type: EventQuotaPaused, Level: observability.LevelWarning, Timestamp: time.Now(),
				Source: "executor.Run", Data: map[string]any{"name": ref.Name, "tag": tag},
			})
			return Outcome{Kind: Paused, RecordID: recordID, Reason: runErr.Error(), PauseTag: tag}, nil
		}

		if ctxErr := runCtx.Err(); ctxErr != nil {
			end := time.Now()
			_ = store.Transition(ctx, recordID, jobstore.StatusRunning, jobstore.StatusCancelled, jobstore.Patch{
				EndedAt: &end, Error: ctxErr.Error(), Progress: &zero,
			})
			return Outcome{Kind: Cancelled, RecordID: recordID, Reason: ctxErr.Error()}, nil
		}

		var fatal *FatalError
		isFatal := errors.As(runErr, &fatal)

		if !isFatal && attempt <= opts.MaxRetries {
			_ = store.AppendLog(ctx, recordID, jobstore.LogEntry{
				Timestamp: time.Now(), Level: jobstore.LogWarn,
				Message: fmt.Sprintf("attempt %d failed: %v, retrying", attempt, runErr),
			})
			if err := store.Transition(ctx, recordID, jobstore.StatusRunning, jobstore.StatusRetrying, jobstore.Patch{
				Error: runErr.Error(), Progress: &zero,
			}); err != nil {
				var conflict *jobstore.ErrConflict
				if errors.As(err, &conflict) {
					return outcomeFromConflict(recordID, *conflict), nil
				}
				return Outcome{}, fmt.Errorf("executor: transition to retrying: %w", err)
			}

			observer.OnEvent(ctx, observability.Event{
				Type: EventRetryScheduled, Level: observability.LevelWarning, Timestamp: time.Now(),
				Source: "executor.Run", Data: map[string]any{"name": ref.Name, "attempt": attempt},
			})

			delay := opts.RetryBackoff(attempt)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-runCtx.Done():
				timer.Stop()
				end := time.Now()
				_ = store.Transition(ctx, recordID, jobstore.StatusRetrying, jobstore.StatusCancelled, jobstore.Patch{
					EndedAt: &end, Error: runCtx.Err().Error(),
				})
				return Outcome{Kind: Cancelled, RecordID: recordID, Reason: runCtx.Err().Error()}, nil
			}

			attempt++
			fromStatus = jobstore.StatusRetrying
			continue
		}

		end := time.Now()
		errMsg := runErr.Error()
		if isFatal {
			errMsg = fatal.Error()
		}
		if err := store.Transition(ctx, recordID, jobstore.StatusRunning, jobstore.StatusFailed, jobstore.Patch{
			EndedAt: &end, Error: errMsg, Progress: &zero,
		}); err != nil {
			var conflict *jobstore.ErrConflict
			if errors.As(err, &conflict) {
				return outcomeFromConflict(recordID, *conflict), nil
			}
			return Outcome{}, fmt.Errorf("executor: transition to failed: %w", err)
		}
		observer.OnEvent(ctx, observability.Event{
			Type: EventAttemptComplete, Level: observability.LevelError, Timestamp: time.Now(),
			Source: "executor.Run", Data: map[string]any{"name": ref.Name, "outcome": "failed", "error": errMsg},
		})
		return Outcome{Kind: Failed, RecordID: recordID, Err: runErr}, nil
	}
}

// outcomeFromConflict honours whatever terminal state an external actor
// (e.g. a manual cancel) already moved the record to, per the persistence
// conflict policy: the loser treats the observed state as authoritative.
func outcomeFromConflict(recordID string, conflict jobstore.ErrConflict) Outcome {
	switch conflict.Observed {
	case jobstore.StatusCancelled:
		return Outcome{Kind: Cancelled, RecordID: recordID, Reason: "observed external cancellation"}
	case jobstore.StatusCompleted:
		return Outcome{Kind: Completed, RecordID: recordID}
	case jobstore.StatusSkipped:
		return Outcome{Kind: Skipped, RecordID: recordID, Reason: "observed external skip"}
	case jobstore.StatusFailed:
		return Outcome{Kind: Failed, RecordID: recordID, Err: fmt.Errorf("observed external failure")}
	case jobstore.StatusPaused:
		return Outcome{Kind: Paused, RecordID: recordID, Reason: "observed external pause"}
	default:
		return Outcome{Kind: Failed, RecordID: recordID, Err: &conflict}
	}
}

// Skip records a step as skipped without ever entering running, matching
// the Workflow Engine's handling of WorkflowStep.Skipped steps.
func Skip(ctx context.Context, store jobstore.Store, ref JobRef, reason string) (Outcome, error) {
	id, err := store.Create(ctx, ref.Name, ref.Metadata, time.Now())
	if err != nil {
		return Outcome{}, fmt.Errorf("executor: create record for skip: %w", err)
	}
	end := time.Now()
	if err := store.Transition(ctx, id, jobstore.StatusScheduled, jobstore.StatusSkipped, jobstore.Patch{EndedAt: &end}); err != nil {
		return Outcome{}, fmt.Errorf("executor: transition to skipped: %w", err)
	}
	return Outcome{Kind: Skipped, RecordID: id, Reason: reason}, nil
}
