// Package cycle is the Cycle Controller: the outer loop that repeats a
// workflow.Definition cycle after cycle, owns the pause gate, enforces the
// ad hoc single-instance guarantee, and projects the controller's lifecycle
// into a CycledListStatus document.
package cycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marketsync/cycledlist/catalogue"
	"github.com/marketsync/cycledlist/executor"
	"github.com/marketsync/cycledlist/jobstore"
	"github.com/marketsync/cycledlist/observability"
	"github.com/marketsync/cycledlist/workflow"
)

// Controller runs Config.Definition in a loop, one cycle at a time, honoring
// the pause gate and the configured cycle budget. Exactly one goroutine
// (spawned by Start) ever mutates status and the loop's local state; every
// other method communicates with it through the gate, the stop channel, or
// the mutex-guarded status snapshot.
type Controller struct {
	mu        sync.Mutex
	cfg       Config
	store     jobstore.Store
	catalogue *catalogue.Catalogue
	engine    *workflow.Engine
	gate      *Gate
	observer  observability.Observer

	status        CycledListStatus
	running       bool
	resumePending bool

	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds a Controller from cfg, resolving its jobstore.Store from the
// registry, then applies opts so tests and alternate wirings can replace
// any config-built subsystem.
func New(cfg Config, cat *catalogue.Catalogue, opts ...Option) (*Controller, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("cycle: config.Name must not be empty")
	}
	if err := cfg.Definition.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
	}

	storeName := cfg.StoreName
	if storeName == "" {
		storeName = "memory"
	}
	store, err := jobstore.GetStore(storeName)
	if err != nil {
		return nil, fmt.Errorf("cycle: resolve store: %w", err)
	}

	engine := workflow.New(store, cat)
	execOpts := cfg.ExecutorOpts
	if execOpts.RetryBackoff == nil {
		execOpts.RetryBackoff = executor.ExponentialBackoff(time.Second, 30*time.Second)
	}
	engine.ExecutorOpts = execOpts

	c := &Controller{
		cfg:       cfg,
		store:     store,
		catalogue: cat,
		engine:    engine,
		gate:      NewGate(),
		observer:  observability.NoOpObserver{},
		status:    NotInitializedStatus(cfg.Name),
		stopCh:    make(chan struct{}),
	}
	c.status.MaxCycles = cfg.MaxCycles

	for _, opt := range opts {
		opt(c)
	}
	engine.Observer = c.observer
	engine.ExecutorOpts.Observer = c.observer

	return c, nil
}

// Status returns a snapshot of the controller's current status document.
func (c *Controller) Status() CycledListStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start launches the outer loop in its own goroutine and returns immediately.
// The loop runs until it stops itself (max cycles reached, a fatal engine
// error, or cancellation) or Stop is called.
//
// Start rehydrates from a persisted status document when one exists: the
// cycle counters carry over, an in-flight cycle is re-driven rather than
// skipped, and a persisted pause closes the gate again before the loop runs.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	if saved, err := c.store.GetListStatus(ctx, c.cfg.Name); err == nil {
		c.status.CurrentCycle = saved.CurrentCycle
		c.status.TotalCycles = saved.TotalCycles
		c.status.ContinueConditions = saved.ContinueConditions
		c.resumePending = saved.CurrentCycle > saved.TotalCycles
		if saved.OverallStatus == OverallPaused {
			tag := ""
			if len(saved.PauseConditions) > 0 {
				tag = saved.PauseConditions[0]
			}
			c.gate.CloseManual(saved.PauseReason, tag, saved.ManualPause)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.status.OverallStatus = OverallRunning
	c.status.IsRunning = true
	c.status.LastUpdated = time.Now()
	c.mu.Unlock()

	c.emit(runCtx, EventControllerStart, observability.LevelInfo, map[string]any{"name": c.cfg.Name})
	c.persist(runCtx)

	go c.loop(runCtx)
	return nil
}

// persist writes the current status snapshot through the store. A failed
// write is reported through the observer and otherwise ignored — one lost
// snapshot never stops the cycle.
func (c *Controller) persist(ctx context.Context) {
	c.mu.Lock()
	snapshot := c.status
	c.mu.Unlock()
	if err := c.store.SaveListStatus(ctx, snapshot); err != nil {
		c.emit(ctx, EventStatusPersistFailed, observability.LevelWarning, map[string]any{"error": err.Error()})
	}
}

// Stop ends the outer loop at once: it cancels the loop's context, so
// in-flight steps see cancellation, and releases any pause wait, recording
// reason as the stop cause. Idempotent.
func (c *Controller) Stop(reason string) {
	c.stopOnce.Do(func() {
		c.markStopped(reason)
		if c.cancel != nil {
			c.cancel()
		}
		close(c.stopCh)
		c.emit(context.Background(), EventControllerStop, observability.LevelInfo, map[string]any{"reason": reason})
	})
}

// markStopped records reason as the stop cause and flips the status document
// to stopped. Safe to call from the loop goroutine or from Stop.
func (c *Controller) markStopped(reason string) {
	c.mu.Lock()
	c.status.OverallStatus = OverallStopped
	c.status.IsRunning = false
	if c.status.StopReason == "" {
		c.status.StopReason = reason
	}
	c.status.LastUpdated = time.Now()
	c.mu.Unlock()
	c.persist(context.Background())
}

// PauseManually closes the gate with the manual flag set, taking effect at
// the next group boundary the workflow engine reaches.
func (c *Controller) PauseManually(reason string) {
	c.gate.CloseManual(reason, "", true)
	c.mu.Lock()
	c.status.ManualPause = true
	c.mu.Unlock()
	c.emit(context.Background(), EventCyclePause, observability.LevelInfo, map[string]any{"reason": reason, "manual": true})
}

// ResumeManually opens the gate regardless of why it was closed.
func (c *Controller) ResumeManually() {
	c.gate.Open()
	c.emit(context.Background(), EventCycleResume, observability.LevelInfo, nil)
}

// ReportQuotaExceeded closes the gate on behalf of a provider.BreakerClient
// callback, recording tag for the status document's pauseConditions.
func (c *Controller) ReportQuotaExceeded(tag string) {
	c.gate.Close(fmt.Sprintf("quota exceeded: %s", tag), tag)
	c.emit(context.Background(), EventCyclePause, observability.LevelWarning, map[string]any{"tag": tag, "manual": false})
}

// ReportQuotaOk opens the gate once the provider's breaker clears, resuming
// the cycle at its next group boundary. A manual pause holds: quota clearing
// never overrides an operator's explicit pause, only ResumeManually does.
func (c *Controller) ReportQuotaOk() {
	if c.gate.Manual() {
		return
	}
	if tag := c.gate.Tag(); tag != "" {
		c.mu.Lock()
		c.status.ContinueConditions = append(c.status.ContinueConditions, tag)
		c.mu.Unlock()
	}
	c.gate.Open()
	c.emit(context.Background(), EventCycleResume, observability.LevelInfo, nil)
}

// adHocLockTTL bounds how long a crashed lock owner can block ad hoc runs
// of the same job name.
const adHocLockTTL = 15 * time.Minute

// RunAdHoc executes name outside the normal cycle, enforcing the
// single-instance guarantee: a named job already running is rejected rather
// than queued. Stores that implement jobstore.AdHocLocker
// additionally take a per-name lock, closing the race between two processes
// passing the FindRunning check at the same time.
func (c *Controller) RunAdHoc(ctx context.Context, name string) (executor.Outcome, error) {
	if locker, ok := c.store.(jobstore.AdHocLocker); ok {
		acquired, err := locker.AcquireAdHocLock(ctx, name, adHocLockTTL)
		if err != nil {
			return executor.Outcome{}, fmt.Errorf("cycle: acquire ad hoc lock: %w", err)
		}
		if !acquired {
			c.emit(ctx, EventAdHocConflict, observability.LevelWarning, map[string]any{"name": name})
			return executor.Outcome{}, &ErrAdHocConflict{Name: name}
		}
		defer func() { _ = locker.ReleaseAdHocLock(ctx, name) }()
	}

	running, err := c.store.FindRunning(ctx)
	if err != nil {
		return executor.Outcome{}, fmt.Errorf("cycle: find running: %w", err)
	}
	for _, rec := range running {
		if rec.Name == name {
			c.emit(ctx, EventAdHocConflict, observability.LevelWarning, map[string]any{"name": name})
			return executor.Outcome{}, &ErrAdHocConflict{Name: name}
		}
	}

	entry, ok := c.catalogue.Lookup(name)
	if !ok {
		return executor.Outcome{}, fmt.Errorf("cycle: ad hoc job %q not found in catalogue", name)
	}

	c.emit(ctx, EventAdHocRun, observability.LevelInfo, map[string]any{"name": name})

	ref := executor.JobRef{
		Name:         name,
		FunctionName: name,
		Metadata:     map[string]any{jobstore.MetaNodeID: "adhoc"},
	}
	return executor.Run(ctx, c.store, ref, entry.Function, c.engine.ExecutorOpts)
}

func (c *Controller) loop(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.status.IsRunning = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			c.markStopped(ctx.Err().Error())
			return
		case <-c.stopCh:
			return
		default:
		}

		c.mu.Lock()
		if c.cfg.MaxCycles != nil && c.status.TotalCycles >= *c.cfg.MaxCycles {
			c.status.OverallStatus = OverallCompleted
			c.status.IsRunning = false
			c.status.LastUpdated = time.Now()
			c.mu.Unlock()
			c.emit(ctx, EventMaxCyclesReached, observability.LevelInfo, map[string]any{"maxCycles": *c.cfg.MaxCycles})
			c.persist(ctx)
			return
		}
		if c.resumePending {
			// A restart found an unfinished cycle; re-drive it instead of
			// starting the next one. Terminal step records keep it from
			// re-executing completed work.
			c.resumePending = false
		} else {
			c.status.CurrentCycle++
		}
		cycleNum := c.status.CurrentCycle
		c.status.LastUpdated = time.Now()
		c.mu.Unlock()
		c.persist(ctx)

		finished := false
		for !finished {
			outcome, err := c.engine.RunCycle(ctx, c.cfg.Definition, c.cfg.Name, cycleNum, c.gate, c.onProgress)
			if err != nil {
				c.markStopped(err.Error())
				return
			}

			switch outcome.Kind {
			case workflow.Paused:
				// The gate carries the authoritative reason/tag: when the
				// engine stops at a group boundary because the gate was
				// already closed, the outcome itself only knows that much.
				reason := c.gate.Reason()
				if reason == "" {
					reason = outcome.Reason
				}
				tag := outcome.Tag
				if tag == "" {
					tag = c.gate.Tag()
				}

				c.mu.Lock()
				c.status.OverallStatus = OverallPaused
				c.status.IsPaused = true
				c.status.ManualPause = c.gate.Manual()
				c.status.PauseReason = reason
				c.status.CurrentAsyncFnIndex = outcome.StepIndex
				if tag != "" {
					c.status.PauseConditions = []string{tag}
				} else {
					c.status.PauseConditions = nil
				}
				c.status.LastUpdated = time.Now()
				c.mu.Unlock()
				c.persist(ctx)

				if err := c.gate.Wait(ctx, c.stopCh); err != nil {
					c.markStopped(err.Error())
					return
				}

				c.mu.Lock()
				c.status.OverallStatus = OverallRunning
				c.status.IsPaused = false
				c.status.ManualPause = false
				c.status.PauseReason = ""
				c.status.PauseConditions = nil
				c.status.LastUpdated = time.Now()
				c.mu.Unlock()
				c.persist(ctx)
				continue

			case workflow.Cancelled:
				c.markStopped(outcome.Reason)
				return

			default: // Finished
				finished = true
			}
		}

		c.mu.Lock()
		c.status.TotalCycles++
		var next *time.Time
		if c.cfg.CycleInterval > 0 {
			when := time.Now().Add(c.cfg.CycleInterval)
			next = &when
		}
		c.status.NextCycleScheduled = next
		c.status.LastUpdated = time.Now()
		c.mu.Unlock()
		c.persist(ctx)

		if c.cfg.CycleInterval > 0 {
			timer := time.NewTimer(c.cfg.CycleInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				c.markStopped(ctx.Err().Error())
				return
			case <-c.stopCh:
				timer.Stop()
				return
			}
		}
	}
}

func (c *Controller) onProgress(completed, failed, skipped, total int, progress float64) {
	c.mu.Lock()
	c.status.TotalAsyncFns = total
	c.status.CompletedAsyncFns = completed
	c.status.FailedAsyncFns = failed
	c.status.Progress = progress * 100
	c.status.LastUpdated = time.Now()
	c.mu.Unlock()
	c.persist(context.Background())
}

func (c *Controller) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	if c.observer == nil {
		return
	}
	c.observer.OnEvent(ctx, observability.Event{
		Type: t, Level: level, Timestamp: time.Now(), Source: "cycle.Controller", Data: data,
	})
}
