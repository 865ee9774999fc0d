// Package catalogue is the job catalogue: a name-keyed registry mapping a
// job name to its executable function and the descriptive metadata that
// enriches status responses.
package catalogue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ProgressSink reports fractional progress in [0,1] for the running job.
type ProgressSink func(value float64)

// Function is the uniform signature every catalogue entry's executable
// implements — the orchestrator calls nothing else.
type Function func(ctx context.Context, progress ProgressSink) (result any, err error)

// Entry describes one registered job. Only Function is consumed by the
// orchestrator; the remaining fields enrich status responses and history
// views and are otherwise opaque to the engine.
type Entry struct {
	Name               string
	Function           Function
	CronExpression     string
	Timezone           string
	Description        string
	Dependencies       []string
	Category           string
	Scope              string
	Priority           int
	EstimatedDuration  string
	DataSource         string
	Tags               []string

	schedule cron.Schedule
}

// Catalogue is a concurrency-safe, name-keyed registry of Entry values.
type Catalogue struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty Catalogue.
func New() *Catalogue {
	return &Catalogue{entries: make(map[string]Entry)}
}

// Register adds an entry to the catalogue. A malformed CronExpression is a
// configuration error surfaced immediately, not at cycle time: jobs are
// meant to fail fast on bad scheduling metadata rather than silently never
// firing.
func (c *Catalogue) Register(entry Entry) error {
	if entry.Name == "" {
		return fmt.Errorf("catalogue: entry name cannot be empty")
	}
	if entry.Function == nil {
		return fmt.Errorf("catalogue: entry %q has no function", entry.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[entry.Name]; exists {
		return fmt.Errorf("catalogue: duplicate entry name %q", entry.Name)
	}

	if entry.CronExpression != "" {
		schedule, err := cron.ParseStandard(entry.CronExpression)
		if err != nil {
			return fmt.Errorf("catalogue: entry %q has invalid cron expression %q: %w", entry.Name, entry.CronExpression, err)
		}
		entry.schedule = schedule
	}

	c.entries[entry.Name] = entry
	return nil
}

// Lookup returns the entry registered under name.
func (c *Catalogue) Lookup(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[name]
	return entry, ok
}

// NextRun computes the next scheduled invocation time for name after from,
// or the zero time and false if the entry has no cron schedule.
func (c *Catalogue) NextRun(name string, from time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[name]
	if !ok || entry.schedule == nil {
		return time.Time{}, false
	}
	return entry.schedule.Next(from), true
}

// List returns all registered entries, in no particular order.
func (c *Catalogue) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}
