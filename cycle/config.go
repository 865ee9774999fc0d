package cycle

import (
	"time"

	"github.com/marketsync/cycledlist/executor"
	"github.com/marketsync/cycledlist/jobstore"
	"github.com/marketsync/cycledlist/observability"
	"github.com/marketsync/cycledlist/workflow"
)

// Config drives config-based initialization of a Controller: every
// subsystem the controller needs is built from Config by New, and Options
// applied afterwards can replace any of them for tests or alternate wiring.
type Config struct {
	// Name identifies the cycled list (the key under which its
	// CycledListStatus and JobRecords are filed).
	Name string

	// Definition is the ordered workflow this controller repeats every cycle.
	Definition workflow.Definition

	// MaxCycles bounds the number of cycles run before the controller
	// transitions to completed and stops on its own. Nil means unbounded.
	MaxCycles *int

	// CycleInterval is the pause between the end of one cycle and the start
	// of the next. Zero means back-to-back cycles with no sleep.
	CycleInterval time.Duration

	// StoreName selects the jobstore.Store backend from the registry
	// ("memory", "postgres", "redis", ...).
	StoreName string

	// ExecutorOpts configures every step's supervised envelope.
	ExecutorOpts executor.Options
}

// Option configures a Controller after config-driven initialization.
type Option func(*Controller)

// WithStore overrides the config-selected jobstore.Store, rewiring the
// engine it feeds — mainly for tests that want an isolated memory store
// instead of the shared "memory" registry singleton.
func WithStore(s jobstore.Store) Option {
	return func(c *Controller) {
		c.store = s
		c.engine.Store = s
	}
}

// WithObserver overrides the default no-op observer.
func WithObserver(o observability.Observer) Option {
	return func(c *Controller) { c.observer = o; c.engine.Observer = o }
}

// WithGate overrides the controller's pause gate — mainly for tests that
// need to inspect or pre-close it before Start.
func WithGate(g *Gate) Option {
	return func(c *Controller) { c.gate = g }
}
