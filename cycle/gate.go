package cycle

import (
	"context"
	"sync"
)

// Gate is the closable synchronisation primitive gating cycle progress.
// A channel signals the open/closed state; a mutex rather than an atomic
// CompareAndSwap guards transitions, since Gate additionally carries the
// pause reason and tag that Wait callers and the status projector need.
//
// Exactly one Gate exists per Controller. It is mutated under its mutex by
// the Controller's methods (which callers may invoke from any goroutine) and
// by the Workflow Engine, which closes it through the workflow.PauseGate
// interface when a step pauses and never opens it.
type Gate struct {
	mu       sync.Mutex
	ch       chan struct{}
	closed   bool
	reason   string
	tag      string
	manual   bool
}

// NewGate returns an open gate. The wait channel is allocated lazily on the
// first Close — Wait never reads it while the gate is open.
func NewGate() *Gate {
	return &Gate{}
}

// Closed reports whether the gate currently blocks progress.
func (g *Gate) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Reason and Tag return the values recorded by the most recent Close call.
func (g *Gate) Reason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reason
}

func (g *Gate) Tag() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tag
}

// Manual reports whether the current closure was user-initiated (true) or
// quota-initiated (false) — distinguishes CycledListStatus.manualPause.
func (g *Gate) Manual() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.manual
}

// Close blocks progress, recording reason/tag for the status projector.
// Idempotent: closing an already-closed gate just updates reason/tag.
func (g *Gate) Close(reason, tag string) {
	g.CloseManual(reason, tag, false)
}

// CloseManual is Close with explicit control over the manual/quota distinction.
func (g *Gate) CloseManual(reason, tag string, manual bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		g.ch = make(chan struct{})
	}
	g.closed = true
	g.reason = reason
	g.tag = tag
	g.manual = manual
}

// Open unblocks progress. Idempotent.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		close(g.ch)
		g.closed = false
		g.reason = ""
		g.tag = ""
		g.manual = false
	}
}

// Wait blocks until the gate opens, ctx is cancelled, or stop fires.
func (g *Gate) Wait(ctx context.Context, stop <-chan struct{}) error {
	g.mu.Lock()
	if !g.closed {
		g.mu.Unlock()
		return nil
	}
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return errGateStopped
	}
}
