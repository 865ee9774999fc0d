package cycle

import (
	"errors"
	"fmt"
)

// errGateStopped is returned by Gate.Wait when the controller's stop channel
// fires while the gate is still closed — distinguishes a deliberate shutdown
// from ctx cancellation.
var errGateStopped = errors.New("cycle: stopped while waiting on pause gate")

// ErrInvalidWorkflow is returned by New when the supplied workflow
// definition fails Validate (a step with no name, a functionName repeated
// among non-skipped steps, or a parallel group that is not contiguous).
var ErrInvalidWorkflow = errors.New("cycle: invalid workflow definition")

// ErrAlreadyRunning is returned by Start when the controller's outer loop is
// already executing.
var ErrAlreadyRunning = errors.New("cycle: controller already running")

// ErrAdHocConflict enforces the single-instance guarantee: an ad hoc run was
// requested for a job that already has a running JobRecord, or whose ad hoc
// lock is already held.
type ErrAdHocConflict struct {
	Name string
}

func (e *ErrAdHocConflict) Error() string {
	return fmt.Sprintf("cycle: ad hoc run for %q rejected, an instance is already running", e.Name)
}
