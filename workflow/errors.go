package workflow

import "fmt"

// StepError carries the step and cause when a group-level failure needs
// reporting beyond the tolerant "record it and continue" default — callers
// that want the full context reach for this instead of a bare error string.
type StepError struct {
	StepName string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow: step %q failed: %v", e.StepName, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
