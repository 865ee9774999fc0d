package executor

import "fmt"

// FatalError marks an error as non-retry-classified: the executor transitions
// straight to failed without consuming the retry budget. Job functions wrap
// an error this way to opt out of the retry loop for programmer errors or
// corrupt input, distinct from transient provider failures.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}
