package provider

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded is the sentinel a Client implementation should wrap
// (via fmt.Errorf("...: %w", ErrQuotaExceeded)) when the upstream provider
// rejects a call for quota reasons. The job executor tests for it with
// errors.Is to decide between a retry and a cycle-level pause.
var ErrQuotaExceeded = errors.New("provider: quota exceeded")

// QuotaExceededError carries the quota tag (e.g. "EODHD_DAILY_LIMIT") that
// the Cycle Controller records in CycledListStatus.pauseConditions. Clients
// should return this instead of the bare sentinel whenever a tag is known.
type QuotaExceededError struct {
	Tag string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("provider: quota exceeded (%s)", e.Tag)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// IsQuotaExceeded classifies err as a quota-exhaustion condition, covering
// both the client's own sentinel and an open circuit breaker — a breaker
// trips specifically because repeated calls hit ErrQuotaExceeded, so an
// open-state rejection carries the same meaning to callers upstream.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrCircuitOpen)
}

// QuotaTag extracts the tag from a QuotaExceededError, if present.
func QuotaTag(err error) string {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe.Tag
	}
	return ""
}
