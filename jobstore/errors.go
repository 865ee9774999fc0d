package jobstore

import "fmt"

// ErrNotFound is returned when a lookup by id finds no record.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("jobstore: record not found: %s", e.ID)
}

// ErrConflict is returned by transition when the observed status does not
// match the expected "from" status — a concurrent writer won the race.
// The loser must treat Observed as authoritative rather than retry blindly.
type ErrConflict struct {
	ID       string
	Expected Status
	Observed Status
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("jobstore: transition conflict on %s: expected %s, observed %s", e.ID, e.Expected, e.Observed)
}

// ErrProgressRegression is returned by SetProgress when the new value is
// lower than the value already stored.
type ErrProgressRegression struct {
	ID       string
	Current  float64
	Proposed float64
}

func (e *ErrProgressRegression) Error() string {
	return fmt.Sprintf("jobstore: progress regression on %s: %.3f -> %.3f", e.ID, e.Current, e.Proposed)
}
