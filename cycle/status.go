package cycle

import (
	"time"

	"github.com/marketsync/cycledlist/jobstore"
)

// CycledListStatus is the singleton status document the controller owns.
// The type lives in jobstore because the document is persisted through the
// same Store as JobRecords; the alias keeps the controller's API surface
// self-contained.
type CycledListStatus = jobstore.CycledListStatus

// OverallStatus is the top-level lifecycle state of a cycled list.
type OverallStatus = jobstore.OverallStatus

const (
	OverallNotInitialized = jobstore.OverallNotInitialized
	OverallRunning        = jobstore.OverallRunning
	OverallPaused         = jobstore.OverallPaused
	OverallStopped        = jobstore.OverallStopped
	OverallCompleted      = jobstore.OverallCompleted
)

// AsyncFnRef is the shape the status document uses for current/next/previous
// job references.
type AsyncFnRef = jobstore.AsyncFnRef

// NotInitializedStatus returns the fixed sentinel for a cycled list that has
// never been started.
func NotInitializedStatus(name string) CycledListStatus {
	return CycledListStatus{
		Name:          name,
		OverallStatus: OverallNotInitialized,
		LastUpdated:   time.Now(),
	}
}
