package jobstore

import "time"

// OverallStatus is the top-level lifecycle state of a cycled list.
type OverallStatus string

const (
	OverallNotInitialized OverallStatus = "not_initialized"
	OverallRunning        OverallStatus = "running"
	OverallPaused         OverallStatus = "paused"
	OverallStopped        OverallStatus = "stopped"
	OverallCompleted      OverallStatus = "completed"
)

// AsyncFnRef is the shape the status document uses for current/next/previous
// job references.
type AsyncFnRef struct {
	Name          string     `json:"name"`
	DisplayName   string     `json:"displayName"`
	FunctionName  string     `json:"functionName"`
	Status        string     `json:"status"`
	ProgressPct   float64    `json:"progressPercentage"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	ScheduledAt   *time.Time `json:"scheduledAt,omitempty"`
	MachineName   string     `json:"machineName,omitempty"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	Result        any        `json:"result,omitempty"`
	Index         int        `json:"index"`
}

// CycledListStatus is the singleton document keyed by Name representing the
// global orchestrator state. The Cycle Controller is its sole writer; it is
// persisted through the same Store as JobRecords so a restarted process can
// rehydrate the controller's position and pause state.
type CycledListStatus struct {
	Name          string        `json:"name"`
	OverallStatus OverallStatus `json:"overallStatus"`

	IsRunning   bool `json:"isRunning"`
	IsPaused    bool `json:"isPaused"`
	ManualPause bool `json:"manualPause"`

	PauseReason string `json:"pauseReason,omitempty"`
	StopReason  string `json:"stopReason,omitempty"`

	CurrentCycle int  `json:"currentCycle"`
	TotalCycles  int  `json:"totalCycles"`
	MaxCycles    *int `json:"maxCycles,omitempty"`

	TotalAsyncFns       int     `json:"totalAsyncFns"`
	CompletedAsyncFns   int     `json:"completedAsyncFns"`
	FailedAsyncFns      int     `json:"failedAsyncFns"`
	CurrentAsyncFnIndex int     `json:"currentAsyncFnIndex"`
	Progress            float64 `json:"progress"` // 0-100

	PreviousAsyncFn *AsyncFnRef `json:"previousAsyncFn,omitempty"`
	CurrentAsyncFn  *AsyncFnRef `json:"currentAsyncFn,omitempty"`
	NextAsyncFn     *AsyncFnRef `json:"nextAsyncFn,omitempty"`

	PauseConditions    []string `json:"pauseConditions,omitempty"`
	ContinueConditions []string `json:"continueConditions,omitempty"`

	NextCycleScheduled *time.Time `json:"nextCycleScheduled,omitempty"`
	LastUpdated        time.Time  `json:"lastUpdated"`
}
