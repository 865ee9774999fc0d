// Package status projects the live state of a cycle.Controller — its
// CycledListStatus plus the current cycle's JobRecords — into the JSON
// document the HTTP status surface serves.
package status

import "time"

// AsyncFnView is the shape used for previousAsyncFn/currentAsyncFn/
// nextAsyncFn and every jobTimeline entry.
type AsyncFnView struct {
	Name               string     `json:"name"`
	DisplayName        string     `json:"displayName"`
	FunctionName       string     `json:"functionName"`
	Status             string     `json:"status"`
	ProgressPercentage float64    `json:"progressPercentage"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	EndedAt            *time.Time `json:"endedAt,omitempty"`
	ScheduledAt        *time.Time `json:"scheduledAt,omitempty"`
	MachineName        string     `json:"machineName,omitempty"`
	ErrorMessage       string     `json:"errorMessage,omitempty"`
	Result             any        `json:"result,omitempty"`
	Index              int        `json:"index"`
}

// CycleProgress summarizes progress across the cycle budget, not within one cycle.
type CycleProgress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Completed  int     `json:"completed"`
	Remaining  int     `json:"remaining"`
}

// JobStatusBreakdown counts the current cycle's steps by status: each
// jobTimeline entry under its record's jobstore.Status (Pending when the step
// has no record yet or its record is still scheduled), and each skipped step,
// which the timeline leaves out, under Skipped.
type JobStatusBreakdown struct {
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Paused    int `json:"paused"`
	Retrying  int `json:"retrying"`
	Pending   int `json:"pending"`
	Skipped   int `json:"skipped"`
}

// Document is the full cycled-list-status response body.
type Document struct {
	Name          string `json:"name"`
	OverallStatus string `json:"overallStatus"`

	IsRunning   bool `json:"isRunning"`
	IsPaused    bool `json:"isPaused"`
	ManualPause bool `json:"manualPause"`

	PauseReason string `json:"pauseReason,omitempty"`
	StopReason  string `json:"stopReason,omitempty"`

	CurrentCycle  int   `json:"currentCycle"`
	TotalCycles   int   `json:"totalCycles"`
	MaxCycles     *int  `json:"maxCycles,omitempty"`
	CycleInterval int64 `json:"cycleInterval"` // milliseconds

	TotalAsyncFns       int     `json:"totalAsyncFns"`
	CompletedAsyncFns   int     `json:"completedAsyncFns"`
	FailedAsyncFns      int     `json:"failedAsyncFns"`
	CurrentAsyncFnIndex int     `json:"currentAsyncFnIndex"`
	Progress            float64 `json:"progress"`

	PreviousAsyncFn *AsyncFnView `json:"previousAsyncFn"`
	CurrentAsyncFn  *AsyncFnView `json:"currentAsyncFn"`
	NextAsyncFn     *AsyncFnView `json:"nextAsyncFn"`

	PauseConditions    []string   `json:"pauseConditions"`
	ContinueConditions []string   `json:"continueConditions"`
	NextCycleScheduled *time.Time `json:"nextCycleScheduled"`

	StatusText         string  `json:"statusText"`
	StatusColor        string  `json:"statusColor"`
	ProgressPercentage int     `json:"progressPercentage"`
	TimeUntilNextCycle *string `json:"timeUntilNextCycle"`

	CycleProgress CycleProgress `json:"cycleProgress"`

	JobTimeline         []AsyncFnView      `json:"jobTimeline"`
	JobStatusBreakdown  JobStatusBreakdown `json:"jobStatusBreakdown"`
}

// NotInitialized is the fixed sentinel document returned when no controller
// has ever been initialized for name.
func NotInitialized(name string) Document {
	return Document{
		Name:                name,
		OverallStatus:       "not_initialized",
		StatusText:          "Not Initialized",
		StatusColor:         "gray",
		CycleInterval:       24 * 3600 * 1000,
		PauseConditions:     []string{},
		ContinueConditions:  []string{},
		JobTimeline:         []AsyncFnView{},
	}
}
