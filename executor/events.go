package executor

import "github.com/marketsync/cycledlist/observability"

const (
	EventAttemptStart    observability.EventType = "executor.attempt.start"
	EventAttemptComplete observability.EventType = "executor.attempt.complete"
	EventRetryScheduled  observability.EventType = "executor.retry.scheduled"
	EventQuotaPaused     observability.EventType = "executor.quota.paused"
)
