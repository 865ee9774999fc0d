package cycle

import "github.com/marketsync/cycledlist/observability"

const (
	EventControllerStart   observability.EventType = "cycle.controller.start"
	EventControllerStop    observability.EventType = "cycle.controller.stop"
	EventCyclePause        observability.EventType = "cycle.pause"
	EventCycleResume       observability.EventType = "cycle.resume"
	EventAdHocRun          observability.EventType = "cycle.adhoc.run"
	EventAdHocConflict     observability.EventType = "cycle.adhoc.conflict"
	EventMaxCyclesReached  observability.EventType = "cycle.max_cycles_reached"

	EventStatusPersistFailed observability.EventType = "cycle.status.persist_failed"
)
