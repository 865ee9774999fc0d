package workflow

import "github.com/marketsync/cycledlist/observability"

const (
	EventCycleStart    observability.EventType = "workflow.cycle.start"
	EventCycleComplete observability.EventType = "workflow.cycle.complete"
	EventGroupStart    observability.EventType = "workflow.group.start"
	EventGroupComplete observability.EventType = "workflow.group.complete"
	EventStepComplete  observability.EventType = "workflow.step.complete"
)
