package workflow

// PauseGate is the minimal view the engine needs of the Cycle Controller's
// pause gate: whether progress is currently blocked, and how to block it.
// The concrete implementation (cycle.Gate) is owned by the Cycle Controller
// and guards its state with a mutex; the engine only closes it, when a step
// pauses, and never opens it.
type PauseGate interface {
	Closed() bool
	Close(reason, tag string)
}

// openGate is a PauseGate that never closes — used when the engine runs
// standalone (e.g. tests) without a controller.
type openGate struct{}

func (openGate) Closed() bool         { return false }
func (openGate) Close(string, string) {}

// OpenGate returns a PauseGate that is always open.
func OpenGate() PauseGate { return openGate{} }
