package engine

import "time"

// State is the lifecycle position of a Processor.
type State int

// Processor states. Loading can be entered from any state, which is how an
// Error state is left.
const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateProcessing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateProcessing:
		return "processing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Counts tallies per-item outcomes of a run.
type Counts struct {
	Processed           int
	Skipped             int
	Failed              int
	PersistenceFailures int
}

// Done is the number of items the run has finished with, whatever the outcome.
func (c Counts) Done() int {
	return c.Processed + c.Skipped + c.Failed + c.PersistenceFailures
}

// Status is a point-in-time snapshot of a Processor.
type Status struct {
	Message  string
	Counts   Counts
	State    State
	Progress float64
	Total    int
	Paused   bool
	// Degraded is set when a result could not be written and exists only in memory.
	Degraded bool
}

// Summary reports how a finished run went.
type Summary struct {
	Total               int
	Processed           int
	Skipped             int
	Failed              int
	PersistenceFailures int
	Duration            time.Duration
	Cancelled           bool
}

// Observer receives a Status after every state or progress change. It is
// called synchronously from the goroutine making the change, one call at a
// time, and must not block or call back into Pause, Resume or TogglePause.
type Observer func(Status)
