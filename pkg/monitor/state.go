package monitor

// State is a step of the generation lifecycle.
type State int

const (
	Submitted State = iota
	Polling
	Completed
	Failed
	TimedOut
	Cancelled
)

var stateNames = map[State]string{
	Submitted: "submitted",
	Polling:   "polling",
	Completed: "completed",
	Failed:    "failed",
	TimedOut:  "timed_out",
	Cancelled: "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s >= Completed
}

// SignalKind classifies what a probe saw for one correlation tag.
type SignalKind int

const (
	// SignalNone means the job is still generating, or nothing is visible yet.
	SignalNone SignalKind = iota
	SignalReady
	SignalError
)

func (k SignalKind) String() string {
	switch k {
	case SignalReady:
		return "ready"
	case SignalError:
		return "error"
	default:
		return "none"
	}
}

// Signal is a single observation of a job's UI state.
type Signal struct {
	Kind    SignalKind
	Message string
}
