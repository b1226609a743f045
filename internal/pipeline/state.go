package pipeline

import "github.com/jonathan/fineprint/internal/types"

// State is the lifecycle state of a run.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateFetching    State = "fetching"
	StateAnalyzing   State = "analyzing"
	StateCompleted   State = "completed"
	StateCancelling  State = "cancelling"
	StateCancelled   State = "cancelled"
	StateFailed      State = "failed"
)

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateIdle:        {StateDiscovering, StateCancelling, StateFailed},
	StateDiscovering: {StateFetching, StateCancelling, StateFailed},
	StateFetching:    {StateAnalyzing, StateCancelling, StateFailed},
	StateAnalyzing:   {StateCompleted, StateCancelling, StateFailed},
	StateCancelling:  {StateCancelled, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Phase maps the state onto the progress phase shown to users.
func (s State) Phase() types.Phase {
	switch s {
	case StateFetching:
		return types.PhaseFetch
	case StateAnalyzing:
		return types.PhaseAnalyze
	case StateCompleted:
		return types.PhaseDone
	case StateFailed:
		return types.PhaseError
	case StateCancelling, StateCancelled:
		return types.PhaseCancelled
	default:
		return types.PhaseDiscovery
	}
}
