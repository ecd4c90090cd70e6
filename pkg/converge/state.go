package converge

// State is the orchestrator's position in the convergence run. Transitions
// are monotonic: once a state is left it is never revisited, except for the
// retry loops inside StateAwaitingTokens and StateAwaitingPropagation.
type State string

const (
	StateInitiated           State = "initiated"
	StateAwaitingTokens      State = "awaiting_tokens"
	StateRecordsPlanned      State = "records_planned"
	StateRecordsApplied      State = "records_applied"
	StateAwaitingPropagation State = "awaiting_propagation"
	StateVerified            State = "verified"
	StateTimedOut            State = "timed_out"
	StateFailed              State = "failed"
)

// Terminal reports whether the run has finished in this state.
func (s State) Terminal() bool {
	switch s {
	case StateVerified, StateTimedOut, StateFailed:
		return true
	}
	return false
}
