package taskqueue

// State represents the lifecycle of a task as tracked by the fabric.
type State string

const (
	// StatePending contains tasks ready for execution.
	StatePending State = "pending"
	// StateStarted contains tasks currently leased by a worker.
	StateStarted State = "started"
	// StateRetried contains tasks waiting for a backoff retry attempt.
	StateRetried State = "retried"
	// StateSucceeded contains completed tasks retained until result expiry.
	StateSucceeded State = "succeeded"
	// StateFailed contains permanently failed tasks retained until expiry.
	StateFailed State = "failed"
)

// AllStates lists every valid task state in a stable order.
var AllStates = []State{StatePending, StateStarted, StateRetried, StateSucceeded, StateFailed}

// String returns the raw string value of the state.
func (s State) String() string { return string(s) }

// Terminal reports whether the state is immutable once reached.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ParseState converts a string into a State, returning an error for unknown values.
func ParseState(value string) (State, error) {
	switch State(value) {
	case StatePending, StateStarted, StateRetried, StateSucceeded, StateFailed:
		return State(value), nil
	default:
		return "", ErrUnknownState
	}
}
