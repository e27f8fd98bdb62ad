package taskqueue

// Task is the unit of dispatchable work serialized to JSON and stored in
// Redis. The fabric owns it for its lifetime; handlers only see the payload.
type Task struct {
	// ID is the unique identifier assigned at submission time.
	ID string `json:"id"`
	// Kind routes the task to the registered handler.
	Kind string `json:"kind"`
	// Queue is the name of the queue this task belongs to.
	Queue string `json:"queue"`
	// Payload is the serialized task arguments.
	Payload []byte `json:"payload"`
	// Retry is the number of retry attempts made so far.
	Retry int `json:"retry"`
	// MaxRetry bounds retry attempts before the task moves to failed.
	MaxRetry int `json:"max_retry"`
	// Retention is how long (seconds) the terminal record is kept.
	Retention int64 `json:"retention"`
	// CreatedAt is the enqueue timestamp in milliseconds.
	CreatedAt int64 `json:"created_at,omitempty"`
	// StartedAt is the timestamp (ms) when a worker last claimed the task.
	StartedAt int64 `json:"started_at,omitempty"`
	// CompletedAt is the timestamp (ms) when the task reached a terminal state.
	CompletedAt int64 `json:"completed_at,omitempty"`
	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`
	// Result is the handler-provided result stored as JSON.
	Result []byte `json:"result,omitempty"`
}

// Status is the externally visible view of a task returned by GetStatus.
type Status struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Queue       string `json:"queue"`
	State       State  `json:"state"`
	Result      []byte `json:"result,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   int64  `json:"created_at,omitempty"`
	StartedAt   int64  `json:"started_at,omitempty"`
	CompletedAt int64  `json:"completed_at,omitempty"`
}

// SubmitPolicy controls retry and retention behavior for one submission.
type SubmitPolicy struct {
	// MaxRetry bounds handler-level retry attempts. Zero disables retries.
	MaxRetry int
	// RetentionSeconds overrides the client's default result retention when
	// positive.
	RetentionSeconds int64
	// TaskID forces a task id; the default is a random UUID.
	TaskID string
}

func statusFromTask(t *Task, state State) Status {
	return Status{
		ID:          t.ID,
		Kind:        t.Kind,
		Queue:       t.Queue,
		State:       state,
		Result:      t.Result,
		LastError:   t.LastError,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}
