package taskqueue

import "errors"

// ErrTaskNotFound is returned when no status record exists for a task id.
var ErrTaskNotFound = errors.New("taskqueue: task not found")

// ErrUnknownState is returned when an invalid state string is used.
var ErrUnknownState = errors.New("taskqueue: unknown state")

// ErrNoHandler indicates no handler is registered for a task kind; the task
// is moved to failed without retry.
var ErrNoHandler = errors.New("taskqueue: no handler for task kind")

// ErrBrokerUnavailable is returned when a submission exhausts its bounded
// reconnect attempts against the broker.
var ErrBrokerUnavailable = errors.New("taskqueue: broker unavailable")
