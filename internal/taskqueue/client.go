package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"inkwell/internal/logging"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// DefaultRetentionSeconds applies when a SubmitPolicy leaves retention
	// unset. Defaults to 3600.
	DefaultRetentionSeconds int64
	// ConnectRetries bounds reconnect attempts on submission before giving
	// up with ErrBrokerUnavailable. Defaults to 10.
	ConnectRetries int
	// Encoder overrides the task record codec. Defaults to JSONEncoder.
	Encoder Encoder
	// Logger receives submission diagnostics. Defaults to a no-op logger.
	Logger *slog.Logger
}

func (o *ClientOptions) normalize() {
	if o.DefaultRetentionSeconds <= 0 {
		o.DefaultRetentionSeconds = 3600
	}
	if o.ConnectRetries <= 0 {
		o.ConnectRetries = 10
	}
	if o.Encoder == nil {
		o.Encoder = JSONEncoder{}
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
}

// Client submits tasks to queues and exposes their status. It is safe for
// concurrent use.
type Client struct {
	rdb     redis.UniversalClient
	opts    ClientOptions
	encoder Encoder
	logger  *slog.Logger
}

// NewClient builds a Client over an established Redis connection.
func NewClient(rdb redis.UniversalClient, opts ClientOptions) *Client {
	opts.normalize()
	return &Client{
		rdb:     rdb,
		opts:    opts,
		encoder: opts.Encoder,
		logger:  opts.Logger.With(logging.String(logging.FieldComponent, "taskqueue")),
	}
}

// Submit enqueues a task of the given kind onto the named queue and returns
// its id. The payload is serialized with the configured encoder. Transient
// broker errors are retried with exponential backoff up to the configured
// attempt bound.
func (c *Client) Submit(ctx context.Context, queue, kind string, payload any, policy SubmitPolicy) (string, error) {
	if queue == "" {
		return "", errors.New("taskqueue: queue name required")
	}
	if kind == "" {
		return "", errors.New("taskqueue: task kind required")
	}
	body, err := c.encoder.Encode(payload)
	if err != nil {
		return "", fmt.Errorf("taskqueue: encode payload: %w", err)
	}

	retention := policy.RetentionSeconds
	if retention <= 0 {
		retention = c.opts.DefaultRetentionSeconds
	}
	id := policy.TaskID
	if id == "" {
		id = uuid.NewString()
	}
	task := &Task{
		ID:        id,
		Kind:      kind,
		Queue:     queue,
		Payload:   body,
		MaxRetry:  policy.MaxRetry,
		Retention: retention,
		CreatedAt: time.Now().UnixMilli(),
	}
	raw, err := c.encoder.Encode(task)
	if err != nil {
		return "", fmt.Errorf("taskqueue: encode task: %w", err)
	}

	keys := keysFor(queue)
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < c.opts.ConnectRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 10*time.Second {
				backoff *= 2
			}
		}
		pipe := c.rdb.TxPipeline()
		pipe.LPush(ctx, keys.pending, raw)
		status, encErr := c.encoder.Encode(statusFromTask(task, StatePending))
		if encErr != nil {
			return "", fmt.Errorf("taskqueue: encode status: %w", encErr)
		}
		pipe.Set(ctx, statusKey(id), status, time.Duration(retention)*time.Second)
		if _, lastErr = pipe.Exec(ctx); lastErr == nil {
			c.logger.Debug("task submitted",
				logging.String(logging.FieldTaskID, id),
				logging.String(logging.FieldQueue, queue),
				logging.String("kind", kind))
			return id, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("task submission retry",
			logging.String(logging.FieldQueue, queue),
			logging.Int("attempt", attempt+1),
			logging.Error(lastErr))
	}
	return "", fmt.Errorf("%w: %v", ErrBrokerUnavailable, lastErr)
}

// GetStatus returns the current status of a task. ErrTaskNotFound is
// returned when the task never existed or its retention has expired.
func (c *Client) GetStatus(ctx context.Context, taskID string) (Status, error) {
	raw, err := c.rdb.Get(ctx, statusKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Status{}, ErrTaskNotFound
	}
	if err != nil {
		return Status{}, fmt.Errorf("taskqueue: fetch status: %w", err)
	}
	var status Status
	if err := c.encoder.Decode(raw, &status); err != nil {
		return Status{}, fmt.Errorf("taskqueue: decode status: %w", err)
	}
	return status, nil
}

// QueueDepth reports the number of tasks awaiting execution on a queue.
func (c *Client) QueueDepth(ctx context.Context, queue string) (int64, error) {
	depth, err := c.rdb.LLen(ctx, keysFor(queue).pending).Result()
	if err != nil {
		return 0, fmt.Errorf("taskqueue: queue depth: %w", err)
	}
	return depth, nil
}
