package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"inkwell/internal/logging"
	"inkwell/internal/services"
)

// QueueConfig binds a worker pool to a named queue.
type QueueConfig struct {
	// Name is the queue to consume.
	Name string
	// Workers is the pool size. Defaults to 1.
	Workers int
	// RatePerMinute caps task executions across the pool. Zero means
	// unlimited.
	RatePerMinute int
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// Queues lists the queues this server consumes. At least one required.
	Queues []QueueConfig
	// VisibilityTimeout is the lease granted on dequeue; a task not acked
	// within it is redelivered. Must exceed the longest hard time limit.
	// Defaults to 31 minutes.
	VisibilityTimeout time.Duration
	// MaxTasksPerWorker recycles a worker after it completes this many
	// tasks. Defaults to 1000.
	MaxTasksPerWorker int
	// PollInterval is the idle sleep between dequeue attempts on an empty
	// queue. Defaults to 500ms.
	PollInterval time.Duration
	// MaintenanceInterval drives lease reclamation, retry promotion, and
	// expired-result sweeps. Defaults to 15 seconds.
	MaintenanceInterval time.Duration
	// RetryBackoff computes the delay before a retry attempt. Defaults to
	// exponential growth from five seconds, capped at ten minutes.
	RetryBackoff func(attempt int) time.Duration
	// Encoder overrides the task record codec. Defaults to JSONEncoder.
	Encoder Encoder
	// Logger receives worker diagnostics. Defaults to a no-op logger.
	Logger *slog.Logger
}

func (o *ServerOptions) normalize() {
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 31 * time.Minute
	}
	if o.MaxTasksPerWorker <= 0 {
		o.MaxTasksPerWorker = 1000
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.MaintenanceInterval <= 0 {
		o.MaintenanceInterval = 15 * time.Second
	}
	if o.RetryBackoff == nil {
		o.RetryBackoff = retryBackoff
	}
	if o.Encoder == nil {
		o.Encoder = JSONEncoder{}
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
}

// Server consumes queues and executes registered handlers. Acknowledgment
// is late: a task leaves the started set only after its handler returns, so
// a crashed worker's tasks are redelivered once their lease expires.
type Server struct {
	rdb     redis.UniversalClient
	mux     *Mux
	opts    ServerOptions
	encoder Encoder
	logger  *slog.Logger

	limiters map[string]*rate.Limiter

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds a Server over an established Redis connection.
func NewServer(rdb redis.UniversalClient, mux *Mux, opts ServerOptions) (*Server, error) {
	opts.normalize()
	if len(opts.Queues) == 0 {
		return nil, fmt.Errorf("taskqueue: no queues configured")
	}
	limiters := make(map[string]*rate.Limiter, len(opts.Queues))
	for i := range opts.Queues {
		q := &opts.Queues[i]
		if q.Name == "" {
			return nil, fmt.Errorf("taskqueue: queue %d has no name", i)
		}
		if q.Workers <= 0 {
			q.Workers = 1
		}
		if q.RatePerMinute > 0 {
			limiters[q.Name] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(q.RatePerMinute)), 1)
		}
	}
	return &Server{
		rdb:      rdb,
		mux:      mux,
		opts:     opts,
		encoder:  opts.Encoder,
		logger:   opts.Logger.With(logging.String(logging.FieldComponent, "taskqueue")),
		limiters: limiters,
	}, nil
}

// Start launches the worker pools and the maintenance loop. It returns
// immediately; Stop shuts everything down.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, q := range s.opts.Queues {
		for slot := 0; slot < q.Workers; slot++ {
			s.wg.Add(1)
			go s.superviseWorker(runCtx, q.Name, slot)
		}
	}
	s.wg.Add(1)
	go s.maintenanceLoop(runCtx)
	s.logger.Info("task server started", logging.Int("queues", len(s.opts.Queues)))
}

// Stop cancels all workers and blocks until in-flight handlers return.
func (s *Server) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("task server stopped")
}

// superviseWorker keeps one worker slot populated, replacing the worker
// whenever it recycles after MaxTasksPerWorker completions.
func (s *Server) superviseWorker(ctx context.Context, queue string, slot int) {
	defer s.wg.Done()
	logger := s.logger.With(
		logging.String(logging.FieldQueue, queue),
		logging.Int("slot", slot))
	for ctx.Err() == nil {
		completed := s.runWorker(ctx, queue)
		if ctx.Err() == nil && completed > 0 {
			logger.Debug("worker recycled", logging.Int("completed", completed))
		}
	}
}

// runWorker consumes tasks until the context ends or the recycle bound is
// reached, returning the number of completed tasks.
func (s *Server) runWorker(ctx context.Context, queue string) int {
	keys := keysFor(queue)
	limiter := s.limiters[queue]
	completed := 0
	for completed < s.opts.MaxTasksPerWorker {
		if ctx.Err() != nil {
			return completed
		}
		raw, err := s.dequeue(ctx, keys)
		if err != nil {
			if ctx.Err() != nil {
				return completed
			}
			s.logger.Warn("dequeue failed",
				logging.String(logging.FieldQueue, queue),
				logging.Error(err))
			s.sleep(ctx, s.opts.PollInterval)
			continue
		}
		if raw == "" {
			s.sleep(ctx, s.opts.PollInterval)
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				// Shutdown while holding a lease; redelivery covers it.
				return completed
			}
		}
		s.execute(ctx, queue, keys, raw)
		completed++
	}
	return completed
}

func (s *Server) dequeue(ctx context.Context, keys queueKeys) (string, error) {
	deadline := time.Now().Add(s.opts.VisibilityTimeout).UnixMilli()
	res, err := dequeueScript.Run(ctx, s.rdb,
		[]string{keys.pending, keys.started},
		strconv.FormatInt(deadline, 10)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	raw, _ := res.(string)
	return raw, nil
}

// execute runs one claimed task through its handler and settles it.
func (s *Server) execute(ctx context.Context, queue string, keys queueKeys, raw string) {
	var task Task
	if err := s.encoder.Decode([]byte(raw), &task); err != nil {
		// Corrupt record: drop the lease, nothing more we can do with it.
		s.rdb.ZRem(ctx, keys.started, raw)
		s.logger.Error("corrupt task record dropped",
			logging.String(logging.FieldQueue, queue),
			logging.Error(err))
		return
	}
	task.StartedAt = time.Now().UnixMilli()
	logger := s.logger.With(
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldQueue, queue),
		logging.String("kind", task.Kind))
	s.writeStatus(ctx, &task, StateStarted)

	reg, err := s.mux.lookup(task.Kind)
	if err != nil {
		task.LastError = err.Error()
		s.settle(ctx, keys, raw, &task, StateFailed)
		logger.Error("task has no handler")
		return
	}

	state := &execState{encoder: s.encoder}
	if reg.opts.SoftTimeLimit > 0 {
		state.soft = make(chan struct{})
	}
	execCtx := withExecState(ctx, state)
	execCtx = services.WithTaskID(execCtx, task.ID)
	execCtx = services.WithQueue(execCtx, queue)

	var cancel context.CancelFunc
	if reg.opts.HardTimeLimit > 0 {
		execCtx, cancel = context.WithTimeout(execCtx, reg.opts.HardTimeLimit)
	} else {
		execCtx, cancel = context.WithCancel(execCtx)
	}
	var softTimer *time.Timer
	if reg.opts.SoftTimeLimit > 0 {
		softTimer = time.AfterFunc(reg.opts.SoftTimeLimit, state.signalSoft)
	}

	handlerErr := runHandler(execCtx, reg.fn, task.Payload)
	if softTimer != nil {
		softTimer.Stop()
	}
	cancel()

	if handlerErr == nil {
		state.mu.Lock()
		task.Result = state.result
		state.mu.Unlock()
		task.CompletedAt = time.Now().UnixMilli()
		s.settle(ctx, keys, raw, &task, StateSucceeded)
		logger.Info("task succeeded",
			logging.Duration("elapsed", time.Duration(task.CompletedAt-task.StartedAt)*time.Millisecond))
		return
	}

	task.LastError = handlerErr.Error()
	if task.Retry < task.MaxRetry && !services.IsRejectable(handlerErr) {
		task.Retry++
		s.scheduleRetry(ctx, keys, raw, &task)
		logger.Warn("task retry scheduled",
			logging.Int("attempt", task.Retry),
			logging.Error(handlerErr))
		return
	}
	task.CompletedAt = time.Now().UnixMilli()
	s.settle(ctx, keys, raw, &task, StateFailed)
	logger.Error("task failed", logging.Error(handlerErr))
}

// runHandler isolates handler panics so a bad task cannot take the worker
// down with it.
func runHandler(ctx context.Context, fn HandlerFunc, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("taskqueue: handler panic: %v", r)
		}
	}()
	return fn(ctx, payload)
}

// settle acks the lease and records the terminal state. Ack happens only
// here, after the handler returned.
func (s *Server) settle(ctx context.Context, keys queueKeys, raw string, task *Task, state State) {
	updated, err := s.encoder.Encode(task)
	if err != nil {
		updated = []byte(raw)
	}
	expiry := time.Now().Add(time.Duration(task.Retention) * time.Second).UnixMilli()
	terminal := keys.succeeded
	if state == StateFailed {
		terminal = keys.failed
	}
	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, keys.started, raw)
	pipe.ZAdd(ctx, terminal, redis.Z{Score: float64(expiry), Member: string(updated)})
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("task settle failed",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err))
	}
	s.writeStatus(ctx, task, state)
}

// scheduleRetry acks the lease and parks the task in the retried set until
// its backoff elapses.
func (s *Server) scheduleRetry(ctx context.Context, keys queueKeys, raw string, task *Task) {
	updated, err := s.encoder.Encode(task)
	if err != nil {
		updated = []byte(raw)
	}
	due := time.Now().Add(s.opts.RetryBackoff(task.Retry)).UnixMilli()
	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, keys.started, raw)
	pipe.ZAdd(ctx, keys.retried, redis.Z{Score: float64(due), Member: string(updated)})
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("retry scheduling failed",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err))
	}
	s.writeStatus(ctx, task, StateRetried)
}

// retryBackoff grows exponentially from five seconds, capped at ten minutes.
func retryBackoff(attempt int) time.Duration {
	backoff := 5 * time.Second
	for i := 1; i < attempt && backoff < 10*time.Minute; i++ {
		backoff *= 2
	}
	if backoff > 10*time.Minute {
		backoff = 10 * time.Minute
	}
	return backoff
}

func (s *Server) writeStatus(ctx context.Context, task *Task, state State) {
	raw, err := s.encoder.Encode(statusFromTask(task, state))
	if err != nil {
		return
	}
	ttl := time.Duration(task.Retention) * time.Second
	if err := s.rdb.Set(ctx, statusKey(task.ID), raw, ttl).Err(); err != nil {
		s.logger.Warn("status write failed",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err))
	}
}

// maintenanceLoop periodically reclaims expired leases, promotes due
// retries, and sweeps expired terminal records across every queue.
func (s *Server) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runMaintenance(ctx)
		}
	}
}

func (s *Server) runMaintenance(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	for _, q := range s.opts.Queues {
		keys := keysFor(q.Name)
		reclaimed, err := requeueDueScript.Run(ctx, s.rdb,
			[]string{keys.started, keys.pending}, now, "100").Int()
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("lease reclaim failed",
				logging.String(logging.FieldQueue, q.Name),
				logging.Error(err))
		} else if reclaimed > 0 {
			s.logger.Info("expired leases reclaimed",
				logging.String(logging.FieldQueue, q.Name),
				logging.Int("count", reclaimed))
		}
		if _, err := requeueDueScript.Run(ctx, s.rdb,
			[]string{keys.retried, keys.pending}, now, "100").Int(); err != nil && ctx.Err() == nil {
			s.logger.Warn("retry promotion failed",
				logging.String(logging.FieldQueue, q.Name),
				logging.Error(err))
		}
		if _, err := sweepExpiredScript.Run(ctx, s.rdb,
			[]string{keys.succeeded, keys.failed}, now).Int(); err != nil && ctx.Err() == nil {
			s.logger.Warn("result sweep failed",
				logging.String(logging.FieldQueue, q.Name),
				logging.Error(err))
		}
	}
}

func (s *Server) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
