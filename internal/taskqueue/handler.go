package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HandlerFunc executes one task attempt. The payload is the submitted bytes;
// returning a non-nil error schedules a retry or moves the task to failed.
type HandlerFunc func(ctx context.Context, payload []byte) error

// HandlerOptions carries per-kind execution limits.
type HandlerOptions struct {
	// SoftTimeLimit signals the handler via SoftTimeout before the hard
	// deadline so it can finish cleanly. Zero disables the signal.
	SoftTimeLimit time.Duration
	// HardTimeLimit cancels the handler context. Zero means no deadline.
	HardTimeLimit time.Duration
}

type registration struct {
	fn   HandlerFunc
	opts HandlerOptions
}

// Mux routes tasks to handlers by kind.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

// NewMux returns an empty handler mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]registration)}
}

// Handle registers a handler for a task kind. Registering the same kind
// twice panics, matching the treatment of duplicate HTTP routes.
func (m *Mux) Handle(kind string, fn HandlerFunc, opts HandlerOptions) {
	if kind == "" {
		panic("taskqueue: empty task kind")
	}
	if fn == nil {
		panic("taskqueue: nil handler for kind " + kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.handlers[kind]; dup {
		panic("taskqueue: duplicate handler for kind " + kind)
	}
	m.handlers[kind] = registration{fn: fn, opts: opts}
}

func (m *Mux) lookup(kind string) (registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.handlers[kind]
	if !ok {
		return registration{}, fmt.Errorf("%w: %s", ErrNoHandler, kind)
	}
	return reg, nil
}

// execState is the per-attempt mutable state a handler can touch through
// the context helpers below.
type execState struct {
	mu       sync.Mutex
	encoder  Encoder
	result   []byte
	progress float64
	soft     chan struct{}
	softOnce sync.Once
}

func (s *execState) signalSoft() {
	if s.soft == nil {
		return
	}
	s.softOnce.Do(func() { close(s.soft) })
}

type execStateKey struct{}

func withExecState(ctx context.Context, s *execState) context.Context {
	return context.WithValue(ctx, execStateKey{}, s)
}

func execStateFrom(ctx context.Context) *execState {
	s, _ := ctx.Value(execStateKey{}).(*execState)
	return s
}

// SetResult records the task result from within a handler. The value is
// serialized with the server's encoder and surfaced through GetStatus once
// the task succeeds. Calling it outside a handler is a no-op.
func SetResult(ctx context.Context, v any) error {
	s := execStateFrom(ctx)
	if s == nil {
		return nil
	}
	encoder := s.encoder
	if encoder == nil {
		encoder = JSONEncoder{}
	}
	raw, err := encoder.Encode(v)
	if err != nil {
		return fmt.Errorf("taskqueue: encode result: %w", err)
	}
	s.mu.Lock()
	s.result = raw
	s.mu.Unlock()
	return nil
}

// RecordResult returns a context that captures SetResult calls made by a
// HandlerFunc invoked inline, outside a Server, plus a fetch function for
// the encoded bytes. The fetch returns nil until a result is set.
func RecordResult(ctx context.Context) (context.Context, func() []byte) {
	s := &execState{encoder: JSONEncoder{}}
	fetch := func() []byte {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.result
	}
	return withExecState(ctx, s), fetch
}

// SetProgress records a completion fraction in [0, 1] for long-running
// handlers. Calling it outside a handler is a no-op.
func SetProgress(ctx context.Context, fraction float64) {
	s := execStateFrom(ctx)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.progress = fraction
	s.mu.Unlock()
}

// SoftTimeout returns a channel closed when the task's soft time limit
// elapses. Handlers select on it to wind down before the hard deadline
// cancels the context. Outside a handler, or when no soft limit is set, the
// channel never closes.
func SoftTimeout(ctx context.Context) <-chan struct{} {
	s := execStateFrom(ctx)
	if s == nil || s.soft == nil {
		return make(chan struct{})
	}
	return s.soft
}
