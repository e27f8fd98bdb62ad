package taskqueue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"inkwell/internal/taskqueue"
)

func newTestServer(t *testing.T, rdb redis.UniversalClient, mux *taskqueue.Mux, queues ...taskqueue.QueueConfig) *taskqueue.Server {
	t.Helper()
	srv, err := taskqueue.NewServer(rdb, mux, taskqueue.ServerOptions{
		Queues:              queues,
		PollInterval:        5 * time.Millisecond,
		MaintenanceInterval: 10 * time.Millisecond,
		RetryBackoff:        func(int) time.Duration { return time.Millisecond },
	})
	require.NoError(t, err)
	srv.Start(context.Background())
	t.Cleanup(srv.Stop)
	return srv
}

func waitForState(t *testing.T, client *taskqueue.Client, id string, want taskqueue.State) taskqueue.Status {
	t.Helper()
	var status taskqueue.Status
	require.Eventually(t, func() bool {
		got, err := client.GetStatus(context.Background(), id)
		if err != nil {
			return false
		}
		status = got
		return got.State == want
	}, 5*time.Second, 5*time.Millisecond)
	return status
}

func TestServerExecutesTaskAndStoresResult(t *testing.T) {
	rdb := newTestRedis(t)
	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{})

	mux := taskqueue.NewMux()
	mux.Handle("echo", func(ctx context.Context, payload []byte) error {
		return taskqueue.SetResult(ctx, map[string]string{"echo": string(payload)})
	}, taskqueue.HandlerOptions{})
	newTestServer(t, rdb, mux, taskqueue.QueueConfig{Name: "file_scanning", Workers: 2})

	id, err := client.Submit(context.Background(), "file_scanning", "echo", "hello", taskqueue.SubmitPolicy{})
	require.NoError(t, err)

	status := waitForState(t, client, id, taskqueue.StateSucceeded)
	require.Contains(t, string(status.Result), "hello")
	require.NotZero(t, status.StartedAt)
	require.NotZero(t, status.CompletedAt)
}

func TestServerRetriesThenSucceeds(t *testing.T) {
	rdb := newTestRedis(t)
	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{})

	var attempts atomic.Int32
	mux := taskqueue.NewMux()
	mux.Handle("flaky", func(ctx context.Context, payload []byte) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}, taskqueue.HandlerOptions{})
	newTestServer(t, rdb, mux, taskqueue.QueueConfig{Name: "file_scanning", Workers: 1})

	id, err := client.Submit(context.Background(), "file_scanning", "flaky", nil,
		taskqueue.SubmitPolicy{MaxRetry: 1})
	require.NoError(t, err)

	waitForState(t, client, id, taskqueue.StateSucceeded)
	require.Equal(t, int32(2), attempts.Load())
}

func TestServerFailsWhenRetriesExhausted(t *testing.T) {
	rdb := newTestRedis(t)
	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{})

	mux := taskqueue.NewMux()
	mux.Handle("doomed", func(ctx context.Context, payload []byte) error {
		return errors.New("broken conversion engine")
	}, taskqueue.HandlerOptions{})
	newTestServer(t, rdb, mux, taskqueue.QueueConfig{Name: "pdf_processing", Workers: 1})

	id, err := client.Submit(context.Background(), "pdf_processing", "doomed", nil, taskqueue.SubmitPolicy{})
	require.NoError(t, err)

	status := waitForState(t, client, id, taskqueue.StateFailed)
	require.Contains(t, status.LastError, "broken conversion engine")
}

func TestServerFailsUnknownKindWithoutRetry(t *testing.T) {
	rdb := newTestRedis(t)
	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{})

	newTestServer(t, rdb, taskqueue.NewMux(), taskqueue.QueueConfig{Name: "maintenance", Workers: 1})

	id, err := client.Submit(context.Background(), "maintenance", "mystery", nil,
		taskqueue.SubmitPolicy{MaxRetry: 3})
	require.NoError(t, err)

	status := waitForState(t, client, id, taskqueue.StateFailed)
	require.Contains(t, status.LastError, "no handler")
}

func TestServerHardTimeLimitCancelsHandler(t *testing.T) {
	rdb := newTestRedis(t)
	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{})

	mux := taskqueue.NewMux()
	mux.Handle("sleepy", func(ctx context.Context, payload []byte) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
			return nil
		}
	}, taskqueue.HandlerOptions{HardTimeLimit: 20 * time.Millisecond})
	newTestServer(t, rdb, mux, taskqueue.QueueConfig{Name: "pdf_processing", Workers: 1})

	id, err := client.Submit(context.Background(), "pdf_processing", "sleepy", nil, taskqueue.SubmitPolicy{})
	require.NoError(t, err)

	status := waitForState(t, client, id, taskqueue.StateFailed)
	require.Contains(t, status.LastError, "deadline")
}

func TestServerSoftTimeLimitSignalsHandler(t *testing.T) {
	rdb := newTestRedis(t)
	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{})

	mux := taskqueue.NewMux()
	mux.Handle("graceful", func(ctx context.Context, payload []byte) error {
		select {
		case <-taskqueue.SoftTimeout(ctx):
			return taskqueue.SetResult(ctx, map[string]string{"status": "wound down"})
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
			return errors.New("soft limit never fired")
		}
	}, taskqueue.HandlerOptions{
		SoftTimeLimit: 10 * time.Millisecond,
		HardTimeLimit: 5 * time.Second,
	})
	newTestServer(t, rdb, mux, taskqueue.QueueConfig{Name: "pdf_processing", Workers: 1})

	id, err := client.Submit(context.Background(), "pdf_processing", "graceful", nil, taskqueue.SubmitPolicy{})
	require.NoError(t, err)

	status := waitForState(t, client, id, taskqueue.StateSucceeded)
	require.Contains(t, string(status.Result), "wound down")
}

func TestServerRecoversHandlerPanic(t *testing.T) {
	rdb := newTestRedis(t)
	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{})

	mux := taskqueue.NewMux()
	mux.Handle("explosive", func(ctx context.Context, payload []byte) error {
		panic("boom")
	}, taskqueue.HandlerOptions{})
	newTestServer(t, rdb, mux, taskqueue.QueueConfig{Name: "maintenance", Workers: 1})

	id, err := client.Submit(context.Background(), "maintenance", "explosive", nil, taskqueue.SubmitPolicy{})
	require.NoError(t, err)

	status := waitForState(t, client, id, taskqueue.StateFailed)
	require.Contains(t, status.LastError, "panic")
}

func TestRecordResultCapturesInlineResult(t *testing.T) {
	ctx, fetch := taskqueue.RecordResult(context.Background())
	require.Nil(t, fetch())

	require.NoError(t, taskqueue.SetResult(ctx, map[string]string{"status": "success"}))
	require.Contains(t, string(fetch()), `"success"`)
}

func TestMuxRejectsDuplicateRegistration(t *testing.T) {
	mux := taskqueue.NewMux()
	mux.Handle("once", func(context.Context, []byte) error { return nil }, taskqueue.HandlerOptions{})
	require.Panics(t, func() {
		mux.Handle("once", func(context.Context, []byte) error { return nil }, taskqueue.HandlerOptions{})
	})
}
