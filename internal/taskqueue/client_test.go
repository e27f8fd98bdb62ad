package taskqueue_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"inkwell/internal/taskqueue"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestSubmitAssignsIDAndTracksPending(t *testing.T) {
	rdb := newTestRedis(t)
	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{})

	id, err := client.Submit(context.Background(), "pdf_processing", "process_documents",
		map[string]any{"paths": []string{"a.pdf"}}, taskqueue.SubmitPolicy{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	status, err := client.GetStatus(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, taskqueue.StatePending, status.State)
	require.Equal(t, "process_documents", status.Kind)
	require.Equal(t, "pdf_processing", status.Queue)

	depth, err := client.QueueDepth(context.Background(), "pdf_processing")
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
}

func TestSubmitHonorsExplicitTaskID(t *testing.T) {
	rdb := newTestRedis(t)
	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{})

	id, err := client.Submit(context.Background(), "maintenance", "cleanup_all_task_directories",
		nil, taskqueue.SubmitPolicy{TaskID: "fixed-id"})
	require.NoError(t, err)
	require.Equal(t, "fixed-id", id)
}

func TestSubmitValidatesQueueAndKind(t *testing.T) {
	rdb := newTestRedis(t)
	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{})

	_, err := client.Submit(context.Background(), "", "kind", nil, taskqueue.SubmitPolicy{})
	require.Error(t, err)
	_, err = client.Submit(context.Background(), "queue", "", nil, taskqueue.SubmitPolicy{})
	require.Error(t, err)
}

func TestGetStatusUnknownTask(t *testing.T) {
	rdb := newTestRedis(t)
	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{})

	_, err := client.GetStatus(context.Background(), "nope")
	require.ErrorIs(t, err, taskqueue.ErrTaskNotFound)
}

func TestParseState(t *testing.T) {
	for _, state := range taskqueue.AllStates {
		parsed, err := taskqueue.ParseState(state.String())
		require.NoError(t, err)
		require.Equal(t, state, parsed)
	}
	_, err := taskqueue.ParseState("bogus")
	require.ErrorIs(t, err, taskqueue.ErrUnknownState)

	require.True(t, taskqueue.StateSucceeded.Terminal())
	require.True(t, taskqueue.StateFailed.Terminal())
	require.False(t, taskqueue.StateStarted.Terminal())
}
