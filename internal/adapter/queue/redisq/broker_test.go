package redisq_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/file-classifier/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/file-classifier/internal/adapter/redisstore"
	"github.com/fairyhunter13/file-classifier/internal/domain"
)

func newBroker(t *testing.T) (*redisq.Broker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := redisstore.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return redisq.New(store, time.Hour), mr
}

func TestBroker_Submit(t *testing.T) {
	b, mr := newBroker(t)
	ctx := context.Background()

	taskID, resultQueue, err := b.Submit(ctx, "files/temp/abc_doc.pdf", "doc.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, taskID)
	require.Equal(t, redisq.ResultQueue(taskID), resultQueue)

	// Status record is pending and TTL-bounded.
	rec, err := b.GetStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskPending, rec.Status)
	require.Equal(t, "doc.pdf", rec.Filename)
	require.Greater(t, mr.TTL(redisq.StatusKey(taskID)), time.Duration(0))
	require.Greater(t, mr.TTL(redisq.DataKey(taskID)), time.Duration(0))

	n, err := b.QueueLength(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestBroker_SubmitMintsFreshIDs(t *testing.T) {
	b, _ := newBroker(t)
	ctx := context.Background()

	id1, _, err := b.Submit(ctx, "a", "a.pdf")
	require.NoError(t, err)
	id2, _, err := b.Submit(ctx, "b", "b.pdf")
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}

func TestBroker_ClaimNext(t *testing.T) {
	b, _ := newBroker(t)
	ctx := context.Background()

	taskID, _, err := b.Submit(ctx, "files/temp/x_doc.pdf", "doc.pdf")
	require.NoError(t, err)

	task, err := b.ClaimNext(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, taskID, task.TaskID)
	require.Equal(t, domain.TaskProcessing, task.Status)

	rec, err := b.GetStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskProcessing, rec.Status)

	// Empty queue: (nil, nil), no error.
	task, err = b.ClaimNext(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, task)
}

func TestBroker_FIFOWithSingleConsumer(t *testing.T) {
	b, _ := newBroker(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		id, _, err := b.Submit(ctx, "files/temp/"+name, name)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, want := range ids {
		task, err := b.ClaimNext(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, task)
		require.Equal(t, want, task.TaskID)
	}
}

func TestBroker_PublishResult(t *testing.T) {
	b, mr := newBroker(t)
	ctx := context.Background()

	taskID, resultQueue, err := b.Submit(ctx, "files/temp/x_doc.pdf", "doc.pdf")
	require.NoError(t, err)
	task, err := b.ClaimNext(ctx, 100*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, b.PublishResult(ctx, task, "invoice", true, ""))

	rec, err := b.GetStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskCompleted, rec.Status)
	require.Equal(t, "invoice", rec.PredictedType)
	require.NotNil(t, rec.Success)
	require.True(t, *rec.Success)

	// Unconsumed results carry a TTL so orphans expire with the task.
	require.Greater(t, mr.TTL(resultQueue), time.Duration(0))

	res, err := b.AwaitResult(ctx, resultQueue, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, "invoice", res.PredictedType)
	require.True(t, res.Success)
}

func TestBroker_PublishFailure(t *testing.T) {
	b, _ := newBroker(t)
	ctx := context.Background()

	taskID, resultQueue, err := b.Submit(ctx, "files/temp/x_doc.pdf", "doc.pdf")
	require.NoError(t, err)
	task, err := b.ClaimNext(ctx, 100*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, b.PublishResult(ctx, task, "unknown", false, "text extraction failed"))

	rec, err := b.GetStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskFailed, rec.Status)
	require.Equal(t, "unknown", rec.PredictedType)
	require.NotNil(t, rec.Success)
	require.False(t, *rec.Success)
	require.Equal(t, "text extraction failed", rec.Error)

	res, err := b.AwaitResult(ctx, resultQueue, 100*time.Millisecond)
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestBroker_StatusMonotonicUnderRedelivery(t *testing.T) {
	b, mr := newBroker(t)
	ctx := context.Background()

	taskID, _, err := b.Submit(ctx, "files/temp/x_doc.pdf", "doc.pdf")
	require.NoError(t, err)
	task, err := b.ClaimNext(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, b.PublishResult(ctx, task, "invoice", true, ""))

	// Redeliver the same payload; the stale claim must not drag the status
	// back to processing.
	tb, err := json.Marshal(task)
	require.NoError(t, err)
	_, err = mr.Lpush(redisq.TaskQueue, string(tb))
	require.NoError(t, err)
	reclaimed, err := b.ClaimNext(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)

	rec, err := b.GetStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskCompleted, rec.Status)
}

func TestBroker_GetStatusNotFound(t *testing.T) {
	b, _ := newBroker(t)
	_, err := b.GetStatus(context.Background(), "no-such-task-id")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBroker_AwaitResultTimeout(t *testing.T) {
	b, _ := newBroker(t)
	res, err := b.AwaitResult(context.Background(), "results/none", 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, res)
}
