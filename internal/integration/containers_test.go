//go:build integration

// End-to-end broker flow against a real Redis container. Run with
// `go test -tags integration ./internal/integration/...` (requires Docker).
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fairyhunter13/file-classifier/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/file-classifier/internal/adapter/redisstore"
	"github.com/fairyhunter13/file-classifier/internal/domain"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort(nat.Port("6379/tcp")).WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return host + ":" + port.Port()
}

func Test_TaskLifecycle_AgainstRedis(t *testing.T) {
	addr := startRedis(t)
	store := redisstore.New(addr)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	broker := redisq.New(store, time.Hour)

	taskID, resultQueue, err := broker.Submit(ctx, "files/temp/x_doc.pdf", "doc.pdf")
	require.NoError(t, err)

	rec, err := broker.GetStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskPending, rec.Status)

	task, err := broker.ClaimNext(ctx, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, taskID, task.TaskID)

	rec, err = broker.GetStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskProcessing, rec.Status)

	require.NoError(t, broker.PublishResult(ctx, task, domain.LabelBankStatement, true, ""))

	res, err := broker.AwaitResult(ctx, resultQueue, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, domain.LabelBankStatement, res.PredictedType)
	require.True(t, res.Success)

	rec, err = broker.GetStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskCompleted, rec.Status)

	// The queue is drained and a second consumer sees nothing.
	task, err = broker.ClaimNext(ctx, 500*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, task)
}
