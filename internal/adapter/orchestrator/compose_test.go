package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/file-classifier/internal/adapter/orchestrator"
)

func TestStatic(t *testing.T) {
	s := orchestrator.NewStatic(3)

	n, err := s.WorkerCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.NoError(t, s.SetReplicas(context.Background(), 7))
	n, err = s.WorkerCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, n)
}
