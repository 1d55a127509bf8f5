package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetcore/internal/infra/queue/memory"
	"assetcore/pkg/domain"
)

func TestOpenDefaultsToMemory(t *testing.T) {
	q, err := Open(context.Background(), Config{Capacity: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	mem, ok := q.(*memory.Queue)
	require.True(t, ok)

	require.NoError(t, q.Publish(context.Background(), domain.AnalysisJob{AnalysisID: "an-1"}))
	assert.Equal(t, 1, mem.Len())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "kafka"}, nil)
	assert.ErrorContains(t, err, "unknown queue driver")
}

func TestOpenPubSubNeedsProject(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: DriverPubSub}, nil)
	assert.Error(t, err)
}
