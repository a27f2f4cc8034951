package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedloop/fedloop/pkg/registry"
)

func TestInMemoryRegistry(t *testing.T) {
	t.Parallel()
	reg := registry.NewInMemoryRegistry()
	ctx := context.Background()

	_, _, err := reg.GetLatestModel(ctx, "sess-1")
	assert.ErrorIs(t, err, registry.ErrModelNotFound)

	_, err = reg.PutModel(ctx, "sess-1", nil, nil)
	assert.ErrorIs(t, err, registry.ErrEmptyWeights)

	first, err := reg.PutModel(ctx, "sess-1", []float64{1, 2}, map[string]float64{"metric": 0.8})
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := reg.PutModel(ctx, "sess-1", []float64{3, 4}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	weights, meta, err := reg.GetLatestModel(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, weights)
	assert.Equal(t, second, meta["version_id"])
}

type countingRegistry struct {
	mu       sync.Mutex
	calls    int
	failures int
	inner    registry.Registry
}

func (c *countingRegistry) PutModel(ctx context.Context, sessionID string, weights []float64, metrics map[string]float64) (string, error) {
	c.mu.Lock()
	c.calls++
	fail := c.calls <= c.failures
	c.mu.Unlock()

	if fail {
		return "", errors.New("transient failure")
	}

	return c.inner.PutModel(ctx, sessionID, weights, metrics)
}

func (c *countingRegistry) GetLatestModel(ctx context.Context, tag string) ([]float64, registry.Metadata, error) {
	return c.inner.GetLatestModel(ctx, tag)
}

func TestRetryingRecoversFromTransientFailure(t *testing.T) {
	t.Parallel()

	inner := &countingRegistry{failures: 1, inner: registry.NewInMemoryRegistry()}
	reg := registry.NewRetrying(inner, 3)

	id, err := reg.PutModel(context.Background(), "sess-1", []float64{1}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryingGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	inner := &countingRegistry{failures: 100, inner: registry.NewInMemoryRegistry()}
	reg := registry.NewRetrying(inner, 2)

	_, err := reg.PutModel(context.Background(), "sess-1", []float64{1}, nil)
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
