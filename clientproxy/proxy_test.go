package clientproxy_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedloop/fedloop/clientproxy"
	"github.com/fedloop/fedloop/node"
	pkgerrors "github.com/fedloop/fedloop/pkg/errors"
	"github.com/fedloop/fedloop/session"
)

type stubTrainer struct {
	numSamples int
	delta      []float64
	metric     float64
	err        error
}

func (s stubTrainer) Train(context.Context, []float64) (int, []float64, float64, error) {
	return s.numSamples, s.delta, s.metric, s.err
}

func TestRunRound(t *testing.T) {
	t.Parallel()

	n := node.NewNode("worker-1", "10.0.0.1:9000")
	proxy := clientproxy.New(n, stubTrainer{
		numSamples: 120,
		delta:      []float64{0.1, 0.2},
		metric:     0.8,
	}, 2, 3)

	update, err := proxy.RunRound(context.Background(), "sess-1", 4, []float64{0, 0})
	require.NoError(t, err)

	assert.Equal(t, "sess-1", update.SessionID)
	assert.Equal(t, n.ID, update.NodeID)
	assert.Equal(t, 4, update.Round)
	assert.Equal(t, 120, update.NumSamples)
	assert.Equal(t, []float64{0.1, 0.2}, update.Delta)
	assert.True(t, proxy.Healthy())
}

func TestRunRoundMalformedStrikes(t *testing.T) {
	t.Parallel()

	n := node.NewNode("worker-1", "")
	proxy := clientproxy.New(n, stubTrainer{
		numSamples: 10,
		delta:      []float64{1, 2, 3}, // schema is 2
	}, 2, 2)

	for i := 0; i < 2; i++ {
		_, err := proxy.RunRound(context.Background(), "sess-1", 1, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrMalformedUpdate)
	}

	assert.False(t, proxy.Healthy())
	assert.Equal(t, 2, proxy.Strikes())

	_, err := proxy.RunRound(context.Background(), "sess-1", 1, nil)
	assert.ErrorIs(t, err, pkgerrors.ErrNodeExcluded)
}

func TestRunRoundNonFiniteDelta(t *testing.T) {
	t.Parallel()

	proxy := clientproxy.New(node.NewNode("worker-1", ""), stubTrainer{
		numSamples: 10,
		delta:      []float64{math.NaN(), 1},
	}, 2, 3)

	_, err := proxy.RunRound(context.Background(), "sess-1", 1, nil)
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedUpdate)
	assert.Equal(t, 1, proxy.Strikes())
}

func TestValidateDelta(t *testing.T) {
	t.Parallel()

	assert.NoError(t, clientproxy.ValidateDelta([]float64{1, 2, 3}, 3))
	assert.ErrorIs(t, clientproxy.ValidateDelta([]float64{1, 2}, 3), pkgerrors.ErrMalformedUpdate)
	assert.ErrorIs(t, clientproxy.ValidateDelta([]float64{1, math.Inf(1), 3}, 3), pkgerrors.ErrMalformedUpdate)
	assert.ErrorIs(t, clientproxy.ValidateDelta(nil, 1), pkgerrors.ErrMalformedUpdate)
}

func TestDefaultMalformedLimit(t *testing.T) {
	t.Parallel()

	proxy := clientproxy.New(node.NewNode("w", ""), stubTrainer{numSamples: 1, delta: nil}, 1, 0)

	for i := 0; i < session.DefMalformedLimit; i++ {
		_, err := proxy.RunRound(context.Background(), "s", 1, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrMalformedUpdate)
	}
	assert.False(t, proxy.Healthy())
}
