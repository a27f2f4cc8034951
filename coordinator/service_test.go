package coordinator_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedloop/fedloop/coordinator"
	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/aggregate"
	"github.com/fedloop/fedloop/pkg/drift"
	pkgerrors "github.com/fedloop/fedloop/pkg/errors"
	"github.com/fedloop/fedloop/pkg/mqtt"
	"github.com/fedloop/fedloop/pkg/registry"
	"github.com/fedloop/fedloop/pkg/storage"
	"github.com/fedloop/fedloop/session"
)

type mockPubSub struct {
	mu        sync.Mutex
	published map[string]int
}

func newMockPubSub() *mockPubSub {
	return &mockPubSub{published: make(map[string]int)}
}

func (m *mockPubSub) Publish(_ context.Context, topic string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[topic]++

	return nil
}

func (m *mockPubSub) Subscribe(_ context.Context, _ string, _ mqtt.Handler) error {
	return nil
}

func (m *mockPubSub) SubscribeRaw(_ context.Context, _ string, _ mqtt.RawHandler) error {
	return nil
}

func (m *mockPubSub) Unsubscribe(_ context.Context, _ string) error {
	return nil
}

func (m *mockPubSub) Disconnect(_ context.Context) error {
	return nil
}

func (m *mockPubSub) count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.published[topic]
}

type flakyRegistry struct {
	mu       sync.Mutex
	failures int
	inner    registry.Registry
}

func (f *flakyRegistry) PutModel(ctx context.Context, sessionID string, weights []float64, metrics map[string]float64) (string, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()

		return "", errors.New("registry down")
	}
	f.mu.Unlock()

	return f.inner.PutModel(ctx, sessionID, weights, metrics)
}

func (f *flakyRegistry) GetLatestModel(ctx context.Context, tag string) ([]float64, registry.Metadata, error) {
	return f.inner.GetLatestModel(ctx, tag)
}

type testEnv struct {
	svc         coordinator.Service
	pubsub      *mockPubSub
	registry    *flakyRegistry
	checkpoints *coordinator.CheckpointStore
}

func setupTestService(t *testing.T, registryFailures int) testEnv {
	t.Helper()

	checkpoints, err := coordinator.NewCheckpointStore(t.TempDir())
	require.NoError(t, err)

	monitor, err := drift.NewMonitor(drift.Config{})
	require.NoError(t, err)

	reg := &flakyRegistry{
		failures: registryFailures,
		inner:    registry.NewInMemoryRegistry(),
	}
	pubsub := newMockPubSub()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := coordinator.NewService(
		storage.NewSessionRepository(storage.NewInMemoryStorage()),
		storage.NewNodeRepository(storage.NewInMemoryStorage()),
		aggregate.NewFedAvg(),
		monitor,
		reg,
		checkpoints,
		pubsub,
		coordinator.NopTelemetry(),
		logger,
	)

	return testEnv{
		svc:         svc,
		pubsub:      pubsub,
		registry:    reg,
		checkpoints: checkpoints,
	}
}

func testConfig(cluster string) session.Config {
	return session.Config{
		Cluster:      cluster,
		NumRounds:    2,
		MinClients:   2,
		RoundTimeout: time.Minute,
		ModelSchema:  3,
	}
}

func registerNodes(t *testing.T, svc coordinator.Service, sessionID string, count int) []node.Node {
	t.Helper()

	nodes := make([]node.Node, 0, count)
	for i := 0; i < count; i++ {
		n, err := svc.CreateNode(context.Background(), "", "")
		require.NoError(t, err)
		require.NoError(t, svc.RegisterClient(context.Background(), sessionID, n))
		nodes = append(nodes, n)
	}

	return nodes
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	sess, err := env.svc.StartSession(ctx, testConfig("edge-eu-1"), session.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, session.Running, sess.State)
	assert.Equal(t, 1, sess.OpenRound)
	assert.NotEmpty(t, sess.Name)
	assert.Equal(t, 1, env.pubsub.count("fedloop/clusters/edge-eu-1/rounds/start"))

	nodes := registerNodes(t, env.svc, sess.ID, 2)

	for round := 1; round <= 2; round++ {
		for _, n := range nodes {
			err := env.svc.SubmitUpdate(ctx, session.ClientUpdate{
				SessionID:  sess.ID,
				NodeID:     n.ID,
				Round:      round,
				NumSamples: 100,
				Delta:      []float64{0.1, 0.2, 0.3},
				Metric:     0.8,
			})
			require.NoError(t, err)
		}
	}

	final, err := env.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Succeeded, final.State)
	assert.Equal(t, 2, final.ClosedRounds)
	assert.NotEmpty(t, final.ModelVersion)
	assert.False(t, final.FinishTime.IsZero())
	assert.Equal(t, 1, env.pubsub.count("fedloop/models/promoted"))

	// Final weights are the sum of both round deltas.
	weights, _, err := env.registry.GetLatestModel(ctx, sess.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, weights[0], 1e-9)
	assert.InDelta(t, 0.4, weights[1], 1e-9)
	assert.InDelta(t, 0.6, weights[2], 1e-9)

	// Cluster is released for the next session.
	_, err = env.svc.StartSession(ctx, testConfig("edge-eu-1"), session.TriggerManual)
	require.NoError(t, err)
}

func TestStartSessionSingleConcurrency(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.StartSession(ctx, testConfig("edge-eu-1"), session.TriggerManual); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)

	// A different cluster is not blocked.
	_, err := env.svc.StartSession(ctx, testConfig("edge-us-1"), session.TriggerManual)
	require.NoError(t, err)
}

func TestSubmitUpdateRejections(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	sess, err := env.svc.StartSession(ctx, testConfig("edge-eu-1"), session.TriggerManual)
	require.NoError(t, err)
	nodes := registerNodes(t, env.svc, sess.ID, 2)

	valid := session.ClientUpdate{
		SessionID:  sess.ID,
		NodeID:     nodes[0].ID,
		Round:      1,
		NumSamples: 10,
		Delta:      []float64{1, 2, 3},
	}

	stale := valid
	stale.Round = 7
	assert.ErrorIs(t, env.svc.SubmitUpdate(ctx, stale), pkgerrors.ErrStaleRound)

	unknown := valid
	unknown.NodeID = "ghost"
	assert.ErrorIs(t, env.svc.SubmitUpdate(ctx, unknown), pkgerrors.ErrNodeNotRegistered)

	require.NoError(t, env.svc.SubmitUpdate(ctx, valid))
	assert.ErrorIs(t, env.svc.SubmitUpdate(ctx, valid), pkgerrors.ErrDuplicateUpdate)

	missing := session.ClientUpdate{Round: 1}
	assert.ErrorIs(t, env.svc.SubmitUpdate(ctx, missing), pkgerrors.ErrInvalidData)

	unknownSession := valid
	unknownSession.SessionID = "nope"
	assert.ErrorIs(t, env.svc.SubmitUpdate(ctx, unknownSession), pkgerrors.ErrNotFound)
}

func TestMalformedUpdatesExcludeNode(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	cfg := testConfig("edge-eu-1")
	cfg.MalformedLimit = 2
	sess, err := env.svc.StartSession(ctx, cfg, session.TriggerManual)
	require.NoError(t, err)
	nodes := registerNodes(t, env.svc, sess.ID, 2)

	bad := session.ClientUpdate{
		SessionID:  sess.ID,
		NodeID:     nodes[0].ID,
		Round:      1,
		NumSamples: 10,
		Delta:      []float64{1, 2}, // wrong shape
	}

	assert.ErrorIs(t, env.svc.SubmitUpdate(ctx, bad), pkgerrors.ErrMalformedUpdate)
	assert.ErrorIs(t, env.svc.SubmitUpdate(ctx, bad), pkgerrors.ErrMalformedUpdate)

	// Past the limit the node is out for the rest of the session, even
	// with a well-formed update.
	good := bad
	good.Delta = []float64{1, 2, 3}
	assert.ErrorIs(t, env.svc.SubmitUpdate(ctx, good), pkgerrors.ErrNodeExcluded)

	// The session itself is unaffected.
	current, err := env.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Running, current.State)
	assert.Contains(t, current.Excluded, nodes[0].ID)
}

func TestRoundTimeoutRetryExhaustion(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	cfg := session.Config{
		Cluster:         "edge-eu-1",
		NumRounds:       3,
		MinClients:      2,
		RoundTimeout:    time.Second,
		MaxRoundRetries: 1,
		ModelSchema:     1,
	}
	sess, err := env.svc.StartSession(ctx, cfg, session.TriggerManual)
	require.NoError(t, err)
	nodes := registerNodes(t, env.svc, sess.ID, 1)

	// One update is below the quorum of two.
	require.NoError(t, env.svc.SubmitUpdate(ctx, session.ClientUpdate{
		SessionID:  sess.ID,
		NodeID:     nodes[0].ID,
		Round:      1,
		NumSamples: 10,
		Delta:      []float64{0.5},
	}))

	require.Eventually(t, func() bool {
		current, err := env.svc.GetSession(ctx, sess.ID)

		return err == nil && current.State == session.Failed
	}, 5*time.Second, 50*time.Millisecond)

	final, err := env.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, coordinator.KindInsufficientClients, final.FailureKind)
	// The retry got a fresh round number before the session failed.
	assert.Equal(t, 2, final.FailedRound)

	// Late submissions are rejected.
	err = env.svc.SubmitUpdate(ctx, session.ClientUpdate{
		SessionID:  sess.ID,
		NodeID:     nodes[0].ID,
		Round:      2,
		NumSamples: 10,
		Delta:      []float64{0.5},
	})
	assert.ErrorIs(t, err, pkgerrors.ErrSessionNotRunning)

	// Failure releases the cluster.
	_, err = env.svc.StartSession(ctx, cfg, session.TriggerManual)
	require.NoError(t, err)
}

func TestConcurrentSubmitsCloseRoundOnce(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	cfg := testConfig("edge-eu-1")
	cfg.NumRounds = 5
	cfg.MinClients = 3
	sess, err := env.svc.StartSession(ctx, cfg, session.TriggerManual)
	require.NoError(t, err)
	nodes := registerNodes(t, env.svc, sess.ID, 6)

	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = env.svc.SubmitUpdate(ctx, session.ClientUpdate{
				SessionID:  sess.ID,
				NodeID:     id,
				Round:      1,
				NumSamples: 10,
				Delta:      []float64{1, 1, 1},
			})
		}(n.ID)
	}
	wg.Wait()

	current, err := env.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.ClosedRounds)
	assert.Equal(t, 2, current.OpenRound)
}

func TestAbortSession(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	sess, err := env.svc.StartSession(ctx, testConfig("edge-eu-1"), session.TriggerManual)
	require.NoError(t, err)
	nodes := registerNodes(t, env.svc, sess.ID, 1)

	require.NoError(t, env.svc.AbortSession(ctx, sess.ID))

	final, err := env.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Aborted, final.State)
	assert.Equal(t, coordinator.KindAborted, final.FailureKind)

	// Submissions racing with the abort are rejected, not silently
	// dropped into a closed round.
	err = env.svc.SubmitUpdate(ctx, session.ClientUpdate{
		SessionID:  sess.ID,
		NodeID:     nodes[0].ID,
		Round:      1,
		NumSamples: 10,
		Delta:      []float64{1, 2, 3},
	})
	assert.ErrorIs(t, err, pkgerrors.ErrSessionAborted)

	assert.ErrorIs(t, env.svc.AbortSession(ctx, sess.ID), pkgerrors.ErrSessionNotRunning)

	_, err = env.svc.StartSession(ctx, testConfig("edge-eu-1"), session.TriggerManual)
	require.NoError(t, err)
}

func TestRegistryFailureKeepsCheckpoint(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 1)
	ctx := context.Background()

	cfg := session.Config{
		Cluster:      "edge-eu-1",
		NumRounds:    1,
		MinClients:   1,
		RoundTimeout: time.Minute,
		ModelSchema:  2,
	}
	sess, err := env.svc.StartSession(ctx, cfg, session.TriggerManual)
	require.NoError(t, err)
	nodes := registerNodes(t, env.svc, sess.ID, 1)

	require.NoError(t, env.svc.SubmitUpdate(ctx, session.ClientUpdate{
		SessionID:  sess.ID,
		NodeID:     nodes[0].ID,
		Round:      1,
		NumSamples: 10,
		Delta:      []float64{0.5, 0.5},
		Metric:     0.9,
	}))

	final, err := env.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Failed, final.State)
	assert.Equal(t, coordinator.KindRegistryWrite, final.FailureKind)
	// The failure surfaces the round that was being promoted.
	assert.Equal(t, 1, final.FailedRound)
	assert.Empty(t, final.ModelVersion)

	// The round checkpoint survives the failure for manual resumption.
	cp, err := env.checkpoints.Load(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cp.ClosedRounds)
	assert.Equal(t, []float64{0.5, 0.5}, cp.GlobalWeights)
}

func TestResumeSessionAfterRegistryFailure(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 1)
	ctx := context.Background()

	cfg := session.Config{
		Cluster:      "edge-eu-1",
		NumRounds:    1,
		MinClients:   1,
		RoundTimeout: time.Minute,
		ModelSchema:  1,
	}
	sess, err := env.svc.StartSession(ctx, cfg, session.TriggerManual)
	require.NoError(t, err)
	nodes := registerNodes(t, env.svc, sess.ID, 1)

	require.NoError(t, env.svc.SubmitUpdate(ctx, session.ClientUpdate{
		SessionID:  sess.ID,
		NodeID:     nodes[0].ID,
		Round:      1,
		NumSamples: 10,
		Delta:      []float64{1.0},
	}))

	failed, err := env.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.Failed, failed.State)

	// Registry recovered; resume continues with a fresh round number.
	require.NoError(t, env.svc.ResumeSession(ctx, sess.ID))

	resumed, err := env.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Running, resumed.State)
	assert.Equal(t, 2, resumed.OpenRound)

	require.NoError(t, env.svc.SubmitUpdate(ctx, session.ClientUpdate{
		SessionID:  sess.ID,
		NodeID:     nodes[0].ID,
		Round:      2,
		NumSamples: 10,
		Delta:      []float64{0.5},
	}))

	final, err := env.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Succeeded, final.State)
	assert.NotEmpty(t, final.ModelVersion)
}

func TestPlateauConvergence(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	cfg := session.Config{
		Cluster:         "edge-eu-1",
		NumRounds:       10,
		MinClients:      1,
		RoundTimeout:    time.Minute,
		ModelSchema:     1,
		PlateauDelta:    0.01,
		PlateauPatience: 1,
	}
	sess, err := env.svc.StartSession(ctx, cfg, session.TriggerManual)
	require.NoError(t, err)
	nodes := registerNodes(t, env.svc, sess.ID, 1)

	for round := 1; round <= 2; round++ {
		require.NoError(t, env.svc.SubmitUpdate(ctx, session.ClientUpdate{
			SessionID:  sess.ID,
			NodeID:     nodes[0].ID,
			Round:      round,
			NumSamples: 10,
			Delta:      []float64{0.1},
			Metric:     0.5, // no improvement after round one
		}))
	}

	final, err := env.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Succeeded, final.State)
	assert.Equal(t, 2, final.ClosedRounds)
}

func TestGetOpenRound(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	sess, err := env.svc.StartSession(ctx, testConfig("edge-eu-1"), session.TriggerManual)
	require.NoError(t, err)
	nodes := registerNodes(t, env.svc, sess.ID, 2)

	require.NoError(t, env.svc.SubmitUpdate(ctx, session.ClientUpdate{
		SessionID:  sess.ID,
		NodeID:     nodes[0].ID,
		Round:      1,
		NumSamples: 10,
		Delta:      []float64{1, 2, 3},
	}))

	round, err := env.svc.GetOpenRound(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, round.Number)
	assert.Equal(t, session.RoundOpen, round.Status)
	assert.Len(t, round.Updates, 1)

	require.NoError(t, env.svc.AbortSession(ctx, sess.ID))
	_, err = env.svc.GetOpenRound(ctx, sess.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrSessionNotRunning)
}

func TestRegisterClientRules(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	sess, err := env.svc.StartSession(ctx, testConfig("edge-eu-1"), session.TriggerManual)
	require.NoError(t, err)

	n, err := env.svc.CreateNode(ctx, "worker-1", "10.0.0.1:9000")
	require.NoError(t, err)

	require.NoError(t, env.svc.RegisterClient(ctx, sess.ID, n))
	assert.ErrorIs(t, env.svc.RegisterClient(ctx, sess.ID, n), pkgerrors.ErrEntityExists)
	assert.ErrorIs(t, env.svc.RegisterClient(ctx, "nope", n), pkgerrors.ErrNotFound)
}

func TestCheckDrift(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	features := map[string][]float64{"f": make([]float64, 50)}
	for i := range features["f"] {
		features["f"][i] = float64(i)
	}

	report, err := env.svc.CheckDrift(ctx,
		drift.Window{ID: "ref", Features: features},
		drift.Window{ID: "cur", Features: features},
	)
	require.NoError(t, err)
	assert.Equal(t, drift.VerdictOK, report.Verdict)
	assert.InDelta(t, 0.0, report.Score, 1e-9)
}

func TestNodeProvisioning(t *testing.T) {
	t.Parallel()
	env := setupTestService(t, 0)
	ctx := context.Background()

	named, err := env.svc.CreateNode(ctx, "worker-1", "10.0.0.1:9000")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", named.Name)
	assert.Equal(t, node.Active, named.Status)

	generated, err := env.svc.CreateNode(ctx, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, generated.Name)

	got, err := env.svc.GetNode(ctx, named.ID)
	require.NoError(t, err)
	assert.Equal(t, named.ID, got.ID)

	page, err := env.svc.ListNodes(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), page.Total)
}
