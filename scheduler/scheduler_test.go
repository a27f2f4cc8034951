package scheduler_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/drift"
	pkgerrors "github.com/fedloop/fedloop/pkg/errors"
	"github.com/fedloop/fedloop/scheduler"
	"github.com/fedloop/fedloop/session"
)

// mockCoordinator implements just enough of the coordinator surface for
// gate testing: StartSession records calls, ListSessions serves history.
type mockCoordinator struct {
	mu       sync.Mutex
	history  []session.Session
	started  []session.Session
	startErr error
}

func (m *mockCoordinator) StartSession(_ context.Context, cfg session.Config, trigger session.TriggerSource) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return session.Session{}, m.startErr
	}

	sess := session.Session{
		ID:      uuid.NewString(),
		Cluster: cfg.Cluster,
		Trigger: trigger,
		State:   session.Running,
		Config:  cfg,
	}
	m.started = append(m.started, sess)

	return sess, nil
}

func (m *mockCoordinator) ListSessions(_ context.Context, offset, limit uint64) (session.SessionPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := uint64(len(m.history))
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return session.SessionPage{
		Offset:   offset,
		Limit:    limit,
		Total:    total,
		Sessions: m.history[start:end],
	}, nil
}

func (m *mockCoordinator) startedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.started)
}

func (m *mockCoordinator) RegisterClient(context.Context, string, node.Node) error { return nil }
func (m *mockCoordinator) SubmitUpdate(context.Context, session.ClientUpdate) error {
	return nil
}
func (m *mockCoordinator) SubmitUpdateCBOR(context.Context, []byte) error { return nil }
func (m *mockCoordinator) AbortSession(context.Context, string) error     { return nil }
func (m *mockCoordinator) ResumeSession(context.Context, string) error    { return nil }
func (m *mockCoordinator) GetSession(context.Context, string) (session.Session, error) {
	return session.Session{}, nil
}
func (m *mockCoordinator) GetOpenRound(context.Context, string) (session.Round, error) {
	return session.Round{}, nil
}
func (m *mockCoordinator) CheckDrift(context.Context, drift.Window, drift.Window) (drift.Report, error) {
	return drift.Report{}, nil
}
func (m *mockCoordinator) CreateNode(context.Context, string, string) (node.Node, error) {
	return node.Node{}, nil
}
func (m *mockCoordinator) GetNode(context.Context, string) (node.Node, error) {
	return node.Node{}, nil
}
func (m *mockCoordinator) ListNodes(context.Context, uint64, uint64) (node.NodePage, error) {
	return node.NodePage{}, nil
}
func (m *mockCoordinator) Subscribe(context.Context) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() session.Config {
	return session.Config{
		Cluster:     "edge-eu-1",
		NumRounds:   5,
		MinClients:  2,
		ModelSchema: 16,
	}
}

func TestManualTrigger(t *testing.T) {
	t.Parallel()

	coord := &mockCoordinator{}
	sched := scheduler.New(coord, testLogger())

	sess, err := sched.TriggerRetrain(context.Background(), scheduler.Trigger{
		Mode:   session.TriggerManual,
		Config: testConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, session.TriggerManual, sess.Trigger)
	assert.Equal(t, 1, coord.startedCount())
}

func TestCooldownGate(t *testing.T) {
	t.Parallel()

	coord := &mockCoordinator{
		history: []session.Session{
			{
				Cluster:    "edge-eu-1",
				State:      session.Succeeded,
				FinishTime: time.Now().Add(-time.Minute),
			},
		},
	}
	sched := scheduler.New(coord, testLogger(), scheduler.WithCooldown(10*time.Minute))

	_, err := sched.TriggerRetrain(context.Background(), scheduler.Trigger{
		Mode:   session.TriggerManual,
		Config: testConfig(),
	})
	assert.ErrorIs(t, err, pkgerrors.ErrCooldownActive)
	assert.Equal(t, 0, coord.startedCount())
}

func TestCooldownExpired(t *testing.T) {
	t.Parallel()

	coord := &mockCoordinator{
		history: []session.Session{
			{
				Cluster:    "edge-eu-1",
				State:      session.Failed,
				FinishTime: time.Now().Add(-time.Hour),
			},
		},
	}
	sched := scheduler.New(coord, testLogger(), scheduler.WithCooldown(10*time.Minute))

	_, err := sched.TriggerRetrain(context.Background(), scheduler.Trigger{
		Mode:   session.TriggerManual,
		Config: testConfig(),
	})
	require.NoError(t, err)
}

func TestCooldownScansAllPages(t *testing.T) {
	t.Parallel()

	// Bury the cluster's most recent terminal session behind pages of
	// unrelated history; the gate must still find it.
	history := make([]session.Session, 0, 351)
	for i := 0; i < 350; i++ {
		history = append(history, session.Session{
			Cluster:    "edge-us-1",
			State:      session.Succeeded,
			FinishTime: time.Now().Add(-time.Hour),
		})
	}
	history = append(history, session.Session{
		Cluster:    "edge-eu-1",
		State:      session.Succeeded,
		FinishTime: time.Now().Add(-time.Minute),
	})

	coord := &mockCoordinator{history: history}
	sched := scheduler.New(coord, testLogger(), scheduler.WithCooldown(10*time.Minute))

	_, err := sched.TriggerRetrain(context.Background(), scheduler.Trigger{
		Mode:   session.TriggerManual,
		Config: testConfig(),
	})
	assert.ErrorIs(t, err, pkgerrors.ErrCooldownActive)
	assert.Equal(t, 0, coord.startedCount())
}

func TestCooldownIgnoresOtherClusters(t *testing.T) {
	t.Parallel()

	coord := &mockCoordinator{
		history: []session.Session{
			{
				Cluster:    "edge-us-1",
				State:      session.Succeeded,
				FinishTime: time.Now(),
			},
		},
	}
	sched := scheduler.New(coord, testLogger(), scheduler.WithCooldown(10*time.Minute))

	_, err := sched.TriggerRetrain(context.Background(), scheduler.Trigger{
		Mode:   session.TriggerManual,
		Config: testConfig(),
	})
	require.NoError(t, err)
}

func TestDriftTriggerVerdicts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		report  *drift.Report
		err     error
		started int
	}{
		{
			name:    "drift verdict starts a session",
			report:  &drift.Report{Verdict: drift.VerdictDrift, Score: 0.9},
			started: 1,
		},
		{
			name:   "ok verdict is rejected",
			report: &drift.Report{Verdict: drift.VerdictOK, Score: 0.1},
			err:    pkgerrors.ErrNoDriftDetected,
		},
		{
			name:   "drift verdict below the threshold is rejected",
			report: &drift.Report{Verdict: drift.VerdictDrift, Score: 0.2},
			err:    pkgerrors.ErrNoDriftDetected,
		},
		{
			name:   "insufficient data is surfaced, not treated as ok",
			report: &drift.Report{Verdict: drift.VerdictInsufficientData, Score: 0.9},
			err:    pkgerrors.ErrInsufficientData,
		},
		{
			name: "missing report",
			err:  pkgerrors.ErrInvalidData,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			coord := &mockCoordinator{}
			sched := scheduler.New(coord, testLogger())

			_, err := sched.TriggerRetrain(context.Background(), scheduler.Trigger{
				Mode:   session.TriggerDrift,
				Config: testConfig(),
				Report: tc.report,
			})
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.started, coord.startedCount())
		})
	}
}

func TestInvalidConfigRejectedBeforeGates(t *testing.T) {
	t.Parallel()

	coord := &mockCoordinator{}
	sched := scheduler.New(coord, testLogger())

	cfg := testConfig()
	cfg.NumRounds = 0
	_, err := sched.TriggerRetrain(context.Background(), scheduler.Trigger{
		Mode:   session.TriggerManual,
		Config: cfg,
	})
	assert.Error(t, err)
	assert.Equal(t, 0, coord.startedCount())
}
