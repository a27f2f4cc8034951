package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/fedloop/fedloop/clientproxy"
	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/aggregate"
	"github.com/fedloop/fedloop/pkg/drift"
	"github.com/fedloop/fedloop/pkg/errors"
	"github.com/fedloop/fedloop/pkg/mqtt"
	"github.com/fedloop/fedloop/pkg/registry"
	"github.com/fedloop/fedloop/pkg/storage"
	"github.com/fedloop/fedloop/session"
)

const (
	// FailureKind values carried on terminal sessions.
	KindInsufficientClients = "INSUFFICIENT_CLIENTS"
	KindRegistryWrite       = "REGISTRY_WRITE_FAILURE"
	KindAborted             = "ABORTED"
)

type sessionState struct {
	mu sync.Mutex

	sess         session.Session
	cfg          session.Config
	participants map[string]node.Node
	strikes      map[string]int
	excluded     map[string]bool
	submitted    map[string]bool
	updates      []session.ClientUpdate
	round        int
	openedAt     time.Time
	attempts     int
	weights      []float64
	lastMetric   float64
	hasMetric    bool
	plateauRuns  int
	timer        *time.Timer
}

type service struct {
	sessions    storage.SessionRepository
	nodes       storage.NodeRepository
	aggregator  aggregate.Aggregator
	monitor     *drift.Monitor
	registry    registry.Registry
	checkpoints *CheckpointStore
	pubsub      mqtt.PubSub
	telemetry   *Telemetry
	logger      *slog.Logger
	namegen     namegenerator.NameGenerator

	// mu guards the running-session index. Per-session state carries its
	// own lock so round closing serializes per session, not globally.
	mu      sync.Mutex
	active  map[string]*sessionState
	running map[string]string
}

func NewService(
	sessions storage.SessionRepository,
	nodes storage.NodeRepository,
	aggregator aggregate.Aggregator,
	monitor *drift.Monitor,
	reg registry.Registry,
	checkpoints *CheckpointStore,
	pubsub mqtt.PubSub,
	telemetry *Telemetry,
	logger *slog.Logger,
) Service {
	if telemetry == nil {
		telemetry = NopTelemetry()
	}

	return &service{
		sessions:    sessions,
		nodes:       nodes,
		aggregator:  aggregator,
		monitor:     monitor,
		registry:    reg,
		checkpoints: checkpoints,
		pubsub:      pubsub,
		telemetry:   telemetry,
		logger:      logger,
		namegen:     namegenerator.NewGenerator(),
		active:      make(map[string]*sessionState),
		running:     make(map[string]string),
	}
}

func (svc *service) StartSession(ctx context.Context, cfg session.Config, trigger session.TriggerSource) (session.Session, error) {
	if err := cfg.Validate(); err != nil {
		return session.Session{}, err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, ok := svc.running[cfg.Cluster]; ok {
		return session.Session{}, errors.ErrSessionAlreadyRunning
	}

	now := time.Now()
	sess := session.Session{
		ID:        uuid.NewString(),
		Name:      svc.namegen.Generate(),
		Cluster:   cfg.Cluster,
		Trigger:   trigger,
		State:     session.Pending,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := svc.sessions.Create(ctx, sess); err != nil {
		return session.Session{}, err
	}

	st := &sessionState{
		sess:         sess,
		cfg:          cfg,
		participants: make(map[string]node.Node),
		strikes:      make(map[string]int),
		excluded:     make(map[string]bool),
		submitted:    make(map[string]bool),
		weights:      svc.initialWeights(ctx, cfg),
	}

	st.mu.Lock()
	st.sess.State = session.Running
	st.sess.StartTime = now
	svc.openRoundLocked(st)
	svc.persistLocked(ctx, st)
	snapshot := st.sess
	st.mu.Unlock()

	svc.active[sess.ID] = st
	svc.running[cfg.Cluster] = sess.ID

	return snapshot, nil
}

func (svc *service) RegisterClient(ctx context.Context, sessionID string, n node.Node) error {
	st, err := svc.stateFor(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sess.State != session.Running {
		return errors.ErrSessionNotRunning
	}
	if _, ok := st.participants[n.ID]; ok {
		return errors.ErrEntityExists
	}

	st.participants[n.ID] = n
	st.sess.Participants = append(st.sess.Participants, n.ID)
	svc.persistLocked(ctx, st)

	return nil
}

func (svc *service) SubmitUpdate(ctx context.Context, update session.ClientUpdate) error {
	if update.SessionID == "" || update.NodeID == "" {
		return errors.ErrInvalidData
	}

	st, err := svc.stateFor(update.SessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sess.State == session.Aborted {
		return errors.ErrSessionAborted
	}
	if st.sess.State != session.Running {
		return errors.ErrSessionNotRunning
	}
	if _, ok := st.participants[update.NodeID]; !ok {
		return errors.ErrNodeNotRegistered
	}
	if st.excluded[update.NodeID] {
		return errors.ErrNodeExcluded
	}
	if update.Round != st.round {
		return errors.ErrStaleRound
	}
	if st.submitted[update.NodeID] {
		// Duplicates are rejected, not replaced: the accepted set stays
		// append-only so checkpoints never rewrite history.
		return errors.ErrDuplicateUpdate
	}

	if err := clientproxy.ValidateDelta(update.Delta, st.cfg.ModelSchema); err != nil || update.NumSamples <= 0 {
		st.strikes[update.NodeID]++
		if st.strikes[update.NodeID] >= st.cfg.MalformedLimit {
			st.excluded[update.NodeID] = true
			st.sess.Excluded = append(st.sess.Excluded, update.NodeID)
			svc.persistLocked(ctx, st)
		}

		return errors.ErrMalformedUpdate
	}

	update.ReceivedAt = time.Now()
	st.submitted[update.NodeID] = true
	st.updates = append(st.updates, update)

	if len(st.updates) >= st.cfg.MinClients {
		svc.closeRoundLocked(ctx, st)
	}

	return nil
}

func (svc *service) SubmitUpdateCBOR(ctx context.Context, payload []byte) error {
	var update session.ClientUpdate
	if err := cbor.Unmarshal(payload, &update); err != nil {
		return fmt.Errorf("failed to decode CBOR update: %w", err)
	}

	return svc.SubmitUpdate(ctx, update)
}

func (svc *service) AbortSession(ctx context.Context, sessionID string) error {
	st, err := svc.stateFor(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sess.State.Terminal() {
		return errors.ErrSessionNotRunning
	}

	if st.timer != nil {
		st.timer.Stop()
	}
	st.sess.State = session.Aborted
	st.sess.FailureKind = KindAborted
	st.sess.FailedRound = st.round
	st.sess.FinishTime = time.Now()
	st.round = 0
	st.participants = make(map[string]node.Node)
	svc.release(st.sess.Cluster)
	svc.persistLocked(ctx, st)
	svc.telemetry.SessionOutcomes.With("outcome", "aborted").Add(1)

	return nil
}

func (svc *service) ResumeSession(ctx context.Context, sessionID string) error {
	cp, err := svc.checkpoints.Load(sessionID)
	if err != nil {
		return err
	}

	svc.mu.Lock()
	if _, ok := svc.running[cp.Cluster]; ok {
		svc.mu.Unlock()

		return errors.ErrSessionAlreadyRunning
	}

	sess, err := svc.sessions.Get(ctx, sessionID)
	if err != nil {
		svc.mu.Unlock()

		return err
	}

	st := &sessionState{
		sess:         sess,
		cfg:          cp.Config,
		participants: make(map[string]node.Node),
		strikes:      make(map[string]int),
		excluded:     make(map[string]bool),
		submitted:    make(map[string]bool),
		weights:      cp.GlobalWeights,
		lastMetric:   cp.LastMetric,
		hasMetric:    cp.ClosedRounds > 0,
		round:        cp.LastRound,
	}
	for _, id := range cp.Participants {
		st.participants[id] = node.Node{ID: id}
	}
	st.sess.ClosedRounds = cp.ClosedRounds
	st.sess.State = session.Running
	st.sess.FailureKind = ""
	st.sess.FailedRound = 0

	svc.active[sessionID] = st
	svc.running[cp.Cluster] = sessionID
	svc.mu.Unlock()

	st.mu.Lock()
	svc.openRoundLocked(st)
	svc.persistLocked(ctx, st)
	st.mu.Unlock()

	return nil
}

func (svc *service) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	return svc.sessions.Get(ctx, sessionID)
}

func (svc *service) ListSessions(ctx context.Context, offset, limit uint64) (session.SessionPage, error) {
	sessions, total, err := svc.sessions.List(ctx, offset, limit)
	if err != nil {
		return session.SessionPage{}, err
	}

	return session.SessionPage{
		Offset:   offset,
		Limit:    limit,
		Total:    total,
		Sessions: sessions,
	}, nil
}

func (svc *service) GetOpenRound(ctx context.Context, sessionID string) (session.Round, error) {
	st, err := svc.stateFor(sessionID)
	if err != nil {
		return session.Round{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sess.State != session.Running || st.round == 0 {
		return session.Round{}, errors.ErrSessionNotRunning
	}

	updates := make([]session.ClientUpdate, len(st.updates))
	copy(updates, st.updates)

	return session.Round{
		Number:   st.round,
		Status:   session.RoundOpen,
		Updates:  updates,
		OpenedAt: st.openedAt,
	}, nil
}

func (svc *service) CheckDrift(ctx context.Context, reference, current drift.Window) (drift.Report, error) {
	report, err := svc.monitor.Compute(reference, current)
	if err != nil {
		return drift.Report{}, err
	}

	svc.telemetry.DriftScore.Observe(report.Score)

	return report, nil
}

func (svc *service) CreateNode(ctx context.Context, name, address string) (node.Node, error) {
	if name == "" {
		name = svc.namegen.Generate()
	}
	n := node.NewNode(name, address)
	if err := svc.nodes.Create(ctx, n); err != nil {
		return node.Node{}, err
	}

	return n, nil
}

func (svc *service) GetNode(ctx context.Context, nodeID string) (node.Node, error) {
	return svc.nodes.Get(ctx, nodeID)
}

func (svc *service) ListNodes(ctx context.Context, offset, limit uint64) (node.NodePage, error) {
	nodes, total, err := svc.nodes.List(ctx, offset, limit)
	if err != nil {
		return node.NodePage{}, err
	}

	return node.NodePage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Nodes:  nodes,
	}, nil
}

// stateFor looks up live coordination state. The index lock is released
// before any per-session lock is taken.
func (svc *service) stateFor(sessionID string) (*sessionState, error) {
	svc.mu.Lock()
	st, ok := svc.active[sessionID]
	svc.mu.Unlock()
	if !ok {
		return nil, errors.ErrNotFound
	}

	return st, nil
}

func (svc *service) release(cluster string) {
	svc.mu.Lock()
	delete(svc.running, cluster)
	svc.mu.Unlock()
}

func (svc *service) initialWeights(ctx context.Context, cfg session.Config) []float64 {
	weights, _, err := svc.registry.GetLatestModel(ctx, cfg.Cluster)
	if err == nil && len(weights) == cfg.ModelSchema {
		return weights
	}

	return make([]float64, cfg.ModelSchema)
}

// openRoundLocked opens the next round. Round numbers only ever move
// forward, including across retries and resumes.
func (svc *service) openRoundLocked(st *sessionState) {
	st.round++
	st.openedAt = time.Now()
	st.updates = nil
	st.submitted = make(map[string]bool)
	st.sess.OpenRound = st.round
	st.sess.UpdatedAt = st.openedAt

	sessionID := st.sess.ID
	round := st.round
	st.timer = time.AfterFunc(st.cfg.RoundTimeout, func() {
		svc.onRoundTimeout(sessionID, round)
	})

	svc.publishRoundStart(st)
}

// onRoundTimeout is the timed quorum check: no polling happens between
// the round opening and this firing.
func (svc *service) onRoundTimeout(sessionID string, round int) {
	st, err := svc.stateFor(sessionID)
	if err != nil {
		return
	}

	ctx := context.Background()

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.sess.State != session.Running || st.round != round {
		return
	}

	if len(st.updates) >= st.cfg.MinClients {
		svc.closeRoundLocked(ctx, st)

		return
	}

	if st.attempts >= st.cfg.MaxRoundRetries {
		svc.failLocked(ctx, st, KindInsufficientClients)

		return
	}

	st.attempts++
	svc.logger.Warn("round timed out below quorum, retrying",
		slog.String("session_id", st.sess.ID),
		slog.Int("round", st.round),
		slog.Int("attempt", st.attempts),
		slog.Int("accepted", len(st.updates)))
	svc.openRoundLocked(st)
	svc.persistLocked(ctx, st)
}

// closeRoundLocked is the per-session critical section: quorum check,
// aggregation and state transition happen under the session lock so only
// one closing operation per round can execute.
func (svc *service) closeRoundLocked(ctx context.Context, st *sessionState) {
	if st.timer != nil {
		st.timer.Stop()
	}

	result, err := svc.aggregator.Aggregate(st.updates)
	if err != nil {
		svc.logger.Error("aggregation failed",
			slog.String("session_id", st.sess.ID),
			slog.Int("round", st.round),
			slog.Any("error", err))
		svc.failLocked(ctx, st, KindInsufficientClients)

		return
	}

	for i := range st.weights {
		st.weights[i] += result.Delta[i]
	}

	converged := svc.trackPlateauLocked(st, result.Metric)
	st.lastMetric = result.Metric
	st.hasMetric = true
	st.sess.ClosedRounds++
	st.attempts = 0
	svc.telemetry.RoundsCompleted.With("cluster", st.sess.Cluster).Add(1)

	if err := svc.checkpoints.Save(svc.checkpointLocked(st)); err != nil {
		svc.logger.Error("failed to write round checkpoint",
			slog.String("session_id", st.sess.ID),
			slog.Int("round", st.round),
			slog.Any("error", err))
	}

	if st.sess.ClosedRounds >= st.cfg.NumRounds || converged {
		svc.finishLocked(ctx, st)

		return
	}

	svc.openRoundLocked(st)
	svc.persistLocked(ctx, st)
}

// trackPlateauLocked implements the optional early-stopping criterion:
// the session converges once the aggregated metric improves by less than
// PlateauDelta for PlateauPatience consecutive closed rounds.
func (svc *service) trackPlateauLocked(st *sessionState, metric float64) bool {
	if st.cfg.PlateauPatience == 0 {
		return false
	}
	if !st.hasMetric {
		return false
	}

	if metric-st.lastMetric < st.cfg.PlateauDelta {
		st.plateauRuns++
	} else {
		st.plateauRuns = 0
	}

	return st.plateauRuns >= st.cfg.PlateauPatience
}

func (svc *service) finishLocked(ctx context.Context, st *sessionState) {
	metrics := map[string]float64{
		"metric": st.lastMetric,
		"rounds": float64(st.sess.ClosedRounds),
	}

	versionID, err := svc.registry.PutModel(ctx, st.sess.ID, st.weights, metrics)
	if err != nil {
		// The round stays set so the failure surfaces where it happened.
		svc.logger.Error("registry write failed, session checkpoint retained",
			slog.String("session_id", st.sess.ID),
			slog.Any("error", err))
		svc.failLocked(ctx, st, KindRegistryWrite)

		return
	}

	st.round = 0
	st.sess.OpenRound = 0
	st.sess.State = session.Succeeded
	st.sess.ModelVersion = versionID
	st.sess.FinishTime = time.Now()
	svc.release(st.sess.Cluster)
	svc.persistLocked(ctx, st)
	svc.telemetry.SessionOutcomes.With("outcome", "succeeded").Add(1)

	svc.publishModelPromoted(st, versionID)
}

func (svc *service) failLocked(ctx context.Context, st *sessionState, kind string) {
	if st.timer != nil {
		st.timer.Stop()
	}
	st.sess.State = session.Failed
	st.sess.FailureKind = kind
	st.sess.FailedRound = st.round
	st.sess.FinishTime = time.Now()
	st.round = 0
	st.sess.OpenRound = 0
	svc.release(st.sess.Cluster)
	svc.persistLocked(ctx, st)
	svc.telemetry.SessionOutcomes.With("outcome", "failed").Add(1)
}

func (svc *service) checkpointLocked(st *sessionState) Checkpoint {
	participants := make([]string, 0, len(st.participants))
	for id := range st.participants {
		participants = append(participants, id)
	}

	weights := make([]float64, len(st.weights))
	copy(weights, st.weights)

	return Checkpoint{
		SessionID:     st.sess.ID,
		Cluster:       st.sess.Cluster,
		Config:        st.cfg,
		LastRound:     st.round,
		ClosedRounds:  st.sess.ClosedRounds,
		GlobalWeights: weights,
		LastMetric:    st.lastMetric,
		Participants:  participants,
		UpdatedAt:     time.Now(),
	}
}

func (svc *service) persistLocked(ctx context.Context, st *sessionState) {
	st.sess.UpdatedAt = time.Now()
	if err := svc.sessions.Update(ctx, st.sess); err != nil {
		svc.logger.Warn("failed to persist session snapshot",
			slog.String("session_id", st.sess.ID),
			slog.Any("error", err))
	}
}

func (svc *service) publishRoundStart(st *sessionState) {
	if svc.pubsub == nil {
		return
	}

	topic := fmt.Sprintf("fedloop/clusters/%s/rounds/start", st.sess.Cluster)
	msg := map[string]any{
		"session_id":     st.sess.ID,
		"round":          st.round,
		"min_clients":    st.cfg.MinClients,
		"deadline":       st.openedAt.Add(st.cfg.RoundTimeout),
		"global_weights": st.weights,
	}
	if err := svc.pubsub.Publish(context.Background(), topic, msg); err != nil {
		svc.logger.Warn("failed to publish round start",
			slog.String("session_id", st.sess.ID),
			slog.Int("round", st.round),
			slog.Any("error", err))
	}
}

func (svc *service) publishModelPromoted(st *sessionState, versionID string) {
	if svc.pubsub == nil {
		return
	}

	msg := map[string]any{
		"version_id": versionID,
		"session_id": st.sess.ID,
		"cluster":    st.sess.Cluster,
	}
	if err := svc.pubsub.Publish(context.Background(), promotedTopic, msg); err != nil {
		svc.logger.Warn("failed to publish model promoted notification",
			slog.String("session_id", st.sess.ID),
			slog.String("version_id", versionID),
			slog.Any("error", err))
	}
}

// decodeUpdate converts a decoded MQTT JSON payload into a ClientUpdate.
func decodeUpdate(msg map[string]any) (session.ClientUpdate, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return session.ClientUpdate{}, err
	}
	var update session.ClientUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return session.ClientUpdate{}, err
	}

	return update, nil
}
