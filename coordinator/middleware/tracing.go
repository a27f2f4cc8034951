package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fedloop/fedloop/coordinator"
	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/drift"
	"github.com/fedloop/fedloop/session"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) StartSession(ctx context.Context, cfg session.Config, trigger session.TriggerSource) (session.Session, error) {
	ctx, span := tm.tracer.Start(ctx, "start-session", trace.WithAttributes(
		attribute.String("cluster", cfg.Cluster),
		attribute.String("trigger", string(trigger)),
		attribute.Int("num_rounds", cfg.NumRounds),
		attribute.Int("min_clients", cfg.MinClients),
	))
	defer span.End()

	return tm.svc.StartSession(ctx, cfg, trigger)
}

func (tm *tracing) RegisterClient(ctx context.Context, sessionID string, n node.Node) error {
	ctx, span := tm.tracer.Start(ctx, "register-client", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("node_id", n.ID),
	))
	defer span.End()

	return tm.svc.RegisterClient(ctx, sessionID, n)
}

func (tm *tracing) SubmitUpdate(ctx context.Context, update session.ClientUpdate) error {
	ctx, span := tm.tracer.Start(ctx, "submit-update", trace.WithAttributes(
		attribute.String("session_id", update.SessionID),
		attribute.String("node_id", update.NodeID),
		attribute.Int("round", update.Round),
	))
	defer span.End()

	return tm.svc.SubmitUpdate(ctx, update)
}

func (tm *tracing) SubmitUpdateCBOR(ctx context.Context, payload []byte) error {
	ctx, span := tm.tracer.Start(ctx, "submit-update-cbor", trace.WithAttributes(
		attribute.Int("payload_size", len(payload)),
	))
	defer span.End()

	return tm.svc.SubmitUpdateCBOR(ctx, payload)
}

func (tm *tracing) AbortSession(ctx context.Context, sessionID string) error {
	ctx, span := tm.tracer.Start(ctx, "abort-session", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	return tm.svc.AbortSession(ctx, sessionID)
}

func (tm *tracing) ResumeSession(ctx context.Context, sessionID string) error {
	ctx, span := tm.tracer.Start(ctx, "resume-session", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	return tm.svc.ResumeSession(ctx, sessionID)
}

func (tm *tracing) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	ctx, span := tm.tracer.Start(ctx, "get-session", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	return tm.svc.GetSession(ctx, sessionID)
}

func (tm *tracing) ListSessions(ctx context.Context, offset, limit uint64) (session.SessionPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-sessions", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListSessions(ctx, offset, limit)
}

func (tm *tracing) GetOpenRound(ctx context.Context, sessionID string) (session.Round, error) {
	ctx, span := tm.tracer.Start(ctx, "get-open-round", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	return tm.svc.GetOpenRound(ctx, sessionID)
}

func (tm *tracing) CheckDrift(ctx context.Context, reference, current drift.Window) (drift.Report, error) {
	ctx, span := tm.tracer.Start(ctx, "check-drift", trace.WithAttributes(
		attribute.String("reference_window", reference.ID),
		attribute.String("current_window", current.ID),
	))
	defer span.End()

	return tm.svc.CheckDrift(ctx, reference, current)
}

func (tm *tracing) CreateNode(ctx context.Context, name, address string) (node.Node, error) {
	ctx, span := tm.tracer.Start(ctx, "create-node", trace.WithAttributes(
		attribute.String("name", name),
	))
	defer span.End()

	return tm.svc.CreateNode(ctx, name, address)
}

func (tm *tracing) GetNode(ctx context.Context, nodeID string) (node.Node, error) {
	ctx, span := tm.tracer.Start(ctx, "get-node", trace.WithAttributes(
		attribute.String("node_id", nodeID),
	))
	defer span.End()

	return tm.svc.GetNode(ctx, nodeID)
}

func (tm *tracing) ListNodes(ctx context.Context, offset, limit uint64) (node.NodePage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-nodes", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListNodes(ctx, offset, limit)
}

func (tm *tracing) Subscribe(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "subscribe")
	defer span.End()

	return tm.svc.Subscribe(ctx)
}
