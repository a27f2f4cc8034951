package middleware

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/fedloop/fedloop/coordinator"
	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/drift"
	"github.com/fedloop/fedloop/session"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) StartSession(ctx context.Context, cfg session.Config, trigger session.TriggerSource) (session.Session, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "start-session").Add(1)
		mm.latency.With("method", "start-session").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.StartSession(ctx, cfg, trigger)
}

func (mm *metricsMiddleware) RegisterClient(ctx context.Context, sessionID string, n node.Node) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "register-client").Add(1)
		mm.latency.With("method", "register-client").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.RegisterClient(ctx, sessionID, n)
}

func (mm *metricsMiddleware) SubmitUpdate(ctx context.Context, update session.ClientUpdate) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "submit-update").Add(1)
		mm.latency.With("method", "submit-update").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.SubmitUpdate(ctx, update)
}

func (mm *metricsMiddleware) SubmitUpdateCBOR(ctx context.Context, payload []byte) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "submit-update-cbor").Add(1)
		mm.latency.With("method", "submit-update-cbor").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.SubmitUpdateCBOR(ctx, payload)
}

func (mm *metricsMiddleware) AbortSession(ctx context.Context, sessionID string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "abort-session").Add(1)
		mm.latency.With("method", "abort-session").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.AbortSession(ctx, sessionID)
}

func (mm *metricsMiddleware) ResumeSession(ctx context.Context, sessionID string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "resume-session").Add(1)
		mm.latency.With("method", "resume-session").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ResumeSession(ctx, sessionID)
}

func (mm *metricsMiddleware) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-session").Add(1)
		mm.latency.With("method", "get-session").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetSession(ctx, sessionID)
}

func (mm *metricsMiddleware) ListSessions(ctx context.Context, offset, limit uint64) (session.SessionPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-sessions").Add(1)
		mm.latency.With("method", "list-sessions").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListSessions(ctx, offset, limit)
}

func (mm *metricsMiddleware) GetOpenRound(ctx context.Context, sessionID string) (session.Round, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-open-round").Add(1)
		mm.latency.With("method", "get-open-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetOpenRound(ctx, sessionID)
}

func (mm *metricsMiddleware) CheckDrift(ctx context.Context, reference, current drift.Window) (drift.Report, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "check-drift").Add(1)
		mm.latency.With("method", "check-drift").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.CheckDrift(ctx, reference, current)
}

func (mm *metricsMiddleware) CreateNode(ctx context.Context, name, address string) (node.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "create-node").Add(1)
		mm.latency.With("method", "create-node").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.CreateNode(ctx, name, address)
}

func (mm *metricsMiddleware) GetNode(ctx context.Context, nodeID string) (node.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-node").Add(1)
		mm.latency.With("method", "get-node").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetNode(ctx, nodeID)
}

func (mm *metricsMiddleware) ListNodes(ctx context.Context, offset, limit uint64) (node.NodePage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-nodes").Add(1)
		mm.latency.With("method", "list-nodes").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListNodes(ctx, offset, limit)
}

func (mm *metricsMiddleware) Subscribe(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "subscribe").Add(1)
		mm.latency.With("method", "subscribe").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Subscribe(ctx)
}
