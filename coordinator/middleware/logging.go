package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/fedloop/fedloop/coordinator"
	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/drift"
	"github.com/fedloop/fedloop/session"
)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) StartSession(ctx context.Context, cfg session.Config, trigger session.TriggerSource) (resp session.Session, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("session",
				slog.String("id", resp.ID),
				slog.String("cluster", cfg.Cluster),
				slog.String("trigger", string(trigger)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Start session failed", args...)

			return
		}
		lm.logger.Info("Start session completed successfully", args...)
	}(time.Now())

	return lm.svc.StartSession(ctx, cfg, trigger)
}

func (lm *loggingMiddleware) RegisterClient(ctx context.Context, sessionID string, n node.Node) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
			slog.Group("node",
				slog.String("id", n.ID),
				slog.String("name", n.Name),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Register client failed", args...)

			return
		}
		lm.logger.Info("Register client completed successfully", args...)
	}(time.Now())

	return lm.svc.RegisterClient(ctx, sessionID, n)
}

func (lm *loggingMiddleware) SubmitUpdate(ctx context.Context, update session.ClientUpdate) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("update",
				slog.String("session_id", update.SessionID),
				slog.String("node_id", update.NodeID),
				slog.Int("round", update.Round),
				slog.Int("num_samples", update.NumSamples),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit update failed", args...)

			return
		}
		lm.logger.Info("Submit update completed successfully", args...)
	}(time.Now())

	return lm.svc.SubmitUpdate(ctx, update)
}

func (lm *loggingMiddleware) SubmitUpdateCBOR(ctx context.Context, payload []byte) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("payload_size", len(payload)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit CBOR update failed", args...)

			return
		}
		lm.logger.Info("Submit CBOR update completed successfully", args...)
	}(time.Now())

	return lm.svc.SubmitUpdateCBOR(ctx, payload)
}

func (lm *loggingMiddleware) AbortSession(ctx context.Context, sessionID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Abort session failed", args...)

			return
		}
		lm.logger.Info("Abort session completed successfully", args...)
	}(time.Now())

	return lm.svc.AbortSession(ctx, sessionID)
}

func (lm *loggingMiddleware) ResumeSession(ctx context.Context, sessionID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Resume session failed", args...)

			return
		}
		lm.logger.Info("Resume session completed successfully", args...)
	}(time.Now())

	return lm.svc.ResumeSession(ctx, sessionID)
}

func (lm *loggingMiddleware) GetSession(ctx context.Context, sessionID string) (resp session.Session, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get session failed", args...)

			return
		}
		lm.logger.Info("Get session completed successfully", args...)
	}(time.Now())

	return lm.svc.GetSession(ctx, sessionID)
}

func (lm *loggingMiddleware) ListSessions(ctx context.Context, offset, limit uint64) (resp session.SessionPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List sessions failed", args...)

			return
		}
		lm.logger.Info("List sessions completed successfully", args...)
	}(time.Now())

	return lm.svc.ListSessions(ctx, offset, limit)
}

func (lm *loggingMiddleware) GetOpenRound(ctx context.Context, sessionID string) (resp session.Round, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
			slog.Int("round", resp.Number),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get open round failed", args...)

			return
		}
		lm.logger.Info("Get open round completed successfully", args...)
	}(time.Now())

	return lm.svc.GetOpenRound(ctx, sessionID)
}

func (lm *loggingMiddleware) CheckDrift(ctx context.Context, reference, current drift.Window) (resp drift.Report, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("drift",
				slog.String("verdict", string(resp.Verdict)),
				slog.Float64("score", resp.Score),
				slog.String("statistic", resp.Statistic),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Check drift failed", args...)

			return
		}
		lm.logger.Info("Check drift completed successfully", args...)
	}(time.Now())

	return lm.svc.CheckDrift(ctx, reference, current)
}

func (lm *loggingMiddleware) CreateNode(ctx context.Context, name, address string) (resp node.Node, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("node",
				slog.String("id", resp.ID),
				slog.String("name", resp.Name),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Create node failed", args...)

			return
		}
		lm.logger.Info("Create node completed successfully", args...)
	}(time.Now())

	return lm.svc.CreateNode(ctx, name, address)
}

func (lm *loggingMiddleware) GetNode(ctx context.Context, nodeID string) (resp node.Node, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("node",
				slog.String("id", nodeID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get node failed", args...)

			return
		}
		lm.logger.Info("Get node completed successfully", args...)
	}(time.Now())

	return lm.svc.GetNode(ctx, nodeID)
}

func (lm *loggingMiddleware) ListNodes(ctx context.Context, offset, limit uint64) (resp node.NodePage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List nodes failed", args...)

			return
		}
		lm.logger.Info("List nodes completed successfully", args...)
	}(time.Now())

	return lm.svc.ListNodes(ctx, offset, limit)
}

func (lm *loggingMiddleware) Subscribe(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Subscribe failed", args...)

			return
		}
		lm.logger.Info("Subscribe completed successfully", args...)
	}(time.Now())

	return lm.svc.Subscribe(ctx)
}
