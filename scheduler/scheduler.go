// Package scheduler decides when retraining sessions start. Requests
// arrive from three sources: drift reports, a cron schedule and manual
// operator calls. All three funnel through the same gate so cooldown and
// single-concurrency rules apply uniformly.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fedloop/fedloop/coordinator"
	"github.com/fedloop/fedloop/pkg/cron"
	"github.com/fedloop/fedloop/pkg/drift"
	"github.com/fedloop/fedloop/pkg/errors"
	"github.com/fedloop/fedloop/session"
)

const (
	DefCooldown      = 30 * time.Minute
	defCheckInterval = time.Minute
	cooldownPageSize = 100
)

// Trigger is one retraining request. Report is required for drift
// triggers and ignored otherwise.
type Trigger struct {
	Mode   session.TriggerSource `json:"mode"`
	Config session.Config        `json:"config"`
	Report *drift.Report         `json:"report,omitempty"`
}

type Service interface {
	// TriggerRetrain evaluates the trigger against the cooldown and
	// concurrency gates and starts a session if both pass.
	TriggerRetrain(ctx context.Context, trigger Trigger) (session.Session, error)

	// Start runs the cron loop until the context is cancelled or Stop is
	// called. Blocking, meant for an errgroup.
	Start(ctx context.Context) error
	Stop()
}

type scheduler struct {
	coordinator    coordinator.Service
	cooldown       time.Duration
	driftThreshold float64
	schedule       *cron.CronSchedule
	timezone       string
	scheduledCfg   session.Config
	checkInterval  time.Duration
	logger         *slog.Logger
	stopChan       chan struct{}

	// lease serializes trigger evaluation so two concurrent triggers can
	// never both pass the cooldown gate.
	lease   sync.Mutex
	nextRun time.Time
}

type Option func(*scheduler)

func WithCooldown(d time.Duration) Option {
	return func(s *scheduler) {
		s.cooldown = d
	}
}

// WithDriftThreshold sets the score a drift-triggered report must exceed.
// Reports arrive from external callers, so the verdict alone is not trusted.
func WithDriftThreshold(threshold float64) Option {
	return func(s *scheduler) {
		s.driftThreshold = threshold
	}
}

// WithSchedule installs a cron expression and the session config used
// for scheduled runs.
func WithSchedule(schedule *cron.CronSchedule, timezone string, cfg session.Config) Option {
	return func(s *scheduler) {
		s.schedule = schedule
		s.timezone = timezone
		s.scheduledCfg = cfg
	}
}

func WithCheckInterval(d time.Duration) Option {
	return func(s *scheduler) {
		s.checkInterval = d
	}
}

func New(coord coordinator.Service, logger *slog.Logger, opts ...Option) Service {
	s := &scheduler{
		coordinator:    coord,
		cooldown:       DefCooldown,
		driftThreshold: drift.DefThreshold,
		checkInterval:  defCheckInterval,
		logger:         logger,
		stopChan:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *scheduler) TriggerRetrain(ctx context.Context, trigger Trigger) (session.Session, error) {
	if err := trigger.Config.Validate(); err != nil {
		return session.Session{}, err
	}

	s.lease.Lock()
	defer s.lease.Unlock()

	if trigger.Mode == session.TriggerDrift {
		if trigger.Report == nil {
			return session.Session{}, errors.ErrInvalidData
		}
		switch trigger.Report.Verdict {
		case drift.VerdictDrift:
			if trigger.Report.Score <= s.driftThreshold {
				return session.Session{}, errors.ErrNoDriftDetected
			}
		case drift.VerdictInsufficientData:
			// An under-sampled window is surfaced, never treated as "no
			// drift".
			return session.Session{}, errors.ErrInsufficientData
		default:
			return session.Session{}, errors.ErrNoDriftDetected
		}
	}

	if err := s.checkCooldown(ctx, trigger.Config.Cluster); err != nil {
		return session.Session{}, err
	}

	return s.coordinator.StartSession(ctx, trigger.Config, trigger.Mode)
}

func (s *scheduler) Start(ctx context.Context) error {
	if s.schedule == nil {
		s.logger.Info("no cron schedule configured, scheduler loop idle")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopChan:
			return nil
		}
	}

	s.nextRun = cron.CalculateNextRun(s.schedule, time.Now(), s.timezone)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.logger.Info("retraining scheduler started",
		slog.Duration("check_interval", s.checkInterval),
		slog.Time("next_run", s.nextRun))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retraining scheduler stopping")

			return ctx.Err()
		case <-s.stopChan:
			s.logger.Info("retraining scheduler stopped")

			return nil
		case <-ticker.C:
			s.processDue(ctx)
		}
	}
}

func (s *scheduler) Stop() {
	close(s.stopChan)
}

func (s *scheduler) processDue(ctx context.Context) {
	now := time.Now()
	if s.nextRun.IsZero() || s.nextRun.After(now) {
		return
	}

	sess, err := s.TriggerRetrain(ctx, Trigger{
		Mode:   session.TriggerScheduled,
		Config: s.scheduledCfg,
	})
	switch {
	case err == nil:
		s.logger.Info("scheduled retraining session started",
			slog.String("session_id", sess.ID),
			slog.String("cluster", sess.Cluster))
	default:
		// Gate rejections are expected outcomes for a periodic trigger.
		s.logger.Warn("scheduled retraining skipped",
			slog.String("cluster", s.scheduledCfg.Cluster),
			slog.Any("error", err))
	}

	s.nextRun = cron.CalculateNextRun(s.schedule, now, s.timezone)
}

// checkCooldown rejects triggers arriving within the cooldown window of
// the cluster's most recently finished session. The whole history is paged
// through; the most recent terminal session may sit on any page.
func (s *scheduler) checkCooldown(ctx context.Context, cluster string) error {
	var latest time.Time
	for offset := uint64(0); ; offset += cooldownPageSize {
		page, err := s.coordinator.ListSessions(ctx, offset, cooldownPageSize)
		if err != nil {
			return err
		}

		for i := range page.Sessions {
			sess := page.Sessions[i]
			if sess.Cluster != cluster || !sess.State.Terminal() {
				continue
			}
			if sess.FinishTime.After(latest) {
				latest = sess.FinishTime
			}
		}

		if len(page.Sessions) == 0 || offset+uint64(len(page.Sessions)) >= page.Total {
			break
		}
	}

	if !latest.IsZero() && time.Since(latest) < s.cooldown {
		return errors.ErrCooldownActive
	}

	return nil
}
