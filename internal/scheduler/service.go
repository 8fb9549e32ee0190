// Package scheduler fires the coach's daily run from a cron expression.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/neoclaw-ai/repcoach/internal/coach"
	"github.com/neoclaw-ai/repcoach/internal/ledger"
	"github.com/neoclaw-ai/repcoach/internal/logging"
)

// Runner performs one idempotent daily run.
type Runner interface {
	RunFor(ctx context.Context, date string) (coach.SendResult, error)
}

// Service runs the daily task on a cron schedule.
type Service struct {
	runner   Runner
	schedule cron.Schedule
	spec     string
	loc      *time.Location
	catchUp  bool
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// Option configures a Service.
type Option func(*Service)

// WithCatchUp runs today's task at Start when its scheduled time has passed.
func WithCatchUp(enabled bool) Option {
	return func(s *Service) {
		s.catchUp = enabled
	}
}

// WithClock overrides the clock used for catch-up checks and run dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a cron-backed daily trigger. spec is a standard
// five-field cron expression evaluated in loc.
func NewService(runner Runner, spec string, loc *time.Location, opts ...Option) (*Service, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if loc == nil {
		loc = time.Local
	}
	trimmed := strings.TrimSpace(spec)
	schedule, err := cron.ParseStandard(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	s := &Service{
		runner:   runner,
		schedule: schedule,
		spec:     trimmed,
		loc:      loc,
		now:      time.Now,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the daily job and starts cron execution.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}

	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		s.run(ctx, "cron")
	}))

	if s.catchUp && s.missedToday() {
		go s.run(ctx, "catch_up")
	}

	s.cron.Start()
	s.started = true
	logging.Logger().Info("scheduler started", "schedule", s.spec, "timezone", s.loc.String(), "next", s.Next())
	return nil
}

// Stop stops cron and waits for an in-flight run to finish or ctx cancellation.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	doneCtx := s.cron.Stop()
	s.started = false
	s.mu.Unlock()

	select {
	case <-doneCtx.Done():
		logging.Logger().Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes today's run immediately.
func (s *Service) RunNow(ctx context.Context) (coach.SendResult, error) {
	return s.runOnce(ctx, "manual")
}

// Next returns the next scheduled fire time after now.
func (s *Service) Next() time.Time {
	return s.schedule.Next(s.now().In(s.loc))
}

func (s *Service) run(ctx context.Context, source string) {
	if _, err := s.runOnce(ctx, source); err != nil {
		logging.Logger().Error("daily run failed", "source", source, "err", err)
	}
}

func (s *Service) runOnce(ctx context.Context, source string) (coach.SendResult, error) {
	date := ledger.DateKey(s.now(), s.loc)
	logging.Logger().Info("daily run", "source", source, "date", date)
	return s.runner.RunFor(ctx, date)
}

// missedToday reports whether today's first scheduled time is already past.
func (s *Service) missedToday() bool {
	now := s.now().In(s.loc)
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	first := s.schedule.Next(midnight.Add(-time.Second))
	return !first.After(now) && first.Day() == d
}
