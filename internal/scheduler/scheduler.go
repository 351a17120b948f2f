// Package scheduler refreshes the production model at start-up and once a day.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"soleil-forecast/internal/production"
)

type Refresher interface {
	Refresh(ctx context.Context, startDate, endDate time.Time) (production.RefreshReport, error)
}

type Scheduler struct {
	refresher Refresher
	clock     clockwork.Clock
	loc       *time.Location
	hour      int
	minute    int
	enabled   bool
	log       logrus.FieldLogger

	mu         sync.RWMutex
	running    bool
	lastReport *production.RefreshReport
	lastErr    error
}

type Config struct {
	Refresher Refresher
	Clock     clockwork.Clock
	Location  *time.Location
	Hour      int
	Minute    int
	Enabled   bool
	Logger    logrus.FieldLogger
}

func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	var log logrus.FieldLogger = logrus.StandardLogger()
	if cfg.Logger != nil {
		log = cfg.Logger
	}

	return &Scheduler{
		refresher: cfg.Refresher,
		clock:     cfg.Clock,
		loc:       cfg.Location,
		hour:      cfg.Hour,
		minute:    cfg.Minute,
		enabled:   cfg.Enabled,
		log:       log.WithField("component", "scheduler"),
	}
}

// Start refreshes once, then every day at the configured local time until ctx
// is done. With the schedule disabled only the initial refresh runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.Trigger(ctx)

	if !s.enabled {
		s.log.Info("daily refresh is disabled")
		return nil
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		next := s.NextRun()
		s.log.WithField("next", next.Format(time.RFC3339)).Debug("waiting for next refresh")

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-s.clock.After(next.Sub(s.clock.Now())):
			s.Trigger(ctx)
		}
	}
}

// Trigger refreshes now with the default date range. Errors are logged and
// remembered, never fatal.
func (s *Scheduler) Trigger(ctx context.Context) (production.RefreshReport, error) {
	report, err := s.refresher.Refresh(ctx, time.Time{}, time.Time{})

	s.mu.Lock()
	s.lastErr = err
	if err == nil {
		s.lastReport = &report
	}
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).Error("production refresh failed")
	}
	return report, err
}

// NextRun is the next occurrence of the daily refresh time.
func (s *Scheduler) NextRun() time.Time {
	now := s.clock.Now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

// LastReport returns the most recent successful refresh and the error of the
// most recent attempt.
func (s *Scheduler) LastReport() (*production.RefreshReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport, s.lastErr
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
