package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soleil-forecast/internal/production"
)

type countingRefresher struct {
	mu    sync.Mutex
	calls []time.Time
	clock clockwork.Clock
	err   error
	done  chan struct{}
}

func (r *countingRefresher) Refresh(context.Context, time.Time, time.Time) (production.RefreshReport, error) {
	r.mu.Lock()
	r.calls = append(r.calls, r.clock.Now())
	r.mu.Unlock()
	r.done <- struct{}{}
	if r.err != nil {
		return production.RefreshReport{}, r.err
	}
	return production.RefreshReport{ID: "run"}, nil
}

func brussels(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)
	return loc
}

func waitRefresh(t *testing.T, r *countingRefresher) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh was not triggered")
	}
}

func TestSchedulerRunsAtStartAndDaily(t *testing.T) {
	loc := brussels(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 21, 4, 0, 0, 0, loc))
	refresher := &countingRefresher{clock: clock, done: make(chan struct{}, 1)}
	logger, _ := test.NewNullLogger()

	s := New(Config{
		Refresher: refresher,
		Clock:     clock,
		Location:  loc,
		Hour:      4,
		Minute:    50,
		Enabled:   true,
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error)
	go func() { stopped <- s.Start(ctx) }()

	waitRefresh(t, refresher)

	clock.BlockUntil(1)
	clock.Advance(49 * time.Minute)
	select {
	case <-refresher.done:
		t.Fatal("refresh ran before the scheduled time")
	default:
	}
	clock.Advance(time.Minute)
	waitRefresh(t, refresher)

	clock.BlockUntil(1)
	clock.Advance(24 * time.Hour)
	waitRefresh(t, refresher)

	cancel()
	require.NoError(t, <-stopped)

	refresher.mu.Lock()
	defer refresher.mu.Unlock()
	require.Len(t, refresher.calls, 3)
	assert.Equal(t, time.Date(2024, 6, 21, 4, 50, 0, 0, loc), refresher.calls[1].In(loc))
	assert.Equal(t, time.Date(2024, 6, 22, 4, 50, 0, 0, loc), refresher.calls[2].In(loc))
	assert.False(t, s.IsRunning())
}

func TestSchedulerDisabledRunsOnce(t *testing.T) {
	loc := brussels(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 21, 4, 0, 0, 0, loc))
	refresher := &countingRefresher{clock: clock, done: make(chan struct{}, 1)}

	s := New(Config{Refresher: refresher, Clock: clock, Location: loc, Hour: 4, Minute: 50})
	require.NoError(t, s.Start(context.Background()))
	waitRefresh(t, refresher)

	report, err := s.LastReport()
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "run", report.ID)
}

func TestTriggerRemembersFailure(t *testing.T) {
	loc := brussels(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 21, 12, 0, 0, 0, loc))
	refresher := &countingRefresher{clock: clock, done: make(chan struct{}, 1), err: errors.New("boom")}
	logger, hook := test.NewNullLogger()

	s := New(Config{Refresher: refresher, Clock: clock, Location: loc, Logger: logger})
	_, err := s.Trigger(context.Background())
	assert.EqualError(t, err, "boom")
	<-refresher.done

	report, lastErr := s.LastReport()
	assert.Nil(t, report)
	assert.EqualError(t, lastErr, "boom")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "production refresh failed", hook.LastEntry().Message)
}

func TestNextRun(t *testing.T) {
	loc := brussels(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 30, 5, 0, 0, 0, loc))
	s := New(Config{Clock: clock, Location: loc, Hour: 4, Minute: 50})

	// the clocks go forward during the night, the schedule stays at 04:50 local
	next := s.NextRun()
	assert.Equal(t, time.Date(2024, 3, 31, 4, 50, 0, 0, loc), next)
	assert.Equal(t, 22*time.Hour+50*time.Minute, next.Sub(clock.Now()))

	early := New(Config{
		Clock:    clockwork.NewFakeClockAt(time.Date(2024, 3, 30, 4, 0, 0, 0, loc)),
		Location: loc, Hour: 4, Minute: 50,
	})
	assert.Equal(t, time.Date(2024, 3, 30, 4, 50, 0, 0, loc), early.NextRun())
}
