package production

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soleil-forecast/config"
	"soleil-forecast/internal/solar"
	"soleil-forecast/internal/weather"
)

type providerFunc func(ctx context.Context, lat, lon float64, startDate, endDate time.Time) (weather.Series, error)

func (f providerFunc) Fetch(ctx context.Context, lat, lon float64, startDate, endDate time.Time) (weather.Series, error) {
	return f(ctx, lat, lon, startDate, endDate)
}

// sunnyForecast covers whole days from startDate through endDate with a
// plausible summer irradiance profile.
func sunnyForecast(_ context.Context, _, _ float64, startDate, endDate time.Time) (weather.Series, error) {
	var out weather.Series
	for t := startDate; t.Before(endDate.AddDate(0, 0, 1)); t = t.Add(weather.Resolution) {
		local := t.In(startDate.Location())
		h := float64(local.Hour()) + float64(local.Minute())/60
		s := weather.Sample{Time: t, TempAir: 22, WindSpeed: 2}
		if h > 6 && h < 21 {
			elev := math.Sin(math.Pi * (h - 6) / 15)
			s.GHI = 900 * elev
			s.DNI = 800 * elev
			s.DHI = 120 * elev
		}
		out = append(out, s)
	}
	return out, nil
}

type recordingSink struct {
	mu      sync.Mutex
	reports []RefreshReport
	snaps   []*Snapshot
}

func (r *recordingSink) HandleRefresh(_ context.Context, snap *Snapshot, report RefreshReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	r.snaps = append(r.snaps, snap)
	return nil
}

type failingSink struct{}

func (failingSink) HandleRefresh(context.Context, *Snapshot, RefreshReport) error {
	return errors.New("sink offline")
}

func newTestService(t *testing.T, provider weather.Provider, sinks ...Sink) (*Service, clockwork.FakeClock, *test.Hook) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	system, err := solar.NewSystem(cfg.Location, cfg.Solar)
	require.NoError(t, err)

	loc, err := cfg.Location.Zone()
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 21, 9, 30, 0, 0, loc))

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	svc, err := NewService(ServiceConfig{
		Location:     cfg.Location,
		System:       system,
		Weather:      provider,
		Clock:        clock,
		Logger:       logger,
		ForecastDays: 1,
		Sinks:        sinks,
	})
	require.NoError(t, err)
	return svc, clock, hook
}

func TestRefreshPublishesBothRuns(t *testing.T) {
	sink := &recordingSink{}
	svc, _, _ := newTestService(t, providerFunc(sunnyForecast), sink, failingSink{})
	assert.Equal(t, Uninitialized, svc.Snapshot().State())

	report, err := svc.Refresh(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	loc := svc.Location()
	today := time.Date(2024, 6, 21, 0, 0, 0, 0, loc)
	assert.Equal(t, today, report.StartDate)
	assert.Equal(t, today.AddDate(0, 0, 1), report.EndDate)
	assert.Equal(t, "ready", report.State)
	assert.NotEmpty(t, report.ID)
	assert.Empty(t, report.WeatherError)
	// both midnights included
	assert.Equal(t, 24*12+1, report.ClearSkySamples)

	snap := svc.Snapshot()
	require.Equal(t, Ready, snap.State())

	for _, run := range []Run{Forecast, ClearSky} {
		power, err := snap.ACPower(run, today, today.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.NotEmpty(t, power)

		peakW := 0.0
		for _, p := range power {
			assert.GreaterOrEqual(t, p.ACWatts, 0.0)
			assert.LessOrEqual(t, p.ACWatts, 5000.0)
			peakW = math.Max(peakW, p.ACWatts)
		}
		assert.Greater(t, peakW, 1000.0, "run %s", run)
	}

	require.Len(t, sink.reports, 1)
	assert.Equal(t, report.ID, sink.reports[0].ID)
	assert.Same(t, snap, sink.snaps[0])
}

func TestRefreshKeepsPreviousForecastWhenWeatherFails(t *testing.T) {
	fail := false
	provider := providerFunc(func(ctx context.Context, lat, lon float64, start, end time.Time) (weather.Series, error) {
		if fail {
			return nil, fmt.Errorf("%w: connection refused", weather.ErrUnavailable)
		}
		return sunnyForecast(ctx, lat, lon, start, end)
	})
	svc, clock, hook := newTestService(t, provider)

	_, err := svc.Refresh(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	first := svc.Snapshot()

	fail = true
	clock.Advance(time.Hour)
	report, err := svc.Refresh(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Contains(t, report.WeatherError, "connection refused")
	assert.Equal(t, "ready", report.State)

	second := svc.Snapshot()
	assert.NotSame(t, first, second)
	assert.Same(t, first.Forecast, second.Forecast)
	assert.True(t, second.GeneratedAt.After(first.GeneratedAt))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRefreshWithoutWeatherIsClearSkyOnly(t *testing.T) {
	provider := providerFunc(func(context.Context, float64, float64, time.Time, time.Time) (weather.Series, error) {
		return nil, weather.ErrUnavailable
	})
	svc, _, _ := newTestService(t, provider)

	report, err := svc.Refresh(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "clearsky_only", report.State)
	assert.Zero(t, report.ForecastSamples)

	snap := svc.Snapshot()
	assert.Equal(t, ClearSkyOnly, snap.State())
	_, err = snap.ACPower(Forecast, report.StartDate, report.EndDate)
	assert.ErrorIs(t, err, ErrModelNotReady)
}

func TestRefreshRejectsReversedRange(t *testing.T) {
	svc, _, _ := newTestService(t, providerFunc(sunnyForecast))
	now := svc.Now()

	_, err := svc.Refresh(context.Background(), now, now.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.Nil(t, svc.Snapshot())
}

func TestRefreshSingleDay(t *testing.T) {
	var gotStart, gotEnd time.Time
	provider := providerFunc(func(ctx context.Context, lat, lon float64, start, end time.Time) (weather.Series, error) {
		gotStart, gotEnd = start, end
		return sunnyForecast(ctx, lat, lon, start, end)
	})
	svc, _, _ := newTestService(t, provider)

	day := time.Date(2024, 7, 1, 15, 0, 0, 0, svc.Location())
	report, err := svc.Refresh(context.Background(), day, day)
	require.NoError(t, err)

	midnight := time.Date(2024, 7, 1, 0, 0, 0, 0, svc.Location())
	assert.Equal(t, midnight, gotStart)
	assert.Equal(t, midnight, gotEnd)
	assert.Equal(t, 1, report.ClearSkySamples)
}

func TestConcurrentRefreshesShareOneRun(t *testing.T) {
	var fetches atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	provider := providerFunc(func(ctx context.Context, lat, lon float64, start, end time.Time) (weather.Series, error) {
		if fetches.Add(1) == 1 {
			close(started)
		}
		<-release
		return sunnyForecast(ctx, lat, lon, start, end)
	})
	sink := &recordingSink{}
	svc, _, _ := newTestService(t, provider, sink)

	// readers must only ever see no snapshot or a complete one
	stop := make(chan struct{})
	readerDone := make(chan map[*Snapshot]State)
	go func() {
		seen := map[*Snapshot]State{}
		for {
			select {
			case <-stop:
				readerDone <- seen
				return
			default:
				if snap := svc.Snapshot(); snap != nil {
					seen[snap] = snap.State()
				}
			}
		}
	}()

	const callers = 8
	var calling, wg sync.WaitGroup
	calling.Add(callers)
	reports := make([]RefreshReport, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			calling.Done()
			reports[i], errs[i] = svc.Refresh(context.Background(), time.Time{}, time.Time{})
		}(i)
	}

	<-started
	calling.Wait()
	// let the remaining callers reach the shared refresh
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(stop)
	seen := <-readerDone

	assert.Equal(t, int32(1), fetches.Load())
	for i := range reports {
		require.NoError(t, errs[i])
		assert.Equal(t, reports[0].ID, reports[i].ID)
	}
	assert.Len(t, sink.reports, 1)

	final := svc.Snapshot()
	require.Equal(t, Ready, final.State())
	for snap, state := range seen {
		assert.Same(t, final, snap)
		assert.Equal(t, Ready, state)
	}
}

func TestRefreshOutlivesCancelledCaller(t *testing.T) {
	var fetchErr error
	var hasDeadline bool
	provider := providerFunc(func(ctx context.Context, lat, lon float64, start, end time.Time) (weather.Series, error) {
		fetchErr = ctx.Err()
		_, hasDeadline = ctx.Deadline()
		if fetchErr != nil {
			return nil, fetchErr
		}
		return sunnyForecast(ctx, lat, lon, start, end)
	})
	svc, _, _ := newTestService(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := svc.Refresh(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.NoError(t, fetchErr)
	assert.True(t, hasDeadline)
	assert.Empty(t, report.WeatherError)
	assert.Equal(t, Ready, svc.Snapshot().State())
}
