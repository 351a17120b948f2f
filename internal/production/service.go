// Package production runs the PV model against the weather forecast and a
// clear-sky baseline and answers production queries from the latest results.
package production

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"soleil-forecast/config"
	"soleil-forecast/internal/solar"
	"soleil-forecast/internal/weather"
)

const (
	defaultForecastDays = 3

	// refreshTimeout bounds a shared refresh once it no longer follows the
	// caller's context.
	refreshTimeout = 2 * time.Minute
)

// Sink receives every newly published snapshot.
type Sink interface {
	HandleRefresh(ctx context.Context, snap *Snapshot, report RefreshReport) error
}

// RefreshReport describes one completed refresh.
type RefreshReport struct {
	ID              string    `json:"id"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	State           string    `json:"state"`
	ClearSkySamples int       `json:"clearsky_samples"`
	ForecastSamples int       `json:"forecast_samples"`
	// Set when the forecast could not be fetched and the previous run was kept.
	WeatherError string `json:"weather_error,omitempty"`
}

type ServiceConfig struct {
	Location     config.LocationConfig
	System       *solar.System
	Weather      weather.Provider
	Clock        clockwork.Clock
	Logger       logrus.FieldLogger
	ForecastDays int
	Sinks        []Sink
}

type Service struct {
	lat, lon     float64
	loc          *time.Location
	system       *solar.System
	provider     weather.Provider
	clock        clockwork.Clock
	log          logrus.FieldLogger
	forecastDays int
	sinks        []Sink

	current atomic.Pointer[Snapshot]
	group   singleflight.Group
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.System == nil {
		return nil, fmt.Errorf("production: system is required")
	}
	if cfg.Weather == nil {
		return nil, fmt.Errorf("production: weather provider is required")
	}

	loc, err := cfg.Location.Zone()
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var log logrus.FieldLogger = logrus.StandardLogger()
	if cfg.Logger != nil {
		log = cfg.Logger
	}
	days := cfg.ForecastDays
	if days <= 0 {
		days = defaultForecastDays
	}

	return &Service{
		lat:          cfg.Location.Lat,
		lon:          cfg.Location.Lon,
		loc:          loc,
		system:       cfg.System,
		provider:     cfg.Weather,
		clock:        clock,
		log:          log.WithField("component", "production"),
		forecastDays: days,
		sinks:        cfg.Sinks,
	}, nil
}

// Snapshot returns the latest published results, nil before the first refresh.
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

func (s *Service) Now() time.Time {
	return s.clock.Now().In(s.loc)
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// Refresh recomputes both runs for startDate through endDate and publishes
// them. A zero startDate means today and a zero endDate means the configured
// number of days after startDate. Concurrent calls share one refresh, which
// keeps running when the caller that started it goes away.
func (s *Service) Refresh(ctx context.Context, startDate, endDate time.Time) (RefreshReport, error) {
	if startDate.IsZero() {
		startDate = s.Now()
	}
	startDate = startOfDay(startDate, s.loc)
	if endDate.IsZero() {
		endDate = startDate.AddDate(0, 0, s.forecastDays)
	}
	endDate = startOfDay(endDate, s.loc)
	if endDate.Before(startDate) {
		return RefreshReport{}, ErrInvalidRange
	}

	v, err, shared := s.group.Do("refresh", func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(runCtx, startDate, endDate)
	})
	if err != nil {
		return RefreshReport{}, err
	}
	if shared {
		s.log.Debug("joined a refresh already in progress")
	}
	return v.(RefreshReport), nil
}

func (s *Service) refresh(ctx context.Context, startDate, endDate time.Time) (RefreshReport, error) {
	report := RefreshReport{
		ID:        uuid.NewString(),
		StartDate: startDate,
		EndDate:   endDate,
		StartedAt: s.clock.Now(),
	}
	log := s.log.WithFields(logrus.Fields{
		"run":   report.ID,
		"start": startDate.Format("2006-01-02"),
		"end":   endDate.Format("2006-01-02"),
	})
	log.Info("refreshing production model")

	var times []time.Time
	for t := startDate; !t.After(endDate); t = t.Add(Resolution) {
		times = append(times, t)
	}
	clearSky := s.powerSeries(s.system.Run(s.system.ClearSky(times)))

	var forecast *ForecastRun
	if prev := s.current.Load(); prev != nil {
		forecast = prev.Forecast
	}

	series, err := s.provider.Fetch(ctx, s.lat, s.lon, startDate, endDate)
	switch {
	case err != nil:
		report.WeatherError = err.Error()
		log.WithError(err).Warn("weather forecast unavailable, keeping previous forecast run")
	case len(series) == 0:
		report.WeatherError = "empty weather forecast"
		log.Warn("weather forecast is empty, keeping previous forecast run")
	default:
		forecast = &ForecastRun{
			Power:     s.powerSeries(s.system.Run(conditions(series))),
			Weather:   series,
			FetchedAt: s.clock.Now(),
		}
	}

	snap := NewSnapshot(s.loc, clearSky, forecast, s.clock.Now())
	s.current.Store(snap)

	report.FinishedAt = s.clock.Now()
	report.State = snap.State().String()
	report.ClearSkySamples = len(clearSky)
	if forecast != nil {
		report.ForecastSamples = len(forecast.Power)
	}
	log.WithFields(logrus.Fields{
		"state":    report.State,
		"duration": report.FinishedAt.Sub(report.StartedAt),
	}).Info("production model refreshed")

	for _, sink := range s.sinks {
		if err := sink.HandleRefresh(ctx, snap, report); err != nil {
			log.WithError(err).Errorf("refresh sink %T failed", sink)
		}
	}
	return report, nil
}

// powerSeries clamps simulated output to what the inverter can deliver.
func (s *Service) powerSeries(out []solar.Output) []PowerSample {
	rated := s.system.RatedPower()
	samples := make([]PowerSample, len(out))
	for i, o := range out {
		w := o.ACWatts
		if w < 0 {
			w = 0
		} else if w > rated {
			w = rated
		}
		samples[i] = PowerSample{Time: o.Time.In(s.loc), ACWatts: w}
	}
	return samples
}

func conditions(series weather.Series) []solar.Conditions {
	out := make([]solar.Conditions, len(series))
	for i, w := range series {
		out[i] = solar.Conditions{
			Time:      w.Time,
			GHI:       w.GHI,
			DNI:       w.DNI,
			DHI:       w.DHI,
			TempAir:   w.TempAir,
			WindSpeed: w.WindSpeed,
		}
	}
	return out
}
