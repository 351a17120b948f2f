package production

import (
	"errors"
	"fmt"
	"time"

	"soleil-forecast/internal/peak"
	"soleil-forecast/internal/weather"
)

var (
	ErrModelNotReady = errors.New("model results are not available yet")
	ErrInvalidRange  = errors.New("end date must not be before start date")
)

// State tells which runs a snapshot holds.
type State int

const (
	Uninitialized State = iota
	ClearSkyOnly
	Ready
)

func (s State) String() string {
	switch s {
	case ClearSkyOnly:
		return "clearsky_only"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Run selects which simulation a derivation reads.
type Run int

const (
	Forecast Run = iota
	ClearSky
)

func (r Run) String() string {
	if r == ClearSky {
		return "clearsky"
	}
	return "forecast"
}

// ForecastRun is the simulation driven by the weather forecast, kept with the
// forecast it was computed from.
type ForecastRun struct {
	Power     []PowerSample
	Weather   weather.Series
	FetchedAt time.Time
}

// Snapshot is one published set of model results. It is never modified after
// publication; a refresh builds and publishes a new one. A nil *Snapshot is
// the Uninitialized state and every query on it fails with ErrModelNotReady.
type Snapshot struct {
	ClearSky    []PowerSample
	Forecast    *ForecastRun
	GeneratedAt time.Time

	loc *time.Location
}

func NewSnapshot(loc *time.Location, clearSky []PowerSample, forecast *ForecastRun, generatedAt time.Time) *Snapshot {
	return &Snapshot{
		ClearSky:    clearSky,
		Forecast:    forecast,
		GeneratedAt: generatedAt,
		loc:         loc,
	}
}

func (s *Snapshot) State() State {
	switch {
	case s == nil:
		return Uninitialized
	case s.Forecast == nil:
		return ClearSkyOnly
	default:
		return Ready
	}
}

func (s *Snapshot) Location() *time.Location {
	if s == nil || s.loc == nil {
		return time.Local
	}
	return s.loc
}

func (s *Snapshot) power(run Run) ([]PowerSample, error) {
	switch {
	case s == nil:
		return nil, ErrModelNotReady
	case run == ClearSky:
		return s.ClearSky, nil
	case s.Forecast == nil:
		return nil, fmt.Errorf("%w: no forecast run", ErrModelNotReady)
	default:
		return s.Forecast.Power, nil
	}
}

func (s *Snapshot) forecastWeather() (weather.Series, error) {
	if s.State() != Ready {
		return nil, fmt.Errorf("%w: no weather forecast", ErrModelNotReady)
	}
	return s.Forecast.Weather, nil
}

// ACPower returns the instantaneous AC power between start and end inclusive.
func (s *Snapshot) ACPower(run Run, start, end time.Time) ([]PowerSample, error) {
	power, err := s.power(run)
	if err != nil {
		return nil, err
	}
	return between(power, start, end), nil
}

// ProductionWh returns the energy produced in each 5-minute interval between
// start and end. The last interval in the range is averaged against 0.
func (s *Snapshot) ProductionWh(run Run, start, end time.Time) ([]Point, error) {
	power, err := s.ACPower(run, start, end)
	if err != nil {
		return nil, err
	}
	return energy(power), nil
}

// DailyCumulativeKwh returns the running production total of each local day,
// computed from midnight even when start falls later in the day.
func (s *Snapshot) DailyCumulativeKwh(run Run, start, end time.Time) ([]Point, error) {
	loc := s.Location()
	wh, err := s.ProductionWh(run, startOfDay(start, loc), endOfDay(end, loc))
	if err != nil {
		return nil, err
	}
	return pointsBetween(dailyCumulative(wh, loc), start, end), nil
}

// HourlyKwh returns production per clock hour, stamped at the start of the
// hour. Hours without positive production are left out.
func (s *Snapshot) HourlyKwh(run Run, start, end time.Time) ([]Point, error) {
	loc := s.Location()
	wh, err := s.ProductionWh(run, startOfDay(start, loc), endOfDay(end, loc))
	if err != nil {
		return nil, err
	}

	hours := groupSum(wh, func(t time.Time) time.Time { return startOfHour(t, loc) })
	var out []Point
	for _, h := range pointsBetween(hours, start, end) {
		if h.Value > 0 {
			out = append(out, h)
		}
	}
	return out, nil
}

// DailyKwh returns production per local day, stamped at midnight, for every
// day touched by [start, end].
func (s *Snapshot) DailyKwh(run Run, start, end time.Time) ([]Point, error) {
	loc := s.Location()
	wh, err := s.ProductionWh(run, startOfDay(start, loc), endOfDay(end, loc))
	if err != nil {
		return nil, err
	}
	return groupSum(wh, func(t time.Time) time.Time { return startOfDay(t, loc) }), nil
}

// Comparison relates forecast production to the clear-sky ceiling, in kWh.
type Comparison struct {
	WeatherData float64 `json:"weather_data"`
	ClearSky    float64 `json:"clearsky"`
	Ratio       float64 `json:"ratio"`
}

func (s *Snapshot) ProductionVsClearsky(start, end time.Time) (Comparison, error) {
	forecast, err := s.ProductionWh(Forecast, start, end)
	if err != nil {
		return Comparison{}, err
	}
	clearSky, err := s.ProductionWh(ClearSky, start, end)
	if err != nil {
		return Comparison{}, err
	}

	c := Comparison{WeatherData: sumKwh(forecast), ClearSky: sumKwh(clearSky)}
	if c.ClearSky != 0 {
		c.Ratio = c.WeatherData / c.ClearSky
	}
	return c, nil
}

func sumKwh(wh []Point) float64 {
	total := 0.0
	for _, p := range wh {
		total += p.Value
	}
	return total / 1000
}

// Bounds returns the first and last timestamps of the local day containing
// date at which forecast AC power exceeds minKW. Both are nil when it never does.
func (s *Snapshot) Bounds(date time.Time, minKW float64) (first, last *time.Time, err error) {
	loc := s.Location()
	power, err := s.ACPower(Forecast, startOfDay(date, loc), endOfDay(date, loc))
	if err != nil {
		return nil, nil, err
	}

	for i := range power {
		if power[i].ACWatts <= minKW*1000 {
			continue
		}
		t := power[i].Time
		if first == nil {
			first = &t
		}
		last = &t
	}
	return first, last, nil
}

// Peak selects the best appliance window from the forecast run.
func (s *Snapshot) Peak(q peak.Query) (time.Time, error) {
	if err := q.Validate(); err != nil {
		return time.Time{}, err
	}

	series, err := s.forecastWeather()
	if err != nil {
		return time.Time{}, err
	}
	wh, err := s.ProductionWh(Forecast, q.Start, q.End.Add(q.Duration))
	if err != nil {
		return time.Time{}, err
	}

	temps := series.ByTime()
	rows := make([]peak.Row, 0, len(wh))
	for _, p := range wh {
		sample, ok := temps[p.Time.Unix()]
		if !ok {
			continue
		}
		rows = append(rows, peak.Row{Time: p.Time, Wh: p.Value, TempAir: sample.TempAir})
	}
	return peak.Select(rows, q)
}

// TemperatureStats summarizes forecast air temperature. It returns nil stats
// when the window holds no samples.
func (s *Snapshot) TemperatureStats(start, end time.Time) (*weather.TemperatureStats, error) {
	series, err := s.forecastWeather()
	if err != nil {
		return nil, err
	}
	return series.TemperatureStats(start, end), nil
}
