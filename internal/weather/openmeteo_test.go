package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brussels(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)
	return loc
}

func fakeForecast(day string) map[string]any {
	var hourlyTime []string
	var temps, winds []float64
	for h := 0; h < 24; h++ {
		hourlyTime = append(hourlyTime, fmt.Sprintf("%sT%02d:00", day, h))
		temps = append(temps, float64(h))
		winds = append(winds, 2)
	}

	var quarterTime []string
	var ghi, dni, dhi []float64
	for q := 0; q < 96; q++ {
		quarterTime = append(quarterTime, fmt.Sprintf("%sT%02d:%02d", day, q/4, (q%4)*15))
		ghi = append(ghi, 100)
		dni = append(dni, 200)
		dhi = append(dhi, 50)
	}

	return map[string]any{
		"timezone": "Europe/Brussels",
		"hourly": map[string]any{
			"time":           hourlyTime,
			"temperature_2m": temps,
			"windspeed_10m":  winds,
		},
		"minutely_15": map[string]any{
			"time":                     quarterTime,
			"shortwave_radiation":      ghi,
			"direct_normal_irradiance": dni,
			"diffuse_radiation":        dhi,
		},
	}
}

func TestOpenMeteoFetch(t *testing.T) {
	loc := brussels(t)

	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/dwd-icon", r.URL.Path)
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(fakeForecast("2024-06-01")))
	}))
	defer srv.Close()

	client := NewOpenMeteoClient(OpenMeteoConfig{BaseURL: srv.URL, Location: loc})
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, loc)

	series, err := client.Fetch(context.Background(), 50.85, 4.35, day, day)
	require.NoError(t, err)

	assert.Equal(t, "temperature_2m,windspeed_10m", query["hourly"])
	assert.Equal(t, "shortwave_radiation,direct_normal_irradiance,diffuse_radiation", query["minutely_15"])
	assert.Equal(t, "Europe/Brussels", query["timezone"])
	assert.Equal(t, "2024-06-01", query["start_date"])
	assert.Equal(t, "2024-06-01", query["end_date"])

	// 00:00 through 23:00 at five minute steps
	require.Len(t, series, 23*12+1)
	assert.True(t, series[0].Time.Equal(day))
	assert.True(t, series[len(series)-1].Time.Equal(day.Add(23*time.Hour)))
	for i := 1; i < len(series); i++ {
		assert.Equal(t, Resolution, series[i].Time.Sub(series[i-1].Time))
	}

	noon := series.ByTime()[day.Add(10*time.Hour+30*time.Minute).Unix()]
	assert.InDelta(t, 10.5, noon.TempAir, 1e-9)
	assert.InDelta(t, 2, noon.WindSpeed, 1e-9)
	assert.InDelta(t, 100, noon.GHI, 1e-9)
	assert.InDelta(t, 200, noon.DNI, 1e-9)
	assert.InDelta(t, 50, noon.DHI, 1e-9)
}

func TestOpenMeteoFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOpenMeteoClient(OpenMeteoConfig{BaseURL: srv.URL, Location: brussels(t)})
	_, err := client.Fetch(context.Background(), 0, 0, time.Now(), time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestOpenMeteoFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewOpenMeteoClient(OpenMeteoConfig{BaseURL: url, Timeout: time.Second})
	_, err := client.Fetch(context.Background(), 0, 0, time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestInstantize(t *testing.T) {
	got := instantize([]float64{100, 200, 300})
	assert.Equal(t, []float64{150, 250, 150}, got)

	got = instantize([]float64{100, math.NaN()})
	assert.Equal(t, 50.0, got[0])
	assert.True(t, math.IsNaN(got[1]))
}

func TestLocalizeDropsDSTTransitions(t *testing.T) {
	loc := brussels(t)
	parse := func(s string) time.Time {
		wall, err := time.Parse(openMeteoTimeLayout, s)
		require.NoError(t, err)
		return wall
	}

	_, ok := localize(parse("2024-03-31T02:30"), loc)
	assert.False(t, ok, "spring forward gap")

	_, ok = localize(parse("2024-10-27T02:30"), loc)
	assert.False(t, ok, "fall back overlap")

	got, ok := localize(parse("2024-10-27T12:00"), loc)
	assert.True(t, ok)
	assert.Equal(t, 12, got.Hour())

	got, ok = localize(parse("2024-03-31T03:00"), loc)
	assert.True(t, ok)
	assert.Equal(t, 3, got.Hour())
}

func TestUpsampleKeepsMonotonicity(t *testing.T) {
	origin := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f := &frame{
		times:   []time.Time{origin, origin.Add(time.Hour), origin.Add(2 * time.Hour), origin.Add(3 * time.Hour)},
		columns: [][]float64{{0, 10, 10, 30}},
	}

	out := upsample(f)
	require.Len(t, out.times, 37)
	col := out.columns[0]
	for i := 1; i < len(col); i++ {
		assert.GreaterOrEqual(t, col[i], col[i-1]-1e-9)
	}
	// flat segment stays flat
	for i := 12; i <= 24; i++ {
		assert.InDelta(t, 10, col[i], 1e-9)
	}
}

func TestUpsampleSkipsMissingValues(t *testing.T) {
	origin := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f := &frame{
		times:   []time.Time{origin, origin.Add(15 * time.Minute), origin.Add(30 * time.Minute)},
		columns: [][]float64{{math.NaN(), 10, 20}},
	}

	out := upsample(f)
	col := out.columns[0]
	assert.True(t, math.IsNaN(col[0]))
	assert.InDelta(t, 10, col[3], 1e-9)
	assert.InDelta(t, 20, col[6], 1e-9)
}
