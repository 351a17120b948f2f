package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"soleil-forecast/internal/production"
)

// Targets understood by the Grafana JSON datasource endpoints.
const (
	targetACPower        = "AC_W"
	targetDailyCumKwh    = "daily_kwh_cum"
	targetHourlyKwh      = "hourly_kwh"
	targetFutureDailyKwh = "future_daily_kwh"
)

// Panels ask for a slightly wider range so lines reach the panel edges.
const grafanaRangeMargin = 10 * time.Minute

type grafanaMetric struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var grafanaMetrics = []grafanaMetric{
	{Label: "AC power (W)", Value: targetACPower},
	{Label: "Daily cumulative production (kWh)", Value: targetDailyCumKwh},
	{Label: "Hourly production (kWh)", Value: targetHourlyKwh},
	{Label: "Future daily production (kWh)", Value: targetFutureDailyKwh},
}

type grafanaQueryRequest struct {
	Range struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"range"`
	Targets []struct {
		Target string `json:"target"`
	} `json:"targets"`
}

// grafanaSeries datapoints are [value, unix milliseconds] pairs.
type grafanaSeries struct {
	Target     string       `json:"target"`
	Datapoints [][2]float64 `json:"datapoints"`
}

func (s *Server) grafanaConnectionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) grafanaMetricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, grafanaMetrics)
}

func (s *Server) grafanaPayloadOptionsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, []any{})
}

func (s *Server) grafanaQueryHandler(c *gin.Context) {
	var req grafanaQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, []string{"Failed to parse query body."})
		return
	}

	loc := s.forecaster.Location()
	var errs []string
	from, err := time.Parse(time.RFC3339Nano, req.Range.From)
	if err != nil {
		errs = append(errs, "Failed to parse value for parameter: range.from.")
	}
	to, err := time.Parse(time.RFC3339Nano, req.Range.To)
	if err != nil {
		errs = append(errs, "Failed to parse value for parameter: range.to.")
	}
	if len(errs) > 0 {
		badRequest(c, errs)
		return
	}
	from, to = from.In(loc), to.In(loc)

	snap := s.forecaster.Snapshot()
	result := make([]grafanaSeries, 0, len(req.Targets))
	for _, t := range req.Targets {
		var (
			points []production.Point
			err    error
		)

		switch t.Target {
		case targetACPower:
			var power []production.PowerSample
			power, err = snap.ACPower(production.Forecast, from.Add(-grafanaRangeMargin), to.Add(grafanaRangeMargin))
			for _, p := range power {
				points = append(points, production.Point{Time: p.Time, Value: p.ACWatts})
			}
		case targetDailyCumKwh:
			points, err = snap.DailyCumulativeKwh(production.Forecast, from.Add(-grafanaRangeMargin), to.Add(grafanaRangeMargin))
		case targetHourlyKwh:
			points, err = snap.HourlyKwh(production.Forecast, startOfDay(from), endOfDay(to))
		case targetFutureDailyKwh:
			today := startOfDay(s.forecaster.Now())
			points, err = snap.DailyKwh(production.Forecast, today, endOfDay(today.AddDate(0, 0, 2)))
		default:
			continue
		}
		if err != nil {
			s.queryFailed(c, err)
			return
		}

		result = append(result, grafanaSeries{Target: t.Target, Datapoints: datapoints(points)})
	}

	c.JSON(http.StatusOK, result)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

func datapoints(points []production.Point) [][2]float64 {
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = [2]float64{p.Value, float64(p.Time.UnixMilli())}
	}
	return out
}
