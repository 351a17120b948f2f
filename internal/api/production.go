package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"soleil-forecast/internal/peak"
	"soleil-forecast/internal/production"
)

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (s *Server) peakHandler(c *gin.Context) {
	now := s.forecaster.Now()
	p := newParams(c, s.forecaster.Location())

	start := p.datetime("start", &now)
	end := p.datetime("end", nil)
	p.window(start, end)
	minKwh := p.float("min_kwh")
	minTemp := p.float("min_temp")
	precision := p.requiredInt("precision")
	if precision != nil && !peak.ValidPrecision(*precision) {
		p.fail("precision")
		precision = nil
	}
	hours := p.requiredInt("peak_duration_h")
	if hours != nil && *hours <= 0 {
		p.fail("peak_duration_h")
		hours = nil
	}
	order, err := peak.ParseOrder(c.Query("order"))
	if err != nil {
		p.add(msgOrder)
	}

	if !p.ok() {
		badRequest(c, p.errs)
		return
	}

	result, err := s.forecaster.Snapshot().Peak(peak.Query{
		Start:     *start,
		End:       *end,
		Duration:  time.Duration(*hours) * time.Hour,
		Order:     order,
		Precision: *precision,
		MinKwh:    minKwh,
		MinTemp:   minTemp,
	})
	if err != nil {
		s.queryFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"result": result.Format(time.RFC3339),
	})
}

func (s *Server) boundsHandler(c *gin.Context) {
	p := newParams(c, s.forecaster.Location())
	date := p.date("date", startOfDay(s.forecaster.Now()))
	minKW := 0.0
	if v := p.float("min_kW"); v != nil {
		minKW = *v
	}

	if !p.ok() {
		badRequest(c, p.errs)
		return
	}

	first, last, err := s.forecaster.Snapshot().Bounds(*date, minKW)
	if err != nil {
		s.queryFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"start":  formatOptional(first),
		"end":    formatOptional(last),
	})
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func (s *Server) weatherHandler(c *gin.Context) {
	now := s.forecaster.Now()
	p := newParams(c, s.forecaster.Location())
	start := p.datetime("start", &now)
	end := p.datetime("end", nil)
	p.window(start, end)

	if !p.ok() {
		badRequest(c, p.errs)
		return
	}

	cmp, err := s.forecaster.Snapshot().ProductionVsClearsky(*start, *end)
	if err != nil {
		s.queryFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"weather_data": cmp.WeatherData,
		"clearsky":     cmp.ClearSky,
		"ratio":        cmp.Ratio,
	})
}

func (s *Server) dailyHandler(c *gin.Context) {
	now := s.forecaster.Now()
	midnight := startOfDay(now)
	p := newParams(c, s.forecaster.Location())
	start := p.datetime("start", &midnight)
	end := p.datetime("end", &now)
	p.window(start, end)

	if !p.ok() {
		badRequest(c, p.errs)
		return
	}

	cum, err := s.forecaster.Snapshot().DailyCumulativeKwh(production.Forecast, *start, *end)
	if err != nil {
		s.queryFailed(c, err)
		return
	}

	var total *float64
	for i := range cum {
		if total == nil || cum[i].Value > *total {
			total = &cum[i].Value
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"production": total,
		"unit":       "kWh",
	})
}

func (s *Server) temperatureStatsHandler(c *gin.Context) {
	now := s.forecaster.Now()
	p := newParams(c, s.forecaster.Location())
	start := p.datetime("start", &now)
	end := p.datetime("end", nil)
	p.window(start, end)

	if !p.ok() {
		badRequest(c, p.errs)
		return
	}

	stats, err := s.forecaster.Snapshot().TemperatureStats(*start, *end)
	if err != nil {
		s.queryFailed(c, err)
		return
	}
	if stats == nil {
		badRequest(c, []string{msgNoData})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) accuracyHandler(c *gin.Context) {
	p := newParams(c, s.forecaster.Location())
	date := p.date("date", startOfDay(s.forecaster.Now()))
	halfLife := production.DefaultAccuracyHalfLife
	if v := p.float("half_life"); v != nil {
		if *v <= 0 {
			p.fail("half_life")
		} else {
			halfLife = *v
		}
	}

	if !p.ok() {
		badRequest(c, p.errs)
		return
	}
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("Storage is disabled."))
		return
	}

	start := *date
	end := start.AddDate(0, 0, 1).Add(-time.Second)
	measured, err := s.store.Measurements(start, end)
	if err != nil {
		s.queryFailed(c, err)
		return
	}

	report, err := s.forecaster.Snapshot().Accuracy(measured, start, end, halfLife)
	if err != nil {
		s.queryFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"result": report,
	})
}

func (s *Server) refreshHandler(c *gin.Context) {
	p := newParams(c, s.forecaster.Location())
	var start, end time.Time
	if v := p.date("start", time.Time{}); v != nil {
		start = *v
	}
	if v := p.date("end", time.Time{}); v != nil {
		end = *v
	}

	if !p.ok() {
		badRequest(c, p.errs)
		return
	}

	report, err := s.forecaster.Refresh(c.Request.Context(), start, end)
	if err != nil {
		s.queryFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"run":    report,
	})
}

func (s *Server) runsHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("Storage is disabled."))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 20
	}

	runs, err := s.store.RefreshRuns(limit)
	if err != nil {
		s.queryFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"runs":   runs,
	})
}

// historyHandler lists the daily totals stored by past refreshes.
func (s *Server) historyHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("Storage is disabled."))
		return
	}

	today := startOfDay(s.forecaster.Now())
	p := newParams(c, s.forecaster.Location())
	start := p.date("start", today.AddDate(0, 0, -7))
	end := p.date("end", today)
	if start != nil && end != nil && end.Before(*start) {
		p.add(msgEndAfterStart)
	}

	if !p.ok() {
		badRequest(c, p.errs)
		return
	}

	days, err := s.store.ForecastDays(*start, *end)
	if err != nil {
		s.queryFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"days":   days,
	})
}
