// Package influx writes every published forecast to InfluxDB so it can be
// graphed next to measured production.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"soleil-forecast/internal/production"
)

const (
	measurementPower   = "solar_power"
	measurementWeather = "solar_weather"
	measurementDaily   = "solar_daily"

	batchSize = 5000
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type Exporter struct {
	client influxdb2.Client
	writer pointWriter
	log    logrus.FieldLogger
}

type Config struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

func NewExporter(cfg Config) *Exporter {
	var log logrus.FieldLogger = logrus.StandardLogger()
	if cfg.Logger != nil {
		log = cfg.Logger
	}

	opts := influxdb2.DefaultOptions().SetPrecision(time.Second)
	if cfg.Timeout > 0 {
		opts.SetHTTPRequestTimeout(uint(cfg.Timeout / time.Second))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	return &Exporter{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:    log.WithField("component", "influx"),
	}
}

// Ping checks that the server is up.
func (e *Exporter) Ping(ctx context.Context) error {
	ok, err := e.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("influxdb at %s is not ready", e.client.ServerURL())
	}
	return nil
}

// HandleRefresh writes the refreshed range. The forecast series are skipped
// when the refresh kept an older forecast.
func (e *Exporter) HandleRefresh(ctx context.Context, snap *production.Snapshot, report production.RefreshReport) error {
	points, err := Points(snap, report)
	if err != nil {
		return err
	}

	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))
		if err := e.writer.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("failed to write points: %w", err)
		}
	}

	e.log.WithFields(logrus.Fields{"run": report.ID, "points": len(points)}).Debug("forecast exported")
	return nil
}

// Points converts the refreshed range of snap to InfluxDB points.
func Points(snap *production.Snapshot, report production.RefreshReport) ([]*write.Point, error) {
	start := report.StartDate
	end := report.EndDate.AddDate(0, 0, 1).Add(-time.Second)

	withForecast := snap.State() == production.Ready && report.WeatherError == ""
	runs := []production.Run{production.ClearSky}
	if withForecast {
		runs = append(runs, production.Forecast)
	}

	var points []*write.Point
	for _, run := range runs {
		tags := map[string]string{"series": run.String()}

		power, err := snap.ACPower(run, start, end)
		if err != nil {
			return nil, err
		}
		for _, s := range power {
			points = append(points, write.NewPoint(measurementPower, tags, map[string]any{"ac_w": s.ACWatts}, s.Time))
		}

		days, err := snap.DailyKwh(run, start, end)
		if err != nil {
			return nil, err
		}
		for _, d := range days {
			points = append(points, write.NewPoint(measurementDaily, tags, map[string]any{"kwh": d.Value}, d.Time))
		}
	}

	if withForecast {
		for _, s := range snap.Forecast.Weather.Between(start, end) {
			points = append(points, write.NewPoint(measurementWeather, nil, map[string]any{
				"temp_air":   s.TempAir,
				"wind_speed": s.WindSpeed,
				"ghi":        s.GHI,
				"dni":        s.DNI,
				"dhi":        s.DHI,
			}, s.Time))
		}
	}
	return points, nil
}

func (e *Exporter) Close() {
	e.client.Close()
}
