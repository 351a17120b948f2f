package weather

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	defaultOpenMeteoURL = "https://api.open-meteo.com"
	dwdIconPath         = "/v1/dwd-icon"
	openMeteoTimeLayout = "2006-01-02T15:04"
)

// OpenMeteoClient reads the DWD ICON model through the Open-Meteo API.
type OpenMeteoClient struct {
	client   *resty.Client
	location *time.Location
	log      logrus.FieldLogger
}

type OpenMeteoConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Location *time.Location
	Logger   logrus.FieldLogger
}

func NewOpenMeteoClient(cfg OpenMeteoConfig) *OpenMeteoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenMeteoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &OpenMeteoClient{
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		location: cfg.Location,
		log:      cfg.Logger,
	}
}

type openMeteoResponse struct {
	Timezone string `json:"timezone"`
	Hourly   struct {
		Time          []string   `json:"time"`
		Temperature2m []*float64 `json:"temperature_2m"`
		Windspeed10m  []*float64 `json:"windspeed_10m"`
	} `json:"hourly"`
	Minutely15 struct {
		Time                   []string   `json:"time"`
		ShortwaveRadiation     []*float64 `json:"shortwave_radiation"`
		DirectNormalIrradiance []*float64 `json:"direct_normal_irradiance"`
		DiffuseRadiation       []*float64 `json:"diffuse_radiation"`
	} `json:"minutely_15"`
}

func (c *OpenMeteoClient) Fetch(ctx context.Context, lat, lon float64, startDate, endDate time.Time) (Series, error) {
	var payload openMeteoResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":       strconv.FormatFloat(lat, 'f', 6, 64),
			"longitude":      strconv.FormatFloat(lon, 'f', 6, 64),
			"hourly":         "temperature_2m,windspeed_10m",
			"minutely_15":    "shortwave_radiation,direct_normal_irradiance,diffuse_radiation",
			"timezone":       c.location.String(),
			"windspeed_unit": "ms",
			"start_date":     startDate.Format("2006-01-02"),
			"end_date":       endDate.Format("2006-01-02"),
		}).
		SetResult(&payload).
		Get(dwdIconPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open-meteo request failed: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: open-meteo bad status: %s", ErrUnavailable, resp.Status())
	}

	series, err := c.convert(&payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.log.WithFields(logrus.Fields{
		"start":   startDate.Format("2006-01-02"),
		"end":     endDate.Format("2006-01-02"),
		"samples": len(series),
	}).Debug("weather forecast fetched")

	return series, nil
}

func (c *OpenMeteoClient) convert(payload *openMeteoResponse) (Series, error) {
	h := payload.Hourly
	if len(h.Temperature2m) != len(h.Time) || len(h.Windspeed10m) != len(h.Time) {
		return nil, fmt.Errorf("open-meteo hourly columns have mismatched lengths")
	}
	m := payload.Minutely15
	if len(m.ShortwaveRadiation) != len(m.Time) ||
		len(m.DirectNormalIrradiance) != len(m.Time) ||
		len(m.DiffuseRadiation) != len(m.Time) {
		return nil, fmt.Errorf("open-meteo minutely_15 columns have mismatched lengths")
	}

	hourly, err := c.frame(h.Time, h.Temperature2m, h.Windspeed10m)
	if err != nil {
		return nil, err
	}

	ghi := instantize(values(m.ShortwaveRadiation))
	dni := instantize(values(m.DirectNormalIrradiance))
	dhi := instantize(values(m.DiffuseRadiation))
	quarterly, err := c.frameValues(m.Time, ghi, dni, dhi)
	if err != nil {
		return nil, err
	}

	return join(upsample(hourly), upsample(quarterly)), nil
}

func (c *OpenMeteoClient) frame(times []string, columns ...[]*float64) (*frame, error) {
	converted := make([][]float64, len(columns))
	for i, col := range columns {
		converted[i] = values(col)
	}
	return c.frameValues(times, converted...)
}

// frameValues localizes the timestamps and drops those that are ambiguous or
// do not exist in the installation zone.
func (c *OpenMeteoClient) frameValues(times []string, columns ...[]float64) (*frame, error) {
	f := &frame{columns: make([][]float64, len(columns))}
	for i, raw := range times {
		wall, err := time.Parse(openMeteoTimeLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("open-meteo time %q: %w", raw, err)
		}
		t, ok := localize(wall, c.location)
		if !ok {
			continue
		}
		f.times = append(f.times, t)
		for j, col := range columns {
			f.columns[j] = append(f.columns[j], col[i])
		}
	}
	return f, nil
}

func values(in []*float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}
