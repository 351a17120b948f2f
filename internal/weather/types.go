package weather

import (
	"context"
	"errors"
	"time"
)

// Resolution of every series returned by a Provider.
const Resolution = 5 * time.Minute

// ErrUnavailable wraps every failure to obtain a forecast from the upstream source.
var ErrUnavailable = errors.New("weather forecast unavailable")

// Provider fetches a forecast covering startDate through endDate (inclusive days).
type Provider interface {
	Fetch(ctx context.Context, lat, lon float64, startDate, endDate time.Time) (Series, error)
}

// Sample is one 5-minute weather point. Irradiance values are W/m², temperature °C
// and wind speed m/s.
type Sample struct {
	Time      time.Time `json:"time"`
	TempAir   float64   `json:"temp_air"`
	WindSpeed float64   `json:"wind_speed"`
	GHI       float64   `json:"ghi"`
	DNI       float64   `json:"dni"`
	DHI       float64   `json:"dhi"`
}

// Series is ordered by time.
type Series []Sample

// Between returns the samples with start <= Time <= end.
func (s Series) Between(start, end time.Time) Series {
	var out Series
	for _, sample := range s {
		if sample.Time.Before(start) || sample.Time.After(end) {
			continue
		}
		out = append(out, sample)
	}
	return out
}

// ByTime indexes the series by unix second.
func (s Series) ByTime() map[int64]Sample {
	index := make(map[int64]Sample, len(s))
	for _, sample := range s {
		index[sample.Time.Unix()] = sample
	}
	return index
}
