package weather

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

const temperatureUnit = "° C"

type TemperatureStats struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Unit   string    `json:"unit"`
	Q25    float64   `json:"q25"`
	Q50    float64   `json:"q50"`
	Q75    float64   `json:"q75"`
	Stddev *float64  `json:"stddev"`
}

// TemperatureStats summarizes the air temperature between start and end
// inclusive. It returns nil when no sample falls in the window.
func (s Series) TemperatureStats(start, end time.Time) *TemperatureStats {
	window := s.Between(start, end)
	if len(window) == 0 {
		return nil
	}

	temps := make([]float64, len(window))
	for i, sample := range window {
		temps[i] = sample.TempAir
	}
	sorted := append([]float64(nil), temps...)
	sort.Float64s(sorted)

	result := &TemperatureStats{
		Start: window[0].Time,
		End:   window[len(window)-1].Time,
		Unit:  temperatureUnit,
		Q25:   quantile(sorted, 0.25),
		Q50:   quantile(sorted, 0.5),
		Q75:   quantile(sorted, 0.75),
	}

	// sample standard deviation is undefined for a single value
	if len(temps) > 1 {
		sd := stat.StdDev(temps, nil)
		result.Stddev = &sd
	}
	return result
}

// quantile interpolates linearly between closest ranks of sorted values.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
