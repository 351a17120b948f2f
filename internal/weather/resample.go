package weather

import (
	"math"
	"time"

	"gonum.org/v1/gonum/interp"
)

// frame is a column-oriented intermediate series. Missing values are NaN.
type frame struct {
	times   []time.Time
	columns [][]float64
}

// instantize turns preceding-interval means into instantaneous estimates by
// averaging each value with the next one. The value after the last is 0.
func instantize(in []float64) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		next := 0.0
		if i+1 < len(in) && !math.IsNaN(in[i+1]) {
			next = in[i+1]
		}
		out[i] = (in[i] + next) / 2
	}
	return out
}

// localize places a wall clock reading in loc. It reports false when the
// reading does not exist (spring forward) or occurs twice (fall back).
func localize(wall time.Time, loc *time.Location) (time.Time, bool) {
	t := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), 0, 0, loc)
	if !sameWallClock(t, wall) {
		return time.Time{}, false
	}

	_, before := t.Add(-3 * time.Hour).Zone()
	_, after := t.Add(3 * time.Hour).Zone()
	if before != after {
		shift := time.Duration(after-before) * time.Second
		if shift < 0 {
			shift = -shift
		}
		if sameWallClock(t.Add(-shift), wall) || sameWallClock(t.Add(shift), wall) {
			return time.Time{}, false
		}
	}
	return t, true
}

func sameWallClock(t, wall time.Time) bool {
	return t.Year() == wall.Year() && t.Month() == wall.Month() && t.Day() == wall.Day() &&
		t.Hour() == wall.Hour() && t.Minute() == wall.Minute()
}

// upsample resamples every column onto a Resolution grid spanning the first to
// the last timestamp using monotone cubic interpolation. Grid points outside a
// column's valid span are NaN.
func upsample(f *frame) *frame {
	if len(f.times) == 0 {
		return &frame{columns: make([][]float64, len(f.columns))}
	}

	origin := f.times[0]
	last := f.times[len(f.times)-1]
	out := &frame{columns: make([][]float64, len(f.columns))}
	for t := origin; !t.After(last); t = t.Add(Resolution) {
		out.times = append(out.times, t)
	}

	for j, col := range f.columns {
		out.columns[j] = interpolateColumn(origin, f.times, col, out.times)
	}
	return out
}

func interpolateColumn(origin time.Time, times []time.Time, col []float64, grid []time.Time) []float64 {
	var xs, ys []float64
	for i, v := range col {
		if math.IsNaN(v) {
			continue
		}
		x := times[i].Sub(origin).Seconds()
		if len(xs) > 0 && x <= xs[len(xs)-1] {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, v)
	}

	out := make([]float64, len(grid))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(xs) == 0 {
		return out
	}

	var predict func(float64) float64
	switch {
	case len(xs) >= 3:
		var fb interp.FritschButland
		if err := fb.Fit(xs, ys); err != nil {
			return out
		}
		predict = fb.Predict
	case len(xs) == 2:
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			return out
		}
		predict = pl.Predict
	default:
		predict = func(float64) float64 { return ys[0] }
	}

	lo, hi := xs[0], xs[len(xs)-1]
	for i, t := range grid {
		x := t.Sub(origin).Seconds()
		if x < lo || x > hi {
			continue
		}
		out[i] = predict(x)
	}
	return out
}

// join inner-joins hourly (temperature, wind) and quarterly (ghi, dni, dhi)
// frames on timestamp, skipping rows with any missing value.
func join(hourly, quarterly *frame) Series {
	index := make(map[int64]int, len(hourly.times))
	for i, t := range hourly.times {
		index[t.Unix()] = i
	}

	var series Series
	for j, t := range quarterly.times {
		i, ok := index[t.Unix()]
		if !ok {
			continue
		}
		sample := Sample{
			Time:      t,
			TempAir:   hourly.columns[0][i],
			WindSpeed: hourly.columns[1][i],
			GHI:       quarterly.columns[0][j],
			DNI:       quarterly.columns[1][j],
			DHI:       quarterly.columns[2][j],
		}
		if anyNaN(sample.TempAir, sample.WindSpeed, sample.GHI, sample.DNI, sample.DHI) {
			continue
		}
		series = append(series, sample)
	}
	return series
}

func anyNaN(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
