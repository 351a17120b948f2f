package production

import (
	"time"
)

// Resolution of every simulated series.
const Resolution = 5 * time.Minute

const intervalsPerHour = float64(time.Hour / Resolution)

// PowerSample is the instantaneous AC output at a 5-minute timestamp.
type PowerSample struct {
	Time    time.Time `json:"time"`
	ACWatts float64   `json:"ac_W"`
}

// Point is a timestamped derived value (Wh or kWh depending on the series).
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

func between(samples []PowerSample, start, end time.Time) []PowerSample {
	var out []PowerSample
	for _, s := range samples {
		if s.Time.Before(start) || s.Time.After(end) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func pointsBetween(points []Point, start, end time.Time) []Point {
	var out []Point
	for _, p := range points {
		if p.Time.Before(start) || p.Time.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// energy converts instantaneous power into energy per interval: the mean of a
// sample and its successor over one 5-minute interval. The last sample has no
// successor and is averaged with 0.
func energy(samples []PowerSample) []Point {
	out := make([]Point, len(samples))
	for i, s := range samples {
		next := 0.0
		if i+1 < len(samples) {
			next = samples[i+1].ACWatts
		}
		out[i] = Point{Time: s.Time, Value: (s.ACWatts + next) / 2 / intervalsPerHour}
	}
	return out
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, loc)
}

func startOfHour(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return t.Add(-time.Duration(local.Minute())*time.Minute -
		time.Duration(local.Second())*time.Second -
		time.Duration(local.Nanosecond()))
}

// dayKey identifies a local calendar day.
func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// dailyCumulative sums Wh within each local day, resetting at midnight, in kWh.
func dailyCumulative(wh []Point, loc *time.Location) []Point {
	out := make([]Point, len(wh))
	day := ""
	total := 0.0
	for i, p := range wh {
		if key := dayKey(p.Time, loc); key != day {
			day = key
			total = 0
		}
		total += p.Value
		out[i] = Point{Time: p.Time, Value: total / 1000}
	}
	return out
}

// groupSum sums Wh into buckets keyed by bucket start, in kWh, preserving order.
func groupSum(wh []Point, bucket func(time.Time) time.Time) []Point {
	var out []Point
	for _, p := range wh {
		b := bucket(p.Time)
		if len(out) == 0 || !out[len(out)-1].Time.Equal(b) {
			out = append(out, Point{Time: b})
		}
		out[len(out)-1].Value += p.Value / 1000
	}
	return out
}
