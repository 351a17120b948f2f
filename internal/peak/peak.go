// Package peak picks the start of the best production window for running an
// appliance, given forecast energy and air temperature.
package peak

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Resolution is the spacing of the rows Select works on.
const Resolution = 5 * time.Minute

// Rounding precision accepted by Select, in decimal places.
const (
	MinPrecision = -10
	MaxPrecision = 15
)

var (
	ErrInvalidQuery = errors.New("invalid peak query")
	ErrNoData       = errors.New("no data for the requested period")
)

// Order breaks ties between equally good windows.
type Order string

const (
	First Order = "first"
	Last  Order = "last"
)

func ParseOrder(s string) (Order, error) {
	switch o := Order(s); o {
	case First, Last:
		return o, nil
	}
	return "", fmt.Errorf("%w: order must be %q or %q", ErrInvalidQuery, First, Last)
}

// Row is one 5-minute step: the energy produced during it and the air
// temperature at its start.
type Row struct {
	Time    time.Time
	Wh      float64
	TempAir float64
}

type Query struct {
	Start     time.Time
	End       time.Time
	Duration  time.Duration
	Order     Order
	Precision int
	MinKwh    *float64
	MinTemp   *float64
}

// ValidPrecision reports whether Select accepts p as a rounding precision.
func ValidPrecision(p int) bool {
	return p >= MinPrecision && p <= MaxPrecision
}

func (q Query) Validate() error {
	if !q.End.After(q.Start) {
		return fmt.Errorf("%w: end should be greater than start", ErrInvalidQuery)
	}
	if q.Duration <= 0 || q.Duration%Resolution != 0 {
		return fmt.Errorf("%w: duration must be a positive multiple of %s", ErrInvalidQuery, Resolution)
	}
	if _, err := ParseOrder(string(q.Order)); err != nil {
		return err
	}
	if !ValidPrecision(q.Precision) {
		return fmt.Errorf("%w: precision must be between %d and %d", ErrInvalidQuery, MinPrecision, MaxPrecision)
	}
	return nil
}

type window struct {
	time      time.Time
	kwh       float64
	temp      float64
	pointTemp float64

	kwhRounded  decimal.Decimal
	tempRounded decimal.Decimal
}

// Select returns the start of the window of q.Duration that best satisfies q.
// rows must extend q.Duration past q.End so that late windows are complete.
//
// Windows reaching min_kwh win outright, subject to min_temp on their starting
// temperature. Otherwise windows are compared on production rounded to
// q.Precision digits, and temperature is used to break ties or, on a dull
// day, to decide alone.
func Select(rows []Row, q Query) (time.Time, error) {
	if err := q.Validate(); err != nil {
		return time.Time{}, err
	}

	windows := rolling(rows, q)
	if len(windows) == 0 {
		return time.Time{}, ErrNoData
	}

	if q.MinKwh != nil {
		if w, ok := q.primary(windows); ok {
			return w.time, nil
		}
	}
	return q.fallback(windows).time, nil
}

func rolling(rows []Row, q Query) []window {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	size := int(q.Duration / Resolution)
	places := int32(q.Precision)

	var out []window
	for i := 0; i+size <= len(sorted); i++ {
		t := sorted[i].Time
		if t.Before(q.Start) || t.After(q.End) {
			continue
		}

		wh, temp := 0.0, 0.0
		for _, r := range sorted[i : i+size] {
			wh += r.Wh
			temp += r.TempAir
		}
		kwh := wh / 1000
		temp /= float64(size)

		out = append(out, window{
			time:        t,
			kwh:         kwh,
			temp:        temp,
			pointTemp:   sorted[i].TempAir,
			kwhRounded:  decimal.NewFromFloat(kwh).RoundBank(places),
			tempRounded: decimal.NewFromFloat(temp).RoundBank(places),
		})
	}
	return out
}

func (q Query) pick(ws []window) window {
	if q.Order == Last {
		return ws[len(ws)-1]
	}
	return ws[0]
}

func (q Query) primary(windows []window) (window, bool) {
	qualifying := filter(windows, func(w window) bool { return w.kwh >= *q.MinKwh })
	if len(qualifying) == 0 {
		return window{}, false
	}

	candidate := q.pick(qualifying)
	if q.MinTemp == nil {
		return candidate, true
	}

	if candidate.pointTemp < *q.MinTemp {
		warm := filter(qualifying, func(w window) bool { return w.pointTemp >= *q.MinTemp })
		if len(warm) > 0 {
			candidate = q.pick(warm)
		}
	}
	return candidate, candidate.pointTemp >= *q.MinTemp
}

func (q Query) fallback(windows []window) window {
	sunniest := maxBy(windows, func(w window) decimal.Decimal { return w.kwhRounded })
	warmest := maxBy(windows, func(w window) decimal.Decimal { return w.tempRounded })
	bestSolar := q.pick(sunniest)
	bestTemp := q.pick(warmest)

	warmestOfSunniest := func() []window {
		return maxBy(sunniest, func(w window) decimal.Decimal { return w.tempRounded })
	}

	switch {
	case q.MinKwh != nil && bestSolar.kwh < 0.25*(*q.MinKwh):
		// not sunny
		if q.MinTemp != nil {
			return bestTemp
		}
		return bestSolar

	case q.MinKwh != nil && bestSolar.kwh < 0.75*(*q.MinKwh):
		// partially sunny
		if q.MinTemp != nil {
			return q.pick(warmestOfSunniest())
		}
		return bestSolar

	default:
		if q.MinTemp != nil && bestSolar.temp < *q.MinTemp {
			if ws := warmestOfSunniest(); len(ws) > 0 {
				return q.pick(ws)
			}
		}
		return bestSolar
	}
}

func filter(ws []window, keep func(window) bool) []window {
	var out []window
	for _, w := range ws {
		if keep(w) {
			out = append(out, w)
		}
	}
	return out
}

// maxBy keeps the windows sharing the maximum key, in time order.
func maxBy(ws []window, key func(window) decimal.Decimal) []window {
	var out []window
	for _, w := range ws {
		switch {
		case len(out) == 0:
			out = append(out, w)
		case key(w).GreaterThan(key(out[0])):
			out = append(out[:0], w)
		case key(w).Equal(key(out[0])):
			out = append(out, w)
		}
	}
	return out
}
