package production

import (
	"math"
	"time"
)

// DefaultAccuracyHalfLife is the number of samples after which an error
// weighs half as much as the most recent one.
const DefaultAccuracyHalfLife = 12.0

// Measurement is an AC power reading taken from the inverter.
type Measurement struct {
	Time  time.Time
	Watts float64
}

// AccuracyReport compares the forecast run with measured production.
type AccuracyReport struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Samples     int       `json:"samples"`
	MAE         float64   `json:"mae_W"`
	DecayedMAE  float64   `json:"decayed_mae_W"`
	ForecastKwh float64   `json:"forecast_kwh"`
	MeasuredKwh float64   `json:"measured_kwh"`
}

// Accuracy matches each measurement to the forecast sample on the nearest
// 5-minute mark. Measurements must be ordered by time; those without a
// forecast counterpart are skipped.
func (s *Snapshot) Accuracy(measured []Measurement, start, end time.Time, halfLife float64) (AccuracyReport, error) {
	power, err := s.ACPower(Forecast, start, end)
	if err != nil {
		return AccuracyReport{}, err
	}

	report := AccuracyReport{Start: start, End: end, ForecastKwh: sumKwh(energy(power))}

	forecast := make(map[int64]float64, len(power))
	for _, p := range power {
		forecast[p.Time.Unix()] = p.ACWatts
	}

	plain := newDecayedMAE(math.Inf(1))
	decayed := newDecayedMAE(halfLife)
	var slots []PowerSample
	counts := map[int64]int{}
	for _, m := range measured {
		if m.Time.Before(start) || m.Time.After(end) {
			continue
		}
		t := m.Time.Round(Resolution)
		expected, ok := forecast[t.Unix()]
		if !ok {
			continue
		}
		plain.apply(expected, m.Watts)
		decayed.apply(expected, m.Watts)
		report.Samples++

		// readings sharing a 5-minute mark are averaged for the energy total
		n := counts[t.Unix()]
		if n == 0 {
			slots = append(slots, PowerSample{Time: t})
		}
		last := &slots[len(slots)-1]
		if last.Time.Equal(t) {
			last.ACWatts = (last.ACWatts*float64(n) + m.Watts) / float64(n+1)
		}
		counts[t.Unix()] = n + 1
	}

	report.MAE = plain.value()
	report.DecayedMAE = decayed.value()
	report.MeasuredKwh = sumKwh(energy(slots))
	return report, nil
}

// decayedMAE is a mean absolute error in which older errors fade out; an error
// applied halfLife samples ago weighs half as much as the latest one.
type decayedMAE struct {
	sum    float64
	count  float64
	weight float64
}

func newDecayedMAE(halfLife float64) *decayedMAE {
	return &decayedMAE{weight: math.Pow(0.5, 1/halfLife)}
}

func (a *decayedMAE) apply(expected, actual float64) {
	a.sum = a.sum*a.weight + math.Abs(expected-actual)
	a.count = a.count*a.weight + 1
}

func (a *decayedMAE) value() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / a.count
}
