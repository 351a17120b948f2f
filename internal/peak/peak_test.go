package peak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 6, 21, 10, 0, 0, 0, time.UTC)

func at(i int) time.Time {
	return base.Add(time.Duration(i) * Resolution)
}

func makeRows(wh []float64, temps []float64) []Row {
	rows := make([]Row, len(wh))
	for i := range wh {
		temp := 20.0
		if temps != nil {
			temp = temps[i]
		}
		rows[i] = Row{Time: at(i), Wh: wh[i], TempAir: temp}
	}
	return rows
}

func ptr(v float64) *float64 { return &v }

func TestSelectBimodalOrder(t *testing.T) {
	rows := makeRows([]float64{0, 0, 10, 0, 0, 0, 10, 0, 0}, nil)
	q := Query{Start: at(0), End: at(8), Duration: Resolution, Precision: 2}

	q.Order = First
	got, err := Select(rows, q)
	require.NoError(t, err)
	assert.Equal(t, at(2), got)

	q.Order = Last
	got, err = Select(rows, q)
	require.NoError(t, err)
	assert.Equal(t, at(6), got)
}

func TestSelectSingleQualifyingWindow(t *testing.T) {
	rows := makeRows([]float64{100, 100, 900, 100, 100, 100}, nil)
	for _, order := range []Order{First, Last} {
		got, err := Select(rows, Query{
			Start: at(0), End: at(5), Duration: Resolution,
			Order: order, Precision: 2, MinKwh: ptr(0.5),
		})
		require.NoError(t, err)
		assert.Equal(t, at(2), got, "order %s", order)
	}
}

func TestSelectUnreachableMinKwhFallsBackToMaxSolar(t *testing.T) {
	rows := makeRows([]float64{10, 50, 100, 200, 300, 200, 100, 50}, nil)
	got, err := Select(rows, Query{
		Start: at(0), End: at(7), Duration: Resolution,
		Order: First, Precision: 3, MinKwh: ptr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, at(4), got)
}

func TestSelectFlatProductionReturnsEarliest(t *testing.T) {
	wh := make([]float64, 30)
	for i := range wh {
		wh[i] = 400
	}
	got, err := Select(makeRows(wh, nil), Query{
		Start: at(0), End: at(24), Duration: 5 * Resolution,
		Order: First, Precision: 2, MinKwh: ptr(1.0),
	})
	require.NoError(t, err)
	assert.Equal(t, at(0), got)
}

func TestSelectPrimaryPathPrefersWarmCandidate(t *testing.T) {
	rows := makeRows(
		[]float64{0, 0, 800, 0, 0, 800, 0},
		[]float64{5, 5, 5, 8, 8, 15, 15},
	)
	got, err := Select(rows, Query{
		Start: at(0), End: at(6), Duration: Resolution,
		Order: First, Precision: 2, MinKwh: ptr(0.5), MinTemp: ptr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, at(5), got)
}

func TestSelectPrimaryPathTooColdFallsThrough(t *testing.T) {
	// both qualifying windows are too cold, and so is every sunniest window
	rows := makeRows(
		[]float64{0, 0, 800, 0, 0, 800, 0},
		[]float64{5, 5, 5, 5, 5, 5, 5},
	)
	got, err := Select(rows, Query{
		Start: at(0), End: at(6), Duration: Resolution,
		Order: Last, Precision: 2, MinKwh: ptr(0.5), MinTemp: ptr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, at(5), got)
}

func TestSelectNotSunnyUsesWarmestWindow(t *testing.T) {
	rows := makeRows(
		[]float64{0, 20, 50, 20, 0, 0},
		[]float64{10, 12, 14, 16, 22, 18},
	)
	got, err := Select(rows, Query{
		Start: at(0), End: at(5), Duration: Resolution,
		Order: First, Precision: 2, MinKwh: ptr(1), MinTemp: ptr(15),
	})
	require.NoError(t, err)
	assert.Equal(t, at(4), got)
}

func TestSelectPartiallySunnyBreaksSolarTieOnTemperature(t *testing.T) {
	// 0.5 kWh is between a quarter and three quarters of min_kwh
	rows := makeRows(
		[]float64{0, 500, 0, 500, 0},
		[]float64{10, 11, 10, 17, 10},
	)
	got, err := Select(rows, Query{
		Start: at(0), End: at(4), Duration: Resolution,
		Order: First, Precision: 2, MinKwh: ptr(1), MinTemp: ptr(20),
	})
	require.NoError(t, err)
	assert.Equal(t, at(3), got)
}

func TestSelectSunnyButColdUsesWarmestOfSunniest(t *testing.T) {
	rows := makeRows(
		[]float64{0, 700, 0, 700, 0},
		[]float64{10, 11, 10, 13, 10},
	)
	got, err := Select(rows, Query{
		Start: at(0), End: at(4), Duration: Resolution,
		Order: First, Precision: 2, MinTemp: ptr(20),
	})
	require.NoError(t, err)
	assert.Equal(t, at(3), got)

	// warm enough: the first sunniest window stands
	got, err = Select(rows, Query{
		Start: at(0), End: at(4), Duration: Resolution,
		Order: First, Precision: 2, MinTemp: ptr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, at(1), got)
}

func TestSelectPrecisionGroupsNearTies(t *testing.T) {
	rows := makeRows([]float64{0, 104, 0, 101, 0}, nil)

	got, err := Select(rows, Query{
		Start: at(0), End: at(4), Duration: Resolution,
		Order: Last, Precision: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, at(3), got)

	got, err = Select(rows, Query{
		Start: at(0), End: at(4), Duration: Resolution,
		Order: Last, Precision: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, at(1), got)
}

func TestSelectRollingWindow(t *testing.T) {
	// a 15 minute window starting at 2 covers the three large samples
	rows := makeRows([]float64{0, 0, 300, 300, 300, 0, 0, 0}, nil)
	got, err := Select(rows, Query{
		Start: at(0), End: at(5), Duration: 3 * Resolution,
		Order: Last, Precision: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, at(2), got)
}

func TestSelectIgnoresCandidatesOutsideRange(t *testing.T) {
	rows := makeRows([]float64{900, 0, 100, 0, 900}, nil)
	got, err := Select(rows, Query{
		Start: at(1), End: at(3), Duration: Resolution,
		Order: First, Precision: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, at(2), got)
}

func TestSelectErrors(t *testing.T) {
	rows := makeRows([]float64{1, 2, 3}, nil)

	_, err := Select(rows, Query{Start: at(2), End: at(1), Duration: Resolution, Order: First})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = Select(rows, Query{Start: at(0), End: at(2), Duration: 7 * time.Minute, Order: First})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = Select(rows, Query{Start: at(0), End: at(2), Duration: Resolution, Order: "middle"})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = Select(nil, Query{Start: at(0), End: at(2), Duration: Resolution, Order: First})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSelectRejectsPrecisionOutOfRange(t *testing.T) {
	rows := makeRows([]float64{1, 2, 3}, nil)
	q := Query{Start: at(0), End: at(2), Duration: Resolution, Order: First}

	for _, p := range []int{MinPrecision - 1, MaxPrecision + 1, 4294967298, 1000000} {
		q.Precision = p
		_, err := Select(rows, q)
		assert.ErrorIs(t, err, ErrInvalidQuery, "precision %d", p)
	}

	for _, p := range []int{MinPrecision, 0, MaxPrecision} {
		q.Precision = p
		_, err := Select(rows, q)
		assert.NoError(t, err, "precision %d", p)
	}
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("last")
	require.NoError(t, err)
	assert.Equal(t, Last, o)

	_, err = ParseOrder("First")
	assert.Error(t, err)
}
