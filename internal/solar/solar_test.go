package solar

import (
	"math"
	"testing"
	"time"

	"soleil-forecast/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSolarConfig() config.SolarConfig {
	return config.SolarConfig{
		Array1: config.ArrayConfig{Tilt: 35, Azimuth: 180, Height: 5, ModuleCount: 6},
		Array2: config.ArrayConfig{Tilt: 35, Azimuth: 90, Height: 5, ModuleCount: 6},
		Panel: config.PanelConfig{
			AlphaSc: 0.004215,
			ARef:    2.059511,
			ILRef:   10.385126,
			IoRef:   4.5757e-10,
			Rs:      0.218704,
			RshRef:  976.143086,
			Adjust:  9.872948,
		},
		Inverter: config.SandiaInverter{
			Paco: 5000,
			Pdco: 5059.411133,
			Vdco: 360,
			Pso:  1,
			C0:   -0.000002,
			C1:   0.000021,
			C2:   0.000814,
			C3:   -0.000727,
			Pnt:  1.5,
		},
	}
}

func TestSunPositionSolsticeNoon(t *testing.T) {
	// maximum elevation in Brussels on the June solstice is 90 - lat + 23.44
	day := time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)
	best := -90.0
	for m := 0; m < 24*60; m++ {
		p := SunPosition(day.Add(time.Duration(m)*time.Minute), 50.85, 4.35)
		if p.ApparentElevation > best {
			best = p.ApparentElevation
		}
	}
	assert.InDelta(t, 90-50.85+23.44, best, 0.2)
}

func TestSunPositionAzimuth(t *testing.T) {
	morning := SunPosition(time.Date(2024, 6, 21, 6, 0, 0, 0, time.UTC), 50.85, 4.35)
	evening := SunPosition(time.Date(2024, 6, 21, 18, 0, 0, 0, time.UTC), 50.85, 4.35)
	assert.Less(t, morning.Azimuth, 180.0)
	assert.Greater(t, evening.Azimuth, 180.0)

	night := SunPosition(time.Date(2024, 6, 21, 23, 30, 0, 0, time.UTC), 50.85, 4.35)
	assert.Less(t, night.ApparentElevation, 0.0)
}

func TestSimplifiedSolis(t *testing.T) {
	irr := SimplifiedSolis(60, referencePressure, 1366.1)
	assert.InDelta(t, 925, irr.DNI, 75)
	assert.InDelta(t, 925, irr.GHI, 75)
	assert.InDelta(t, 120, irr.DHI, 40)

	// closure: GHI is close to DNI * sin(elevation) + DHI
	assert.InDelta(t, irr.DNI*math.Sin(rad(60))+irr.DHI, irr.GHI, 30)

	assert.Equal(t, Irradiance{}, SimplifiedSolis(-3, referencePressure, 1366.1))
}

func TestAltitudeToPressure(t *testing.T) {
	assert.InDelta(t, 101325, AltitudeToPressure(0), 50)
	assert.Less(t, AltitudeToPressure(1000), AltitudeToPressure(0))
}

func TestASHRAEIAM(t *testing.T) {
	assert.InDelta(t, 1, ASHRAEIAM(0), 1e-12)
	assert.InDelta(t, 0.95, ASHRAEIAM(60), 1e-12)
	assert.Equal(t, 0.0, ASHRAEIAM(90))
	assert.Equal(t, 0.0, ASHRAEIAM(89.9))
}

func TestSAPMCellTemperature(t *testing.T) {
	assert.Equal(t, 20.0, SAPMCellTemperature(0, 20, 0))
	hot := SAPMCellTemperature(1000, 20, 0)
	windy := SAPMCellTemperature(1000, 20, 10)
	assert.Greater(t, hot, 60.0)
	assert.Less(t, windy, hot)
}

func TestModuleMaxPower(t *testing.T) {
	sc := testSolarConfig()
	sys, err := NewSystem(config.LocationConfig{Lat: 50.85, Lon: 4.35}, sc)
	require.NoError(t, err)

	pmp, vmp := sys.module.MaxPower(1000, 25)
	assert.InDelta(t, 400, pmp, 60)
	assert.Greater(t, vmp, 30.0)
	assert.Less(t, vmp, 50.0)

	p := sys.module.operatingParams(1000, 25)
	assert.Less(t, (vmp-1)*p.current(vmp-1), pmp)
	assert.Less(t, (vmp+1)*p.current(vmp+1), pmp)

	low, _ := sys.module.MaxPower(200, 25)
	hot, _ := sys.module.MaxPower(1000, 60)
	assert.Less(t, low, pmp)
	assert.Less(t, hot, pmp)

	zero, _ := sys.module.MaxPower(0, 25)
	assert.Equal(t, 0.0, zero)
}

func TestLambertWExp(t *testing.T) {
	for _, x := range []float64{1e-12, 0.5, 1, math.E, 10, 1e6} {
		w := lambertWExp(math.Log(x))
		assert.InDelta(t, x, w*math.Exp(w), 1e-9*math.Max(1, x))
	}

	// far beyond float64 range: w + ln(w) = logX
	w := lambertWExp(5000)
	assert.InDelta(t, 5000, w+math.Log(w), 1e-9)
}

func TestInverterACPower(t *testing.T) {
	inv := testInverter()

	assert.Equal(t, -1.5, inv.ACPower(DCInput{Power: 0.5, Voltage: 300}))
	assert.Equal(t, 5000.0, inv.ACPower(DCInput{Power: 4000, Voltage: 360}, DCInput{Power: 4000, Voltage: 360}))

	ac := inv.ACPower(DCInput{Power: 2000, Voltage: 360})
	assert.Greater(t, ac, 0.9*2000)
	assert.Less(t, ac, 2000.0)

	split := inv.ACPower(DCInput{Power: 1000, Voltage: 360}, DCInput{Power: 1000, Voltage: 360})
	assert.InDelta(t, ac, split, 1e-9)
}

func testInverter() Inverter {
	sc := testSolarConfig().Inverter
	return Inverter{
		Paco: sc.Paco, Pdco: sc.Pdco, Vdco: sc.Vdco, Pso: sc.Pso,
		C0: sc.C0, C1: sc.C1, C2: sc.C2, C3: sc.C3, Pnt: sc.Pnt,
	}
}

func TestSystemClearSkyDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)
	sys, err := NewSystem(config.LocationConfig{Lat: 50.85, Lon: 4.35, Altitude: 50}, testSolarConfig())
	require.NoError(t, err)

	day := time.Date(2024, 6, 21, 0, 0, 0, 0, loc)
	var times []time.Time
	for ts := day; ts.Before(day.AddDate(0, 0, 1)); ts = ts.Add(5 * time.Minute) {
		times = append(times, ts)
	}

	out := sys.Run(sys.ClearSky(times))
	require.Len(t, out, len(times))

	peak := 0.0
	for _, o := range out {
		assert.LessOrEqual(t, o.ACWatts, sys.RatedPower())
		peak = math.Max(peak, o.ACWatts)
	}
	assert.Greater(t, peak, 1500.0)
	assert.Equal(t, -1.5, out[0].ACWatts, "midnight draws the night tare")
}
