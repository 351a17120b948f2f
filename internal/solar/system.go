package solar

import (
	"fmt"
	"time"

	"soleil-forecast/config"
)

// Clear sky runs have no weather forecast for these.
const (
	clearSkyTempAir   = 20.0
	clearSkyWindSpeed = 0.0
)

// Array is one fixed-mount string of identical modules.
type Array struct {
	Tilt        float64
	Azimuth     float64
	ModuleCount int
}

// Conditions drive one simulation step.
type Conditions struct {
	Time      time.Time
	GHI       float64
	DNI       float64
	DHI       float64
	TempAir   float64
	WindSpeed float64
}

// Output is the simulated inverter output at one timestamp. ACWatts is not
// clamped: at night it carries the inverter's negative tare.
type Output struct {
	Time    time.Time
	ACWatts float64
	DCWatts float64
}

// System simulates a multi-array PV installation behind a single inverter.
type System struct {
	lat, lon float64
	pressure float64
	arrays   []Array
	module   Module
	inverter Inverter
}

func NewSystem(loc config.LocationConfig, sc config.SolarConfig) (*System, error) {
	arrays := []Array{
		{Tilt: sc.Array1.Tilt, Azimuth: sc.Array1.Azimuth, ModuleCount: sc.Array1.ModuleCount},
		{Tilt: sc.Array2.Tilt, Azimuth: sc.Array2.Azimuth, ModuleCount: sc.Array2.ModuleCount},
	}
	for i, a := range arrays {
		if a.ModuleCount < 0 {
			return nil, fmt.Errorf("array%d: module count must not be negative", i+1)
		}
	}

	return &System{
		lat:      loc.Lat,
		lon:      loc.Lon,
		pressure: AltitudeToPressure(loc.Altitude),
		arrays:   arrays,
		module: Module{
			AlphaSc: sc.Panel.AlphaSc,
			ARef:    sc.Panel.ARef,
			ILRef:   sc.Panel.ILRef,
			IoRef:   sc.Panel.IoRef,
			RshRef:  sc.Panel.RshRef,
			Rs:      sc.Panel.Rs,
			Adjust:  sc.Panel.Adjust,
		},
		inverter: Inverter{
			Paco: sc.Inverter.Paco,
			Pdco: sc.Inverter.Pdco,
			Vdco: sc.Inverter.Vdco,
			Pso:  sc.Inverter.Pso,
			C0:   sc.Inverter.C0,
			C1:   sc.Inverter.C1,
			C2:   sc.Inverter.C2,
			C3:   sc.Inverter.C3,
			Pnt:  sc.Inverter.Pnt,
		},
	}, nil
}

// RatedPower is the inverter's maximum AC output.
func (s *System) RatedPower() float64 {
	return s.inverter.Paco
}

// ClearSky builds ideal-sky conditions for the given timestamps.
func (s *System) ClearSky(times []time.Time) []Conditions {
	out := make([]Conditions, len(times))
	for i, t := range times {
		sun := SunPosition(t, s.lat, s.lon)
		irr := SimplifiedSolis(sun.ApparentElevation, s.pressure, ExtraRadiation(t))
		out[i] = Conditions{
			Time:      t,
			GHI:       irr.GHI,
			DNI:       irr.DNI,
			DHI:       irr.DHI,
			TempAir:   clearSkyTempAir,
			WindSpeed: clearSkyWindSpeed,
		}
	}
	return out
}

// Run simulates every step independently.
func (s *System) Run(conditions []Conditions) []Output {
	out := make([]Output, len(conditions))
	inputs := make([]DCInput, len(s.arrays))
	for i, c := range conditions {
		sun := SunPosition(c.Time, s.lat, s.lon)
		dniExtra := ExtraRadiation(c.Time)

		dcTotal := 0.0
		for j, array := range s.arrays {
			inputs[j] = s.arrayOutput(array, sun, c, dniExtra)
			dcTotal += inputs[j].Power
		}

		out[i] = Output{
			Time:    c.Time,
			ACWatts: s.inverter.ACPower(inputs...),
			DCWatts: dcTotal,
		}
	}
	return out
}

func (s *System) arrayOutput(array Array, sun Position, c Conditions, dniExtra float64) DCInput {
	if array.ModuleCount == 0 {
		return DCInput{}
	}

	poa := PlaneOfArray(array.Tilt, array.Azimuth, sun, c.GHI, c.DNI, c.DHI, dniExtra)
	effective := poa.Direct*ASHRAEIAM(poa.AOI) + poa.Diffuse
	cellTemp := SAPMCellTemperature(poa.Global, c.TempAir, c.WindSpeed)

	pmp, vmp := s.module.MaxPower(effective, cellTemp)
	n := float64(array.ModuleCount)
	return DCInput{Power: pmp * n, Voltage: vmp * n}
}
