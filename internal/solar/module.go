package solar

import (
	"math"
)

const (
	boltzmannEV  = 8.617332478e-05
	referenceK   = 25 + 273.15
	referenceIrr = 1000.0
	bandgapRef   = 1.121
	bandgapDT    = -0.0002677

	// SAPM close_mount_glass_glass
	sapmA      = -2.98
	sapmB      = -0.0471
	sapmDeltaT = 1.0
)

// Module holds CEC single diode parameters at reference conditions.
type Module struct {
	AlphaSc float64
	ARef    float64
	ILRef   float64
	IoRef   float64
	RshRef  float64
	Rs      float64
	Adjust  float64
}

// SAPMCellTemperature returns the cell temperature in °C from plane-of-array
// irradiance, air temperature and wind speed.
func SAPMCellTemperature(poaGlobal, tempAir, windSpeed float64) float64 {
	module := poaGlobal*math.Exp(sapmA+sapmB*windSpeed) + tempAir
	return module + poaGlobal/referenceIrr*sapmDeltaT
}

// diodeParams are the five single diode parameters at operating conditions.
type diodeParams struct {
	il, i0, rs, rsh, nNsVth float64
}

// operatingParams translates reference parameters to the given effective
// irradiance and cell temperature (De Soto with the CEC Adjust factor).
func (m Module) operatingParams(effective, cellTemp float64) diodeParams {
	tk := cellTemp + 273.15
	alpha := m.AlphaSc * (1 - m.Adjust/100)
	eg := bandgapRef * (1 + bandgapDT*(tk-referenceK))

	return diodeParams{
		il:     effective / referenceIrr * (m.ILRef + alpha*(tk-referenceK)),
		i0:     m.IoRef * math.Pow(tk/referenceK, 3) * math.Exp(bandgapRef/(boltzmannEV*referenceK)-eg/(boltzmannEV*tk)),
		rs:     m.Rs,
		rsh:    m.RshRef * referenceIrr / effective,
		nNsVth: m.ARef * tk / referenceK,
	}
}

// MaxPower returns the maximum power point (W, V) of a single module.
func (m Module) MaxPower(effective, cellTemp float64) (pmp, vmp float64) {
	if effective <= 0 {
		return 0, 0
	}
	p := m.operatingParams(effective, cellTemp)
	if p.il <= 0 {
		return 0, 0
	}

	voc := p.voltage(0)
	if voc <= 0 || math.IsNaN(voc) {
		return 0, 0
	}

	power := func(v float64) float64 { return v * p.current(v) }

	// golden section search, P(V) is unimodal on [0, Voc]
	const phi = 0.6180339887498949
	lo, hi := 0.0, voc
	x1 := hi - phi*(hi-lo)
	x2 := lo + phi*(hi-lo)
	f1, f2 := power(x1), power(x2)
	for i := 0; i < 80 && hi-lo > 1e-9; i++ {
		if f1 < f2 {
			lo, x1, f1 = x1, x2, f2
			x2 = lo + phi*(hi-lo)
			f2 = power(x2)
		} else {
			hi, x2, f2 = x2, x1, f1
			x1 = hi - phi*(hi-lo)
			f1 = power(x1)
		}
	}
	vmp = (lo + hi) / 2
	pmp = power(vmp)
	if pmp < 0 {
		return 0, 0
	}
	return pmp, vmp
}

// current solves the single diode equation for I at voltage v.
func (p diodeParams) current(v float64) float64 {
	gsh := 1 / p.rsh
	scale := p.nNsVth * (p.rs*gsh + 1)
	logArg := math.Log(p.rs*p.i0/scale) + (p.rs*(p.il+p.i0)+v)/scale
	w := lambertWExp(logArg)
	return (p.il+p.i0-v*gsh)/(p.rs*gsh+1) - (p.nNsVth/p.rs)*w
}

// voltage solves the single diode equation for V at current i.
func (p diodeParams) voltage(i float64) float64 {
	logArg := math.Log(p.i0) + math.Log(p.rsh) - math.Log(p.nNsVth) + p.rsh*(p.il+p.i0-i)/p.nNsVth
	w := lambertWExp(logArg)
	return (p.il+p.i0-i)*p.rsh - i*p.rs - p.nNsVth*w
}

// lambertWExp evaluates the principal branch W(exp(logX)) without forming
// exp(logX), which overflows for realistic shunt resistances.
func lambertWExp(logX float64) float64 {
	if logX > 1 {
		w := logX - math.Log(logX)
		for i := 0; i < 50; i++ {
			step := (w + math.Log(w) - logX) / (1 + 1/w)
			w -= step
			if math.Abs(step) < 1e-13*math.Max(1, math.Abs(w)) {
				break
			}
		}
		return w
	}

	x := math.Exp(logX)
	w := math.Log1p(x)
	for i := 0; i < 50; i++ {
		ew := math.Exp(w)
		f := w*ew - x
		step := f / (ew*(w+1) - (w+2)*f/(2*w+2))
		w -= step
		if math.Abs(step) < 1e-15 {
			break
		}
	}
	return w
}
