package solar

import "math"

const (
	referencePressure   = 101325.0
	solisAOD700         = 0.1
	solisPrecipitableWV = 1.0
)

// Irradiance is a GHI/DNI/DHI triple in W/m².
type Irradiance struct {
	GHI float64
	DNI float64
	DHI float64
}

// SimplifiedSolis is the Ineichen 2008 simplified Solis clear sky model.
func SimplifiedSolis(apparentElevation, pressure, dniExtra float64) Irradiance {
	if apparentElevation <= 0 {
		return Irradiance{}
	}

	w := math.Max(solisPrecipitableWV, 0.2)
	aod := solisAOD700
	lw := math.Log(w)
	lp := math.Log(pressure / referencePressure)

	io0 := 1.08 * math.Pow(w, 0.0051)
	i01 := 0.97 * math.Pow(w, 0.032)
	i02 := 0.12 * math.Pow(w, 0.56)
	i0p := dniExtra * (i02*aod*aod + i01*aod + io0 + 0.071*lp)

	tb1 := 1.82 + 0.056*lw + 0.0071*lw*lw
	tb0 := 0.33 + 0.045*lw + 0.0096*lw*lw
	tbp := 0.0089*w + 0.13
	taub := tb1*aod + tb0 + tbp*lp
	b1 := 0.00925*aod*aod + 0.0148*aod - 0.0172
	b0 := -0.7565*aod*aod + 0.5057*aod + 0.4557
	b := b1*lw + b0

	tg1 := 1.24 + 0.047*lw + 0.0061*lw*lw
	tg0 := 0.27 + 0.043*lw + 0.0090*lw*lw
	tgp := 0.0079*w + 0.1
	taug := tg1*aod + tg0 + tgp*lp
	g := -0.0147*lw - 0.3079*aod*aod + 0.2846*aod + 0.3798

	var td4, td3, td2, td1, td0, tdp float64
	if aod < 0.05 {
		td4 = 86*w - 13800
		td3 = -3.11*w + 79.4
		td2 = -0.23*w + 74.8
		td1 = 0.092*w - 8.86
		td0 = 0.0042*w + 3.12
		tdp = -0.83 * math.Pow(1+aod, -17.2)
	} else {
		td4 = -0.21*w + 11.6
		td3 = 0.27*w - 20.7
		td2 = -0.134*w + 15.5
		td1 = 0.0554*w - 5.71
		td0 = 0.0057*w + 2.94
		tdp = -0.71 * math.Pow(1+aod, -15.0)
	}
	taud := td4*math.Pow(aod, 4) + td3*math.Pow(aod, 3) + td2*aod*aod + td1*aod + td0 + tdp*lp
	dp := 1 / (18 + 152*aod)
	d := -0.337*aod*aod + 0.63*aod + 0.116 + dp*lp

	sinElev := math.Max(1e-30, math.Sin(rad(apparentElevation)))
	return Irradiance{
		DNI: i0p * math.Exp(-taub/math.Pow(sinElev, b)),
		GHI: i0p * math.Exp(-taug/math.Pow(sinElev, g)) * sinElev,
		DHI: i0p * math.Exp(-taud/math.Pow(sinElev, d)),
	}
}
