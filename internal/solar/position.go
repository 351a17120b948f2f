package solar

import (
	"math"
	"time"
)

// Position of the sun as seen from the installation, in degrees.
type Position struct {
	Zenith            float64
	ApparentZenith    float64
	ApparentElevation float64
	Azimuth           float64
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
func deg(rad float64) float64 { return rad * 180 / math.Pi }

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// SunPosition implements the NOAA solar position equations, with atmospheric
// refraction applied to the apparent angles.
func SunPosition(t time.Time, lat, lon float64) Position {
	t = t.UTC()
	jd := float64(t.UnixNano())/float64(24*time.Hour) + 2440587.5
	jc := (jd - 2451545) / 36525

	meanLong := math.Mod(280.46646+jc*(36000.76983+jc*0.0003032), 360)
	meanAnom := 357.52911 + jc*(35999.05029-0.0001537*jc)
	ecc := 0.016708634 - jc*(0.000042037+0.0000001267*jc)

	center := math.Sin(rad(meanAnom))*(1.914602-jc*(0.004817+0.000014*jc)) +
		math.Sin(rad(2*meanAnom))*(0.019993-0.000101*jc) +
		math.Sin(rad(3*meanAnom))*0.000289
	trueLong := meanLong + center
	omega := 125.04 - 1934.136*jc
	appLong := trueLong - 0.00569 - 0.00478*math.Sin(rad(omega))

	meanObliq := 23 + (26+(21.448-jc*(46.815+jc*(0.00059-jc*0.001813)))/60)/60
	obliq := meanObliq + 0.00256*math.Cos(rad(omega))
	decl := deg(math.Asin(clampUnit(math.Sin(rad(obliq)) * math.Sin(rad(appLong)))))

	y := math.Pow(math.Tan(rad(obliq/2)), 2)
	eqTime := 4 * deg(y*math.Sin(2*rad(meanLong))-
		2*ecc*math.Sin(rad(meanAnom))+
		4*ecc*y*math.Sin(rad(meanAnom))*math.Cos(2*rad(meanLong))-
		0.5*y*y*math.Sin(4*rad(meanLong))-
		1.25*ecc*ecc*math.Sin(2*rad(meanAnom)))

	minutes := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60 + float64(t.Nanosecond())/6e10
	trueSolar := math.Mod(minutes+eqTime+4*lon, 1440)
	if trueSolar < 0 {
		trueSolar += 1440
	}
	hourAngle := trueSolar/4 - 180

	cosZen := math.Sin(rad(lat))*math.Sin(rad(decl)) + math.Cos(rad(lat))*math.Cos(rad(decl))*math.Cos(rad(hourAngle))
	zenith := deg(math.Acos(clampUnit(cosZen)))

	var azimuth float64
	denom := math.Cos(rad(lat)) * math.Sin(rad(zenith))
	if math.Abs(denom) < 1e-12 {
		azimuth = 180
	} else {
		a := deg(math.Acos(clampUnit((math.Sin(rad(lat))*math.Cos(rad(zenith)) - math.Sin(rad(decl))) / denom)))
		if hourAngle > 0 {
			azimuth = math.Mod(a+180, 360)
		} else {
			azimuth = math.Mod(540-a, 360)
		}
	}

	elevation := 90 - zenith
	apparent := elevation + refraction(elevation)

	return Position{
		Zenith:            zenith,
		ApparentZenith:    90 - apparent,
		ApparentElevation: apparent,
		Azimuth:           azimuth,
	}
}

// refraction returns the correction in degrees for a true elevation.
func refraction(elevation float64) float64 {
	if elevation > 85 {
		return 0
	}
	te := math.Tan(rad(elevation))
	var arcsec float64
	switch {
	case elevation > 5:
		arcsec = 58.1/te - 0.07/math.Pow(te, 3) + 0.000086/math.Pow(te, 5)
	case elevation > -0.575:
		arcsec = 1735 + elevation*(-518.2+elevation*(103.4+elevation*(-12.79+elevation*0.711)))
	default:
		arcsec = -20.772 / te
	}
	return arcsec / 3600
}
