package solar

import (
	"math"
	"time"
)

const (
	solarConstant = 1366.1
	groundAlbedo  = 0.25
	ashraeB       = 0.05
)

// ExtraRadiation is the extraterrestrial normal irradiance (Spencer 1971).
func ExtraRadiation(t time.Time) float64 {
	b := 2 * math.Pi * float64(t.YearDay()) / 365
	ratio := 1.00011 + 0.034221*math.Cos(b) + 0.00128*math.Sin(b) +
		0.000719*math.Cos(2*b) + 0.000077*math.Sin(2*b)
	return solarConstant * ratio
}

// AltitudeToPressure returns the standard atmosphere pressure in Pa.
func AltitudeToPressure(altitude float64) float64 {
	return 100 * math.Pow((44331.514-altitude)/11880.516, 1/0.1902632)
}

// AOIProjection is the cosine of the angle of incidence on a tilted surface.
func AOIProjection(tilt, surfaceAzimuth, zenith, sunAzimuth float64) float64 {
	p := math.Cos(rad(tilt))*math.Cos(rad(zenith)) +
		math.Sin(rad(tilt))*math.Sin(rad(zenith))*math.Cos(rad(sunAzimuth-surfaceAzimuth))
	return clampUnit(p)
}

// POA holds plane-of-array irradiance components in W/m².
type POA struct {
	Global  float64
	Direct  float64
	Diffuse float64
	AOI     float64
}

// PlaneOfArray transposes GHI/DNI/DHI onto a tilted surface with the Hay-Davies
// sky diffuse model and an isotropic ground reflection.
func PlaneOfArray(tilt, surfaceAzimuth float64, sun Position, ghi, dni, dhi, dniExtra float64) POA {
	cosAOI := AOIProjection(tilt, surfaceAzimuth, sun.ApparentZenith, sun.Azimuth)
	aoi := deg(math.Acos(cosAOI))

	ai := 0.0
	if dniExtra > 0 {
		ai = dni / dniExtra
	}
	rb := math.Max(cosAOI, 0) / math.Max(math.Cos(rad(sun.ApparentZenith)), 0.01745)
	isotropic := math.Max(dhi*(1-ai)*0.5*(1+math.Cos(rad(tilt))), 0)
	circumsolar := math.Max(dhi*ai*rb, 0)
	ground := ghi * groundAlbedo * (1 - math.Cos(rad(tilt))) * 0.5

	direct := math.Max(dni*cosAOI, 0)
	diffuse := isotropic + circumsolar + ground
	return POA{
		Global:  direct + diffuse,
		Direct:  direct,
		Diffuse: diffuse,
		AOI:     aoi,
	}
}

// ASHRAEIAM is the incidence angle modifier for the direct component.
func ASHRAEIAM(aoi float64) float64 {
	if math.Abs(aoi) >= 90 {
		return 0
	}
	iam := 1 - ashraeB*(1/math.Cos(rad(aoi))-1)
	return math.Max(iam, 0)
}
