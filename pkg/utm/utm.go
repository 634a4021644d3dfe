// Package utm projects WGS84 geographic coordinates into the projected
// systems Sentinel-2 assets are delivered in: the UTM zones (EPSG 326xx for
// the northern hemisphere, 327xx for the southern) and web mercator
// (EPSG 3857). Accuracy of the transverse mercator series is well below a
// centimetre inside a zone, far finer than a 10 m pixel.
package utm

import (
	"errors"
	"fmt"
	"math"
)

// WGS84 ellipsoid
const (
	semiMajorAxis = 6378137.0
	flattening    = 1 / 298.257223563
	scaleFactor   = 0.9996 // k0 at the central meridian
	falseEasting  = 500000.0
	falseNorthing = 10000000.0 // applied in the southern hemisphere only
)

// EPSG codes understood by Project
const (
	EPSGGeographic   = 4326
	EPSGWebMercator  = 3857
	epsgUTMNorthBase = 32600
	epsgUTMSouthBase = 32700
)

// ErrUnsupportedCRS is returned for codes that are neither geographic, UTM nor web mercator
var ErrUnsupportedCRS = errors.New("unsupported coordinate reference system")

// Zone identifies one UTM zone
type Zone struct {
	Number int  // 1..60
	South  bool // southern hemisphere, false northing applied
}

// EPSG returns the WGS84 EPSG code for the zone
func (z Zone) EPSG() int {
	if z.South {
		return epsgUTMSouthBase + z.Number
	}
	return epsgUTMNorthBase + z.Number
}

// CentralMeridian returns the longitude of the zone's central meridian in degrees
func (z Zone) CentralMeridian() float64 {
	return float64(z.Number*6 - 183)
}

// ZoneFromEPSG decodes a 326xx/327xx code
func ZoneFromEPSG(code int) (Zone, error) {
	switch {
	case code > epsgUTMNorthBase && code <= epsgUTMNorthBase+60:
		return Zone{Number: code - epsgUTMNorthBase}, nil
	case code > epsgUTMSouthBase && code <= epsgUTMSouthBase+60:
		return Zone{Number: code - epsgUTMSouthBase, South: true}, nil
	}
	return Zone{}, fmt.Errorf("EPSG:%d: %w", code, ErrUnsupportedCRS)
}

// ZoneFor returns the standard zone containing a longitude/latitude
func ZoneFor(lon, lat float64) Zone {
	n := int(math.Floor((lon+180)/6)) + 1
	if n > 60 {
		n = 60
	}
	if n < 1 {
		n = 1
	}
	return Zone{Number: n, South: lat < 0}
}

// IsGeographic reports whether a code needs no projection
func IsGeographic(code int) bool {
	return code == 0 || code == EPSGGeographic
}

// Project converts lon/lat degrees into the coordinate system named by an
// EPSG code. Geographic codes are passed through unchanged.
func Project(code int, lon, lat float64) (x, y float64, err error) {
	if IsGeographic(code) {
		return lon, lat, nil
	}
	if code == EPSGWebMercator {
		x, y = WebMercator(lon, lat)
		return x, y, nil
	}
	zone, err := ZoneFromEPSG(code)
	if err != nil {
		return 0, 0, err
	}
	x, y = Forward(zone, lon, lat)
	return x, y, nil
}

// WebMercator projects onto the spherical pseudo-mercator used by EPSG:3857
func WebMercator(lon, lat float64) (x, y float64) {
	x = semiMajorAxis * degToRad(lon)
	y = semiMajorAxis * math.Log(math.Tan(math.Pi/4+degToRad(lat)/2))
	return x, y
}

// Forward projects lon/lat into easting/northing metres for the given zone.
// The zone does not have to be the one containing the point; rasters near a
// zone boundary are routinely delivered in the neighbouring zone.
func Forward(zone Zone, lon, lat float64) (easting, northing float64) {
	e2 := flattening * (2 - flattening)
	ep2 := e2 / (1 - e2)

	phi := degToRad(lat)
	dLambda := degToRad(lon - zone.CentralMeridian())

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := semiMajorAxis / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	a := cosPhi * dLambda

	m := meridianArc(phi, e2)

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	easting = scaleFactor*n*(a+(1-t+c)*a3/6+(5-18*t+t*t+72*c-58*ep2)*a5/120) + falseEasting
	northing = scaleFactor * (m + n*tanPhi*(a2/2+(5-t+9*c+4*c*c)*a4/24+(61-58*t+t*t+600*c-330*ep2)*a6/720))
	if zone.South {
		northing += falseNorthing
	}
	return easting, northing
}

// meridianArc is the distance along the meridian from the equator to phi
func meridianArc(phi, e2 float64) float64 {
	e4 := e2 * e2
	e6 := e4 * e2
	return semiMajorAxis * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

// degToRad converts an angle from degrees to radians
func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
