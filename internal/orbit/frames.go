package orbit

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// WGS-84 ellipsoid, kilometres.
const (
	wgs84A  = 6378.137
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// omegaEarth is Earth's rotation rate in rad/s.
const omegaEarth = 7.292115146706979e-5

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// Vector is a Cartesian 3-vector. Units depend on context (km or km/s).
type Vector struct {
	X, Y, Z float64
}

func (v Vector) Dot(o Vector) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vector) Norm() float64 { return math.Sqrt(v.Dot(v)) }

func (v Vector) Sub(o Vector) Vector { return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// lerp returns v + f·(o - v).
func (v Vector) lerp(o Vector, f float64) Vector {
	return Vector{v.X + f*(o.X-v.X), v.Y + f*(o.Y-v.Y), v.Z + f*(o.Z-v.Z)}
}

func (v Vector) finite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// SubPoint is the geodetic point below the satellite. Altitude is in km above
// the WGS-84 ellipsoid; a value <= 0 means the orbit is not physical.
type SubPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude_km"`
}

// gmst returns Greenwich mean sidereal time in radians for t.
func gmst(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec) + float64(t.Nanosecond())/(86400*1e9)
	return satellite.ThetaG_JD(jd)
}

// temeToECEF rotates a TEME state about Z by the sidereal angle and removes
// the Earth-rotation term from the velocity: v_ecef = R3(θ)·v - ω × r_ecef.
func temeToECEF(pos, vel Vector, theta float64) (Vector, Vector) {
	c, s := math.Cos(theta), math.Sin(theta)

	p := Vector{
		X: pos.X*c + pos.Y*s,
		Y: -pos.X*s + pos.Y*c,
		Z: pos.Z,
	}
	v := Vector{
		X: vel.X*c + vel.Y*s + omegaEarth*p.Y,
		Y: -vel.X*s + vel.Y*c - omegaEarth*p.X,
		Z: vel.Z,
	}
	return p, v
}

// geodetic converts an ECEF position (km) to latitude/longitude/altitude
// with Bowring's iteration.
func geodetic(p Vector) SubPoint {
	lon := math.Atan2(p.Y, p.X)
	r := math.Hypot(p.X, p.Y)

	lat := math.Atan2(p.Z, r*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(p.Z+wgs84E2*n*sinLat, r)
	}

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = r/cosLat - n
	} else {
		alt = math.Abs(p.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return SubPoint{
		Latitude:  lat * rad2deg,
		Longitude: lon * rad2deg,
		Altitude:  alt,
	}
}

// ecefFromGeodetic places a point at lat/lon (degrees) and altitude (km) on
// the WGS-84 ellipsoid.
func ecefFromGeodetic(latDeg, lonDeg, altKm float64) Vector {
	lat, lon := latDeg*deg2rad, lonDeg*deg2rad
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Vector{
		X: (n + altKm) * cosLat * math.Cos(lon),
		Y: (n + altKm) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + altKm) * sinLat,
	}
}
