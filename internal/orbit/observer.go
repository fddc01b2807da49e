package orbit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidObserver is matched by every *InvalidObserverError.
var ErrInvalidObserver = errors.New("invalid observer")

// InvalidObserverError reports an out-of-range observer coordinate.
type InvalidObserverError struct {
	Field string
	Value float64
}

func (e *InvalidObserverError) Error() string {
	return fmt.Sprintf("invalid observer %s: %v", e.Field, e.Value)
}

func (e *InvalidObserverError) Is(target error) bool { return target == ErrInvalidObserver }

// Observer is a fixed ground location. Latitude and longitude are geodetic
// degrees, altitude is km above the WGS-84 ellipsoid.
type Observer struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude_km"`
}

// Validate rejects coordinates outside [-90,90] / [-180,180]. Values are
// never clamped.
func (o Observer) Validate() error {
	if math.IsNaN(o.Latitude) || o.Latitude < -90 || o.Latitude > 90 {
		return &InvalidObserverError{Field: "latitude", Value: o.Latitude}
	}
	if math.IsNaN(o.Longitude) || o.Longitude < -180 || o.Longitude > 180 {
		return &InvalidObserverError{Field: "longitude", Value: o.Longitude}
	}
	if math.IsNaN(o.Altitude) || math.IsInf(o.Altitude, 0) {
		return &InvalidObserverError{Field: "altitude", Value: o.Altitude}
	}
	return nil
}

// ECEF returns the observer's Earth-fixed position in km.
func (o Observer) ECEF() Vector {
	return ecefFromGeodetic(o.Latitude, o.Longitude, o.Altitude)
}

// TopocentricState is a satellite as seen from an observer. Position and
// Velocity are the ECEF line-of-sight and relative velocity; RangeRate is
// positive when the satellite is receding.
type TopocentricState struct {
	Time      time.Time `json:"time"`
	Elevation float64   `json:"elevation"`
	Azimuth   float64   `json:"azimuth"`
	Range     float64   `json:"range_km"`
	RangeRate float64   `json:"range_rate"`
	Position  Vector    `json:"position"`
	Velocity  Vector    `json:"velocity"`
}

// Observe transforms a geocentric state into the observer's local frame.
func Observe(state GeocentricState, obs Observer) (TopocentricState, error) {
	if err := obs.Validate(); err != nil {
		return TopocentricState{}, err
	}

	rho := state.ECEFPosition.Sub(obs.ECEF())
	rng := rho.Norm()

	lat, lon := obs.Latitude*deg2rad, obs.Longitude*deg2rad
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	// South-East-Zenith components of the line of sight.
	s := sinLat*cosLon*rho.X + sinLat*sinLon*rho.Y - cosLat*rho.Z
	e := -sinLon*rho.X + cosLon*rho.Y
	z := cosLat*cosLon*rho.X + cosLat*sinLon*rho.Y + sinLat*rho.Z

	var el, az float64
	if rng > 0 {
		el = math.Asin(math.Max(-1, math.Min(1, z/rng))) * rad2deg
		az = math.Atan2(e, -s) * rad2deg
		if az < 0 {
			az += 360
		}
	}

	// The observer is fixed in ECEF, so relative velocity is the satellite's.
	vel := state.ECEFVelocity

	return TopocentricState{
		Time:      state.Time,
		Elevation: el,
		Azimuth:   az,
		Range:     rng,
		RangeRate: RangeRate(rho, vel),
		Position:  rho,
		Velocity:  vel,
	}, nil
}

// RangeRate is dot(vel, pos)/|pos|: the velocity component along the line of
// sight. Zero when pos is the zero vector.
func RangeRate(pos, vel Vector) float64 {
	n := pos.Norm()
	if n == 0 {
		return 0
	}
	return pos.Dot(vel) / n
}
