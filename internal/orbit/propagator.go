// Package orbit turns an orbital element set and an instant into geocentric
// state (SGP4 via akhenakh/sgp4, SDP4 via go-satellite) and converts that
// state into what a ground observer sees: elevation, azimuth, range and
// range-rate.
package orbit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akhenakh/sgp4"
	lru "github.com/hashicorp/golang-lru/v2"
	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/large-farva/orbitwatch/internal/elements"
)

var (
	// ErrPropagation is matched by every *PropagationError.
	ErrPropagation = errors.New("propagation failed")

	// ErrTimeout is returned when the caller's context expires before the
	// propagation completes.
	ErrTimeout = errors.New("propagation timed out")
)

// PropagationError reports why an element set could not be propagated.
type PropagationError struct {
	CatalogID int
	Reason    string
	Err       error
}

func (e *PropagationError) Error() string {
	msg := fmt.Sprintf("propagate NORAD %d: %s", e.CatalogID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PropagationError) Is(target error) bool { return target == ErrPropagation }

func (e *PropagationError) Unwrap() error { return e.Err }

// GeocentricState is a satellite's state at one instant. Position and
// Velocity are TEME (km, km/s); the ECEF pair is the same state in the
// Earth-fixed frame.
type GeocentricState struct {
	Time         time.Time `json:"time"`
	Position     Vector    `json:"position"`
	Velocity     Vector    `json:"velocity"`
	ECEFPosition Vector    `json:"ecef_position"`
	ECEFVelocity Vector    `json:"ecef_velocity"`
	SubPoint     SubPoint  `json:"sub_point"`
}

// Propagator converts an element set and an instant into geocentric state.
// Implementations must be pure functions of their inputs.
type Propagator interface {
	Propagate(ctx context.Context, set elements.Set, t time.Time) (GeocentricState, error)
}

// SGP4Options configures the SGP4 propagator.
type SGP4Options struct {
	// MaxEpochAge rejects element sets further than this from the requested
	// instant. Zero disables the check.
	MaxEpochAge time.Duration
	// CacheSize bounds the number of parsed element sets kept around.
	CacheSize int
}

// deepSpaceMeanMotion is the mean motion (rev/day) of a 225 minute period.
// Slower orbits need the SDP4 deep-space terms.
const deepSpaceMeanMotion = 1440.0 / 225.0

// model is a parsed element set ready to propagate. Near-earth orbits use
// akhenakh/sgp4, which takes fractional time; deep-space orbits use
// go-satellite's SDP4, which only takes whole seconds.
type model struct {
	near *sgp4.TLE
	deep satellite.Satellite
}

// SGP4 propagates element sets with SGP4 and SDP4. It is safe for
// concurrent use.
type SGP4 struct {
	maxAge time.Duration
	models *lru.Cache[string, *model]
}

// NewSGP4 builds a propagator with an LRU of parsed models.
func NewSGP4(opts SGP4Options) (*SGP4, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, *model](size)
	if err != nil {
		return nil, fmt.Errorf("sgp4 model cache: %w", err)
	}
	return &SGP4{maxAge: opts.MaxEpochAge, models: cache}, nil
}

// Propagate implements Propagator.
func (p *SGP4) Propagate(ctx context.Context, set elements.Set, t time.Time) (GeocentricState, error) {
	if err := ctx.Err(); err != nil {
		return GeocentricState{}, fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if !set.Valid {
		return GeocentricState{}, &PropagationError{CatalogID: set.CatalogID, Reason: "no valid element set"}
	}
	if p.maxAge > 0 && set.Age(t) > p.maxAge {
		return GeocentricState{}, &PropagationError{
			CatalogID: set.CatalogID,
			Reason:    fmt.Sprintf("element set epoch %s is %s from %s (limit %s)", set.Epoch.Format(time.RFC3339), set.Age(t).Truncate(time.Hour), t.UTC().Format(time.RFC3339), p.maxAge),
		}
	}

	m, err := p.model(set)
	if err != nil {
		return GeocentricState{}, err
	}

	t = t.UTC()
	var teme, temeVel Vector
	if m.near != nil {
		eci, err := m.near.FindPositionAtTime(t)
		if err != nil {
			reason := "sgp4"
			var decayed *sgp4.SatelliteDecayedError
			if errors.As(err, &decayed) {
				reason = "decayed"
			}
			return GeocentricState{}, &PropagationError{CatalogID: set.CatalogID, Reason: reason, Err: err}
		}
		teme = Vector{X: eci.Position.X, Y: eci.Position.Y, Z: eci.Position.Z}
		temeVel = Vector{X: eci.Velocity.X, Y: eci.Velocity.Y, Z: eci.Velocity.Z}
	} else {
		teme, temeVel = propagateDeep(m.deep, t)
	}
	if !teme.finite() || !temeVel.finite() || teme.Norm() == 0 {
		return GeocentricState{}, &PropagationError{CatalogID: set.CatalogID, Reason: "model output is not finite"}
	}

	ecefPos, ecefVel := temeToECEF(teme, temeVel, gmst(t))
	return GeocentricState{
		Time:         t,
		Position:     teme,
		Velocity:     temeVel,
		ECEFPosition: ecefPos,
		ECEFVelocity: ecefVel,
		SubPoint:     geodetic(ecefPos),
	}, nil
}

// propagateDeep interpolates linearly between the whole seconds around t.
func propagateDeep(sat satellite.Satellite, t time.Time) (Vector, Vector) {
	whole := t.Truncate(time.Second)
	p0, v0 := propagateWhole(sat, whole)
	frac := t.Sub(whole).Seconds()
	if frac == 0 {
		return p0, v0
	}
	p1, v1 := propagateWhole(sat, whole.Add(time.Second))
	return p0.lerp(p1, frac), v0.lerp(v1, frac)
}

func propagateWhole(sat satellite.Satellite, t time.Time) (Vector, Vector) {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	pos, vel := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	return Vector{X: pos.X, Y: pos.Y, Z: pos.Z}, Vector{X: vel.X, Y: vel.Y, Z: vel.Z}
}

// model returns the parsed model for set, building it on a miss.
func (p *SGP4) model(set elements.Set) (*model, error) {
	key := set.Line1 + "\n" + set.Line2
	if m, ok := p.models.Get(key); ok {
		return m, nil
	}

	// ParseTLE checks line shape and checksums. go-satellite calls log.Fatal
	// on malformed lines, so nothing reaches it unparsed.
	tle, err := sgp4.ParseTLE(strings.TrimSpace(set.Line1) + "\n" + strings.TrimSpace(set.Line2))
	if err != nil {
		return nil, &PropagationError{CatalogID: set.CatalogID, Reason: "malformed element set", Err: err}
	}

	m := &model{}
	if tle.MeanMotion >= deepSpaceMeanMotion {
		m.near = tle
	} else {
		m.deep = satellite.TLEToSat(strings.TrimSpace(set.Line1), strings.TrimSpace(set.Line2), satellite.GravityWGS72)
		if m.deep.Error != 0 {
			return nil, &PropagationError{
				CatalogID: set.CatalogID,
				Reason:    fmt.Sprintf("sdp4 init code %d %s", m.deep.Error, m.deep.ErrorStr),
			}
		}
	}
	p.models.Add(key, m)
	return m, nil
}
