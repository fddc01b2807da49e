// Package passes finds when a satellite is above an observer's elevation
// threshold: it produces a chronological rise/culminate/set event stream and
// assembles that stream into passes.
package passes

import (
	"fmt"
	"time"

	"github.com/large-farva/orbitwatch/internal/orbit"
)

// EventKind classifies a pass event.
type EventKind int

const (
	Rise EventKind = iota
	Culminate
	Set
)

func (k EventKind) String() string {
	switch k {
	case Rise:
		return "rise"
	case Culminate:
		return "culminate"
	case Set:
		return "set"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is one classified instant in the event stream.
type Event struct {
	Kind      EventKind `json:"kind"`
	Time      time.Time `json:"time"`
	Elevation float64   `json:"elevation"`
}

// Culmination is a local elevation maximum inside a pass.
type Culmination struct {
	Time      time.Time `json:"time"`
	Elevation float64   `json:"elevation"`
	Azimuth   float64   `json:"azimuth"`
}

// Pass is one rise-to-set interval above the threshold.
type Pass struct {
	RiseTime         time.Time     `json:"rise_time"`
	SetTime          time.Time     `json:"set_time"`
	Culminations     []Culmination `json:"culminations"`
	MaximumElevation float64       `json:"maximum_elevation"`
}

// Duration is SetTime - RiseTime.
func (p Pass) Duration() time.Duration { return p.SetTime.Sub(p.RiseTime) }

// Result is the outcome of assembling an event stream.
type Result struct {
	Passes []Pass `json:"passes"`
	// Discarded counts open passes abandoned because another Rise arrived
	// before their Set.
	Discarded int `json:"discarded"`
	// Orphaned counts Set events with no open Rise, such as a pass already
	// in progress at the start of the window.
	Orphaned int `json:"orphaned"`
	// Empty counts rise/set pairs with no culmination.
	Empty int `json:"empty"`
	// Dangling is true when the stream ended with a pass still open.
	Dangling bool `json:"dangling"`
}

// LookFunc returns the observer-relative state at t.
type LookFunc func(t time.Time) (orbit.TopocentricState, error)

// Assemble runs the pass state machine over a chronological event stream.
// Only well-formed passes (Rise, at least one Culminate, Set) are emitted.
func Assemble(events []Event, look LookFunc) (Result, error) {
	var (
		res  Result
		open *Pass
	)
	for _, ev := range events {
		switch ev.Kind {
		case Rise:
			if open != nil {
				res.Discarded++
			}
			open = &Pass{RiseTime: ev.Time}

		case Culminate:
			if open == nil {
				continue
			}
			topo, err := look(ev.Time)
			if err != nil {
				return res, fmt.Errorf("culmination at %s: %w", ev.Time.Format(time.RFC3339), err)
			}
			open.Culminations = append(open.Culminations, Culmination{
				Time:      ev.Time,
				Elevation: topo.Elevation,
				Azimuth:   topo.Azimuth,
			})
			if len(open.Culminations) == 1 || topo.Elevation > open.MaximumElevation {
				open.MaximumElevation = topo.Elevation
			}

		case Set:
			if open == nil {
				res.Orphaned++
				continue
			}
			open.SetTime = ev.Time
			if len(open.Culminations) == 0 {
				res.Empty++
			} else {
				res.Passes = append(res.Passes, *open)
			}
			open = nil
		}
	}
	res.Dangling = open != nil
	return res, nil
}
