package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/large-farva/orbitwatch/internal/elements"
	"github.com/large-farva/orbitwatch/internal/orbit"
	"github.com/large-farva/orbitwatch/internal/passes"
)

// State is a satellite's position in the registry lifecycle:
// Ingested -> TleResolved -> Validated -> Active | Pruned.
type State int

const (
	Ingested State = iota
	TleResolved
	Validated
	Active
	Pruned
)

var stateNames = [...]string{"ingested", "tle_resolved", "validated", "active", "pruned"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown satellite state %q", b)
}

// Prediction is the last computed view of a satellite from one observer.
type Prediction struct {
	Time        time.Time              `json:"time"`
	Observer    orbit.Observer         `json:"observer"`
	Geocentric  orbit.GeocentricState  `json:"geocentric"`
	Topocentric orbit.TopocentricState `json:"topocentric"`
}

// Satellite is a catalog entry plus everything the registry learns about it.
// Id and name never change after construction; everything else is guarded by
// the satellite's own mutex so different satellites can be predicted in
// parallel.
type Satellite struct {
	catalogID  int
	name       string
	extensions map[string]json.RawMessage

	mu           sync.Mutex
	state        State
	elements     elements.Set
	last         *Prediction
	passes       []passes.Pass
	transmitters map[string]*Transmitter
	order        []string
}

// NewSatellite builds an Ingested satellite from a validated entry.
func NewSatellite(e SatelliteEntry) (*Satellite, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &Satellite{
		catalogID:    *e.NoradCatID,
		name:         e.Name,
		extensions:   e.Extensions,
		elements:     elements.Missing(*e.NoradCatID),
		transmitters: make(map[string]*Transmitter),
	}, nil
}

func (s *Satellite) CatalogID() int { return s.catalogID }

func (s *Satellite) Name() string { return s.name }

// DisplayName is the upper-cased name used by the name indexes.
func (s *Satellite) DisplayName() string { return strings.ToUpper(s.name) }

func (s *Satellite) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Satellite) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Satellite) Elements() elements.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elements
}

// SetElements replaces the element set wholesale. A valid set moves an
// Ingested satellite to TleResolved.
func (s *Satellite) SetElements(set elements.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements = set
	if set.Valid && s.state == Ingested {
		s.state = TleResolved
	}
}

// AddTransmitter attaches t. A transmitter with the same id replaces the
// earlier one but keeps its position and selection.
func (s *Satellite) AddTransmitter(t *Transmitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.transmitters[t.ID]; ok {
		t.Selected = old.Selected
	} else {
		s.order = append(s.order, t.ID)
	}
	s.transmitters[t.ID] = t
	if s.last != nil {
		t.applyDoppler(DopplerFraction(s.last.Topocentric.RangeRate))
	}
}

// Transmitters returns copies in insertion order.
func (s *Satellite) Transmitters() []Transmitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transmittersLocked()
}

func (s *Satellite) transmittersLocked() []Transmitter {
	out := make([]Transmitter, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.transmitters[id])
	}
	return out
}

// SelectTransmitter marks id as the single selected transmitter.
func (s *Satellite) SelectTransmitter(id string) (Transmitter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transmitters[id]
	if !ok {
		return Transmitter{}, fmt.Errorf("%w: %s on NORAD %d", ErrTransmitterNotFound, id, s.catalogID)
	}
	for _, other := range s.transmitters {
		other.Selected = false
	}
	t.Selected = true
	return *t, nil
}

// Selected returns the selected transmitter, if any.
func (s *Satellite) Selected() (Transmitter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if t := s.transmitters[id]; t.Selected {
			return *t, true
		}
	}
	return Transmitter{}, false
}

// ApplyRangeRate distributes the Doppler fraction for rangeRate (km/s) to
// the uplink and downlink of every owned transmitter.
func (s *Satellite) ApplyRangeRate(rangeRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(DopplerFraction(rangeRate))
}

func (s *Satellite) applyLocked(fraction float64) {
	for _, t := range s.transmitters {
		t.applyDoppler(fraction)
	}
}

// RecordPrediction stores p as the latest prediction and pushes its
// range-rate to the transmitters. It returns the updated transmitters.
func (s *Satellite) RecordPrediction(p Prediction) []Transmitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &p
	s.applyLocked(DopplerFraction(p.Topocentric.RangeRate))
	return s.transmittersLocked()
}

func (s *Satellite) LastPrediction() (Prediction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Prediction{}, false
	}
	return *s.last, true
}

// SetPasses replaces the passes from the previous scan.
func (s *Satellite) SetPasses(ps []passes.Pass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passes = append([]passes.Pass(nil), ps...)
}

func (s *Satellite) Passes() []passes.Pass {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]passes.Pass(nil), s.passes...)
}

// Snapshot is a copy of a satellite's state, safe to serialize.
type Snapshot struct {
	CatalogID      int                        `json:"norad_cat_id"`
	Name           string                     `json:"name"`
	State          State                      `json:"state"`
	TLE            []string                   `json:"tle,omitempty"`
	Epoch          *time.Time                 `json:"tle_epoch,omitempty"`
	LastPrediction *Prediction                `json:"last_prediction,omitempty"`
	Passes         []passes.Pass              `json:"passes"`
	Transmitters   []Transmitter              `json:"transmitters"`
	Extensions     map[string]json.RawMessage `json:"extensions,omitempty"`
}

func (s *Satellite) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		CatalogID:    s.catalogID,
		Name:         s.name,
		State:        s.state,
		TLE:          s.elements.Lines(),
		Passes:       append([]passes.Pass{}, s.passes...),
		Transmitters: s.transmittersLocked(),
		Extensions:   s.extensions,
	}
	if s.elements.Valid {
		epoch := s.elements.Epoch
		snap.Epoch = &epoch
	}
	if s.last != nil {
		last := *s.last
		snap.LastPrediction = &last
	}
	return snap
}
