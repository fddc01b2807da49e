// Package registry owns the satellites known to the service. It ingests
// catalog records, attaches element sets from a TLE source, prunes the
// satellites that cannot be predicted and answers prediction and pass
// queries against the survivors.
//
// Ingest, LoadElements and Prune take the registry's write lock for their
// whole scan-then-apply sequence. Queries take the read lock, so they see
// the registry either before or after a prune, never half way through.
// Per-satellite state has its own lock, so queries for different
// satellites run in parallel.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/large-farva/orbitwatch/internal/catalog"
	"github.com/large-farva/orbitwatch/internal/cleanup"
	"github.com/large-farva/orbitwatch/internal/elements"
	"github.com/large-farva/orbitwatch/internal/logging"
	"github.com/large-farva/orbitwatch/internal/metrics"
	"github.com/large-farva/orbitwatch/internal/orbit"
	"github.com/large-farva/orbitwatch/internal/passes"
	"github.com/large-farva/orbitwatch/internal/sources"
	"github.com/large-farva/orbitwatch/internal/telemetry"
	"github.com/large-farva/orbitwatch/internal/tracing"
)

var (
	// ErrNotFound is returned for catalog ids or names the registry does
	// not hold, including ids removed by pruning.
	ErrNotFound = errors.New("satellite not found")

	// ErrNoElements is returned when a satellite has no valid element set.
	ErrNoElements = errors.New("satellite has no element set")
)

// Mode selects how Prune decides which satellites to remove.
type Mode int

const (
	// Live recomputes validity now and persists the decision.
	Live Mode = iota
	// Replay removes exactly the ids of the persisted decision.
	Replay
)

func (m Mode) String() string {
	if m == Replay {
		return "replay"
	}
	return "live"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "live":
		*m = Live
	case "replay":
		*m = Replay
	default:
		return fmt.Errorf("unknown prune mode %q", b)
	}
	return nil
}

// Broadcaster receives operator-facing events. ws.Hub satisfies it.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// Options configures a Registry. Propagator and Source are required.
type Options struct {
	Propagator orbit.Propagator
	Source     sources.TLESource
	Mode       Mode
	// Cleanup persists live decisions and supplies replay decisions.
	Cleanup *cleanup.Store
	// DataRoot receives tle_cache.txt after a live prune. Empty disables it.
	DataRoot string

	Step      time.Duration
	Tolerance time.Duration
	// Lookahead is the NextPass window when the caller passes none.
	Lookahead time.Duration
	// MaxParallel bounds PredictMany fan-out.
	MaxParallel int

	Now     func() time.Time
	Metrics *metrics.Collector
	Events  Broadcaster
	Log     *slog.Logger
}

// Registry is the owning collection of satellites.
type Registry struct {
	opts   Options
	finder passes.Finder
	log    *slog.Logger

	mu        sync.RWMutex
	sats      map[int]*catalog.Satellite
	removed   map[int]string // id -> reason
	lastPrune *PruneReport
	lastLoad  time.Time
}

// New builds an empty registry.
func New(opts Options) (*Registry, error) {
	if opts.Propagator == nil {
		return nil, errors.New("registry: propagator is required")
	}
	if opts.Source == nil {
		return nil, errors.New("registry: TLE source is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = 24 * time.Hour
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 8
	}
	return &Registry{
		opts: opts,
		finder: passes.Finder{
			Propagator: opts.Propagator,
			Step:       opts.Step,
			Tolerance:  opts.Tolerance,
		},
		log:     logging.Component(opts.Log, "registry"),
		sats:    make(map[int]*catalog.Satellite),
		removed: make(map[int]string),
	}, nil
}

// Mode reports the pruning mode the registry was built with.
func (r *Registry) Mode() Mode { return r.opts.Mode }

// Now reads the registry's clock. Callers choosing a prediction instant
// should use it rather than the wall clock.
func (r *Registry) Now() time.Time { return r.opts.Now() }

// IngestReport counts what one Ingest call did with its input.
type IngestReport struct {
	Satellites           int `json:"satellites"`
	Rejected             int `json:"rejected"`
	Sentinel             int `json:"sentinel"`
	Duplicates           int `json:"duplicates"`
	PreviouslyRemoved    int `json:"previously_removed"`
	Transmitters         int `json:"transmitters"`
	RejectedTransmitters int `json:"rejected_transmitters"`
	OrphanTransmitters   int `json:"orphan_transmitters"`
	// Errors holds one validation error per rejected record.
	Errors []error `json:"-"`
}

// Ingest validates catalog records and adds the satellites it has not seen.
// Invalid records are rejected whole. Satellites removed by an earlier prune
// are never added back. Transmitters attach to their satellite by catalog
// id; a transmitter whose satellite is absent is counted as an orphan.
func (r *Registry) Ingest(sats []catalog.SatelliteEntry, txs []catalog.TransmitterEntry) IngestReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rep IngestReport
	for _, e := range sats {
		sat, err := catalog.NewSatellite(e)
		if err != nil {
			rep.Rejected++
			if errors.Is(err, catalog.ErrSentinelID) {
				rep.Sentinel++
			}
			rep.Errors = append(rep.Errors, err)
			continue
		}
		id := sat.CatalogID()
		if _, gone := r.removed[id]; gone {
			rep.PreviouslyRemoved++
			continue
		}
		if _, dup := r.sats[id]; dup {
			rep.Duplicates++
			continue
		}
		r.sats[id] = sat
		rep.Satellites++
	}

	for _, e := range txs {
		tx, err := catalog.NewTransmitter(e)
		if err != nil {
			rep.RejectedTransmitters++
			rep.Errors = append(rep.Errors, err)
			continue
		}
		sat, ok := r.sats[tx.CatalogID]
		if !ok {
			rep.OrphanTransmitters++
			continue
		}
		sat.AddTransmitter(tx)
		rep.Transmitters++
	}

	r.log.Info("catalog ingested",
		slog.Int("satellites", rep.Satellites),
		slog.Int("rejected", rep.Rejected),
		slog.Int("sentinel", rep.Sentinel),
		slog.Int("transmitters", rep.Transmitters),
		slog.Int("orphan_transmitters", rep.OrphanTransmitters),
	)
	for _, err := range rep.Errors {
		r.log.Debug("record rejected", slog.Any("err", err))
	}
	r.opts.Metrics.SetActive(len(r.sats))
	return rep
}

// LoadReport summarizes one LoadElements call.
type LoadReport struct {
	Source     string    `json:"source"`
	Resolved   int       `json:"resolved"`
	Unresolved int       `json:"unresolved"`
	At         time.Time `json:"at"`
}

// LoadElements reads the merged TLE text from the configured source and
// replaces every satellite's element set with the lookup result.
func (r *Registry) LoadElements(ctx context.Context) (LoadReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "registry.load_elements")
	defer span.End()

	text, err := r.opts.Source.Text(ctx)
	if err != nil {
		return LoadReport{}, fmt.Errorf("load elements from %s: %w", r.opts.Source.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.idsLocked()
	index := elements.Index(text, ids)
	rep := LoadReport{Source: r.opts.Source.Name(), At: r.opts.Now().UTC()}
	for _, id := range ids {
		set := index[id]
		r.sats[id].SetElements(set)
		if set.Valid {
			rep.Resolved++
		} else {
			rep.Unresolved++
		}
	}
	r.lastLoad = rep.At

	r.log.Info("element sets attached",
		slog.String("source", rep.Source),
		slog.Int("resolved", rep.Resolved),
		slog.Int("unresolved", rep.Unresolved),
	)
	return rep, nil
}

// idsLocked returns the held ids in ascending order. Callers hold mu.
func (r *Registry) idsLocked() []int {
	ids := make([]int, 0, len(r.sats))
	for id := range r.sats {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// IDs returns the catalog ids currently held, ascending.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.idsLocked()
}

// Len reports how many satellites the registry holds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sats)
}

// Lookup returns the satellite for id.
func (r *Registry) Lookup(id int) (*catalog.Satellite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(id)
}

func (r *Registry) lookupLocked(id int) (*catalog.Satellite, error) {
	sat, ok := r.sats[id]
	if !ok {
		if reason, gone := r.removed[id]; gone {
			return nil, fmt.Errorf("%w: NORAD %d was pruned (%s)", ErrNotFound, id, reason)
		}
		return nil, fmt.Errorf("%w: NORAD %d", ErrNotFound, id)
	}
	return sat, nil
}

// LookupByName finds a satellite by name, ignoring case. When names
// collide the lowest catalog id wins.
func (r *Registry) LookupByName(name string) (*catalog.Satellite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := strings.ToUpper(strings.TrimSpace(name))
	for _, id := range r.idsLocked() {
		if sat := r.sats[id]; sat.DisplayName() == want {
			return sat, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// ByName maps upper-cased names to catalog ids.
func (r *Registry) ByName() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.sats))
	for _, id := range r.idsLocked() {
		name := r.sats[id].DisplayName()
		if _, taken := out[name]; !taken {
			out[name] = id
		}
	}
	return out
}

// ByID maps catalog ids to upper-cased names.
func (r *Registry) ByID() map[int]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]string, len(r.sats))
	for id, sat := range r.sats {
		out[id] = sat.DisplayName()
	}
	return out
}

// Satellites returns snapshots of every held satellite, ascending by id.
func (r *Registry) Satellites() []catalog.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]catalog.Snapshot, 0, len(r.sats))
	for _, id := range r.idsLocked() {
		out = append(out, r.sats[id].Snapshot())
	}
	return out
}

// Active returns the satellites whose last prune left them in the Active
// state, ascending by id.
func (r *Registry) Active() []*catalog.Satellite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*catalog.Satellite
	for _, id := range r.idsLocked() {
		if sat := r.sats[id]; sat.State() == catalog.Active {
			out = append(out, sat)
		}
	}
	return out
}

// Removed returns the ids removed so far and why.
func (r *Registry) Removed() map[int]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]string, len(r.removed))
	for id, reason := range r.removed {
		out[id] = reason
	}
	return out
}

// SelectTransmitter marks one transmitter of satellite id as selected.
func (r *Registry) SelectTransmitter(id int, uuid string) (catalog.Transmitter, error) {
	sat, err := r.Lookup(id)
	if err != nil {
		return catalog.Transmitter{}, err
	}
	return sat.SelectTransmitter(uuid)
}

// Status is a summary for the status endpoint.
type Status struct {
	Mode       Mode         `json:"mode"`
	Satellites int          `json:"satellites"`
	Active     int          `json:"active"`
	Removed    int          `json:"removed"`
	Source     string       `json:"source"`
	LastLoad   time.Time    `json:"last_load,omitzero"`
	LastPrune  *PruneReport `json:"last_prune,omitempty"`
}

func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := Status{
		Mode:       r.opts.Mode,
		Satellites: len(r.sats),
		Removed:    len(r.removed),
		Source:     r.opts.Source.Name(),
		LastLoad:   r.lastLoad,
	}
	for _, sat := range r.sats {
		if sat.State() == catalog.Active {
			st.Active++
		}
	}
	if r.lastPrune != nil {
		p := *r.lastPrune
		st.LastPrune = &p
	}
	return st
}

func (r *Registry) emit(v any) {
	if r.opts.Events != nil {
		r.opts.Events.BroadcastJSON(v)
	}
}

func event(t telemetry.EventType) telemetry.Event {
	return telemetry.New(t, "registry")
}
