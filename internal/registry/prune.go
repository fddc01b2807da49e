package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/large-farva/orbitwatch/internal/catalog"
	"github.com/large-farva/orbitwatch/internal/cleanup"
	"github.com/large-farva/orbitwatch/internal/elements"
	"github.com/large-farva/orbitwatch/internal/orbit"
	"github.com/large-farva/orbitwatch/internal/sources"
	"github.com/large-farva/orbitwatch/internal/telemetry"
	"github.com/large-farva/orbitwatch/internal/tracing"
)

// Removal reasons.
const (
	ReasonNoTLE       = "no_tle"
	ReasonNotOrbiting = "not_orbiting"
	ReasonReplay      = "replay"
)

// PruneReport summarizes one Prune call.
type PruneReport struct {
	Mode    Mode      `json:"mode"`
	At      time.Time `json:"at"`
	Scanned int       `json:"scanned"`
	// Live mode counts.
	NoTLE         int `json:"no_tle"`
	NotOrbiting   int `json:"not_orbiting"`
	Unpredictable int `json:"unpredictable"`

	Removed    []int `json:"removed"`
	Active     int   `json:"active"`
	CacheWrote int   `json:"cache_records,omitempty"`
	// DecisionSavedAt is when the persisted decision was written. In replay
	// mode it tells how stale the replayed decision is.
	DecisionSavedAt time.Time `json:"decision_saved_at,omitzero"`
	NoDecision      bool      `json:"no_decision,omitempty"`
}

type removal struct {
	id     int
	reason string
}

// Prune removes the satellites that cannot be predicted. Live mode checks
// every satellite now: no valid element set removes it as no_tle, a
// sub-point altitude at or below zero removes it as not_orbiting and a
// propagation error keeps it, counted as unpredictable for this run. The
// cumulative removed set is then persisted. Replay mode removes exactly
// the ids of the persisted decision.
//
// The scan runs over a sorted snapshot of ids. Removals and state changes
// are applied only after it completes; if ctx expires mid scan no satellite
// is touched.
func (r *Registry) Prune(ctx context.Context) (PruneReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "registry.prune")
	defer span.End()
	span.SetAttributes(attribute.String("prune.mode", r.opts.Mode.String()))

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		rep PruneReport
		err error
	)
	if r.opts.Mode == Replay {
		rep, err = r.replayLocked(ctx)
	} else {
		rep, err = r.liveLocked(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rep, err
	}

	span.SetAttributes(
		attribute.Int("prune.scanned", rep.Scanned),
		attribute.Int("prune.removed", len(rep.Removed)),
		attribute.Int("prune.active", rep.Active),
	)
	r.opts.Metrics.ObserveRemoved(ReasonNoTLE, rep.NoTLE)
	r.opts.Metrics.ObserveRemoved(ReasonNotOrbiting, rep.NotOrbiting)
	if rep.Mode == Replay {
		r.opts.Metrics.ObserveRemoved(ReasonReplay, len(rep.Removed))
	}
	r.opts.Metrics.SetActive(len(r.sats))

	last := rep
	r.lastPrune = &last

	r.log.Info("prune complete",
		slog.String("mode", rep.Mode.String()),
		slog.Int("scanned", rep.Scanned),
		slog.Int("no_tle", rep.NoTLE),
		slog.Int("not_orbiting", rep.NotOrbiting),
		slog.Int("unpredictable", rep.Unpredictable),
		slog.Int("removed", len(rep.Removed)),
		slog.Int("active", rep.Active),
	)
	r.emit(telemetry.Prune{
		Event:         event(telemetry.EventPrune),
		Mode:          rep.Mode.String(),
		NoTLE:         rep.NoTLE,
		NotOrbiting:   rep.NotOrbiting,
		Unpredictable: rep.Unpredictable,
		Removed:       len(rep.Removed),
		Active:        rep.Active,
	})
	return rep, nil
}

func (r *Registry) liveLocked(ctx context.Context) (PruneReport, error) {
	now := r.opts.Now()
	ids := r.idsLocked()
	rep := PruneReport{Mode: Live, At: now.UTC(), Scanned: len(ids)}

	var (
		removals      []removal
		validated     []int
		active        []int
		unpredictable []int
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("%w: prune aborted: %w", orbit.ErrTimeout, err)
		}
		sat := r.sats[id]
		set := sat.Elements()
		if !set.Valid {
			removals = append(removals, removal{id, ReasonNoTLE})
			rep.NoTLE++
			continue
		}

		state, err := r.opts.Propagator.Propagate(ctx, set, now)
		if errors.Is(err, orbit.ErrTimeout) {
			return rep, fmt.Errorf("prune aborted at NORAD %d: %w", id, err)
		}
		if err != nil {
			rep.Unpredictable++
			unpredictable = append(unpredictable, id)
			r.log.Warn("satellite unpredictable this cycle",
				slog.Int("norad_id", id), slog.String("name", sat.Name()), slog.Any("err", err))
			continue
		}
		validated = append(validated, id)
		if state.SubPoint.Altitude <= 0 {
			removals = append(removals, removal{id, ReasonNotOrbiting})
			rep.NotOrbiting++
			continue
		}
		active = append(active, id)
	}

	// The scan is complete; only now does any satellite change state.
	for _, id := range validated {
		r.sats[id].SetState(catalog.Validated)
	}
	r.applyLocked(removals, &rep)
	for _, id := range unpredictable {
		r.sats[id].SetState(catalog.TleResolved)
	}
	for _, id := range active {
		r.sats[id].SetState(catalog.Active)
	}
	rep.Active = len(active)

	if r.opts.Cleanup != nil {
		all := make([]int, 0, len(r.removed))
		for id := range r.removed {
			all = append(all, id)
		}
		d, err := r.opts.Cleanup.Save(all)
		if err != nil {
			r.log.Error("cleanup decision not saved", slog.Any("err", err))
		} else {
			rep.DecisionSavedAt = d.SavedAt
		}
	}

	if r.opts.DataRoot != "" {
		// Unpredictable survivors are cached too so replay keeps their elements.
		sets := make([]elements.Set, 0, len(r.sats))
		for _, id := range r.idsLocked() {
			sets = append(sets, r.sats[id].Elements())
		}
		n, err := sources.WriteCache(r.opts.DataRoot, sets)
		if err != nil {
			r.log.Error("TLE cache not written", slog.Any("err", err))
		} else {
			rep.CacheWrote = n
		}
	}
	return rep, nil
}

func (r *Registry) replayLocked(ctx context.Context) (PruneReport, error) {
	ids := r.idsLocked()
	rep := PruneReport{Mode: Replay, At: r.opts.Now().UTC(), Scanned: len(ids)}
	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("%w: prune aborted: %w", orbit.ErrTimeout, err)
	}

	var d cleanup.Decision
	if r.opts.Cleanup != nil {
		var err error
		d, err = r.opts.Cleanup.Load()
		switch {
		case errors.Is(err, cleanup.ErrNoDecision):
			rep.NoDecision = true
			r.log.Warn("no cleanup decision to replay, nothing pruned", slog.String("path", r.opts.Cleanup.Path()))
		case err != nil:
			return rep, fmt.Errorf("replay prune: %w", err)
		}
	} else {
		rep.NoDecision = true
	}
	rep.DecisionSavedAt = d.SavedAt
	if !d.SavedAt.IsZero() {
		r.log.Info("replaying cleanup decision",
			slog.Int("ids", len(d.IDs)),
			slog.Time("saved_at", d.SavedAt),
			slog.Duration("age", d.Age(rep.At).Truncate(time.Second)),
		)
	}

	var removals []removal
	for _, id := range ids {
		if d.Contains(id) {
			removals = append(removals, removal{id, ReasonReplay})
		}
	}
	r.applyLocked(removals, &rep)
	for _, sat := range r.sats {
		sat.SetState(catalog.Active)
	}
	rep.Active = len(r.sats)
	return rep, nil
}

// applyLocked deletes the collected removals. Callers hold mu.
func (r *Registry) applyLocked(removals []removal, rep *PruneReport) {
	rep.Removed = make([]int, 0, len(removals))
	for _, rm := range removals {
		sat, ok := r.sats[rm.id]
		if !ok {
			continue
		}
		sat.SetState(catalog.Pruned)
		delete(r.sats, rm.id)
		r.removed[rm.id] = rm.reason
		rep.Removed = append(rep.Removed, rm.id)
		r.log.Debug("satellite pruned", slog.Int("norad_id", rm.id), slog.String("reason", rm.reason))
	}
}
