package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/large-farva/orbitwatch/internal/catalog"
	"github.com/large-farva/orbitwatch/internal/orbit"
	"github.com/large-farva/orbitwatch/internal/passes"
	"github.com/large-farva/orbitwatch/internal/telemetry"
	"github.com/large-farva/orbitwatch/internal/tracing"
)

// Prediction is the result of one prediction request: where the satellite
// is, how it looks from the observer and the Doppler-corrected transmitters.
type Prediction struct {
	CatalogID    int                   `json:"norad_cat_id"`
	Name         string                `json:"name"`
	Prediction   catalog.Prediction    `json:"prediction"`
	Transmitters []catalog.Transmitter `json:"transmitters"`
}

// Predict propagates satellite id to at, observes it from obs, stores the
// result as the satellite's last prediction and pushes the range-rate to
// its transmitters.
func (r *Registry) Predict(ctx context.Context, id int, obs orbit.Observer, at time.Time) (Prediction, error) {
	ctx, span := tracing.Tracer().Start(ctx, "registry.predict")
	defer span.End()
	span.SetAttributes(attribute.Int("norad_id", id))

	start := time.Now()
	p, err := r.predict(ctx, id, obs, at)
	r.opts.Metrics.ObservePrediction(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Prediction{}, err
	}

	top := p.Prediction.Topocentric
	span.SetAttributes(
		attribute.Float64("elevation", top.Elevation),
		attribute.Float64("range_rate", top.RangeRate),
	)
	r.emit(telemetry.Prediction{
		Event:           event(telemetry.EventPrediction),
		CatalogID:       p.CatalogID,
		Name:            p.Name,
		Elevation:       top.Elevation,
		Azimuth:         top.Azimuth,
		RangeRate:       top.RangeRate,
		DopplerFraction: catalog.DopplerFraction(top.RangeRate),
	})
	return p, nil
}

func (r *Registry) predict(ctx context.Context, id int, obs orbit.Observer, at time.Time) (Prediction, error) {
	if err := obs.Validate(); err != nil {
		return Prediction{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sat, err := r.lookupLocked(id)
	if err != nil {
		return Prediction{}, err
	}
	set := sat.Elements()
	if !set.Valid {
		return Prediction{}, fmt.Errorf("%w: NORAD %d", ErrNoElements, id)
	}

	geo, err := r.opts.Propagator.Propagate(ctx, set, at)
	if err != nil {
		return Prediction{}, err
	}
	top, err := orbit.Observe(geo, obs)
	if err != nil {
		return Prediction{}, err
	}

	txs := sat.RecordPrediction(catalog.Prediction{
		Time:        geo.Time,
		Observer:    obs,
		Geocentric:  geo,
		Topocentric: top,
	})
	last, _ := sat.LastPrediction()
	return Prediction{
		CatalogID:    id,
		Name:         sat.DisplayName(),
		Prediction:   last,
		Transmitters: txs,
	}, nil
}

// PredictNow is Predict at the registry clock's current instant.
func (r *Registry) PredictNow(ctx context.Context, id int, obs orbit.Observer) (Prediction, error) {
	return r.Predict(ctx, id, obs, r.opts.Now())
}

// Outcome is one entry of a PredictMany result.
type Outcome struct {
	Prediction
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// PredictMany predicts every id at the same instant, at most MaxParallel at
// a time. Per-satellite failures are reported in the outcome; the returned
// error is only set when ctx ends first.
func (r *Registry) PredictMany(ctx context.Context, ids []int, obs orbit.Observer, at time.Time) ([]Outcome, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	out := make([]Outcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxParallel)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", orbit.ErrTimeout, err)
			}
			p, err := r.Predict(gctx, id, obs, at)
			out[i] = Outcome{Prediction: p, Err: err}
			if err != nil {
				out[i].Error = err.Error()
			}
			out[i].CatalogID = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// FindPasses searches [start, end] for passes of satellite id above
// minElevation and records them on the satellite, replacing the previous
// search's passes.
func (r *Registry) FindPasses(ctx context.Context, id int, obs orbit.Observer, minElevation float64, start, end time.Time) (passes.Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "registry.find_passes")
	defer span.End()
	span.SetAttributes(attribute.Int("norad_id", id))

	res, err := r.findPasses(ctx, id, obs, minElevation, start, end)
	r.opts.Metrics.ObservePassSearch(len(res.Passes), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return passes.Result{}, err
	}
	span.SetAttributes(attribute.Int("passes", len(res.Passes)))

	if res.Discarded > 0 || res.Orphaned > 0 || res.Empty > 0 {
		r.log.Debug("malformed pass events skipped",
			slog.Int("norad_id", id),
			slog.Int("discarded", res.Discarded),
			slog.Int("orphaned", res.Orphaned),
			slog.Int("empty", res.Empty),
		)
	}
	ev := telemetry.Passes{
		Event:     event(telemetry.EventPasses),
		CatalogID: id,
		Found:     len(res.Passes),
	}
	if len(res.Passes) > 0 {
		ev.NextRise = res.Passes[0].RiseTime.Format(time.RFC3339)
	}
	r.emit(ev)
	return res, nil
}

func (r *Registry) findPasses(ctx context.Context, id int, obs orbit.Observer, minElevation float64, start, end time.Time) (passes.Result, error) {
	if err := obs.Validate(); err != nil {
		return passes.Result{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sat, err := r.lookupLocked(id)
	if err != nil {
		return passes.Result{}, err
	}
	set := sat.Elements()
	if !set.Valid {
		return passes.Result{}, fmt.Errorf("%w: NORAD %d", ErrNoElements, id)
	}

	res, err := r.finder.FindPasses(ctx, set, obs, minElevation, start, end)
	if err != nil {
		return passes.Result{}, err
	}
	sat.SetPasses(res.Passes)
	return res, nil
}

// NextPass returns the first pass starting from now within window. A
// non-positive window uses the configured lookahead. ok is false when no
// complete pass fits in the window.
func (r *Registry) NextPass(ctx context.Context, id int, obs orbit.Observer, minElevation float64, window time.Duration) (pass passes.Pass, ok bool, err error) {
	if window <= 0 {
		window = r.opts.Lookahead
	}
	now := r.opts.Now()
	res, err := r.FindPasses(ctx, id, obs, minElevation, now, now.Add(window))
	if err != nil {
		return passes.Pass{}, false, err
	}
	if len(res.Passes) == 0 {
		return passes.Pass{}, false, nil
	}
	return res.Passes[0], true, nil
}
