package passes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/large-farva/orbitwatch/internal/elements"
	"github.com/large-farva/orbitwatch/internal/orbit"
)

// ErrInvalidWindow is returned when the search window is empty or reversed.
var ErrInvalidWindow = errors.New("invalid search window")

const (
	DefaultStep      = 60 * time.Second
	DefaultTolerance = 100 * time.Millisecond
)

// Finder searches a time window for threshold crossings and culminations.
// Samples every Step, then refines crossings by bisection and maxima by
// golden-section search down to Tolerance.
//
// Every local maximum of the samples is refined, so a pass that starts and
// ends between two samples is still found as long as its peak is the
// highest point within two steps. Two such peaks inside one step are seen
// as one.
type Finder struct {
	Propagator orbit.Propagator
	Step       time.Duration
	Tolerance  time.Duration
}

type sample struct {
	t  time.Time
	el float64
}

// Events returns the chronological Rise/Culminate/Set stream for set as seen
// from obs between start and end. A pass already in progress at start yields
// no Rise; one still in progress at end yields no Set.
func (f Finder) Events(ctx context.Context, set elements.Set, obs orbit.Observer, minElevation float64, start, end time.Time) ([]Event, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	start = start.UTC()
	end = end.UTC()
	if !end.After(start) {
		return nil, fmt.Errorf("%w: %s .. %s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	step := f.step()
	elevation := func(t time.Time) (float64, error) {
		state, err := f.Propagator.Propagate(ctx, set, t)
		if err != nil {
			return 0, err
		}
		topo, err := orbit.Observe(state, obs)
		if err != nil {
			return 0, err
		}
		return topo.Elevation, nil
	}

	var samples []sample
	for t := start; ; t = t.Add(step) {
		if t.After(end) {
			t = end
		}
		el, err := elevation(t)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample{t: t, el: el})
		if !t.Before(end) {
			break
		}
	}

	var events []Event
	for i := 1; i < len(samples); i++ {
		a, b := samples[i-1], samples[i]

		switch {
		case a.el < minElevation && b.el >= minElevation:
			t, el, err := f.bisect(a, b, minElevation, elevation)
			if err != nil {
				return nil, err
			}
			events = append(events, Event{Kind: Rise, Time: t, Elevation: el})
		case a.el >= minElevation && b.el < minElevation:
			t, el, err := f.bisect(a, b, minElevation, elevation)
			if err != nil {
				return nil, err
			}
			events = append(events, Event{Kind: Set, Time: t, Elevation: el})
		}

		if i+1 < len(samples) {
			c := samples[i+1]
			if b.el > a.el && b.el >= c.el {
				t, el, err := f.goldenMax(a.t, c.t, elevation)
				if err != nil {
					return nil, err
				}
				if el >= minElevation {
					events = append(events, Event{Kind: Culminate, Time: t, Elevation: el})
				}
				// The samples never cleared the threshold but the peak did:
				// a short pass fell between them.
				if el >= minElevation && b.el < minElevation {
					peak := sample{t: t, el: el}
					rt, rel, err := f.bisect(a, peak, minElevation, elevation)
					if err != nil {
						return nil, err
					}
					st, sel, err := f.bisect(peak, c, minElevation, elevation)
					if err != nil {
						return nil, err
					}
					events = append(events,
						Event{Kind: Rise, Time: rt, Elevation: rel},
						Event{Kind: Set, Time: st, Elevation: sel},
					)
				}
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Time.Equal(events[j].Time) {
			return events[i].Kind < events[j].Kind
		}
		return events[i].Time.Before(events[j].Time)
	})
	return events, nil
}

// FindPasses runs Events and assembles the stream into passes, reading
// culmination azimuth and elevation from the same propagator.
func (f Finder) FindPasses(ctx context.Context, set elements.Set, obs orbit.Observer, minElevation float64, start, end time.Time) (Result, error) {
	events, err := f.Events(ctx, set, obs, minElevation, start, end)
	if err != nil {
		return Result{}, err
	}
	return Assemble(events, func(t time.Time) (orbit.TopocentricState, error) {
		state, err := f.Propagator.Propagate(ctx, set, t)
		if err != nil {
			return orbit.TopocentricState{}, err
		}
		return orbit.Observe(state, obs)
	})
}

// bisect narrows the crossing between a and b. The returned instant is the
// one on the above-threshold side.
func (f Finder) bisect(a, b sample, minElevation float64, elevation func(time.Time) (float64, error)) (time.Time, float64, error) {
	tol := f.tolerance()
	rising := b.el >= minElevation
	lo, hi := a, b
	for hi.t.Sub(lo.t) > tol {
		mid := lo.t.Add(hi.t.Sub(lo.t) / 2)
		el, err := elevation(mid)
		if err != nil {
			return time.Time{}, 0, err
		}
		if (el >= minElevation) == rising {
			hi = sample{t: mid, el: el}
		} else {
			lo = sample{t: mid, el: el}
		}
	}
	if rising {
		return hi.t, hi.el, nil
	}
	return lo.t, lo.el, nil
}

var invPhi = (math.Sqrt(5) - 1) / 2

// goldenMax locates the elevation maximum within [a, c].
func (f Finder) goldenMax(a, c time.Time, elevation func(time.Time) (float64, error)) (time.Time, float64, error) {
	tol := f.tolerance().Seconds()
	lo, hi := 0.0, c.Sub(a).Seconds()
	at := func(s float64) time.Time {
		return a.Add(time.Duration(s * float64(time.Second)))
	}

	x1 := hi - invPhi*(hi-lo)
	x2 := lo + invPhi*(hi-lo)
	f1, err := elevation(at(x1))
	if err != nil {
		return time.Time{}, 0, err
	}
	f2, err := elevation(at(x2))
	if err != nil {
		return time.Time{}, 0, err
	}
	for hi-lo > tol {
		if f1 < f2 {
			lo, x1, f1 = x1, x2, f2
			x2 = lo + invPhi*(hi-lo)
			if f2, err = elevation(at(x2)); err != nil {
				return time.Time{}, 0, err
			}
		} else {
			hi, x2, f2 = x2, x1, f1
			x1 = hi - invPhi*(hi-lo)
			if f1, err = elevation(at(x1)); err != nil {
				return time.Time{}, 0, err
			}
		}
	}

	t := at((lo + hi) / 2)
	el, err := elevation(t)
	if err != nil {
		return time.Time{}, 0, err
	}
	return t, el, nil
}

func (f Finder) step() time.Duration {
	if f.Step < time.Second {
		return DefaultStep
	}
	return f.Step
}

func (f Finder) tolerance() time.Duration {
	if f.Tolerance < time.Millisecond {
		return DefaultTolerance
	}
	return f.Tolerance
}
