package passes

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/large-farva/orbitwatch/internal/elements"
	"github.com/large-farva/orbitwatch/internal/orbit"
)

var t0 = time.Date(2025, 5, 18, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

// profilePropagator places the satellite 1000 km from an observer at 0,0 with
// an elevation given by profile(seconds since t0).
type profilePropagator struct {
	profile func(s float64) float64
	err     error
}

func (p profilePropagator) Propagate(_ context.Context, _ elements.Set, t time.Time) (orbit.GeocentricState, error) {
	if p.err != nil {
		return orbit.GeocentricState{}, p.err
	}
	ground := orbit.Observer{}.ECEF()
	theta := p.profile(t.Sub(t0).Seconds()) * math.Pi / 180
	return orbit.GeocentricState{
		Time: t,
		ECEFPosition: orbit.Vector{
			X: ground.X + 1000*math.Sin(theta),
			Y: ground.Y,
			Z: ground.Z + 1000*math.Cos(theta),
		},
	}, nil
}

// Peaks of 30 degrees every 90 minutes starting at t0+30m; above 10 degrees
// for +-15 minutes around each peak.
func cosineProfile(s float64) float64 {
	return 40*math.Cos(2*math.Pi*(s-1800)/5400) - 10
}

func newFinder() Finder {
	return Finder{Propagator: profilePropagator{profile: cosineProfile}}
}

func near(a, b time.Time, tol time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestEventsClassifiesCrossingsAndPeaks(t *testing.T) {
	events, err := newFinder().Events(context.Background(), elements.Set{}, orbit.Observer{}, 10, at(0), at(14400))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 9 {
		t.Fatalf("got %d events, want 9: %+v", len(events), events)
	}
	for i, peak := range []int{1800, 7200, 12600} {
		rise, culm, set := events[3*i], events[3*i+1], events[3*i+2]
		if rise.Kind != Rise || culm.Kind != Culminate || set.Kind != Set {
			t.Fatalf("pass %d kinds = %v %v %v", i, rise.Kind, culm.Kind, set.Kind)
		}
		if !near(rise.Time, at(peak-900), 2*time.Second) {
			t.Errorf("pass %d rise = %v, want about %v", i, rise.Time, at(peak-900))
		}
		if !near(culm.Time, at(peak), 2*time.Second) {
			t.Errorf("pass %d culmination = %v, want about %v", i, culm.Time, at(peak))
		}
		if !near(set.Time, at(peak+900), 2*time.Second) {
			t.Errorf("pass %d set = %v, want about %v", i, set.Time, at(peak+900))
		}
		if rise.Elevation < 10 || set.Elevation < 10 {
			t.Errorf("pass %d crossing elevations %.3f/%.3f below threshold", i, rise.Elevation, set.Elevation)
		}
	}
}

func TestFindPassesPairsEvents(t *testing.T) {
	res, err := newFinder().FindPasses(context.Background(), elements.Set{}, orbit.Observer{}, 10, at(0), at(14400))
	if err != nil {
		t.Fatalf("FindPasses: %v", err)
	}
	if len(res.Passes) != 3 || res.Dangling || res.Discarded != 0 || res.Orphaned != 0 {
		t.Fatalf("result = %+v, want 3 clean passes", res)
	}
	for i, p := range res.Passes {
		if !p.RiseTime.Before(p.SetTime) {
			t.Errorf("pass %d rise %v not before set %v", i, p.RiseTime, p.SetTime)
		}
		if len(p.Culminations) != 1 {
			t.Fatalf("pass %d has %d culminations", i, len(p.Culminations))
		}
		c := p.Culminations[0]
		if c.Time.Before(p.RiseTime) || c.Time.After(p.SetTime) {
			t.Errorf("pass %d culmination %v outside rise/set", i, c.Time)
		}
		if math.Abs(p.MaximumElevation-30) > 0.01 {
			t.Errorf("pass %d maximum elevation = %.4f, want 30", i, p.MaximumElevation)
		}
		if d := p.Duration(); d < 29*time.Minute || d > 31*time.Minute {
			t.Errorf("pass %d duration = %v, want about 30m", i, d)
		}
	}
}

func TestFindPassesWindowEdges(t *testing.T) {
	f := newFinder()

	res, err := f.FindPasses(context.Background(), elements.Set{}, orbit.Observer{}, 10, at(1800), at(14400))
	if err != nil {
		t.Fatalf("FindPasses: %v", err)
	}
	if len(res.Passes) != 2 || res.Orphaned != 1 {
		t.Errorf("start mid-pass: passes=%d orphaned=%d, want 2 and 1", len(res.Passes), res.Orphaned)
	}

	res, err = f.FindPasses(context.Background(), elements.Set{}, orbit.Observer{}, 10, at(0), at(7200))
	if err != nil {
		t.Fatalf("FindPasses: %v", err)
	}
	if len(res.Passes) != 1 || !res.Dangling {
		t.Errorf("end mid-pass: passes=%d dangling=%v, want 1 and true", len(res.Passes), res.Dangling)
	}
}

func TestFindPassesResolvesSharpPeak(t *testing.T) {
	// Near zenith elevation changes by degrees per second around the peak.
	f := Finder{Propagator: profilePropagator{profile: func(s float64) float64 {
		return math.Max(89.9-2*math.Abs(s-1800.4), -80)
	}}}
	res, err := f.FindPasses(context.Background(), elements.Set{}, orbit.Observer{}, 10, at(0), at(3600))
	if err != nil {
		t.Fatalf("FindPasses: %v", err)
	}
	if len(res.Passes) != 1 {
		t.Fatalf("got %d passes, want 1: %+v", len(res.Passes), res)
	}
	p := res.Passes[0]
	if p.MaximumElevation < 89.75 {
		t.Errorf("maximum elevation = %.3f, want within 0.15 of 89.9", p.MaximumElevation)
	}
	if !near(p.Culminations[0].Time, at(1800).Add(400*time.Millisecond), 100*time.Millisecond) {
		t.Errorf("culmination = %v, want about 1800.4s", p.Culminations[0].Time)
	}
}

func TestFindPassesBetweenSamples(t *testing.T) {
	// Above 10 degrees for ten seconds around 1835s; every 60s sample is
	// below the threshold.
	f := Finder{Propagator: profilePropagator{profile: func(s float64) float64 {
		return math.Max(10.5-0.02*(s-1835)*(s-1835), -80)
	}}}
	res, err := f.FindPasses(context.Background(), elements.Set{}, orbit.Observer{}, 10, at(0), at(3600))
	if err != nil {
		t.Fatalf("FindPasses: %v", err)
	}
	if len(res.Passes) != 1 || res.Orphaned != 0 || res.Empty != 0 || res.Dangling {
		t.Fatalf("result = %+v, want one clean pass", res)
	}
	p := res.Passes[0]
	if !near(p.RiseTime, at(1830), time.Second) || !near(p.SetTime, at(1840), time.Second) {
		t.Errorf("pass %v .. %v, want about 1830s .. 1840s", p.RiseTime, p.SetTime)
	}
	if math.Abs(p.MaximumElevation-10.5) > 0.01 {
		t.Errorf("maximum elevation = %.4f, want 10.5", p.MaximumElevation)
	}
}

func TestEventsErrors(t *testing.T) {
	f := newFinder()
	ctx := context.Background()

	if _, err := f.Events(ctx, elements.Set{}, orbit.Observer{}, 10, at(100), at(100)); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("empty window: err = %v, want ErrInvalidWindow", err)
	}
	if _, err := f.Events(ctx, elements.Set{}, orbit.Observer{Latitude: 95}, 10, at(0), at(100)); !errors.Is(err, orbit.ErrInvalidObserver) {
		t.Errorf("bad observer: err = %v, want ErrInvalidObserver", err)
	}

	failing := Finder{Propagator: profilePropagator{err: orbit.ErrPropagation}}
	if _, err := failing.FindPasses(ctx, elements.Set{}, orbit.Observer{}, 10, at(0), at(3600)); !errors.Is(err, orbit.ErrPropagation) {
		t.Errorf("propagation failure: err = %v, want ErrPropagation", err)
	}
}

func lookup(elevations map[time.Time]float64) LookFunc {
	return func(t time.Time) (orbit.TopocentricState, error) {
		return orbit.TopocentricState{Time: t, Elevation: elevations[t], Azimuth: 180}, nil
	}
}

func TestAssembleStateMachine(t *testing.T) {
	look := lookup(map[time.Time]float64{at(20): 15, at(40): 42, at(60): 35, at(120): 50})

	tests := []struct {
		name   string
		events []Event
		want   Result
		maxEl  []float64
	}{
		{
			name:   "single pass",
			events: []Event{{Kind: Rise, Time: at(10)}, {Kind: Culminate, Time: at(40)}, {Kind: Set, Time: at(70)}},
			want:   Result{},
			maxEl:  []float64{42},
		},
		{
			name: "multiple culminations keep the highest",
			events: []Event{
				{Kind: Rise, Time: at(10)}, {Kind: Culminate, Time: at(20)}, {Kind: Culminate, Time: at(40)},
				{Kind: Culminate, Time: at(60)}, {Kind: Set, Time: at(70)},
			},
			maxEl: []float64{42},
		},
		{
			name: "second rise discards open pass",
			events: []Event{
				{Kind: Rise, Time: at(10)}, {Kind: Culminate, Time: at(20)},
				{Kind: Rise, Time: at(100)}, {Kind: Culminate, Time: at(120)}, {Kind: Set, Time: at(130)},
			},
			want:  Result{Discarded: 1},
			maxEl: []float64{50},
		},
		{
			name:   "set without rise",
			events: []Event{{Kind: Culminate, Time: at(20)}, {Kind: Set, Time: at(30)}},
			want:   Result{Orphaned: 1},
		},
		{
			name:   "rise and set without culmination",
			events: []Event{{Kind: Rise, Time: at(10)}, {Kind: Set, Time: at(30)}},
			want:   Result{Empty: 1},
		},
		{
			name:   "trailing rise",
			events: []Event{{Kind: Rise, Time: at(10)}, {Kind: Culminate, Time: at(20)}, {Kind: Set, Time: at(30)}, {Kind: Rise, Time: at(100)}},
			want:   Result{Dangling: true},
			maxEl:  []float64{15},
		},
		{
			name: "empty stream",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Assemble(tt.events, look)
			if err != nil {
				t.Fatalf("Assemble: %v", err)
			}
			if got.Discarded != tt.want.Discarded || got.Orphaned != tt.want.Orphaned ||
				got.Empty != tt.want.Empty || got.Dangling != tt.want.Dangling {
				t.Errorf("counters = %+v, want %+v", got, tt.want)
			}
			if len(got.Passes) != len(tt.maxEl) {
				t.Fatalf("got %d passes, want %d", len(got.Passes), len(tt.maxEl))
			}
			for i, p := range got.Passes {
				if p.MaximumElevation != tt.maxEl[i] {
					t.Errorf("pass %d max = %v, want %v", i, p.MaximumElevation, tt.maxEl[i])
				}
			}
		})
	}
}

func TestAssembleLookError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Assemble(
		[]Event{{Kind: Rise, Time: at(0)}, {Kind: Culminate, Time: at(10)}},
		func(time.Time) (orbit.TopocentricState, error) { return orbit.TopocentricState{}, boom },
	)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestFindPassesISS(t *testing.T) {
	const tle = `ISS (ZARYA)
1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994
2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533
`
	prop, err := orbit.NewSGP4(orbit.SGP4Options{MaxEpochAge: 7 * 24 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	f := Finder{Propagator: prop}
	obs := orbit.Observer{Latitude: 40.8939, Longitude: -83.8917, Altitude: 0.25}

	res, err := f.FindPasses(context.Background(), elements.Lookup(tle, 25544), obs, 10, t0, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("FindPasses: %v", err)
	}
	if len(res.Passes) == 0 {
		t.Fatal("expected at least one ISS pass above 10 degrees in 24h")
	}
	for i, p := range res.Passes {
		if !p.RiseTime.Before(p.SetTime) {
			t.Errorf("pass %d: rise %v not before set %v", i, p.RiseTime, p.SetTime)
		}
		if p.Duration() > 20*time.Minute {
			t.Errorf("pass %d: duration %v too long for LEO", i, p.Duration())
		}
		if p.MaximumElevation < 10 || p.MaximumElevation > 90 {
			t.Errorf("pass %d: maximum elevation %.2f out of range", i, p.MaximumElevation)
		}
		for _, c := range p.Culminations {
			if c.Time.Before(p.RiseTime) || c.Time.After(p.SetTime) {
				t.Errorf("pass %d: culmination %v outside pass", i, c.Time)
			}
		}
		if i > 0 && !res.Passes[i-1].SetTime.Before(p.RiseTime) {
			t.Errorf("pass %d overlaps previous pass", i)
		}
	}
}
