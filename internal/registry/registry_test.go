package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/large-farva/orbitwatch/internal/catalog"
	"github.com/large-farva/orbitwatch/internal/cleanup"
	"github.com/large-farva/orbitwatch/internal/elements"
	"github.com/large-farva/orbitwatch/internal/logging"
	"github.com/large-farva/orbitwatch/internal/metrics"
	"github.com/large-farva/orbitwatch/internal/orbit"
	"github.com/large-farva/orbitwatch/internal/sources"
	"github.com/large-farva/orbitwatch/internal/telemetry"
)

var t0 = time.Date(2025, 5, 18, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return t0 }

// tleText renders a minimal three-line group for each id.
func tleText(ids ...int) string {
	var sb strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&sb, "SAT %d\n", id)
		fmt.Fprintf(&sb, "1 %05dU 98067A   25138.00000000  .00000030  00000+0  40000-4 0  9999\n", id)
		fmt.Fprintf(&sb, "2 %05d  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957 10009\n", id)
	}
	return sb.String()
}

type textSource struct{ text string }

func (s textSource) Text(ctx context.Context) (string, error) { return s.text, ctx.Err() }
func (s textSource) Name() string                             { return "test" }

// zenithPropagator puts every satellite 1000 km straight above an observer
// at 0,0, moving away at 1 km/s. Altitudes and failures are per id.
type zenithPropagator struct {
	altitude map[int]float64
	fail     map[int]bool
}

func (p zenithPropagator) Propagate(ctx context.Context, set elements.Set, t time.Time) (orbit.GeocentricState, error) {
	if err := ctx.Err(); err != nil {
		return orbit.GeocentricState{}, fmt.Errorf("%w: %w", orbit.ErrTimeout, err)
	}
	if p.fail[set.CatalogID] {
		return orbit.GeocentricState{}, &orbit.PropagationError{CatalogID: set.CatalogID, Reason: "stale"}
	}
	alt := 1000.0
	if a, ok := p.altitude[set.CatalogID]; ok {
		alt = a
	}
	ground := orbit.Observer{}.ECEF()
	return orbit.GeocentricState{
		Time:         t,
		ECEFPosition: orbit.Vector{X: ground.X + 1000, Y: ground.Y, Z: ground.Z},
		ECEFVelocity: orbit.Vector{X: 1},
		SubPoint:     orbit.SubPoint{Altitude: alt},
	}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) BroadcastJSON(v any) {
	r.mu.Lock()
	r.events = append(r.events, v)
	r.mu.Unlock()
}

func intp(v int) *int       { return &v }
func i64p(v int64) *int64   { return &v }
func strp(v string) *string { return &v }

func satEntries(ids ...int) []catalog.SatelliteEntry {
	out := make([]catalog.SatelliteEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, catalog.SatelliteEntry{NoradCatID: intp(id), Name: fmt.Sprintf("Sat %d", id)})
	}
	return out
}

// fixture: ids 1..10; 9 and 10 have no TLE, 3 has decayed, 4 is
// unpredictable.
type fixture struct {
	dir  string
	prop zenithPropagator
	text string
	ids  []int
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return fixture{
		dir: t.TempDir(),
		prop: zenithPropagator{
			altitude: map[int]float64{3: -5},
			fail:     map[int]bool{4: true},
		},
		text: tleText(1, 2, 3, 4, 5, 6, 7, 8),
		ids:  []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	}
}

func (f fixture) registry(t *testing.T, mode Mode, src sources.TLESource, opts ...func(*Options)) *Registry {
	t.Helper()
	o := Options{
		Propagator: f.prop,
		Source:     src,
		Mode:       mode,
		Cleanup:    cleanup.NewStore(f.dir),
		DataRoot:   f.dir,
		Now:        clock,
		Log:        logging.Discard(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	r, err := New(o)
	if err != nil {
		t.Fatal(err)
	}
	r.Ingest(satEntries(f.ids...), nil)
	if _, err := r.LoadElements(context.Background()); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Source: textSource{}}); err == nil {
		t.Error("missing propagator accepted")
	}
	if _, err := New(Options{Propagator: zenithPropagator{}}); err == nil {
		t.Error("missing source accepted")
	}
}

func TestIngest(t *testing.T) {
	r, err := New(Options{Propagator: zenithPropagator{}, Source: textSource{}, Log: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	sats := []catalog.SatelliteEntry{
		{NoradCatID: intp(25544), Name: "ISS"},
		{NoradCatID: nil, Name: "NULL ID"},
		{NoradCatID: intp(catalog.SentinelID), Name: "PLACEHOLDER"},
		{NoradCatID: intp(7), Name: ""},
		{NoradCatID: intp(25544), Name: "ISS AGAIN"},
		{NoradCatID: intp(33591), Name: "NOAA 19"},
	}
	txs := []catalog.TransmitterEntry{
		{UUID: "a", Description: strp("FM"), DownlinkHigh: i64p(437800000), NoradCatID: intp(25544)},
		{UUID: "b", Description: strp("APT"), DownlinkHigh: i64p(137100000), NoradCatID: intp(33591)},
		{UUID: "c", Description: strp("beacon"), NoradCatID: intp(12345)},
		{UUID: "d", NoradCatID: intp(25544)},
	}
	rep := r.Ingest(sats, txs)

	if rep.Satellites != 2 || rep.Rejected != 3 || rep.Sentinel != 2 || rep.Duplicates != 1 {
		t.Errorf("satellite counts: %+v", rep)
	}
	if rep.Transmitters != 2 || rep.OrphanTransmitters != 1 || rep.RejectedTransmitters != 1 {
		t.Errorf("transmitter counts: %+v", rep)
	}
	if len(rep.Errors) != 4 {
		t.Errorf("got %d errors, want 4", len(rep.Errors))
	}
	for _, err := range rep.Errors {
		if !errors.Is(err, catalog.ErrInvalidEntry) {
			t.Errorf("error %v does not match ErrInvalidEntry", err)
		}
	}

	iss, err := r.Lookup(25544)
	if err != nil {
		t.Fatal(err)
	}
	if iss.Name() != "ISS" {
		t.Errorf("duplicate replaced the first entry: %q", iss.Name())
	}
	if iss.State() != catalog.Ingested {
		t.Errorf("state = %v, want ingested", iss.State())
	}
	if got := len(iss.Transmitters()); got != 1 {
		t.Errorf("ISS has %d transmitters, want 1", got)
	}
}

func TestLoadElements(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t, Live, textSource{f.text})

	sat, _ := r.Lookup(5)
	if !sat.Elements().Valid || sat.State() != catalog.TleResolved {
		t.Errorf("satellite 5: valid=%v state=%v", sat.Elements().Valid, sat.State())
	}
	sat, _ = r.Lookup(9)
	if sat.Elements().Valid || sat.State() != catalog.Ingested {
		t.Errorf("satellite 9: valid=%v state=%v", sat.Elements().Valid, sat.State())
	}

	r2, _ := New(Options{Propagator: f.prop, Source: sources.NewFileSource(t.TempDir(), "none.txt"), Log: logging.Discard()})
	if _, err := r2.LoadElements(context.Background()); !errors.Is(err, sources.ErrNoData) {
		t.Errorf("LoadElements from empty source = %v, want ErrNoData", err)
	}
}

func TestPruneLive(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	r := f.registry(t, Live, textSource{f.text}, func(o *Options) {
		o.Metrics = m
		o.Events = rec
	})

	rep, err := r.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if !slices.Equal(rep.Removed, []int{3, 9, 10}) {
		t.Errorf("removed = %v, want [3 9 10]", rep.Removed)
	}
	if rep.Scanned != 10 || rep.NoTLE != 2 || rep.NotOrbiting != 1 || rep.Unpredictable != 1 {
		t.Errorf("counts: %+v", rep)
	}
	if rep.Active != 6 || r.Len() != 7 {
		t.Errorf("active = %d, len = %d; want 6 and 7", rep.Active, r.Len())
	}
	if rep.DecisionSavedAt.IsZero() {
		t.Error("decision time not reported")
	}

	sat, _ := r.Lookup(4)
	if sat.State() != catalog.TleResolved {
		t.Errorf("unpredictable satellite state = %v", sat.State())
	}
	sat, _ = r.Lookup(5)
	if sat.State() != catalog.Active {
		t.Errorf("satellite 5 state = %v, want active", sat.State())
	}
	if _, err := r.Lookup(9); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(9) = %v, want ErrNotFound", err)
	}
	if got := len(r.Active()); got != 6 {
		t.Errorf("Active() = %d satellites", got)
	}

	d, err := cleanup.NewStore(f.dir).Load()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(d.IDs, []int{3, 9, 10}) {
		t.Errorf("persisted ids = %v", d.IDs)
	}

	cache, err := os.ReadFile(filepath.Join(f.dir, sources.CacheFile))
	if err != nil {
		t.Fatal(err)
	}
	if got := len(elements.Split(string(cache))); got != 7 || rep.CacheWrote != 7 {
		t.Errorf("cache holds %d records, report says %d; want 7", got, rep.CacheWrote)
	}

	if got := testutil.ToFloat64(m.SatellitesRemoved.WithLabelValues(ReasonNoTLE)); got != 2 {
		t.Errorf("no_tle metric = %v", got)
	}
	if got := testutil.ToFloat64(m.SatellitesActive); got != 7 {
		t.Errorf("active gauge = %v", got)
	}

	var saw bool
	for _, ev := range rec.events {
		if p, ok := ev.(telemetry.Prune); ok && p.Removed == 3 {
			saw = true
		}
	}
	if !saw {
		t.Error("no prune event broadcast")
	}
}

func TestPruneIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.registry(t, Live, textSource{f.text})
	b := f.registry(t, Live, textSource{f.text})

	ra, err := a.Prune(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	rb, err := b.Prune(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(ra.Removed, rb.Removed) {
		t.Errorf("deletion sets differ: %v vs %v", ra.Removed, rb.Removed)
	}

	again, err := a.Prune(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Removed) != 0 {
		t.Errorf("second prune removed %v", again.Removed)
	}
	if !slices.Equal(a.IDs(), b.IDs()) {
		t.Errorf("active sets differ: %v vs %v", a.IDs(), b.IDs())
	}
	d, _ := cleanup.NewStore(f.dir).Load()
	if !slices.Equal(d.IDs, ra.Removed) {
		t.Errorf("persisted decision %v changed after the second prune", d.IDs)
	}
}

func TestReplayFidelity(t *testing.T) {
	f := newFixture(t)
	live := f.registry(t, Live, textSource{f.text})
	if _, err := live.Prune(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Replay reads the cache written after the live prune and never
	// propagates.
	f.prop = zenithPropagator{fail: map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true}}
	replay := f.registry(t, Replay, sources.NewFileSource(f.dir, sources.CacheFile))
	rep, err := replay.Prune(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Mode != Replay || rep.NoDecision {
		t.Errorf("unexpected report: %+v", rep)
	}
	if !slices.Equal(rep.Removed, []int{3, 9, 10}) {
		t.Errorf("replay removed %v", rep.Removed)
	}
	if !slices.Equal(replay.IDs(), live.IDs()) {
		t.Errorf("replay active set %v, live %v", replay.IDs(), live.IDs())
	}
	if rep.DecisionSavedAt.IsZero() {
		t.Error("replay should report the decision's age")
	}
}

func TestReplayWithoutDecision(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t, Replay, textSource{f.text})
	rep, err := r.Prune(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rep.NoDecision || len(rep.Removed) != 0 || r.Len() != 10 {
		t.Errorf("replay without decision: %+v, len %d", rep, r.Len())
	}
}

func TestPruneNeverResurrects(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t, Live, textSource{f.text})
	if _, err := r.Prune(context.Background()); err != nil {
		t.Fatal(err)
	}
	rep := r.Ingest(satEntries(f.ids...), nil)
	if rep.PreviouslyRemoved != 3 || rep.Satellites != 0 || rep.Duplicates != 7 {
		t.Errorf("re-ingest: %+v", rep)
	}
	if _, err := r.Lookup(3); !errors.Is(err, ErrNotFound) {
		t.Errorf("pruned satellite came back: %v", err)
	}
}

func TestPruneMutationSafety(t *testing.T) {
	for _, n := range []int{1, 7, 50, 200} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			var ids, withTLE []int
			bad := 0
			for id := 1; id <= n; id++ {
				ids = append(ids, id)
				if id%3 == 0 {
					bad++
					continue
				}
				withTLE = append(withTLE, id)
			}
			r, _ := New(Options{
				Propagator: zenithPropagator{},
				Source:     textSource{tleText(withTLE...)},
				Now:        clock,
				Log:        logging.Discard(),
			})
			r.Ingest(satEntries(ids...), nil)
			if _, err := r.LoadElements(context.Background()); err != nil {
				t.Fatal(err)
			}
			rep, err := r.Prune(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if rep.Scanned != n || len(rep.Removed) != bad || r.Len() != n-bad {
				t.Errorf("scanned %d removed %d left %d; want %d %d %d", rep.Scanned, len(rep.Removed), r.Len(), n, bad, n-bad)
			}
			if !slices.Equal(r.IDs(), withTLE) {
				t.Errorf("survivors %v, want %v", r.IDs(), withTLE)
			}
		})
	}
}

func TestPruneCancelled(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t, Live, textSource{f.text})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Prune(ctx); !errors.Is(err, orbit.ErrTimeout) {
		t.Fatalf("Prune = %v, want ErrTimeout", err)
	}
	if r.Len() != 10 {
		t.Errorf("cancelled prune removed satellites: %d left", r.Len())
	}
	if _, err := cleanup.NewStore(f.dir).Load(); !errors.Is(err, cleanup.ErrNoDecision) {
		t.Errorf("cancelled prune persisted a decision: %v", err)
	}
}

// cancellingPropagator cancels the caller's context on its nth call.
type cancellingPropagator struct {
	orbit.Propagator
	mu     sync.Mutex
	left   int
	cancel context.CancelFunc
}

func (p *cancellingPropagator) Propagate(ctx context.Context, set elements.Set, t time.Time) (orbit.GeocentricState, error) {
	p.mu.Lock()
	if p.cancel != nil {
		if p.left--; p.left == 0 {
			p.cancel()
		}
	}
	p.mu.Unlock()
	return p.Propagator.Propagate(ctx, set, t)
}

func TestPruneCancelledMidScanLeavesStates(t *testing.T) {
	f := newFixture(t)
	prop := &cancellingPropagator{Propagator: f.prop}
	r := f.registry(t, Live, textSource{f.text}, func(o *Options) { o.Propagator = prop })

	if _, err := r.Prune(context.Background()); err != nil {
		t.Fatal(err)
	}
	states := func() map[int]catalog.State {
		out := map[int]catalog.State{}
		for _, id := range r.IDs() {
			sat, _ := r.Lookup(id)
			out[id] = sat.State()
		}
		return out
	}
	before := states()
	activeBefore := len(r.Active())

	// Survivors are 1 2 4 5 6 7 8; the third propagation (NORAD 4) cancels.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prop.mu.Lock()
	prop.left, prop.cancel = 3, cancel
	prop.mu.Unlock()

	if _, err := r.Prune(ctx); !errors.Is(err, orbit.ErrTimeout) {
		t.Fatalf("Prune = %v, want ErrTimeout", err)
	}
	if got := states(); !maps.Equal(got, before) {
		t.Errorf("states after aborted prune = %v, want %v", got, before)
	}
	if n := len(r.Active()); n != activeBefore || n != 6 {
		t.Errorf("active = %d, want %d", n, activeBefore)
	}
}

func TestPredict(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t, Live, textSource{f.text})
	r.Ingest(nil, []catalog.TransmitterEntry{
		{UUID: "tx", Description: strp("FM"), UplinkLow: i64p(145990000), DownlinkHigh: i64p(437800000), NoradCatID: intp(1)},
	})

	p, err := r.PredictNow(context.Background(), 1, orbit.Observer{})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	top := p.Prediction.Topocentric
	if math.Abs(top.Elevation-90) > 1e-9 || math.Abs(top.Range-1000) > 1e-9 {
		t.Errorf("look angles: %+v", top)
	}
	if math.Abs(top.RangeRate-1) > 1e-12 {
		t.Errorf("range rate = %v, want 1", top.RangeRate)
	}
	if p.Name != "SAT 1" || !p.Prediction.Time.Equal(t0) {
		t.Errorf("prediction: %+v", p)
	}

	if len(p.Transmitters) != 1 {
		t.Fatalf("got %d transmitters", len(p.Transmitters))
	}
	tx := p.Transmitters[0]
	f0 := catalog.DopplerFraction(1)
	if tx.Downlink.DopplerFraction != f0 || tx.Uplink.DopplerFraction != f0 {
		t.Errorf("fractions %v/%v, want %v", tx.Uplink.DopplerFraction, tx.Downlink.DopplerFraction, f0)
	}
	if want := 437800000 - 437800000*f0; tx.Downlink.Shifted() != want {
		t.Errorf("downlink = %v, want %v", tx.Downlink.Shifted(), want)
	}

	sat, _ := r.Lookup(1)
	last, ok := sat.LastPrediction()
	if !ok || last.Topocentric.RangeRate != top.RangeRate {
		t.Error("prediction not stored on the satellite")
	}
}

func TestPredictErrors(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t, Live, textSource{f.text})
	ctx := context.Background()

	if _, err := r.PredictNow(ctx, 1, orbit.Observer{Latitude: 91}); !errors.Is(err, orbit.ErrInvalidObserver) {
		t.Errorf("bad observer: %v", err)
	}
	if _, err := r.PredictNow(ctx, 424242, orbit.Observer{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: %v", err)
	}
	if _, err := r.PredictNow(ctx, 9, orbit.Observer{}); !errors.Is(err, ErrNoElements) {
		t.Errorf("no elements: %v", err)
	}
	if _, err := r.PredictNow(ctx, 4, orbit.Observer{}); !errors.Is(err, orbit.ErrPropagation) {
		t.Errorf("propagation failure: %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := r.PredictNow(cancelled, 1, orbit.Observer{}); !errors.Is(err, orbit.ErrTimeout) {
		t.Errorf("cancelled: %v", err)
	}
}

func TestPredictMany(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t, Live, textSource{f.text}, func(o *Options) { o.MaxParallel = 2 })

	out, err := r.PredictMany(context.Background(), []int{1, 2, 4, 999}, orbit.Observer{}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d outcomes", len(out))
	}
	for i, want := range []int{1, 2, 4, 999} {
		if out[i].CatalogID != want {
			t.Errorf("outcome %d is for %d, want %d", i, out[i].CatalogID, want)
		}
	}
	if out[0].Err != nil || out[1].Err != nil {
		t.Errorf("unexpected errors: %v, %v", out[0].Err, out[1].Err)
	}
	if !errors.Is(out[2].Err, orbit.ErrPropagation) || !errors.Is(out[3].Err, ErrNotFound) {
		t.Errorf("errors: %v, %v", out[2].Err, out[3].Err)
	}
	if out[3].Error == "" {
		t.Error("error text not set")
	}
}

func TestConcurrentPredictDuringPrune(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t, Live, textSource{f.text})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				for _, id := range []int{1, 3, 9} {
					_, err := r.PredictNow(context.Background(), id, orbit.Observer{})
					if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrNoElements) {
						t.Errorf("predict %d: %v", id, err)
						return
					}
				}
			}
		}()
	}
	if _, err := r.Prune(context.Background()); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	if r.Len() != 7 {
		t.Errorf("len = %d, want 7", r.Len())
	}
}

func TestNames(t *testing.T) {
	r, _ := New(Options{Propagator: zenithPropagator{}, Source: textSource{}, Log: logging.Discard()})
	r.Ingest([]catalog.SatelliteEntry{
		{NoradCatID: intp(25544), Name: "ISS (Zarya)"},
		{NoradCatID: intp(33591), Name: "NOAA 19"},
		{NoradCatID: intp(50000), Name: "noaa 19"},
	}, nil)

	byName := r.ByName()
	if byName["ISS (ZARYA)"] != 25544 || byName["NOAA 19"] != 33591 || len(byName) != 2 {
		t.Errorf("ByName = %v", byName)
	}
	byID := r.ByID()
	if byID[50000] != "NOAA 19" || len(byID) != 3 {
		t.Errorf("ByID = %v", byID)
	}
	sat, err := r.LookupByName("iss (zarya)")
	if err != nil || sat.CatalogID() != 25544 {
		t.Errorf("LookupByName = %v, %v", sat, err)
	}
	if _, err := r.LookupByName("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LookupByName miss = %v", err)
	}
}

func TestSelectTransmitter(t *testing.T) {
	r, _ := New(Options{Propagator: zenithPropagator{}, Source: textSource{}, Log: logging.Discard()})
	r.Ingest(satEntries(1), []catalog.TransmitterEntry{
		{UUID: "a", Description: strp("FM"), NoradCatID: intp(1)},
		{UUID: "b", Description: strp("BPSK"), NoradCatID: intp(1)},
	})
	tx, err := r.SelectTransmitter(1, "b")
	if err != nil || !tx.Selected {
		t.Fatalf("SelectTransmitter = %+v, %v", tx, err)
	}
	if _, err := r.SelectTransmitter(1, "zzz"); !errors.Is(err, catalog.ErrTransmitterNotFound) {
		t.Errorf("unknown uuid: %v", err)
	}
	if _, err := r.SelectTransmitter(2, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown satellite: %v", err)
	}
}

func TestReingestKeepsSelection(t *testing.T) {
	r, _ := New(Options{Propagator: zenithPropagator{}, Source: textSource{}, Log: logging.Discard()})
	txs := []catalog.TransmitterEntry{
		{UUID: "a", Description: strp("FM"), NoradCatID: intp(1)},
		{UUID: "b", Description: strp("BPSK"), NoradCatID: intp(1)},
	}
	r.Ingest(satEntries(1), txs)
	if _, err := r.SelectTransmitter(1, "b"); err != nil {
		t.Fatal(err)
	}

	// A refresh cycle re-ingests the same catalog with updated descriptions.
	txs[1].Description = strp("BPSK 1200")
	r.Ingest(satEntries(1), txs)

	sat, err := r.Lookup(1)
	if err != nil {
		t.Fatal(err)
	}
	sel, ok := sat.Selected()
	if !ok || sel.ID != "b" {
		t.Fatalf("selected = %q, %v; want b to survive re-ingest", sel.ID, ok)
	}
	if sel.Description != "BPSK 1200" {
		t.Errorf("description = %q, want the re-ingested one", sel.Description)
	}
	if got := sat.Transmitters(); len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("transmitters = %+v, want a then b", got)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t, Live, textSource{f.text})
	if st := r.Status(); st.LastPrune != nil || st.Satellites != 10 {
		t.Errorf("before prune: %+v", st)
	}
	if _, err := r.Prune(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := r.Status()
	if st.Satellites != 7 || st.Active != 6 || st.Removed != 3 || st.LastPrune == nil {
		t.Errorf("after prune: %+v", st)
	}
	if st.Source != "test" || st.LastLoad.IsZero() {
		t.Errorf("source info: %+v", st)
	}
}
