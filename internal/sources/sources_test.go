package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/large-farva/orbitwatch/internal/elements"
	"github.com/large-farva/orbitwatch/internal/logging"
)

const stationsTLE = `ISS (ZARYA)
1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994
2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533
NOAA 19
1 33591U 09005A   25138.50000000  .00000030  00000+0  40000-4 0  9999
2 33591  99.1900 180.0000 0013000 250.0000 110.0000 14.12500000 85009
`

const activeTLE = `OLDBIRD
1 00042U 62001A   25138.50000000  .00000030  00000+0  40000-4 0  9999
2 00042  65.0000 100.0000 0010000  90.0000 270.0000 13.50000000 10009
`

func satnogsRecord(name string, id int) string {
	return fmt.Sprintf(`[{"tle0":"0 %s","tle1":"1 %05dU 21001A   25138.50000000  .00000030  00000+0  40000-4 0  9999","tle2":"2 %05d  97.5000 100.0000 0010000  90.0000 270.0000 15.10000000 10009","norad_cat_id":%d}]`,
		name, id, id, id)
}

// upstream fakes CelesTrak and the SatNOGS TLE endpoint.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/celestrak/satnogs.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, stationsTLE)
	})
	mux.HandleFunc("/celestrak/active.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, activeTLE)
	})
	mux.HandleFunc("/celestrak/tle-new.txt", http.NotFound)
	mux.HandleFunc("/satnogs/api/tle/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("norad_cat_id") {
		case "50000":
			fmt.Fprint(w, satnogsRecord("NEWSAT", 50000))
		case "50001":
			// Answers with some other satellite's elements.
			fmt.Fprint(w, satnogsRecord("WRONGSAT", 12345))
		case "50003":
			fmt.Fprint(w, "[]")
		default:
			http.Error(w, "unknown", http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func liveFor(dir, base string) *Live {
	return NewLive(dir, LiveOptions{
		CelesTrakURL:   base + "/celestrak",
		CelesTrakFiles: []string{"satnogs.txt", "active.txt", "tle-new.txt"},
		SatNOGSURL:     base + "/satnogs",
		Concurrency:    2,
	}, nil, logging.Discard())
}

var requested = []int{25544, 33591, 42, 50000, 50001, 50002, 50003}

func TestLiveRefresh(t *testing.T) {
	srv := upstream(t)
	dir := t.TempDir()
	live := liveFor(dir, srv.URL)

	rep, err := live.Refresh(context.Background(), requested)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rep.CelesTrakFiles != 2 {
		t.Errorf("celestrak files = %d, want 2", rep.CelesTrakFiles)
	}
	if !slices.Equal(rep.CelesTrakFailed, []string{"tle-new.txt"}) {
		t.Errorf("celestrak failed = %v", rep.CelesTrakFailed)
	}
	if rep.Missing != 4 || rep.SatNOGSAdded != 1 || rep.Mismatched != 1 || rep.NotInSatNOGS != 2 {
		t.Errorf("unexpected counts: %+v", rep)
	}
	if rep.Records != 4 || rep.CelesTrakCached || rep.SatNOGSCached {
		t.Errorf("unexpected report: %+v", rep)
	}

	text, err := live.Text(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	set := elements.Lookup(text, 50000)
	if !set.Valid || set.Name != "NEWSAT" {
		t.Errorf("SatNOGS record not merged: %+v", set)
	}
	if elements.Lookup(text, 12345).Valid || elements.Lookup(text, 50001).Valid {
		t.Error("mismatched SatNOGS record was merged")
	}
	for _, name := range []string{CelesTrakFile, SatNOGSTLEFile, MergedFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestLiveRefreshFallsBackToCache(t *testing.T) {
	srv := upstream(t)
	dir := t.TempDir()
	if _, err := liveFor(dir, srv.URL).Refresh(context.Background(), requested); err != nil {
		t.Fatal(err)
	}
	url := srv.URL
	srv.Close()

	rep, err := liveFor(dir, url).Refresh(context.Background(), requested)
	if err != nil {
		t.Fatalf("Refresh with upstream down: %v", err)
	}
	if !rep.CelesTrakCached || !rep.SatNOGSCached {
		t.Errorf("expected both caches to be used: %+v", rep)
	}
	if rep.SatNOGSFailed != 4 {
		t.Errorf("satnogs failed = %d, want 4", rep.SatNOGSFailed)
	}
	if rep.Records != 4 {
		t.Errorf("records = %d, want 4", rep.Records)
	}
}

func TestLiveRefreshNoData(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := liveFor(t.TempDir(), url).Refresh(context.Background(), requested)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("Refresh = %v, want ErrNoData", err)
	}
}

func TestLiveRefreshCancelled(t *testing.T) {
	srv := upstream(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := liveFor(t.TempDir(), srv.URL).Refresh(ctx, requested); !errors.Is(err, context.Canceled) {
		t.Fatalf("Refresh = %v, want context.Canceled", err)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	src := NewFileSource(dir, CacheFile)
	if _, err := src.Text(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("missing file: %v, want ErrNoData", err)
	}

	sets := elements.Split(stationsTLE + activeTLE)
	sets = append(sets, elements.Missing(777))
	n, err := WriteCache(dir, sets)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("wrote %d records, want 3", n)
	}

	text, err := src.Text(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "\r\n") {
		t.Error("cache should use CRLF line endings")
	}
	if got := len(elements.Split(text)); got != 3 {
		t.Errorf("cache holds %d records, want 3", got)
	}
	if src.Name() != "file:"+CacheFile {
		t.Errorf("name = %q", src.Name())
	}
}

const satellitesJSON = `[
 {"norad_cat_id": 25544, "name": "ISS", "status": "alive", "launched": "1998-11-20T00:00:00Z"},
 {"norad_cat_id": "not a number", "name": "BROKEN"},
 {"norad_cat_id": null, "name": "NO ID"}
]`

const transmittersJSON = `[
 {"uuid": "abc", "description": "Mode V/U FM", "alive": true, "uplink_low": 145990000, "downlink_high": 437800000, "mode": "FM", "baud": null, "norad_cat_id": 25544, "service": "Amateur"},
 42
]`

func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/satellites/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "alive" {
			http.Error(w, "bad filter", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, satellitesJSON)
	})
	mux.HandleFunc("/api/transmitters/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "active" {
			http.Error(w, "bad filter", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, transmittersJSON)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSatNOGSCatalog(t *testing.T) {
	srv := catalogServer(t)
	dir := t.TempDir()

	c, err := NewSatNOGSCatalog(srv.URL, dir, 0, false, nil, logging.Discard()).Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(c.Satellites) != 2 || len(c.Transmitters) != 1 {
		t.Fatalf("got %d satellites, %d transmitters", len(c.Satellites), len(c.Transmitters))
	}
	if c.Malformed != 2 {
		t.Errorf("malformed = %d, want 2", c.Malformed)
	}
	if c.FromSnapshot {
		t.Error("fresh fetch reported as snapshot")
	}
	if _, ok := c.Transmitters[0].Extensions["service"]; !ok {
		t.Error("unknown transmitter key not kept")
	}

	off, err := NewSatNOGSCatalog(srv.URL, dir, 0, true, nil, logging.Discard()).Catalog(context.Background())
	if err != nil {
		t.Fatalf("offline Catalog: %v", err)
	}
	if !off.FromSnapshot {
		t.Error("offline catalog should come from the snapshot")
	}
	if len(off.Satellites) != 2 || len(off.Transmitters) != 1 || off.Malformed != 2 {
		t.Errorf("snapshot differs: %+v", off)
	}
	if got := string(off.Satellites[0].Extensions["launched"]); got != `"1998-11-20T00:00:00Z"` {
		t.Errorf("extension after snapshot = %s", got)
	}
	if *off.Transmitters[0].DownlinkHigh != 437800000 {
		t.Errorf("downlink_high = %d", *off.Transmitters[0].DownlinkHigh)
	}
	if off.Transmitters[0].Baud != nil {
		t.Error("null baud should stay nil")
	}
}

func TestSatNOGSCatalogFallback(t *testing.T) {
	srv := catalogServer(t)
	dir := t.TempDir()
	if _, err := NewSatNOGSCatalog(srv.URL, dir, 0, false, nil, logging.Discard()).Catalog(context.Background()); err != nil {
		t.Fatal(err)
	}
	url := srv.URL
	srv.Close()

	c, err := NewSatNOGSCatalog(url, dir, 0, false, nil, logging.Discard()).Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog with upstream down: %v", err)
	}
	if !c.FromSnapshot || len(c.Satellites) != 2 {
		t.Errorf("expected the snapshot: %+v", c)
	}

	fresh, err := NewSatNOGSCatalog(url, dir, time.Hour, false, nil, logging.Discard()).Catalog(context.Background())
	if err != nil || !fresh.FromSnapshot {
		t.Errorf("fresh snapshot not used: %v", err)
	}

	_, err = NewSatNOGSCatalog(url, t.TempDir(), 0, false, nil, logging.Discard()).Catalog(context.Background())
	if !errors.Is(err, ErrNoData) {
		t.Errorf("empty data root = %v, want ErrNoData", err)
	}
	_, err = NewSatNOGSCatalog(url, t.TempDir(), 0, true, nil, logging.Discard()).Catalog(context.Background())
	if !errors.Is(err, ErrNoData) {
		t.Errorf("offline without snapshot = %v, want ErrNoData", err)
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, MergedFile)

	info, err := Inspect(path)
	if err != nil || info.Exists {
		t.Fatalf("missing file: %+v, %v", info, err)
	}

	if err := os.WriteFile(path, []byte(stationsTLE+activeTLE), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err = Inspect(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Exists || info.Records != 3 {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.Rejected > info.Records {
		t.Errorf("rejected %d of %d", info.Rejected, info.Records)
	}
	oldest := time.Date(2025, 5, 18, 0, 0, 0, 0, time.UTC)
	if info.OldestEpoch.Before(oldest) || info.NewestEpoch.Before(info.OldestEpoch) {
		t.Errorf("epoch range %v .. %v", info.OldestEpoch, info.NewestEpoch)
	}
}
