package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/large-farva/orbitwatch/internal/elements"
	"github.com/large-farva/orbitwatch/internal/fileutil"
	"github.com/large-farva/orbitwatch/internal/logging"
	"github.com/large-farva/orbitwatch/internal/tracing"
)

// LiveOptions configures where the live source fetches from.
type LiveOptions struct {
	CelesTrakURL   string
	CelesTrakFiles []string
	SatNOGSURL     string
	// Concurrency bounds simultaneous SatNOGS per-satellite requests.
	Concurrency int
}

// RefreshReport summarizes one fetch-and-merge cycle.
type RefreshReport struct {
	At              time.Time `json:"at"`
	CelesTrakFiles  int       `json:"celestrak_files"`
	CelesTrakFailed []string  `json:"celestrak_failed,omitempty"`
	CelesTrakCached bool      `json:"celestrak_cached"`
	Missing         int       `json:"missing"`
	SatNOGSAdded    int       `json:"satnogs_added"`
	Mismatched      int       `json:"id_mismatches"`
	NotInSatNOGS    int       `json:"not_in_satnogs"`
	SatNOGSFailed   int       `json:"satnogs_failed"`
	SatNOGSCached   bool      `json:"satnogs_cached"`
	Records         int       `json:"records"`
}

// Live fetches CelesTrak element files, fills the gaps from the SatNOGS TLE
// endpoint and merges both into tle.txt under the data root.
type Live struct {
	opts     LiveOptions
	dataRoot string
	client   *http.Client
	log      *slog.Logger
}

// NewLive returns a live source. A nil client gets a 30 second timeout.
func NewLive(dataRoot string, opts LiveOptions, client *http.Client, log *slog.Logger) *Live {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	return &Live{
		opts:     opts,
		dataRoot: dataRoot,
		client:   client,
		log:      logging.Component(log, "sources"),
	}
}

func (l *Live) Name() string { return "live" }

// Text returns the merged TLE text written by the last Refresh.
func (l *Live) Text(ctx context.Context) (string, error) {
	return NewFileSource(l.dataRoot, MergedFile).Text(ctx)
}

// Refresh downloads fresh element sets for the given catalog ids and
// rewrites the merged file. Sub-fetches all complete before it returns.
func (l *Live) Refresh(ctx context.Context, ids []int) (RefreshReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "sources.refresh")
	defer span.End()

	rep := RefreshReport{At: time.Now().UTC()}

	celestrak, err := l.fetchCelesTrak(ctx, &rep)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rep, err
	}

	known := make(map[int]bool)
	for _, s := range elements.Split(celestrak) {
		known[s.CatalogID] = true
	}
	var missing []int
	for _, id := range ids {
		if !known[id] {
			missing = append(missing, id)
		}
	}
	rep.Missing = len(missing)
	l.log.Info("found missing TLEs", slog.Int("missing", len(missing)), slog.Int("requested", len(ids)))

	satnogs, err := l.fetchSatNOGS(ctx, missing, &rep)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rep, err
	}

	merged := celestrak
	if satnogs != "" {
		merged += "\n" + satnogs
	}
	if err := fileutil.WriteAtomic(filepath.Join(l.dataRoot, MergedFile), []byte(merged)); err != nil {
		return rep, fmt.Errorf("write merged TLEs: %w", err)
	}
	rep.Records = len(elements.Split(merged))

	span.SetAttributes(
		attribute.Int("tle.records", rep.Records),
		attribute.Int("tle.missing", rep.Missing),
		attribute.Int("tle.satnogs_added", rep.SatNOGSAdded),
		attribute.Bool("tle.celestrak_cached", rep.CelesTrakCached),
	)
	l.log.Info("TLEs merged",
		slog.Int("records", rep.Records),
		slog.Int("satnogs_added", rep.SatNOGSAdded),
		slog.Int("id_mismatches", rep.Mismatched),
		slog.Int("not_in_satnogs", rep.NotInSatNOGS),
	)
	return rep, nil
}

func (l *Live) fetchCelesTrak(ctx context.Context, rep *RefreshReport) (string, error) {
	files := l.opts.CelesTrakFiles
	bodies := make([][]byte, len(files))
	failed := make([]bool, len(files))

	l.log.Info("downloading CelesTrak TLEs", slog.String("files", strings.Join(files, ", ")))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range files {
		g.Go(func() error {
			b, _, err := httpGet(gctx, l.client, joinURL(l.opts.CelesTrakURL, name))
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.log.Warn("CelesTrak fetch failed", slog.String("file", name), slog.Any("err", err))
				failed[i] = true
				return nil
			}
			bodies[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, b := range bodies {
		if failed[i] {
			rep.CelesTrakFailed = append(rep.CelesTrakFailed, files[i])
			continue
		}
		if len(b) == 0 {
			continue
		}
		rep.CelesTrakFiles++
		sb.Write(b)
		if b[len(b)-1] != '\n' {
			sb.WriteByte('\n')
		}
	}

	path := filepath.Join(l.dataRoot, CelesTrakFile)
	if sb.Len() > 0 {
		if err := fileutil.WriteAtomic(path, []byte(sb.String())); err != nil {
			l.log.Warn("CelesTrak cache write failed", slog.Any("err", err))
		}
		return sb.String(), nil
	}

	cached, err := fileutil.ReadNonEmpty(path)
	if err != nil {
		return "", fmt.Errorf("%w: CelesTrak unreachable and no cached copy: %v", ErrNoData, err)
	}
	l.log.Warn("network error, using cached CelesTrak TLEs", slog.String("path", path))
	rep.CelesTrakCached = true
	return string(cached), nil
}

type satnogsTLE struct {
	TLE0       string `json:"tle0"`
	TLE1       string `json:"tle1"`
	TLE2       string `json:"tle2"`
	NoradCatID int    `json:"norad_cat_id"`
}

type lookupOutcome int

const (
	outcomeAdded lookupOutcome = iota
	outcomeNotFound
	outcomeMismatch
	outcomeFailed
)

// fetchSatNOGS asks SatNOGS for each missing id. A record is accepted only
// when its line 2 decodes to the id that was requested.
func (l *Live) fetchSatNOGS(ctx context.Context, missing []int, rep *RefreshReport) (string, error) {
	if len(missing) == 0 {
		return "", nil
	}

	texts := make([]string, len(missing))
	outcomes := make([]lookupOutcome, len(missing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)
	for i, id := range missing {
		g.Go(func() error {
			url := fmt.Sprintf("%s/api/tle/?norad_cat_id=%d", strings.TrimRight(l.opts.SatNOGSURL, "/"), id)
			b, status, err := httpGet(gctx, l.client, url)
			switch {
			case err != nil && ctx.Err() != nil:
				return ctx.Err()
			case status == http.StatusBadRequest || status == http.StatusNotFound:
				outcomes[i] = outcomeNotFound
				return nil
			case err != nil:
				outcomes[i] = outcomeFailed
				return nil
			}

			var recs []satnogsTLE
			if err := json.Unmarshal(b, &recs); err != nil || len(recs) == 0 {
				outcomes[i] = outcomeNotFound
				return nil
			}
			got, err := elements.CatalogIDFromLine2(recs[0].TLE2)
			if err != nil || got != id {
				outcomes[i] = outcomeMismatch
				return nil
			}
			name := strings.TrimPrefix(recs[0].TLE0, "0 ")
			texts[i] = name + "\r\n" + recs[0].TLE1 + "\r\n" + recs[0].TLE2 + "\r\n"
			outcomes[i] = outcomeAdded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, o := range outcomes {
		switch o {
		case outcomeAdded:
			rep.SatNOGSAdded++
			sb.WriteString(texts[i])
		case outcomeNotFound:
			rep.NotInSatNOGS++
		case outcomeMismatch:
			rep.Mismatched++
		case outcomeFailed:
			rep.SatNOGSFailed++
		}
	}

	path := filepath.Join(l.dataRoot, SatNOGSTLEFile)
	if sb.Len() > 0 {
		if err := fileutil.WriteAtomic(path, []byte(sb.String())); err != nil {
			l.log.Warn("SatNOGS TLE cache write failed", slog.Any("err", err))
		}
		return sb.String(), nil
	}

	if rep.SatNOGSFailed > 0 {
		cached, err := fileutil.ReadNonEmpty(path)
		if err == nil {
			rep.SatNOGSCached = true
			l.log.Warn("network error, using cached SatNOGS TLEs", slog.Int("failed", rep.SatNOGSFailed))
			return string(cached), nil
		}
		l.log.Debug("no cached SatNOGS TLEs", slog.Any("err", err))
	}
	return "", nil
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(name, "/")
}
