package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/large-farva/orbitwatch/internal/catalog"
	"github.com/large-farva/orbitwatch/internal/logging"
	"github.com/large-farva/orbitwatch/internal/tracing"
)

// Catalog is the raw satellite and transmitter listing, before validation.
type Catalog struct {
	Satellites   []catalog.SatelliteEntry   `msgpack:"satellites"`
	Transmitters []catalog.TransmitterEntry `msgpack:"transmitters"`
	// Malformed counts records that were not even decodable.
	Malformed int       `msgpack:"malformed"`
	FetchedAt time.Time `msgpack:"fetched_at"`

	FromSnapshot bool `msgpack:"-"`
}

// CatalogSource yields the catalog.
type CatalogSource interface {
	Catalog(ctx context.Context) (Catalog, error)
}

// SatNOGSCatalog fetches alive satellites and active transmitters from the
// SatNOGS DB API and keeps a compressed snapshot for offline runs.
type SatNOGSCatalog struct {
	baseURL  string
	dataRoot string
	ttl      time.Duration
	offline  bool
	client   *http.Client
	log      *slog.Logger
}

// NewSatNOGSCatalog returns a catalog source. With offline set it only reads
// the snapshot. A snapshot younger than ttl is used without refetching.
func NewSatNOGSCatalog(baseURL, dataRoot string, ttl time.Duration, offline bool, client *http.Client, log *slog.Logger) *SatNOGSCatalog {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SatNOGSCatalog{
		baseURL:  strings.TrimRight(baseURL, "/"),
		dataRoot: dataRoot,
		ttl:      ttl,
		offline:  offline,
		client:   client,
		log:      logging.Component(log, "sources"),
	}
}

func (s *SatNOGSCatalog) snapshotPath() string {
	return filepath.Join(s.dataRoot, CatalogSnapshot)
}

// Catalog walks the fallback chain: fresh snapshot, network, any snapshot.
func (s *SatNOGSCatalog) Catalog(ctx context.Context) (Catalog, error) {
	ctx, span := tracing.Tracer().Start(ctx, "sources.catalog")
	defer span.End()

	path := s.snapshotPath()
	if s.offline {
		c, err := LoadSnapshot(path)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: offline and %v", ErrNoData, err)
		}
		return c, nil
	}

	if s.ttl > 0 {
		if mod := fileModTime(path); !mod.IsZero() && time.Since(mod) < s.ttl {
			if c, err := LoadSnapshot(path); err == nil {
				s.log.Info("using fresh catalog snapshot", slog.Time("saved", mod))
				return c, nil
			}
		}
	}

	c, fetchErr := s.fetch(ctx)
	if fetchErr == nil {
		if err := SaveSnapshot(path, c); err != nil {
			s.log.Warn("catalog snapshot write failed", slog.Any("err", err))
		}
		return c, nil
	}
	if ctx.Err() != nil {
		return Catalog{}, ctx.Err()
	}

	s.log.Warn("network error, using cached catalog", slog.Any("err", fetchErr))
	c, err := LoadSnapshot(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("%w: %w", ErrNoData, errors.Join(fetchErr, err))
	}
	return c, nil
}

func (s *SatNOGSCatalog) fetch(ctx context.Context) (Catalog, error) {
	var (
		satBody, txBody []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url := s.baseURL + "/api/satellites/?status=alive"
		s.log.Info("getting satellites", slog.String("url", url))
		b, _, err := httpGet(gctx, s.client, url)
		satBody = b
		return err
	})
	g.Go(func() error {
		url := s.baseURL + "/api/transmitters/?status=active"
		s.log.Info("getting transmitters", slog.String("url", url))
		b, _, err := httpGet(gctx, s.client, url)
		txBody = b
		return err
	})
	if err := g.Wait(); err != nil {
		return Catalog{}, err
	}

	sats, badSats, err := decodeList[catalog.SatelliteEntry](satBody)
	if err != nil {
		return Catalog{}, fmt.Errorf("decode satellites: %w", err)
	}
	txs, badTxs, err := decodeList[catalog.TransmitterEntry](txBody)
	if err != nil {
		return Catalog{}, fmt.Errorf("decode transmitters: %w", err)
	}

	return Catalog{
		Satellites:   sats,
		Transmitters: txs,
		Malformed:    badSats + badTxs,
		FetchedAt:    time.Now().UTC(),
	}, nil
}

// decodeList decodes a JSON array element by element so one bad record does
// not sink the whole listing.
func decodeList[T any](body []byte) ([]T, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, 0, err
	}
	out := make([]T, 0, len(raw))
	bad := 0
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			bad++
			continue
		}
		out = append(out, v)
	}
	return out, bad, nil
}

// StaticCatalog serves a fixed catalog. Used for tests and for a catalog
// supplied as a local JSON file.
type StaticCatalog struct {
	C Catalog
}

func (s StaticCatalog) Catalog(ctx context.Context) (Catalog, error) {
	if err := ctx.Err(); err != nil {
		return Catalog{}, err
	}
	return s.C, nil
}
