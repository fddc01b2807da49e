// Package sources supplies the two inputs the registry needs: the merged TLE
// text and the satellite/transmitter catalog. Live sources fetch from
// CelesTrak and SatNOGS and fall back to the previous on-disk copy when the
// network fails; cached sources only read what earlier runs left on disk.
// Callers cannot tell fresh data from cached data.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/large-farva/orbitwatch/internal/elements"
	"github.com/large-farva/orbitwatch/internal/fileutil"
)

// Files under the data root.
const (
	CelesTrakFile   = "celestrak_tle.txt"
	SatNOGSTLEFile  = "satnogs_tle.txt"
	MergedFile      = "tle.txt"
	CacheFile       = "tle_cache.txt"
	CatalogSnapshot = "catalog.msgpack.zst"
)

// ErrNoData is returned when neither the network nor the disk has data.
var ErrNoData = errors.New("no data available")

// TLESource yields the fully merged TLE text.
type TLESource interface {
	Text(ctx context.Context) (string, error)
	Name() string
}

// FileSource reads TLE text from one file. It backs replay mode, reading the
// tle_cache.txt written after the last live prune.
type FileSource struct {
	path string
}

// NewFileSource reads name under dataRoot.
func NewFileSource(dataRoot, name string) *FileSource {
	return &FileSource{path: filepath.Join(dataRoot, name)}
}

func (s *FileSource) Name() string { return "file:" + filepath.Base(s.path) }

func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := fileutil.ReadNonEmpty(s.path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoData, err)
	}
	return string(b), nil
}

// WriteCache writes the element sets of the surviving satellites as CRLF
// three-line groups to tle_cache.txt under dataRoot.
func WriteCache(dataRoot string, sets []elements.Set) (int, error) {
	var (
		buf []byte
		n   int
	)
	for _, s := range sets {
		if !s.Valid {
			continue
		}
		buf = append(buf, s.Text()...)
		n++
	}
	path := filepath.Join(dataRoot, CacheFile)
	if err := fileutil.WriteAtomic(path, buf); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

// httpGet fetches url and returns the body of a 200 response.
func httpGet(ctx context.Context, client *http.Client, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "orbitwatch")

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("GET %s returned HTTP %d", url, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return b, resp.StatusCode, nil
}

func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
