// Package cleanup persists the set of catalog ids removed by a live prune so
// later runs can replay the same decision without recomputing it.
package cleanup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/large-farva/orbitwatch/internal/fileutil"
)

// FileName is the decision file under the data root.
const FileName = "cleanup_cache.json"

// ErrNoDecision is returned by Load when nothing has been saved yet.
var ErrNoDecision = errors.New("no cleanup decision saved")

// Decision is the cumulative set of removed ids. IDs are sorted and unique.
// SavedAt is the file's modification time and tells replay how stale the
// decision is.
type Decision struct {
	IDs     []int     `json:"ids"`
	SavedAt time.Time `json:"saved_at"`
}

// Contains reports whether id was removed.
func (d Decision) Contains(id int) bool {
	_, ok := slices.BinarySearch(d.IDs, id)
	return ok
}

// Age reports how old the decision is at now.
func (d Decision) Age(now time.Time) time.Duration {
	if d.SavedAt.IsZero() {
		return 0
	}
	return now.Sub(d.SavedAt)
}

// Normalize sorts ids and drops duplicates.
func Normalize(ids []int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// Store reads and writes the decision file.
type Store struct {
	path string
}

// NewStore returns a store for FileName under dataRoot.
func NewStore(dataRoot string) *Store {
	return &Store{path: filepath.Join(dataRoot, FileName)}
}

func (s *Store) Path() string { return s.path }

// Save atomically replaces the decision with ids. The file body is a plain
// JSON list of integers.
func (s *Store) Save(ids []int) (Decision, error) {
	ids = Normalize(ids)
	if ids == nil {
		ids = []int{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return Decision{}, err
	}
	if err := fileutil.WriteAtomic(s.path, b); err != nil {
		return Decision{}, fmt.Errorf("write %s: %w", s.path, err)
	}
	saved := time.Now()
	if info, err := os.Stat(s.path); err == nil {
		saved = info.ModTime()
	}
	return Decision{IDs: ids, SavedAt: saved}, nil
}

// Load reads the decision. A missing file returns ErrNoDecision.
func (s *Store) Load() (Decision, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Decision{}, ErrNoDecision
	}
	if err != nil {
		return Decision{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	var ids []int
	if err := json.Unmarshal(b, &ids); err != nil {
		return Decision{}, fmt.Errorf("parse %s: %w", s.path, err)
	}

	d := Decision{IDs: Normalize(ids)}
	if info, err := os.Stat(s.path); err == nil {
		d.SavedAt = info.ModTime()
	}
	return d, nil
}
