package sources

import (
	"os"
	"time"

	"github.com/akhenakh/sgp4"

	"github.com/large-farva/orbitwatch/internal/elements"
)

// Info describes a TLE file on disk.
type Info struct {
	Path        string    `json:"path"`
	Exists      bool      `json:"exists"`
	Size        int64     `json:"size_bytes"`
	ModTime     time.Time `json:"modified,omitzero"`
	Records     int       `json:"records"`
	Rejected    int       `json:"rejected"`
	OldestEpoch time.Time `json:"oldest_epoch,omitzero"`
	NewestEpoch time.Time `json:"newest_epoch,omitzero"`
}

// Inspect summarizes the TLE file at path. Each record is also run through
// an independent SGP4 TLE parser; records it refuses are counted as
// rejected. A missing file is reported, not returned as an error.
func Inspect(path string) (Info, error) {
	info := Info{Path: path}
	st, err := os.Stat(path)
	if os.IsNotExist(err) {
		return info, nil
	}
	if err != nil {
		return info, err
	}
	info.Exists = true
	info.Size = st.Size()
	info.ModTime = st.ModTime()

	b, err := os.ReadFile(path)
	if err != nil {
		return info, err
	}

	for _, set := range elements.Split(string(b)) {
		info.Records++
		tle, err := sgp4.ParseTLE(set.Name + "\n" + set.Line1 + "\n" + set.Line2)
		if err != nil || tle.SatelliteNumber != set.CatalogID {
			info.Rejected++
		}
		if info.OldestEpoch.IsZero() || set.Epoch.Before(info.OldestEpoch) {
			info.OldestEpoch = set.Epoch
		}
		if set.Epoch.After(info.NewestEpoch) {
			info.NewestEpoch = set.Epoch
		}
	}
	return info, nil
}
