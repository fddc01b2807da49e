package sources

import (
	"bytes"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/large-farva/orbitwatch/internal/fileutil"
)

// SaveSnapshot writes c as zstd-compressed msgpack.
func SaveSnapshot(path string, c Catalog) error {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(zw).Encode(&c); err != nil {
		zw.Close()
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, buf.Bytes())
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return Catalog{}, err
	}
	defer zr.Close()

	var c Catalog
	if err := msgpack.NewDecoder(zr).Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog snapshot %s: %w", path, err)
	}
	c.FromSnapshot = true
	return c, nil
}
