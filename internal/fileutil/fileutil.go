// Package fileutil holds the small file helpers shared by the on-disk caches.
package fileutil

import (
	"os"
	"path/filepath"
)

// WriteAtomic writes data to path via a temp file and rename so readers
// never see a half-written file.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// ReadNonEmpty returns the file contents, treating an empty file as missing.
func ReadNonEmpty(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, &os.PathError{Op: "read", Path: path, Err: os.ErrNotExist}
	}
	return b, nil
}
