package checkpoint

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// FileStore keeps the checkpoint as a decimal number in a text file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the checkpoint file location.
func (f *FileStore) Path() string {
	return f.path
}

// Read implements Store.
func (f *FileStore) Read(_ context.Context) (int64, bool, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "checkpoint: read %s", f.path)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, false, eris.Wrapf(err, "checkpoint: parse %s", f.path)
	}
	return v, true, nil
}

// Write implements Store. The value is written to a temp file and renamed
// into place.
func (f *FileStore) Write(_ context.Context, value int64) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "checkpoint: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return eris.Wrap(err, "checkpoint: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.WriteString(strconv.FormatInt(value, 10)); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "checkpoint: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "checkpoint: close temp file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return eris.Wrapf(err, "checkpoint: rename into %s", f.path)
	}
	return nil
}
