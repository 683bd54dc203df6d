package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// ErrNotFound means a backup source holds no file yet.
var ErrNotFound = errors.New("backup not found")

// LocalFile is the on-disk copy of the response table.
type LocalFile struct {
	path string
}

func NewLocalFile(path string) *LocalFile {
	return &LocalFile{path: path}
}

func (l *LocalFile) Path() string { return l.path }

// Write replaces the file atomically, so readers never see a truncated table.
func (l *LocalFile) Write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("could not create backup directory: %w", err)
	}
	return atomic.WriteFile(l.path, bytes.NewReader(data))
}

// Read returns the file contents or ErrNotFound.
func (l *LocalFile) Read() ([]byte, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Preserve writes data next to the backup as <path>.corrupt-<timestamp> and
// returns the new file's path.
func (l *LocalFile) Preserve(data []byte, at time.Time) (string, error) {
	path := l.path + ".corrupt-" + at.UTC().Format("20060102T150405Z")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("could not create backup directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return path, nil
}
