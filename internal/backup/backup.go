package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"pairsurvey/internal/models"

	"go.uber.org/zap"
)

// Source names where a loaded table came from.
type Source string

const (
	SourceNone   Source = "none"
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
	SourceRaw    Source = "raw"
)

// Transport writes the table to the local file and, when configured, to the remote
// repository. Remote failures are logged and never returned.
type Transport struct {
	log    *zap.Logger
	local  *LocalFile
	remote *GitHub
	now    func() time.Time
}

// ErrUnreadable means a backup exists but is not a response table. Starting
// over it would overwrite the stored responses on the first save.
var ErrUnreadable = errors.New("backup exists but cannot be read")

// NewTransport wires a transport; remote may be nil.
func NewTransport(log *zap.Logger, local *LocalFile, remote *GitHub) *Transport {
	return &Transport{log: log, local: local, remote: remote, now: time.Now}
}

// Save writes a full snapshot. Only a failed local write is reported.
func (t *Transport) Save(ctx context.Context, records []models.ResponseRecord) error {
	data, err := EncodeCSV(records)
	if err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}

	localErr := t.local.Write(data)
	if localErr != nil {
		t.log.Error("Failed to write local backup", zap.String("path", t.local.Path()), zap.Error(localErr))
		localErr = fmt.Errorf("write local backup: %w", localErr)
	}

	if t.remote != nil {
		if err := t.push(ctx, data); err != nil {
			t.log.Error("Failed to push remote backup", zap.Error(err), zap.Int("records", len(records)))
		} else {
			t.log.Debug("Remote backup updated", zap.Int("records", len(records)))
		}
	}
	return localErr
}

func (t *Transport) push(ctx context.Context, data []byte) error {
	_, sha, err := t.remote.Fetch(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return t.remote.Put(ctx, data, sha)
}

// Load returns the first table it can read: local file, remote API, then raw host.
// It returns an empty table only when no source holds a file. A file that exists
// but cannot be parsed is an error wrapping ErrUnreadable.
func (t *Transport) Load(ctx context.Context) ([]models.ResponseRecord, Source, error) {
	data, err := t.local.Read()
	switch {
	case err == nil:
		records, err := t.decode(SourceLocal, data)
		return records, SourceLocal, err
	case !errors.Is(err, ErrNotFound):
		return nil, SourceNone, fmt.Errorf("read local backup %s: %w", t.local.Path(), err)
	}

	if t.remote == nil {
		t.log.Info("No backup found, starting with an empty response table")
		return nil, SourceNone, nil
	}

	data, _, err = t.remote.Fetch(ctx)
	if err == nil {
		records, err := t.decode(SourceRemote, data)
		return records, SourceRemote, err
	}
	if !errors.Is(err, ErrNotFound) {
		t.log.Warn("Could not fetch remote backup", zap.Error(err))
	}

	data, err = t.remote.Raw(ctx)
	if err == nil {
		records, err := t.decode(SourceRaw, data)
		return records, SourceRaw, err
	}
	if !errors.Is(err, ErrNotFound) {
		t.log.Warn("Could not fetch raw backup", zap.Error(err))
	}

	t.log.Info("No backup found, starting with an empty response table")
	return nil, SourceNone, nil
}

// decode parses a loaded backup. When rows have to be skipped, the original bytes
// are copied aside first, since the next save rewrites the table without them.
func (t *Transport) decode(src Source, data []byte) ([]models.ResponseRecord, error) {
	records, skipped, err := ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s backup: %w: %w", src, ErrUnreadable, err)
	}
	if len(skipped) == 0 {
		return records, nil
	}

	for _, row := range skipped {
		t.log.Warn("Skipping unparseable backup row",
			zap.String("source", string(src)), zap.Int("line", row.Line), zap.Error(row.Err))
	}
	path, err := t.local.Preserve(data, t.now())
	if err != nil {
		return nil, fmt.Errorf("%s backup has %d bad rows and could not be preserved: %w", src, len(skipped), err)
	}
	t.log.Warn("Preserved original backup before it is rewritten",
		zap.String("source", string(src)), zap.String("path", path),
		zap.Int("records", len(records)), zap.Int("skipped", len(skipped)))
	return records, nil
}
