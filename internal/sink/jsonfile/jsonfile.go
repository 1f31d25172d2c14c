// Package jsonfile persists snapshots as JSON documents.
package jsonfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"quotefeed/internal/snapshot"
)

// TimestampLayout names one-shot files: financial_data_YYYYMMDD_HHMMSS.json.
const TimestampLayout = "20060102_150405"

// Sink writes each snapshot atomically (temp file + rename).
//
// With Path set every snapshot overwrites that file. Otherwise a new
// timestamped file is created in Dir per snapshot.
type Sink struct {
	Path string
	Dir  string
}

func (s *Sink) Name() string { return "jsonfile" }

// Filename returns the file a snapshot is written to.
func (s *Sink) Filename(snap *snapshot.Snapshot) string {
	if s.Path != "" {
		return s.Path
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, fmt.Sprintf("financial_data_%s.json", snap.TakenAt().Format(TimestampLayout)))
}

func (s *Sink) Publish(_ context.Context, snap *snapshot.Snapshot) error {
	_, err := Save(snap, s.Filename(snap))
	return err
}

// Save writes snap to path atomically and returns the path.
func Save(snap *snapshot.Snapshot, path string) (string, error) {
	b, err := snapshot.Encode(snap)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("renaming to %s: %w", path, err)
	}
	return path, nil
}

// Load reads a snapshot written by Save.
func Load(path string) (*snapshot.Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return snapshot.Decode(b)
}
