// Package store keeps the intermediate JSON array of scraped records. The file
// is always one well-formed document: every append rewrites it whole.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gradcafe/packages/domain"
)

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Reset truncates the collection to an empty array.
func (s *Store) Reset() error {
	if err := s.write([]json.RawMessage{}); err != nil {
		slog.Error("Failed to reset intermediate store", "path", s.path, "error", err)
		return err
	}
	return nil
}

// Append merges records into the persisted collection. Failures are logged
// and reported, never raised. Existing elements are carried over byte for
// byte so fields this version does not know about survive.
func (s *Store) Append(records []*domain.ApplicantRecord) error {
	existing, err := s.readRaw()
	if err != nil {
		slog.Error("Failed to read intermediate store", "path", s.path, "error", err)
		return err
	}

	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			slog.Error("Failed to encode record", "result_id", rec.ID(), "error", err)
			continue
		}
		existing = append(existing, b)
	}

	if err := s.write(existing); err != nil {
		slog.Error("Failed to write intermediate store", "path", s.path, "error", err)
		return err
	}
	slog.Info("Saved records", "count", len(records), "total", len(existing))
	return nil
}

// Load returns the whole collection. A missing file is an empty collection.
func (s *Store) Load() ([]domain.ApplicantRecord, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []domain.ApplicantRecord
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return out, nil
}

func (s *Store) readRaw() ([]json.RawMessage, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out []json.RawMessage
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if out == nil {
		out = []json.RawMessage{}
	}
	return out, nil
}

// write replaces the file through a temp file in the same directory so a
// reader never sees a half-written document.
func (s *Store) write(items []json.RawMessage) error {
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".applicants-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
