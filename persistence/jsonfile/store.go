// Package jsonfile persists inventory snapshots to a single JSON file.
//
// Every Persist replaces the file atomically (write to a temporary file in the same directory,
// then rename), so a crash never leaves a truncated snapshot behind. Snapshots with a lower
// sequence number than the stored one are rejected with persistence.ErrStaleSnapshot.
package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/persistence"
)

const filePermissions = 0o644

// Store reads and writes one snapshot file.
type Store struct {
	path string

	mu           sync.Mutex
	lastSequence uint64
	hasSequence  bool
	// the file's own sequence number is read once, before the first write
	fileChecked bool
}

// NewStore creates a Store for the given file path. The file does not need to exist yet.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: snapshot file path must not be empty", circulation.ErrInvalidArgument)
	}

	return &Store{path: path}, nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Persist writes the snapshot, replacing the previous file content.
// It implements circulation.Persister.
func (s *Store) Persist(ctx context.Context, snapshot circulation.InventorySnapshot) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(persistence.ErrSavingSnapshotFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStoredSequence(ctx); err != nil {
		return errors.Join(persistence.ErrSavingSnapshotFailed, err)
	}

	if s.hasSequence && snapshot.SequenceNumber < s.lastSequence {
		return persistence.ErrStaleSnapshot
	}

	data, err := jsoniter.ConfigFastest.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Join(persistence.ErrSavingSnapshotFailed, err)
	}

	if err = s.writeAtomically(data); err != nil {
		return errors.Join(persistence.ErrSavingSnapshotFailed, err)
	}

	s.lastSequence = snapshot.SequenceNumber
	s.hasSequence = true

	return nil
}

// checkStoredSequence picks up the sequence number of a file written by an earlier Store,
// for example by a previous run. It must be called with s.mu held.
func (s *Store) checkStoredSequence(ctx context.Context) error {
	if s.fileChecked {
		return nil
	}

	stored, err := s.Load(ctx)
	switch {
	case errors.Is(err, persistence.ErrSnapshotNotFound):
	case err != nil:
		return err
	default:
		s.lastSequence = stored.SequenceNumber
		s.hasSequence = true
	}

	s.fileChecked = true

	return nil
}

// Load reads the stored snapshot.
// It returns persistence.ErrSnapshotNotFound when the file does not exist.
func (s *Store) Load(ctx context.Context) (circulation.InventorySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return circulation.InventorySnapshot{}, errors.Join(persistence.ErrLoadingSnapshotFailed, err)
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return circulation.InventorySnapshot{}, persistence.ErrSnapshotNotFound
	}

	if err != nil {
		return circulation.InventorySnapshot{}, errors.Join(persistence.ErrLoadingSnapshotFailed, err)
	}

	if !jsoniter.ConfigFastest.Valid(data) {
		return circulation.InventorySnapshot{}, errors.Join(persistence.ErrLoadingSnapshotFailed, persistence.ErrInvalidSnapshotJSON)
	}

	var snapshot circulation.InventorySnapshot
	if err = jsoniter.ConfigFastest.Unmarshal(data, &snapshot); err != nil {
		return circulation.InventorySnapshot{}, errors.Join(persistence.ErrLoadingSnapshotFailed, err)
	}

	return snapshot, nil
}

// LoadSeed returns the stored catalogue as seed records with all copies available.
// A missing file yields an empty seed.
func (s *Store) LoadSeed(ctx context.Context) ([]circulation.SeedRecord, error) {
	snapshot, err := s.Load(ctx)
	if errors.Is(err, persistence.ErrSnapshotNotFound) {
		return []circulation.SeedRecord{}, nil
	}

	if err != nil {
		return nil, err
	}

	return snapshot.SeedRecords(), nil
}

func (s *Store) writeAtomically(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()

		return err
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()

		return err
	}

	if err = tmp.Close(); err != nil {
		cleanup()

		return err
	}

	if err = os.Chmod(tmpName, filePermissions); err != nil {
		cleanup()

		return err
	}

	if err = os.Rename(tmpName, s.path); err != nil {
		cleanup()

		return err
	}

	return nil
}
