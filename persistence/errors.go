// Package persistence holds the errors shared by the snapshot stores.
//
// Subpackages:
//   - jsonfile: snapshots in a local JSON file
//   - postgres: snapshots in a PostgreSQL table (pgx, database/sql, or sqlx)
//   - catalog: the pipe-delimited catalogue import format
package persistence

import (
	"errors"
)

var (
	// ErrSavingSnapshotFailed is returned when the snapshot save operation fails.
	ErrSavingSnapshotFailed = errors.New("saving snapshot failed")

	// ErrLoadingSnapshotFailed is returned when the snapshot load operation fails.
	ErrLoadingSnapshotFailed = errors.New("loading snapshot failed")

	// ErrSnapshotNotFound is returned by Load when nothing was persisted yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidSnapshotJSON is returned when stored snapshot data is malformed.
	ErrInvalidSnapshotJSON = errors.New("snapshot json is not valid")

	// ErrStaleSnapshot is returned when a snapshot is older than the one already stored.
	ErrStaleSnapshot = errors.New("snapshot is older than the stored one")
)
