package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"log/slog"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/persistence"
	"github.com/AntonStoeckl/library-lending-simulation/persistence/catalog"
)

const keyBooks = "books"

//go:embed demo_books.txt
var demoBooks []byte

// catalogueSeed is the starting point of a run.
type catalogueSeed struct {
	records []circulation.SeedRecord
	// sequence of the stored snapshot, the service continues counting from there
	sequence uint64
}

// loadSeed picks the catalogue for a run: the --books file if given, else the stored snapshot,
// else the built-in demo catalogue.
func (a *app) loadSeed(ctx context.Context, store snapshotStore, logger *slog.Logger) (catalogueSeed, error) {
	var seed catalogueSeed
	var stored []circulation.SeedRecord

	if store != nil {
		snapshot, err := store.Load(ctx)
		switch {
		case errors.Is(err, persistence.ErrSnapshotNotFound):
			// first run against this store
		case err != nil:
			return seed, err
		default:
			seed.sequence = snapshot.SequenceNumber
			stored = snapshot.SeedRecords()
		}
	}

	if path := a.v.GetString(keyBooks); path != "" {
		logger.Info("loading catalogue", "path", path)
		records, err := catalog.Load(ctx, path)
		seed.records = records

		return seed, err
	}

	if len(stored) > 0 {
		logger.Info("restored catalogue from snapshot", "book_count", len(stored), "sequence", seed.sequence)
		seed.records = stored

		return seed, nil
	}

	logger.Info("using the demo catalogue")
	records, err := catalog.Parse(bytes.NewReader(demoBooks))
	seed.records = records

	return seed, err
}
