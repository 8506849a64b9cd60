package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/persistence/jsonfile"
	"github.com/AntonStoeckl/library-lending-simulation/persistence/postgres"
	"github.com/AntonStoeckl/library-lending-simulation/persistence/postgres/config"
)

// snapshotStore is what the commands need from jsonfile.Store and postgres.SnapshotStore.
type snapshotStore interface {
	circulation.Persister
	Load(ctx context.Context) (circulation.InventorySnapshot, error)
}

// openStore opens the configured snapshot store. The returned close function releases
// the database connection, it is never nil. A nil store means --store none.
func (a *app) openStore(ctx context.Context, logger *slog.Logger) (snapshotStore, func(), error) {
	noop := func() {}

	switch kind := a.v.GetString(keyStore); kind {
	case storeNone:
		return nil, noop, nil

	case storeFile:
		store, err := jsonfile.NewStore(a.v.GetString(keySnapshotFile))
		if err != nil {
			return nil, noop, err
		}

		return store, noop, nil

	case storePostgres:
		return a.openPostgresStore(ctx, logger)

	default:
		return nil, noop, fmt.Errorf("%w: %q", ErrUnknownStore, kind)
	}
}

func (a *app) openPostgresStore(ctx context.Context, logger *slog.Logger) (snapshotStore, func(), error) {
	noop := func() {}
	dsn := a.v.GetString(keyDSN)
	options := []postgres.Option{
		postgres.WithSnapshotName(a.v.GetString(keySnapshotName)),
		postgres.WithLogger(logger),
	}

	var (
		store   *postgres.SnapshotStore
		closeDB func()
	)

	switch driver := a.v.GetString(keyDriver); driver {
	case driverPGX:
		pool, err := config.NewPGXPool(ctx, dsn)
		if err != nil {
			return nil, noop, err
		}
		closeDB = pool.Close

		if store, err = postgres.NewSnapshotStoreFromPGXPool(pool, options...); err != nil {
			closeDB()
			return nil, noop, err
		}

	case driverSQL:
		db, err := config.NewSQLDB(ctx, dsn)
		if err != nil {
			return nil, noop, err
		}
		closeDB = func() { _ = db.Close() }

		if store, err = postgres.NewSnapshotStoreFromSQLDB(db, options...); err != nil {
			closeDB()
			return nil, noop, err
		}

	case driverSQLX:
		db, err := config.NewSQLX(ctx, dsn)
		if err != nil {
			return nil, noop, err
		}
		closeDB = func() { _ = db.Close() }

		if store, err = postgres.NewSnapshotStoreFromSQLX(db, options...); err != nil {
			closeDB()
			return nil, noop, err
		}

	default:
		return nil, noop, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	if err := store.CreateTable(ctx); err != nil {
		closeDB()
		return nil, noop, err
	}

	return store, closeDB, nil
}
