package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-lending-simulation/persistence/postgres"
	"github.com/AntonStoeckl/library-lending-simulation/persistence/postgres/config"
)

// Adapter type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"

	testTableName = "inventory_snapshots_test"
)

// Wrapper interface to abstract over different connection types
type Wrapper interface {
	GetSnapshotStore(options ...postgres.Option) *postgres.SnapshotStore
	Exec(ctx context.Context, query string) error
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	t    testing.TB
	pool *pgxpool.Pool
}

func (w *PGXPoolWrapper) GetSnapshotStore(options ...postgres.Option) *postgres.SnapshotStore {
	store, err := postgres.NewSnapshotStoreFromPGXPool(w.pool, withTestTable(options)...)
	require.NoError(w.t, err, "error creating the snapshot store in test setup")

	return store
}

func (w *PGXPoolWrapper) Exec(ctx context.Context, query string) error {
	_, err := w.pool.Exec(ctx, query)
	return err
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	t  testing.TB
	db *sql.DB
}

func (w *SQLDBWrapper) GetSnapshotStore(options ...postgres.Option) *postgres.SnapshotStore {
	store, err := postgres.NewSnapshotStoreFromSQLDB(w.db, withTestTable(options)...)
	require.NoError(w.t, err, "error creating the snapshot store in test setup")

	return store
}

func (w *SQLDBWrapper) Exec(ctx context.Context, query string) error {
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	t  testing.TB
	db *sqlx.DB
}

func (w *SQLXWrapper) GetSnapshotStore(options ...postgres.Option) *postgres.SnapshotStore {
	store, err := postgres.NewSnapshotStoreFromSQLX(w.db, withTestTable(options)...)
	require.NoError(w.t, err, "error creating the snapshot store in test setup")

	return store
}

func (w *SQLXWrapper) Exec(ctx context.Context, query string) error {
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// CreateWrapperWithTestConfig creates the wrapper selected by ADAPTER_TYPE.
// It skips the test when no test database is configured.
func CreateWrapperWithTestConfig(t testing.TB) Wrapper {
	dsn, ok := config.TestDSN()
	if !ok {
		t.Skipf("%s is not set, skipping PostgreSQL integration test", config.EnvTestDSN)
	}

	ctx := context.Background()
	adapterTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	switch adapterTypeFromEnv {
	case typePGXPool, "":
		pool, err := config.NewPGXPool(ctx, dsn)
		require.NoError(t, err, "error connecting to DB pool in test setup")

		return &PGXPoolWrapper{t: t, pool: pool}

	case typeSQLDB:
		db, err := config.NewSQLDB(ctx, dsn)
		require.NoError(t, err, "error connecting to DB in test setup")

		return &SQLDBWrapper{t: t, db: db}

	case typeSQLXDB:
		db, err := config.NewSQLX(ctx, dsn)
		require.NoError(t, err, "error connecting to DB in test setup")

		return &SQLXWrapper{t: t, db: db}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", adapterTypeFromEnv))
	}
}

// CleanUp creates the test table if needed and removes all rows.
func CleanUp(t testing.TB, wrapper Wrapper) {
	ctx := context.Background()

	require.NoError(t, wrapper.GetSnapshotStore().CreateTable(ctx), "error creating the snapshot table")
	require.NoError(t, wrapper.Exec(ctx, "TRUNCATE TABLE "+testTableName), "error cleaning up the snapshot table")
}

func withTestTable(options []postgres.Option) []postgres.Option {
	return append([]postgres.Option{postgres.WithTableName(testTableName)}, options...)
}
