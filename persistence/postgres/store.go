package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/persistence"
	"github.com/AntonStoeckl/library-lending-simulation/persistence/postgres/internal/adapters"
)

const (
	defaultTableName    = "inventory_snapshots"
	defaultSnapshotName = "library"
	dialectPostgres     = "postgres"
	castJsonb           = "?::jsonb"

	colSnapshotName   = "snapshot_name"
	colSnapshotID     = "snapshot_id"
	colSequenceNumber = "sequence_number"
	colData           = "data"
	colCreatedAt      = "created_at"

	logMsgBuildQueryFailed   = "failed to build snapshot query"
	logMsgDBExecFailed       = "database execution failed during snapshot save"
	logMsgDBQueryFailed      = "database query failed during snapshot load"
	logMsgCloseRowsFailed    = "failed to close database rows"
	logMsgSnapshotSaved      = "snapshot saved"
	logMsgSnapshotStale      = "snapshot not saved, a newer one is stored"
	logMsgSnapshotLoaded     = "snapshot loaded"
	logMsgTableCreated       = "snapshot table ensured"
	logMsgSQLExecuted        = "executed sql for: "
	logAttrError             = "error"
	logAttrQuery             = "query"
	logAttrTable             = "table"
	logAttrSnapshotName      = "snapshot_name"
	logAttrSequenceNumber    = "sequence_number"
	logAttrBookCount         = "book_count"
	logAttrDurationMS        = "duration_ms"
	logActionSave            = "save"
	logActionLoad            = "load"
	logActionCreateTable     = "create_table"
	createTableStatementTmpl = `CREATE TABLE IF NOT EXISTS %s (
	snapshot_name   text PRIMARY KEY,
	snapshot_id     uuid NOT NULL,
	sequence_number bigint NOT NULL,
	data            jsonb NOT NULL,
	created_at      timestamptz NOT NULL DEFAULT now()
)`
)

var validTableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

var (
	// ErrNilDatabaseConnection is returned when a nil database connection is provided.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrInvalidTableName is returned for a table name that is not a plain lower-case identifier.
	ErrInvalidTableName = errors.New("table name must be a lower-case identifier")

	// ErrEmptySnapshotName is returned when an empty snapshot name is provided.
	ErrEmptySnapshotName = errors.New("snapshot name must not be empty")
)

// SnapshotStore keeps the latest inventory snapshot of one library in a PostgreSQL table.
// A row is only overwritten by a snapshot with a higher sequence number.
type SnapshotStore struct {
	db           adapters.DBAdapter
	tableName    string
	snapshotName string
	logger       circulation.Logger
}

// Option defines a functional option for configuring SnapshotStore.
type Option func(*SnapshotStore) error

// WithTableName sets the table name for the SnapshotStore.
func WithTableName(tableName string) Option {
	return func(s *SnapshotStore) error {
		if !validTableName.MatchString(tableName) {
			return ErrInvalidTableName
		}

		s.tableName = tableName

		return nil
	}
}

// WithSnapshotName sets the row key, so several libraries can share one table.
func WithSnapshotName(name string) Option {
	return func(s *SnapshotStore) error {
		if name == "" {
			return ErrEmptySnapshotName
		}

		s.snapshotName = name

		return nil
	}
}

// WithLogger sets the logger for the SnapshotStore.
//
// Debug level: SQL statements with execution timing
// Info level: saved and loaded snapshots
// Warn level: stale snapshots, cleanup failures
// Error level: failures that make the operation fail.
func WithLogger(logger circulation.Logger) Option {
	return func(s *SnapshotStore) error {
		if logger == nil {
			return circulation.ErrNilLogger
		}

		s.logger = logger

		return nil
	}
}

// NewSnapshotStoreFromPGXPool creates a SnapshotStore using a pgx Pool.
func NewSnapshotStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*SnapshotStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewPGXAdapter(db), options...)
}

// NewSnapshotStoreFromSQLDB creates a SnapshotStore using a sql.DB.
func NewSnapshotStoreFromSQLDB(db *sql.DB, options ...Option) (*SnapshotStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewSQLAdapter(db), options...)
}

// NewSnapshotStoreFromSQLX creates a SnapshotStore using a sqlx.DB.
func NewSnapshotStoreFromSQLX(db *sqlx.DB, options ...Option) (*SnapshotStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewSQLXAdapter(db), options...)
}

func newSnapshotStore(db adapters.DBAdapter, options ...Option) (*SnapshotStore, error) {
	store := &SnapshotStore{
		db:           db,
		tableName:    defaultTableName,
		snapshotName: defaultSnapshotName,
	}

	for _, option := range options {
		if err := option(store); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// CreateTable creates the snapshot table if it does not exist.
func (s *SnapshotStore) CreateTable(ctx context.Context) error {
	statement := fmt.Sprintf(createTableStatementTmpl, s.tableName)

	start := time.Now()
	_, err := s.db.Exec(ctx, statement)
	s.logQueryWithDuration(statement, logActionCreateTable, time.Since(start))

	if err != nil {
		s.logError(logMsgDBExecFailed, err, logAttrQuery, statement)
		return err
	}

	s.logInfo(logMsgTableCreated, logAttrTable, s.tableName)

	return nil
}

// Persist upserts the snapshot. It implements circulation.Persister.
// A snapshot that is not newer than the stored one is rejected with persistence.ErrStaleSnapshot.
func (s *SnapshotStore) Persist(ctx context.Context, snapshot circulation.InventorySnapshot) error {
	data, err := jsoniter.ConfigFastest.Marshal(snapshot)
	if err != nil {
		return errors.Join(persistence.ErrSavingSnapshotFailed, err)
	}

	sqlQuery, args, err := s.buildUpsertQuery(snapshot, data)
	if err != nil {
		s.logError(logMsgBuildQueryFailed, err)
		return errors.Join(persistence.ErrSavingSnapshotFailed, err)
	}

	start := time.Now()
	result, err := s.db.Exec(ctx, sqlQuery, args...)
	duration := time.Since(start)
	s.logQueryWithDuration(sqlQuery, logActionSave, duration)

	if err != nil {
		s.logError(logMsgDBExecFailed, err, logAttrQuery, sqlQuery)
		return errors.Join(persistence.ErrSavingSnapshotFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Join(persistence.ErrSavingSnapshotFailed, err)
	}

	if rowsAffected == 0 {
		s.logWarn(logMsgSnapshotStale,
			logAttrSnapshotName, s.snapshotName,
			logAttrSequenceNumber, snapshot.SequenceNumber,
		)

		return persistence.ErrStaleSnapshot
	}

	s.logInfo(logMsgSnapshotSaved,
		logAttrSnapshotName, s.snapshotName,
		logAttrSequenceNumber, snapshot.SequenceNumber,
		logAttrBookCount, len(snapshot.Books),
		logAttrDurationMS, toMilliseconds(duration),
	)

	return nil
}

// Load reads the stored snapshot.
// It returns persistence.ErrSnapshotNotFound when no snapshot was persisted yet.
func (s *SnapshotStore) Load(ctx context.Context) (circulation.InventorySnapshot, error) {
	var empty circulation.InventorySnapshot

	sqlQuery, args, err := s.buildSelectQuery()
	if err != nil {
		s.logError(logMsgBuildQueryFailed, err)
		return empty, errors.Join(persistence.ErrLoadingSnapshotFailed, err)
	}

	start := time.Now()
	rows, err := s.db.Query(ctx, sqlQuery, args...)
	duration := time.Since(start)
	s.logQueryWithDuration(sqlQuery, logActionLoad, duration)

	if err != nil {
		s.logError(logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		return empty, errors.Join(persistence.ErrLoadingSnapshotFailed, err)
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return empty, errors.Join(persistence.ErrLoadingSnapshotFailed, err)
		}

		return empty, persistence.ErrSnapshotNotFound
	}

	var data []byte
	if err = rows.Scan(&data); err != nil {
		return empty, errors.Join(persistence.ErrLoadingSnapshotFailed, err)
	}

	if !jsoniter.ConfigFastest.Valid(data) {
		return empty, errors.Join(persistence.ErrLoadingSnapshotFailed, persistence.ErrInvalidSnapshotJSON)
	}

	var snapshot circulation.InventorySnapshot
	if err = jsoniter.ConfigFastest.Unmarshal(data, &snapshot); err != nil {
		return empty, errors.Join(persistence.ErrLoadingSnapshotFailed, err)
	}

	s.logInfo(logMsgSnapshotLoaded,
		logAttrSnapshotName, s.snapshotName,
		logAttrSequenceNumber, snapshot.SequenceNumber,
		logAttrDurationMS, toMilliseconds(duration),
	)

	return snapshot, nil
}

// LoadSeed returns the stored catalogue as seed records with all copies available.
// An empty table yields an empty seed.
func (s *SnapshotStore) LoadSeed(ctx context.Context) ([]circulation.SeedRecord, error) {
	snapshot, err := s.Load(ctx)
	if errors.Is(err, persistence.ErrSnapshotNotFound) {
		return []circulation.SeedRecord{}, nil
	}

	if err != nil {
		return nil, err
	}

	return snapshot.SeedRecords(), nil
}

func (s *SnapshotStore) buildUpsertQuery(snapshot circulation.InventorySnapshot, data []byte) (string, []any, error) {
	excluded := func(col string) any { return goqu.L("EXCLUDED." + col) }

	//nolint:gosec // sequence numbers stay far below math.MaxInt64
	sequence := int64(snapshot.SequenceNumber)

	takenAt := snapshot.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}

	return goqu.Dialect(dialectPostgres).
		Insert(s.tableName).
		Rows(goqu.Record{
			colSnapshotName:   s.snapshotName,
			colSnapshotID:     snapshot.ID.String(),
			colSequenceNumber: sequence,
			colData:           goqu.L(castJsonb, string(data)),
			colCreatedAt:      takenAt,
		}).
		OnConflict(goqu.DoUpdate(colSnapshotName, goqu.Record{
			colSnapshotID:     excluded(colSnapshotID),
			colSequenceNumber: excluded(colSequenceNumber),
			colData:           excluded(colData),
			colCreatedAt:      excluded(colCreatedAt),
		}).Where(goqu.T(s.tableName).Col(colSequenceNumber).Lt(goqu.L("EXCLUDED."+colSequenceNumber)))).
		Prepared(true).
		ToSQL()
}

func (s *SnapshotStore) buildSelectQuery() (string, []any, error) {
	return goqu.Dialect(dialectPostgres).
		From(s.tableName).
		Select(colData).
		Where(goqu.C(colSnapshotName).Eq(s.snapshotName)).
		Limit(1).
		Prepared(true).
		ToSQL()
}

func (s *SnapshotStore) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

func (s *SnapshotStore) logQueryWithDuration(sqlQuery, action string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (s *SnapshotStore) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *SnapshotStore) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *SnapshotStore) logError(msg string, err error, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, append([]any{logAttrError, err.Error()}, args...)...)
	}
}

func toMilliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
