// Package config builds PostgreSQL connections for the snapshot store.
//
// The three constructors (pgxpool, database/sql with lib/pq, sqlx) share one DSN and the same
// pool limits, so the store behaves the same regardless of the driver picked on the command line.
package config
