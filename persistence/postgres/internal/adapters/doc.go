// Package adapters provide database adapter implementations for the PostgreSQL snapshot store.
//
// The snapshot store works with pgxpool.Pool, sql.DB, and sqlx.DB. Each adapter hides the
// specifics of its library behind the DBAdapter interface, so the store builds one parameterized
// query and runs it the same way on every connection type.
package adapters
