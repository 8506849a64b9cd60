// Package postgreswrapper provides test utilities for running the snapshot store tests against
// every supported PostgreSQL connection type (pgx, sql.DB, sqlx.DB).
//
// The connection type is chosen with the ADAPTER_TYPE environment variable. The tests are skipped
// unless LIBRARYSIM_TEST_POSTGRES_DSN points to a database.
//
// Usage:
//
//	wrapper := CreateWrapperWithTestConfig(t)
//	defer wrapper.Close()
//
//	store := wrapper.GetSnapshotStore()
//	CleanUp(t, wrapper)
package postgreswrapper
