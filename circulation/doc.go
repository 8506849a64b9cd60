// Package circulation provides the shared, concurrency-safe lending core of the library:
// the book inventory, the loan ledger, and the LendingService that owns both.
//
// All mutations go through LendingService. Borrow and ReturnBook are atomic with respect to each
// other: a single mutex guards the inventory and the ledger together, and the critical sections
// never block on I/O. Logging, metrics, tracing, and the persistence notification happen after
// the lock is released.
//
// Business outcomes are values, not errors:
//   - Borrow yields Success, Unavailable, or NotFound
//   - ReturnBook yields Success or NotBorrowed
//
// The returned error is reserved for invalid arguments and for ErrInvariantViolation, which
// signals a corrupted inventory and must be treated as fatal by the caller.
//
// Common usage pattern:
//
//	service, err := circulation.NewLendingService(
//		circulation.WithLogger(slog.Default()),
//		circulation.WithPersister(store),
//	)
//	if err != nil {
//		// handle error
//	}
//	defer service.Close(ctx)
//
//	result, err := service.Borrow(ctx, "Clean Code", patronID)
//	if err != nil {
//		// fatal
//	}
//
//	if result.Outcome == circulation.Success {
//		// the patron now holds one copy of result.Book
//	}
package circulation
