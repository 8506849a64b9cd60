package circulation

import (
	"errors"
)

var (
	// ErrBookNotFound classifies a request for a title (or ISBN) that is not catalogued.
	ErrBookNotFound = errors.New("book not found")

	// ErrBookUnavailable classifies a borrow request for a title whose copies are all on loan.
	ErrBookUnavailable = errors.New("no copies of the book are available")

	// ErrPatronNotBorrowing classifies a return request for a title the patron does not hold.
	ErrPatronNotBorrowing = errors.New("patron has not borrowed this book")

	// ErrInvalidArgument is returned for malformed input like empty titles, negative copy counts,
	// or non-positive simulation parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateISBN is returned when a book with an already catalogued ISBN is added.
	ErrDuplicateISBN = errors.New("a book with this isbn is already catalogued")

	// ErrInvariantViolation is returned when an available copy count left its valid range.
	// It indicates a corrupted inventory and is not recoverable.
	ErrInvariantViolation = errors.New("inventory invariant violated")

	// ErrNilPersister is returned when a nil persister is provided to WithPersister.
	ErrNilPersister = errors.New("persister must not be nil")

	// ErrNilLogger is returned when a nil logger is provided to WithLogger or WithContextualLogger.
	ErrNilLogger = errors.New("logger must not be nil")

	// ErrNilMetricsCollector is returned when a nil collector is provided to WithMetrics.
	ErrNilMetricsCollector = errors.New("metrics collector must not be nil")

	// ErrNilTracingCollector is returned when a nil collector is provided to WithTracing.
	ErrNilTracingCollector = errors.New("tracing collector must not be nil")
)
