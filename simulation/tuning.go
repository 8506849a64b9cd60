package simulation

import (
	"time"
)

// tuning.go - default timing of the simulation.
// The defaults mirror human-scale behavior: one to five seconds between actions.

const (
	// PATRON BEHAVIOR ...

	// DefaultMinReadingTime is the shortest time a patron keeps a borrowed book.
	DefaultMinReadingTime = 1000 * time.Millisecond

	// DefaultMaxReadingTime is the longest time a patron keeps a borrowed book.
	DefaultMaxReadingTime = 5000 * time.Millisecond

	// DefaultMinPause is the shortest break between returning a book and the next borrow attempt.
	DefaultMinPause = 1000 * time.Millisecond

	// DefaultMaxPause is the longest break between returning a book and the next borrow attempt.
	DefaultMaxPause = 5000 * time.Millisecond

	// CONTENTION BACKOFF ...

	// DefaultBackoffBaseDelay is the first retry delay after an Unavailable or NotBorrowed outcome.
	DefaultBackoffBaseDelay = 1000 * time.Millisecond

	// DefaultBackoffMaxDelay caps the exponential retry delay.
	DefaultBackoffMaxDelay = 5000 * time.Millisecond

	// DefaultBackoffJitterFactor adds up to 30% random jitter to each retry delay.
	DefaultBackoffJitterFactor = 0.3

	// MaxReturnAttempts is the number of consecutive NotBorrowed outcomes after which a patron
	// assumes the loan was voided (the book was removed) and goes back to Idle.
	MaxReturnAttempts = 5

	// CONTROLLER ...

	// DefaultCompletionTimeout bounds how long the monitor waits for all patrons to finish.
	DefaultCompletionTimeout = 5 * time.Minute

	// DefaultJoinTimeout bounds how long the monitor waits for stopped patrons to exit.
	DefaultJoinTimeout = 2 * time.Second

	// DefaultProgressInterval is how often the monitor logs progress.
	DefaultProgressInterval = 1 * time.Second
)
