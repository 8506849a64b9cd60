package simulation

import (
	"fmt"
	"time"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
)

// Option defines a functional option for configuring a Controller.
type Option func(*Controller) error

// WithTiming sets the reading, pause, and backoff timing of every patron.
func WithTiming(timing Timing) Option {
	return func(c *Controller) error {
		if err := timing.Validate(); err != nil {
			return err
		}

		c.timing = timing

		return nil
	}
}

// WithCompletionTimeout bounds how long Run waits for all patrons to finish.
func WithCompletionTimeout(timeout time.Duration) Option {
	return func(c *Controller) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: completion timeout must be positive", circulation.ErrInvalidArgument)
		}

		c.completionTimeout = timeout

		return nil
	}
}

// WithJoinTimeout bounds how long Run waits for stopped patrons to exit.
func WithJoinTimeout(timeout time.Duration) Option {
	return func(c *Controller) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: join timeout must be positive", circulation.ErrInvalidArgument)
		}

		c.joinTimeout = timeout

		return nil
	}
}

// WithProgressInterval sets how often progress is logged while patrons are running.
func WithProgressInterval(interval time.Duration) Option {
	return func(c *Controller) error {
		if interval <= 0 {
			return fmt.Errorf("%w: progress interval must be positive", circulation.ErrInvalidArgument)
		}

		c.progressInterval = interval

		return nil
	}
}

// WithSeed makes the patrons' random choices reproducible.
// Timing still depends on the scheduler, so runs are not fully deterministic.
func WithSeed(seed uint64) Option {
	return func(c *Controller) error {
		c.seed = seed
		c.seeded = true

		return nil
	}
}

// WithLogger sets the logger for the controller and all patrons.
func WithLogger(logger circulation.Logger) Option {
	return func(c *Controller) error {
		if logger == nil {
			return circulation.ErrNilLogger
		}

		c.observer.logger = logger

		return nil
	}
}

// WithContextualLogger sets a context-aware logger for the controller and all patrons.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(c *Controller) error {
		if logger == nil {
			return circulation.ErrNilLogger
		}

		c.observer.contextualLogger = logger

		return nil
	}
}
