package simulation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
)

// Backoff computes retry delays with exponential growth and random jitter.
//
// Schedule (defaults): 1 s, 2 s, 4 s, 5 s, 5 s, ... each plus up to 30% jitter.
type Backoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

// Delay returns the delay before the given retry attempt, starting at attempt 1.
func (b Backoff) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.BaseDelay
	for i := 1; i < attempt && delay < b.MaxDelay; i++ {
		if delay > b.MaxDelay/2 {
			delay = b.MaxDelay
			break
		}

		delay *= 2
	}

	if delay > b.MaxDelay {
		delay = b.MaxDelay
	}

	jitter := time.Duration(rng.Float64() * float64(delay) * b.JitterFactor)
	if jitter > math.MaxInt64-delay {
		return math.MaxInt64
	}

	return delay + jitter
}

// Validate checks the delays and the jitter factor.
func (b Backoff) Validate() error {
	if b.BaseDelay < 0 || b.MaxDelay < b.BaseDelay {
		return fmt.Errorf("%w: backoff delays must satisfy 0 <= base <= max", circulation.ErrInvalidArgument)
	}

	if b.JitterFactor < 0.0 || b.JitterFactor > 1.0 {
		return fmt.Errorf("%w: jitter factor must be between 0.0 and 1.0", circulation.ErrInvalidArgument)
	}

	return nil
}

// Timing configures how long patrons read, pause, and back off.
type Timing struct {
	MinReadingTime time.Duration
	MaxReadingTime time.Duration
	MinPause       time.Duration
	MaxPause       time.Duration
	Backoff        Backoff
}

// DefaultTiming returns human-scale timing.
func DefaultTiming() Timing {
	return Timing{
		MinReadingTime: DefaultMinReadingTime,
		MaxReadingTime: DefaultMaxReadingTime,
		MinPause:       DefaultMinPause,
		MaxPause:       DefaultMaxPause,
		Backoff: Backoff{
			BaseDelay:    DefaultBackoffBaseDelay,
			MaxDelay:     DefaultBackoffMaxDelay,
			JitterFactor: DefaultBackoffJitterFactor,
		},
	}
}

// Validate checks that every range is well-formed.
func (t Timing) Validate() error {
	if t.MinReadingTime < 0 || t.MaxReadingTime < t.MinReadingTime {
		return fmt.Errorf("%w: reading time must satisfy 0 <= min <= max", circulation.ErrInvalidArgument)
	}

	if t.MinPause < 0 || t.MaxPause < t.MinPause {
		return fmt.Errorf("%w: pause must satisfy 0 <= min <= max", circulation.ErrInvalidArgument)
	}

	return t.Backoff.Validate()
}

func (t Timing) readingTime(rng *rand.Rand) time.Duration {
	return uniform(rng, t.MinReadingTime, t.MaxReadingTime)
}

func (t Timing) pause(rng *rand.Rand) time.Duration {
	return uniform(rng, t.MinPause, t.MaxPause)
}

func uniform(rng *rand.Rand, minDuration, maxDuration time.Duration) time.Duration {
	if maxDuration <= minDuration {
		return minDuration
	}

	return minDuration + time.Duration(rng.Int64N(int64(maxDuration-minDuration)+1))
}
