package circulation

// Option defines a functional option for configuring the LendingService.
type Option func(*LendingService) error

// WithLogger sets the logger for the LendingService.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: contention outcomes (unavailable, not found)
// Info level: successful loans and returns, catalogue changes
// Warn level: returns of titles the patron does not hold
// Error level: invariant violations and persistence failures.
func WithLogger(logger Logger) Option {
	return func(s *LendingService) error {
		if logger == nil {
			return ErrNilLogger
		}

		s.logger = logger

		return nil
	}
}

// WithContextualLogger sets the contextual logger for the LendingService.
// It takes precedence over a Logger set with WithLogger.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *LendingService) error {
		if logger == nil {
			return ErrNilLogger
		}

		s.contextualLogger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector for the LendingService.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *LendingService) error {
		if collector == nil {
			return ErrNilMetricsCollector
		}

		s.metricsCollector = collector

		return nil
	}
}

// WithTracing sets the tracing collector for the LendingService.
// Borrow and ReturnBook each open one span.
func WithTracing(collector TracingCollector) Option {
	return func(s *LendingService) error {
		if collector == nil {
			return ErrNilTracingCollector
		}

		s.tracingCollector = collector

		return nil
	}
}

// WithPersister sets the collaborator that receives an InventorySnapshot after mutations.
// Persistence is best-effort and runs on a background worker, failures are logged and counted.
func WithPersister(persister Persister) Option {
	return func(s *LendingService) error {
		if persister == nil {
			return ErrNilPersister
		}

		s.persister = persister

		return nil
	}
}

// WithSequenceStart continues the snapshot sequence of a restored inventory, so that the first
// snapshot of this service supersedes the stored one.
func WithSequenceStart(sequence uint64) Option {
	return func(s *LendingService) error {
		s.sequence = sequence

		return nil
	}
}
