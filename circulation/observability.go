package circulation

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Logger interface for operational messages, warnings, and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger interface for context-aware logging with automatic trace correlation.
// When both a Logger and a ContextualLogger are configured, the ContextualLogger is used.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// MetricsCollector interface for collecting lending performance and operational metrics.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// ContextualMetricsCollector extends MetricsCollector with context-aware methods for trace correlation.
// It is optional, the LendingService uses the context-aware methods when available.
type ContextualMetricsCollector interface {
	MetricsCollector
	RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string)
	IncrementCounterContext(ctx context.Context, metric string, labels map[string]string)
	RecordValueContext(ctx context.Context, metric string, value float64, labels map[string]string)
}

// SpanContext represents an active tracing span that can be finished and updated with attributes.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector interface for collecting tracing information from lending operations.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

const (
	operationBorrow     = "borrow"
	operationReturn     = "return"
	operationAddBook    = "add_book"
	operationRemoveBook = "remove_book"
	operationSeed       = "seed"
	operationPersist    = "persist"

	spanNameBorrow = "lending.borrow"
	spanNameReturn = "lending.return"

	spanAttrOperation  = "operation"
	spanAttrTitle      = "title"
	spanAttrPatronID   = "patron_id"
	spanAttrOutcome    = "outcome"
	spanAttrISBN       = "isbn"
	spanAttrErrorType  = "error_type"
	spanAttrDurationMS = "duration_ms"

	labelStatus = "status"

	statusSuccess = "success"
	statusError   = "error"

	errorTypeInvariantViolation = "invariant_violation"
	errorTypePersistFailed      = "persist_failed"

	metricBorrowDuration      = "lending_borrow_duration_seconds"
	metricReturnDuration      = "lending_return_duration_seconds"
	metricOperationsTotal     = "lending_operations_total"
	metricLoansOutstanding    = "lending_loans_outstanding"
	metricInvariantViolations = "lending_invariant_violations_total"
	metricPersistDuration     = "lending_persist_duration_seconds"
	metricPersistFailures     = "lending_persist_failures_total"

	logMsgBookBorrowed        = "book borrowed"
	logMsgBookReturned        = "book returned"
	logMsgBookUnavailable     = "no copy available"
	logMsgBookNotFound        = "title not catalogued"
	logMsgReturnNotBorrowed   = "return of a title the patron does not hold"
	logMsgInvariantViolation  = "inventory invariant violated"
	logMsgBookAdded           = "book added"
	logMsgBookRemoved         = "book removed"
	logMsgInventorySeeded     = "inventory seeded"
	logMsgSnapshotPersisted   = "inventory snapshot persisted"
	logMsgSnapshotPersistFail = "persisting inventory snapshot failed"

	logAttrTitle       = "title"
	logAttrPatronID    = "patron_id"
	logAttrISBN        = "isbn"
	logAttrAvailable   = "available_copies"
	logAttrTotal       = "total_copies"
	logAttrVoidedLoans = "voided_loans"
	logAttrBookCount   = "book_count"
	logAttrSequence    = "sequence_number"
	logAttrDurationMS  = "duration_ms"
	logAttrError       = "error"
)

// === Logging ===

func (s *LendingService) logDebug(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *LendingService) logInfo(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *LendingService) logWarn(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (s *LendingService) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
		return
	}

	if s.logger != nil {
		s.logger.Error(msg, allArgs...)
	}
}

// logOutcome logs a lending outcome at a level matching how unusual it is.
func (s *LendingService) logOutcome(ctx context.Context, operation string, outcome Outcome, title, patronID string, book Book) {
	switch outcome {
	case Success:
		msg := logMsgBookBorrowed
		if operation == operationReturn {
			msg = logMsgBookReturned
		}

		s.logInfo(ctx, msg,
			logAttrTitle, book.Title,
			logAttrPatronID, patronID,
			logAttrISBN, book.ISBN,
			logAttrAvailable, book.AvailableCopies,
			logAttrTotal, book.TotalCopies,
		)

	case Unavailable:
		s.logDebug(ctx, logMsgBookUnavailable, logAttrTitle, title, logAttrPatronID, patronID)

	case NotFound:
		s.logDebug(ctx, logMsgBookNotFound, logAttrTitle, title, logAttrPatronID, patronID)

	case NotBorrowed:
		s.logWarn(ctx, logMsgReturnNotBorrowed, logAttrTitle, title, logAttrPatronID, patronID)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// === Metrics ===

func (s *LendingService) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	s.metricsCollector.RecordDuration(metric, duration, labels)
}

func (s *LendingService) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metric, labels)
}

func (s *LendingService) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
		return
	}

	s.metricsCollector.RecordValue(metric, value, labels)
}

// recordOutcomeMetrics records the duration and the outcome counter of a borrow or return.
func (s *LendingService) recordOutcomeMetrics(
	ctx context.Context,
	operation string,
	outcome Outcome,
	duration time.Duration,
	loansOutstanding int,
) {
	durationMetric := metricBorrowDuration
	if operation == operationReturn {
		durationMetric = metricReturnDuration
	}

	s.recordDuration(ctx, durationMetric, duration, map[string]string{
		spanAttrOperation: operation,
		labelStatus:       statusSuccess,
	})

	s.incrementCounter(ctx, metricOperationsTotal, map[string]string{
		spanAttrOperation: operation,
		spanAttrOutcome:   outcome.String(),
	})

	if outcome == Success {
		s.recordValue(ctx, metricLoansOutstanding, float64(loansOutstanding), nil)
	}
}

// recordErrorMetrics records a failed borrow or return.
func (s *LendingService) recordErrorMetrics(ctx context.Context, operation string, errorType string, duration time.Duration) {
	durationMetric := metricBorrowDuration
	if operation == operationReturn {
		durationMetric = metricReturnDuration
	}

	s.recordDuration(ctx, durationMetric, duration, map[string]string{
		spanAttrOperation: operation,
		labelStatus:       statusError,
	})

	s.incrementCounter(ctx, metricInvariantViolations, map[string]string{
		spanAttrOperation: operation,
		spanAttrErrorType: errorType,
	})
}

// === Tracing ===

// lendingTracingObserver encapsulates the span lifecycle of a borrow or return.
type lendingTracingObserver struct {
	s    *LendingService
	span SpanContext
}

func (s *LendingService) startLendingTracing(
	ctx context.Context,
	spanName string,
	operation string,
	title string,
	patronID string,
) (*lendingTracingObserver, context.Context) {
	if s.tracingCollector == nil {
		return &lendingTracingObserver{s: s}, ctx
	}

	newCtx, span := s.tracingCollector.StartSpan(ctx, spanName, map[string]string{
		spanAttrOperation: operation,
		spanAttrTitle:     title,
		spanAttrPatronID:  patronID,
	})

	return &lendingTracingObserver{s: s, span: span}, newCtx
}

func (o *lendingTracingObserver) finishOutcome(outcome Outcome, book Book, duration time.Duration) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(statusSuccess)
	o.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf("%.2f", toMilliseconds(duration)))

	attrs := map[string]string{spanAttrOutcome: outcome.String()}
	if outcome == Success {
		attrs[spanAttrISBN] = book.ISBN
	}

	o.s.tracingCollector.FinishSpan(o.span, statusSuccess, attrs)
}

func (o *lendingTracingObserver) finishError(errorType string, duration time.Duration) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(statusError)
	o.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf("%.2f", toMilliseconds(duration)))

	o.s.tracingCollector.FinishSpan(o.span, statusError, map[string]string{spanAttrErrorType: errorType})
}
