package simulation

import (
	"context"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
)

// Log messages.
const (
	logMsgSimulationStarted  = "simulation started"
	logMsgSimulationProgress = "simulation progress"
	logMsgSimulationFinished = "simulation finished"
	logMsgCompletionTimeout  = "completion timeout reached, stopping patrons"
	logMsgRunCanceled        = "simulation canceled, stopping patrons"
	logMsgJoinTimeout        = "patrons did not exit within the join timeout"
	logMsgPatronFailed       = "patron operation failed"
	logMsgPatronFinished     = "patron finished"
	logMsgPatronBorrowed     = "patron borrowed a book"
	logMsgPatronReturned     = "patron returned a book"
	logMsgReturnRejected     = "return rejected, patron still holds the book"
	logMsgLoanAssumedVoided  = "giving up on return, loan was voided"
	logMsgNoTitles           = "no titles in the catalogue"
)

// Log attribute keys.
const (
	logAttrPatronID          = "patron_id"
	logAttrPatronName        = "patron_name"
	logAttrTitle             = "title"
	logAttrState             = "state"
	logAttrTurns             = "completed_turns"
	logAttrMaxTurns          = "max_turns"
	logAttrPatronCount       = "patron_count"
	logAttrFinishedCount     = "finished_patrons"
	logAttrTotalTurns        = "total_turns"
	logAttrLoansOutstanding  = "loans_outstanding"
	logAttrAttempt           = "attempt"
	logAttrDurationMS        = "duration_ms"
	logAttrError             = "error"
	logAttrCompletionTimeout = "completion_timeout_ms"
)

// observer bundles the optional loggers of a Controller or PatronAgent.
type observer struct {
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
}

func (o observer) debug(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func (o observer) info(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o observer) warn(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

func (o observer) error(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.ErrorContext(ctx, msg, args...)
		return
	}

	if o.logger != nil {
		o.logger.Error(msg, args...)
	}
}
