package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
)

// =================================================================
// CONTROLLER - launches patrons, monitors completion, builds the summary
// =================================================================

// Library is the part of the circulation.LendingService the Controller needs.
type Library interface {
	Lender
	LoansOutstanding() int
	Stats() circulation.Stats
	CheckInvariants() error
}

// Controller runs one simulation against a Library.
type Controller struct {
	library           Library
	timing            Timing
	completionTimeout time.Duration
	joinTimeout       time.Duration
	progressInterval  time.Duration
	seed              uint64
	seeded            bool
	observer          observer
}

// NewController creates a Controller with default timing.
func NewController(library Library, options ...Option) (*Controller, error) {
	if library == nil {
		return nil, fmt.Errorf("%w: library must not be nil", circulation.ErrInvalidArgument)
	}

	controller := &Controller{
		library:           library,
		timing:            DefaultTiming(),
		completionTimeout: DefaultCompletionTimeout,
		joinTimeout:       DefaultJoinTimeout,
		progressInterval:  DefaultProgressInterval,
	}

	for _, option := range options {
		if err := option(controller); err != nil {
			return nil, err
		}
	}

	return controller, nil
}

// Run creates patronCount patrons that each complete up to maxTurns borrow/return cycles.
// It blocks until all patrons finished, the completion timeout expired, or ctx was canceled.
// In every case all patrons are stopped and joined (bounded by the join timeout) before the
// Summary is built. The returned error is non-nil for invalid arguments and when a patron or
// the final invariant check reported an invariant violation.
func (c *Controller) Run(ctx context.Context, patronCount, maxTurns int) (Summary, error) {
	if patronCount <= 0 {
		return Summary{}, fmt.Errorf("%w: patronCount must be positive, got %d", circulation.ErrInvalidArgument, patronCount)
	}

	if maxTurns <= 0 {
		return Summary{}, fmt.Errorf("%w: maxTurns must be positive, got %d", circulation.ErrInvalidArgument, maxTurns)
	}

	start := time.Now()

	tracker := newCompletionTracker(patronCount)
	agents, err := c.createAgents(patronCount, maxTurns, tracker)
	if err != nil {
		return Summary{}, err
	}

	c.observer.info(ctx, logMsgSimulationStarted,
		logAttrPatronCount, patronCount,
		logAttrMaxTurns, maxTurns,
		logAttrCompletionTimeout, c.completionTimeout.Milliseconds(),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := sync.WaitGroup{}
	for _, agent := range agents {
		wg.Add(1)
		go func(agent *PatronAgent) {
			defer wg.Done()
			_ = agent.Run(runCtx) // reported through the completion tracker
		}(agent)
	}

	exited := make(chan struct{})
	go func() {
		wg.Wait()
		close(exited)
	}()

	outcome := c.monitor(ctx, agents, tracker)

	for _, agent := range agents {
		agent.Stop()
	}

	joined := c.join(ctx, exited)
	if !joined {
		cancel()
	}

	summary := c.buildSummary(agents, maxTurns, outcome, joined, time.Since(start))

	c.observer.info(ctx, logMsgSimulationFinished,
		logAttrFinishedCount, summary.FinishedPatrons,
		logAttrTotalTurns, summary.TotalTurns,
		logAttrLoansOutstanding, summary.LoansOutstanding,
		logAttrDurationMS, summary.Duration.Milliseconds(),
	)

	return summary, summary.Err()
}

type runOutcome int

const (
	outcomeCompleted runOutcome = iota
	outcomeTimedOut
	outcomeCanceled
	outcomeFailed
)

// monitor blocks until every patron signaled completion, the first patron failed,
// the completion timeout expired, or ctx is canceled. It logs progress periodically.
func (c *Controller) monitor(ctx context.Context, agents []*PatronAgent, tracker *completionTracker) runOutcome {
	timeout := time.NewTimer(c.completionTimeout)
	defer timeout.Stop()

	progress := time.NewTicker(c.progressInterval)
	defer progress.Stop()

	for {
		select {
		case <-tracker.allFinished:
			if ctx.Err() != nil {
				// patrons also watch ctx, so they may all finish before this select sees ctx.Done
				return outcomeCanceled
			}

			return outcomeCompleted

		case <-tracker.failed:
			return outcomeFailed

		case <-timeout.C:
			c.observer.warn(ctx, logMsgCompletionTimeout, logAttrCompletionTimeout, c.completionTimeout.Milliseconds())
			return outcomeTimedOut

		case <-ctx.Done():
			c.observer.warn(ctx, logMsgRunCanceled, logAttrError, ctx.Err().Error())
			return outcomeCanceled

		case <-progress.C:
			c.logProgress(ctx, agents, tracker)
		}
	}
}

func (c *Controller) join(ctx context.Context, exited <-chan struct{}) bool {
	timer := time.NewTimer(c.joinTimeout)
	defer timer.Stop()

	select {
	case <-exited:
		return true
	case <-timer.C:
		c.observer.error(ctx, logMsgJoinTimeout, logAttrDurationMS, c.joinTimeout.Milliseconds())
		return false
	}
}

func (c *Controller) logProgress(ctx context.Context, agents []*PatronAgent, tracker *completionTracker) {
	totalTurns := 0
	for _, agent := range agents {
		totalTurns += agent.CompletedTurns()
	}

	c.observer.info(ctx, logMsgSimulationProgress,
		logAttrFinishedCount, tracker.finishedCount(),
		logAttrPatronCount, len(agents),
		logAttrTotalTurns, totalTurns,
		logAttrLoansOutstanding, c.library.LoansOutstanding(),
	)
}

func (c *Controller) createAgents(patronCount, maxTurns int, tracker *completionTracker) ([]*PatronAgent, error) {
	agents := make([]*PatronAgent, 0, patronCount)

	for n := 1; n <= patronCount; n++ {
		options := []AgentOption{
			WithAgentTiming(c.timing),
			WithOnFinished(tracker.record),
		}

		if c.seeded {
			options = append(options, WithAgentSeed(c.seed+uint64(n)))
		}

		if c.observer.logger != nil {
			options = append(options, WithAgentLogger(c.observer.logger))
		}

		if c.observer.contextualLogger != nil {
			options = append(options, WithAgentContextualLogger(c.observer.contextualLogger))
		}

		agent, err := NewPatronAgent(NewPatron(n), c.library, maxTurns, options...)
		if err != nil {
			return nil, err
		}

		agents = append(agents, agent)
	}

	return agents, nil
}

func (c *Controller) buildSummary(
	agents []*PatronAgent,
	maxTurns int,
	outcome runOutcome,
	joined bool,
	duration time.Duration,
) Summary {
	summary := Summary{
		PatronCount:      len(agents),
		MaxTurns:         maxTurns,
		Patrons:          make([]PatronReport, 0, len(agents)),
		TimedOut:         outcome == outcomeTimedOut,
		Canceled:         outcome == outcomeCanceled,
		AllJoined:        joined,
		Duration:         duration,
		Inventory:        c.library.ListInventory(),
		LoansOutstanding: c.library.LoansOutstanding(),
		Stats:            c.library.Stats(),
	}

	var patronErrs []error
	for _, agent := range agents {
		report := agent.Report()
		summary.Patrons = append(summary.Patrons, report)
		summary.TotalTurns += report.CompletedTurns

		if report.CompletedTurns >= maxTurns {
			summary.FinishedPatrons++
		}

		if report.Err != nil {
			patronErrs = append(patronErrs, report.Err)
		}
	}

	summary.InvariantErr = errors.Join(append(patronErrs, c.library.CheckInvariants())...)

	return summary
}

// completionTracker counts finished patrons and signals when all of them or the first failing one finished.
type completionTracker struct {
	mu         sync.Mutex
	expected   int
	finished   int
	failedOnce sync.Once

	allFinished chan struct{}
	failed      chan struct{}
}

func newCompletionTracker(expected int) *completionTracker {
	return &completionTracker{
		expected:    expected,
		allFinished: make(chan struct{}),
		failed:      make(chan struct{}),
	}
}

func (t *completionTracker) record(report PatronReport) {
	if report.Err != nil {
		t.failedOnce.Do(func() { close(t.failed) })
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.finished++
	if t.finished == t.expected {
		close(t.allFinished)
	}
}

func (t *completionTracker) finishedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.finished
}
