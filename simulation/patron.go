package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
)

// =================================================================
// PATRON AGENT - one library patron borrowing and returning books
// =================================================================

// Lender is the part of the circulation.LendingService a PatronAgent talks to.
type Lender interface {
	Borrow(ctx context.Context, title, patronID string) (circulation.BorrowResult, error)
	ReturnBook(ctx context.Context, title, patronID string) (circulation.ReturnResult, error)
	AvailableTitles() []string
	ListInventory() []circulation.Book
}

// PatronState is the lifecycle state of a PatronAgent.
type PatronState int

const (
	Idle        PatronState = iota // Wants to borrow the next book.
	HoldingBook                    // Reading a borrowed book.
	Finished                       // Completed all turns or was stopped.
)

// String returns the state name used in logs and summaries.
func (s PatronState) String() string {
	switch s {
	case Idle:
		return "idle"
	case HoldingBook:
		return "holding_book"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Patron identifies a simulated library patron.
type Patron struct {
	ID      string
	Name    string
	Contact string
}

// NewPatron creates the n-th simulated patron.
func NewPatron(n int) Patron {
	return Patron{
		ID:      fmt.Sprintf("patron-%d", n),
		Name:    fmt.Sprintf("Patron %d", n),
		Contact: fmt.Sprintf("contact%d@email.com", n),
	}
}

// PatronReport is a point-in-time view of a PatronAgent.
type PatronReport struct {
	Patron         Patron
	State          PatronState
	CompletedTurns int
	HeldTitle      string
	Err            error
}

// PatronAgent borrows and returns books until it completed maxTurns or is stopped.
// Each agent is owned by exactly one goroutine running Run. State, CompletedTurns, Report, and Stop
// are safe to call from other goroutines.
type PatronAgent struct {
	patron   Patron
	lender   Lender
	maxTurns int
	timing   Timing
	rng      *rand.Rand
	observer observer

	onFinished func(PatronReport)
	finishOnce sync.Once

	stop     chan struct{}
	stopOnce sync.Once

	mu             sync.Mutex
	state          PatronState
	completedTurns int
	heldTitle      string
	err            error
}

// AgentOption defines a functional option for configuring a PatronAgent.
type AgentOption func(*PatronAgent) error

// WithAgentTiming sets the reading, pause, and backoff timing.
func WithAgentTiming(timing Timing) AgentOption {
	return func(a *PatronAgent) error {
		if err := timing.Validate(); err != nil {
			return err
		}

		a.timing = timing

		return nil
	}
}

// WithAgentSeed makes the agent's random choices reproducible.
func WithAgentSeed(seed uint64) AgentOption {
	return func(a *PatronAgent) error {
		a.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // Weak random OK for simulation

		return nil
	}
}

// WithAgentLogger sets the logger for patron activity.
func WithAgentLogger(logger circulation.Logger) AgentOption {
	return func(a *PatronAgent) error {
		if logger == nil {
			return circulation.ErrNilLogger
		}

		a.observer.logger = logger

		return nil
	}
}

// WithAgentContextualLogger sets a context-aware logger for patron activity.
func WithAgentContextualLogger(logger circulation.ContextualLogger) AgentOption {
	return func(a *PatronAgent) error {
		if logger == nil {
			return circulation.ErrNilLogger
		}

		a.observer.contextualLogger = logger

		return nil
	}
}

// WithOnFinished registers a callback that is invoked exactly once when the agent reaches Finished.
func WithOnFinished(callback func(PatronReport)) AgentOption {
	return func(a *PatronAgent) error {
		a.onFinished = callback

		return nil
	}
}

// NewPatronAgent creates an Idle agent for the given patron.
func NewPatronAgent(patron Patron, lender Lender, maxTurns int, options ...AgentOption) (*PatronAgent, error) {
	if lender == nil {
		return nil, fmt.Errorf("%w: lender must not be nil", circulation.ErrInvalidArgument)
	}

	if maxTurns <= 0 {
		return nil, fmt.Errorf("%w: maxTurns must be positive, got %d", circulation.ErrInvalidArgument, maxTurns)
	}

	if patron.ID == "" {
		return nil, fmt.Errorf("%w: patron id must not be empty", circulation.ErrInvalidArgument)
	}

	agent := &PatronAgent{
		patron:   patron,
		lender:   lender,
		maxTurns: maxTurns,
		timing:   DefaultTiming(),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // Weak random OK for simulation
		stop:     make(chan struct{}),
		state:    Idle,
	}

	for _, option := range options {
		if err := option(agent); err != nil {
			return nil, err
		}
	}

	return agent, nil
}

// Patron returns the patron this agent acts for.
func (a *PatronAgent) Patron() Patron {
	return a.patron
}

// Stop asks the agent to finish. It is idempotent and does not wait.
func (a *PatronAgent) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// State returns the current lifecycle state.
func (a *PatronAgent) State() PatronState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

// CompletedTurns returns the number of completed borrow/return cycles.
func (a *PatronAgent) CompletedTurns() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.completedTurns
}

// Report returns a point-in-time view of the agent.
func (a *PatronAgent) Report() PatronReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	return PatronReport{
		Patron:         a.patron,
		State:          a.state,
		CompletedTurns: a.completedTurns,
		HeldTitle:      a.heldTitle,
		Err:            a.err,
	}
}

// Run executes the agent loop on the calling goroutine until the agent reaches Finished.
// A canceled ctx is treated like Stop. Business outcomes never end the loop early, an error returned
// by the Lender (an invariant violation) does.
func (a *PatronAgent) Run(ctx context.Context) error {
	err := a.loop(ctx)
	a.finish(err)

	return err
}

func (a *PatronAgent) loop(ctx context.Context) error {
	attempt := 0

	for !a.stopped(ctx) {
		a.mu.Lock()
		state, turns, held := a.state, a.completedTurns, a.heldTitle
		a.mu.Unlock()

		switch state {
		case Idle:
			if turns >= a.maxTurns {
				return nil
			}

			next, err := a.borrowNext(ctx, attempt)
			if err != nil {
				return err
			}
			attempt = next

		case HoldingBook:
			next, err := a.returnHeld(ctx, held, attempt)
			if err != nil {
				return err
			}
			attempt = next

		case Finished:
			return nil
		}
	}

	return nil
}

// borrowNext tries to borrow one title and sleeps for the reading time or the backoff delay.
// It returns the next contention attempt counter.
func (a *PatronAgent) borrowNext(ctx context.Context, attempt int) (int, error) {
	title, ok := a.chooseTitle()
	if !ok {
		a.observer.debug(ctx, logMsgNoTitles, logAttrPatronID, a.patron.ID)
		attempt++
		a.sleep(ctx, a.timing.Backoff.Delay(attempt, a.rng))

		return attempt, nil
	}

	result, err := a.lender.Borrow(ctx, title, a.patron.ID)
	if err != nil {
		return attempt, a.fail(ctx, err)
	}

	if result.Outcome != circulation.Success {
		attempt++
		a.sleep(ctx, a.timing.Backoff.Delay(attempt, a.rng))

		return attempt, nil
	}

	a.mu.Lock()
	a.state = HoldingBook
	a.heldTitle = title
	a.mu.Unlock()

	a.observer.debug(ctx, logMsgPatronBorrowed,
		logAttrPatronID, a.patron.ID,
		logAttrTitle, title,
	)

	a.sleep(ctx, a.timing.readingTime(a.rng))

	return 0, nil
}

// returnHeld tries to return the held title. A rejected return keeps the agent in HoldingBook
// until MaxReturnAttempts is exceeded, after which the loan is treated as voided.
func (a *PatronAgent) returnHeld(ctx context.Context, title string, attempt int) (int, error) {
	result, err := a.lender.ReturnBook(ctx, title, a.patron.ID)
	if err != nil {
		return attempt, a.fail(ctx, err)
	}

	if result.Outcome == circulation.Success {
		a.mu.Lock()
		a.heldTitle = ""
		a.completedTurns++
		turns := a.completedTurns
		if turns >= a.maxTurns {
			a.state = Finished
		} else {
			a.state = Idle
		}
		a.mu.Unlock()

		a.observer.debug(ctx, logMsgPatronReturned,
			logAttrPatronID, a.patron.ID,
			logAttrTitle, title,
			logAttrTurns, turns,
		)

		if turns < a.maxTurns {
			a.sleep(ctx, a.timing.pause(a.rng))
		}

		return 0, nil
	}

	attempt++
	if attempt > MaxReturnAttempts {
		a.mu.Lock()
		a.state = Idle
		a.heldTitle = ""
		a.mu.Unlock()

		a.observer.warn(ctx, logMsgLoanAssumedVoided,
			logAttrPatronID, a.patron.ID,
			logAttrTitle, title,
			logAttrAttempt, attempt,
		)

		return 0, nil
	}

	a.observer.warn(ctx, logMsgReturnRejected,
		logAttrPatronID, a.patron.ID,
		logAttrTitle, title,
		logAttrAttempt, attempt,
	)

	a.sleep(ctx, a.timing.Backoff.Delay(attempt, a.rng))

	return attempt, nil
}

// chooseTitle picks a random title with an available copy, falling back to any catalogued title.
func (a *PatronAgent) chooseTitle() (string, bool) {
	if titles := a.lender.AvailableTitles(); len(titles) > 0 {
		return titles[a.rng.IntN(len(titles))], true
	}

	books := a.lender.ListInventory()
	if len(books) == 0 {
		return "", false
	}

	return books[a.rng.IntN(len(books))].Title, true
}

func (a *PatronAgent) fail(ctx context.Context, err error) error {
	a.observer.error(ctx, logMsgPatronFailed,
		logAttrPatronID, a.patron.ID,
		logAttrError, err.Error(),
	)

	if errors.Is(err, circulation.ErrInvariantViolation) {
		return err
	}

	return fmt.Errorf("patron %s: %w", a.patron.ID, err)
}

func (a *PatronAgent) finish(err error) {
	a.finishOnce.Do(func() { a.reportFinished(err) })
}

func (a *PatronAgent) reportFinished(err error) {
	a.mu.Lock()
	a.state = Finished
	a.err = err
	a.mu.Unlock()

	report := a.Report()

	a.observer.debug(context.Background(), logMsgPatronFinished,
		logAttrPatronID, a.patron.ID,
		logAttrPatronName, a.patron.Name,
		logAttrTurns, report.CompletedTurns,
	)

	if a.onFinished != nil {
		a.onFinished(report)
	}
}

func (a *PatronAgent) stopped(ctx context.Context) bool {
	select {
	case <-a.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits for d or until the agent is stopped or ctx is canceled.
func (a *PatronAgent) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-a.stop:
	case <-ctx.Done():
	}
}
