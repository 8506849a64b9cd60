package simulation_test

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/simulation"
	. "github.com/AntonStoeckl/library-lending-simulation/testutil/helper" //nolint:revive
)

// lenderStub answers Borrow with Success and ReturnBook with NotBorrowed for the first rejectReturns calls.
type lenderStub struct {
	mu            sync.Mutex
	rejectReturns int
	returnCalls   int
	borrowErr     error
}

func (l *lenderStub) Borrow(_ context.Context, _, _ string) (circulation.BorrowResult, error) {
	if l.borrowErr != nil {
		return circulation.BorrowResult{}, l.borrowErr
	}

	return circulation.BorrowResult{Outcome: circulation.Success}, nil
}

func (l *lenderStub) ReturnBook(_ context.Context, _, _ string) (circulation.ReturnResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.returnCalls++
	if l.rejectReturns < 0 || l.returnCalls <= l.rejectReturns {
		return circulation.ReturnResult{Outcome: circulation.NotBorrowed}, nil
	}

	return circulation.ReturnResult{Outcome: circulation.Success}, nil
}

func (l *lenderStub) AvailableTitles() []string {
	return []string{"Dune"}
}

func (l *lenderStub) ListInventory() []circulation.Book {
	return nil
}

func (l *lenderStub) LoansOutstanding() int {
	return 0
}

func (l *lenderStub) Stats() circulation.Stats {
	return circulation.Stats{}
}

func (l *lenderStub) CheckInvariants() error {
	return nil
}

func Test_NewPatron_DerivesNameAndContact(t *testing.T) {
	// act
	patron := simulation.NewPatron(7)

	// assert
	assert.Equal(t, "patron-7", patron.ID)
	assert.Equal(t, "Patron 7", patron.Name)
	assert.Equal(t, "contact7@email.com", patron.Contact)
}

func Test_NewPatronAgent_RejectsInvalidArguments(t *testing.T) {
	service := GivenLendingService(t, nil)

	testCases := []struct {
		name     string
		patron   simulation.Patron
		lender   simulation.Lender
		maxTurns int
	}{
		{name: "nil lender", patron: simulation.NewPatron(1), lender: nil, maxTurns: 1},
		{name: "zero turns", patron: simulation.NewPatron(1), lender: service, maxTurns: 0},
		{name: "negative turns", patron: simulation.NewPatron(1), lender: service, maxTurns: -3},
		{name: "empty patron id", patron: simulation.Patron{}, lender: service, maxTurns: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			agent, err := simulation.NewPatronAgent(tc.patron, tc.lender, tc.maxTurns)

			// assert
			assert.ErrorIs(t, err, circulation.ErrInvalidArgument)
			assert.Nil(t, agent)
		})
	}
}

func Test_PatronAgent_Run_CompletesAllTurns(t *testing.T) {
	// arrange
	service := GivenLendingService(t, []circulation.Book{GivenBook(t, "Dune", "Frank Herbert", 1)})
	var finishedCalls atomic.Int32
	var finishedReport simulation.PatronReport

	agent, err := simulation.NewPatronAgent(simulation.NewPatron(1), service, 3,
		simulation.WithAgentTiming(GivenFastTiming()),
		simulation.WithAgentSeed(42),
		simulation.WithOnFinished(func(report simulation.PatronReport) {
			finishedCalls.Add(1)
			finishedReport = report
		}),
	)
	require.NoError(t, err)

	// act
	err = agent.Run(context.Background())

	// assert
	require.NoError(t, err)
	assert.Equal(t, simulation.Finished, agent.State())
	assert.Equal(t, 3, agent.CompletedTurns())
	assert.Equal(t, int32(1), finishedCalls.Load())
	assert.Equal(t, 3, finishedReport.CompletedTurns)
	assert.Equal(t, simulation.Finished, finishedReport.State)
	assert.Equal(t, 0, service.LoansOutstanding())
	assert.Equal(t, 3, service.Stats().Borrowed)
	assert.Equal(t, 3, service.Stats().Returned)
}

// returnWatchingLogger calls onReturned when the agent logs a successful return.
type returnWatchingLogger struct {
	onReturned func()
}

func (l *returnWatchingLogger) Debug(msg string, _ ...any) {
	if msg == "patron returned a book" {
		l.onReturned()
	}
}

func (l *returnWatchingLogger) Info(_ string, _ ...any)  {}
func (l *returnWatchingLogger) Warn(_ string, _ ...any)  {}
func (l *returnWatchingLogger) Error(_ string, _ ...any) {}

func Test_PatronAgent_Run_LastReturnMovesStraightToFinished(t *testing.T) {
	// arrange
	service := GivenLendingService(t, []circulation.Book{GivenBook(t, "Dune", "Frank Herbert", 1)})
	var agent *simulation.PatronAgent
	var statesAfterReturn []simulation.PatronState
	logger := &returnWatchingLogger{onReturned: func() {
		statesAfterReturn = append(statesAfterReturn, agent.State())
	}}

	agent, err := simulation.NewPatronAgent(simulation.NewPatron(1), service, 2,
		simulation.WithAgentTiming(GivenFastTiming()),
		simulation.WithAgentSeed(42),
		simulation.WithAgentLogger(logger),
	)
	require.NoError(t, err)

	// act
	err = agent.Run(context.Background())

	// assert
	require.NoError(t, err)
	assert.Equal(t, []simulation.PatronState{simulation.Idle, simulation.Finished}, statesAfterReturn)
}

func Test_PatronAgent_Stop_WhileIdleOnEmptyCatalogue(t *testing.T) {
	// arrange
	service := GivenLendingService(t, nil)
	agent, err := simulation.NewPatronAgent(simulation.NewPatron(1), service, 1,
		simulation.WithAgentTiming(GivenFastTiming()),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- agent.Run(context.Background()) }()

	// act
	time.Sleep(10 * time.Millisecond)
	agent.Stop()
	agent.Stop()

	// assert
	select {
	case runErr := <-done:
		assert.NoError(t, runErr)
	case <-time.After(time.Second):
		t.Fatal("agent did not observe Stop")
	}

	assert.Equal(t, simulation.Finished, agent.State())
	assert.Equal(t, 0, agent.CompletedTurns())
}

func Test_PatronAgent_Stop_WhileHoldingBook_InterruptsReading(t *testing.T) {
	// arrange
	service := GivenLendingService(t, []circulation.Book{GivenBook(t, "Dune", "Frank Herbert", 1)})
	timing := GivenFastTiming()
	timing.MinReadingTime = time.Hour
	timing.MaxReadingTime = time.Hour

	agent, err := simulation.NewPatronAgent(simulation.NewPatron(1), service, 1,
		simulation.WithAgentTiming(timing),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- agent.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return agent.State() == simulation.HoldingBook
	}, time.Second, time.Millisecond)

	// act
	agent.Stop()

	// assert
	select {
	case runErr := <-done:
		assert.NoError(t, runErr)
	case <-time.After(time.Second):
		t.Fatal("agent did not observe Stop while reading")
	}

	report := agent.Report()
	assert.Equal(t, simulation.Finished, report.State)
	assert.Equal(t, "Dune", report.HeldTitle)
	assert.Equal(t, 1, service.LoansOutstanding(), "a stopped patron keeps the book it holds")
}

func Test_PatronAgent_Run_CanceledContextActsLikeStop(t *testing.T) {
	// arrange
	service := GivenLendingService(t, nil)
	agent, err := simulation.NewPatronAgent(simulation.NewPatron(1), service, 1,
		simulation.WithAgentTiming(GivenFastTiming()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// act
	err = agent.Run(ctx)

	// assert
	assert.NoError(t, err)
	assert.Equal(t, simulation.Finished, agent.State())
}

func Test_PatronAgent_Run_RetriesRejectedReturns(t *testing.T) {
	// setup
	logHandler := NewLogHandlerSpy(false)

	// arrange
	lender := &lenderStub{rejectReturns: 2}
	agent, err := simulation.NewPatronAgent(simulation.NewPatron(1), lender, 1,
		simulation.WithAgentTiming(GivenFastTiming()),
		simulation.WithAgentLogger(slog.New(logHandler)),
	)
	require.NoError(t, err)

	// act
	err = agent.Run(context.Background())

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, agent.CompletedTurns())
	assert.Equal(t, 2, logHandler.CountLogsWithMessage(slog.LevelWarn, "return rejected, patron still holds the book"))
	assert.True(t,
		logHandler.HasWarnLogWithMessage("return rejected, patron still holds the book").
			WithAttribute("patron_id", "patron-1").
			WithAttribute("title", "Dune").
			Assert(),
	)
}

func Test_PatronAgent_Run_GivesUpOnVoidedLoan(t *testing.T) {
	// setup
	logHandler := NewLogHandlerSpy(false)

	// arrange
	lender := &lenderStub{rejectReturns: -1}
	agent, err := simulation.NewPatronAgent(simulation.NewPatron(1), lender, 1,
		simulation.WithAgentTiming(GivenFastTiming()),
		simulation.WithAgentLogger(slog.New(logHandler)),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- agent.Run(context.Background()) }()

	// act
	assert.Eventually(t, func() bool {
		return logHandler.HasWarnLogWithMessage("giving up on return, loan was voided").Assert()
	}, 2*time.Second, 5*time.Millisecond)
	agent.Stop()

	// assert
	require.NoError(t, <-done)
	assert.Equal(t, 0, agent.CompletedTurns(), "a voided loan is not a completed turn")
}

func Test_PatronAgent_Run_StopsOnInvariantViolation(t *testing.T) {
	// arrange
	lender := &lenderStub{borrowErr: circulation.ErrInvariantViolation}
	agent, err := simulation.NewPatronAgent(simulation.NewPatron(1), lender, 5,
		simulation.WithAgentTiming(GivenFastTiming()),
	)
	require.NoError(t, err)

	// act
	err = agent.Run(context.Background())

	// assert
	assert.ErrorIs(t, err, circulation.ErrInvariantViolation)
	report := agent.Report()
	assert.Equal(t, simulation.Finished, report.State)
	assert.ErrorIs(t, report.Err, circulation.ErrInvariantViolation)
}

func Test_PatronState_String(t *testing.T) {
	assert.Equal(t, "idle", simulation.Idle.String())
	assert.Equal(t, "holding_book", simulation.HoldingBook.String())
	assert.Equal(t, "finished", simulation.Finished.String())
	assert.Equal(t, "unknown(9)", simulation.PatronState(9).String())
}

func Test_Backoff_Delay_GrowsExponentiallyUpToMax(t *testing.T) {
	// arrange
	backoff := simulation.Backoff{BaseDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
	rng := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // Weak random OK for tests

	// act / assert
	assert.Equal(t, 100*time.Millisecond, backoff.Delay(0, rng))
	assert.Equal(t, 100*time.Millisecond, backoff.Delay(1, rng))
	assert.Equal(t, 200*time.Millisecond, backoff.Delay(2, rng))
	assert.Equal(t, 400*time.Millisecond, backoff.Delay(3, rng))
	assert.Equal(t, 500*time.Millisecond, backoff.Delay(4, rng))
	assert.Equal(t, 500*time.Millisecond, backoff.Delay(40, rng))
}

func Test_Backoff_Delay_NeverWrapsAroundNearTheDurationLimit(t *testing.T) {
	// arrange
	backoff := simulation.Backoff{BaseDelay: time.Second, MaxDelay: math.MaxInt64, JitterFactor: 0.3}
	rng := rand.New(rand.NewPCG(5, 6)) //nolint:gosec // Weak random OK for tests

	previous := time.Duration(0)
	for attempt := 1; attempt <= 80; attempt++ {
		// act
		delay := backoff.Delay(attempt, rng)

		// assert
		require.Positive(t, delay, "attempt %d", attempt)
		if attempt > 1 {
			assert.GreaterOrEqual(t, delay, previous/2, "attempt %d", attempt)
		}
		previous = delay
	}
}

func Test_Backoff_Delay_AddsBoundedJitter(t *testing.T) {
	// arrange
	backoff := simulation.Backoff{BaseDelay: 100 * time.Millisecond, MaxDelay: 100 * time.Millisecond, JitterFactor: 0.3}
	rng := rand.New(rand.NewPCG(3, 4)) //nolint:gosec // Weak random OK for tests

	for i := 0; i < 100; i++ {
		// act
		delay := backoff.Delay(1, rng)

		// assert
		assert.GreaterOrEqual(t, delay, 100*time.Millisecond)
		assert.LessOrEqual(t, delay, 130*time.Millisecond)
	}
}

func Test_Timing_Validate(t *testing.T) {
	valid := GivenFastTiming()

	invalidReading := valid
	invalidReading.MinReadingTime = time.Second

	invalidPause := valid
	invalidPause.MinPause = -time.Millisecond

	invalidJitter := valid
	invalidJitter.Backoff.JitterFactor = 1.5

	invalidBackoff := valid
	invalidBackoff.Backoff.MaxDelay = 0

	assert.NoError(t, valid.Validate())
	assert.NoError(t, simulation.DefaultTiming().Validate())
	assert.ErrorIs(t, invalidReading.Validate(), circulation.ErrInvalidArgument)
	assert.ErrorIs(t, invalidPause.Validate(), circulation.ErrInvalidArgument)
	assert.ErrorIs(t, invalidJitter.Validate(), circulation.ErrInvalidArgument)
	assert.ErrorIs(t, invalidBackoff.Validate(), circulation.ErrInvalidArgument)
}
