package circulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LendingService owns the InventoryStore and the LoanLedger and exposes atomic lending operations.
// It is safe for concurrent use. One mutex protects both structures, so there is no lock ordering
// to get wrong, and no method blocks while holding it.
type LendingService struct {
	mu        sync.Mutex
	inventory *InventoryStore
	ledger    *LoanLedger
	sequence  uint64
	stats     Stats

	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
	persister        Persister
	persistence      *persistenceWorker
}

// NewLendingService creates a LendingService with an empty inventory.
// If a Persister is configured, a background worker is started; call Close to flush and stop it.
func NewLendingService(options ...Option) (*LendingService, error) {
	s := &LendingService{
		inventory: NewInventoryStore(),
		ledger:    NewLoanLedger(),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	if s.persister != nil {
		s.persistence = newPersistenceWorker(s)
		s.persistence.start()
	}

	return s, nil
}

// Close flushes a pending snapshot and stops the persistence worker, bounded by ctx.
// It is safe to call Close more than once.
func (s *LendingService) Close(ctx context.Context) error {
	if s.persistence == nil {
		return nil
	}

	return s.persistence.close(ctx)
}

// Borrow lends one copy of the first catalogued book with the given title (ignoring case) that has
// a copy available, in insertion order. Decrementing the count and recording the loan happen
// atomically.
//
// The outcome is Success, Unavailable, or NotFound. A non-nil error means either an invalid argument
// or ErrInvariantViolation.
func (s *LendingService) Borrow(ctx context.Context, title, patronID string) (BorrowResult, error) {
	if err := validateLendingRequest(title, patronID); err != nil {
		return BorrowResult{}, err
	}

	tracing, ctx := s.startLendingTracing(ctx, spanNameBorrow, operationBorrow, title, patronID)
	start := time.Now()

	result, loansOutstanding, err := s.borrowCopy(title, patronID)
	duration := time.Since(start)

	if err != nil {
		s.logError(ctx, logMsgInvariantViolation, err, logAttrTitle, title, logAttrPatronID, patronID)
		s.recordErrorMetrics(ctx, operationBorrow, errorTypeInvariantViolation, duration)
		tracing.finishError(errorTypeInvariantViolation, duration)

		return BorrowResult{}, err
	}

	s.logOutcome(ctx, operationBorrow, result.Outcome, title, patronID, result.Book)
	s.recordOutcomeMetrics(ctx, operationBorrow, result.Outcome, duration, loansOutstanding)
	tracing.finishOutcome(result.Outcome, result.Book, duration)

	if result.Outcome == Success {
		s.notifyPersistence()
	}

	return result, nil
}

func (s *LendingService) borrowCopy(title, patronID string) (BorrowResult, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.inventory.isbnsByTitle(title)
	if len(candidates) == 0 {
		s.stats.NotFound++
		return BorrowResult{Outcome: NotFound}, 0, nil
	}

	for _, isbn := range candidates {
		book := s.inventory.book(isbn)

		if err := checkCopyRange(*book); err != nil {
			return BorrowResult{}, 0, err
		}

		if book.AvailableCopies == 0 {
			continue
		}

		book.AvailableCopies--
		s.ledger.RecordLoan(patronID, isbn)
		s.sequence++
		s.stats.Borrowed++

		return BorrowResult{Outcome: Success, Book: *book}, s.ledger.Outstanding(), nil
	}

	s.stats.Unavailable++

	return BorrowResult{Outcome: Unavailable}, 0, nil
}

// ReturnBook releases the patron's earliest loan whose book has the given title (ignoring case)
// and makes that exact copy available again.
//
// The outcome is Success or NotBorrowed. A non-nil error means either an invalid argument
// or ErrInvariantViolation.
func (s *LendingService) ReturnBook(ctx context.Context, title, patronID string) (ReturnResult, error) {
	if err := validateLendingRequest(title, patronID); err != nil {
		return ReturnResult{}, err
	}

	tracing, ctx := s.startLendingTracing(ctx, spanNameReturn, operationReturn, title, patronID)
	start := time.Now()

	result, loansOutstanding, err := s.returnCopy(title, patronID)
	duration := time.Since(start)

	if err != nil {
		s.logError(ctx, logMsgInvariantViolation, err, logAttrTitle, title, logAttrPatronID, patronID)
		s.recordErrorMetrics(ctx, operationReturn, errorTypeInvariantViolation, duration)
		tracing.finishError(errorTypeInvariantViolation, duration)

		return ReturnResult{}, err
	}

	s.logOutcome(ctx, operationReturn, result.Outcome, title, patronID, result.Book)
	s.recordOutcomeMetrics(ctx, operationReturn, result.Outcome, duration, loansOutstanding)
	tracing.finishOutcome(result.Outcome, result.Book, duration)

	if result.Outcome == Success {
		s.notifyPersistence()
	}

	return result, nil
}

func (s *LendingService) returnCopy(title, patronID string) (ReturnResult, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := normalizeKey(title)

	isbn, found := s.ledger.FirstLoanMatching(patronID, func(isbn string) bool {
		book := s.inventory.book(isbn)
		return book != nil && normalizeKey(book.Title) == wanted
	})

	if !found {
		s.stats.NotBorrowed++
		return ReturnResult{Outcome: NotBorrowed}, 0, nil
	}

	book := s.inventory.book(isbn)

	if err := checkCopyRange(*book); err != nil {
		return ReturnResult{}, 0, err
	}

	if book.AvailableCopies == book.TotalCopies {
		return ReturnResult{}, 0, fmt.Errorf(
			"%w: return of isbn %s would exceed %d total copies",
			ErrInvariantViolation,
			book.ISBN,
			book.TotalCopies,
		)
	}

	s.ledger.ReleaseLoan(patronID, isbn)
	book.AvailableCopies++
	s.sequence++
	s.stats.Returned++

	return ReturnResult{Outcome: Success, Book: *book}, s.ledger.Outstanding(), nil
}

// TryBorrow is a boolean facade over Borrow for callers that only care whether a copy changed hands.
func (s *LendingService) TryBorrow(title, patronID string) bool {
	result, err := s.Borrow(context.Background(), title, patronID)

	return err == nil && result.Outcome == Success
}

// TryReturn is a boolean facade over ReturnBook.
func (s *LendingService) TryReturn(title, patronID string) bool {
	result, err := s.ReturnBook(context.Background(), title, patronID)

	return err == nil && result.Outcome == Success
}

// AddBook catalogues a new book with all its copies available.
func (s *LendingService) AddBook(ctx context.Context, book Book) error {
	s.mu.Lock()
	err := s.inventory.Add(book)
	if err == nil {
		s.sequence++
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.logInfo(ctx, logMsgBookAdded,
		logAttrISBN, book.ISBN,
		logAttrTitle, book.Title,
		logAttrTotal, book.TotalCopies,
	)
	s.incrementCounter(ctx, metricOperationsTotal, map[string]string{
		spanAttrOperation: operationAddBook,
		spanAttrOutcome:   Success.String(),
	})
	s.notifyPersistence()

	return nil
}

// RemoveBook removes a book from the catalogue and voids its outstanding loans.
// Patrons who held a copy will get NotBorrowed when they try to return it.
func (s *LendingService) RemoveBook(ctx context.Context, isbn string) (RemovedBook, error) {
	s.mu.Lock()
	removed, err := s.removeBook(isbn)
	s.mu.Unlock()

	if err != nil {
		return RemovedBook{}, err
	}

	s.afterRemove(ctx, removed)

	return removed, nil
}

// RemoveBookByTitle removes a book identified by its title. If several books share the title, isbn
// selects among them; with an empty isbn the first one in insertion order is removed.
func (s *LendingService) RemoveBookByTitle(ctx context.Context, title, isbn string) (RemovedBook, error) {
	if strings.TrimSpace(title) == "" {
		return RemovedBook{}, fmt.Errorf("%w: title must not be empty", ErrInvalidArgument)
	}

	s.mu.Lock()
	candidates := s.inventory.isbnsByTitle(title)
	target := ""

	for _, candidate := range candidates {
		if isbn == "" || candidate == isbn {
			target = candidate
			break
		}
	}

	if target == "" {
		s.mu.Unlock()
		return RemovedBook{}, fmt.Errorf("%w: title %q", ErrBookNotFound, title)
	}

	removed, err := s.removeBook(target)
	s.mu.Unlock()

	if err != nil {
		return RemovedBook{}, err
	}

	s.afterRemove(ctx, removed)

	return removed, nil
}

// removeBook must be called with s.mu held.
func (s *LendingService) removeBook(isbn string) (RemovedBook, error) {
	book, err := s.inventory.Remove(isbn)
	if err != nil {
		return RemovedBook{}, err
	}

	voided := s.ledger.PurgeBook(isbn)
	s.sequence++

	return RemovedBook{Book: book, VoidedLoans: voided}, nil
}

func (s *LendingService) afterRemove(ctx context.Context, removed RemovedBook) {
	s.logInfo(ctx, logMsgBookRemoved,
		logAttrISBN, removed.Book.ISBN,
		logAttrTitle, removed.Book.Title,
		logAttrVoidedLoans, removed.VoidedLoans,
	)
	s.incrementCounter(ctx, metricOperationsTotal, map[string]string{
		spanAttrOperation: operationRemoveBook,
		spanAttrOutcome:   Success.String(),
	})
	s.notifyPersistence()
}

// Seed bulk-loads the catalogue. All records are validated, including ISBN uniqueness against the
// current inventory and within the batch, before any book is added.
func (s *LendingService) Seed(ctx context.Context, records []SeedRecord) error {
	books := make([]Book, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for i, record := range records {
		book, err := record.Book()
		if err != nil {
			return fmt.Errorf("seed record %d: %w", i, err)
		}

		if _, duplicate := seen[book.ISBN]; duplicate {
			return fmt.Errorf("seed record %d: %w: %s", i, ErrDuplicateISBN, book.ISBN)
		}

		seen[book.ISBN] = struct{}{}
		books = append(books, book)
	}

	s.mu.Lock()
	for _, book := range books {
		if _, exists := s.inventory.Get(book.ISBN); exists {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateISBN, book.ISBN)
		}
	}

	for _, book := range books {
		// validated above, Add cannot fail
		_ = s.inventory.Add(book)
	}

	if len(books) > 0 {
		s.sequence++
	}
	s.mu.Unlock()

	s.logInfo(ctx, logMsgInventorySeeded, logAttrBookCount, len(books))
	s.incrementCounter(ctx, metricOperationsTotal, map[string]string{
		spanAttrOperation: operationSeed,
		spanAttrOutcome:   Success.String(),
	})

	if len(books) > 0 {
		s.notifyPersistence()
	}

	return nil
}

// ListInventory returns copies of all books in insertion order.
func (s *LendingService) ListInventory() []Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inventory.List()
}

// AvailableTitles returns the distinct titles that currently have at least one copy available,
// in insertion order.
func (s *LendingService) AvailableTitles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	titles := make([]string, 0)
	seen := make(map[string]struct{})

	for _, book := range s.inventory.List() {
		key := normalizeKey(book.Title)
		if _, dup := seen[key]; dup || !book.IsAvailable() {
			continue
		}

		seen[key] = struct{}{}
		titles = append(titles, book.Title)
	}

	return titles
}

// LoansOf returns the books the patron currently holds, in borrow order.
func (s *LendingService) LoansOf(patronID string) []Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	isbns := s.ledger.LoansOf(patronID)
	books := make([]Book, 0, len(isbns))

	for _, isbn := range isbns {
		if book, exists := s.inventory.Get(isbn); exists {
			books = append(books, book)
		}
	}

	return books
}

// GetBook returns the book with the given ISBN.
func (s *LendingService) GetBook(isbn string) (Book, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inventory.Get(isbn)
}

// FindByTitle returns all books with exactly the given title, ignoring case.
func (s *LendingService) FindByTitle(title string) []Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inventory.FindByTitle(title)
}

// FindByAuthor returns all books by exactly the given author, ignoring case.
func (s *LendingService) FindByAuthor(author string) []Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inventory.FindByAuthor(author)
}

// FindByAuthorContaining returns all books whose author contains the fragment, ignoring case.
func (s *LendingService) FindByAuthorContaining(fragment string) []Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inventory.FindByAuthorContaining(fragment)
}

// FindByTitleContaining returns all books whose title contains the fragment, ignoring case.
func (s *LendingService) FindByTitleContaining(fragment string) []Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inventory.FindByTitleContaining(fragment)
}

// FindPublishedBefore returns all books published before the given year.
func (s *LendingService) FindPublishedBefore(year int) []Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inventory.FindPublishedBefore(year)
}

// SortedByTitle returns all books ordered by title.
func (s *LendingService) SortedByTitle() []Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inventory.SortedByTitle()
}

// SortedByYear returns all books ordered by publication year.
func (s *LendingService) SortedByYear(descending bool) []Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inventory.SortedByYear(descending)
}

// Stats returns the outcome counters.
func (s *LendingService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

// LoansOutstanding returns the total number of copies currently on loan.
func (s *LendingService) LoansOutstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ledger.Outstanding()
}

// Snapshot captures the inventory and the ledger consistently.
func (s *LendingService) Snapshot() InventorySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return InventorySnapshot{
		ID:             uuid.New(),
		SequenceNumber: s.sequence,
		TakenAt:        time.Now(),
		Books:          s.inventory.List(),
		Loans:          s.ledger.All(),
	}
}

// CheckInvariants verifies that every book's available count lies in [0, total] and equals
// total minus its outstanding loans, and that every loan refers to a catalogued book.
// All violations are joined into the returned error.
func (s *LendingService) CheckInvariants() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var violations []error

	for _, book := range s.inventory.List() {
		if err := checkCopyRange(book); err != nil {
			violations = append(violations, err)
			continue
		}

		if onLoan := s.ledger.OutstandingFor(book.ISBN); onLoan != book.CopiesOnLoan() {
			violations = append(violations, fmt.Errorf(
				"%w: isbn %s has %d loans recorded but %d copies missing",
				ErrInvariantViolation,
				book.ISBN,
				onLoan,
				book.CopiesOnLoan(),
			))
		}
	}

	for patronID, held := range s.ledger.All() {
		for _, isbn := range held {
			if _, exists := s.inventory.Get(isbn); !exists {
				violations = append(violations, fmt.Errorf(
					"%w: patron %s holds uncatalogued isbn %s",
					ErrInvariantViolation,
					patronID,
					isbn,
				))
			}
		}
	}

	return errors.Join(violations...)
}

func (s *LendingService) notifyPersistence() {
	if s.persistence != nil {
		s.persistence.notify()
	}
}

func checkCopyRange(book Book) error {
	if book.AvailableCopies < 0 || book.AvailableCopies > book.TotalCopies {
		return fmt.Errorf(
			"%w: isbn %s has %d available of %d total copies",
			ErrInvariantViolation,
			book.ISBN,
			book.AvailableCopies,
			book.TotalCopies,
		)
	}

	return nil
}

func validateLendingRequest(title, patronID string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidArgument)
	}

	if strings.TrimSpace(patronID) == "" {
		return fmt.Errorf("%w: patron id must not be empty", ErrInvalidArgument)
	}

	return nil
}
