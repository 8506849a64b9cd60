package circulation

import (
	"slices"
)

// LoanLedger maps each patron to the ISBNs they currently hold, in borrow order.
// A patron holding two copies of the same book has the ISBN listed twice.
//
// LoanLedger is not synchronized; LendingService guards it with the same lock as the InventoryStore.
type LoanLedger struct {
	loans map[string][]isbnString
}

// NewLoanLedger creates an empty LoanLedger.
func NewLoanLedger() *LoanLedger {
	return &LoanLedger{
		loans: make(map[string][]isbnString),
	}
}

// RecordLoan appends a loan of the given book to the patron's sequence.
func (l *LoanLedger) RecordLoan(patronID, isbn string) {
	l.loans[patronID] = append(l.loans[patronID], isbn)
}

// ReleaseLoan removes the patron's earliest loan of the given book.
// It reports false if the patron does not hold that book.
func (l *LoanLedger) ReleaseLoan(patronID, isbn string) bool {
	held := l.loans[patronID]

	idx := slices.Index(held, isbn)
	if idx < 0 {
		return false
	}

	remaining := slices.Delete(slices.Clone(held), idx, idx+1)
	if len(remaining) == 0 {
		delete(l.loans, patronID)
		return true
	}

	l.loans[patronID] = remaining

	return true
}

// FirstLoanMatching returns the earliest ISBN in the patron's sequence accepted by match.
func (l *LoanLedger) FirstLoanMatching(patronID string, match func(isbn string) bool) (string, bool) {
	for _, isbn := range l.loans[patronID] {
		if match(isbn) {
			return isbn, true
		}
	}

	return "", false
}

// LoansOf returns a copy of the patron's loan sequence.
func (l *LoanLedger) LoansOf(patronID string) []string {
	return slices.Clone(l.loans[patronID])
}

// PurgeBook voids every outstanding loan of the given book and returns how many were voided.
func (l *LoanLedger) PurgeBook(isbn string) int {
	voided := 0

	for patronID, held := range l.loans {
		remaining := make([]isbnString, 0, len(held))
		for _, candidate := range held {
			if candidate == isbn {
				voided++
				continue
			}

			remaining = append(remaining, candidate)
		}

		if len(remaining) == 0 {
			delete(l.loans, patronID)
			continue
		}

		l.loans[patronID] = remaining
	}

	return voided
}

// OutstandingFor counts the outstanding loans of the given book across all patrons.
func (l *LoanLedger) OutstandingFor(isbn string) int {
	count := 0
	for _, held := range l.loans {
		for _, candidate := range held {
			if candidate == isbn {
				count++
			}
		}
	}

	return count
}

// Outstanding returns the total number of outstanding loans.
func (l *LoanLedger) Outstanding() int {
	count := 0
	for _, held := range l.loans {
		count += len(held)
	}

	return count
}

// Patrons returns the sorted IDs of all patrons holding at least one loan.
func (l *LoanLedger) Patrons() []string {
	patronIDs := make([]string, 0, len(l.loans))
	for patronID := range l.loans {
		patronIDs = append(patronIDs, patronID)
	}

	slices.Sort(patronIDs)

	return patronIDs
}

// All returns a deep copy of the ledger.
func (l *LoanLedger) All() map[string][]string {
	all := make(map[string][]string, len(l.loans))
	for patronID, held := range l.loans {
		all[patronID] = slices.Clone(held)
	}

	return all
}
