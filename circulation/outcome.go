package circulation

// Outcome is the business result of a Borrow or ReturnBook request.
type Outcome int

const (
	// Success means the copy changed hands.
	Success Outcome = iota + 1

	// Unavailable means the title is catalogued but every copy is on loan.
	Unavailable

	// NotFound means no book with the requested title is catalogued.
	NotFound

	// NotBorrowed means the patron holds no copy of the requested title.
	NotBorrowed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Unavailable:
		return "unavailable"
	case NotFound:
		return "not_found"
	case NotBorrowed:
		return "not_borrowed"
	default:
		return "unknown"
	}
}

// Err maps an unsuccessful outcome to its sentinel error, for callers that prefer error flow.
// It returns nil for Success.
func (o Outcome) Err() error {
	switch o {
	case Unavailable:
		return ErrBookUnavailable
	case NotFound:
		return ErrBookNotFound
	case NotBorrowed:
		return ErrPatronNotBorrowing
	default:
		return nil
	}
}

// BorrowResult is returned by LendingService.Borrow.
// Book holds the state of the lent book right after the loan, it is empty unless Outcome is Success.
type BorrowResult struct {
	Outcome Outcome
	Book    Book
}

// ReturnResult is returned by LendingService.ReturnBook.
// Book holds the state of the returned book right after the return, it is empty unless Outcome is Success.
type ReturnResult struct {
	Outcome Outcome
	Book    Book
}

// RemovedBook is returned by LendingService.RemoveBook.
type RemovedBook struct {
	Book        Book
	VoidedLoans int
}

// Stats counts the lending outcomes since the LendingService was created.
type Stats struct {
	Borrowed    int `json:"borrowed"`
	Returned    int `json:"returned"`
	Unavailable int `json:"unavailable"`
	NotFound    int `json:"not_found"`
	NotBorrowed int `json:"not_borrowed"`
}
