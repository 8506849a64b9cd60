package circulation

import (
	"fmt"
	"strings"
)

// Book is a catalogued title with a fixed number of physical copies.
//
// Callers only ever see value copies of a Book; the authoritative instance is owned by the
// InventoryStore and mutated exclusively by the LendingService.
type Book struct {
	ISBN            string `json:"isbn"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationYear int    `json:"publication_year"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

// NewBook creates a Book with all copies available.
func NewBook(isbn, title, author string, publicationYear, copies int) (Book, error) {
	book := Book{
		ISBN:            isbn,
		Title:           title,
		Author:          author,
		PublicationYear: publicationYear,
		TotalCopies:     copies,
		AvailableCopies: copies,
	}

	if err := book.Validate(); err != nil {
		return Book{}, err
	}

	return book, nil
}

// Validate checks the identifying fields and the copy counts.
func (b Book) Validate() error {
	if strings.TrimSpace(b.ISBN) == "" {
		return fmt.Errorf("%w: isbn must not be empty", ErrInvalidArgument)
	}

	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidArgument)
	}

	if strings.TrimSpace(b.Author) == "" {
		return fmt.Errorf("%w: author must not be empty", ErrInvalidArgument)
	}

	if b.TotalCopies < 0 {
		return fmt.Errorf("%w: copies must not be negative, got %d", ErrInvalidArgument, b.TotalCopies)
	}

	if b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return fmt.Errorf(
			"%w: available copies %d out of range [0, %d]",
			ErrInvalidArgument,
			b.AvailableCopies,
			b.TotalCopies,
		)
	}

	return nil
}

// CopiesOnLoan returns the number of copies currently lent out.
func (b Book) CopiesOnLoan() int {
	return b.TotalCopies - b.AvailableCopies
}

// IsAvailable reports whether at least one copy can be borrowed.
func (b Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}

func (b Book) String() string {
	return fmt.Sprintf("%s by %s (%d/%d available, isbn %s)", b.Title, b.Author, b.AvailableCopies, b.TotalCopies, b.ISBN)
}

// normalizeKey produces the lookup key used by the title and author indices.
func normalizeKey(s string) string {
	return strings.ToLower(s)
}
