package circulation

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

type (
	isbnString = string
	indexKey   = string
)

// InventoryStore holds the catalogued books keyed by ISBN together with the lower-cased title and
// author indices. Index entries keep the insertion order of the books, which is the tie-break
// order for borrowing among books sharing a title.
//
// InventoryStore is not synchronized. LendingService guards it; standalone use must be confined
// to a single goroutine.
type InventoryStore struct {
	books       map[isbnString]*Book
	order       []isbnString
	titleIndex  map[indexKey][]isbnString
	authorIndex map[indexKey][]isbnString
}

// NewInventoryStore creates an empty InventoryStore.
func NewInventoryStore() *InventoryStore {
	return &InventoryStore{
		books:       make(map[isbnString]*Book),
		order:       make([]isbnString, 0),
		titleIndex:  make(map[indexKey][]isbnString),
		authorIndex: make(map[indexKey][]isbnString),
	}
}

// Add catalogues a book and registers it in both indices.
// A new book has no loans, so all of its copies must be available.
func (s *InventoryStore) Add(book Book) error {
	if err := book.Validate(); err != nil {
		return err
	}

	if book.AvailableCopies != book.TotalCopies {
		return fmt.Errorf(
			"%w: a new book must have all %d copies available, got %d",
			ErrInvalidArgument,
			book.TotalCopies,
			book.AvailableCopies,
		)
	}

	if _, exists := s.books[book.ISBN]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateISBN, book.ISBN)
	}

	stored := book
	s.books[book.ISBN] = &stored
	s.order = append(s.order, book.ISBN)

	titleKey := normalizeKey(book.Title)
	s.titleIndex[titleKey] = append(s.titleIndex[titleKey], book.ISBN)

	authorKey := normalizeKey(book.Author)
	s.authorIndex[authorKey] = append(s.authorIndex[authorKey], book.ISBN)

	return nil
}

// Remove deletes a book and its index entries. Outstanding loans are not touched here,
// the LendingService purges them from the LoanLedger in the same critical section.
func (s *InventoryStore) Remove(isbn string) (Book, error) {
	stored, exists := s.books[isbn]
	if !exists {
		return Book{}, fmt.Errorf("%w: isbn %s", ErrBookNotFound, isbn)
	}

	removed := *stored

	delete(s.books, isbn)
	s.order = removeISBN(s.order, isbn)
	removeFromIndex(s.titleIndex, normalizeKey(removed.Title), isbn)
	removeFromIndex(s.authorIndex, normalizeKey(removed.Author), isbn)

	return removed, nil
}

// Get returns a copy of the book with the given ISBN.
func (s *InventoryStore) Get(isbn string) (Book, bool) {
	stored, exists := s.books[isbn]
	if !exists {
		return Book{}, false
	}

	return *stored, true
}

// FindByTitle returns copies of all books whose title equals the given one, ignoring case,
// in insertion order.
func (s *InventoryStore) FindByTitle(title string) []Book {
	return s.collect(s.titleIndex[normalizeKey(title)])
}

// FindByAuthor returns copies of all books whose author equals the given one, ignoring case,
// in insertion order.
func (s *InventoryStore) FindByAuthor(author string) []Book {
	return s.collect(s.authorIndex[normalizeKey(author)])
}

// FindByAuthorContaining returns all books whose author contains the given fragment, ignoring case.
func (s *InventoryStore) FindByAuthorContaining(fragment string) []Book {
	needle := normalizeKey(fragment)

	return s.filter(func(book *Book) bool {
		return strings.Contains(normalizeKey(book.Author), needle)
	})
}

// FindByTitleContaining returns all books whose title contains the given fragment, ignoring case.
func (s *InventoryStore) FindByTitleContaining(fragment string) []Book {
	needle := normalizeKey(fragment)

	return s.filter(func(book *Book) bool {
		return strings.Contains(normalizeKey(book.Title), needle)
	})
}

// FindPublishedBefore returns all books published strictly before the given year.
func (s *InventoryStore) FindPublishedBefore(year int) []Book {
	return s.filter(func(book *Book) bool {
		return book.PublicationYear < year
	})
}

// List returns copies of all books in insertion order.
func (s *InventoryStore) List() []Book {
	return s.collect(s.order)
}

// SortedByTitle returns all books ordered by title, ignoring case. Equal titles keep insertion order.
func (s *InventoryStore) SortedByTitle() []Book {
	books := s.List()
	slices.SortStableFunc(books, func(a, b Book) int {
		return strings.Compare(normalizeKey(a.Title), normalizeKey(b.Title))
	})

	return books
}

// SortedByYear returns all books ordered by publication year, oldest first unless descending is set.
func (s *InventoryStore) SortedByYear(descending bool) []Book {
	books := s.List()
	slices.SortStableFunc(books, func(a, b Book) int {
		if descending {
			return cmp.Compare(b.PublicationYear, a.PublicationYear)
		}

		return cmp.Compare(a.PublicationYear, b.PublicationYear)
	})

	return books
}

// Len returns the number of catalogued books.
func (s *InventoryStore) Len() int {
	return len(s.order)
}

// isbnsByTitle exposes the raw index entry for the LendingService. The slice must not be modified.
func (s *InventoryStore) isbnsByTitle(title string) []isbnString {
	return s.titleIndex[normalizeKey(title)]
}

// book returns the authoritative instance for in-place mutation by the LendingService.
func (s *InventoryStore) book(isbn string) *Book {
	return s.books[isbn]
}

func (s *InventoryStore) collect(isbns []isbnString) []Book {
	books := make([]Book, 0, len(isbns))
	for _, isbn := range isbns {
		if stored, exists := s.books[isbn]; exists {
			books = append(books, *stored)
		}
	}

	return books
}

func (s *InventoryStore) filter(keep func(book *Book) bool) []Book {
	books := make([]Book, 0)
	for _, isbn := range s.order {
		if stored := s.books[isbn]; keep(stored) {
			books = append(books, *stored)
		}
	}

	return books
}

func removeFromIndex(index map[indexKey][]isbnString, key indexKey, isbn isbnString) {
	remaining := removeISBN(index[key], isbn)
	if len(remaining) == 0 {
		delete(index, key)
		return
	}

	index[key] = remaining
}

// removeISBN returns a new slice without the given ISBN, so slices handed out earlier stay intact.
func removeISBN(isbns []isbnString, isbn isbnString) []isbnString {
	remaining := make([]isbnString, 0, len(isbns))
	for _, candidate := range isbns {
		if candidate != isbn {
			remaining = append(remaining, candidate)
		}
	}

	return remaining
}
