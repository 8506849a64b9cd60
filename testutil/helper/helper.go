package helper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/simulation"
)

// GivenUniqueID returns a fresh time-ordered ID, useful as a patron ID.
func GivenUniqueID(t testing.TB) string {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id.String()
}

// GivenUniqueISBN returns an ISBN-like identifier that is unique per call.
func GivenUniqueISBN(t testing.TB) string {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return "978-" + id.String()
}

// GivenBook creates a valid book with all copies available.
func GivenBook(t testing.TB, title, author string, copies int) circulation.Book {
	book, err := circulation.NewBook(GivenUniqueISBN(t), title, author, 2008, copies)
	require.NoError(t, err, "error in arranging test data")

	return book
}

// GivenLendingService creates a LendingService with the given books added in order.
func GivenLendingService(t testing.TB, books []circulation.Book, options ...circulation.Option) *circulation.LendingService {
	service, err := circulation.NewLendingService(options...)
	require.NoError(t, err, "error in arranging test data")

	for _, book := range books {
		require.NoError(t, service.AddBook(context.Background(), book), "error in arranging test data")
	}

	return service
}

// GivenBorrowed lets the patron borrow the title and fails the test if no copy changed hands.
func GivenBorrowed(t testing.TB, service *circulation.LendingService, title, patronID string) circulation.Book {
	result, err := service.Borrow(context.Background(), title, patronID)
	require.NoError(t, err, "error in arranging test data")
	require.Equal(t, circulation.Success, result.Outcome, "error in arranging test data")

	return result.Book
}

// GivenSeedRecords returns count distinct seed records with the given number of copies each.
func GivenSeedRecords(count, copies int) []circulation.SeedRecord {
	records := make([]circulation.SeedRecord, 0, count)
	for i := 1; i <= count; i++ {
		records = append(records, circulation.SeedRecord{
			Title:           fmt.Sprintf("Title %d", i),
			Author:          fmt.Sprintf("Author %d", i),
			ISBN:            fmt.Sprintf("978-0-00-%06d", i),
			Copies:          copies,
			PublicationYear: 1990 + i,
		})
	}

	return records
}

// GivenFastTiming returns simulation timing in the millisecond range so that patron runs finish quickly.
func GivenFastTiming() simulation.Timing {
	return simulation.Timing{
		MinReadingTime: 0,
		MaxReadingTime: time.Millisecond,
		MinPause:       0,
		MaxPause:       time.Millisecond,
		Backoff: simulation.Backoff{
			BaseDelay:    time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			JitterFactor: 0.3,
		},
	}
}
