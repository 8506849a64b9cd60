// Package catalog reads and writes the pipe-delimited catalogue format used to import books:
//
//	Title|Author|ISBN|Copies|Year
//
// The year is optional, a line with four fields has year 0. Blank lines and lines starting with '#' are ignored. Fields are trimmed.
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
)

const (
	minFieldCount = 4
	maxFieldCount = 5
)

var (
	// ErrMalformedLine is returned for a line that does not have four or five fields or has non-numeric counts.
	ErrMalformedLine = errors.New("malformed catalogue line")
)

// Parse reads seed records from r. All malformed lines are reported together.
func Parse(r io.Reader) ([]circulation.SeedRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = '|'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records := make([]circulation.SeedRecord, 0)
	var lineErrs []error

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, err
		}

		line, _ := reader.FieldPos(0)

		record, err := parseFields(fields)
		if err != nil {
			lineErrs = append(lineErrs, fmt.Errorf("line %d: %w", line, err))
			continue
		}

		records = append(records, record)
	}

	if len(lineErrs) > 0 {
		return nil, errors.Join(lineErrs...)
	}

	return records, nil
}

// Load reads seed records from the file at path.
func Load(ctx context.Context, path string) ([]circulation.SeedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	return Parse(file)
}

// Write renders books in the catalogue format, one line per book, with total copies.
func Write(w io.Writer, books []circulation.Book) error {
	for _, book := range books {
		if _, err := fmt.Fprintf(w, "%s|%s|%s|%d|%d\n",
			book.Title, book.Author, book.ISBN, book.TotalCopies, book.PublicationYear); err != nil {
			return err
		}
	}

	return nil
}

func parseFields(fields []string) (circulation.SeedRecord, error) {
	if len(fields) < minFieldCount || len(fields) > maxFieldCount {
		return circulation.SeedRecord{}, fmt.Errorf(
			"%w: expected %d or %d fields, got %d",
			ErrMalformedLine,
			minFieldCount,
			maxFieldCount,
			len(fields),
		)
	}

	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	copies, err := strconv.Atoi(fields[3])
	if err != nil {
		return circulation.SeedRecord{}, fmt.Errorf("%w: copies %q is not a number", ErrMalformedLine, fields[3])
	}

	year := 0
	if len(fields) == maxFieldCount {
		if year, err = strconv.Atoi(fields[4]); err != nil {
			return circulation.SeedRecord{}, fmt.Errorf("%w: year %q is not a number", ErrMalformedLine, fields[4])
		}
	}

	return circulation.SeedRecord{
		Title:           fields[0],
		Author:          fields[1],
		ISBN:            fields[2],
		Copies:          copies,
		PublicationYear: year,
	}, nil
}
