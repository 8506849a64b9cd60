package simulation

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
)

// Summary is the result of one Controller.Run.
type Summary struct {
	PatronCount      int
	MaxTurns         int
	FinishedPatrons  int // patrons that completed all turns
	TotalTurns       int
	Patrons          []PatronReport
	TimedOut         bool
	Canceled         bool
	AllJoined        bool
	Duration         time.Duration
	Inventory        []circulation.Book
	LoansOutstanding int
	Stats            circulation.Stats
	InvariantErr     error
}

// Completed reports whether every patron completed all of its turns.
func (s Summary) Completed() bool {
	return s.FinishedPatrons == s.PatronCount
}

// Err returns the invariant violations observed during or after the run, or nil.
func (s Summary) Err() error {
	return s.InvariantErr
}

// WriteTo writes a human-readable report of the run.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	b := strings.Builder{}

	fmt.Fprintf(&b, "Simulation finished in %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Patrons: %d, finished: %d, turns completed: %d of %d\n",
		s.PatronCount, s.FinishedPatrons, s.TotalTurns, s.PatronCount*s.MaxTurns)

	switch {
	case s.Canceled:
		b.WriteString("Run was canceled before all patrons finished\n")
	case s.TimedOut:
		b.WriteString("Completion timeout reached before all patrons finished\n")
	}

	if !s.AllJoined {
		b.WriteString("Some patrons did not exit within the join timeout\n")
	}

	fmt.Fprintf(&b, "Borrowed: %d, returned: %d, unavailable: %d, not found: %d, not borrowed: %d\n",
		s.Stats.Borrowed, s.Stats.Returned, s.Stats.Unavailable, s.Stats.NotFound, s.Stats.NotBorrowed)
	fmt.Fprintf(&b, "Loans outstanding: %d\n\n", s.LoansOutstanding)

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ISBN\tTITLE\tAUTHOR\tYEAR\tAVAILABLE\tTOTAL")
	for _, book := range s.Inventory {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			book.ISBN, book.Title, book.Author, book.PublicationYear, book.AvailableCopies, book.TotalCopies)
	}
	_ = tw.Flush()

	if s.InvariantErr != nil {
		fmt.Fprintf(&b, "\nINVARIANT VIOLATIONS:\n%v\n", s.InvariantErr)
	}

	n, err := io.WriteString(w, b.String())

	return int64(n), err
}
