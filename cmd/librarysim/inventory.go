package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-lending-simulation/persistence"
	"github.com/AntonStoeckl/library-lending-simulation/persistence/catalog"
)

const keyCatalog = "catalog"

func newInventoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List the inventory of the stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.inventory(cmd.Context())
		},
	}

	cmd.Flags().Bool(keyCatalog, false, "print in catalogue format, usable as --books input")

	return cmd
}

func (a *app) inventory(ctx context.Context) error {
	logger, err := a.newLogger()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx, logger)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer closeStore()

	if store == nil {
		return fmt.Errorf("%w: inventory needs --store file or postgres", ErrUnknownStore)
	}

	snapshot, err := store.Load(ctx)
	if errors.Is(err, persistence.ErrSnapshotNotFound) {
		_, err = fmt.Fprintln(a.out, "No inventory stored yet.")
		return err
	}

	if err != nil {
		return err
	}

	if a.v.GetBool(keyCatalog) {
		return catalog.Write(a.out, snapshot.Books)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Snapshot %s, sequence %d, taken %s\n\n",
		snapshot.ID, snapshot.SequenceNumber, snapshot.TakenAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(tw, "ISBN\tTITLE\tAUTHOR\tYEAR\tAVAILABLE\tTOTAL")
	for _, book := range snapshot.Books {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			book.ISBN, book.Title, book.Author, book.PublicationYear, book.AvailableCopies, book.TotalCopies)
	}
	fmt.Fprintf(tw, "\nLoans outstanding: %d\n", snapshot.LoansOutstanding())

	return tw.Flush()
}
