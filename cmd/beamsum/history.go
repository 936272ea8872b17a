package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/beamsum/internal/engine"
	"github.com/bamsammich/beamsum/internal/ui"
)

func newHistoryCmd() *cobra.Command {
	var (
		journalPath string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "history <path>...",
		Short: "Show the journal entries recorded for files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if journalPath == "" {
				journalPath = engine.DefaultJournalPath()
			}
			if _, err := os.Stat(journalPath); err != nil {
				return fmt.Errorf("journal %s: %w", journalPath, err)
			}
			j, err := engine.OpenJournal(journalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			for _, path := range args {
				entries, err := j.History(path, limit)
				if err != nil {
					return err
				}
				if err := printHistory(cmd.OutOrStdout(), path, entries); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&journalPath, "journal-path", "", "journal database (default: $XDG_STATE_HOME/beamsum/journal.db)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "entries per file, newest first (0 for all)")
	return cmd
}

func printHistory(w io.Writer, path string, entries []engine.JournalEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintf(w, "%s: no entries\n", path)
		return err
	}
	fmt.Fprintf(w, "%s:\n", path)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  FINISHED\tMODE\tSTATE\tALGO\tSIZE\tTIME\tDIGEST\tSTATUS")
	for _, e := range entries {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.FinishedAt.Local().Format(time.DateTime),
			e.Mode, e.State, e.Algorithm,
			ui.FormatBytes(e.Size),
			ui.FormatDuration(e.Duration),
			orDash(e.Digest), e.Status,
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
