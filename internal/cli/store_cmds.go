package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/nhle/lms-monitor/internal/model"
	"github.com/nhle/lms-monitor/internal/store"
	statsview "github.com/nhle/lms-monitor/internal/ui/stats"
)

const defaultRetention = 90 * 24 * time.Hour

func pruneCommand(opts *options) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sent-notification records older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			n, err := a.Dedup.ClearOlderThan(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s) older than %s\n", n, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", defaultRetention, "Age of records to delete")
	return cmd
}

func statsCommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show how many notifications were sent and the latest ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			ctx := cmd.Context()
			report := statsview.Report{Counts: make(map[model.Kind]int, len(model.Kinds))}
			for _, kind := range model.Kinds {
				n, err := a.Dedup.SentCount(ctx, &kind)
				if err != nil {
					return err
				}
				report.Counts[kind] = n
			}

			report.Recent, err = a.Store.ListSent(ctx, store.SentFilter{Limit: limit})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), statsview.Render(report, terminalWidth(), a.Config.Portal.Location()))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent records to list")
	return cmd
}

// terminalWidth returns the stdout width, or zero when it is not a terminal.
func terminalWidth() int {
	w, _, err := term.GetSize(uintptr(1))
	if err != nil {
		return 0
	}
	return w
}
