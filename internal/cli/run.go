package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nhle/lms-monitor/internal/monitor"
	"github.com/nhle/lms-monitor/internal/runlock"
	runview "github.com/nhle/lms-monitor/internal/ui/run"
)

func runCommand(opts *options) *cobra.Command {
	var tui bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Perform one monitoring pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			// Log lines would tear the progress view apart.
			logOut := cmd.ErrOrStderr()
			if tui {
				logOut = io.Discard
			}

			a, err := opts.openWithLog(cmd, logOut)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			ctx := cmd.Context()

			if tui {
				events := make(chan monitor.Event, 16)
				m, err := a.NewMonitor(ctx, monitor.WithProgress(events))
				if err != nil {
					return err
				}
				_, err = runview.Start(ctx, m.RunLocked, events)
				return skipIfLocked(cmd, err)
			}

			m, err := a.NewMonitor(ctx)
			if err != nil {
				return err
			}
			stats, err := m.RunLocked(ctx)
			if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), runview.RenderStats(stats))
			}
			return skipIfLocked(cmd, err)
		},
	}

	cmd.Flags().BoolVar(&tui, "tui", false, "Show live progress in the terminal")
	return cmd
}

// skipIfLocked turns a lock conflict into a clean exit.
func skipIfLocked(cmd *cobra.Command, err error) error {
	if errors.Is(err, runlock.ErrLocked) {
		fmt.Fprintln(cmd.ErrOrStderr(), "another run is in progress, skipping")
		return nil
	}
	return err
}
