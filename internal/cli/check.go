package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/lms-monitor/internal/session"
)

const testMessage = "*LMS Monitor*\n\nTest notification. Delivery is working."

func checkCommand(opts *options) *cobra.Command {
	var sendTest bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the portal login and the notification channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			if err := a.Config.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if err := a.Store.Ping(ctx); err != nil {
				return fmt.Errorf("store: %w", err)
			}
			fmt.Fprintf(out, "store      ok (%s)\n", driverName(a.Config.Store.Driver))

			mgr := a.Session()
			err = session.WithSession(ctx, mgr, a.Logger, func(context.Context) error {
				fmt.Fprintf(out, "portal     ok (logged in as %s)\n", mgr.UserID())
				return nil
			})
			if err != nil {
				return fmt.Errorf("portal: %w", err)
			}

			notifier, err := a.Notifier(ctx)
			if err != nil {
				return err
			}
			if sendTest {
				if err := notifier.Send(ctx, testMessage); err != nil {
					return fmt.Errorf("notify: %w", err)
				}
				fmt.Fprintf(out, "notify     ok (test message sent via %s)\n", notifier.Name())
				return nil
			}
			fmt.Fprintf(out, "notify     configured (%s)\n", notifier.Name())
			return nil
		},
	}

	cmd.Flags().BoolVar(&sendTest, "send-test", false, "Also send a test notification")
	return cmd
}

func driverName(driver string) string {
	if driver == "" {
		return "sqlite"
	}
	return driver
}
