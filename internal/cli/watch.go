package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/lms-monitor/internal/observability"
)

func watchCommand(opts *options) *cobra.Command {
	var (
		interval    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run monitoring passes on an interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			if cmd.Flags().Changed("interval") {
				a.Config.Watch.Interval = interval
			}
			if cmd.Flags().Changed("metrics-addr") {
				a.Config.Watch.MetricsAddr = metricsAddr
			}

			m, err := a.NewMonitor(cmd.Context())
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			if addr := a.Config.Watch.MetricsAddr; addr != "" {
				srv := observability.NewServer(addr, a.Metrics, a.Store.Ping, a.Logger)
				g.Go(func() error { return srv.Run(ctx) })
			}
			g.Go(func() error { return m.Watch(ctx, a.Config.Watch.Interval) })

			return g.Wait()
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Minute, "Time between passes")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	return cmd
}
