package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/lms-monitor/internal/model"
	configview "github.com/nhle/lms-monitor/internal/ui/config"
)

func initCommand(opts *options) *cobra.Command {
	var (
		force    bool
		defaults bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileExists(opts.configPath) && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", opts.configPath)
			}

			cfg, err := model.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}

			if !defaults {
				answers := configview.AnswersFrom(cfg)
				if err := configview.NewSetupForm(&answers).Run(); err != nil {
					return err
				}
				if err := answers.Apply(cfg); err != nil {
					return err
				}
			}

			if err := model.SaveConfig(opts.configPath, cfg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", opts.configPath)
			fmt.Fprintln(out, "Store the portal password with: lms-monitor credentials set portal-password")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write defaults without prompting")
	return cmd
}
