package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/lms-monitor/internal/credential"
	configview "github.com/nhle/lms-monitor/internal/ui/config"
)

func credentialsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage secrets stored in the system keyring",
		Long: "Manage secrets stored in the system keyring.\n\nKnown keys: " +
			strings.Join(credential.Keys, ", "),
	}
	cmd.AddCommand(credentialsSetCommand(opts), credentialsDeleteCommand(opts))
	return cmd
}

func credentialsSetCommand(opts *options) *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "set [key]",
		Short: "Store a secret, prompting for its value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answers := configview.CredentialAnswers{}
			if len(args) == 1 {
				if !credential.IsKnownKey(args[0]) {
					return fmt.Errorf("unknown credential %q", args[0])
				}
				answers.Key = args[0]
			}

			if fromStdin {
				if answers.Key == "" {
					return fmt.Errorf("a key is required with --stdin")
				}
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading value: %w", err)
				}
				answers.Value = strings.TrimRight(line, "\r\n")
			} else if err := configview.NewCredentialForm(&answers, credential.Keys).Run(); err != nil {
				return err
			}
			if answers.Value == "" {
				return fmt.Errorf("empty value for %q", answers.Key)
			}

			vault, err := opts.openVault()
			if err != nil {
				return err
			}
			if err := vault.Set(answers.Key, answers.Value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", answers.Key)
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the value from the first line of stdin")
	return cmd
}

func credentialsDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := opts.openVault()
			if err != nil {
				return err
			}
			if err := vault.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
