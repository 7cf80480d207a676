// Package cli defines the lms-monitor command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/lms-monitor/internal/app"
	"github.com/nhle/lms-monitor/internal/credential"
	"github.com/nhle/lms-monitor/internal/model"
)

// options are the global flags shared by every command.
type options struct {
	configPath string
	logLevel   string
	noKeyring  bool

	// openVault is replaced in tests.
	openVault func() (*credential.Vault, error)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{openVault: credential.Open})
}

func newRootCommand(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lms-monitor",
		Short:         "Watch a Sakai portal and notify about new course content",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", model.DefaultConfigPath(), "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&opts.noKeyring, "no-keyring", false, "Do not read secrets from the system keyring")

	rootCmd.AddCommand(
		runCommand(opts),
		watchCommand(opts),
		pruneCommand(opts),
		statsCommand(opts),
		checkCommand(opts),
		credentialsCommand(opts),
		initCommand(opts),
	)

	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

// vault opens the keyring unless disabled. A keyring that cannot be
// opened is not fatal; secrets may still come from the file or env.
func (o *options) vault(logger *slog.Logger) *credential.Vault {
	if o.noKeyring {
		return nil
	}
	v, err := o.openVault()
	if err != nil {
		logger.Warn("keyring unavailable, using file and environment secrets only", "error", err)
		return nil
	}
	return v
}

// loadConfig reads the config, applies flag overrides and builds the
// logger.
func (o *options) loadConfig(errOut io.Writer) (*model.Config, *slog.Logger, error) {
	bootLogger := slog.New(slog.NewTextHandler(errOut, nil))

	var secrets app.SecretSource
	if v := o.vault(bootLogger); v != nil {
		secrets = v
	}

	cfg, err := app.LoadConfig(o.configPath, secrets)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logger, err := app.NewLogger(cfg.Log, errOut)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// open loads the config and opens the App, logging to stderr.
func (o *options) open(cmd *cobra.Command) (*app.App, error) {
	return o.openWithLog(cmd, cmd.ErrOrStderr())
}

func (o *options) openWithLog(cmd *cobra.Command, logOut io.Writer) (*app.App, error) {
	cfg, logger, err := o.loadConfig(logOut)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, logger)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
