package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/hvcalls/internal/cmd/emoji"
	"github.com/agentstation/hvcalls/internal/cmd/output"
	"github.com/agentstation/hvcalls/pkg/errors"
)

// Execute runs the hvcalls CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(a.out)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "hvcalls",
		Short:   "Hyper-V hypercall table extractor",
		Version: a.version,
		Long: `hvcalls builds a table of Hyper-V hypercall numbers and names.

It runs an IDA Pro extraction script over the hypervisor binaries, then
merges the per-binary JSON documents the script writes into:

  hvcalls_results.json                  one name per hypercall
  hvcalls_results_with_duplicates.json  every name and source binary per address
  hvcalls_unknown.json                  calls from the unknown subdirectory`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{
		ID:    "core",
		Title: "Core Commands:",
	})

	rootCmd.PersistentFlags().String("config", "", "config file (default is $HOME/.hvcalls.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringP("format", "o", "", "output format: table, json, yaml, markdown")
	rootCmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	rootCmd.SetVersionTemplate("hvcalls {{.Version}}\n")

	a.registerCommands(rootCmd)

	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	configFile := mustGetString(cmd, "config")
	if configFile != "" {
		config, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		a.config.ConfigFile = config.ConfigFile
		a.config.Settings = config.Settings
	}

	format, err := output.ParseFormat(mustGetString(cmd, "format"))
	if err != nil {
		return err
	}

	a.config.UpdateFromFlags(
		mustGetBool(cmd, "verbose"),
		mustGetBool(cmd, "quiet"),
		mustGetBool(cmd, "no-color"),
		string(format),
		mustGetString(cmd, "log-level"),
	)

	if !a.fixedLogger {
		logger := NewLogger(a.config)
		a.logger = &logger
	}

	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(a.NewMergeCommand())
	rootCmd.AddCommand(a.NewExtractCommand())
	rootCmd.AddCommand(a.NewRunCommand())
	rootCmd.AddCommand(a.NewVersionCommand())
	rootCmd.AddCommand(a.NewManCommand())
}

// ExitOnError prints an error and exits. A stopped run exits with 130,
// any other error with 1.
func ExitOnError(err error) {
	if err == nil {
		return
	}
	if errors.IsCanceled(err) {
		_, _ = os.Stderr.WriteString(emoji.Stop + " " + err.Error() + "\n")
		os.Exit(130)
	}
	_, _ = os.Stderr.WriteString(emoji.Error + " " + err.Error() + "\n")
	os.Exit(1)
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
