package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands, after config resolution.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	LogLevel string
	Journal  string // journal database used by run, trace and replay
	Schema   string // schema file used by replay

	ConfigFile string
	Logger     *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pmsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pmsync",
		Short: "pmsync - presentation model synchronization",
		Long: `Tooling for the presentation model synchronization engine.

Validates bean schemas, runs client/server scenarios, and inspects or
replays the command journal a session leaves behind.

Settings are read from pmsync.yaml (or --config), PMSYNC_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./pmsync.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", defaultFormat, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", defaultLogLevel, "engine log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Journal, "journal", "", "path to the SQLite command journal")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "", "path to the CUE bean schema")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))

	return cmd
}

// resolve loads the config and fills opts from it.
func (opts *RootOptions) resolve(cmd *cobra.Command) error {
	v, err := loadConfig(opts.ConfigFile, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	opts.Format = v.GetString(cfgKeyFormat)
	opts.Verbose = v.GetBool(cfgKeyVerbose)
	opts.LogLevel = v.GetString(cfgKeyLogLevel)
	opts.Journal = v.GetString(cfgKeyJournal)
	opts.Schema = v.GetString(cfgKeySchema)

	if !isValidFormat(opts.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.LogLevel)); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid log level %q", opts.LogLevel), err)
	}
	opts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// formatter builds the output formatter for a command.
func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// logger returns the resolved logger, or a discarding one when the command
// runs without the root's pre-run (as in tests that build it directly).
func (opts *RootOptions) logger() *slog.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
