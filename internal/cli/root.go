package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/dirsync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string // overrides the configured database when set

	// Config is loaded before any subcommand runs.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the dirsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dirsync",
		Short: "dirsync - CV and Directorio synchronization",
		Long: `Keeps researcher CV entities and the institutional Directorio in sync.

CV edits become reviewed corrections on the Directorio side; approved
Directorio changes flow back into the CV. Every change runs through a
review workflow and leaves a provenance trail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			if opts.Database != "" {
				cfg.Database = opts.Database
			}
			opts.Config = cfg
			return setupLogging(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./dirsync.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database path (overrides config)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setupLogging installs the default slog handler. Verbose forces debug.
func setupLogging(w io.Writer, lc config.LogConfig, verbose bool) error {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, handlerOpts)
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// newFormatter builds the output formatter for cmd. Diagnostics go to
// stderr so JSON output stays parseable.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
