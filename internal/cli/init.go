package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dirsync/internal/app"
	"github.com/roach88/dirsync/internal/compiler"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	WriteProfile string // write the default profile source here
}

// InitResult reports what init set up.
type InitResult struct {
	Database      string `json:"database"`
	Collections   int    `json:"collections"`
	Relationships int    `json:"relationship_types"`
	ProfileOut    string `json:"profile_out,omitempty"`
}

func (r InitResult) String() string {
	s := fmt.Sprintf("✓ %s ready: %d collections, %d relationship types", r.Database, r.Collections, r.Relationships)
	if r.ProfileOut != "" {
		s += "\n✓ default profile written to " + r.ProfileOut
	}
	return s
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and seed it from the profile",
		Long: `Create the SQLite database if needed and seed collections and
relationship types from the configured profile. Safe to run again.

Examples:
  dirsync init --db ./dirsync.db
  dirsync init --write-profile ./profile.cue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.WriteProfile, "write-profile", "", "write the embedded default profile to this path")
	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	if opts.WriteProfile != "" {
		if err := os.WriteFile(opts.WriteProfile, compiler.DefaultSource(), 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
		}
	}

	profile, err := app.LoadProfile(opts.Config.Profile)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeCompile, err)
	}
	a, err := app.Open(ctx, app.Options{Database: opts.Config.Database, Profile: profile})
	if err != nil {
		return formatter.FailStore(err)
	}
	defer a.Close()

	cols, err := a.Store.ListCollections(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	rts, err := a.Store.ListRelationshipTypes(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, err)
	}

	return formatter.Success(InitResult{
		Database:      opts.Config.Database,
		Collections:   len(cols),
		Relationships: len(rts),
		ProfileOut:    opts.WriteProfile,
	})
}
