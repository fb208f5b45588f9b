package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dirsync/internal/correction"
	"github.com/roach88/dirsync/internal/model"
)

// DiffResult is the correction that turns Target into Source.
type DiffResult struct {
	Target     string               `json:"target"`
	Source     string               `json:"source"`
	Correction model.ItemCorrection `json:"correction"`
}

func (r DiffResult) String() string {
	return fmt.Sprintf("%s <- %s\n%s", r.Target, r.Source, correction.Render(r.Correction))
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <target-id> <source-id>",
		Short: "Show the correction between two items",
		Long: `Compute the correction that would bring the target item's metadata
in line with the source item, using the profile's ignored and
order-sensitive fields. Nothing is written.

Examples:
  dirsync diff <clone-id> <cv-id>
  dirsync diff <clone-id> <cv-id> --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runDiff(opts *RootOptions, targetID, sourceID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	a, err := openApp(ctx, opts, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := a.Catalog.Get(ctx, targetID)
	if err != nil {
		return formatter.FailStore(err)
	}
	source, err := a.Catalog.Get(ctx, sourceID)
	if err != nil {
		return formatter.FailStore(err)
	}

	ic := a.Corrections.Diff(target, source)
	formatter.VerboseLog("%d field(s) differ", len(ic.Corrections))
	return formatter.Success(DiffResult{Target: target.ID, Source: source.ID, Correction: ic})
}
