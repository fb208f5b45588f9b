package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dirsync/internal/compiler"
	"github.com/roach88/dirsync/internal/model"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Profile  string                     `json:"profile"`
	Entities int                        `json:"entities"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [profile.cue]",
		Short: "Validate a domain profile",
		Long: `Compile a CUE domain profile and check it for rules the schema
cannot express: duplicate field lists, protected prefixes, sync flags
in excluded namespaces.

Without an argument the configured profile is validated, or the
embedded default when none is configured.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config.Profile
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	name := path
	var p *model.Profile
	var err error
	if path == "" {
		name = compiler.DefaultProfileName
		p, err = compiler.DefaultProfile()
	} else {
		p, err = compiler.LoadProfile(path)
	}
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeCompile, err)
	}
	formatter.VerboseLog("Compiled %s: %d entities", name, len(p.Entities))

	result := ValidationResult{
		Valid:    true,
		Profile:  name,
		Entities: len(p.Entities),
		Errors:   compiler.Validate(p),
	}
	if len(result.Errors) > 0 {
		result.Valid = false
		return outputValidationErrors(formatter, result)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s valid (%d entities)\n", name, result.Entities)
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.Format == "json" {
		first := result.Errors[0]
		err := json.NewEncoder(formatter.Writer).Encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		})
		if err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintf(formatter.Writer, "✗ %s invalid\n\n", result.Profile)
	for _, e := range result.Errors {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", e.Code, e.Field, e.Message)
	}
	return failure
}
