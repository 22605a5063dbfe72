package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nowhere/internal/harness"
)

// ValidationIssue is one problem found by validate.
type ValidationIssue struct {
	Source  string `json:"source"` // "config" or a scenario path
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Scenarios int               `json:"scenarios"`
	Errors    []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [scenario.yaml...]",
		Short: "Validate the config and scenario files",
		Long: `Check the config (with environment overrides applied) against its schema,
and parse and check every scenario file given. Nothing is opened or
recorded.

Exit codes:
  0 - Everything is valid
  1 - At least one problem was found

Examples:
  nowhere validate
  nowhere validate --config ./nowhere.yaml ./scenarios/*.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	result := ValidationResult{Valid: true, Scenarios: len(paths)}

	if _, err := loadConfig(opts); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationIssue{Source: "config", Code: ErrCodeConfig, Message: err.Error()})
	} else {
		out.VerboseLog("config ok")
	}

	for _, path := range paths {
		if _, err := harness.LoadScenario(path); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationIssue{Source: path, Code: ErrCodeScenario, Message: err.Error()})
			continue
		}
		out.VerboseLog("%s ok", path)
	}

	if out.JSON() {
		if result.Valid {
			return out.Success(result)
		}
		if err := out.Result(result, result.Errors[0].Code, fmt.Sprintf("%d validation error(s)", len(result.Errors))); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	w := out.Writer
	if result.Valid {
		fmt.Fprintf(w, "✓ Config valid, %d scenario(s) valid\n", len(paths))
		return nil
	}
	fmt.Fprintf(w, "✗ Validation failed: %d error(s)\n", len(result.Errors))
	for _, issue := range result.Errors {
		fmt.Fprintf(w, "  %s: %s\n", issue.Source, issue.Message)
	}
	return NewExitError(ExitFailure, "validation failed")
}
