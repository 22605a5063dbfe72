package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/nowhere/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is the nowhere.yaml path. Empty means defaults plus
	// NOWHERE_* environment overrides.
	Config string

	// Database and Blobs override data.ledger and data.blobs.
	Database string
	Blobs    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the nowhere CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "nowhere",
		Version: ir.EngineVersion + " (capsule format " + ir.FormatVersion + ")",
		Short:   "nowhere - deterministic execution and provenance",
		Long: `Record every external call as a sealed, content-addressed capsule and
verify it offline: the ledger says what happened, the blob store proves it.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logs on stderr)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to nowhere.yaml")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite ledger path (overrides data.ledger)")
	cmd.PersistentFlags().StringVar(&opts.Blobs, "blobs", "", "blob store directory (overrides data.blobs)")

	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewRecoverCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}
