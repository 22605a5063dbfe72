package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nowhere/internal/engine"
)

// RecoverOptions holds flags for the recover command.
type RecoverOptions struct {
	*RootOptions
	Concurrency int
}

// NewRecoverCommand creates the recover command.
func NewRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecoverOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Commit effects left pending by an interrupted run",
		Long: `Find every capsule the ledger holds without an effect commit and apply
its recorded effects to the evidence store.

Capsules of one actor are committed in clock order; different actors are
recovered concurrently. Flagged capsules are skipped. Running recover
twice is harmless: effects are upserts.

Exit codes:
  0 - No effects left pending
  1 - An effect could not be applied (the rest stay pending)
  2 - Command error (config, store)

Examples:
  nowhere recover
  nowhere recover --db ./nowhere.db --concurrency 8 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", engine.DefaultRecoveryConcurrency, "actors recovered at once")

	return cmd
}

func runRecover(ctx context.Context, opts *RecoverOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ws, cerr := openWorkspace(opts.RootOptions, cmd.ErrOrStderr())
	if cerr != nil {
		return cerr.report(out)
	}
	defer ws.Close()

	report, err := ws.dispatcher().Recover(ctx, opts.Concurrency)
	if err != nil {
		if out.JSON() {
			if outErr := out.Result(report, ErrCodePending, err.Error()); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "recovery incomplete", err)
		}
		fmt.Fprintf(out.Writer, "✗ Recovered %d of %d pending capsule(s)\n", len(report.Committed), report.Pending)
		fmt.Fprintf(out.Writer, "  Error: %v\n", err)
		return WrapExitError(ExitFailure, "recovery incomplete", err)
	}

	if out.JSON() {
		return out.Success(report)
	}
	if report.Pending == 0 {
		fmt.Fprintln(out.Writer, "✓ No pending effects")
		return nil
	}
	for _, ref := range report.Committed {
		out.VerboseLog("committed %s", ref)
	}
	fmt.Fprintf(out.Writer, "✓ Recovered %d pending capsule(s)\n", len(report.Committed))
	return nil
}
