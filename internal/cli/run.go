package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/nowhere/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a scenario against the durable stores",
		Long: `Execute a scenario file: every flow step is recorded as a capsule in the
SQLite ledger, its raw response committed to the blob store and its
effects applied to the evidence store. Assertions run afterwards.

Actor mailboxes and rate limits come from the config. The logical clock
continues from whatever the ledger already holds.

Tamper assertions need a blob store that can be modified in place and are
reported as failures here.

Exit codes:
  0 - Every step met its expected outcome and every assertion held
  1 - Scenario failed
  2 - Command error (config, store, unreadable scenario)

Examples:
  nowhere run ./scenarios/search.yaml
  nowhere run --db /tmp/n.db --blobs /tmp/blobs ./scenarios/search.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd.Context(), opts, args[0], cmd)
		},
	}

	return cmd
}

func runScenario(parent context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeScenario, "failed to load scenario", err)
	}

	ws, cerr := openWorkspace(opts.RootOptions, cmd.ErrOrStderr())
	if cerr != nil {
		return cerr.report(out)
	}
	defer ws.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws.logger.Info("scenario.start", "name", scenario.Name, "steps", len(scenario.Flow))
	result, err := harness.Execute(ctx, scenario, harness.Target{
		Ledger:   ws.store,
		Blobs:    ws.blobs,
		Sink:     ws.store.Evidence(),
		Registry: ws.registry,
		Actors:   actorOptions(ws.cfg),
		Logger:   ws.logger,
	})
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeScenario, "scenario could not run", err)
	}
	ws.logger.Info("scenario.done", "name", scenario.Name, "pass", result.Pass)

	if out.JSON() {
		if result.Pass {
			return out.Success(result)
		}
		if err := out.Result(result, ErrCodeScenarioFail, "scenario failed"); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "scenario failed")
	}

	w := out.Writer
	fmt.Fprintf(w, "Scenario: %s\n", scenario.Name)
	fmt.Fprintln(w)
	for _, e := range result.Trace {
		if e.Recorded() {
			fmt.Fprintf(w, "[%d] %s  %s %s  %s clock %d\n", e.Seq, e.Step, e.Actor, e.Kind, e.Outcome, e.Clock)
			out.VerboseLog("  %s: capsule %s", e.Step, e.Capsule)
			continue
		}
		fmt.Fprintf(w, "[%d] %s  %s %s  %s\n", e.Seq, e.Step, e.Actor, e.Kind, e.Outcome)
	}
	for _, r := range result.Replays {
		fmt.Fprintf(w, "replay %s: %s %s\n", r.Step, r.Report.Mode, r.Report.State)
	}
	fmt.Fprintln(w)

	if result.Pass {
		fmt.Fprintln(w, "✓ Scenario passed")
		return nil
	}
	fmt.Fprintln(w, "✗ Scenario failed")
	for _, msg := range result.Errors {
		fmt.Fprintf(w, "  %s\n", msg)
	}
	return NewExitError(ExitFailure, "scenario failed")
}
