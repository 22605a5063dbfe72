package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nowhere/internal/engine"
	"github.com/roach88/nowhere/internal/ir"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Capsule    string
	Actor      string
	Invocation string
	Mode       string // empty means replay.mode from the config
}

// ReplayResult holds the reports of one replay run.
type ReplayResult struct {
	Reports  []engine.ReplayReport `json:"reports"`
	Verified int                   `json:"verified"`
	Diverged int                   `json:"diverged"`
	Failed   int                   `json:"failed"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-verify recorded capsules from their blobs",
		Long: `Re-run the projection and effect derivation of recorded capsules from the
raw responses in the blob store, and check every hash against the ledger.

Select one capsule with --capsule, one invocation with --actor and
--invocation, or every capsule of an actor with --actor alone.

Modes:
  dry    - compare expected effect post-states with the evidence store (default)
  shadow - apply effects twice to a scratch store and check they converge
  live   - re-apply effects to the evidence store

Diverged capsules are flagged in the ledger; their effects are never
committed again.

Exit codes:
  0 - All capsules verified
  1 - At least one capsule diverged
  2 - Command error, or a replay could not run (blob missing)

Examples:
  nowhere replay --capsule 3f2a...
  nowhere replay --actor search:brave --invocation 0190...
  nowhere replay --actor search:brave --mode shadow --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Capsule, "capsule", "", "capsule hash to replay")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "actor whose capsules to replay")
	cmd.Flags().StringVar(&opts.Invocation, "invocation", "", "invocation id (requires --actor)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "replay mode (dry|shadow|live)")
	cmd.MarkFlagsMutuallyExclusive("capsule", "actor")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	switch {
	case opts.Capsule == "" && opts.Actor == "":
		return out.Fail(ExitCommandError, ErrCodeUsage, "one of --capsule or --actor is required", nil)
	case opts.Invocation != "" && opts.Actor == "":
		return out.Fail(ExitCommandError, ErrCodeUsage, "--invocation requires --actor", nil)
	}

	ws, cerr := openWorkspace(opts.RootOptions, cmd.ErrOrStderr())
	if cerr != nil {
		return cerr.report(out)
	}
	defer ws.Close()

	modeName := opts.Mode
	if modeName == "" {
		modeName = ws.cfg.Replay.Mode
	}
	mode, err := engine.ParseReplayMode(modeName)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeUsage, "invalid replay mode", err)
	}

	v := ws.verifier()
	var reports []engine.ReplayReport
	switch {
	case opts.Capsule != "":
		r, err := v.VerifyCapsule(ctx, ir.CapsuleRef(opts.Capsule), mode)
		if err != nil {
			return replayError(out, err)
		}
		reports = append(reports, r)
	case opts.Invocation != "":
		r, err := v.VerifyInvocation(ctx, opts.Actor, opts.Invocation, mode)
		if err != nil {
			return replayError(out, err)
		}
		reports = append(reports, r)
	default:
		var refs []ir.CapsuleRef
		for c, err := range ws.store.ListByActor(ctx, opts.Actor) {
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeStore, "failed to list capsules", err)
			}
			refs = append(refs, c.Hash)
		}
		for _, ref := range refs {
			out.VerboseLog("replaying %s", ref)
			r, err := v.VerifyCapsule(ctx, ref, mode)
			if err != nil {
				return replayError(out, err)
			}
			reports = append(reports, r)
		}
	}

	return outputReplay(out, summarize(reports))
}

func replayError(out *OutputFormatter, err error) error {
	if errors.Is(err, engine.ErrCapsuleNotFound) {
		return out.Fail(ExitCommandError, ErrCodeNotFound, "capsule not found", err)
	}
	return out.Fail(ExitCommandError, ErrCodeGeneric, "replay failed", err)
}

func summarize(reports []engine.ReplayReport) ReplayResult {
	result := ReplayResult{Reports: reports}
	if result.Reports == nil {
		result.Reports = []engine.ReplayReport{}
	}
	for _, r := range reports {
		switch r.State {
		case engine.StateVerified:
			result.Verified++
		case engine.StateDiverged:
			result.Diverged++
		case engine.StateFailed:
			result.Failed++
		}
	}
	return result
}

// verdict maps a replay result to its exit error. A replay that could not
// run outranks a divergence.
func (r ReplayResult) verdict() (code string, err error) {
	switch {
	case r.Failed > 0:
		return ErrCodeReplayFailed, NewExitError(ExitCommandError, fmt.Sprintf("%d replay(s) could not run", r.Failed))
	case r.Diverged > 0:
		return ErrCodeDiverged, NewExitError(ExitFailure, fmt.Sprintf("%d capsule(s) diverged", r.Diverged))
	default:
		return "", nil
	}
}

func outputReplay(out *OutputFormatter, result ReplayResult) error {
	code, verdict := result.verdict()

	if out.JSON() {
		if verdict == nil {
			return out.Success(result)
		}
		if err := out.Result(result, code, verdict.Error()); err != nil {
			return err
		}
		return verdict
	}

	w := out.Writer
	fmt.Fprintf(w, "Replay Summary: %d capsule(s)\n", len(result.Reports))
	fmt.Fprintln(w)
	for _, r := range result.Reports {
		status := "✓"
		if r.State != engine.StateVerified {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s  %s clock %d  [%s] %s\n", status, r.Capsule, r.ActorID, r.Clock, r.Mode, r.State)
		if r.Reason != "" {
			line := "  Reason: " + string(r.Reason)
			if len(r.Fields) > 0 {
				line += " (" + strings.Join(r.Fields, ", ") + ")"
			}
			fmt.Fprintln(w, line)
		}
		if r.Detail != "" && out.Verbose {
			fmt.Fprintf(w, "  Detail: %s\n", r.Detail)
		}
	}
	fmt.Fprintln(w)

	if verdict == nil {
		fmt.Fprintln(w, "✓ All capsules verified")
		return nil
	}
	fmt.Fprintf(w, "✗ %s\n", verdict.Error())
	return verdict
}
