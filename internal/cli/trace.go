package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nowhere/internal/ir"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Actor string
}

// TraceEntry is one capsule in an actor's timeline.
type TraceEntry struct {
	Clock        int64           `json:"clock"`
	Capsule      ir.CapsuleRef   `json:"capsule"`
	InvocationID string          `json:"invocation_id"`
	Kind         string          `json:"kind"`
	Parents      []ir.CapsuleRef `json:"parents"`
	Items        int             `json:"items"`
	Effects      int             `json:"effects"`
	Attempts     int             `json:"attempts"`
	Committed    bool            `json:"committed"`
	Flagged      string          `json:"flagged,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Actor    string       `json:"actor"`
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Total     int `json:"total"`
	Committed int `json:"committed"`
	Pending   int `json:"pending"`
	Flagged   int `json:"flagged"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show an actor's capsules in clock order",
		Long: `List every capsule recorded for one actor in logical clock order, with
its parents and the state of its effect commit.

A capsule is committed once its effects reached the evidence store,
pending while they have not, and flagged once a replay found it divergent.

Examples:
  nowhere trace --actor search:brave
  nowhere trace --actor feed:go --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", "", "actor id (required)")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ws, cerr := openWorkspace(opts.RootOptions, cmd.ErrOrStderr())
	if cerr != nil {
		return cerr.report(out)
	}
	defer ws.Close()

	result := TraceResult{Actor: opts.Actor, Timeline: []TraceEntry{}}
	for c, err := range ws.store.ListByActor(ctx, opts.Actor) {
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeStore, "failed to list capsules", err)
		}
		entry := TraceEntry{
			Clock:        c.Clock,
			Capsule:      c.Hash,
			InvocationID: c.InvocationID,
			Kind:         c.Request.Kind,
			Parents:      c.Parents,
			Items:        len(c.Digest.Items),
			Effects:      len(c.Effects),
			Attempts:     c.Telemetry.Attempts,
		}
		if entry.Parents == nil {
			entry.Parents = []ir.CapsuleRef{}
		}
		if entry.Committed, err = ws.store.EffectsCommitted(ctx, c.Hash); err != nil {
			return out.Fail(ExitCommandError, ErrCodeStore, "failed to read effect journal", err)
		}
		reason, flagged, err := ws.store.Flagged(ctx, c.Hash)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeStore, "failed to read flags", err)
		}
		if flagged {
			entry.Flagged = reason
			result.Stats.Flagged++
		}
		if entry.Committed {
			result.Stats.Committed++
		} else if !flagged {
			result.Stats.Pending++
		}
		result.Timeline = append(result.Timeline, entry)
	}
	result.Stats.Total = len(result.Timeline)

	if out.JSON() {
		return out.Success(result)
	}
	outputTraceText(out, result)
	return nil
}

func outputTraceText(out *OutputFormatter, result TraceResult) {
	w := out.Writer
	if len(result.Timeline) == 0 {
		fmt.Fprintf(w, "No capsules recorded for %s.\n", result.Actor)
		return
	}

	fmt.Fprintf(w, "Trace: %s\n", result.Actor)
	fmt.Fprintln(w)
	for _, e := range result.Timeline {
		status := "committed"
		switch {
		case e.Flagged != "":
			status = "flagged: " + e.Flagged
		case !e.Committed:
			status = "pending"
		}
		fmt.Fprintf(w, "[%d] %s %s  %d item(s), %d effect(s)  %s\n", e.Clock, e.Capsule, e.Kind, e.Items, e.Effects, status)
		if out.Verbose {
			fmt.Fprintf(w, "  Invocation: %s\n", e.InvocationID)
			fmt.Fprintf(w, "  Attempts: %d\n", e.Attempts)
			for _, p := range e.Parents {
				fmt.Fprintf(w, "  Parent: %s\n", p)
			}
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d total, %d committed, %d pending, %d flagged\n",
		result.Stats.Total, result.Stats.Committed, result.Stats.Pending, result.Stats.Flagged)
}
