package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/nowhere/internal/ir"
)

// DefaultRecoveryConcurrency bounds how many actors Recover works on at once.
const DefaultRecoveryConcurrency = 4

// RecoveryReport summarizes one Recover pass.
type RecoveryReport struct {
	Pending   int             `json:"pending"`
	Committed []ir.CapsuleRef `json:"committed"`
}

// Recover re-applies effects for every capsule the ledger holds without an
// effect commit: the capsules a crash interrupted between ledger append and
// effect commit.
//
// Capsules of one actor are committed sequentially in clock order (later
// observations of the same artifact must land last); different actors
// proceed concurrently. The first failure stops the pass; capsules not yet
// reached stay pending for the next one.
func (d *Dispatcher) Recover(ctx context.Context, concurrency int) (RecoveryReport, error) {
	pending, err := d.ledger.PendingEffects(ctx)
	if err != nil {
		return RecoveryReport{}, fmt.Errorf("recover: %w", err)
	}
	report := RecoveryReport{Pending: len(pending), Committed: []ir.CapsuleRef{}}
	if len(pending) == 0 {
		return report, nil
	}

	var (
		order   []string
		byActor = make(map[string][]ir.Capsule)
	)
	for _, ref := range pending {
		c, ok, err := d.ledger.Get(ctx, ref)
		if err != nil {
			return report, fmt.Errorf("recover: load %s: %w", ref, err)
		}
		if !ok {
			continue
		}
		if _, seen := byActor[c.ActorID]; !seen {
			order = append(order, c.ActorID)
		}
		byActor[c.ActorID] = append(byActor[c.ActorID], c)
	}

	if concurrency <= 0 {
		concurrency = DefaultRecoveryConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	done := make([][]ir.CapsuleRef, len(order))
	for i, actor := range order {
		g.Go(func() error {
			for _, c := range byActor[actor] {
				if err := d.Commit(gctx, c.Hash, c.Effects); err != nil {
					return fmt.Errorf("recover %s: %w", c.Hash, err)
				}
				done[i] = append(done[i], c.Hash)
			}
			return nil
		})
	}
	err = g.Wait()
	for _, refs := range done {
		report.Committed = append(report.Committed, refs...)
	}
	d.logger.Info("dispatch.recovered", "pending", report.Pending, "committed", len(report.Committed))
	return report, err
}
