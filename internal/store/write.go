package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/ledger"
)

// Append records a sealed capsule.
//
// The seal is re-verified before touching the database. Inside one
// transaction the capsule is checked for a duplicate hash (AlreadyRecorded),
// a conflicting invocation, unknown parents and clock order, then inserted
// together with its parent edges. Nothing is written if any check fails.
func (s *Store) Append(ctx context.Context, c ir.Capsule) (ledger.AppendResult, error) {
	if err := ledger.VerifySeal(c); err != nil {
		return 0, err
	}
	body, err := ir.MarshalCapsule(c)
	if err != nil {
		return 0, fmt.Errorf("append capsule: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append capsule: begin: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT hash FROM capsules WHERE hash = ?`, string(c.Hash)).Scan(&existing)
	switch {
	case err == nil:
		return ledger.AlreadyRecorded, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("append capsule: lookup: %w", err)
	}

	err = tx.QueryRowContext(ctx, `SELECT hash FROM capsules WHERE invocation_id = ?`, c.InvocationID).Scan(&existing)
	switch {
	case err == nil:
		return 0, ledger.ErrInvocationConflict
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("append capsule: lookup invocation: %w", err)
	}

	err = ledger.CheckCausality(c, func(ref ir.CapsuleRef) (int64, bool, error) {
		var clock int64
		err := tx.QueryRowContext(ctx, `SELECT clock FROM capsules WHERE hash = ?`, string(ref)).Scan(&clock)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("append capsule: lookup parent: %w", err)
		}
		return clock, true, nil
	})
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO capsules (hash, actor_id, invocation_id, clock, blob_ref, body)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		string(c.Hash),
		c.ActorID,
		c.InvocationID,
		c.Clock,
		string(c.BlobRef),
		string(body),
	)
	if err != nil {
		return 0, fmt.Errorf("append capsule: insert: %w", err)
	}

	for _, p := range c.Parents {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO capsule_parents (capsule_hash, parent_hash) VALUES (?, ?)
		`, string(c.Hash), string(p))
		if err != nil {
			return 0, fmt.Errorf("append capsule: insert parent: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append capsule: commit: %w", err)
	}
	return ledger.Appended, nil
}
