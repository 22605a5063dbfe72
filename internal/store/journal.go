package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/ledger"
)

// MarkEffectsCommitted records that every effect of ref was applied.
// Idempotent.
func (s *Store) MarkEffectsCommitted(ctx context.Context, ref ir.CapsuleRef) error {
	if err := s.requireCapsule(ctx, ref); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO effect_commits (capsule_hash) VALUES (?)
		ON CONFLICT(capsule_hash) DO NOTHING
	`, string(ref))
	if err != nil {
		return fmt.Errorf("mark effects committed: %w", err)
	}
	return nil
}

// EffectsCommitted reports whether ref's effects were marked committed.
func (s *Store) EffectsCommitted(ctx context.Context, ref ir.CapsuleRef) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM effect_commits WHERE capsule_hash = ?`, string(ref)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("effects committed: %w", err)
	}
	return n > 0, nil
}

// PendingEffects lists unflagged capsules with no effect commit, in clock
// order. These are the capsules a crash interrupted between ledger append
// and effect commit.
func (s *Store) PendingEffects(ctx context.Context) ([]ir.CapsuleRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.hash
		FROM capsules c
		LEFT JOIN effect_commits e ON e.capsule_hash = c.hash
		LEFT JOIN capsule_flags f ON f.capsule_hash = c.hash
		WHERE e.capsule_hash IS NULL AND f.capsule_hash IS NULL
		ORDER BY c.clock ASC, c.hash COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("pending effects: %w", err)
	}
	defer rows.Close()

	refs := []ir.CapsuleRef{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("pending effects: scan: %w", err)
		}
		refs = append(refs, ir.CapsuleRef(h))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending effects: iterate: %w", err)
	}
	return refs, nil
}

// Flag marks ref as divergent. The first reason recorded wins.
func (s *Store) Flag(ctx context.Context, ref ir.CapsuleRef, reason string) error {
	if err := s.requireCapsule(ctx, ref); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO capsule_flags (capsule_hash, reason) VALUES (?, ?)
		ON CONFLICT(capsule_hash) DO NOTHING
	`, string(ref), reason)
	if err != nil {
		return fmt.Errorf("flag capsule: %w", err)
	}
	return nil
}

// Flagged returns the recorded flag reason for ref, if any.
func (s *Store) Flagged(ctx context.Context, ref ir.CapsuleRef) (string, bool, error) {
	var reason string
	err := s.db.QueryRowContext(ctx, `SELECT reason FROM capsule_flags WHERE capsule_hash = ?`, string(ref)).Scan(&reason)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("flagged: %w", err)
	}
	return reason, true, nil
}

func (s *Store) requireCapsule(ctx context.Context, ref ir.CapsuleRef) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM capsules WHERE hash = ?`, string(ref)).Scan(&n); err != nil {
		return fmt.Errorf("lookup capsule: %w", err)
	}
	if n == 0 {
		return ledger.ErrUnknownCapsule
	}
	return nil
}
