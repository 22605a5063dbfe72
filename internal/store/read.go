package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/nowhere/internal/ir"
)

// Get retrieves a capsule by hash.
func (s *Store) Get(ctx context.Context, ref ir.CapsuleRef) (ir.Capsule, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM capsules WHERE hash = ?`, string(ref))
	return scanCapsuleRow(row)
}

// GetByInvocation retrieves a capsule by invocation ID.
func (s *Store) GetByInvocation(ctx context.Context, invocationID string) (ir.Capsule, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM capsules WHERE invocation_id = ?`, invocationID)
	return scanCapsuleRow(row)
}

// ListByActor yields an actor's capsules in clock order.
//
// Rows are fully read before the first yield: the store runs on a single
// connection, and a consumer calling back into the store mid-iteration would
// otherwise block on it.
func (s *Store) ListByActor(ctx context.Context, actorID string) iter.Seq2[ir.Capsule, error] {
	return func(yield func(ir.Capsule, error) bool) {
		capsules, err := s.readActor(ctx, actorID)
		if err != nil {
			yield(ir.Capsule{}, err)
			return
		}
		for _, c := range capsules {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (s *Store) readActor(ctx context.Context, actorID string) ([]ir.Capsule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body
		FROM capsules
		WHERE actor_id = ?
		ORDER BY clock ASC, hash COLLATE BINARY ASC
	`, actorID)
	if err != nil {
		return nil, fmt.Errorf("query capsules: %w", err)
	}
	defer rows.Close()

	var capsules []ir.Capsule
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan capsule: %w", err)
		}
		c, err := ir.UnmarshalCapsule([]byte(body))
		if err != nil {
			return nil, err
		}
		capsules = append(capsules, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capsules: %w", err)
	}
	return capsules, nil
}

// MaxClock returns the highest recorded clock, or 0 for an empty ledger.
func (s *Store) MaxClock(ctx context.Context) (int64, error) {
	var clock sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(clock) FROM capsules`).Scan(&clock); err != nil {
		return 0, fmt.Errorf("max clock: %w", err)
	}
	return clock.Int64, nil
}

// Parents returns the recorded parent edges of ref in hash order.
func (s *Store) Parents(ctx context.Context, ref ir.CapsuleRef) ([]ir.CapsuleRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT parent_hash FROM capsule_parents
		WHERE capsule_hash = ?
		ORDER BY parent_hash COLLATE BINARY ASC
	`, string(ref))
	if err != nil {
		return nil, fmt.Errorf("query parents: %w", err)
	}
	defer rows.Close()

	parents := []ir.CapsuleRef{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan parent: %w", err)
		}
		parents = append(parents, ir.CapsuleRef(p))
	}
	return parents, rows.Err()
}

func scanCapsuleRow(row *sql.Row) (ir.Capsule, bool, error) {
	var body string
	err := row.Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Capsule{}, false, nil
	}
	if err != nil {
		return ir.Capsule{}, false, fmt.Errorf("scan capsule: %w", err)
	}
	c, err := ir.UnmarshalCapsule([]byte(body))
	if err != nil {
		return ir.Capsule{}, false, err
	}
	return c, true, nil
}
