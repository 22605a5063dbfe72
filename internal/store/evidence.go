package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nowhere/internal/evidence"
	"github.com/roach88/nowhere/internal/ir"
)

// EvidenceStore is the durable evidence.Store. It shares the ledger's
// database so effect rows and journal rows live in one file.
type EvidenceStore struct {
	db *sql.DB
}

var _ evidence.Store = (*EvidenceStore)(nil)

// Apply upserts the effect payload under (kind, key).
func (e *EvidenceStore) Apply(ctx context.Context, eff ir.Effect) error {
	payload := eff.Payload
	if payload == nil {
		payload = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return fmt.Errorf("apply effect %s/%s: %w", eff.Kind, eff.Key, err)
	}
	_, err = e.db.ExecContext(ctx, `
		INSERT INTO evidence (kind, key, payload) VALUES (?, ?, ?)
		ON CONFLICT(kind, key) DO UPDATE SET payload = excluded.payload
	`, eff.Kind, eff.Key, string(data))
	if err != nil {
		return fmt.Errorf("apply effect %s/%s: %w", eff.Kind, eff.Key, err)
	}
	return nil
}

// Lookup returns the current payload under (kind, key).
func (e *EvidenceStore) Lookup(ctx context.Context, kind, key string) (ir.IRObject, bool, error) {
	var data string
	err := e.db.QueryRowContext(ctx, `SELECT payload FROM evidence WHERE kind = ? AND key = ?`, kind, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup evidence %s/%s: %w", kind, key, err)
	}
	var obj ir.IRObject
	if err := obj.UnmarshalJSON([]byte(data)); err != nil {
		return nil, false, fmt.Errorf("decode evidence %s/%s: %w", kind, key, err)
	}
	return obj, true, nil
}

// Count returns the number of evidence rows.
func (e *EvidenceStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM evidence`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count evidence: %w", err)
	}
	return n, nil
}
