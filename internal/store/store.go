package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/nowhere/internal/ir"
	"github.com/roach88/nowhere/internal/ledger"
)

//go:embed schema.sql
var schemaSQL string

// ErrFormatMismatch is returned by Open for a ledger written under another
// capsule format. Its hashes cannot be recomputed by this engine.
var ErrFormatMismatch = errors.New("ledger format mismatch")

// ledgerFormat is ir.FormatVersion as stored in PRAGMA user_version.
var ledgerFormat = mustFormat(ir.FormatVersion)

func mustFormat(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		panic(fmt.Sprintf("store: format version %q is not a positive integer", v))
	}
	return n
}

// Store is the durable ledger.Ledger. All access goes through one SQLite
// connection in WAL mode.
type Store struct {
	db *sql.DB
}

var _ ledger.Ledger = (*Store)(nil)

// Open creates or opens the ledger database at path.
//
// The connection runs with:
//   - WAL journal
//   - synchronous=FULL, so a returned Append survives power loss
//   - 5-second busy timeout
//   - foreign keys enforced
//
// A new database is stamped with the current capsule format; an existing one
// must carry the same stamp, otherwise Open fails with ErrFormatMismatch.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: appends, journal updates and evidence upserts are
	// serialized by SQLite's single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := checkFormat(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Evidence returns the evidence sink sharing this database.
func (s *Store) Evidence() *EvidenceStore {
	return &EvidenceStore{db: s.db}
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// checkFormat stamps a fresh database (user_version 0) with ledgerFormat and
// rejects any other stamp.
func checkFormat(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	switch version {
	case ledgerFormat:
		return nil
	case 0:
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", ledgerFormat)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: database has format %d, engine writes format %d", ErrFormatMismatch, version, ledgerFormat)
	}
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
