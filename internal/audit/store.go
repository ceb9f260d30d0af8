package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	uid        INTEGER NOT NULL,
	package    TEXT    NOT NULL,
	level      INTEGER NOT NULL,
	previous   INTEGER NOT NULL,
	reason     INTEGER NOT NULL,
	changed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS transitions_key ON transitions (uid, package, id);
`

// Record is one stored level change
type Record struct {
	ID       int64                  `json:"id"`
	UID      int                    `json:"uid"`
	Package  string                 `json:"package"`
	Level    types.RestrictionLevel `json:"level"`
	Previous types.RestrictionLevel `json:"previous"`
	Reason   types.Reason           `json:"reason"`
	At       time.Time              `json:"at"`
}

// Store persists level changes in SQLite
type Store struct {
	db *sql.DB
}

// Open opens the database at path with WAL journaling and a busy timeout,
// and creates the schema
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite %s: %w", path, err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes changes in one transaction
func (s *Store) Insert(ctx context.Context, changes []restriction.LevelChange) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transitions (uid, package, level, previous, reason, changed_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range changes {
		if _, err := stmt.ExecContext(ctx, c.UID, c.Package, int(c.Level), int(c.Previous), int(c.Reason), c.At.UnixNano()); err != nil {
			return fmt.Errorf("insert %s/%d: %w", c.Package, c.UID, err)
		}
	}
	return tx.Commit()
}

// History returns the newest changes of one package, newest first
func (s *Store) History(ctx context.Context, uid int, pkg string, limit int) ([]Record, error) {
	return s.query(ctx,
		`SELECT id, uid, package, level, previous, reason, changed_at FROM transitions
		 WHERE uid = ? AND package = ? ORDER BY id DESC LIMIT ?`,
		uid, pkg, limit)
}

// Recent returns the newest changes across all packages, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx,
		`SELECT id, uid, package, level, previous, reason, changed_at FROM transitions
		 ORDER BY id DESC LIMIT ?`,
		limit)
}

// Count returns the number of stored changes
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transitions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                       Record
			level, previous, reason int
			at                      int64
		)
		if err := rows.Scan(&r.ID, &r.UID, &r.Package, &level, &previous, &reason, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		r.Level = types.RestrictionLevel(level)
		r.Previous = types.RestrictionLevel(previous)
		r.Reason = types.Reason(reason)
		r.At = time.Unix(0, at)
		out = append(out, r)
	}
	return out, rows.Err()
}
