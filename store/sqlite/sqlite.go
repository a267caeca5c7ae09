/*
Package sqlite provides a SQLite-backed implementation of the local storage
interfaces.

PURPOSE:
  The approvals backend owns every request, user and approver. What the desk
  persists locally is small: lockout counters and admin sessions (key-value
  with expiry) and the journal of actions it dispatched.

INTERFACES IMPLEMENTED:
  approval.KV:      Expiring key-value state
  approval.Purger:  Explicit removal of expired keys
  approval.Journal: Action journal

APPEND-ONLY ENFORCEMENT:
  The actions table is append-only:
  - No UPDATE statements on actions
  - No DELETE statements on actions

KEY TABLES:
  kv:      key, value, expires_at (unix nanoseconds, NULL = never)
  actions: one row per dispatched approve/reject attempt

EXPIRY:
  Expired keys are invisible to Get immediately. They are physically removed
  by PurgeExpired, which the API's sweeper calls periodically.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

USAGE:
  store, err := sqlite.New("./data/approvals.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/approval-desk/approval"
)

// timeLayout is fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the local storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, Now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Expiring key-value state (lockout counters, admin sessions)
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_kv_expires_at
		ON kv(expires_at) WHERE expires_at IS NOT NULL;

	-- Action journal (append-only)
	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		request_id INTEGER NOT NULL,
		actor_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		level INTEGER NOT NULL,
		designation INTEGER NOT NULL,
		text TEXT,
		outcome TEXT NOT NULL,
		error TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actions_request
		ON actions(request_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// =============================================================================
// KEY-VALUE (approval.KV interface)
// =============================================================================

// Get returns approval.ErrKeyNotFound for missing or expired keys.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		value     []byte
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM kv WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	if expiresAt.Valid && s.now().UnixNano() >= expiresAt.Int64 {
		return nil, approval.ErrKeyNotFound
	}
	return value, nil
}

// Set stores value under key. A ttl <= 0 never expires.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(ttl).UnixNano(), Valid: true}
	}

	query := `
		INSERT INTO kv (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value, expiresAt, now.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// PurgeExpired removes expired keys and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?",
		s.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired keys: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// =============================================================================
// JOURNAL (approval.Journal interface)
// =============================================================================

// Record appends an action record.
func (s *Store) Record(ctx context.Context, rec approval.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	query := `
		INSERT INTO actions
		(id, request_id, actor_id, action, level, designation, text, outcome, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.ActorID,
		rec.Action,
		rec.Level,
		rec.Designation,
		nullString(rec.Text),
		rec.Outcome,
		nullString(rec.Error),
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return approval.ErrDuplicateRecord
		}
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// ListByRequest returns a request's actions, oldest first.
func (s *Store) ListByRequest(ctx context.Context, id approval.RequestID) ([]approval.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, request_id, actor_id, action, level, designation, text, outcome, error, created_at
		FROM actions
		WHERE request_id = ?
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var records []approval.ActionRecord
	for rows.Next() {
		rec, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanAction(rows *sql.Rows) (approval.ActionRecord, error) {
	var (
		rec       approval.ActionRecord
		text      sql.NullString
		errText   sql.NullString
		createdAt string
	)

	err := rows.Scan(
		&rec.ID, &rec.RequestID, &rec.ActorID, &rec.Action,
		&rec.Level, &rec.Designation, &text, &rec.Outcome, &errText, &createdAt,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan action: %w", err)
	}

	rec.Text = text.String
	rec.Error = errText.String
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return rec, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
