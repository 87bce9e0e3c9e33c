// Package store provides the embedded SQLite record store for asccrash.
//
// The store holds two tables:
//   - sources: monitored applications keyed by bundle id
//   - submissions: crash reports and screenshot feedback, keyed by (kind, submission_id)
//
// Deduplication relies solely on the UNIQUE(kind, submission_id) constraint:
// re-inserting a known submission is a no-op and reports inserted=false.
// Rows are never deleted. After insert only the artifact columns and the
// review columns change.
//
// Every mutation is a single SQL statement, so each call is atomic. The
// connection pool is limited to one connection, which serialises writers.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/asccrash/asccrash/internal/model"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - initial sources/submissions schema
// 2 - partial index over submissions still missing an artifact
const currentSchemaVersion = 2

var (
	// ErrNotFound is returned when a submission does not exist or belongs to the other kind.
	ErrNotFound = errors.New("submission not found")
	// ErrInvalidStatus is returned by SetStatus for unknown statuses and for
	// "duplicate", which is only reachable through MarkDuplicate.
	ErrInvalidStatus = errors.New("invalid status")
)

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the database at path, applying pragmas and migrations.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(filepath.Join(dataDir, "crashes.db"))
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite allows one writer at a time.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := applyPragmas(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

func applyPragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(conn *sql.DB) error {
	if _, err := conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 2 {
		if err := migrateToV2(conn); err != nil {
			return err
		}
	}

	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV2 adds the missing-artifact index for databases created at v1.
func migrateToV2(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_submissions_missing
		ON submissions(kind, source_id) WHERE has_artifact = 0
	`)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// UpsertSource inserts a source or fills in its remote id and name.
//
// On conflict by bundle id a supplied non-null value replaces the stored one;
// a null never erases a known value. Returns the stable local id.
func (s *Store) UpsertSource(ctx context.Context, bundleID string, remoteID, name *string) (int64, error) {
	if bundleID == "" {
		return 0, fmt.Errorf("bundle id is required")
	}

	query := `
	INSERT INTO sources (bundle_id, remote_id, name)
	VALUES (?, ?, ?)
	ON CONFLICT(bundle_id) DO UPDATE SET
		remote_id = COALESCE(excluded.remote_id, remote_id),
		name = COALESCE(excluded.name, name)
	`
	if _, err := s.conn.ExecContext(ctx, query, bundleID, stringToNull(remoteID), stringToNull(name)); err != nil {
		return 0, fmt.Errorf("failed to upsert source %s: %w", bundleID, err)
	}

	var id int64
	if err := s.conn.QueryRowContext(ctx, `SELECT id FROM sources WHERE bundle_id = ?`, bundleID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read source id for %s: %w", bundleID, err)
	}
	return id, nil
}

// ListSources returns every known source ordered by bundle id.
func (s *Store) ListSources(ctx context.Context) ([]*model.Source, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, remote_id, bundle_id, name FROM sources ORDER BY bundle_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*model.Source
	for rows.Next() {
		var src model.Source
		var remoteID, name sql.NullString
		if err := rows.Scan(&src.ID, &remoteID, &src.BundleID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		src.RemoteID = nullToString(remoteID)
		src.Name = nullToString(name)
		sources = append(sources, &src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sources: %w", err)
	}
	return sources, nil
}
