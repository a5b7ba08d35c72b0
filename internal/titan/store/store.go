// Package store is TITAN's memory store: a versioned relational record of
// goals, traces, plans, steps, approvals, tool runs, sessions, messages,
// installed skills, connectors, and the risk-mode singleton.
//
// Every write is synchronous and durable. persist_run_bundle is the one
// operation that must span several tables atomically; everything else is a
// single statement or a short read-modify-write guarded by SQL itself
// (e.g. the approvals.resolve UPDATE ... WHERE status = 'pending').
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite connection and exposes every memory-store
// operation named in the core's data model.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (or creates) the SQLite database at dbPath and applies every
// pending migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: set pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: dbPath}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}
	return s, nil
}

// DB returns the raw *sql.DB for ad-hoc queries (used by the httpapi status
// endpoint and by tests).
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// runMigrations applies any embedded migration not yet recorded in
// schema_migrations. Duplicate-column/exists errors are not specially
// tolerated here because every migration statement already uses
// CREATE TABLE/INDEX IF NOT EXISTS, which makes re-application a no-op —
// the same idempotence the teacher's migration ladder achieves by
// tolerating those errors directly.
func (s *Store) runMigrations() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	_ = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		description := strings.TrimSuffix(parts[1], ".sql")

		content, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", e.Name(), err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			version, description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", e.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", e.Name(), err)
		}
		slog.Info("store: applied migration", "version", version, "description", description)
	}
	return nil
}

// Backup copies the database file to dst. It is a plain file-level snapshot
// — callers should quiesce writers or accept WAL-consistent-but-slightly-stale
// output, matching the teacher's own "file copy" backup model.
func (s *Store) Backup(dst string) error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("store: checkpoint before backup: %w", err)
	}
	src, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("store: open source for backup: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("store: create backup dst: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("store: copy backup: %w", err)
	}
	return nil
}

// Restore atomically replaces the database at dbPath with the snapshot at
// backupPath and re-runs migrations, returning a fresh *Store handle. The
// caller must have closed any existing Store for dbPath first.
func Restore(backupPath, dbPath string) (*Store, error) {
	src, err := os.Open(backupPath)
	if err != nil {
		return nil, fmt.Errorf("store: open backup: %w", err)
	}
	defer src.Close()

	tmp := dbPath + ".restoring"
	out, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("store: create restore target: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("store: copy restore: %w", err)
	}
	out.Close()

	if err := os.Rename(tmp, dbPath); err != nil {
		return nil, fmt.Errorf("store: replace database: %w", err)
	}

	return New(dbPath)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
