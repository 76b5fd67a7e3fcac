package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// FileName is the database file created in a context working directory.
const FileName = ".checkpoints.db"

// ErrSchemaMismatch indicates a database written by an incompatible version.
var ErrSchemaMismatch = errors.New("checkpoint schema version mismatch")

// Store persists checkpoint fingerprints.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the checkpoint database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	dbPath := filepath.Join(dir, FileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has %d, expected %d (remove %s)", ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) load(ctx context.Context, label string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, digest FROM checkpoints WHERE label = ?", label)
	if err != nil {
		return nil, fmt.Errorf("query checkpoint %s: %w", label, err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var path, digest string
		if err := rows.Scan(&path, &digest); err != nil {
			return nil, fmt.Errorf("scan checkpoint %s: %w", label, err)
		}
		out[path] = digest
	}
	return out, rows.Err()
}

func (s *Store) save(ctx context.Context, label string, digests map[string]string, storedAt string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, "DELETE FROM checkpoints WHERE label = ?", label); err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", label, err)
	}
	for path, digest := range digests {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO checkpoints (label, path, digest, stored_at) VALUES (?, ?, ?, ?)",
			label, path, digest, storedAt,
		); err != nil {
			return fmt.Errorf("store checkpoint %s: %w", label, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", label, err)
	}
	return nil
}
