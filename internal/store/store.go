// Package store provides SQLite-backed persistence for category mappings
// and store embeddings.
//
// The database is a single file opened with WAL journaling. Both stores
// share one connection pool; batch writes run inside a single transaction
// so a bulk classification round is applied atomically.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord indicates a record that failed validation before write.
	ErrInvalidRecord = errors.New("invalid record")
)

// DB wraps the shared SQLite handle behind the mapping and embedding stores.
type DB struct {
	conn   *sql.DB
	logger *zap.Logger
	path   string
}

// Open opens or creates the classifier database at path. The parent
// directory is created if missing.
func Open(path string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	db := &DB{conn: conn, logger: logger, path: path}
	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	logger.Info("classifier database opened", zap.String("path", path))
	return db, nil
}

// initSchema creates the tables if they do not exist.
func (db *DB) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS category_mappings (
			name       TEXT PRIMARY KEY,
			category   TEXT NOT NULL,
			source     TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS store_embeddings (
			name        TEXT PRIMARY KEY,
			category    TEXT NOT NULL,
			vector      BLOB NOT NULL,
			source      TEXT NOT NULL,
			confidence  REAL NOT NULL DEFAULT 1.0,
			match_count INTEGER NOT NULL DEFAULT 0,
			updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_store_embeddings_confidence
			ON store_embeddings(confidence);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Mappings returns the mapping store view over this database.
func (db *DB) Mappings() *MappingStore {
	return &MappingStore{db: db}
}

// Embeddings returns the embedding store view over this database.
func (db *DB) Embeddings() *EmbeddingStore {
	return &EmbeddingStore{db: db}
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}
