// Package store provides the SQLite-backed persistence layer: player state,
// the script registry, and the execution audit log share one database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Pure-Go SQLite driver for database/sql.
	_ "github.com/glebarez/sqlite"
)

// Store owns the database handle. The typed accessors below share it.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at {dataDir}/cloudscript.sqlite3.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "cloudscript.sqlite3")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Enable WAL mode for better concurrent access.
	_, _ = db.Exec("PRAGMA journal_mode=WAL")
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory creates an in-memory store for testing.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	// The in-memory database lives in a single connection; a second
	// connection would see an empty schema.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Players returns the player-state store backed by this database.
func (s *Store) Players() *PlayerStore { return &PlayerStore{db: s.db} }

// Scripts returns the script registry backed by this database.
func (s *Store) Scripts() *ScriptRegistry { return &ScriptRegistry{db: s.db} }

// Audit returns the execution audit log backed by this database.
func (s *Store) Audit() *AuditLog { return &AuditLog{db: s.db} }

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS player_profiles (
			title_id     TEXT NOT NULL,
			player_id    TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			level        INTEGER NOT NULL DEFAULT 0,
			experience   INTEGER NOT NULL DEFAULT 0,
			data_json    TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (title_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS player_statistics (
			title_id  TEXT NOT NULL,
			player_id TEXT NOT NULL,
			name      TEXT NOT NULL,
			value     REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (title_id, player_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS player_currencies (
			title_id  TEXT NOT NULL,
			player_id TEXT NOT NULL,
			code      TEXT NOT NULL,
			balance   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (title_id, player_id, code)
		)`,
		`CREATE TABLE IF NOT EXISTS player_inventory (
			instance_id     TEXT PRIMARY KEY,
			title_id        TEXT NOT NULL,
			player_id       TEXT NOT NULL,
			item_id         TEXT NOT NULL,
			catalog_version INTEGER NOT NULL DEFAULT 0,
			granted_at      TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_player
			ON player_inventory (title_id, player_id)`,
		`CREATE TABLE IF NOT EXISTS scripts (
			title_id        TEXT NOT NULL,
			function_name   TEXT NOT NULL,
			version         INTEGER NOT NULL,
			source          TEXT NOT NULL,
			published       INTEGER NOT NULL DEFAULT 0,
			timeout_seconds INTEGER NOT NULL DEFAULT 0,
			memory_limit_mb INTEGER NOT NULL DEFAULT 0,
			created_at      TIMESTAMP NOT NULL,
			PRIMARY KEY (title_id, function_name, version)
		)`,
		`CREATE TABLE IF NOT EXISTS execution_records (
			id                TEXT PRIMARY KEY,
			title_id          TEXT NOT NULL,
			function_name     TEXT NOT NULL,
			player_id         TEXT NOT NULL DEFAULT '',
			args_json         TEXT NOT NULL DEFAULT '',
			result_json       TEXT NOT NULL DEFAULT '',
			error             TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0,
			created_at        TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exec_title
			ON execution_records (title_id, created_at)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
