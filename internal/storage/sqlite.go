package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection.
type DB struct {
	conn    *sql.DB
	dataDir string // root directory for layout draft files
}

// New creates a new DB, opening (or creating) the SQLite file at dbPath.
// dataDir is the root directory where layout draft files are watched.
func New(dbPath, dataDir string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer — limit to single connection to prevent SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, dataDir: dataDir}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DataDir returns the root data directory.
func (db *DB) DataDir() string {
	return db.dataDir
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) migrate() error {
	migrations := []string{
		// Versioned store layouts; layout_json holds the positional map format
		`CREATE TABLE IF NOT EXISTS store_layouts (
			store_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 0,
			layout_json TEXT NOT NULL DEFAULT '{}',
			author TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		// Durable backup archive behind the in-process ring
		`CREATE TABLE IF NOT EXISTS layout_backups (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			blocks_json TEXT NOT NULL DEFAULT '[]',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_layout_backups_store ON layout_backups(store_id)`,
		// Editor heartbeats per store layout
		`CREATE TABLE IF NOT EXISTS editor_presence (
			store_id TEXT NOT NULL,
			editor_id TEXT NOT NULL,
			last_activity DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (store_id, editor_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			// ALTER TABLE fails if column already exists — safe to ignore
			if strings.Contains(m, "ALTER TABLE") && strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %s: %w", m[:40], err)
		}
	}

	return nil
}
