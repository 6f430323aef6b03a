// Package index provides the SQLite-backed document index and the engine that
// keeps it in step with the notebook source tree.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

// logical_path is indexed but deliberately not UNIQUE: two racing first-time
// syncs can leave a transient duplicate, which SyncOne purges on next access.
const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	system_path      TEXT    NOT NULL,
	logical_path     TEXT    NOT NULL,
	logical_dir      TEXT    NOT NULL,
	logical_basename TEXT    NOT NULL,
	extension        TEXT    NOT NULL DEFAULT '',
	modified_time    REAL    NOT NULL DEFAULT 0,
	title            TEXT    NOT NULL DEFAULT '',
	date             TEXT    NOT NULL DEFAULT '',
	tags             TEXT    NOT NULL DEFAULT '',
	id               TEXT    NOT NULL DEFAULT '',
	other_metadata   TEXT    NOT NULL DEFAULT '{}',
	reference_name   TEXT    NOT NULL DEFAULT '',
	is_draft         INTEGER NOT NULL DEFAULT 0,
	todo             TEXT,
	tags_combined    TEXT    NOT NULL DEFAULT '',
	blog_date        REAL,
	is_blogged       INTEGER NOT NULL DEFAULT 0,
	rendered_html    TEXT    NOT NULL DEFAULT '',
	outgoing_links   TEXT    NOT NULL DEFAULT '',
	search_text      TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_documents_logical_path     ON documents(logical_path);
CREATE INDEX IF NOT EXISTS idx_documents_logical_dir      ON documents(logical_dir);
CREATE INDEX IF NOT EXISTS idx_documents_logical_basename ON documents(logical_basename);
CREATE INDEX IF NOT EXISTS idx_documents_id               ON documents(id);
CREATE INDEX IF NOT EXISTS idx_documents_blog             ON documents(is_blogged, blog_date);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB

	// generation increases after every committed write; readers use it to
	// invalidate derived caches.
	generation atomic.Uint64
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Generation returns the write counter.
func (db *DB) Generation() uint64 {
	return db.generation.Load()
}

func (db *DB) bump() {
	db.generation.Add(1)
}

// Reset drops every record. Used by "refresh --reset".
func (db *DB) Reset(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("index: reset: %w", err)
	}
	db.bump()
	return nil
}
