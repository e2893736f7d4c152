// Package store provides the SQLite-backed note store: captures, tags, projects,
// the derived link graph and enrichment job records.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS capture_types (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	symbol      TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS capture_statuses (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	name  TEXT NOT NULL UNIQUE,
	color TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS projects (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id     INTEGER NOT NULL,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	graph_x      REAL,
	graph_y      REAL,
	graph_width  REAL,
	graph_height REAL,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id);

CREATE TABLE IF NOT EXISTS notes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id   INTEGER NOT NULL,
	content    TEXT NOT NULL,
	title      TEXT NOT NULL,
	slug       TEXT NOT NULL UNIQUE,
	type_id    INTEGER REFERENCES capture_types(id) ON DELETE SET NULL,
	status_id  INTEGER REFERENCES capture_statuses(id) ON DELETE SET NULL,
	project_id INTEGER REFERENCES projects(id) ON DELETE SET NULL,
	graph_x    REAL,
	graph_y    REAL,
	project_x  REAL,
	project_y  REAL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_owner ON notes(owner_id);
CREATE INDEX IF NOT EXISTS idx_notes_owner_title ON notes(owner_id, title);

CREATE TABLE IF NOT EXISTS tags (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id INTEGER NOT NULL,
	name     TEXT NOT NULL CHECK (length(name) <= 50),
	UNIQUE(owner_id, name)
);

CREATE TABLE IF NOT EXISTS note_tags (
	note_id INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	tag_id  INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (note_id, tag_id)
);

CREATE TABLE IF NOT EXISTS note_links (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id  INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	target_id  INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	UNIQUE(source_id, target_id),
	CHECK (source_id <> target_id)
);

CREATE INDEX IF NOT EXISTS idx_note_links_target ON note_links(target_id);

CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id               TEXT PRIMARY KEY,
	note_id          INTEGER NOT NULL,
	want_title       INTEGER NOT NULL DEFAULT 0,
	want_tags        INTEGER NOT NULL DEFAULT 0,
	want_type        INTEGER NOT NULL DEFAULT 0,
	state            TEXT NOT NULL,
	attempts         INTEGER NOT NULL DEFAULT 0,
	last_error       TEXT NOT NULL DEFAULT '',
	content_checksum TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_jobs_state ON enrichment_jobs(state);
`

var seedTypes = []CaptureType{
	{Name: "memory", Symbol: "<<", Description: "Past experiences, recollections, things remembered"},
	{Name: "describing", Symbol: "<", Description: "Current observations, what is happening now"},
	{Name: "action", Symbol: "0", Description: "Tasks, things to do, immediate actions"},
	{Name: "planning", Symbol: ">", Description: "Future plans, intentions, how to achieve goals"},
	{Name: "dreaming", Symbol: ">>", Description: "Aspirations, big ideas, long-term visions"},
	{Name: "eureka", Symbol: "!", Description: "Insights, breakthroughs, sudden realizations"},
}

var seedStatuses = []CaptureStatus{
	{Name: StatusFleeting, Color: "#ffc107"},
	{Name: "reviewed", Color: "#17a2b8"},
	{Name: "organized", Color: "#28a745"},
	{Name: "implemented", Color: "#9c27b0"},
	{Name: "forgotten", Color: "#dc3545"},
	{Name: "deleted", Color: "#6c757d"},
}

// DB wraps a sql.DB with store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database, applies the schema and seeds the
// capture type and status catalogs.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.seed(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) seed(ctx context.Context) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		for _, t := range seedTypes {
			_, err := tx.q.ExecContext(ctx, `
				INSERT INTO capture_types (name, symbol, description) VALUES (?, ?, ?)
				ON CONFLICT(name) DO UPDATE SET symbol = excluded.symbol, description = excluded.description
			`, t.Name, t.Symbol, t.Description)
			if err != nil {
				return fmt.Errorf("store: seed capture type %q: %w", t.Name, err)
			}
		}
		for _, s := range seedStatuses {
			_, err := tx.q.ExecContext(ctx, `
				INSERT INTO capture_statuses (name, color) VALUES (?, ?)
				ON CONFLICT(name) DO UPDATE SET color = excluded.color
			`, s.Name, s.Color)
			if err != nil {
				return fmt.Errorf("store: seed capture status %q: %w", s.Name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}
