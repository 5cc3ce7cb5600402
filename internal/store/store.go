package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding conversations, branch graphs,
// retrieval chunks, and memories.
type Store struct {
	conn *sql.DB
	Path string
}

// Open opens (or creates) the database with WAL mode and foreign keys
// enabled, and ensures the schema exists.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{conn: conn, Path: path}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn returns the underlying sql.DB for custom queries.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

func (s *Store) initSchema() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL,
			root_node_id  TEXT NOT NULL,
			system_prompt TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS nodes (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			status          TEXT NOT NULL DEFAULT 'idle',
			is_reply        INTEGER NOT NULL DEFAULT 0,
			parent_node_id  TEXT,
			context_summary TEXT,
			created_at      INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			node_id    TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			streaming  INTEGER NOT NULL DEFAULT 0,
			is_attachment_context         INTEGER NOT NULL DEFAULT 0,
			is_custom_instruction         INTEGER NOT NULL DEFAULT 0,
			is_project_instruction        INTEGER NOT NULL DEFAULT 0,
			is_project_attachment_context INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS edges (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			source_id       TEXT NOT NULL,
			target_id       TEXT NOT NULL,
			created_at      INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS rag_chunks (
			id              TEXT PRIMARY KEY,
			scope_type      TEXT NOT NULL,
			scope_id        TEXT NOT NULL,
			source_key      TEXT NOT NULL,
			source_name     TEXT NOT NULL,
			chunk_index     INTEGER NOT NULL,
			text            TEXT NOT NULL,
			embedding       BLOB,
			embedding_model TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_rag_chunks_scope
			ON rag_chunks(scope_type, scope_id);
		CREATE INDEX IF NOT EXISTS idx_rag_chunks_source
			ON rag_chunks(scope_type, scope_id, source_key);
		CREATE TABLE IF NOT EXISTS memories (
			id              TEXT PRIMARY KEY,
			scope_type      TEXT NOT NULL,
			scope_id        TEXT NOT NULL,
			text            TEXT NOT NULL,
			normalized_text TEXT NOT NULL,
			category        TEXT NOT NULL,
			confidence      REAL NOT NULL,
			pinned          INTEGER NOT NULL DEFAULT 0,
			source_id       TEXT,
			embedding       BLOB,
			embedding_model TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			UNIQUE(scope_type, scope_id, normalized_text)
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}
