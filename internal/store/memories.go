package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"loom/weft/internal/memory"
)

const memoryColumns = `id, scope_type, scope_id, text, normalized_text, category,
	confidence, pinned, source_id, embedding, embedding_model, created_at, updated_at`

func scanMemory(scanner interface{ Scan(dest ...any) error }) (memory.Item, error) {
	var m memory.Item
	var embedding []byte
	var sourceID sql.NullString
	err := scanner.Scan(
		&m.ID, &m.ScopeType, &m.ScopeID, &m.Text, &m.NormalizedText, &m.Category,
		&m.Confidence, &m.Pinned, &sourceID, &embedding, &m.EmbeddingModel,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, err
	}
	m.SourceID = sourceID.String
	m.Embedding = bytesToEmbedding(embedding)
	return m, nil
}

// LoadMemoriesForScope returns all memories in a scope, pinned first, then
// by descending confidence.
func (s *Store) LoadMemoriesForScope(ctx context.Context, scopeType, scopeID string) ([]memory.Item, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE scope_type = ? AND scope_id = ?
		ORDER BY pinned DESC, confidence DESC, created_at
	`, scopeType, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []memory.Item
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// FindMemoryByNormalizedText returns the memory with the given dedupe key,
// or nil when absent.
func (s *Store) FindMemoryByNormalizedText(ctx context.Context, scopeType, scopeID, normalizedText string) (*memory.Item, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE scope_type = ? AND scope_id = ? AND normalized_text = ?
	`, scopeType, scopeID, normalizedText)

	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveMemory writes a memory item, replacing any existing row with the same
// ID. The (scope, normalized_text) uniqueness constraint makes accidental
// duplicates a hard error rather than silent drift.
func (s *Store) SaveMemory(ctx context.Context, m memory.Item) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			category = excluded.category,
			confidence = excluded.confidence,
			pinned = excluded.pinned,
			source_id = excluded.source_id,
			embedding = excluded.embedding,
			embedding_model = excluded.embedding_model,
			updated_at = excluded.updated_at
	`, m.ID, m.ScopeType, m.ScopeID, m.Text, m.NormalizedText, m.Category,
		m.Confidence, m.Pinned, nullable(m.SourceID), embeddingToBytes(m.Embedding),
		m.EmbeddingModel, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving memory: %w", err)
	}
	return nil
}

// SetMemoryPinned toggles the pinned flag.
func (s *Store) SetMemoryPinned(ctx context.Context, id string, pinned bool) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE memories SET pinned = ? WHERE id = ?`, pinned, id)
	return err
}

// DeleteMemory removes one memory by ID.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
