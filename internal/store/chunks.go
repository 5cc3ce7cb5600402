package store

import (
	"context"
	"fmt"

	"loom/weft/internal/rag"
)

const chunkColumns = `id, scope_type, scope_id, source_key, source_name,
	chunk_index, text, embedding, embedding_model, created_at`

// scanChunk scans a row holding all chunk columns in standard order.
func scanChunk(scanner interface{ Scan(dest ...any) error }) (rag.Chunk, error) {
	var c rag.Chunk
	var embedding []byte
	err := scanner.Scan(
		&c.ID, &c.ScopeType, &c.ScopeID, &c.SourceKey, &c.SourceName,
		&c.Index, &c.Text, &embedding, &c.EmbeddingModel, &c.CreatedAt,
	)
	if err != nil {
		return c, err
	}
	c.Embedding = bytesToEmbedding(embedding)
	return c, nil
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...any) ([]rag.Chunk, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []rag.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// LoadChunksForScope returns every chunk in a scope, ordered by source key
// then chunk index.
func (s *Store) LoadChunksForScope(ctx context.Context, scopeType, scopeID string) ([]rag.Chunk, error) {
	return s.queryChunks(ctx, `
		SELECT `+chunkColumns+` FROM rag_chunks
		WHERE scope_type = ? AND scope_id = ?
		ORDER BY source_key, chunk_index
	`, scopeType, scopeID)
}

// LoadChunksForSource returns the chunk set for one source key, ordered by
// chunk index.
func (s *Store) LoadChunksForSource(ctx context.Context, scopeType, scopeID, sourceKey string) ([]rag.Chunk, error) {
	return s.queryChunks(ctx, `
		SELECT `+chunkColumns+` FROM rag_chunks
		WHERE scope_type = ? AND scope_id = ? AND source_key = ?
		ORDER BY chunk_index
	`, scopeType, scopeID, sourceKey)
}

// ReplaceChunksForSource atomically swaps the chunk set for a source key:
// delete and insert commit together or not at all, so readers never see a
// mixed set.
func (s *Store) ReplaceChunksForSource(ctx context.Context, scopeType, scopeID, sourceKey string, chunks []rag.Chunk) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning chunk replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM rag_chunks WHERE scope_type = ? AND scope_id = ? AND source_key = ?
	`, scopeType, scopeID, sourceKey); err != nil {
		return fmt.Errorf("deleting stale chunks: %w", err)
	}

	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rag_chunks (`+chunkColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.ScopeType, c.ScopeID, c.SourceKey, c.SourceName,
			c.Index, c.Text, embeddingToBytes(c.Embedding), c.EmbeddingModel, c.CreatedAt); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Index, err)
		}
	}
	return tx.Commit()
}

// DeleteChunksForScope clears every chunk in a scope.
func (s *Store) DeleteChunksForScope(ctx context.Context, scopeType, scopeID string) error {
	_, err := s.conn.ExecContext(ctx, `
		DELETE FROM rag_chunks WHERE scope_type = ? AND scope_id = ?
	`, scopeType, scopeID)
	return err
}

// DeleteChunksForSource clears one source key's chunks.
func (s *Store) DeleteChunksForSource(ctx context.Context, scopeType, scopeID, sourceKey string) error {
	_, err := s.conn.ExecContext(ctx, `
		DELETE FROM rag_chunks WHERE scope_type = ? AND scope_id = ? AND source_key = ?
	`, scopeType, scopeID, sourceKey)
	return err
}

// StaleChunkSources lists source keys in a scope whose chunks were not
// embedded with the given model, or that differ from the supplied set of
// current source keys. currentKeys may be nil to check the model only.
func (s *Store) StaleChunkSources(ctx context.Context, scopeType, scopeID, embeddingModel string, currentKeys map[string]bool) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT DISTINCT source_key, embedding_model FROM rag_chunks
		WHERE scope_type = ? AND scope_id = ?
		ORDER BY source_key
	`, scopeType, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []string
	seen := map[string]bool{}
	for rows.Next() {
		var key, model string
		if err := rows.Scan(&key, &model); err != nil {
			return nil, err
		}
		if seen[key] {
			continue
		}
		if model != embeddingModel || (currentKeys != nil && !currentKeys[key]) {
			stale = append(stale, key)
			seen[key] = true
		}
	}
	return stale, rows.Err()
}

var _ rag.ChunkStore = (*Store)(nil)
