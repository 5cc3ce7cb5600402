package rag

import "fmt"

// Scope types for retrieval and memory isolation.
const (
	ScopeConversation = "conversation"
	ScopeProject      = "project"
	ScopeUser         = "user"
)

// Chunk is one indexed slice of an attachment, keyed by
// (ScopeType, ScopeID, SourceKey). Embedding is nil when indexing ran in
// lexical-only mode; EmbeddingModel tags which model produced the vector so
// stale vectors never mix with fresh ones.
type Chunk struct {
	ID             string    `json:"id"`
	ScopeType      string    `json:"scope_type"`
	ScopeID        string    `json:"scope_id"`
	SourceKey      string    `json:"source_key"`
	SourceName     string    `json:"source_name"`
	Index          int       `json:"index"`
	Text           string    `json:"text"`
	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	CreatedAt      int64     `json:"created_at"`
}

// SourceKeyFor builds the composite identity of an attachment's chunking
// state. Any change to size, modification time, or chunk parameters yields a
// new key, invalidating prior chunks.
func SourceKeyFor(name string, size, modTime int64, chunkSize, chunkOverlap int) string {
	return fmt.Sprintf("%s|%d|%d|%d|%d", name, size, modTime, chunkSize, chunkOverlap)
}

// SplitTextWithOverlap splits text into fixed-size sliding windows measured
// in runes. The final partial chunk is included. Callers guarantee
// 0 <= overlap < size; out-of-range inputs are clamped here as a backstop.
func SplitTextWithOverlap(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
