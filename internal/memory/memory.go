package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Memory categories.
const (
	CategoryFact       = "fact"
	CategoryPreference = "preference"
	CategoryConstraint = "constraint"
	CategoryContext    = "context"
)

// Item is one persisted memory, keyed by (ScopeType, ScopeID,
// NormalizedText) for dedupe.
type Item struct {
	ID             string    `json:"id"`
	ScopeType      string    `json:"scope_type"`
	ScopeID        string    `json:"scope_id"`
	Text           string    `json:"text"`
	NormalizedText string    `json:"normalized_text"`
	Category       string    `json:"category"`
	Confidence     float64   `json:"confidence"`
	Pinned         bool      `json:"pinned"`
	SourceID       string    `json:"source_id,omitempty"` // message that produced it
	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	CreatedAt      int64     `json:"created_at"`
	UpdatedAt      int64     `json:"updated_at"`
}

// NormalizeText produces the dedupe key: lowercase, collapsed whitespace,
// trailing punctuation stripped.
func NormalizeText(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".!,;: ")
}

// UpsertCommand is the mutation produced by merging a candidate into a
// scope. The caller persists Item; the core never writes.
type UpsertCommand struct {
	Item    Item
	Created bool // false when merged into an existing row
}

// BuildUpsert merges a candidate into an existing item, or creates a new
// one. A repeated candidate raises confidence to the max of old and new and
// refreshes the source pointer and embedding; it never creates a duplicate
// row.
func BuildUpsert(scopeType, scopeID string, c Candidate, existing *Item, sourceID string, embedding []float32, embeddingModel string) UpsertCommand {
	now := time.Now().UnixMilli()
	if existing != nil {
		merged := *existing
		if c.Confidence > merged.Confidence {
			merged.Confidence = c.Confidence
		}
		merged.SourceID = sourceID
		if len(embedding) > 0 {
			merged.Embedding = embedding
			merged.EmbeddingModel = embeddingModel
		}
		merged.UpdatedAt = now
		return UpsertCommand{Item: merged}
	}
	return UpsertCommand{
		Item: Item{
			ID:             uuid.NewString(),
			ScopeType:      scopeType,
			ScopeID:        scopeID,
			Text:           c.Text,
			NormalizedText: c.NormalizedText,
			Category:       c.Category,
			Confidence:     c.Confidence,
			SourceID:       sourceID,
			Embedding:      embedding,
			EmbeddingModel: embeddingModel,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Created: true,
	}
}
