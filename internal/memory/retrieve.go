package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"loom/weft/internal/rag"
)

// Retrieval weights. Semantic similarity carries the same 4x weight as chunk
// retrieval; pinned items and confident, recent items get lighter nudges.
const (
	semanticWeight   = 4.0
	pinnedBonus      = 0.5
	confidenceWeight = 0.3
	recencyWeight    = 0.2
	recencyWindow    = 30.0 // days
)

// RetrieveSettings are the pre-clamped memory-retrieval settings.
type RetrieveSettings struct {
	MaxRetrieved int
}

// Scored pairs a memory item with its retrieval score.
type Scored struct {
	Item     Item    `json:"item"`
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
	Score    float64 `json:"score"`
}

// Retrieve ranks memory items against a query for prompt injection. Lexical
// term overlap combines with model-gated cosine similarity, a pinned bonus,
// confidence, and recency decay. Ties break pinned-then-confidence. The
// result is truncated to MaxRetrieved.
func Retrieve(items []Item, query string, queryVec []float32, embeddingModel string, now int64, s RetrieveSettings) []Scored {
	terms := rag.TokenizeQuery(query)

	scored := make([]Scored, len(items))
	for i, item := range items {
		lexical := rag.LexicalScore(terms, item.Text)
		semantic := 0.0
		if len(queryVec) > 0 && len(item.Embedding) > 0 && item.EmbeddingModel == embeddingModel {
			semantic = rag.CosineSimilarity(queryVec, item.Embedding)
		}

		score := lexical + semanticWeight*semantic
		if item.Pinned {
			score += pinnedBonus
		}
		score += confidenceWeight * item.Confidence
		score += recencyWeight * recencyDecay(item.UpdatedAt, now)

		scored[i] = Scored{Item: item, Lexical: lexical, Semantic: semantic, Score: score}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Item.Pinned != scored[j].Item.Pinned {
			return scored[i].Item.Pinned
		}
		return scored[i].Item.Confidence > scored[j].Item.Confidence
	})

	if s.MaxRetrieved > 0 && len(scored) > s.MaxRetrieved {
		scored = scored[:s.MaxRetrieved]
	}
	return scored
}

// recencyDecay is max(0, 1 - ageDays/30).
func recencyDecay(updatedAt, now int64) float64 {
	ageDays := float64(now-updatedAt) / float64(24*time.Hour/time.Millisecond)
	decay := 1.0 - ageDays/recencyWindow
	if decay < 0 {
		return 0
	}
	return decay
}

// PromptBlock renders retrieved memories as the compact block inserted into
// the model prompt. Empty input renders nothing.
func PromptBlock(scored []Scored) string {
	if len(scored) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known about the user:\n")
	for _, s := range scored {
		b.WriteString("- ")
		b.WriteString(s.Item.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Preview renders a richer human-readable listing for UI inspection; it is
// never sent to the model.
func Preview(scored []Scored) string {
	if len(scored) == 0 {
		return "no memories retrieved"
	}
	var b strings.Builder
	for i, s := range scored {
		pin := ""
		if s.Item.Pinned {
			pin = " [pinned]"
		}
		fmt.Fprintf(&b, "%2d. (%s, conf %.2f, score %.3f)%s %s\n",
			i+1, s.Item.Category, s.Item.Confidence, s.Score, pin, s.Item.Text)
	}
	return b.String()
}
