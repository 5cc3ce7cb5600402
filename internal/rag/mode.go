package rag

import (
	"context"
	"errors"
	"strings"
)

// Attachment-processing modes. Retrieval injects the top-scoring chunks for
// the query; summarize condenses every chunk through map-reduce instead.
const (
	ModeRetrieval = "retrieval"
	ModeSummarize = "summarize"
)

// ErrNoCompleter is returned when summarize mode runs without a completion
// client.
var ErrNoCompleter = errors.New("summarize mode requires a completion client")

// ContextSettings select how a scope's chunks become prompt context.
type ContextSettings struct {
	Mode           string
	TopK           int
	EmbeddingModel string
}

// BuildScopeContext turns a scope's chunks into one prompt-insertable block
// according to the configured mode. Retrieval mode hybrid-scores the chunks
// against the query and joins the top K; summarize mode map-reduce summarizes
// all of them. An empty chunk set yields an empty block in either mode.
func BuildScopeContext(ctx context.Context, chunks []Chunk, query string, queryVec []float32, completer Completer, s ContextSettings) (string, error) {
	if len(chunks) == 0 {
		return "", nil
	}

	if s.Mode == ModeSummarize {
		if completer == nil {
			return "", ErrNoCompleter
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		return Summarize(ctx, texts, completer)
	}

	top := Retrieve(chunks, query, queryVec, s.EmbeddingModel, s.TopK)
	parts := make([]string, 0, len(top))
	for _, r := range top {
		parts = append(parts, r.Chunk.Text)
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}
