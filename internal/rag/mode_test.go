package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modeChunks() []Chunk {
	return []Chunk{
		{ID: "a", Index: 0, Text: "flight to tokyo departs at nine"},
		{ID: "b", Index: 1, Text: "hotel booking in shinjuku"},
		{ID: "c", Index: 2, Text: "packing list for the trip"},
	}
}

func TestBuildScopeContext_RetrievalMode(t *testing.T) {
	c := &fakeCompleter{}
	s := ContextSettings{Mode: ModeRetrieval, TopK: 1}

	block, err := BuildScopeContext(context.Background(), modeChunks(), "tokyo flight", nil, c, s)
	require.NoError(t, err)
	assert.Equal(t, "flight to tokyo departs at nine", block)
	assert.Zero(t, c.calls, "retrieval mode must not call the model")
}

func TestBuildScopeContext_RetrievalJoinsTopK(t *testing.T) {
	s := ContextSettings{Mode: ModeRetrieval, TopK: 2}

	block, err := BuildScopeContext(context.Background(), modeChunks(), "trip to tokyo", nil, nil, s)
	require.NoError(t, err)
	assert.Contains(t, block, "flight to tokyo")
	assert.Contains(t, block, "packing list")
	assert.Contains(t, block, "\n\n---\n\n")
}

func TestBuildScopeContext_SummarizeMode(t *testing.T) {
	c := &fakeCompleter{}
	s := ContextSettings{Mode: ModeSummarize, TopK: 1}

	block, err := BuildScopeContext(context.Background(), modeChunks(), "tokyo flight", nil, c, s)
	require.NoError(t, err)
	assert.NotEmpty(t, block)
	// Three map calls, one merge: the query does not gate which chunks are
	// summarized.
	assert.Equal(t, 4, c.calls)
}

func TestBuildScopeContext_SummarizeNeedsCompleter(t *testing.T) {
	s := ContextSettings{Mode: ModeSummarize}
	_, err := BuildScopeContext(context.Background(), modeChunks(), "q", nil, nil, s)
	assert.ErrorIs(t, err, ErrNoCompleter)
}

func TestBuildScopeContext_EmptyChunks(t *testing.T) {
	for _, mode := range []string{ModeRetrieval, ModeSummarize} {
		block, err := BuildScopeContext(context.Background(), nil, "q", nil, nil, ContextSettings{Mode: mode})
		require.NoError(t, err, mode)
		assert.Empty(t, block, mode)
	}
}
