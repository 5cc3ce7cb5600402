package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextWithOverlap(t *testing.T) {
	chunks := SplitTextWithOverlap("abcdefghij", 4, 2)
	assert.Equal(t, []string{"abcd", "cdef", "efgh", "ghij"}, chunks)
}

func TestSplitTextWithOverlap_PartialFinal(t *testing.T) {
	chunks := SplitTextWithOverlap("abcdefg", 4, 1)
	assert.Equal(t, []string{"abcd", "defg"}, chunks)

	chunks = SplitTextWithOverlap("abcdefgh", 4, 1)
	assert.Equal(t, []string{"abcd", "defg", "gh"}, chunks)
}

func TestSplitTextWithOverlap_NoOverlap(t *testing.T) {
	chunks := SplitTextWithOverlap("abcdefghi", 3, 0)
	assert.Equal(t, []string{"abc", "def", "ghi"}, chunks)
}

func TestSplitTextWithOverlap_Edges(t *testing.T) {
	assert.Nil(t, SplitTextWithOverlap("", 4, 1))
	assert.Nil(t, SplitTextWithOverlap("abc", 0, 0))
	// Overlap >= size is clamped to size-1 instead of looping forever.
	chunks := SplitTextWithOverlap("abcd", 2, 5)
	assert.Equal(t, []string{"ab", "bc", "cd"}, chunks)
	// Shorter than one chunk: single partial chunk.
	assert.Equal(t, []string{"ab"}, SplitTextWithOverlap("ab", 10, 2))
}

func TestSplitTextWithOverlap_Runes(t *testing.T) {
	chunks := SplitTextWithOverlap("héllo wörld", 6, 2)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "héllo ", chunks[0])
}

func TestSourceKeyFor_ChangesWithParameters(t *testing.T) {
	base := SourceKeyFor("trip.ics", 1000, 42, 1200, 200)
	assert.Equal(t, base, SourceKeyFor("trip.ics", 1000, 42, 1200, 200))
	assert.NotEqual(t, base, SourceKeyFor("trip.ics", 1000, 42, 1200, 100)) // overlap changed
	assert.NotEqual(t, base, SourceKeyFor("trip.ics", 1001, 42, 1200, 200)) // size changed
	assert.NotEqual(t, base, SourceKeyFor("trip.ics", 1000, 43, 1200, 200)) // mtime changed
}

func TestTokenizeQuery(t *testing.T) {
	assert.Equal(t, []string{"find", "my", "flight", "to", "tokyo2026"},
		TokenizeQuery("Find my flight, to TOKYO2026!"))
	assert.Nil(t, TokenizeQuery("a ? !"))
	assert.Equal(t, []string{"ab"}, TokenizeQuery("ab c"))
}

func TestLexicalScore(t *testing.T) {
	terms := []string{"flight", "tokyo"}
	// "flight" twice, "tokyo" once: 3 matches + 2 distinct * 0.25
	score := LexicalScore(terms, "Flight to Tokyo. The flight departs early.")
	assert.InDelta(t, 3.5, score, 1e-9)

	assert.Zero(t, LexicalScore(terms, "train to osaka"))
	assert.Zero(t, LexicalScore(nil, "anything"))
	// Substring is not a whole-word match.
	assert.Zero(t, LexicalScore([]string{"light"}, "flight plans"))
}

func scoreOf(scored []ScoredChunk, id string) float64 {
	for _, s := range scored {
		if s.Chunk.ID == id {
			return s.Score
		}
	}
	return -1
}

func TestScoreChunks_ModelGating(t *testing.T) {
	queryVec := []float32{1, 0}
	chunks := []Chunk{
		{ID: "none", Text: "tokyo"},
		{ID: "stale", Text: "tokyo", Embedding: []float32{1, 0}, EmbeddingModel: "old-model"},
		{ID: "fresh", Text: "tokyo", Embedding: []float32{1, 0}, EmbeddingModel: "current"},
	}
	scored := ScoreChunks(chunks, []string{"tokyo"}, queryVec, "current")

	// A stale embedding scores identically to no embedding at all.
	assert.Equal(t, scoreOf(scored, "none"), scoreOf(scored, "stale"))
	// A matching embedding can only raise the score.
	assert.Greater(t, scoreOf(scored, "fresh"), scoreOf(scored, "none"))
	// Semantic weighted 4x: identical vectors add exactly 4.
	assert.InDelta(t, scoreOf(scored, "none")+4.0, scoreOf(scored, "fresh"), 1e-9)
}

func TestScoreChunks_MonotoneUnderAddedEmbedding(t *testing.T) {
	terms := []string{"tokyo"}
	queryVec := []float32{0.6, 0.8}
	without := ScoreChunks([]Chunk{{ID: "c", Text: "tokyo trip"}}, terms, queryVec, "m")
	with := ScoreChunks([]Chunk{{ID: "c", Text: "tokyo trip", Embedding: []float32{0.6, 0.8}, EmbeddingModel: "m"}}, terms, queryVec, "m")
	assert.GreaterOrEqual(t, with[0].Score, without[0].Score)
}

func TestScoreChunks_EmptySignalsPreserveOrder(t *testing.T) {
	chunks := []Chunk{
		{ID: "first", Index: 0, Text: "alpha"},
		{ID: "second", Index: 1, Text: "beta"},
		{ID: "third", Index: 2, Text: "gamma"},
	}
	top := SelectTopK(ScoreChunks(chunks, nil, nil, "m"), 2)
	require.Len(t, top, 2)
	assert.Equal(t, "first", top[0].Chunk.ID)
	assert.Equal(t, "second", top[1].Chunk.ID)
}

func TestSelectTopK_DeterministicTies(t *testing.T) {
	chunks := []Chunk{
		{ID: "a", Index: 3, Text: "tokyo"},
		{ID: "b", Index: 1, Text: "tokyo"},
		{ID: "c", Index: 2, Text: "tokyo"},
	}
	scored := ScoreChunks(chunks, []string{"tokyo"}, nil, "")
	first := SelectTopK(scored, 3)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, SelectTopK(scored, 3))
	}
	// Equal scores: original order wins.
	assert.Equal(t, "a", first[0].Chunk.ID)
	assert.Equal(t, "b", first[1].Chunk.ID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestRetrieve_TopK(t *testing.T) {
	chunks := []Chunk{
		{ID: "miss", Text: "nothing relevant"},
		{ID: "hit2", Text: "tokyo"},
		{ID: "hit1", Text: "tokyo tokyo flight"},
	}
	top := Retrieve(chunks, "flight to tokyo", nil, "", 2)
	require.Len(t, top, 2)
	assert.Equal(t, "hit1", top[0].Chunk.ID)
	assert.Equal(t, "hit2", top[1].Chunk.ID)
}
