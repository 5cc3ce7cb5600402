package rag

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// perTermBonus rewards each distinct matched query term on top of the raw
// whole-word occurrence count.
const perTermBonus = 0.25

// semanticWeight scales cosine similarity against the lexical score.
const semanticWeight = 4.0

// TokenizeQuery splits a query into lowercase alphanumeric terms of at least
// two characters.
func TokenizeQuery(query string) []string {
	var terms []string
	var current strings.Builder
	flush := func() {
		if current.Len() >= 2 {
			terms = append(terms, current.String())
		}
		current.Reset()
	}
	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return terms
}

// CosineSimilarity computes cosine similarity between two vectors. Returns
// 0.0 for zero-norm vectors or mismatched lengths.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	na := math.Sqrt(normA)
	nb := math.Sqrt(normB)
	if na == 0 || nb == 0 {
		return 0.0
	}
	return dot / (na * nb)
}

// ScoredChunk pairs a chunk with its hybrid score and original position.
type ScoredChunk struct {
	Chunk    Chunk
	Order    int
	Lexical  float64
	Semantic float64
	Score    float64
}

// LexicalScore counts whole-word matches of the query terms in the text,
// plus a small bonus per distinct matched term.
func LexicalScore(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	freq := make(map[string]int)
	for _, tok := range TokenizeQuery(text) {
		freq[tok]++
	}
	matches := 0
	distinct := 0
	for _, term := range terms {
		if n := freq[term]; n > 0 {
			matches += n
			distinct++
		}
	}
	return float64(matches) + perTermBonus*float64(distinct)
}

// ScoreChunks computes the hybrid score for every candidate. Semantic
// similarity only counts when the chunk's embedding was produced by
// embeddingModel; stale or missing embeddings contribute zero. When both
// query signals are empty, a tiny negative bias preserves original chunk
// order under descending sort.
func ScoreChunks(chunks []Chunk, terms []string, queryVec []float32, embeddingModel string) []ScoredChunk {
	empty := len(terms) == 0 && len(queryVec) == 0
	scored := make([]ScoredChunk, len(chunks))
	for i, c := range chunks {
		lexical := LexicalScore(terms, c.Text)
		semantic := 0.0
		if len(queryVec) > 0 && len(c.Embedding) > 0 && c.EmbeddingModel == embeddingModel {
			semantic = CosineSimilarity(queryVec, c.Embedding)
		}
		score := lexical + semanticWeight*semantic
		if empty {
			score = -1e-9 * float64(i)
		}
		scored[i] = ScoredChunk{Chunk: c, Order: i, Lexical: lexical, Semantic: semantic, Score: score}
	}
	return scored
}

// SelectTopK returns the k best-scoring chunks. Ties break by original
// order, then chunk index, so repeated calls with identical inputs return
// identical selections.
func SelectTopK(scored []ScoredChunk, k int) []ScoredChunk {
	result := make([]ScoredChunk, len(scored))
	copy(result, scored)
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Chunk.Index < result[j].Chunk.Index
	})
	if k >= 0 && len(result) > k {
		result = result[:k]
	}
	return result
}

// Retrieve scores and selects the top-K chunks for a query in one call.
func Retrieve(chunks []Chunk, query string, queryVec []float32, embeddingModel string, topK int) []ScoredChunk {
	terms := TokenizeQuery(query)
	return SelectTopK(ScoreChunks(chunks, terms, queryVec, embeddingModel), topK)
}
