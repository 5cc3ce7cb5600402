package memory

import (
	"sort"
	"strings"
)

// ExtractSettings are the pre-clamped memory-extraction settings.
type ExtractSettings struct {
	MinConfidence float64
	MaxPerMessage int
}

// Candidate is an extracted memory statement before persistence.
type Candidate struct {
	Text           string  `json:"text"`
	NormalizedText string  `json:"normalized_text"`
	Category       string  `json:"category"`
	Confidence     float64 `json:"confidence"`
}

var preferenceMarkers = []string{
	"prefer", "i like", "i love", "i enjoy", "rather than", "favorite", "my style",
}

var constraintMarkers = []string{
	"must", "cannot", "can't", "never", "always", "need to", "don't use",
	"do not use", "required", "not allowed",
}

var contextMarkers = []string{
	"working on", "my project", "i am building", "i'm building", "currently",
	"my team", "we are", "my company",
}

// boilerplatePrefixes disqualify generic conversational filler.
var boilerplatePrefixes = []string{
	"thanks", "thank you", "sure", "okay", "ok,", "great", "sounds good",
	"as an ai", "i'm sorry", "here is", "here's", "let me know", "of course",
	"certainly", "you're welcome", "no problem",
}

var actionVerbs = []string{
	"use", "work", "build", "write", "want", "need", "prefer", "run", "deploy",
}

// Extract pulls short factual/preference statements out of a message body.
// Questions and boilerplate are discarded; survivors are classified, scored,
// filtered by minimum confidence, deduplicated by normalized text, capped,
// and returned sorted by confidence (descending).
func Extract(body, role string, s ExtractSettings) []Candidate {
	seen := make(map[string]bool)
	var candidates []Candidate

	for _, sentence := range splitSentences(body) {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) < 8 || strings.HasSuffix(sentence, "?") {
			continue
		}
		if isBoilerplate(sentence) {
			continue
		}

		confidence := scoreConfidence(sentence, role)
		if confidence < s.MinConfidence {
			continue
		}

		normalized := NormalizeText(sentence)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true

		candidates = append(candidates, Candidate{
			Text:           sentence,
			NormalizedText: normalized,
			Category:       classify(sentence),
			Confidence:     confidence,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	if s.MaxPerMessage > 0 && len(candidates) > s.MaxPerMessage {
		candidates = candidates[:s.MaxPerMessage]
	}
	return candidates
}

// splitSentences breaks text on sentence terminators and newlines, keeping
// the terminator attached.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

func isBoilerplate(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, prefix := range boilerplatePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// classify assigns a category by keyword pattern; anything unmatched is a
// fact.
func classify(sentence string) string {
	lower := strings.ToLower(sentence)
	for _, m := range preferenceMarkers {
		if strings.Contains(lower, m) {
			return CategoryPreference
		}
	}
	for _, m := range constraintMarkers {
		if strings.Contains(lower, m) {
			return CategoryConstraint
		}
	}
	for _, m := range contextMarkers {
		if strings.Contains(lower, m) {
			return CategoryContext
		}
	}
	return CategoryFact
}

// scoreConfidence estimates how memory-worthy a sentence is, in [0,1].
// First-person voice, numerals, and action verbs raise it; assistant
// authorship and excessive length lower it.
func scoreConfidence(sentence, role string) float64 {
	lower := strings.ToLower(sentence)
	confidence := 0.5

	words := strings.Fields(lower)
	for _, w := range words {
		trimmed := strings.Trim(w, ".,!;:'\"")
		if trimmed == "i" || trimmed == "my" || trimmed == "me" || trimmed == "i'm" || trimmed == "we" {
			confidence += 0.15
			break
		}
	}
	if strings.ContainsAny(sentence, "0123456789") {
		confidence += 0.1
	}
	for _, v := range actionVerbs {
		if containsWord(words, v) {
			confidence += 0.1
			break
		}
	}
	if role == "assistant" {
		confidence -= 0.2
	}
	if len(sentence) > 200 {
		confidence -= 0.15
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func containsWord(words []string, target string) bool {
	for _, w := range words {
		if strings.Trim(w, ".,!;:'\"") == target {
			return true
		}
	}
	return false
}
