package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Completer is the completion contract the summarizer talks to.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// mergeGroupSize is how many summaries merge in one reduce step.
const mergeGroupSize = 4

const summarizeSystemPrompt = "You summarize document excerpts. Reply with a dense, factual summary. No preamble."

// Summarize performs hierarchical map-reduce summarization over chunk texts:
// each chunk is summarized, then summaries merge in fixed-size groups until
// one remains. If every summarization call fails, it falls back to an
// extractive bullet summary of the first chunk. Cancellation returns
// ErrAborted.
func Summarize(ctx context.Context, texts []string, completer Completer) (string, error) {
	if len(texts) == 0 {
		return "", nil
	}

	anySucceeded := false
	current := make([]string, 0, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrAborted, err)
		}
		summary, err := completer.Complete(ctx, summarizeSystemPrompt,
			"Summarize this excerpt:\n\n"+text)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: %v", ErrAborted, err)
			}
			log.Warn().Err(err).Int("chunk", i).Msg("chunk summarization failed")
			continue
		}
		anySucceeded = true
		current = append(current, summary)
	}

	if !anySucceeded {
		return extractiveFallback(texts[0]), nil
	}

	for len(current) > 1 {
		var next []string
		for start := 0; start < len(current); start += mergeGroupSize {
			if err := ctx.Err(); err != nil {
				return "", fmt.Errorf("%w: %v", ErrAborted, err)
			}
			end := start + mergeGroupSize
			if end > len(current) {
				end = len(current)
			}
			group := current[start:end]
			if len(group) == 1 {
				next = append(next, group[0])
				continue
			}
			merged, err := completer.Complete(ctx, summarizeSystemPrompt,
				"Merge these partial summaries into one:\n\n"+strings.Join(group, "\n\n---\n\n"))
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return "", fmt.Errorf("%w: %v", ErrAborted, err)
				}
				log.Warn().Err(err).Msg("summary merge failed, concatenating group")
				merged = strings.Join(group, "\n")
			}
			next = append(next, merged)
		}
		current = next
	}
	return current[0], nil
}

// extractiveFallback builds a bullet summary from the first sentences of a
// chunk when no summarization call succeeded.
func extractiveFallback(text string) string {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	var bullets []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		bullets = append(bullets, "- "+s)
		if len(bullets) >= 5 {
			break
		}
	}
	if len(bullets) == 0 {
		return ""
	}
	return strings.Join(bullets, "\n")
}
