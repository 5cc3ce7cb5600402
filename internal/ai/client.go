// Package ai wraps the OpenAI API behind the small surfaces the rest of the
// program consumes: batched embeddings, one-shot completions, and streaming
// completions with delta callbacks.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

const (
	maxRetries     = 3
	embedBatchSize = 64
)

var (
	rateLimitWaits   = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}
	serverErrorWaits = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}
)

// Client talks to the OpenAI API. The completion model is fixed at
// construction; the embedding model travels with each call because stored
// vectors are tagged with the model that produced them.
type Client struct {
	api             openai.Client
	completionModel string
}

func NewClient(apiKey, baseURL, completionModel string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		api:             openai.NewClient(opts...),
		completionModel: completionModel,
	}
}

// Embed produces one vector per input, batching requests so large attachment
// indexing runs don't trip payload limits.
func (c *Client) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batch := inputs[start:end]

		resp, err := callWithRetry(ctx, func() (*openai.CreateEmbeddingResponse, error) {
			return c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
				Model: openai.EmbeddingModel(model),
				Input: openai.EmbeddingNewParamsInputUnion{
					OfArrayOfStrings: batch,
				},
			})
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embed batch at %d: got %d vectors for %d inputs", start, len(resp.Data), len(batch))
		}
		for _, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for i, v := range d.Embedding {
				vec[i] = float32(v)
			}
			out = append(out, vec)
		}
	}
	log.Debug().Str("model", model).Int("inputs", len(inputs)).Msg("embedded")
	return out, nil
}

// Complete runs a single system+user exchange and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := callWithRetry(ctx, func() (*openai.ChatCompletion, error) {
		return c.api.Chat.Completions.New(ctx, c.chatParams(system, user))
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream runs a completion, invoking onDelta for each content fragment as it
// arrives, and returns the accumulated text. onDelta may be nil.
func (c *Client) Stream(ctx context.Context, system, user string, onDelta func(string)) (string, error) {
	stream := c.api.Chat.Completions.NewStreaming(ctx, c.chatParams(system, user))
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if onDelta != nil && len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onDelta(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	if len(acc.Choices) == 0 {
		return "", errors.New("stream returned no choices")
	}
	return acc.Choices[0].Message.Content, nil
}

func (c *Client) chatParams(system, user string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: c.completionModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
}

func callWithRetry[T any](ctx context.Context, call func() (*T, error)) (*T, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := call()
		if err == nil {
			return resp, nil
		}
		var wait time.Duration
		switch {
		case isRateLimitError(err):
			wait = rateLimitWaits[attempt]
		case isServerError(err):
			wait = serverErrorWaits[attempt]
		default:
			return nil, err
		}
		if attempt == maxRetries-1 {
			return nil, err
		}
		log.Warn().Err(err).Dur("wait", wait).Int("attempt", attempt+1).Msg("api call failed, retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed after %d attempts", maxRetries)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "500") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "internal server error") ||
		strings.Contains(s, "server_error")
}
