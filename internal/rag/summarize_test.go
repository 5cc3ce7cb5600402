package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	calls int
	fail  bool
}

func (c *fakeCompleter) Complete(ctx context.Context, _, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.calls++
	if c.fail {
		return "", errors.New("model unavailable")
	}
	return fmt.Sprintf("S%d", c.calls), nil
}

func TestSummarize_SingleChunk(t *testing.T) {
	c := &fakeCompleter{}
	out, err := Summarize(context.Background(), []string{"one chunk"}, c)
	require.NoError(t, err)
	assert.Equal(t, "S1", out)
	assert.Equal(t, 1, c.calls)
}

func TestSummarize_MapReduce(t *testing.T) {
	c := &fakeCompleter{}
	texts := make([]string, 9)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}
	out, err := Summarize(context.Background(), texts, c)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	// 9 map calls, then merges: 9 → 3 (2 full groups + singleton pass-through
	// costs 2 calls) → 1 (one call). 12 total.
	assert.Equal(t, 12, c.calls)
}

func TestSummarize_ExtractiveFallback(t *testing.T) {
	c := &fakeCompleter{fail: true}
	out, err := Summarize(context.Background(), []string{
		"First fact. Second fact. Third fact.",
		"Other chunk.",
	}, c)
	require.NoError(t, err, "total summarization failure degrades, not errors")
	assert.True(t, strings.HasPrefix(out, "- First fact"))
	assert.Contains(t, out, "- Second fact")
	assert.NotContains(t, out, "Other chunk")
}

func TestSummarize_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Summarize(ctx, []string{"a", "b"}, &fakeCompleter{})
	assert.ErrorIs(t, err, ErrAborted)
}

func TestSummarize_Empty(t *testing.T) {
	out, err := Summarize(context.Background(), nil, &fakeCompleter{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
