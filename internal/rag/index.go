package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrAborted marks a cancelled indexing or summarization run. Nothing is
// persisted when it is returned.
var ErrAborted = errors.New("indexing aborted")

// ErrNotText is returned when an attachment is detected as binary before
// chunking.
var ErrNotText = errors.New("attachment is not text")

// maxChunksPerFile caps how many chunks a single attachment may contribute.
const maxChunksPerFile = 200

// embedBatchSize is how many chunk texts go into one embeddings call.
const embedBatchSize = 16

// ChunkStore is the persistence contract the indexer writes through. All
// writes replace a full source-key chunk set atomically; a half-built set is
// never visible.
type ChunkStore interface {
	LoadChunksForScope(ctx context.Context, scopeType, scopeID string) ([]Chunk, error)
	LoadChunksForSource(ctx context.Context, scopeType, scopeID, sourceKey string) ([]Chunk, error)
	ReplaceChunksForSource(ctx context.Context, scopeType, scopeID, sourceKey string, chunks []Chunk) error
	DeleteChunksForScope(ctx context.Context, scopeType, scopeID string) error
	DeleteChunksForSource(ctx context.Context, scopeType, scopeID, sourceKey string) error
}

// Embedder produces embedding vectors. Failures mean "semantic signal
// unavailable", not a hard failure of indexing.
type Embedder interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// FileContent abstracts an attachment: identity, metadata, and a streamed
// read of its content.
type FileContent interface {
	Name() string
	Size() int64
	ModTime() int64 // Unix millis
	MIMEType() string
	Open() (io.ReadCloser, error)
}

// IndexSettings are the pre-clamped attachment-processing settings.
type IndexSettings struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
}

// IndexResult reports what indexing did for one attachment.
type IndexResult struct {
	SourceKey   string `json:"source_key"`
	ChunkCount  int    `json:"chunk_count"`
	Reused      bool   `json:"reused"`
	Degraded    bool   `json:"degraded"`    // embeddings unavailable, lexical-only
	Placeholder bool   `json:"placeholder"` // source unreadable, placeholder block stored
}

// Indexer chunks, embeds, and persists attachment content for a scope.
type Indexer struct {
	Store    ChunkStore
	Embedder Embedder
}

// IndexAttachment processes one attachment into chunks for the given scope.
//
// If chunks for the current source key already exist and were embedded with
// the configured model they are reused untouched. Otherwise the file is
// streamed into overlapping windows, embedded in batches (degrading to
// lexical-only if the embedding service fails), and committed as one
// replacement write. Cancellation unwinds with ErrAborted before anything is
// persisted.
func (ix *Indexer) IndexAttachment(ctx context.Context, scopeType, scopeID string, file FileContent, s IndexSettings) (*IndexResult, error) {
	if !IsTextLike(file.MIMEType(), file.Name()) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotText, file.Name(), file.MIMEType())
	}

	sourceKey := SourceKeyFor(file.Name(), file.Size(), file.ModTime(), s.ChunkSize, s.ChunkOverlap)
	result := &IndexResult{SourceKey: sourceKey}

	existing, err := ix.Store.LoadChunksForSource(ctx, scopeType, scopeID, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("loading existing chunks: %w", err)
	}
	if len(existing) > 0 && allModelsMatch(existing, s.EmbeddingModel) {
		result.ChunkCount = len(existing)
		result.Reused = true
		return result, nil
	}

	texts, err := ix.readChunks(ctx, file, s)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		// Source access failure: store an explanatory placeholder so other
		// attachments keep working and the user sees why this one did not.
		log.Warn().Err(err).Str("file", file.Name()).Msg("attachment unreadable, storing placeholder")
		texts = []string{fmt.Sprintf("[attachment %q could not be read: access denied, please reattach]", file.Name())}
		result.Placeholder = true
	}

	now := time.Now().UnixMilli()
	chunks := make([]Chunk, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:         uuid.NewString(),
			ScopeType:  scopeType,
			ScopeID:    scopeID,
			SourceKey:  sourceKey,
			SourceName: file.Name(),
			Index:      i,
			Text:       text,
			CreatedAt:  now,
		})
	}

	if !result.Placeholder && s.EmbeddingModel != "" {
		if ix.Embedder == nil {
			// Embedding configured but no client available: the chunks are
			// still usable, lexically.
			result.Degraded = true
		} else if err := ix.embedChunks(ctx, chunks, s.EmbeddingModel); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %v", ErrAborted, err)
			}
			log.Warn().Err(err).Str("file", file.Name()).Msg("embedding unavailable, indexing lexical-only")
			result.Degraded = true
		}
	}

	// The full chunk list exists before anything is deleted or written; an
	// abort here leaves the old set intact.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAborted, err)
	}
	if err := ix.Store.ReplaceChunksForSource(ctx, scopeType, scopeID, sourceKey, chunks); err != nil {
		return nil, fmt.Errorf("persisting chunks: %w", err)
	}

	result.ChunkCount = len(chunks)
	log.Debug().
		Str("file", file.Name()).
		Str("source_key", sourceKey).
		Int("chunks", len(chunks)).
		Bool("degraded", result.Degraded).
		Msg("attachment indexed")
	return result, nil
}

// readChunks streams the file into overlapping windows, observing
// cancellation between reads. Capped at maxChunksPerFile.
func (ix *Indexer) readChunks(ctx context.Context, file FileContent, s IndexSettings) ([]string, error) {
	r, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", file.Name(), err)
	}
	defer r.Close()

	step := s.ChunkSize - s.ChunkOverlap
	var chunks []string
	window := make([]rune, 0, s.ChunkSize)
	buf := make([]byte, 32*1024)
	var carry []byte

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			carry = append(carry, buf[:n]...)
			// Decode what is complete; keep any trailing partial rune.
			decoded, rest := decodeRunes(carry)
			carry = rest
			window = append(window, decoded...)
			for len(window) >= s.ChunkSize {
				chunks = append(chunks, string(window[:s.ChunkSize]))
				if len(chunks) >= maxChunksPerFile {
					return chunks, nil
				}
				window = window[step:]
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("reading %s: %w", file.Name(), readErr)
		}
	}
	if len(carry) > 0 {
		window = append(window, []rune(string(carry))...)
	}
	if len(window) > 0 {
		chunks = append(chunks, string(window))
	}
	return chunks, nil
}

// decodeRunes splits b into fully-decodable runes and a trailing partial
// UTF-8 sequence, if any.
func decodeRunes(b []byte) ([]rune, []byte) {
	// A UTF-8 sequence is at most 4 bytes; only the tail can be partial.
	cut := len(b)
	for i := len(b) - 1; i >= 0 && i >= len(b)-4; i-- {
		c := b[i]
		if c < 0x80 {
			break // ASCII tail is complete
		}
		if c >= 0xC0 { // leading byte
			seqLen := 1
			switch {
			case c >= 0xF0:
				seqLen = 4
			case c >= 0xE0:
				seqLen = 3
			default:
				seqLen = 2
			}
			if len(b)-i < seqLen {
				cut = i
			}
			break
		}
	}
	return []rune(string(b[:cut])), b[cut:]
}

// embedChunks fills in embeddings in batches. Any batch failure aborts the
// remainder; already-filled vectors are kept.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []Chunk, model string) error {
	if ix.Embedder == nil || model == "" {
		return nil
	}
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		inputs := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			inputs = append(inputs, c.Text)
		}
		vectors, err := ix.Embedder.Embed(ctx, model, inputs)
		if err != nil {
			return err
		}
		for i := start; i < end && i-start < len(vectors); i++ {
			chunks[i].Embedding = vectors[i-start]
			chunks[i].EmbeddingModel = model
		}
	}
	return nil
}

func allModelsMatch(chunks []Chunk, model string) bool {
	for _, c := range chunks {
		if c.EmbeddingModel != model {
			return false
		}
	}
	return true
}

// textExtensions are filename extensions accepted as text when the MIME type
// is not conclusive.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true, ".tsv": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".xml": true,
	".html": true, ".ics": true, ".log": true, ".go": true, ".py": true,
	".js": true, ".ts": true, ".rs": true, ".java": true, ".c": true,
	".h": true, ".sh": true, ".sql": true,
}

// IsTextLike reports whether an attachment should be chunked as text, by
// MIME prefix/allow-list or filename extension.
func IsTextLike(mimeType, name string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/javascript",
		"application/x-yaml", "application/toml":
		return true
	}
	return textExtensions[strings.ToLower(filepath.Ext(name))]
}
