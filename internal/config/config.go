// Package config loads settings from defaults, an optional weft.toml, and
// WEFT_-prefixed environment variables, in that order of precedence. Values
// are clamped to safe ranges before use so downstream packages can assume
// sane inputs.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"loom/weft/internal/memory"
	"loom/weft/internal/rag"
)

const (
	MinChunkSize = 400
	MaxChunkSize = 6000
)

// Config is the full application configuration.
type Config struct {
	DB struct {
		Path string `koanf:"path"`
	} `koanf:"db"`

	AI struct {
		APIKey          string `koanf:"api_key"`
		BaseURL         string `koanf:"base_url"`
		CompletionModel string `koanf:"completion_model"`
		EmbeddingModel  string `koanf:"embedding_model"`
	} `koanf:"ai"`

	Index struct {
		ChunkSize    int    `koanf:"chunk_size"`
		ChunkOverlap int    `koanf:"chunk_overlap"`
		Mode         string `koanf:"mode"` // rag.ModeRetrieval or rag.ModeSummarize
	} `koanf:"index"`

	Retrieval struct {
		TopK int `koanf:"top_k"`
	} `koanf:"retrieval"`

	Memory struct {
		Enabled       bool    `koanf:"enabled"`
		MinConfidence float64 `koanf:"min_confidence"`
		MaxPerMessage int     `koanf:"max_per_message"`
		MaxRetrieved  int     `koanf:"max_retrieved"`
	} `koanf:"memory"`
}

var defaults = map[string]interface{}{
	"db.path":                "weft.db",
	"ai.completion_model":    "gpt-4o-mini",
	"ai.embedding_model":     "text-embedding-3-small",
	"index.chunk_size":       1200,
	"index.chunk_overlap":    200,
	"index.mode":             rag.ModeRetrieval,
	"retrieval.top_k":        8,
	"memory.enabled":         true,
	"memory.min_confidence":  0.45,
	"memory.max_per_message": 5,
	"memory.max_retrieved":   6,
}

// Load reads configuration. configPath may be empty, in which case default
// locations are tried and missing files are not an error.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
	} else {
		for _, path := range []string{"./weft.toml", "$HOME/.weft.toml"} {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// WEFT_INDEX_CHUNK_SIZE -> index.chunk_size. Only the first underscore
	// separates the section; keys themselves contain underscores.
	if err := k.Load(env.Provider("WEFT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "WEFT_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.clamp()
	return &cfg, nil
}

func (c *Config) clamp() {
	if c.Index.ChunkSize < MinChunkSize {
		c.Index.ChunkSize = MinChunkSize
	}
	if c.Index.ChunkSize > MaxChunkSize {
		c.Index.ChunkSize = MaxChunkSize
	}
	if c.Index.ChunkOverlap < 0 {
		c.Index.ChunkOverlap = 0
	}
	if c.Index.ChunkOverlap >= c.Index.ChunkSize {
		c.Index.ChunkOverlap = c.Index.ChunkSize - 1
	}
	if c.Index.Mode != rag.ModeSummarize {
		c.Index.Mode = rag.ModeRetrieval
	}
	if c.Retrieval.TopK < 1 {
		c.Retrieval.TopK = 1
	}
	if c.Memory.MinConfidence < 0 {
		c.Memory.MinConfidence = 0
	}
	if c.Memory.MinConfidence > 1 {
		c.Memory.MinConfidence = 1
	}
	if c.Memory.MaxPerMessage < 1 {
		c.Memory.MaxPerMessage = 1
	}
	if c.Memory.MaxRetrieved < 1 {
		c.Memory.MaxRetrieved = 1
	}
}

// IndexSettings returns the clamped attachment-indexing settings.
func (c *Config) IndexSettings() rag.IndexSettings {
	return rag.IndexSettings{
		ChunkSize:      c.Index.ChunkSize,
		ChunkOverlap:   c.Index.ChunkOverlap,
		EmbeddingModel: c.AI.EmbeddingModel,
	}
}

// ContextSettings returns the clamped attachment-context settings.
func (c *Config) ContextSettings() rag.ContextSettings {
	return rag.ContextSettings{
		Mode:           c.Index.Mode,
		TopK:           c.Retrieval.TopK,
		EmbeddingModel: c.AI.EmbeddingModel,
	}
}

// ExtractSettings returns the clamped memory-extraction settings.
func (c *Config) ExtractSettings() memory.ExtractSettings {
	return memory.ExtractSettings{
		MinConfidence: c.Memory.MinConfidence,
		MaxPerMessage: c.Memory.MaxPerMessage,
	}
}

// RetrieveSettings returns the clamped memory-retrieval settings.
func (c *Config) RetrieveSettings() memory.RetrieveSettings {
	return memory.RetrieveSettings{
		MaxRetrieved: c.Memory.MaxRetrieved,
	}
}
