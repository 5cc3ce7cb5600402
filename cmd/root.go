package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"loom/weft/internal/ai"
	"loom/weft/internal/config"
	"loom/weft/internal/store"
)

var (
	dbPath  string
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Branching conversation graphs with hybrid retrieval",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to weft.db database")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to weft.toml config file")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgPath)
}

// resolveDBPath finds the database path using priority: env > flag >
// walk-up > config default. The path need not exist yet; commands that
// create conversations also create the database.
func resolveDBPath(cfg *config.Config) string {
	if envPath := os.Getenv("WEFT_DB"); envPath != "" {
		return envPath
	}
	if dbPath != "" {
		return dbPath
	}
	if dir, err := os.Getwd(); err == nil {
		for {
			candidate := filepath.Join(dir, "weft.db")
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return cfg.DB.Path
}

func openStore() (*store.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(resolveDBPath(cfg))
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

// newAIClient returns nil when no API key is configured; callers degrade to
// lexical-only behavior.
func newAIClient(cfg *config.Config) *ai.Client {
	if cfg.AI.APIKey == "" {
		return nil
	}
	return ai.NewClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.CompletionModel)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
