package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"loom/weft/internal/rag"
)

var (
	queryJSON  bool
	queryTopK  int
	queryStale bool
)

var queryCmd = &cobra.Command{
	Use:   "query <scope-type> <scope-id> [text]",
	Short: "Hybrid lexical+semantic retrieval over a scope's chunks",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeType, scopeID := args[0], args[1]
		if err := validScope(scopeType); err != nil {
			return err
		}

		s, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if queryStale {
			stale, err := s.StaleChunkSources(cmd.Context(), scopeType, scopeID, cfg.AI.EmbeddingModel, nil)
			if err != nil {
				return err
			}
			if queryJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stale)
			}
			if len(stale) == 0 {
				fmt.Println("no stale sources")
				return nil
			}
			for _, key := range stale {
				fmt.Println(key)
			}
			return nil
		}

		if len(args) < 3 {
			return fmt.Errorf("query text required")
		}
		query := args[2]

		chunks, err := s.LoadChunksForScope(cmd.Context(), scopeType, scopeID)
		if err != nil {
			return err
		}

		if cfg.Index.Mode == rag.ModeSummarize {
			client := newAIClient(cfg)
			if client == nil {
				return fmt.Errorf("summarize mode requires an API key (set OPENAI_API_KEY or ai.api_key)")
			}
			block, err := rag.BuildScopeContext(cmd.Context(), chunks, query, nil, client, cfg.ContextSettings())
			if err != nil {
				return err
			}
			if block == "" {
				fmt.Println("no chunks to summarize")
				return nil
			}
			fmt.Println(block)
			return nil
		}

		var queryVec []float32
		if client := newAIClient(cfg); client != nil {
			vecs, err := client.Embed(cmd.Context(), cfg.AI.EmbeddingModel, []string{query})
			if err != nil {
				log.Warn().Err(err).Msg("query embedding failed, lexical only")
			} else if len(vecs) == 1 {
				queryVec = vecs[0]
			}
		}

		topK := queryTopK
		if topK == 0 {
			topK = cfg.Retrieval.TopK
		}
		results := rag.Retrieve(chunks, query, queryVec, cfg.AI.EmbeddingModel, topK)

		if queryJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}

		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for i, r := range results {
			text := r.Chunk.Text
			if len(text) > 80 {
				text = text[:80] + "..."
			}
			fmt.Printf("  %2d. %.3f (lex %.2f, sem %.2f) %s #%d: %s\n",
				i+1, r.Score, r.Lexical, r.Semantic, r.Chunk.SourceName, r.Chunk.Index, text)
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "JSON output")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "Max results (default from config)")
	queryCmd.Flags().BoolVar(&queryStale, "stale", false, "List stale source keys instead of querying")
	rootCmd.AddCommand(queryCmd)
}
