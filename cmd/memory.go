package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"loom/weft/internal/convo"
	"loom/weft/internal/memory"
)

var memoryJSON bool

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Extract, inspect, and retrieve long-term memories",
}

var memoryExtractCmd = &cobra.Command{
	Use:   "extract <scope-type> <scope-id> <conversation> <node>",
	Short: "Extract memory candidates from a node's messages into a scope",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeType, scopeID, convID, nodeID := args[0], args[1], args[2], args[3]
		if err := validScope(scopeType); err != nil {
			return err
		}

		s, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if !cfg.Memory.Enabled {
			return fmt.Errorf("memory is disabled (set memory.enabled)")
		}

		nodes, _, err := s.LoadGraph(cmd.Context(), convID)
		if err != nil {
			return err
		}
		node, ok := nodes[nodeID]
		if !ok {
			return fmt.Errorf("node not found: %s", nodeID)
		}

		client := newAIClient(cfg)
		settings := cfg.ExtractSettings()
		created, merged := 0, 0

		for _, m := range node.Messages {
			if m.Role == convo.RoleSystem {
				continue
			}
			for _, cand := range memory.Extract(m.Content, m.Role, settings) {
				existing, err := s.FindMemoryByNormalizedText(cmd.Context(), scopeType, scopeID, cand.NormalizedText)
				if err != nil {
					return err
				}

				var embedding []float32
				if client != nil {
					vecs, err := client.Embed(cmd.Context(), cfg.AI.EmbeddingModel, []string{cand.Text})
					if err != nil {
						log.Warn().Err(err).Msg("memory embedding failed, storing without vector")
					} else if len(vecs) == 1 {
						embedding = vecs[0]
					}
				}

				up := memory.BuildUpsert(scopeType, scopeID, cand, existing, m.ID, embedding, cfg.AI.EmbeddingModel)
				if err := s.SaveMemory(cmd.Context(), up.Item); err != nil {
					return err
				}
				if up.Created {
					created++
				} else {
					merged++
				}
			}
		}

		fmt.Printf("%d created, %d merged\n", created, merged)
		return nil
	},
}

var memoryListCmd = &cobra.Command{
	Use:   "list <scope-type> <scope-id>",
	Short: "List a scope's memories, pinned first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validScope(args[0]); err != nil {
			return err
		}
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		items, err := s.LoadMemoriesForScope(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if memoryJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}
		if len(items) == 0 {
			fmt.Println("no memories")
			return nil
		}
		for _, item := range items {
			pin := " "
			if item.Pinned {
				pin = "*"
			}
			fmt.Printf("  %s%s [%s %.2f] %s\n", pin, shortID(item.ID), item.Category, item.Confidence, item.Text)
		}
		return nil
	},
}

var memoryQueryCmd = &cobra.Command{
	Use:   "query <scope-type> <scope-id> <text>",
	Short: "Rank a scope's memories against a query",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeType, scopeID, query := args[0], args[1], args[2]
		if err := validScope(scopeType); err != nil {
			return err
		}
		s, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		items, err := s.LoadMemoriesForScope(cmd.Context(), scopeType, scopeID)
		if err != nil {
			return err
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

		scored := memory.Retrieve(items, query, queryVec, cfg.AI.EmbeddingModel,
			time.Now().UnixMilli(), cfg.RetrieveSettings())

		if memoryJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(scored)
		}
		if len(scored) == 0 {
			fmt.Println("no matches")
			return nil
		}
		fmt.Println(memory.PromptBlock(scored))
		return nil
	},
}

var memoryPinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Pin a memory so retrieval always favors it",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setPinned(cmd, args[0], true) },
}

var memoryUnpinCmd = &cobra.Command{
	Use:   "unpin <id>",
	Short: "Remove a memory's pin",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setPinned(cmd, args[0], false) },
}

var memoryForgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		return s.DeleteMemory(cmd.Context(), args[0])
	},
}

func setPinned(cmd *cobra.Command, id string, pinned bool) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.SetMemoryPinned(cmd.Context(), id, pinned)
}

func init() {
	memoryCmd.PersistentFlags().BoolVar(&memoryJSON, "json", false, "JSON output")
	memoryCmd.AddCommand(memoryExtractCmd)
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryQueryCmd)
	memoryCmd.AddCommand(memoryPinCmd)
	memoryCmd.AddCommand(memoryUnpinCmd)
	memoryCmd.AddCommand(memoryForgetCmd)
	rootCmd.AddCommand(memoryCmd)
}
