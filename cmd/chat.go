package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"loom/weft/internal/convo"
	"loom/weft/internal/graph"
	"loom/weft/internal/rag"
)

var chatSystemOverride string

var chatCmd = &cobra.Command{
	Use:   "chat <conversation> <node> <prompt>",
	Short: "Send a prompt at a node and stream the assistant response",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		client := newAIClient(cfg)
		if client == nil {
			return fmt.Errorf("chat requires an API key (set OPENAI_API_KEY or ai.api_key)")
		}

		conv, err := s.GetConversation(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("conversation %s: %w", shortID(args[0]), err)
		}

		if _, err := s.AddMessage(cmd.Context(), args[1], convo.Message{
			ID:        uuid.NewString(),
			Role:      convo.RoleUser,
			Content:   args[2],
			CreatedAt: time.Now().UnixMilli(),
		}); err != nil {
			return err
		}

		nodes, edges, err := s.LoadGraph(cmd.Context(), conv.ID)
		if err != nil {
			return fmt.Errorf("loading graph: %w", err)
		}
		if _, ok := nodes[args[1]]; !ok {
			return fmt.Errorf("node not found: %s", args[1])
		}

		systemPrompt := conv.SystemPrompt
		if chatSystemOverride != "" {
			systemPrompt = chatSystemOverride
		}
		result := convo.ComputeContext(convo.ContextParams{
			TargetNodeID: args[1],
			Nodes:        nodes,
			Adj:          graph.BuildAdjacency(edges),
			SystemPrompt: systemPrompt,
			Settings:     convo.DefaultContextSettings(),
			RootID:       conv.RootNodeID,
		})

		system, user := flattenContext(result.Messages)

		// Indexed attachments on this conversation contribute a context block,
		// retrieved or summarized per the configured mode.
		chunks, err := s.LoadChunksForScope(cmd.Context(), rag.ScopeConversation, conv.ID)
		if err != nil {
			return fmt.Errorf("loading attachment chunks: %w", err)
		}
		if len(chunks) > 0 {
			var queryVec []float32
			if cfg.Index.Mode == rag.ModeRetrieval {
				vecs, err := client.Embed(cmd.Context(), cfg.AI.EmbeddingModel, []string{args[2]})
				if err != nil {
					log.Warn().Err(err).Msg("prompt embedding failed, lexical only")
				} else if len(vecs) == 1 {
					queryVec = vecs[0]
				}
			}
			block, err := rag.BuildScopeContext(cmd.Context(), chunks, args[2], queryVec, client, cfg.ContextSettings())
			if err != nil {
				return err
			}
			if block != "" {
				system += "\n\nAttachment context:\n" + block
			}
		}

		// Persist the placeholder before streaming so an interrupt leaves a
		// visible partial message rather than nothing.
		assistantID, err := s.AddMessage(cmd.Context(), args[1], convo.Message{
			ID:        uuid.NewString(),
			Role:      convo.RoleAssistant,
			CreatedAt: time.Now().UnixMilli(),
			Streaming: true,
		})
		if err != nil {
			return err
		}

		full, err := client.Stream(cmd.Context(), system, user, func(delta string) {
			fmt.Print(delta)
		})
		fmt.Println()
		if err != nil {
			return err
		}
		return s.UpdateMessageContent(cmd.Context(), assistantID, full, false)
	},
}

// flattenContext folds the assembled context into a system preamble and a
// transcript-style user body for the chat API.
func flattenContext(messages []convo.Message) (system, user string) {
	var sys, rest []string
	for _, m := range messages {
		if m.Role == convo.RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(sys, "\n\n"), strings.Join(rest, "\n")
}

func init() {
	chatCmd.Flags().StringVar(&chatSystemOverride, "system", "", "Override the conversation system prompt")
	rootCmd.AddCommand(chatCmd)
}
