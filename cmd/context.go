package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"loom/weft/internal/convo"
	"loom/weft/internal/graph"
)

var (
	ctxJSON             bool
	ctxNoSystemPrompt   bool
	ctxNoAttachments    bool
	ctxNoProjectAttach  bool
	ctxNoUserProfile    bool
	ctxNoUserStyle      bool
	ctxNoProjectProfile bool
	ctxNoProjectStyle   bool
	ctxExclude          string
	ctxUserProfile      string
	ctxUserStyle        string
	ctxProjectProfile   string
	ctxProjectStyle     string
)

var contextCmd = &cobra.Command{
	Use:   "context <conversation> <node>",
	Short: "Assemble the deterministic root-to-node message context",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		conv, err := s.GetConversation(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("conversation %s: %w", shortID(args[0]), err)
		}
		nodes, edges, err := s.LoadGraph(cmd.Context(), conv.ID)
		if err != nil {
			return fmt.Errorf("loading graph: %w", err)
		}
		if _, ok := nodes[args[1]]; !ok {
			return fmt.Errorf("node not found: %s", args[1])
		}

		settings := convo.DefaultContextSettings()
		settings.IncludeSystemPrompt = !ctxNoSystemPrompt
		settings.IncludeAttachmentContext = !ctxNoAttachments
		settings.IncludeProjectAttachmentContext = !ctxNoProjectAttach
		settings.IncludeUserProfile = !ctxNoUserProfile
		settings.IncludeUserStyle = !ctxNoUserStyle
		settings.IncludeProjectProfile = !ctxNoProjectProfile
		settings.IncludeProjectStyle = !ctxNoProjectStyle
		if ctxExclude != "" {
			settings.ExcludedNodeIDs = map[string]bool{}
			for _, id := range strings.Split(ctxExclude, ",") {
				settings.ExcludedNodeIDs[strings.TrimSpace(id)] = true
			}
		}

		result := convo.ComputeContext(convo.ContextParams{
			TargetNodeID: args[1],
			Nodes:        nodes,
			Adj:          graph.BuildAdjacency(edges),
			SystemPrompt: conv.SystemPrompt,
			Instructions: convo.Instructions{
				UserProfile:    ctxUserProfile,
				UserStyle:      ctxUserStyle,
				ProjectProfile: ctxProjectProfile,
				ProjectStyle:   ctxProjectStyle,
			},
			Settings: settings,
			RootID:   conv.RootNodeID,
		})

		if ctxJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Printf("Context for node %s (%d nodes on path, ~%d tokens)\n\n",
			shortID(args[1]), len(result.NodeIDs), result.TokenEstimate)
		for _, m := range result.Messages {
			content := m.Content
			if len(content) > 100 {
				content = content[:100] + "..."
			}
			fmt.Printf("  [%s] %s\n", m.Role, content)
		}
		return nil
	},
}

func init() {
	contextCmd.Flags().BoolVar(&ctxJSON, "json", false, "JSON output")
	contextCmd.Flags().BoolVar(&ctxNoSystemPrompt, "no-system-prompt", false, "Drop the conversation system prompt")
	contextCmd.Flags().BoolVar(&ctxNoAttachments, "no-attachment-context", false, "Drop attachment context messages")
	contextCmd.Flags().BoolVar(&ctxNoProjectAttach, "no-project-attachment-context", false, "Drop project attachment context messages")
	contextCmd.Flags().BoolVar(&ctxNoUserProfile, "no-user-profile", false, "Drop the user profile instruction")
	contextCmd.Flags().BoolVar(&ctxNoUserStyle, "no-user-style", false, "Drop the user style instruction")
	contextCmd.Flags().BoolVar(&ctxNoProjectProfile, "no-project-profile", false, "Drop the project profile instruction")
	contextCmd.Flags().BoolVar(&ctxNoProjectStyle, "no-project-style", false, "Drop the project style instruction")
	contextCmd.Flags().StringVar(&ctxExclude, "exclude", "", "Comma-separated node IDs to exclude")
	contextCmd.Flags().StringVar(&ctxUserProfile, "user-profile", "", "User profile instruction text")
	contextCmd.Flags().StringVar(&ctxUserStyle, "user-style", "", "User style instruction text")
	contextCmd.Flags().StringVar(&ctxProjectProfile, "project-profile", "", "Project profile instruction text")
	contextCmd.Flags().StringVar(&ctxProjectStyle, "project-style", "", "Project style instruction text")
	rootCmd.AddCommand(contextCmd)
}
