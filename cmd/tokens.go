package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"loom/weft/internal/convo"
	"loom/weft/internal/graph"
)

var (
	tokensJSON        bool
	tokensToolCount   int
	tokensMCPServers  string
	tokensPreview     int
	tokensHavePreview bool
)

var tokensCmd = &cobra.Command{
	Use:   "tokens <conversation> <node>",
	Short: "Estimate the token footprint of a node's context plus tool and memory overhead",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, cfg, err := openStore()
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

		result := convo.ComputeContext(convo.ContextParams{
			TargetNodeID: args[1],
			Nodes:        nodes,
			Adj:          graph.BuildAdjacency(edges),
			SystemPrompt: conv.SystemPrompt,
			Settings:     convo.DefaultContextSettings(),
			RootID:       conv.RootNodeID,
		})

		tools := convo.ToolSettings{ToolCount: tokensToolCount}
		if tokensMCPServers != "" {
			for _, entry := range strings.Split(tokensMCPServers, ",") {
				name, countStr, _ := strings.Cut(strings.TrimSpace(entry), "=")
				count, _ := strconv.Atoi(countStr)
				tools.MCPServers = append(tools.MCPServers, convo.MCPServer{Name: name, ToolCount: count})
			}
		}

		extra := convo.ExtraTokens(tools, tokensPreview, tokensHavePreview, cfg.Memory.MaxRetrieved)

		if tokensJSON {
			out := struct {
				ContextTokens int `json:"context_tokens"`
				ExtraTokens   int `json:"extra_tokens"`
				Total         int `json:"total"`
			}{result.TokenEstimate, extra, result.TokenEstimate + extra}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		fmt.Printf("context:  ~%d tokens (%d messages)\n", result.TokenEstimate, len(result.Messages))
		fmt.Printf("overhead: ~%d tokens\n", extra)
		fmt.Printf("total:    ~%d tokens\n", result.TokenEstimate+extra)
		return nil
	},
}

func init() {
	tokensCmd.Flags().BoolVar(&tokensJSON, "json", false, "JSON output")
	tokensCmd.Flags().IntVar(&tokensToolCount, "tools", 0, "Number of enabled tools")
	tokensCmd.Flags().StringVar(&tokensMCPServers, "mcp", "", "MCP servers as name=toolcount, comma-separated (0 = undiscovered)")
	tokensCmd.Flags().IntVar(&tokensPreview, "memory-preview", 0, "Number of memories in a retrieval preview")
	tokensCmd.Flags().BoolVar(&tokensHavePreview, "have-preview", false, "A retrieval preview is available")
	rootCmd.AddCommand(tokensCmd)
}
