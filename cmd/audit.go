package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loom/weft/internal/convo"
	"loom/weft/internal/graph"
)

var auditJSON bool

var auditCmd = &cobra.Command{
	Use:   "audit <conversation>",
	Short: "Audit a conversation graph: components, orphans, reachability, cycles",
	Args:  cobra.ExactArgs(1),
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

		adj := graph.BuildAdjacency(edges)
		report := graph.Audit(convo.BranchNodeIDs(nodes), conv.RootNodeID, adj)

		if auditJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		fmt.Printf("Graph audit: %s\n", conv.Title)
		fmt.Printf("  nodes:      %d\n", report.TotalNodes)
		fmt.Printf("  edges:      %d\n", report.TotalEdges)
		fmt.Printf("  components: %d\n", report.NumComponents)
		printIDList("orphans", report.Orphans)
		printIDList("unreachable", report.Unreachable)
		printIDList("cycle nodes", report.CycleNodes)
		if report.Healthy() {
			fmt.Println("  status:     healthy")
			return nil
		}
		fmt.Println("  status:     UNHEALTHY")
		return nil
	},
}

func printIDList(label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Printf("  %s:\n", label)
	for _, id := range ids {
		fmt.Printf("    %s\n", id)
	}
}

func init() {
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "JSON output")
	rootCmd.AddCommand(auditCmd)
}
