package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"loom/weft/internal/convo"
	"loom/weft/internal/store"
)

var (
	newSystemPrompt string
	sayAttachment   bool
)

var newCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a conversation with its root node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		conv, err := s.CreateConversation(cmd.Context(), args[0], newSystemPrompt)
		if err != nil {
			return err
		}
		fmt.Printf("conversation %s (root node %s)\n", conv.ID, conv.RootNodeID)
		return nil
	},
}

var branchCmd = &cobra.Command{
	Use:   "branch <conversation> <parent-node>",
	Short: "Create a node branching from a parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		node, err := s.CreateNode(cmd.Context(), args[0], store.NodeOpts{})
		if err != nil {
			return err
		}
		if _, err := s.CreateEdge(cmd.Context(), args[0], args[1], node.ID); err != nil {
			return err
		}
		fmt.Printf("node %s <- %s\n", node.ID, shortID(args[1]))
		return nil
	},
}

var replyCmd = &cobra.Command{
	Use:   "reply <conversation> <parent-node>",
	Short: "Create a reply side-thread attached to a node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		node, err := s.CreateNode(cmd.Context(), args[0], store.NodeOpts{
			IsReply:      true,
			ParentNodeID: args[1],
		})
		if err != nil {
			return err
		}
		fmt.Printf("reply node %s -> %s\n", node.ID, shortID(args[1]))
		return nil
	},
}

var sayCmd = &cobra.Command{
	Use:   "say <node> <role> <content>",
	Short: "Append a message to a node",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		role := args[1]
		if role != convo.RoleUser && role != convo.RoleAssistant && role != convo.RoleSystem {
			return fmt.Errorf("unknown role %q (want user, assistant, or system)", role)
		}

		id, err := s.AddMessage(cmd.Context(), args[0], convo.Message{
			ID:                  uuid.NewString(),
			Role:                role,
			Content:             args[2],
			CreatedAt:           time.Now().UnixMilli(),
			IsAttachmentContext: sayAttachment && role == convo.RoleSystem,
		})
		if err != nil {
			return err
		}
		fmt.Printf("message %s\n", id)
		return nil
	},
}

var linkCmd = &cobra.Command{
	Use:   "link <conversation> <source-node> <target-node>",
	Short: "Add a branch edge between existing nodes",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		edge, err := s.CreateEdge(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("edge %s: %s -> %s\n", edge.ID, shortID(edge.Source), shortID(edge.Target))
		return nil
	},
}

func init() {
	newCmd.Flags().StringVar(&newSystemPrompt, "system", "", "Conversation system prompt")
	sayCmd.Flags().BoolVar(&sayAttachment, "attachment-context", false, "Mark a system message as attachment context")
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(linkCmd)
}
