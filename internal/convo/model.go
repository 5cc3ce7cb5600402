package convo

import "sort"

// Node lifecycle statuses.
const (
	StatusIdle      = "idle"
	StatusStreaming = "streaming"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn inside a node. Identity is immutable; content and the
// streaming flag mutate while a response is in flight.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"` // Unix millis, ordering key
	Streaming bool   `json:"streaming"`

	// System sub-kinds. Only attachment-context system messages survive
	// context assembly; instruction duplicates stored in nodes are dropped
	// in favor of the synthetic instruction messages.
	IsAttachmentContext        bool `json:"is_attachment_context"`
	IsCustomInstruction        bool `json:"is_custom_instruction"`
	IsProjectInstruction       bool `json:"is_project_instruction"`
	IsProjectAttachmentContext bool `json:"is_project_attachment_context"`
}

// Node is a branch point in a conversation holding an ordered message list.
// Reply nodes (IsReply) are side-threads attached via ParentNodeID and are
// excluded from the branch adjacency maps.
type Node struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	Status         string    `json:"status"`
	IsReply        bool      `json:"is_reply"`
	ParentNodeID   string    `json:"parent_node_id,omitempty"`
	ContextSummary string    `json:"context_summary,omitempty"`
	CreatedAt      int64     `json:"created_at"`
}

// NormalizeMessages sorts each node's messages by CreatedAt and bumps
// duplicate timestamps so they strictly increase. Run once on load; after it,
// ordering ties are impossible.
func NormalizeMessages(nodes map[string]*Node) {
	for _, node := range nodes {
		sort.SliceStable(node.Messages, func(i, j int) bool {
			return node.Messages[i].CreatedAt < node.Messages[j].CreatedAt
		})
		for i := 1; i < len(node.Messages); i++ {
			if node.Messages[i].CreatedAt <= node.Messages[i-1].CreatedAt {
				node.Messages[i].CreatedAt = node.Messages[i-1].CreatedAt + 1
			}
		}
	}
}

// BranchNodeIDs returns the IDs of all non-reply nodes, for feeding graph
// algorithms that must never see reply nodes.
func BranchNodeIDs(nodes map[string]*Node) []string {
	ids := make([]string, 0, len(nodes))
	for id, n := range nodes {
		if !n.IsReply {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
