package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loom/weft/internal/convo"
	"loom/weft/internal/graph"
)

// ErrRootProtected is returned when deletion targets a conversation's root
// node.
var ErrRootProtected = errors.New("root node cannot be deleted")

// ErrNotFound reports a missing row where one was required.
var ErrNotFound = errors.New("not found")

// Conversation is one stored conversation with its protected root node.
type Conversation struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	RootNodeID   string `json:"root_node_id"`
	SystemPrompt string `json:"system_prompt"`
	CreatedAt    int64  `json:"created_at"`
}

// CreateConversation creates a conversation together with its root node in
// one transaction.
func (s *Store) CreateConversation(ctx context.Context, title, systemPrompt string) (*Conversation, error) {
	now := time.Now().UnixMilli()
	conv := &Conversation{
		ID:           uuid.NewString(),
		Title:        title,
		RootNodeID:   uuid.NewString(),
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, root_node_id, system_prompt, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, conv.ID, conv.Title, conv.RootNodeID, conv.SystemPrompt, conv.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (id, conversation_id, status, created_at)
		VALUES (?, ?, ?, ?)
	`, conv.RootNodeID, conv.ID, convo.StatusIdle, now); err != nil {
		return nil, fmt.Errorf("inserting root node: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation returns a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, title, root_node_id, system_prompt, created_at
		FROM conversations WHERE id = ?
	`, id).Scan(&c.ID, &c.Title, &c.RootNodeID, &c.SystemPrompt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// NodeOpts carries optional fields for node creation.
type NodeOpts struct {
	IsReply        bool
	ParentNodeID   string
	ContextSummary string
}

// CreateNode inserts a node. Reply nodes must carry a parent pointer.
func (s *Store) CreateNode(ctx context.Context, conversationID string, opts NodeOpts) (*convo.Node, error) {
	if opts.IsReply && opts.ParentNodeID == "" {
		return nil, errors.New("reply node requires a parent node")
	}
	node := &convo.Node{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Status:         convo.StatusIdle,
		IsReply:        opts.IsReply,
		ParentNodeID:   opts.ParentNodeID,
		ContextSummary: opts.ContextSummary,
		CreatedAt:      time.Now().UnixMilli(),
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO nodes (id, conversation_id, status, is_reply, parent_node_id, context_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, node.ID, node.ConversationID, node.Status, node.IsReply,
		nullable(node.ParentNodeID), nullable(node.ContextSummary), node.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting node: %w", err)
	}
	return node, nil
}

// DeleteNode removes a node and its messages. The conversation root is
// protected.
func (s *Store) DeleteNode(ctx context.Context, conversationID, nodeID string) error {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.RootNodeID == nodeID {
		return ErrRootProtected
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE conversation_id = ? AND (source_id = ? OR target_id = ?)`,
		conversationID, nodeID, nodeID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, nodeID); err != nil {
		return err
	}
	return tx.Commit()
}

// AddMessage appends a message to a node.
func (s *Store) AddMessage(ctx context.Context, nodeID string, m convo.Message) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO messages (id, node_id, role, content, created_at, streaming,
			is_attachment_context, is_custom_instruction, is_project_instruction, is_project_attachment_context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, nodeID, m.Role, m.Content, m.CreatedAt, m.Streaming,
		m.IsAttachmentContext, m.IsCustomInstruction, m.IsProjectInstruction, m.IsProjectAttachmentContext)
	if err != nil {
		return "", fmt.Errorf("inserting message: %w", err)
	}
	return m.ID, nil
}

// UpdateMessageContent rewrites a message's content and streaming flag.
func (s *Store) UpdateMessageContent(ctx context.Context, messageID, content string, streaming bool) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE messages SET content = ?, streaming = ? WHERE id = ?
	`, content, streaming, messageID)
	return err
}

// CreateEdge inserts a branch edge after validating both endpoints exist,
// neither is a reply node, and the edge would not close a cycle. Structural
// violations are rejected before any write.
func (s *Store) CreateEdge(ctx context.Context, conversationID, sourceID, targetID string) (*graph.Edge, error) {
	nodes, edges, err := s.LoadGraph(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	for _, id := range []string{sourceID, targetID} {
		node, ok := nodes[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", graph.ErrUnknownNode, id)
		}
		if node.IsReply {
			return nil, fmt.Errorf("%w: %s is a reply node", graph.ErrUnknownNode, id)
		}
	}

	adj := graph.BuildAdjacency(edges)
	if graph.WouldCreateCycle(adj, sourceID, targetID) {
		return nil, fmt.Errorf("%w: %s -> %s", graph.ErrWouldCycle, sourceID, targetID)
	}

	edge := &graph.Edge{
		ID:        uuid.NewString(),
		Source:    sourceID,
		Target:    targetID,
		CreatedAt: time.Now().UnixMilli(),
	}
	if _, err := s.conn.ExecContext(ctx, `
		INSERT INTO edges (id, conversation_id, source_id, target_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, edge.ID, conversationID, edge.Source, edge.Target, edge.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting edge: %w", err)
	}
	return edge, nil
}

// LoadGraph loads every node (with messages, normalized) and every branch
// edge of a conversation. Edges touching reply nodes are excluded from the
// returned edge list.
func (s *Store) LoadGraph(ctx context.Context, conversationID string) (map[string]*convo.Node, []graph.Edge, error) {
	nodes := make(map[string]*convo.Node)

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, conversation_id, status, is_reply, parent_node_id, context_summary, created_at
		FROM nodes WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var n convo.Node
		var parent, summary sql.NullString
		if err := rows.Scan(&n.ID, &n.ConversationID, &n.Status, &n.IsReply, &parent, &summary, &n.CreatedAt); err != nil {
			return nil, nil, err
		}
		n.ParentNodeID = parent.String
		n.ContextSummary = summary.String
		nodes[n.ID] = &n
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	msgRows, err := s.conn.QueryContext(ctx, `
		SELECT m.id, m.node_id, m.role, m.content, m.created_at, m.streaming,
		       m.is_attachment_context, m.is_custom_instruction,
		       m.is_project_instruction, m.is_project_attachment_context
		FROM messages m JOIN nodes n ON m.node_id = n.id
		WHERE n.conversation_id = ?
		ORDER BY m.created_at
	`, conversationID)
	if err != nil {
		return nil, nil, err
	}
	defer msgRows.Close()
	for msgRows.Next() {
		var m convo.Message
		var nodeID string
		if err := msgRows.Scan(&m.ID, &nodeID, &m.Role, &m.Content, &m.CreatedAt, &m.Streaming,
			&m.IsAttachmentContext, &m.IsCustomInstruction,
			&m.IsProjectInstruction, &m.IsProjectAttachmentContext); err != nil {
			return nil, nil, err
		}
		if node, ok := nodes[nodeID]; ok {
			node.Messages = append(node.Messages, m)
		}
	}
	if err := msgRows.Err(); err != nil {
		return nil, nil, err
	}

	convo.NormalizeMessages(nodes)

	edgeRows, err := s.conn.QueryContext(ctx, `
		SELECT id, source_id, target_id, created_at
		FROM edges WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return nil, nil, err
	}
	defer edgeRows.Close()
	var edges []graph.Edge
	for edgeRows.Next() {
		var e graph.Edge
		if err := edgeRows.Scan(&e.ID, &e.Source, &e.Target, &e.CreatedAt); err != nil {
			return nil, nil, err
		}
		// Reply relationships live on the node, never in the branch DAG.
		if src, ok := nodes[e.Source]; !ok || src.IsReply {
			continue
		}
		if tgt, ok := nodes[e.Target]; !ok || tgt.IsReply {
			continue
		}
		edges = append(edges, e)
	}
	return nodes, edges, edgeRows.Err()
}
