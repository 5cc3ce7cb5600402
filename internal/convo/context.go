package convo

import (
	"loom/weft/internal/graph"
)

// Instructions are the configurable instruction texts injected ahead of the
// conversation. Empty strings inject nothing.
type Instructions struct {
	UserProfile    string
	UserStyle      string
	ProjectProfile string
	ProjectStyle   string
}

// ContextSettings toggles individual parts of context assembly.
type ContextSettings struct {
	IncludeUserProfile              bool
	IncludeUserStyle                bool
	IncludeProjectProfile           bool
	IncludeProjectStyle             bool
	IncludeSystemPrompt             bool
	IncludeAttachmentContext        bool
	IncludeProjectAttachmentContext bool
	ExcludedNodeIDs                 map[string]bool
}

// DefaultContextSettings enables everything.
func DefaultContextSettings() ContextSettings {
	return ContextSettings{
		IncludeUserProfile:              true,
		IncludeUserStyle:                true,
		IncludeProjectProfile:           true,
		IncludeProjectStyle:             true,
		IncludeSystemPrompt:             true,
		IncludeAttachmentContext:        true,
		IncludeProjectAttachmentContext: true,
	}
}

// ContextParams are the inputs to ComputeContext. Nodes and Adj are
// snapshots; ComputeContext never mutates them.
type ContextParams struct {
	TargetNodeID string
	Nodes        map[string]*Node
	Adj          *graph.Adjacency
	SystemPrompt string
	Instructions Instructions
	Settings     ContextSettings
	RootID       string
}

// Context is the assembled prompt: node path, ordered messages, and a token
// estimate.
type Context struct {
	NodeIDs       []string  `json:"node_ids"`
	Messages      []Message `json:"messages"`
	TokenEstimate int       `json:"token_estimate"`
}

// ComputeContext assembles the ordered message sequence for a target node.
// Pure function: identical inputs yield identical output.
//
// The path from root to target is single and deterministic. At a fork the
// parent recorded in ParentNodeID wins; absent that, the most recently
// created parent wins, with exact timestamp ties broken by smallest node ID.
func ComputeContext(p ContextParams) *Context {
	replyChain, branchTarget := resolveThreadPath(p.TargetNodeID, p.Nodes)

	ancestors := collectAncestors(branchTarget, p.Nodes, p.Adj)
	ordered := graph.TopoSort(ancestors, p.Adj)
	ordered = append(ordered, replyChain...)

	ctx := &Context{}
	ctx.Messages = append(ctx.Messages, instructionMessages(p)...)

	// A context summary on the most recent node that has one replaces all
	// earlier ancestor content.
	summaryIdx, summaryMsg := latestSummary(ordered, p.Nodes)
	if summaryIdx >= 0 {
		ctx.Messages = append(ctx.Messages, summaryMsg)
		ordered = ordered[summaryIdx:]
	}

	totalChars := 0
	for _, m := range ctx.Messages {
		totalChars += len(m.Content)
	}

	for _, nodeID := range ordered {
		node, ok := p.Nodes[nodeID]
		if !ok {
			continue // partially-loaded state is not fatal
		}
		if p.Settings.ExcludedNodeIDs[nodeID] {
			continue
		}
		ctx.NodeIDs = append(ctx.NodeIDs, nodeID)
		for _, m := range node.Messages {
			if !keepMessage(m, p.Settings) {
				continue
			}
			ctx.Messages = append(ctx.Messages, m)
			totalChars += len(m.Content)
		}
	}

	ctx.TokenEstimate = EstimateChars(totalChars)
	return ctx
}

// resolveThreadPath walks ParentNodeID links up from a reply target until a
// non-reply node is found. Returns the reply chain oldest-first and the
// branch node the chain hangs off (the target itself when it is not a reply).
func resolveThreadPath(targetID string, nodes map[string]*Node) (chain []string, branchTarget string) {
	current := targetID
	visited := map[string]bool{}
	for {
		node, ok := nodes[current]
		if !ok || !node.IsReply {
			break
		}
		if visited[current] {
			break // defensive; reply chains must not loop
		}
		visited[current] = true
		chain = append(chain, current)
		if node.ParentNodeID == "" {
			current = ""
			break
		}
		current = node.ParentNodeID
	}
	// Reverse to oldest-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, current
}

// collectAncestors walks the branch graph upward from the target, selecting
// exactly one parent at every fork, and returns the path in discovery order
// (target first). Sibling branches never leak in.
func collectAncestors(targetID string, nodes map[string]*Node, adj *graph.Adjacency) []string {
	if targetID == "" {
		return nil
	}
	var path []string
	visited := map[string]bool{}
	current := targetID
	for current != "" && !visited[current] {
		visited[current] = true
		path = append(path, current)
		current = selectParent(current, nodes, adj)
	}
	return path
}

// selectParent picks the single parent to follow from a node. Preference
// order: the explicitly recorded ParentNodeID when it is a real reverse
// parent, else the parent with the largest CreatedAt, ties by smallest ID.
func selectParent(nodeID string, nodes map[string]*Node, adj *graph.Adjacency) string {
	parents := adj.Reverse[nodeID]
	if len(parents) == 0 {
		return ""
	}
	if node, ok := nodes[nodeID]; ok && node.ParentNodeID != "" {
		for _, p := range parents {
			if p == node.ParentNodeID {
				return p
			}
		}
	}

	best := ""
	var bestCreated int64 = -1
	for _, p := range parents {
		var created int64
		if pn, ok := nodes[p]; ok {
			created = pn.CreatedAt
		}
		if created > bestCreated || (created == bestCreated && (best == "" || p < best)) {
			best = p
			bestCreated = created
		}
	}
	return best
}

// instructionMessages builds the synthetic system messages in their fixed
// order: user profile, user style, project profile, project style,
// conversation system prompt. Synthetic IDs, CreatedAt zero so they always
// sort first.
func instructionMessages(p ContextParams) []Message {
	type slot struct {
		id      string
		text    string
		enabled bool
		project bool
	}
	slots := []slot{
		{"instruction:user-profile", p.Instructions.UserProfile, p.Settings.IncludeUserProfile, false},
		{"instruction:user-style", p.Instructions.UserStyle, p.Settings.IncludeUserStyle, false},
		{"instruction:project-profile", p.Instructions.ProjectProfile, p.Settings.IncludeProjectProfile, true},
		{"instruction:project-style", p.Instructions.ProjectStyle, p.Settings.IncludeProjectStyle, true},
		{"instruction:system-prompt", p.SystemPrompt, p.Settings.IncludeSystemPrompt, false},
	}

	var msgs []Message
	for _, s := range slots {
		if !s.enabled || s.text == "" {
			continue
		}
		msgs = append(msgs, Message{
			ID:                   s.id,
			Role:                 RoleSystem,
			Content:              s.text,
			CreatedAt:            0,
			IsCustomInstruction:  !s.project,
			IsProjectInstruction: s.project,
		})
	}
	return msgs
}

// latestSummary finds the last node on the ordered path carrying a context
// summary. Returns its index and the synthetic summary message, or (-1, {}).
func latestSummary(ordered []string, nodes map[string]*Node) (int, Message) {
	for i := len(ordered) - 1; i >= 0; i-- {
		node, ok := nodes[ordered[i]]
		if ok && node.ContextSummary != "" {
			return i, Message{
				ID:        "summary:" + node.ID,
				Role:      RoleSystem,
				Content:   node.ContextSummary,
				CreatedAt: 0,
			}
		}
	}
	return -1, Message{}
}

// keepMessage applies the per-node filter: all non-system messages survive;
// system messages survive only as gated attachment context. Stored system
// prompt duplicates are dropped; the synthetic instructions are
// authoritative.
func keepMessage(m Message, s ContextSettings) bool {
	if m.Role != RoleSystem {
		return true
	}
	if !m.IsAttachmentContext {
		return false
	}
	if m.IsProjectAttachmentContext {
		return s.IncludeProjectAttachmentContext
	}
	return s.IncludeAttachmentContext
}
