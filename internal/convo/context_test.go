package convo

import (
	"fmt"
	"reflect"
	"testing"

	"loom/weft/internal/graph"
)

func testNode(id string, createdAt int64, contents ...string) *Node {
	n := &Node{ID: id, ConversationID: "conv", Status: StatusIdle, CreatedAt: createdAt}
	for i, c := range contents {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		n.Messages = append(n.Messages, Message{
			ID:        fmt.Sprintf("%s-m%d", id, i),
			Role:      role,
			Content:   c,
			CreatedAt: createdAt + int64(i),
		})
	}
	return n
}

func chainFixture() (map[string]*Node, *graph.Adjacency) {
	nodes := map[string]*Node{
		"root": testNode("root", 1, "root msg"),
		"a":    testNode("a", 2, "a msg"),
		"b":    testNode("b", 3, "b msg"),
	}
	adj := graph.BuildAdjacency([]graph.Edge{
		{ID: "e1", Source: "root", Target: "a", CreatedAt: 10},
		{ID: "e2", Source: "a", Target: "b", CreatedAt: 20},
	})
	return nodes, adj
}

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestComputeContext_LinearChain(t *testing.T) {
	nodes, adj := chainFixture()
	ctx := ComputeContext(ContextParams{
		TargetNodeID: "b",
		Nodes:        nodes,
		Adj:          adj,
		Settings:     DefaultContextSettings(),
		RootID:       "root",
	})

	want := []string{"root msg", "a msg", "b msg"}
	if !reflect.DeepEqual(contents(ctx.Messages), want) {
		t.Errorf("messages = %v, want %v", contents(ctx.Messages), want)
	}
	// ceil(len("root msg"+"a msg"+"b msg")/4) = ceil(18/4) = 5
	if ctx.TokenEstimate != 5 {
		t.Errorf("token estimate = %d, want 5", ctx.TokenEstimate)
	}
	if !reflect.DeepEqual(ctx.NodeIDs, []string{"root", "a", "b"}) {
		t.Errorf("node ids = %v", ctx.NodeIDs)
	}
}

func TestComputeContext_Deterministic(t *testing.T) {
	nodes, adj := chainFixture()
	params := ContextParams{
		TargetNodeID: "b", Nodes: nodes, Adj: adj,
		SystemPrompt: "be brief",
		Settings:     DefaultContextSettings(),
		RootID:       "root",
	}
	first := ComputeContext(params)
	for i := 0; i < 5; i++ {
		if got := ComputeContext(params); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs", i)
		}
	}
}

func TestComputeContext_ThreadIsolation(t *testing.T) {
	nodes := map[string]*Node{
		"root":   testNode("root", 1, "root msg"),
		"a":      testNode("a", 2, "a msg"),
		"b":      testNode("b", 3, "b only"),
		"target": testNode("target", 4, "target msg"),
	}
	adj := graph.BuildAdjacency([]graph.Edge{
		{ID: "e1", Source: "root", Target: "a", CreatedAt: 10},
		{ID: "e2", Source: "root", Target: "b", CreatedAt: 11},
		{ID: "e3", Source: "a", Target: "target", CreatedAt: 12},
	})

	ctx := ComputeContext(ContextParams{
		TargetNodeID: "target", Nodes: nodes, Adj: adj,
		Settings: DefaultContextSettings(), RootID: "root",
	})
	for _, c := range contents(ctx.Messages) {
		if c == "b only" {
			t.Fatal("sibling branch content leaked into context")
		}
	}
	want := []string{"root msg", "a msg", "target msg"}
	if !reflect.DeepEqual(contents(ctx.Messages), want) {
		t.Errorf("messages = %v, want %v", contents(ctx.Messages), want)
	}
}

func TestComputeContext_ForkPrefersExplicitParent(t *testing.T) {
	nodes := map[string]*Node{
		"root": testNode("root", 1, "root msg"),
		"a":    testNode("a", 2, "a msg"),
		"b":    testNode("b", 3, "b msg"),
		"c":    testNode("c", 4, "c msg"),
	}
	nodes["c"].ParentNodeID = "a" // c has two branch parents; a is recorded
	adj := graph.BuildAdjacency([]graph.Edge{
		{ID: "e1", Source: "root", Target: "a", CreatedAt: 10},
		{ID: "e2", Source: "root", Target: "b", CreatedAt: 11},
		{ID: "e3", Source: "a", Target: "c", CreatedAt: 12},
		{ID: "e4", Source: "b", Target: "c", CreatedAt: 13},
	})

	ctx := ComputeContext(ContextParams{
		TargetNodeID: "c", Nodes: nodes, Adj: adj,
		Settings: DefaultContextSettings(), RootID: "root",
	})
	want := []string{"root msg", "a msg", "c msg"}
	if !reflect.DeepEqual(contents(ctx.Messages), want) {
		t.Errorf("messages = %v, want %v", contents(ctx.Messages), want)
	}
}

func TestComputeContext_ForkTiebreakByRecency(t *testing.T) {
	nodes := map[string]*Node{
		"root":  testNode("root", 1, "root msg"),
		"early": testNode("early", 2, "early msg"),
		"late":  testNode("late", 9, "late msg"),
		"c":     testNode("c", 10, "c msg"),
	}
	adj := graph.BuildAdjacency([]graph.Edge{
		{ID: "e1", Source: "root", Target: "early", CreatedAt: 10},
		{ID: "e2", Source: "root", Target: "late", CreatedAt: 11},
		{ID: "e3", Source: "early", Target: "c", CreatedAt: 12},
		{ID: "e4", Source: "late", Target: "c", CreatedAt: 13},
	})

	// No explicit parent: the most recently created parent wins.
	ctx := ComputeContext(ContextParams{
		TargetNodeID: "c", Nodes: nodes, Adj: adj,
		Settings: DefaultContextSettings(), RootID: "root",
	})
	want := []string{"root msg", "late msg", "c msg"}
	if !reflect.DeepEqual(contents(ctx.Messages), want) {
		t.Errorf("messages = %v, want %v", contents(ctx.Messages), want)
	}
}

func TestComputeContext_InstructionOrder(t *testing.T) {
	nodes, adj := chainFixture()
	ctx := ComputeContext(ContextParams{
		TargetNodeID: "b", Nodes: nodes, Adj: adj,
		SystemPrompt: "SP",
		Instructions: Instructions{
			UserProfile: "UP", UserStyle: "US",
			ProjectProfile: "PP", ProjectStyle: "PS",
		},
		Settings: DefaultContextSettings(),
		RootID:   "root",
	})

	want := []string{"UP", "US", "PP", "PS", "SP", "root msg", "a msg", "b msg"}
	if !reflect.DeepEqual(contents(ctx.Messages), want) {
		t.Errorf("messages = %v, want %v", contents(ctx.Messages), want)
	}
	for i := 0; i < 5; i++ {
		m := ctx.Messages[i]
		if m.Role != RoleSystem || m.CreatedAt != 0 {
			t.Errorf("instruction %d: role=%s createdAt=%d", i, m.Role, m.CreatedAt)
		}
	}
}

func TestComputeContext_InstructionToggles(t *testing.T) {
	nodes, adj := chainFixture()
	settings := DefaultContextSettings()
	settings.IncludeUserProfile = false
	settings.IncludeProjectStyle = false

	ctx := ComputeContext(ContextParams{
		TargetNodeID: "b", Nodes: nodes, Adj: adj,
		SystemPrompt: "SP",
		Instructions: Instructions{
			UserProfile: "UP", UserStyle: "US",
			ProjectProfile: "PP", ProjectStyle: "PS",
		},
		Settings: settings,
		RootID:   "root",
	})
	want := []string{"US", "PP", "SP", "root msg", "a msg", "b msg"}
	if !reflect.DeepEqual(contents(ctx.Messages), want) {
		t.Errorf("messages = %v, want %v", contents(ctx.Messages), want)
	}
}

func TestComputeContext_SystemMessageFiltering(t *testing.T) {
	nodes, adj := chainFixture()
	nodes["a"].Messages = append(nodes["a"].Messages,
		Message{ID: "sys1", Role: RoleSystem, Content: "stored prompt dup", CreatedAt: 100},
		Message{ID: "att1", Role: RoleSystem, Content: "attachment ctx", CreatedAt: 101, IsAttachmentContext: true},
		Message{ID: "att2", Role: RoleSystem, Content: "project attachment ctx", CreatedAt: 102, IsAttachmentContext: true, IsProjectAttachmentContext: true},
	)

	settings := DefaultContextSettings()
	settings.IncludeProjectAttachmentContext = false
	ctx := ComputeContext(ContextParams{
		TargetNodeID: "b", Nodes: nodes, Adj: adj,
		Settings: settings, RootID: "root",
	})
	want := []string{"root msg", "a msg", "attachment ctx", "b msg"}
	if !reflect.DeepEqual(contents(ctx.Messages), want) {
		t.Errorf("messages = %v, want %v", contents(ctx.Messages), want)
	}
}

func TestComputeContext_ExcludedNodes(t *testing.T) {
	nodes, adj := chainFixture()
	settings := DefaultContextSettings()
	settings.ExcludedNodeIDs = map[string]bool{"a": true}

	ctx := ComputeContext(ContextParams{
		TargetNodeID: "b", Nodes: nodes, Adj: adj,
		Settings: settings, RootID: "root",
	})
	want := []string{"root msg", "b msg"}
	if !reflect.DeepEqual(contents(ctx.Messages), want) {
		t.Errorf("messages = %v, want %v", contents(ctx.Messages), want)
	}
}

func TestComputeContext_ReplyThread(t *testing.T) {
	nodes, adj := chainFixture()
	nodes["r1"] = testNode("r1", 20, "reply one")
	nodes["r1"].IsReply = true
	nodes["r1"].ParentNodeID = "a"
	nodes["r2"] = testNode("r2", 21, "reply two")
	nodes["r2"].IsReply = true
	nodes["r2"].ParentNodeID = "r1"

	ctx := ComputeContext(ContextParams{
		TargetNodeID: "r2", Nodes: nodes, Adj: adj,
		Settings: DefaultContextSettings(), RootID: "root",
	})
	// Branch context of the host node, then the reply chain oldest-first.
	want := []string{"root msg", "a msg", "reply one", "reply two"}
	if !reflect.DeepEqual(contents(ctx.Messages), want) {
		t.Errorf("messages = %v, want %v", contents(ctx.Messages), want)
	}
}

func TestComputeContext_MissingNodeSkipped(t *testing.T) {
	nodes, adj := chainFixture()
	delete(nodes, "a")

	ctx := ComputeContext(ContextParams{
		TargetNodeID: "b", Nodes: nodes, Adj: adj,
		Settings: DefaultContextSettings(), RootID: "root",
	})
	want := []string{"root msg", "b msg"}
	if !reflect.DeepEqual(contents(ctx.Messages), want) {
		t.Errorf("messages = %v, want %v", contents(ctx.Messages), want)
	}
}

func TestComputeContext_UnknownTarget(t *testing.T) {
	nodes, adj := chainFixture()
	ctx := ComputeContext(ContextParams{
		TargetNodeID: "ghost", Nodes: nodes, Adj: adj,
		Settings: DefaultContextSettings(), RootID: "root",
	})
	if len(ctx.Messages) != 0 || ctx.TokenEstimate != 0 {
		t.Errorf("unknown target should yield empty context, got %+v", ctx)
	}
}

func TestComputeContext_SummaryReplacesOlderAncestors(t *testing.T) {
	nodes, adj := chainFixture()
	nodes["a"].ContextSummary = "summary of root"

	ctx := ComputeContext(ContextParams{
		TargetNodeID: "b", Nodes: nodes, Adj: adj,
		Settings: DefaultContextSettings(), RootID: "root",
	})
	want := []string{"summary of root", "a msg", "b msg"}
	if !reflect.DeepEqual(contents(ctx.Messages), want) {
		t.Errorf("messages = %v, want %v", contents(ctx.Messages), want)
	}
}

func TestNormalizeMessages(t *testing.T) {
	nodes := map[string]*Node{
		"n": {ID: "n", Messages: []Message{
			{ID: "m1", CreatedAt: 5},
			{ID: "m2", CreatedAt: 5},
			{ID: "m3", CreatedAt: 2},
			{ID: "m4", CreatedAt: 5},
		}},
	}
	NormalizeMessages(nodes)

	msgs := nodes["n"].Messages
	if msgs[0].ID != "m3" {
		t.Errorf("earliest message should sort first, got %s", msgs[0].ID)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt <= msgs[i-1].CreatedAt {
			t.Errorf("timestamps not strictly increasing at %d: %d <= %d",
				i, msgs[i].CreatedAt, msgs[i-1].CreatedAt)
		}
	}
	// Stable: equal-timestamp messages keep input order after m3
	if msgs[1].ID != "m1" || msgs[2].ID != "m2" || msgs[3].ID != "m4" {
		t.Errorf("normalization not stable: %s %s %s", msgs[1].ID, msgs[2].ID, msgs[3].ID)
	}
}

func TestBranchNodeIDs_ExcludesReplies(t *testing.T) {
	nodes := map[string]*Node{
		"a": {ID: "a"},
		"r": {ID: "r", IsReply: true, ParentNodeID: "a"},
		"b": {ID: "b"},
	}
	if got := BranchNodeIDs(nodes); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("BranchNodeIDs = %v", got)
	}
}
