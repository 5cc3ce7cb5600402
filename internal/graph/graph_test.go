package graph

import (
	"fmt"
	"reflect"
	"testing"
)

// mkEdges builds edges with createdAt equal to their position, so insertion
// order is the deterministic order.
func mkEdges(pairs [][2]string) []Edge {
	edges := make([]Edge, len(pairs))
	for i, p := range pairs {
		edges[i] = Edge{
			ID:        fmt.Sprintf("e%d", i),
			Source:    p[0],
			Target:    p[1],
			CreatedAt: int64(i + 1),
		}
	}
	return edges
}

func TestBuildAdjacency_Deterministic(t *testing.T) {
	edges := []Edge{
		{ID: "e2", Source: "root", Target: "b", CreatedAt: 200},
		{ID: "e1", Source: "root", Target: "a", CreatedAt: 100},
		{ID: "e3", Source: "root", Target: "c", CreatedAt: 200},
	}

	adj := BuildAdjacency(edges)
	want := []string{"a", "b", "c"} // e1 by time, then e2 before e3 by ID
	if !reflect.DeepEqual(adj.Forward["root"], want) {
		t.Errorf("forward order = %v, want %v", adj.Forward["root"], want)
	}

	// Shuffled input produces identical maps
	shuffled := []Edge{edges[2], edges[0], edges[1]}
	adj2 := BuildAdjacency(shuffled)
	if !reflect.DeepEqual(adj.Forward, adj2.Forward) || !reflect.DeepEqual(adj.Reverse, adj2.Reverse) {
		t.Error("adjacency differs across rebuilds with shuffled input")
	}
}

func TestBuildAdjacency_Reverse(t *testing.T) {
	adj := BuildAdjacency(mkEdges([][2]string{{"root", "a"}, {"x", "a"}}))
	if !reflect.DeepEqual(adj.Reverse["a"], []string{"root", "x"}) {
		t.Errorf("reverse[a] = %v", adj.Reverse["a"])
	}
}

func TestWouldCreateCycle(t *testing.T) {
	adj := BuildAdjacency(mkEdges([][2]string{
		{"root", "a"}, {"a", "b"}, {"b", "c"},
	}))

	tests := []struct {
		source, target string
		want           bool
	}{
		{"a", "a", true},     // self edge
		{"b", "a", true},     // direct back edge
		{"c", "root", true},  // transitive back edge
		{"root", "c", false}, // forward shortcut is fine
		{"c", "d", false},    // new leaf
		{"b", "d", false},
	}
	for _, tt := range tests {
		if got := WouldCreateCycle(adj, tt.source, tt.target); got != tt.want {
			t.Errorf("WouldCreateCycle(%s→%s) = %v, want %v", tt.source, tt.target, got, tt.want)
		}
	}
}

func TestDetectCycles_Acyclic(t *testing.T) {
	adj := BuildAdjacency(mkEdges([][2]string{
		{"root", "a"}, {"root", "b"}, {"a", "c"}, {"b", "c"},
	}))
	if got := DetectCycles(adj); len(got) != 0 {
		t.Errorf("acyclic graph reported cycles: %v", got)
	}
}

func TestDetectCycles_FindsLoop(t *testing.T) {
	adj := BuildAdjacency(mkEdges([][2]string{
		{"root", "a"}, {"a", "b"}, {"b", "a"}, {"root", "c"},
	}))
	got := DetectCycles(adj)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DetectCycles = %v, want %v", got, want)
	}
}

// Gated insertion property: edges accepted by WouldCreateCycle never produce
// a graph where DetectCycles reports anything.
func TestGatedInsertionStaysAcyclic(t *testing.T) {
	proposals := [][2]string{
		{"root", "a"}, {"a", "b"}, {"b", "root"}, // rejected
		{"root", "b"}, {"b", "c"}, {"c", "a"}, // last rejected
		{"a", "c"},
	}
	var accepted []Edge
	for i, p := range proposals {
		adj := BuildAdjacency(accepted)
		if WouldCreateCycle(adj, p[0], p[1]) {
			continue
		}
		accepted = append(accepted, Edge{
			ID: fmt.Sprintf("e%d", i), Source: p[0], Target: p[1], CreatedAt: int64(i),
		})
	}
	if got := DetectCycles(BuildAdjacency(accepted)); len(got) != 0 {
		t.Errorf("gated insertions produced a cycle: %v", got)
	}
}

func TestTopoSort_ParentBeforeChild(t *testing.T) {
	edges := mkEdges([][2]string{
		{"root", "a"}, {"root", "b"}, {"a", "c"}, {"b", "c"}, {"c", "d"},
	})
	adj := BuildAdjacency(edges)
	subset := []string{"d", "c", "b", "a", "root"}
	order := TopoSort(subset, adj)

	if len(order) != len(subset) {
		t.Fatalf("TopoSort returned %d nodes, want %d", len(order), len(subset))
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, e := range edges {
		if pos[e.Source] >= pos[e.Target] {
			t.Errorf("%s appears at %d, after child %s at %d", e.Source, pos[e.Source], e.Target, pos[e.Target])
		}
	}
}

func TestTopoSort_IgnoresEdgesOutsideSubset(t *testing.T) {
	adj := BuildAdjacency(mkEdges([][2]string{
		{"root", "a"}, {"a", "b"}, {"x", "b"},
	}))
	// x is outside the subset; b's in-degree only counts a.
	order := TopoSort([]string{"root", "a", "b"}, adj)
	want := []string{"root", "a", "b"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopoSort_Deterministic(t *testing.T) {
	adj := BuildAdjacency(mkEdges([][2]string{
		{"root", "a"}, {"root", "b"}, {"a", "c"}, {"b", "c"},
	}))
	subset := []string{"root", "a", "b", "c"}
	first := TopoSort(subset, adj)
	for i := 0; i < 10; i++ {
		if got := TopoSort(subset, adj); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
}

func TestAudit_Healthy(t *testing.T) {
	adj := BuildAdjacency(mkEdges([][2]string{
		{"root", "a"}, {"a", "b"},
	}))
	r := Audit([]string{"root", "a", "b"}, "root", adj)
	if !r.Healthy() {
		t.Errorf("expected healthy, got %+v", r)
	}
	if r.NumComponents != 1 {
		t.Errorf("components = %d, want 1", r.NumComponents)
	}
}

func TestAudit_FindsUnreachableAndOrphans(t *testing.T) {
	adj := BuildAdjacency(mkEdges([][2]string{
		{"root", "a"}, {"x", "y"},
	}))
	r := Audit([]string{"root", "a", "x", "y", "lone"}, "root", adj)
	if !reflect.DeepEqual(r.Orphans, []string{"lone"}) {
		t.Errorf("orphans = %v", r.Orphans)
	}
	wantUnreachable := []string{"lone", "x", "y"}
	if !reflect.DeepEqual(r.Unreachable, wantUnreachable) {
		t.Errorf("unreachable = %v, want %v", r.Unreachable, wantUnreachable)
	}
	if r.Healthy() {
		t.Error("report should not be healthy")
	}
}

func TestAudit_EmptyGraph(t *testing.T) {
	r := Audit(nil, "root", BuildAdjacency(nil))
	if r.TotalNodes != 0 || r.TotalEdges != 0 || !r.Healthy() {
		t.Errorf("empty graph audit = %+v", r)
	}
}
