package graph

import "sort"

// AuditReport summarizes the structural health of a conversation's branch
// graph. Every non-root node must reach the root over reverse edges and the
// forward graph must be acyclic; violations here are bugs, not recoverable
// states.
type AuditReport struct {
	TotalNodes    int      `json:"total_nodes"`
	TotalEdges    int      `json:"total_edges"`
	NumComponents int      `json:"num_components"`
	Orphans       []string `json:"orphans"`     // degree zero, excluding the root
	Unreachable   []string `json:"unreachable"` // no reverse path to the root
	CycleNodes    []string `json:"cycle_nodes"`
}

// Healthy reports whether the audit found no violations.
func (r *AuditReport) Healthy() bool {
	return len(r.Unreachable) == 0 && len(r.CycleNodes) == 0
}

// Audit inspects a branch graph for components, orphaned nodes, nodes that
// cannot reach the root, and cycle participants. nodeIDs must already
// exclude reply nodes.
func Audit(nodeIDs []string, rootID string, adj *Adjacency) *AuditReport {
	edgeCount := 0
	for _, targets := range adj.Forward {
		edgeCount += len(targets)
	}
	report := &AuditReport{
		TotalNodes: len(nodeIDs),
		TotalEdges: edgeCount,
	}
	if len(nodeIDs) == 0 {
		return report
	}

	inGraph := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		inGraph[id] = true
	}

	uf := newUnionFind(nodeIDs)
	for source, targets := range adj.Forward {
		if !inGraph[source] {
			continue
		}
		for _, target := range targets {
			if inGraph[target] {
				uf.union(source, target)
			}
		}
	}
	report.NumComponents = len(uf.components())

	for _, id := range nodeIDs {
		if id == rootID {
			continue
		}
		if len(adj.Forward[id]) == 0 && len(adj.Reverse[id]) == 0 {
			report.Orphans = append(report.Orphans, id)
		}
	}
	sort.Strings(report.Orphans)

	// A node reaches the root over reverse edges exactly when the root
	// reaches it over forward edges, so one BFS from the root covers all.
	reachesRoot := map[string]bool{rootID: true}
	queue := []string{rootID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range adj.Forward[current] {
			if !reachesRoot[child] {
				reachesRoot[child] = true
				queue = append(queue, child)
			}
		}
	}
	for _, id := range nodeIDs {
		if !reachesRoot[id] {
			report.Unreachable = append(report.Unreachable, id)
		}
	}
	sort.Strings(report.Unreachable)

	report.CycleNodes = DetectCycles(adj)
	return report
}
