// Package graph holds the branch-DAG algorithms: deterministic adjacency
// construction, cycle prevention and detection, topological ordering, and
// structural audits. Everything operates on plain IDs; loading and reply
// filtering happen in the callers.
package graph

import "sort"

// Edge is a directed branch relationship between two nodes.
type Edge struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	CreatedAt int64  `json:"created_at"` // Unix millis
}

// Adjacency is a pair of forward and reverse neighbor maps. Neighbor lists
// are ordered by edge (CreatedAt, ID), so identical edge sets always produce
// identical maps regardless of input order.
type Adjacency struct {
	Forward map[string][]string
	Reverse map[string][]string
}

// BuildAdjacency constructs adjacency maps from an edge list. The input is
// not mutated.
func BuildAdjacency(edges []Edge) *Adjacency {
	sorted := make([]Edge, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].ID < sorted[j].ID
	})

	adj := &Adjacency{
		Forward: make(map[string][]string, len(sorted)),
		Reverse: make(map[string][]string, len(sorted)),
	}
	for _, e := range sorted {
		adj.Forward[e.Source] = append(adj.Forward[e.Source], e.Target)
		adj.Reverse[e.Target] = append(adj.Reverse[e.Target], e.Source)
	}
	return adj
}
