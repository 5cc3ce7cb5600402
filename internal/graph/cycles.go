package graph

import (
	"errors"
	"sort"
)

// ErrWouldCycle rejects an edge whose insertion would close a directed loop.
var ErrWouldCycle = errors.New("edge would create a cycle")

// ErrUnknownNode rejects an edge referencing a node that is absent or not
// part of the branch graph.
var ErrUnknownNode = errors.New("unknown node")

// WouldCreateCycle reports whether adding source -> target would close a
// loop: true when the edge is a self edge or when source is already
// reachable from target. Callers run this before every edge insert; with a
// graph that starts empty and only gated inserts, cycles cannot occur.
func WouldCreateCycle(adj *Adjacency, source, target string) bool {
	if source == target {
		return true
	}
	visited := map[string]bool{target: true}
	queue := []string{target}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adj.Forward[current] {
			if next == source {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// DetectCycles returns the sorted IDs of every node on a directed cycle.
// This is the audit-side safety net; a non-empty result means the insert
// guard was bypassed somewhere.
func DetectCycles(adj *Adjacency) []string {
	const (
		white = iota
		gray
		black
	)
	color := map[string]int{}
	inCycle := map[string]bool{}

	seen := map[string]bool{}
	var nodes []string
	for id := range adj.Forward {
		if !seen[id] {
			seen[id] = true
			nodes = append(nodes, id)
		}
	}
	for id := range adj.Reverse {
		if !seen[id] {
			seen[id] = true
			nodes = append(nodes, id)
		}
	}
	sort.Strings(nodes)

	type frame struct {
		node string
		next int
	}
	for _, start := range nodes {
		if color[start] != white {
			continue
		}
		color[start] = gray
		stack := []frame{{node: start}}
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			targets := adj.Forward[f.node]
			if f.next < len(targets) {
				child := targets[f.next]
				f.next++
				switch color[child] {
				case white:
					color[child] = gray
					stack = append(stack, frame{node: child})
				case gray:
					// Back edge: every frame from child up is on the cycle.
					for i := len(stack) - 1; i >= 0; i-- {
						inCycle[stack[i].node] = true
						if stack[i].node == child {
							break
						}
					}
				}
			} else {
				color[f.node] = black
				stack = stack[:len(stack)-1]
			}
		}
	}

	result := make([]string, 0, len(inCycle))
	for id := range inCycle {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}
