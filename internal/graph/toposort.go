package graph

// TopoSort orders the subset so that every source precedes its targets,
// considering only edges with both endpoints inside the subset. Kahn's
// algorithm with a FIFO queue seeded in subset order, so the result is
// stable for identical inputs. Nodes without intra-subset edges keep their
// subset position among the roots.
func TopoSort(subset []string, adj *Adjacency) []string {
	inSubset := make(map[string]bool, len(subset))
	for _, id := range subset {
		inSubset[id] = true
	}

	indegree := make(map[string]int, len(subset))
	for _, id := range subset {
		count := 0
		for _, parent := range adj.Reverse[id] {
			if inSubset[parent] {
				count++
			}
		}
		indegree[id] = count
	}

	var queue []string
	for _, id := range subset {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(subset))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)
		for _, child := range adj.Forward[current] {
			if !inSubset[child] {
				continue
			}
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	return order
}
