package algo

import (
	"container/heap"
	"sort"
)

// shortestPaths runs Dijkstra from self over adjacency (a cost graph
// keyed by node id) and returns, for every reachable node other than
// self, the first hop on a shortest path to it (§4.4 calculate_routes).
// adjacency[u][v] is the advertised cost of the u-v edge; edges are used
// as advertised from either end, with no requirement that the other
// end confirm it — calculate_routes builds the graph from the union of
// self's live neighbor list and every LSDB entry's neighbor list.
//
// Ties — multiple first hops yielding the same total cost — are broken
// deterministically by preferFirstHop: a first hop that is currently a
// live direct neighbor beats one that isn't, and otherwise the
// lexicographically smaller node id wins. This keeps calculate_routes a
// pure function of (adjacency, liveNeighbors), so identical inputs on
// different nodes converge on identical tables (§8).
func shortestPaths(self string, adjacency map[string]map[string]int, liveNeighbors map[string]bool) map[string]string {
	const infinite = int(^uint(0) >> 1)

	dist := map[string]int{self: 0}
	firstHop := map[string]string{self: ""}
	done := map[string]bool{}

	pq := &spfQueue{{node: self, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(spfItem)
		if done[cur.node] {
			continue
		}
		done[cur.node] = true

		neighbors := make([]string, 0, len(adjacency[cur.node]))
		for n := range adjacency[cur.node] {
			neighbors = append(neighbors, n)
		}
		sort.Strings(neighbors)

		for _, v := range neighbors {
			cost := adjacency[cur.node][v]
			nd := cur.dist + cost

			candidate := firstHop[cur.node]
			if cur.node == self {
				candidate = v
			}

			existing, known := dist[v]
			if !known {
				existing = infinite
			}

			switch {
			case nd < existing:
				dist[v] = nd
				firstHop[v] = candidate
				heap.Push(pq, spfItem{node: v, dist: nd})
			case nd == existing && candidate != firstHop[v]:
				firstHop[v] = preferFirstHop(firstHop[v], candidate, liveNeighbors)
			}
		}
	}

	routes := make(map[string]string, len(firstHop))
	for node, hop := range firstHop {
		if node == self || hop == "" {
			continue
		}
		routes[node] = hop
	}
	return routes
}

// preferFirstHop deterministically picks between two equally-costly
// candidate first hops: a live direct neighbor always beats one that
// has timed out, and otherwise the lexicographically smaller id wins.
func preferFirstHop(a, b string, liveNeighbors map[string]bool) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	la, lb := liveNeighbors[a], liveNeighbors[b]
	if la != lb {
		if la {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

type spfItem struct {
	node string
	dist int
}

// spfQueue is a min-heap over dist, with node id as a deterministic
// tie-break on the pop order itself (this does not affect the resulting
// routes, only the order nodes are finalized in).
type spfQueue []spfItem

func (q spfQueue) Len() int { return len(q) }
func (q spfQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].node < q[j].node
}
func (q spfQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *spfQueue) Push(x any)   { *q = append(*q, x.(spfItem)) }
func (q *spfQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
