package algo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func symmetric(edges map[[2]string]int) map[string]map[string]int {
	adj := map[string]map[string]int{}
	add := func(a, b string, cost int) {
		if adj[a] == nil {
			adj[a] = map[string]int{}
		}
		adj[a][b] = cost
	}
	for pair, cost := range edges {
		add(pair[0], pair[1], cost)
		add(pair[1], pair[0], cost)
	}
	return adj
}

func TestShortestPathsRing(t *testing.T) {
	adj := symmetric(map[[2]string]int{
		{"A", "B"}: 1,
		{"B", "C"}: 1,
		{"C", "D"}: 1,
		{"D", "A"}: 1,
	})
	live := map[string]bool{"B": true, "D": true}

	routes := shortestPaths("A", adj, live)
	assert.Equal(t, "B", routes["B"])
	assert.Equal(t, "D", routes["D"])
	// C is equidistant via B or D; both are live neighbors, so the
	// lexicographically smaller wins.
	assert.Equal(t, "B", routes["C"])
}

func TestShortestPathsPrefersLiveNeighborOnTie(t *testing.T) {
	adj := symmetric(map[[2]string]int{
		{"A", "B"}: 1,
		{"B", "C"}: 1,
		{"A", "D"}: 1,
		{"D", "C"}: 1,
	})
	// B has timed out; D is live. Both paths to C cost 2.
	live := map[string]bool{"D": true}

	routes := shortestPaths("A", adj, live)
	assert.Equal(t, "D", routes["C"])
}

func TestShortestPathsUnreachableNodeOmitted(t *testing.T) {
	adj := symmetric(map[[2]string]int{
		{"A", "B"}: 1,
	})
	adj["Z"] = map[string]int{} // present in the graph, but isolated

	routes := shortestPaths("A", adj, map[string]bool{"B": true})
	_, ok := routes["Z"]
	assert.False(t, ok)
}

func TestShortestPathsRespectsCost(t *testing.T) {
	adj := symmetric(map[[2]string]int{
		{"A", "B"}: 1,
		{"B", "D"}: 1,
		{"A", "C"}: 1,
		{"C", "D"}: 10,
	})
	routes := shortestPaths("A", adj, map[string]bool{"B": true, "C": true})
	assert.Equal(t, "B", routes["D"])
}

func TestShortestPathsUsesOneSidedEdge(t *testing.T) {
	adj := map[string]map[string]int{
		"A": {"B": 1},
		// B hasn't advertised its own LSA yet (or never advertises A back);
		// the edge is still usable from A's side.
		"B": {},
	}
	routes := shortestPaths("A", adj, map[string]bool{"B": true})
	assert.Equal(t, "B", routes["B"])
}

func TestPreferFirstHopLiveBeatsNonLive(t *testing.T) {
	live := map[string]bool{"X": true}
	assert.Equal(t, "X", preferFirstHop("Y", "X", live))
	assert.Equal(t, "X", preferFirstHop("X", "Y", live))
}

func TestPreferFirstHopLexicographicOnFullTie(t *testing.T) {
	live := map[string]bool{}
	assert.Equal(t, "X", preferFirstHop("Y", "X", live))
	assert.Equal(t, "X", preferFirstHop("X", "Y", live))
}
