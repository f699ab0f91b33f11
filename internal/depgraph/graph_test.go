package depgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestTsortLeavesFirst(t *testing.T) {
	g := New[string](false)
	g.AddEdge("A", "B")

	order, err := g.Tsort(true)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A"}, order)
}

func TestTsortRespectsAllEdges(t *testing.T) {
	g := New[string](false)
	g.AddEdge("app", "lib")
	g.AddEdge("app", "util")
	g.AddEdge("lib", "util")

	order, err := g.Tsort(true)
	require.NoError(t, err)
	for _, e := range [][2]string{{"app", "lib"}, {"app", "util"}, {"lib", "util"}} {
		u, v := e[0], e[1]
		require.Greater(t, indexOf(order, u), indexOf(order, v), "expected %s after %s (leaves first)", u, v)
	}
}

func TestEmptyGraphTsort(t *testing.T) {
	g := New[string](false)
	order, err := g.Tsort(true)
	require.NoError(t, err)
	require.Empty(t, order)
}

func TestSelfLoopIsNotADAG(t *testing.T) {
	g := New[string](false)
	g.AddEdge("v", "v")

	_, err := g.Tsort(true)
	require.Error(t, err)

	var cycleErr *NotADAGError[string]
	require.True(t, errors.As(err, &cycleErr))
	require.Equal(t, []string{"v", "v"}, cycleErr.Cycle)
}

func TestTwoCycleIsNotADAG(t *testing.T) {
	g := New[string](false)
	g.AddEdge("A", "B")
	g.AddEdge("B", "A")

	_, err := g.Tsort(true)
	require.Error(t, err)
}

func TestTsortCacheInvalidatedByMutation(t *testing.T) {
	g := New[string](false)
	g.AddEdge("A", "B")
	order1, err := g.Tsort(true)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A"}, order1)

	g.AddEdge("A", "C")
	order2, err := g.Tsort(true)
	require.NoError(t, err)
	require.Contains(t, order2, "C")
}

func TestShortestPath(t *testing.T) {
	g := New[string](false)
	g.AddEdge("A", "B")
	g.AddEdge("B", "C")
	g.AddEdge("A", "C")

	path := g.ShortestPath("A", "C")
	require.Equal(t, []string{"A", "C"}, path)
}

func TestShortestPathNoRoute(t *testing.T) {
	g := New[string](false)
	g.AddVertex("A")
	g.AddVertex("B")
	require.Nil(t, g.ShortestPath("A", "B"))
}
