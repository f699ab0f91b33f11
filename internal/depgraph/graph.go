// Package depgraph implements a directed, optionally bidirectional graph
// with a cached reverse-topological sort (tsort, leaves first) and BFS
// shortest-path, used both for cycle reporting and for the replacement
// driver's progress output. Grounded on the teacher's pkg/deps.go Kahn's
// algorithm for GetBuildOrder/TopoOrderStrict, generalized to a reusable
// generic component and to the three-colour DFS cycle-reconstruction
// spec.md's C5 calls for.
package depgraph

import "fmt"

// Graph is a directed graph over comparable vertex values of type T.
// Identity is by value: adding an existing vertex is a no-op. All mutators
// invalidate any cached tsort result.
type Graph[T comparable] struct {
	bidirectional bool

	vertices map[T]bool
	out      map[T]map[T]bool
	in       map[T]map[T]bool
	order    []T // insertion order, for stable tie-breaking

	cache      []T
	cacheValid bool
}

// New creates an empty graph. In-edges are tracked whatever the value of
// bidirectional, so RemoveVertex and reverse traversal are always cheap;
// the flag is recorded but does not change behaviour.
func New[T comparable](bidirectional bool) *Graph[T] {
	return &Graph[T]{
		bidirectional: bidirectional,
		vertices:      make(map[T]bool),
		out:           make(map[T]map[T]bool),
		in:            make(map[T]map[T]bool),
	}
}

// AddVertex adds v if not already present. No-op otherwise.
func (g *Graph[T]) AddVertex(v T) {
	if g.vertices[v] {
		return
	}
	g.vertices[v] = true
	g.out[v] = make(map[T]bool)
	g.in[v] = make(map[T]bool)
	g.order = append(g.order, v)
	g.cacheValid = false
}

// HasVertex reports whether v is in the graph.
func (g *Graph[T]) HasVertex(v T) bool { return g.vertices[v] }

// Vertices returns all vertices in insertion order.
func (g *Graph[T]) Vertices() []T {
	out := make([]T, len(g.order))
	copy(out, g.order)
	return out
}

// AddEdge adds a directed edge u -> v, adding either endpoint as a vertex
// if not already present.
func (g *Graph[T]) AddEdge(u, v T) {
	g.AddVertex(u)
	g.AddVertex(v)
	g.out[u][v] = true
	g.in[v][u] = true
	g.cacheValid = false
}

// RemoveEdge removes u -> v if present.
func (g *Graph[T]) RemoveEdge(u, v T) {
	if _, ok := g.out[u]; ok {
		delete(g.out[u], v)
	}
	if _, ok := g.in[v]; ok {
		delete(g.in[v], u)
	}
	g.cacheValid = false
}

// RemoveVertex deletes v and all edges touching it.
func (g *Graph[T]) RemoveVertex(v T) {
	if !g.vertices[v] {
		return
	}
	for w := range g.out[v] {
		delete(g.in[w], v)
	}
	for w := range g.in[v] {
		delete(g.out[w], v)
	}
	delete(g.out, v)
	delete(g.in, v)
	delete(g.vertices, v)
	for i, o := range g.order {
		if o == v {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.cacheValid = false
}

// OutEdges returns the out-neighbours of v.
func (g *Graph[T]) OutEdges(v T) []T {
	return mapKeysInOrder(g.out[v], g.order)
}

// InEdges returns the in-neighbours of v. The in map is always kept in
// sync by AddEdge/RemoveEdge regardless of the bidirectional flag, so
// this works the same way for every graph.
func (g *Graph[T]) InEdges(v T) []T {
	return mapKeysInOrder(g.in[v], g.order)
}

func mapKeysInOrder[T comparable](m map[T]bool, order []T) []T {
	var out []T
	for _, v := range order {
		if m[v] {
			out = append(out, v)
		}
	}
	return out
}

// NotADAGError is raised by Tsort when the graph contains a cycle.
type NotADAGError[T any] struct {
	Cycle []T
}

func (e *NotADAGError[T]) Error() string {
	return fmt.Sprintf("not a dag: cycle of length %d", len(e.Cycle))
}

type color int

const (
	white color = iota
	grey
	black
)

// Tsort returns vertices in reverse topological order: leaves (no
// out-edges) first. Ties within the same level follow insertion order.
// When cache is true and the graph is unmodified since the last Tsort
// call, the cached result is returned without recomputing.
func (g *Graph[T]) Tsort(cache bool) ([]T, error) {
	if cache && g.cacheValid {
		out := make([]T, len(g.cache))
		copy(out, g.cache)
		return out, nil
	}

	colors := make(map[T]color, len(g.vertices))
	var result []T

	var visit func(v T, stack []T) error
	visit = func(v T, stack []T) error {
		switch colors[v] {
		case black:
			return nil
		case grey:
			cycle, err := g.shortestPathUnlocked(v, stack[len(stack)-1])
			if err != nil || len(cycle) == 0 {
				cycle = []T{v, v}
			} else {
				cycle = append(cycle, v)
			}
			return &NotADAGError[T]{Cycle: cycle}
		}
		colors[v] = grey
		stack = append(stack, v)
		for _, w := range g.OutEdges(v) {
			if err := visit(w, stack); err != nil {
				return err
			}
		}
		colors[v] = black
		result = append(result, v)
		return nil
	}

	for _, v := range g.order {
		if colors[v] == white {
			if err := visit(v, nil); err != nil {
				g.cacheValid = false
				return nil, err
			}
		}
	}

	g.cache = result
	g.cacheValid = true
	out := make([]T, len(result))
	copy(out, result)
	return out, nil
}

// ShortestPath returns the shortest directed path from src to dest
// (inclusive of both endpoints), via BFS over out-edges. Returns nil if no
// path exists.
func (g *Graph[T]) ShortestPath(src, dest T) []T {
	path, _ := g.shortestPathUnlocked(src, dest)
	return path
}

func (g *Graph[T]) shortestPathUnlocked(src, dest T) ([]T, error) {
	if src == dest {
		return []T{src}, nil
	}
	if !g.vertices[src] {
		return nil, fmt.Errorf("depgraph: unknown source vertex")
	}

	prev := map[T]T{}
	visited := map[T]bool{src: true}
	queue := []T{src}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, w := range g.OutEdges(cur) {
			if visited[w] {
				continue
			}
			visited[w] = true
			prev[w] = cur
			if w == dest {
				// Reconstruct path.
				path := []T{dest}
				for p := cur; ; {
					path = append([]T{p}, path...)
					if p == src {
						break
					}
					p = prev[p]
				}
				return path, nil
			}
			queue = append(queue, w)
		}
	}
	return nil, nil
}
