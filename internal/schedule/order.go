package schedule

import (
	"container/heap"
	"slices"
)

// Node is the scheduling view of a hook.
type Node struct {
	Name   string
	Before Constraint
	After  Constraint
}

type graph struct {
	nodes    []Node
	index    map[string]int
	outgoing [][]int
	indeg    []int
	edges    map[[2]int]struct{}
}

// Order returns items sorted so that every before/after constraint holds.
// phase only labels errors. Names that do not match a registered item are
// ignored; use Dangling to report them.
func Order[T any](phase string, items []T, node func(T) Node) ([]T, error) {
	g, err := build(phase, items, node)
	if err != nil {
		return nil, err
	}
	order := g.topoOrder()
	if len(order) != len(g.nodes) {
		return nil, &CycleError{Phase: phase, Path: g.findCycle()}
	}
	out := make([]T, 0, len(items))
	for _, idx := range order {
		out = append(out, items[idx])
	}
	return out, nil
}

// Dangling returns constraint names that match no item, as "hook -> name".
func Dangling[T any](items []T, node func(T) Node) []string {
	known := make(map[string]struct{}, len(items))
	for _, item := range items {
		known[node(item).Name] = struct{}{}
	}
	var out []string
	for _, item := range items {
		n := node(item)
		for _, name := range slices.Concat(n.Before.List(), n.After.List()) {
			if _, ok := known[name]; !ok {
				out = append(out, n.Name+" -> "+name)
			}
		}
	}
	return out
}

func build[T any](phase string, items []T, node func(T) Node) (*graph, error) {
	g := &graph{
		nodes:    make([]Node, len(items)),
		index:    make(map[string]int, len(items)),
		outgoing: make([][]int, len(items)),
		indeg:    make([]int, len(items)),
		edges:    make(map[[2]int]struct{}),
	}
	for i, item := range items {
		n := node(item)
		if _, dup := g.index[n.Name]; dup {
			return nil, duplicateError(phase, n.Name)
		}
		g.index[n.Name] = i
		g.nodes[i] = n
	}

	for i, n := range g.nodes {
		for _, name := range n.Before.List() {
			if j, ok := g.index[name]; ok && j != i {
				g.addEdge(i, j)
			}
		}
		for _, name := range n.After.List() {
			if j, ok := g.index[name]; ok && j != i {
				g.addEdge(j, i)
			}
		}
	}

	for i, n := range g.nodes {
		for j, other := range g.nodes {
			if i == j {
				continue
			}
			if n.Before.IsAll() && !other.Before.IsAll() && !g.explicit(j, i) {
				g.addEdge(i, j)
			}
			if n.After.IsAll() && !other.After.IsAll() && !g.explicit(i, j) {
				g.addEdge(j, i)
			}
		}
	}
	return g, nil
}

// explicit reports whether a named constraint orders from before to.
func (g *graph) explicit(from, to int) bool {
	return g.nodes[from].Before.Contains(g.nodes[to].Name) || g.nodes[to].After.Contains(g.nodes[from].Name)
}

func (g *graph) addEdge(from, to int) {
	key := [2]int{from, to}
	if _, ok := g.edges[key]; ok {
		return
	}
	g.edges[key] = struct{}{}
	g.outgoing[from] = append(g.outgoing[from], to)
	g.indeg[to]++
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder is Kahn's algorithm with a min-heap over registration order.
func (g *graph) topoOrder() []int {
	indeg := slices.Clone(g.indeg)
	ready := &intMinHeap{}
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle extracts one cycle with a DFS over registration order.
func (g *graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		next := slices.Clone(g.outgoing[u])
		slices.Sort(next)
		for _, v := range next {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}
	for i := range g.nodes {
		if color[i] == white && dfs(i) {
			break
		}
	}

	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, g.nodes[cycle[i]].Name)
	}
	return out
}
