// Package depgraph builds the value-dependency graph of a recorded trace.
//
// Nodes are variable values keyed by their stable ID. An edge runs from a
// value to every value whose assignment used it. The graph may contain
// cycles (values feeding each other across loop iterations), so every
// traversal carries a visited set.
package depgraph

import (
	"sort"
	"strings"

	"tracerank/internal/errors"
	"tracerank/internal/model"
)

// MaxPathEnumeration bounds the node expansions of one VariablePath search.
// Dense graphs have exponentially many simple paths; once the budget is
// spent the longest root path found so far is used.
const MaxPathEnumeration = 10000

// Node is one distinct value in the graph.
type Node struct {
	Value model.VarValue
	// Steps lists the orders of the steps that observed the value.
	Steps []int
}

// Graph is an index-based adjacency structure. It is not safe for concurrent
// mutation; once built it is only read.
type Graph struct {
	nodes    []Node
	nodeIdx  map[string]int
	parents  [][]int
	children [][]int
	numEdges int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodeIdx: make(map[string]int),
	}
}

// AddValue adds v if its ID is new and records step against it. The first
// observation of an ID owns the node; later ones only add their step.
func (g *Graph) AddValue(v model.VarValue, step int) int {
	if idx, ok := g.nodeIdx[v.ID()]; ok {
		n := &g.nodes[idx]
		if len(n.Steps) == 0 || n.Steps[len(n.Steps)-1] != step {
			n.Steps = append(n.Steps, step)
		}
		// A value seen at any step as a top-level variable is a root.
		if v.Root && !n.Value.Root {
			n.Value.Root = true
		}
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, Node{Value: v, Steps: []int{step}})
	g.nodeIdx[v.ID()] = idx
	g.parents = append(g.parents, nil)
	g.children = append(g.children, nil)
	return idx
}

// LinkChild records that child was derived from parent. Both ends are
// updated, duplicate edges are ignored and self-links are refused.
func (g *Graph) LinkChild(parentID, childID string) error {
	p, ok := g.nodeIdx[parentID]
	if !ok {
		return errors.New(errors.NodeNotFound, "unknown parent value", nil).WithDetails(parentID)
	}
	c, ok := g.nodeIdx[childID]
	if !ok {
		return errors.New(errors.NodeNotFound, "unknown child value", nil).WithDetails(childID)
	}
	g.link(p, c)
	return nil
}

func (g *Graph) link(p, c int) bool {
	if p == c {
		return false
	}
	for _, existing := range g.children[p] {
		if existing == c {
			return false
		}
	}
	g.children[p] = append(g.children[p], c)
	g.parents[c] = append(g.parents[c], p)
	g.numEdges++
	return true
}

// NumNodes returns the number of values.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the number of dependency edges.
func (g *Graph) NumEdges() int { return g.numEdges }

// Index returns the node index of id.
func (g *Graph) Index(id string) (int, bool) {
	idx, ok := g.nodeIdx[id]
	return idx, ok
}

// Node returns the node at idx.
func (g *Graph) Node(idx int) Node { return g.nodes[idx] }

// ID returns the value ID at idx.
func (g *Graph) ID(idx int) string { return g.nodes[idx].Value.ID() }

// Lookup returns the value with the given ID.
func (g *Graph) Lookup(id string) (model.VarValue, bool) {
	idx, ok := g.nodeIdx[id]
	if !ok {
		return model.VarValue{}, false
	}
	return g.nodes[idx].Value, true
}

// Parents returns the indices of the values idx was derived from. The
// slice must not be modified.
func (g *Graph) Parents(idx int) []int { return g.parents[idx] }

// Children returns the indices of the values derived from idx. The slice
// must not be modified.
func (g *Graph) Children(idx int) []int { return g.children[idx] }

// ParentIDs returns the IDs of the parents of id.
func (g *Graph) ParentIDs(id string) []string {
	idx, ok := g.nodeIdx[id]
	if !ok {
		return nil
	}
	return g.ids(g.parents[idx])
}

// ChildIDs returns the IDs of the children of id.
func (g *Graph) ChildIDs(id string) []string {
	idx, ok := g.nodeIdx[id]
	if !ok {
		return nil
	}
	return g.ids(g.children[idx])
}

func (g *Graph) ids(idxs []int) []string {
	out := make([]string, len(idxs))
	for i, idx := range idxs {
		out[i] = g.nodes[idx].Value.ID()
	}
	return out
}

// Roots returns the IDs of root-flagged values in insertion order.
func (g *Graph) Roots() []string {
	var out []string
	for _, n := range g.nodes {
		if n.Value.Root {
			out = append(out, n.Value.ID())
		}
	}
	return out
}

// FindVarValue searches the descendants of fromID for targetID. The start
// node itself is not a match.
func (g *Graph) FindVarValue(fromID, targetID string) (model.VarValue, bool) {
	from, ok := g.nodeIdx[fromID]
	if !ok {
		return model.VarValue{}, false
	}
	visited := make(map[int]bool)
	if idx, ok := g.findFrom(from, targetID, visited); ok {
		return g.nodes[idx].Value, true
	}
	return model.VarValue{}, false
}

func (g *Graph) findFrom(idx int, targetID string, visited map[int]bool) (int, bool) {
	for _, c := range g.children[idx] {
		if visited[c] {
			continue
		}
		if g.nodes[c].Value.ID() == targetID {
			return c, true
		}
		visited[c] = true
		if found, ok := g.findFrom(c, targetID, visited); ok {
			return found, true
		}
	}
	return 0, false
}

// FindAny returns the first of ids found among the descendants of fromID.
func (g *Graph) FindAny(fromID string, ids ...string) (model.VarValue, bool) {
	for _, id := range ids {
		if v, ok := g.FindVarValue(fromID, id); ok {
			return v, true
		}
	}
	return model.VarValue{}, false
}

// Descendants returns every value reachable from id through children,
// sorted by variable name and then ID.
func (g *Graph) Descendants(id string) []model.VarValue {
	from, ok := g.nodeIdx[id]
	if !ok {
		return nil
	}
	seen := make(map[int]bool)
	stack := append([]int(nil), g.children[from]...)
	var out []model.VarValue
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, g.nodes[idx].Value)
		stack = append(stack, g.children[idx]...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// VariablePath renders the access path of a value, such as "this.list.size".
// All simple paths from the value up through its parents to a root value
// are considered and the longest wins, the first found among equals. When
// the root end is a field the path is prefixed with "this.". Without any
// reachable root, the bare name is returned with ok=false.
func (g *Graph) VariablePath(id string) (path string, ok bool) {
	idx, found := g.nodeIdx[id]
	if !found {
		return "", false
	}
	best := g.longestRootPath(idx)
	if best == nil {
		return g.nodes[idx].Value.Name(), false
	}

	// best runs value -> ... -> root; render root first.
	names := make([]string, len(best))
	for i, n := range best {
		names[len(best)-1-i] = g.nodes[n].Value.Name()
	}
	path = strings.Join(names, ".")
	if g.nodes[best[len(best)-1]].Value.IsField() {
		path = "this." + path
	}
	return path, true
}

func (g *Graph) longestRootPath(start int) []int {
	var best []int
	budget := MaxPathEnumeration
	onPath := make(map[int]bool)
	path := make([]int, 0, 16)

	var walk func(idx int)
	walk = func(idx int) {
		if budget <= 0 {
			return
		}
		budget--
		path = append(path, idx)
		onPath[idx] = true
		defer func() {
			path = path[:len(path)-1]
			delete(onPath, idx)
		}()

		if g.nodes[idx].Value.Root {
			if len(path) > len(best) {
				best = append(best[:0:0], path...)
			}
			return
		}
		for _, p := range g.parents[idx] {
			if !onPath[p] {
				walk(p)
			}
		}
	}
	walk(start)
	return best
}

// Stats summarizes the graph shape.
type Stats struct {
	Nodes    int  `json:"nodes"`
	Edges    int  `json:"edges"`
	Roots    int  `json:"roots"`
	HasCycle bool `json:"hasCycle"`
}

// Stats computes node, edge and root counts and whether a cycle exists.
func (g *Graph) Stats() Stats {
	return Stats{
		Nodes:    len(g.nodes),
		Edges:    g.numEdges,
		Roots:    len(g.Roots()),
		HasCycle: g.hasCycle(),
	}
}

// hasCycle runs an iterative three-color DFS over children.
func (g *Graph) hasCycle() bool {
	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, len(g.nodes))
	type frame struct{ idx, next int }

	for start := range g.nodes {
		if color[start] != white {
			continue
		}
		stack := []frame{{idx: start}}
		color[start] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(g.children[top.idx]) {
				color[top.idx] = black
				stack = stack[:len(stack)-1]
				continue
			}
			c := g.children[top.idx][top.next]
			top.next++
			switch color[c] {
			case grey:
				return true
			case white:
				color[c] = grey
				stack = append(stack, frame{idx: c})
			}
		}
	}
	return false
}
