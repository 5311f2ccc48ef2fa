package depgraph

import (
	"tracerank/internal/model"
)

// BuildStats reports what Build saw while linking.
type BuildStats struct {
	Steps    int `json:"steps"`
	Accesses int `json:"accesses"`
	Values   int `json:"values"`
	Edges    int `json:"edges"`
	// DanglingDeps counts dependencies on IDs that never appear as values.
	DanglingDeps int `json:"danglingDeps"`
	SelfDeps     int `json:"selfDeps"`
}

// Build creates the dependency graph of a trace. Every distinct value ID
// becomes a node; each reported dependency d of a value v becomes the edge
// d -> v. Values are collected before linking, so a dependency may name a
// value first observed at a later step.
func Build(t *model.Trace) (*Graph, BuildStats) {
	g := New()
	stats := BuildStats{Steps: len(t.Steps)}

	for i := range t.Steps {
		s := &t.Steps[i]
		for _, a := range s.Accesses {
			stats.Accesses++
			g.AddValue(a.Value, s.Order)
		}
	}

	for i := range t.Steps {
		for _, a := range t.Steps[i].Accesses {
			child := g.nodeIdx[a.Value.ID()]
			for _, dep := range a.Deps {
				if dep == a.Value.ID() {
					stats.SelfDeps++
					continue
				}
				parent, ok := g.nodeIdx[dep]
				if !ok {
					stats.DanglingDeps++
					continue
				}
				g.link(parent, child)
			}
		}
	}

	stats.Values = g.NumNodes()
	stats.Edges = g.NumEdges()
	return g, stats
}
