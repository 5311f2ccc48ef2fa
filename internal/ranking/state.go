// Package ranking scores the values of a dependency graph by how likely
// they are to be the root cause of an observed failure, and explains each
// score with a path back to the failure.
package ranking

import (
	"math"
)

const (
	// LowProbability is the score of values known to be correct and the
	// initial distance of start nodes.
	LowProbability = 0.05
	// HighProbability is the score of values known to be wrong.
	HighProbability = 0.95
	// Threshold separates HIGH from LOW suspiciousness; the comparison is
	// strict.
	Threshold = 0.3

	unset = -1.0
)

// Level is the two-valued reading of a probability.
type Level string

const (
	High Level = "HIGH"
	Low  Level = "LOW"
)

// Classify returns High when p is strictly above Threshold.
func Classify(p float64) Level {
	if p > Threshold {
		return High
	}
	return Low
}

// NodeState holds the analysis fields of one node for one ranking pass.
type NodeState struct {
	Distance    float64
	Visited     bool
	Previous    int // -1 when none
	Probability float64
	Forward     float64
	Backward    float64
}

// State is the per-pass analysis state, keyed by node index. A fresh State
// is created for every pass so the graph itself is never written to.
type State struct {
	nodes map[int]*NodeState
}

func newState(numNodes int, starts []int) *State {
	s := &State{nodes: make(map[int]*NodeState, numNodes)}
	for i := 0; i < numNodes; i++ {
		s.nodes[i] = &NodeState{
			Distance:    math.Inf(1),
			Previous:    -1,
			Probability: unset,
			Forward:     unset,
			Backward:    unset,
		}
	}
	for _, idx := range starts {
		s.nodes[idx].Distance = LowProbability
	}
	return s
}

// Node returns a copy of the state of idx.
func (s *State) Node(idx int) NodeState {
	if n, ok := s.nodes[idx]; ok {
		return *n
	}
	return NodeState{Distance: math.Inf(1), Previous: -1, Probability: unset, Forward: unset, Backward: unset}
}

// Probability returns the combined probability of idx, 0 when unset.
func (s *State) Probability(idx int) float64 {
	if n, ok := s.nodes[idx]; ok && n.Probability >= 0 {
		return n.Probability
	}
	return 0
}

// pathTo rebuilds the relaxation path ending at idx, start first.
func (s *State) pathTo(idx int) []int {
	var rev []int
	seen := make(map[int]bool)
	for cur := idx; cur >= 0 && !seen[cur]; cur = s.nodes[cur].Previous {
		seen[cur] = true
		rev = append(rev, cur)
	}
	path := make([]int, len(rev))
	for i, n := range rev {
		path[len(rev)-1-i] = n
	}
	return path
}
