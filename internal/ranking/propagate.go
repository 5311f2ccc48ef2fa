package ranking

import (
	"math"

	"tracerank/internal/depgraph"
)

// pins maps node indices to fixed probabilities from failures and feedback.
type pins map[int]float64

// propagateBackward spreads suspicion from wrong values to everything they
// were derived from. Each hop multiplies by decay and a node keeps its best
// score. Correct values stay at LowProbability and stop the spread. Nodes
// that no wrong value depends on end at 0.
func propagateBackward(g *depgraph.Graph, st *State, pinned pins, decay float64) {
	n := g.NumNodes()
	score := make([]float64, n)

	var work []int
	for idx, p := range pinned {
		score[idx] = p
		if p == HighProbability {
			work = append(work, idx)
		}
	}

	for len(work) > 0 {
		idx := work[len(work)-1]
		work = work[:len(work)-1]
		next := score[idx] * decay
		for _, p := range g.Parents(idx) {
			if _, fixed := pinned[p]; fixed {
				continue
			}
			if next > score[p] {
				score[p] = next
				work = append(work, p)
			}
		}
	}

	for i := 0; i < n; i++ {
		st.nodes[i].Backward = score[i]
	}
}

// propagateForward runs a power iteration in which every value takes the
// mean score of the values it was derived from. Values without parents take
// prior. It returns the iteration count and whether it converged.
func propagateForward(g *depgraph.Graph, st *State, pinned pins, prior float64, maxIter int, tol float64) (int, bool) {
	n := g.NumNodes()
	cur := make([]float64, n)
	next := make([]float64, n)
	for i := range cur {
		cur[i] = prior
		if p, ok := pinned[i]; ok {
			cur[i] = p
		}
	}

	iterations := 0
	converged := false
	for iter := 0; iter < maxIter; iter++ {
		iterations++
		maxDelta := 0.0
		for i := 0; i < n; i++ {
			if p, ok := pinned[i]; ok {
				next[i] = p
				continue
			}
			parents := g.Parents(i)
			if len(parents) == 0 {
				next[i] = prior
				continue
			}
			sum := 0.0
			for _, p := range parents {
				sum += cur[p]
			}
			next[i] = sum / float64(len(parents))
			if d := math.Abs(next[i] - cur[i]); d > maxDelta {
				maxDelta = d
			}
		}
		cur, next = next, cur
		if maxDelta < tol {
			converged = true
			break
		}
	}

	for i := 0; i < n; i++ {
		st.nodes[i].Forward = cur[i]
	}
	return iterations, converged
}

// combine sets each node's probability to the mean of its two scores.
func combine(st *State) {
	for _, ns := range st.nodes {
		p := (ns.Forward + ns.Backward) / 2
		ns.Probability = math.Max(0, math.Min(1, p))
	}
}
