package ranking

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"tracerank/internal/depgraph"
	"tracerank/internal/errors"
)

// Direction selects which edges relaxation follows from a node.
type Direction string

const (
	// Upstream follows parent edges, from a failure toward its causes.
	Upstream Direction = "parents"
	// Both follows parent and child edges.
	Both Direction = "both"
)

// CostFunc returns the non-negative cost of moving from one node to a
// neighbour. Negative results are treated as zero.
type CostFunc func(from, to int, st *State) float64

// DefaultCost makes suspicious nodes cheap to reach.
func DefaultCost(_, to int, st *State) float64 {
	return 1 - st.Probability(to)
}

// Options configures a ranking pass.
type Options struct {
	// Decay is applied per hop of backward propagation (default: 0.9)
	Decay float64
	// Prior is the forward score of values with no parents (default: 0.5)
	Prior float64
	// MaxIterations bounds forward propagation (default: 20)
	MaxIterations int
	// Tolerance for forward convergence (default: 1e-6)
	Tolerance float64
	// MaxVisits bounds relaxation; 0 means unlimited
	MaxVisits int
	// TopK limits the candidates reported; 0 means all
	TopK int
	// Direction of relaxation (default: Upstream)
	Direction Direction
	// Cost of an edge (default: DefaultCost)
	Cost CostFunc
}

// DefaultOptions returns the defaults used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		Decay:         0.9,
		Prior:         0.5,
		MaxIterations: 20,
		Tolerance:     1e-6,
		Direction:     Upstream,
		Cost:          DefaultCost,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Decay <= 0 || o.Decay > 1 {
		o.Decay = d.Decay
	}
	if o.Prior <= 0 || o.Prior > 1 {
		o.Prior = d.Prior
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.Direction == "" {
		o.Direction = d.Direction
	}
	if o.Cost == nil {
		o.Cost = d.Cost
	}
	return o
}

// Request names the values a pass starts from and the feedback it uses.
type Request struct {
	// Start values begin relaxation. Defaults to Failures.
	Start []string `json:"start"`
	// Failures are values observed to be wrong at the failure point.
	Failures []string `json:"failures"`
	// Wrong and Correct are values judged by the user.
	Wrong   []string `json:"wrong,omitempty"`
	Correct []string `json:"correct,omitempty"`
}

// Candidate is one ranked value.
type Candidate struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Path        string  `json:"path" yaml:"path"`
	Value       string  `json:"value" yaml:"value"`
	Probability float64 `json:"probability" yaml:"probability"`
	Forward     float64 `json:"forward" yaml:"forward"`
	Backward    float64 `json:"backward" yaml:"backward"`
	Distance    float64 `json:"distance" yaml:"distance"`
	Level       Level   `json:"level" yaml:"level"`
	// Justification lists value IDs from a start value to this one.
	Justification []string `json:"justification" yaml:"justification"`
}

// Report is the result of a ranking pass.
type Report struct {
	Start         []string    `json:"start" yaml:"start"`
	Candidates    []Candidate `json:"candidates" yaml:"candidates"`
	Visits        int         `json:"visits" yaml:"visits"`
	Iterations    int         `json:"iterations" yaml:"iterations"`
	Converged     bool        `json:"converged" yaml:"converged"`
	TotalNodes    int         `json:"totalNodes" yaml:"totalNodes"`
	TotalEdges    int         `json:"totalEdges" yaml:"totalEdges"`
	ComputationMs int64       `json:"computationMs" yaml:"computationMs"`
}

// Ranker ranks one graph, any number of times.
type Ranker struct {
	g      *depgraph.Graph
	opts   Options
	logger *slog.Logger
}

// NewRanker creates a Ranker over g.
func NewRanker(g *depgraph.Graph, opts Options, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ranker{g: g, opts: opts.withDefaults(), logger: logger}
}

func (r *Ranker) resolve(ids []string, what string) ([]int, error) {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		idx, ok := r.g.Index(id)
		if !ok {
			return nil, errors.New(errors.NodeNotFound, fmt.Sprintf("%s value %q is not in the graph", what, id), nil).
				WithDetails(id)
		}
		out = append(out, idx)
	}
	return out, nil
}

// PassResult is the raw outcome of one pass.
type PassResult struct {
	State      *State
	Visits     int
	Iterations int
	Converged  bool
}

// Pass runs propagation and relaxation and returns the per-node state.
// A pass always runs to completion; it fails with BUDGET_EXCEEDED instead
// of returning a partially relaxed state.
func (r *Ranker) Pass(_ context.Context, req Request) (*PassResult, error) {
	if len(req.Start) == 0 {
		req.Start = req.Failures
	}
	if len(req.Start) == 0 {
		return nil, errors.New(errors.NodeNotFound, "no start values provided", nil)
	}

	starts, err := r.resolve(req.Start, "start")
	if err != nil {
		return nil, err
	}
	failures, err := r.resolve(req.Failures, "failure")
	if err != nil {
		return nil, err
	}
	wrong, err := r.resolve(req.Wrong, "wrong")
	if err != nil {
		return nil, err
	}
	correct, err := r.resolve(req.Correct, "correct")
	if err != nil {
		return nil, err
	}

	pinned := make(pins)
	for _, idx := range failures {
		pinned[idx] = HighProbability
	}
	for _, idx := range wrong {
		pinned[idx] = HighProbability
	}
	// Explicit correct feedback overrides any other signal for a value.
	for _, idx := range correct {
		pinned[idx] = LowProbability
	}

	st := newState(r.g.NumNodes(), starts)
	propagateBackward(r.g, st, pinned, r.opts.Decay)
	iterations, converged := propagateForward(r.g, st, pinned, r.opts.Prior, r.opts.MaxIterations, r.opts.Tolerance)
	combine(st)

	visits, err := r.relax(st, starts)
	if err != nil {
		return nil, err
	}
	return &PassResult{State: st, Visits: visits, Iterations: iterations, Converged: converged}, nil
}

// relax is Dijkstra over the chosen direction with lazy deletion: stale
// heap entries are skipped when popped and each node is visited once.
func (r *Ranker) relax(st *State, starts []int) (int, error) {
	pq := &distanceQueue{}
	for _, idx := range starts {
		heap.Push(pq, queueItem{idx: idx, dist: st.nodes[idx].Distance})
	}

	visits := 0
	for pq.Len() > 0 {
		item := heap.Pop(pq).(queueItem)
		ns := st.nodes[item.idx]
		if ns.Visited || item.dist > ns.Distance {
			continue
		}
		ns.Visited = true
		visits++
		if r.opts.MaxVisits > 0 && visits > r.opts.MaxVisits {
			return visits, errors.New(errors.BudgetExceeded, "ranking pass exceeded its visit budget", nil).
				WithDetails(map[string]int{"maxVisits": r.opts.MaxVisits, "nodes": r.g.NumNodes()})
		}

		relaxEdge := func(to int) {
			next := st.nodes[to]
			if next.Visited {
				return
			}
			cost := r.opts.Cost(item.idx, to, st)
			if cost < 0 {
				cost = 0
			}
			if cand := ns.Distance + cost; cand < next.Distance {
				next.Distance = cand
				next.Previous = item.idx
				heap.Push(pq, queueItem{idx: to, dist: cand})
			}
		}
		for _, p := range r.g.Parents(item.idx) {
			relaxEdge(p)
		}
		if r.opts.Direction == Both {
			for _, c := range r.g.Children(item.idx) {
				relaxEdge(c)
			}
		}
	}
	return visits, nil
}

// Rank runs a pass and reports every reached value except the start values,
// most suspicious first.
func (r *Ranker) Rank(ctx context.Context, req Request) (*Report, error) {
	startTime := time.Now()

	pass, err := r.Pass(ctx, req)
	if err != nil {
		r.logger.Warn("Ranking pass failed", "error", err.Error())
		return nil, err
	}
	st, visits := pass.State, pass.Visits
	if len(req.Start) == 0 {
		req.Start = req.Failures
	}

	isStart := make(map[int]bool, len(req.Start))
	for _, id := range req.Start {
		idx, _ := r.g.Index(id)
		isStart[idx] = true
	}

	candidates := make([]Candidate, 0, visits)
	for idx, ns := range st.nodes {
		if !ns.Visited || isStart[idx] {
			continue
		}
		node := r.g.Node(idx)
		path, _ := r.g.VariablePath(node.Value.ID())
		justification := st.pathTo(idx)
		ids := make([]string, len(justification))
		for i, j := range justification {
			ids[i] = r.g.ID(j)
		}
		candidates = append(candidates, Candidate{
			ID:            node.Value.ID(),
			Name:          node.Value.Name(),
			Path:          path,
			Value:         node.Value.String(),
			Probability:   ns.Probability,
			Forward:       ns.Forward,
			Backward:      ns.Backward,
			Distance:      ns.Distance,
			Level:         Classify(ns.Probability),
			Justification: ids,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Probability != b.Probability {
			return a.Probability > b.Probability
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.ID < b.ID
	})
	if r.opts.TopK > 0 && len(candidates) > r.opts.TopK {
		candidates = candidates[:r.opts.TopK]
	}

	report := &Report{
		Start:         append([]string(nil), req.Start...),
		Candidates:    candidates,
		Visits:        visits,
		Iterations:    pass.Iterations,
		Converged:     pass.Converged,
		TotalNodes:    r.g.NumNodes(),
		TotalEdges:    r.g.NumEdges(),
		ComputationMs: time.Since(startTime).Milliseconds(),
	}
	r.logger.Debug("Ranking pass finished",
		"visits", visits,
		"candidates", len(candidates),
		"iterations", pass.Iterations,
		"converged", pass.Converged,
	)
	return report, nil
}

type queueItem struct {
	idx  int
	dist float64
}

// distanceQueue is a min-heap on distance, ties broken by node index.
type distanceQueue []queueItem

func (q distanceQueue) Len() int { return len(q) }
func (q distanceQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].idx < q[j].idx
}
func (q distanceQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *distanceQueue) Push(x any)   { *q = append(*q, x.(queueItem)) }
func (q *distanceQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
