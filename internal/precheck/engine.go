package precheck

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tracerank/internal/errors"
	"tracerank/internal/instrument"
	"tracerank/internal/model"
)

// Options configures a pre-check run. Zero ceilings mean unlimited.
type Options struct {
	// StepCeilingPerMethod (L) bounds the steps of a single invocation.
	StepCeilingPerMethod int
	// StepCeilingGlobal (G) bounds the steps of the whole run.
	StepCeilingGlobal int
	Filter            *instrument.Filter
	// MaxBoundaryErrors marks the run degraded once exceeded; 0 never does.
	MaxBoundaryErrors int
	Logger            *slog.Logger
}

// Result is the outcome of Engine.Run.
type Result struct {
	Info           Info
	BoundaryErrors int
	Degraded       bool
	Duration       time.Duration
}

type frame struct {
	id      model.MethodID
	counted bool
	steps   int
	flagged bool
}

type threadState struct {
	mu      sync.Mutex
	stack   []frame
	stepped bool
}

// Engine counts the steps of one run. Record may be called concurrently,
// typically from one goroutine per traced thread; events of a single thread
// must arrive in program order.
type Engine struct {
	opts   Options
	logger *slog.Logger

	total    atomic.Int64
	overLong atomic.Bool
	threadN  atomic.Int64

	threadsMu sync.RWMutex
	threads   map[int64]*threadState

	mu           sync.Mutex
	exceeding    []string
	exceedingSet map[string]struct{}
	visited      map[model.ClassLocation]struct{}
	programMsg   string

	boundary *instrument.BoundaryCounter
}

// NewEngine creates an Engine for a single run.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		opts:         opts,
		logger:       logger,
		threads:      make(map[int64]*threadState),
		exceedingSet: make(map[string]struct{}),
		visited:      make(map[model.ClassLocation]struct{}),
		boundary:     instrument.NewBoundaryCounter(opts.MaxBoundaryErrors),
	}
}

func (e *Engine) thread(id int64) *threadState {
	e.threadsMu.RLock()
	ts, ok := e.threads[id]
	e.threadsMu.RUnlock()
	if ok {
		return ts
	}

	e.threadsMu.Lock()
	defer e.threadsMu.Unlock()
	if ts, ok = e.threads[id]; !ok {
		ts = &threadState{}
		e.threads[id] = ts
	}
	return ts
}

// Record applies one event. A returned error is an INSTRUMENTATION_BOUNDARY
// error for an event that could not be applied; the engine state is
// unchanged by it.
func (e *Engine) Record(ev instrument.Event) error {
	switch ev.Kind {
	case instrument.KindStep:
		e.step(ev)
	case instrument.KindMethodEnter:
		e.enter(ev)
	case instrument.KindMethodExit:
		return e.exit(ev)
	case instrument.KindProgramExit:
		e.mu.Lock()
		e.programMsg = ev.Message
		e.mu.Unlock()
	default:
		return errors.New(errors.InstrumentationBoundary, fmt.Sprintf("unexpected event kind %q", ev.Kind), nil)
	}
	return nil
}

func (e *Engine) enter(ev instrument.Event) {
	id := ev.MethodID()
	ts := e.thread(ev.Thread)
	ts.mu.Lock()
	ts.stack = append(ts.stack, frame{id: id, counted: e.opts.Filter.AllowMethod(id)})
	ts.mu.Unlock()
}

func (e *Engine) exit(ev instrument.Event) error {
	id := ev.MethodID()
	ts := e.thread(ev.Thread)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	// Frames above the match were left by exceptional exits that were not
	// reported.
	for i := len(ts.stack) - 1; i >= 0; i-- {
		f := ts.stack[i].id
		if f.ClassName == id.ClassName && f.MethodName == id.MethodName &&
			(id.StartLine == 0 || f.StartLine == id.StartLine) {
			ts.stack = ts.stack[:i]
			return nil
		}
	}
	return errors.New(errors.InstrumentationBoundary, "method exit without matching entry", nil).
		WithDetails(map[string]interface{}{"thread": ev.Thread, "method": id.String()})
}

func (e *Engine) step(ev instrument.Event) {
	if !e.opts.Filter.AllowClass(ev.Class) {
		return
	}

	ts := e.thread(ev.Thread)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	var top *frame
	if n := len(ts.stack); n > 0 {
		top = &ts.stack[n-1]
	}
	if top == nil {
		if e.opts.Filter.RestrictsMethods() {
			return
		}
	} else if !top.counted {
		return
	}

	if !e.reserveStep() {
		return
	}

	if !ts.stepped {
		ts.stepped = true
		e.threadN.Add(1)
	}

	var exceeded string
	if top != nil {
		top.steps++
		if limit := e.opts.StepCeilingPerMethod; limit > 0 && top.steps > limit && !top.flagged {
			top.flagged = true
			exceeded = top.id.String()
		}
	}

	e.mu.Lock()
	e.visited[ev.Location()] = struct{}{}
	added := false
	if exceeded != "" {
		if _, ok := e.exceedingSet[exceeded]; !ok {
			e.exceedingSet[exceeded] = struct{}{}
			e.exceeding = append(e.exceeding, exceeded)
			added = true
		}
	}
	e.mu.Unlock()

	if added {
		e.logger.Info("Method exceeded step ceiling",
			"method", exceeded,
			"ceiling", e.opts.StepCeilingPerMethod,
			"thread", ev.Thread,
		)
	}
}

// reserveStep counts one step against the global ceiling. The step that
// would pass the ceiling is refused and latches the overlong flag.
func (e *Engine) reserveStep() bool {
	limit := int64(e.opts.StepCeilingGlobal)
	for {
		cur := e.total.Load()
		if limit > 0 && cur >= limit {
			if e.overLong.CompareAndSwap(false, true) {
				e.logger.Warn("Global step ceiling reached, ignoring remaining steps", "ceiling", limit)
			}
			return false
		}
		if e.total.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (e *Engine) onBoundary(err error) {
	if e.boundary.Add() {
		e.logger.Warn("Too many instrumentation errors, trace is degraded",
			"threshold", e.opts.MaxBoundaryErrors,
		)
	}
	e.logger.Debug("Instrumentation event dropped", "error", err.Error())
}

// Info returns a snapshot of the counters.
func (e *Engine) Info() Info {
	e.mu.Lock()
	defer e.mu.Unlock()

	visited := make([]model.ClassLocation, 0, len(e.visited))
	for l := range e.visited {
		visited = append(visited, l)
	}
	return NewInfo(
		e.programMsg,
		int(e.threadN.Load()),
		e.overLong.Load(),
		int(e.total.Load()),
		e.exceeding,
		visited,
	)
}

// Run drains src into the engine. Exceeding a ceiling is reported in the
// result, never as an error; only source failures and cancellation are.
func (e *Engine) Run(ctx context.Context, src instrument.Source) (Result, error) {
	start := time.Now()
	e.logger.Info("Pre-check started",
		"methodCeiling", e.opts.StepCeilingPerMethod,
		"globalCeiling", e.opts.StepCeilingGlobal,
	)

	err := instrument.Drain(ctx, src, func(ev instrument.Event) {
		if err := e.Record(ev); err != nil {
			e.onBoundary(err)
		}
	}, e.onBoundary)
	if err != nil {
		e.logger.Error("Pre-check failed", "error", err.Error())
		return Result{}, err
	}

	res := Result{
		Info:           e.Info(),
		BoundaryErrors: e.boundary.Count(),
		Degraded:       e.boundary.Degraded(),
		Duration:       time.Since(start),
	}
	e.logger.Info("Pre-check finished",
		"steps", res.Info.StepTotal(),
		"threads", res.Info.ThreadNum(),
		"overLong", res.Info.IsOverLong(),
		"exceeding", len(res.Info.exceedingMethods),
		"duration", res.Duration.String(),
	)
	return res, nil
}

// Run is a convenience wrapper creating a fresh Engine.
func Run(ctx context.Context, opts Options, src instrument.Source) (Result, error) {
	return NewEngine(opts).Run(ctx, src)
}
