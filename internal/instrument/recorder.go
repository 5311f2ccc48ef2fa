package instrument

import (
	"context"
	"fmt"
	"log/slog"

	"tracerank/internal/errors"
	"tracerank/internal/model"
)

// RecordOptions configures Record.
type RecordOptions struct {
	Filter *Filter
	// MaxSteps stops recording after that many steps; 0 means unlimited.
	MaxSteps          int
	MaxBoundaryErrors int
	Logger            *slog.Logger
}

// Recording is a full trace collected from a Source.
type Recording struct {
	Trace          *model.Trace
	BoundaryErrors int
	Degraded       bool
	// Truncated is set when MaxSteps cut the recording short.
	Truncated bool
}

// Record drains src into a trace. Steps are numbered from 1 in arrival
// order; steps of filtered classes are dropped. Events that cannot be
// converted are counted as boundary errors and skipped.
func Record(ctx context.Context, src Source, opts RecordOptions) (Recording, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	boundary := NewBoundaryCounter(opts.MaxBoundaryErrors)
	onBoundary := func(err error) {
		logger.Debug("Skipping event", "error", err.Error())
		if boundary.Add() {
			logger.Warn("Trace degraded: too many instrumentation errors", "count", boundary.Count())
		}
	}

	rec := Recording{Trace: &model.Trace{}}
	handle := func(ev Event) {
		switch ev.Kind {
		case KindProgramExit:
			rec.Trace.ExitMessage = ev.Message
			return
		case KindStep:
		default:
			return
		}
		if !opts.Filter.AllowClass(ev.Class) {
			return
		}
		if opts.MaxSteps > 0 && len(rec.Trace.Steps) >= opts.MaxSteps {
			if !rec.Truncated {
				logger.Warn("Recording truncated", "maxSteps", opts.MaxSteps)
			}
			rec.Truncated = true
			return
		}
		accesses, err := ev.VarAccesses()
		if err != nil {
			onBoundary(errors.New(errors.InstrumentationBoundary,
				fmt.Sprintf("step at %s: %v", ev.Location(), err), err))
			return
		}
		rec.Trace.Steps = append(rec.Trace.Steps, model.TraceNode{
			Order:    len(rec.Trace.Steps) + 1,
			ThreadID: ev.Thread,
			Location: ev.Location(),
			Accesses: accesses,
		})
	}

	if err := Drain(ctx, src, handle, onBoundary); err != nil {
		return rec, err
	}
	rec.BoundaryErrors = boundary.Count()
	rec.Degraded = boundary.Degraded()
	logger.Debug("Recording finished",
		"steps", len(rec.Trace.Steps),
		"boundaryErrors", rec.BoundaryErrors,
	)
	return rec, nil
}
