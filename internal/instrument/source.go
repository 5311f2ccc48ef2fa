package instrument

import (
	"bufio"
	"context"
	"io"
	"sync/atomic"

	"tracerank/internal/errors"
)

// DefaultMaxLineSize bounds a single event line. Steps carrying large
// rendered values can be long.
const DefaultMaxLineSize = 16 << 20

// Source delivers the events of one traced run.
//
// Both channels are closed once the source is exhausted. Errors with code
// INSTRUMENTATION_BOUNDARY are per-event and the stream continues after
// them; any other error ends the run.
type Source interface {
	Events(ctx context.Context) (<-chan Event, <-chan error)
}

// SliceSource replays events held in memory.
type SliceSource []Event

// Events implements Source.
func (s SliceSource) Events(ctx context.Context) (<-chan Event, <-chan error) {
	events := make(chan Event)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(events)
		for _, ev := range s {
			if err := ctx.Err(); err != nil {
				errs <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return events, errs
}

// StreamSource decodes newline-delimited JSON events from a reader.
type StreamSource struct {
	R           io.Reader
	MaxLineSize int
}

// NewStreamSource creates a StreamSource over r.
func NewStreamSource(r io.Reader) *StreamSource {
	return &StreamSource{R: r, MaxLineSize: DefaultMaxLineSize}
}

// Events implements Source.
func (s *StreamSource) Events(ctx context.Context) (<-chan Event, <-chan error) {
	events := make(chan Event)
	errs := make(chan error)
	go func() {
		defer close(errs)
		defer close(events)
		_ = decodeStream(ctx, s.R, s.MaxLineSize, events, errs)
	}()
	return events, errs
}

// decodeStream forwards every decoded line. It returns the fatal error it
// reported, if any.
func decodeStream(ctx context.Context, r io.Reader, maxLine int, events chan<- Event, errs chan<- error) error {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLine)), maxLine)

	send := func(err error) bool {
		select {
		case errs <- err:
			return true
		case <-ctx.Done():
			return false
		}
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := DecodeEvent(line)
		if err != nil {
			if te, ok := err.(*errors.TraceError); ok {
				te.WithDetails(map[string]int{"line": lineNo})
			}
			if !send(err) {
				return ctx.Err()
			}
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			send(ctx.Err())
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		fatal := errors.New(errors.IOFailure, "reading event stream failed", err)
		send(fatal)
		return fatal
	}
	return nil
}

// IsBoundary reports whether err is a per-event error the run survives.
func IsBoundary(err error) bool {
	return errors.CodeOf(err) == errors.InstrumentationBoundary
}

// Drain consumes src, calling handle for each event and onBoundary for each
// boundary error. It returns the first fatal error.
func Drain(ctx context.Context, src Source, handle func(Event), onBoundary func(error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, errs := src.Events(ctx)
	var fatal error
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			handle(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if IsBoundary(err) {
				if onBoundary != nil {
					onBoundary(err)
				}
				continue
			}
			if fatal == nil {
				fatal = err
				// Unblock the producer; it closes both channels on exit.
				cancel()
			}
		}
	}
	return fatal
}

// BoundaryCounter counts boundary errors against a degraded threshold.
// A threshold of zero never degrades.
type BoundaryCounter struct {
	threshold int64
	n         atomic.Int64
}

// NewBoundaryCounter creates a counter that degrades once more than
// threshold errors were seen.
func NewBoundaryCounter(threshold int) *BoundaryCounter {
	return &BoundaryCounter{threshold: int64(threshold)}
}

// Add records one boundary error and reports whether this one crossed the
// threshold.
func (c *BoundaryCounter) Add() bool {
	n := c.n.Add(1)
	return c.threshold > 0 && n == c.threshold+1
}

// Count returns the number of errors recorded.
func (c *BoundaryCounter) Count() int {
	return int(c.n.Load())
}

// Degraded reports whether the threshold was exceeded.
func (c *BoundaryCounter) Degraded() bool {
	return c.threshold > 0 && c.n.Load() > c.threshold
}
