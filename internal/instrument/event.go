// Package instrument is the boundary between a traced program and the
// engines that consume its execution. Instrumented programs report
// method entries, exits and executed lines as newline-delimited JSON events.
package instrument

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"tracerank/internal/errors"
	"tracerank/internal/model"
)

// EventKind identifies what an Event reports.
type EventKind string

const (
	KindMethodEnter EventKind = "method_enter"
	KindMethodExit  EventKind = "method_exit"
	KindStep        EventKind = "step"
	KindProgramExit EventKind = "program_exit"
)

// Event is one instrumentation callback.
type Event struct {
	Kind   EventKind `json:"kind"`
	Thread int64     `json:"thread"`

	Class     string `json:"class,omitempty"`
	Method    string `json:"method,omitempty"`
	Signature string `json:"signature,omitempty"`
	StartLine int    `json:"startLine,omitempty"`
	Line      int32  `json:"line,omitempty"`

	Accesses []Access `json:"accesses,omitempty"`

	// Message is set on program_exit.
	Message string `json:"message,omitempty"`
}

// Access is a variable read or write reported with a step.
type Access struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type,omitempty"`
	Kind    string   `json:"varKind,omitempty"`
	AliasID string   `json:"aliasId,omitempty"`
	Value   *string  `json:"value,omitempty"`
	HeapID  string   `json:"heapId,omitempty"`
	Root    bool     `json:"root,omitempty"`
	Written bool     `json:"written,omitempty"`
	Static  bool     `json:"static,omitempty"`
	Index   int      `json:"index,omitempty"`
	Deps    []string `json:"deps,omitempty"`
}

// Location returns the program point of a step.
func (e Event) Location() model.ClassLocation {
	return model.NewClassLocation(e.Class, e.Signature, e.Line)
}

// MethodID returns the identifier of the method a method_enter or
// method_exit event refers to.
func (e Event) MethodID() model.MethodID {
	return model.MethodID{ClassName: e.Class, MethodName: e.Method, StartLine: e.StartLine}
}

// Validate checks the fields each kind requires.
func (e Event) Validate() error {
	switch e.Kind {
	case KindMethodEnter, KindMethodExit:
		if e.Class == "" || e.Method == "" {
			return fmt.Errorf("%s event without class or method", e.Kind)
		}
		if e.StartLine < 0 {
			return fmt.Errorf("%s event with negative start line %d", e.Kind, e.StartLine)
		}
	case KindStep:
		if e.Class == "" {
			return fmt.Errorf("step event without class")
		}
		for i, a := range e.Accesses {
			if a.ID == "" {
				return fmt.Errorf("step access %d without id", i)
			}
			if a.Index < 0 {
				return fmt.Errorf("step access %d with negative index %d", i, a.Index)
			}
		}
	case KindProgramExit:
	case "":
		return fmt.Errorf("event without kind")
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// VarAccesses converts the reported accesses into model values.
func (e Event) VarAccesses() ([]model.VarAccess, error) {
	if len(e.Accesses) == 0 {
		return nil, nil
	}
	out := make([]model.VarAccess, 0, len(e.Accesses))
	for _, a := range e.Accesses {
		kind, err := model.ParseVarKind(a.Kind)
		if err != nil {
			return nil, err
		}
		if a.Index < 0 {
			return nil, fmt.Errorf("variable %s has negative index %d", a.ID, a.Index)
		}
		out = append(out, model.VarAccess{
			Value: model.VarValue{
				Variable: model.Variable{
					ID:      a.ID,
					Name:    a.Name,
					Type:    a.Type,
					AliasID: a.AliasID,
					Kind:    kind,
					Static:  a.Static,
					Index:   a.Index,
				},
				StringValue: a.Value,
				HeapID:      a.HeapID,
				Root:        a.Root,
			},
			Written: a.Written,
			Deps:    a.Deps,
		})
	}
	return out, nil
}

// DecodeEvent parses and validates one event line. Failures are
// INSTRUMENTATION_BOUNDARY errors.
func DecodeEvent(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, errors.New(errors.InstrumentationBoundary, "malformed event", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, errors.New(errors.InstrumentationBoundary, "invalid event", err)
	}
	return ev, nil
}

// Encoder writes events as newline-delimited JSON. It is safe for
// concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes one event line.
func (e *Encoder) Encode(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(ev)
}
