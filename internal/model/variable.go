package model

import (
	"fmt"
	"strings"
)

// VarKind tags the variant of a Variable. Display and equality rules depend
// on it; graph topology does not.
type VarKind uint8

const (
	KindLocal VarKind = iota
	KindField
	KindArrayElement
)

func (k VarKind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindField:
		return "field"
	case KindArrayElement:
		return "array_element"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseVarKind maps the wire names used by the instrumentation layer.
func ParseVarKind(s string) (VarKind, error) {
	switch strings.ToLower(s) {
	case "", "local":
		return KindLocal, nil
	case "field", "static_field":
		return KindField, nil
	case "array_element", "array":
		return KindArrayElement, nil
	default:
		return 0, fmt.Errorf("unknown variable kind %q", s)
	}
}

// Variable is the identity of a program variable instance. ID is stable for
// the lifetime of the trace; AliasID may be attached once the runtime value
// is known to be shared with another identity.
type Variable struct {
	ID      string  `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name"`
	Type    string  `json:"type" yaml:"type"`
	AliasID string  `json:"aliasId,omitempty" yaml:"aliasId,omitempty"`
	Kind    VarKind `json:"kind" yaml:"kind"`

	// Static applies to KindField.
	Static bool `json:"static,omitempty" yaml:"static,omitempty"`
	// Index applies to KindArrayElement.
	Index int `json:"index,omitempty" yaml:"index,omitempty"`
}

// WithAlias returns a copy of v carrying aliasID.
func (v Variable) WithAlias(aliasID string) Variable {
	v.AliasID = aliasID
	return v
}

// DisplayName renders the variable the way a reader of the source would
// write it.
func (v Variable) DisplayName() string {
	switch v.Kind {
	case KindArrayElement:
		if strings.HasSuffix(v.Name, "]") {
			return v.Name
		}
		return fmt.Sprintf("%s[%d]", v.Name, v.Index)
	default:
		return v.Name
	}
}

// VarValue is the runtime value of a Variable at one trace step.
type VarValue struct {
	Variable Variable `json:"variable" yaml:"variable"`
	// StringValue is nil when the runtime value was null.
	StringValue *string `json:"value,omitempty" yaml:"value,omitempty"`
	// HeapID identifies the referenced object for reference-typed values.
	HeapID string `json:"heapId,omitempty" yaml:"heapId,omitempty"`
	// Root marks a top-level observed variable for its step.
	Root bool `json:"root,omitempty" yaml:"root,omitempty"`
}

// NewVarValue creates a non-null value.
func NewVarValue(v Variable, value string, root bool) VarValue {
	return VarValue{Variable: v, StringValue: &value, Root: root}
}

// ID returns the variable ID the value is keyed by.
func (v VarValue) ID() string { return v.Variable.ID }

// Name returns the variable name.
func (v VarValue) Name() string { return v.Variable.Name }

// String returns the rendered value, or "null".
func (v VarValue) String() string {
	if v.StringValue == nil {
		return "null"
	}
	return *v.StringValue
}

// Equal compares values by variable ID, not by rendered value.
func (v VarValue) Equal(o VarValue) bool {
	return v.Variable.ID != "" && v.Variable.ID == o.Variable.ID
}

// HasDefinedString reports whether the rendered value came from a real
// toString implementation rather than the default "pkg.Type@hash" form.
func (v VarValue) HasDefinedString() bool {
	if v.StringValue == nil {
		return false
	}
	s := *v.StringValue
	return !(strings.Contains(s, "@") && strings.Contains(s, "."))
}

// EffectiveAliasID returns the alias ID, falling back to the heap ID.
func (v VarValue) EffectiveAliasID() string {
	if v.Variable.AliasID != "" {
		return v.Variable.AliasID
	}
	return v.HeapID
}

// IsThis reports whether the value is the receiver or an outer-class receiver.
func (v VarValue) IsThis() bool {
	return v.Variable.Name == "this" || strings.HasPrefix(v.Variable.Name, "this$")
}

// IsField reports whether the value belongs to a field variable.
func (v VarValue) IsField() bool { return v.Variable.Kind == KindField }

// IsStatic reports whether the value belongs to a static field.
func (v VarValue) IsStatic() bool { return v.Variable.Kind == KindField && v.Variable.Static }

// VarAccess is a value observed at one step: read, or written from the
// values named in Deps.
type VarAccess struct {
	Value   VarValue `json:"value" yaml:"value"`
	Written bool     `json:"written,omitempty" yaml:"written,omitempty"`
	Deps    []string `json:"deps,omitempty" yaml:"deps,omitempty"`
}

// TraceNode is a single execution step.
type TraceNode struct {
	Order    int           `json:"order" yaml:"order"`
	ThreadID int64         `json:"thread" yaml:"thread"`
	Location ClassLocation `json:"location" yaml:"location"`
	Accesses []VarAccess   `json:"accesses,omitempty" yaml:"accesses,omitempty"`
}

// Trace is a complete recorded run.
type Trace struct {
	ExitMessage string      `json:"exitMessage" yaml:"exitMessage"`
	Steps       []TraceNode `json:"steps" yaml:"steps"`
}
