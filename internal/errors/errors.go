package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// CorruptTrace indicates a truncated or malformed binary stream
	CorruptTrace ErrorCode = "CORRUPT_TRACE"
	// InvalidFormat indicates the stream header did not match the expected format
	InvalidFormat ErrorCode = "INVALID_FORMAT"
	// InstrumentationBoundary indicates the traced process reported an unusable event
	InstrumentationBoundary ErrorCode = "INSTRUMENTATION_BOUNDARY"
	// DegradedTrace indicates too many boundary events were dropped
	DegradedTrace ErrorCode = "DEGRADED_TRACE"
	// IOFailure indicates a persistence failure
	IOFailure ErrorCode = "IO_FAILURE"
	// ConfigInvalid indicates an invalid configuration value
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// BudgetExceeded indicates a ranking pass hit its visit ceiling
	BudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
	// NodeNotFound indicates a value ID is not part of the dependency graph
	NodeNotFound ErrorCode = "NODE_NOT_FOUND"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// TraceError represents an error with code, message, and suggestions.
// Offset is the byte position of the failed read for codec errors and -1 otherwise.
type TraceError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Offset         int64       `json:"offset"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new TraceError with the predefined fixes for its code
func New(code ErrorCode, message string, cause error) *TraceError {
	return &TraceError{
		Code:           code,
		Message:        message,
		Offset:         -1,
		SuggestedFixes: GetSuggestedFixes(code),
		cause:          cause,
	}
}

// Corrupt creates a CORRUPT_TRACE error for a read that started at offset
func Corrupt(offset int64, message string, cause error) *TraceError {
	e := New(CorruptTrace, message, cause)
	e.Offset = offset
	return e
}

// Error implements the error interface
func (e *TraceError) Error() string {
	msg := e.Message
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s (at byte offset %d)", e.Message, e.Offset)
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying error
func (e *TraceError) Unwrap() error {
	return e.cause
}

// Is matches another TraceError by code, so sentinel comparisons work with errors.Is
func (e *TraceError) Is(target error) bool {
	t, ok := target.(*TraceError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// WithDetails adds details to the error
func (e *TraceError) WithDetails(details interface{}) *TraceError {
	e.Details = details
	return e
}

// Sentinels usable with errors.Is; they only carry a code.
var (
	ErrCorruptTrace   = &TraceError{Code: CorruptTrace, Offset: -1}
	ErrInvalidFormat  = &TraceError{Code: InvalidFormat, Offset: -1}
	ErrBudgetExceeded = &TraceError{Code: BudgetExceeded, Offset: -1}
	ErrNodeNotFound   = &TraceError{Code: NodeNotFound, Offset: -1}
)

// CodeOf returns the code of the first TraceError in the chain, or "" when there is none
func CodeOf(err error) ErrorCode {
	var te *TraceError
	if stderrors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsCorrupt reports whether err is a truncated or malformed stream
func IsCorrupt(err error) bool {
	return CodeOf(err) == CorruptTrace
}

// IsInvalidFormat reports whether err is a header mismatch
func IsInvalidFormat(err error) bool {
	return CodeOf(err) == InvalidFormat
}

// IsCannotRead reports whether the trace is unusable and must be discarded.
// Tooling uses it to tell data loss apart from an expected limit cutoff.
func IsCannotRead(err error) bool {
	code := CodeOf(err)
	return code == CorruptTrace || code == InvalidFormat
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	CorruptTrace: {
		{
			Type:        RunCommand,
			Command:     "tracerank precheck --output ${file} -- ${program}",
			Safe:        true,
			Description: "Discard the damaged file and collect it again",
		},
	},
	InvalidFormat: {
		{
			Type:        RunCommand,
			Command:     "tracerank inspect ${file}",
			Safe:        true,
			Description: "Check that the file was written by a pre-check or record run",
		},
	},
	DegradedTrace: {
		{
			Type:        RunCommand,
			Command:     "tracerank precheck -vv -- ${program}",
			Safe:        true,
			Description: "Rerun with verbose logging to see which events were dropped",
		},
	},
	BudgetExceeded: {
		{
			Type:        RunCommand,
			Command:     "tracerank rank --max-visits=0 ${trace}",
			Safe:        true,
			Description: "Remove the visit ceiling for this ranking pass",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
