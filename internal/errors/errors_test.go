package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")

	err := New(InvalidFormat, "header mismatch", cause)

	if err.Code != InvalidFormat {
		t.Errorf("Code = %v, want %v", err.Code, InvalidFormat)
	}
	if err.Message != "header mismatch" {
		t.Errorf("Message = %q, want %q", err.Message, "header mismatch")
	}
	if err.Offset != -1 {
		t.Errorf("Offset = %d, want -1", err.Offset)
	}
	if len(err.SuggestedFixes) != 1 {
		t.Errorf("len(SuggestedFixes) = %d, want 1", len(err.SuggestedFixes))
	}
}

func TestTraceError_Error(t *testing.T) {
	tests := []struct {
		name      string
		err       *TraceError
		wantParts []string
		notParts  []string
	}{
		{
			name:      "corrupt with offset and cause",
			err:       Corrupt(42, "truncated varint", errors.New("unexpected EOF")),
			wantParts: []string{"CORRUPT_TRACE", "truncated varint", "offset 42", "unexpected EOF"},
		},
		{
			name:      "without cause",
			err:       New(NodeNotFound, "value x:3 not in graph", nil),
			wantParts: []string{"NODE_NOT_FOUND", "value x:3 not in graph"},
			notParts:  []string{"offset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
			for _, part := range tt.notParts {
				if strings.Contains(got, part) {
					t.Errorf("Error() = %q, should not contain %q", got, part)
				}
			}
		})
	}
}

func TestTraceError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(IOFailure, "write failed", cause)

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}

	if New(InternalError, "boom", nil).Unwrap() != nil {
		t.Error("Unwrap() on error without cause should return nil")
	}
}

func TestSentinels(t *testing.T) {
	wrapped := fmt.Errorf("loading trace: %w", Corrupt(7, "short string", nil))

	if !errors.Is(wrapped, ErrCorruptTrace) {
		t.Error("wrapped corrupt error should match ErrCorruptTrace")
	}
	if errors.Is(wrapped, ErrInvalidFormat) {
		t.Error("corrupt error should not match ErrInvalidFormat")
	}
	if !IsCorrupt(wrapped) || IsInvalidFormat(wrapped) {
		t.Error("predicate mismatch for corrupt error")
	}
	if !IsCannotRead(wrapped) {
		t.Error("corrupt error should be a cannot-read error")
	}
}

func TestIsCannotRead(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"corrupt", Corrupt(0, "x", nil), true},
		{"invalid format", New(InvalidFormat, "x", nil), true},
		{"degraded", New(DegradedTrace, "x", nil), false},
		{"plain", errors.New("x"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCannotRead(tt.err); got != tt.want {
				t.Errorf("IsCannotRead() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithDetails(t *testing.T) {
	err := New(BudgetExceeded, "ranking stopped", nil)
	details := map[string]int{"visits": 10, "limit": 5}

	if err.WithDetails(details) != err {
		t.Error("WithDetails should return the same error for chaining")
	}
	if err.Details == nil {
		t.Error("Details should be set")
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	tests := []struct {
		code    ErrorCode
		wantLen int
	}{
		{CorruptTrace, 1},
		{InvalidFormat, 1},
		{DegradedTrace, 1},
		{BudgetExceeded, 1},
		{NodeNotFound, 0},
		{InternalError, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := len(GetSuggestedFixes(tt.code)); got != tt.wantLen {
				t.Errorf("GetSuggestedFixes(%v) len = %d, want %d", tt.code, got, tt.wantLen)
			}
		})
	}
}

func TestErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		CorruptTrace,
		InvalidFormat,
		InstrumentationBoundary,
		DegradedTrace,
		IOFailure,
		ConfigInvalid,
		BudgetExceeded,
		NodeNotFound,
		InternalError,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %v", code)
		}
		seen[code] = true
		if string(code) == "" {
			t.Error("Error code should not be empty")
		}
	}
}
