package instrument

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"tracerank/internal/errors"
	"tracerank/internal/model"
)

func TestMain(m *testing.M) {
	if os.Getenv("TRACERANK_HELPER_PROCESS") == "1" {
		helperProcess()
		return
	}
	goleak.VerifyTestMain(m)
}

// helperProcess plays an instrumented program when the test binary is
// re-executed by TestProcessSource.
func helperProcess() {
	fd, err := strconv.Atoi(os.Getenv(EventFDEnv))
	if err != nil {
		os.Exit(10)
	}
	out := os.NewFile(uintptr(fd), "events")
	enc := NewEncoder(out)
	_ = enc.Encode(Event{Kind: KindMethodEnter, Thread: 1, Class: "app.Main", Method: "main", StartLine: 3})
	_ = enc.Encode(Event{Kind: KindStep, Thread: 1, Class: "app.Main", Signature: "main([Ljava/lang/String;)V", Line: 4})
	fmt.Fprintln(out, "not json")
	_ = enc.Encode(Event{Kind: KindMethodExit, Thread: 1, Class: "app.Main", Method: "main", StartLine: 3})
	out.Close()
	fmt.Println("program output")
	if os.Getenv("TRACERANK_HELPER_EXIT") == "fail" {
		os.Exit(1)
	}
	os.Exit(0)
}

func collect(t *testing.T, src Source) ([]Event, []error, error) {
	t.Helper()
	var events []Event
	var boundary []error
	err := Drain(context.Background(), src, func(ev Event) {
		events = append(events, ev)
	}, func(err error) {
		boundary = append(boundary, err)
	})
	return events, boundary, err
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Event
		wantErr bool
	}{
		{
			name: "step",
			line: `{"kind":"step","thread":2,"class":"a.B","signature":"f()V","line":7}`,
			want: Event{Kind: KindStep, Thread: 2, Class: "a.B", Signature: "f()V", Line: 7},
		},
		{
			name: "enter",
			line: `{"kind":"method_enter","thread":1,"class":"a.B","method":"f","startLine":5}`,
			want: Event{Kind: KindMethodEnter, Thread: 1, Class: "a.B", Method: "f", StartLine: 5},
		},
		{
			name: "program exit",
			line: `{"kind":"program_exit","message":"true;no fail"}`,
			want: Event{Kind: KindProgramExit, Message: "true;no fail"},
		},
		{name: "not json", line: `{"kind":`, wantErr: true},
		{name: "no kind", line: `{"thread":1}`, wantErr: true},
		{name: "unknown kind", line: `{"kind":"jump"}`, wantErr: true},
		{name: "enter without method", line: `{"kind":"method_enter","class":"a.B"}`, wantErr: true},
		{name: "step without class", line: `{"kind":"step","line":3}`, wantErr: true},
		{name: "access without id", line: `{"kind":"step","class":"a.B","accesses":[{"name":"x"}]}`, wantErr: true},
		{name: "negative element index", line: `{"kind":"step","class":"a.B","accesses":[{"id":"a[0]","name":"a","varKind":"array_element","index":-1}]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.line))
			if tt.wantErr {
				if !IsBoundary(err) {
					t.Fatalf("expected boundary error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeEvent mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVarAccesses(t *testing.T) {
	v := "42"
	ev := Event{
		Kind:  KindStep,
		Class: "a.B",
		Accesses: []Access{
			{ID: "x:1", Name: "x", Type: "int", Value: &v, Written: true, Deps: []string{"y:1"}},
			{ID: "f:1", Name: "count", Kind: "field", Static: true, Root: true},
		},
	}
	got, err := ev.VarAccesses()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Value.String() != "42" || !got[0].Written || got[0].Deps[0] != "y:1" {
		t.Errorf("first access = %+v", got[0])
	}
	if !got[1].Value.IsStatic() || !got[1].Value.Root || got[1].Value.String() != "null" {
		t.Errorf("second access = %+v", got[1])
	}

	ev.Accesses[0].Kind = "register"
	if _, err := ev.VarAccesses(); err == nil {
		t.Error("expected error for unknown variable kind")
	}
}

func TestStreamSourceFailOpen(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	_ = enc.Encode(Event{Kind: KindStep, Thread: 1, Class: "a.B", Line: 1})
	buf.WriteString("garbage\n\n")
	_ = enc.Encode(Event{Kind: KindStep, Thread: 1, Class: "a.B", Line: 2})
	buf.WriteString(`{"kind":"teleport"}` + "\n")

	events, boundary, err := collect(t, NewStreamSource(&buf))
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}
	if len(boundary) != 2 {
		t.Fatalf("boundary errors = %d, want 2", len(boundary))
	}
	te := boundary[0].(*errors.TraceError)
	if d, ok := te.Details.(map[string]int); !ok || d["line"] != 2 {
		t.Errorf("Details = %v, want line 2", te.Details)
	}
}

func TestStreamSourceLineTooLong(t *testing.T) {
	tests := []struct {
		name    string
		maxLine int
		lineLen int
	}{
		{"tiny limit", 64, 200},
		{"limit below default buffer", 1024, 4096},
		{"limit above default buffer", 128 * 1024, 256 * 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &StreamSource{R: strings.NewReader(strings.Repeat("x", tt.lineLen) + "\n"), MaxLineSize: tt.maxLine}
			_, _, err := collect(t, src)
			if errors.CodeOf(err) != errors.IOFailure {
				t.Errorf("expected IO_FAILURE, got %v", err)
			}
		})
	}
}

func TestSliceSourceCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := SliceSource{{Kind: KindStep, Class: "a.B"}, {Kind: KindStep, Class: "a.B"}}

	n := 0
	err := Drain(ctx, src, func(Event) { n++ }, nil)
	if err != context.Canceled {
		t.Errorf("Drain = %v, want context.Canceled", err)
	}
	if n != 0 {
		t.Errorf("handled %d events, want 0", n)
	}
}

func TestFilter(t *testing.T) {
	main := model.MethodID{ClassName: "app.Main", MethodName: "main", StartLine: 3}
	helper := model.MethodID{ClassName: "app.Util", MethodName: "helper", StartLine: 10}
	runtimeMethod := model.MethodID{ClassName: "java.util.ArrayList", MethodName: "add", StartLine: 1}

	tests := []struct {
		name   string
		filter *Filter
		id     model.MethodID
		want   bool
	}{
		{"nil filter", nil, runtimeMethod, true},
		{"default excludes runtime", NewFilter(nil, nil, nil), runtimeMethod, false},
		{"default allows app", NewFilter(nil, nil, nil), main, true},
		{"empty exclude list", NewFilter(nil, nil, []string{}), runtimeMethod, true},
		{"include prefix", NewFilter(nil, []string{"app.Main"}, nil), helper, false},
		{"full id", NewFilter([]string{"app.Main.main.3"}, nil, nil), main, true},
		{"full id other line", NewFilter([]string{"app.Main.main.4"}, nil, nil), main, false},
		{"key without line", NewFilter([]string{"app.Util.helper"}, nil, nil), helper, true},
		{"not in set", NewFilter([]string{"app.Util.helper"}, nil, nil), main, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.AllowMethod(tt.id); got != tt.want {
				t.Errorf("AllowMethod(%s) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestBoundaryCounter(t *testing.T) {
	c := NewBoundaryCounter(2)
	crossed := []bool{c.Add(), c.Add(), c.Add(), c.Add()}
	if diff := cmp.Diff([]bool{false, false, true, false}, crossed); diff != "" {
		t.Errorf("crossings mismatch (-want +got):\n%s", diff)
	}
	if !c.Degraded() || c.Count() != 4 {
		t.Errorf("Degraded = %v, Count = %d", c.Degraded(), c.Count())
	}

	never := NewBoundaryCounter(0)
	never.Add()
	if never.Degraded() {
		t.Error("zero threshold should never degrade")
	}
}

func TestProcessSource(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("event pipe requires unix descriptors")
	}

	tests := []struct {
		name     string
		exit     string
		wantExit string
	}{
		{"passing program", "", "true;no fail"},
		{"failing program", "fail", "false;exit status 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout bytes.Buffer
			src := &ProcessSource{
				Path:   os.Args[0],
				Args:   []string{"-test.run=^$"},
				Env:    []string{"TRACERANK_HELPER_PROCESS=1", "TRACERANK_HELPER_EXIT=" + tt.exit},
				Stdout: &stdout,
			}
			events, boundary, err := collect(t, src)
			if err != nil {
				t.Fatalf("Drain: %v", err)
			}

			kinds := make([]EventKind, 0, len(events))
			for _, ev := range events {
				kinds = append(kinds, ev.Kind)
			}
			want := []EventKind{KindMethodEnter, KindStep, KindMethodExit, KindProgramExit}
			if diff := cmp.Diff(want, kinds); diff != "" {
				t.Fatalf("event kinds mismatch (-want +got):\n%s", diff)
			}
			if got := events[len(events)-1].Message; got != tt.wantExit {
				t.Errorf("exit message = %q, want %q", got, tt.wantExit)
			}
			if len(boundary) != 1 {
				t.Errorf("boundary errors = %d, want 1", len(boundary))
			}
			if !strings.Contains(stdout.String(), "program output") {
				t.Errorf("stdout = %q", stdout.String())
			}
		})
	}
}

func TestProcessSourceMissingBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("event pipe requires unix descriptors")
	}
	src := &ProcessSource{Path: "/nonexistent/tracerank-target"}
	_, _, err := collect(t, src)
	if errors.CodeOf(err) != errors.IOFailure {
		t.Errorf("expected IO_FAILURE, got %v", err)
	}
}
