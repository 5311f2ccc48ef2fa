package main

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tracerank/internal/errors"
	"tracerank/internal/instrument"
	"tracerank/internal/version"
)

// resetFlags restores every flag to its default so commands can run more
// than once in one process.
func resetFlags(cmd *cobra.Command) {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	reset(cmd.Flags())
	reset(cmd.PersistentFlags())
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TRACERANK_LOGGING_FILE", "false")
	resetFlags(rootCmd)
	current = nil

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--workdir", dir, "-q"}, args...))
	err := rootCmd.Execute()
	if current != nil && current.factory != nil {
		_ = current.factory.Close()
	}
	return out.String(), err
}

func writeEvents(t *testing.T, dir string, events ...instrument.Event) string {
	t.Helper()
	path := filepath.Join(dir, "events.ndjson")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := instrument.NewEncoder(f)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func methodRun(steps int) []instrument.Event {
	events := []instrument.Event{{Kind: instrument.KindMethodEnter, Thread: 1, Class: "app.Main", Method: "main", StartLine: 3}}
	for i := 0; i < steps; i++ {
		events = append(events, instrument.Event{Kind: instrument.KindStep, Thread: 1, Class: "app.Main", Signature: "main()V", Line: int32(4 + i)})
	}
	return append(events,
		instrument.Event{Kind: instrument.KindMethodExit, Thread: 1, Class: "app.Main", Method: "main", StartLine: 3},
		instrument.Event{Kind: instrument.KindProgramExit, Message: "true;no fail"},
	)
}

func strp(s string) *string { return &s }

// cartRun computes total from two roots and reports the run as failed.
func cartRun() []instrument.Event {
	return []instrument.Event{
		{Kind: instrument.KindStep, Thread: 1, Class: "app.Cart", Signature: "total()I", Line: 10, Accesses: []instrument.Access{
			{ID: "price#1", Name: "price", Type: "int", Value: strp("5"), Root: true},
			{ID: "qty#1", Name: "qty", Type: "int", Value: strp("0"), Root: true},
		}},
		{Kind: instrument.KindStep, Thread: 1, Class: "app.Cart", Signature: "total()I", Line: 11, Accesses: []instrument.Access{
			{ID: "total#1", Name: "total", Type: "int", Value: strp("0"), Written: true, Deps: []string{"price#1", "qty#1"}},
		}},
		{Kind: instrument.KindProgramExit, Message: "false;wrong total"},
	}
}

func TestPrecheckAndInspect(t *testing.T) {
	dir := t.TempDir()
	events := writeEvents(t, dir, methodRun(5)...)

	out, err := execute(t, dir, "precheck", "--events", events, "--format", "json")
	if err != nil {
		t.Fatalf("precheck failed: %v", err)
	}
	var resp PrecheckResponseCLI
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if resp.Summary.StepTotal != 5 || resp.Summary.IsOverLong {
		t.Errorf("summary = %+v", resp.Summary)
	}
	if resp.Summary.ProgramMsg != "true;no fail" {
		t.Errorf("ProgramMsg = %q", resp.Summary.ProgramMsg)
	}
	if resp.OutputPath != ".tracerank/precheck.bin" {
		t.Errorf("OutputPath = %q", resp.OutputPath)
	}
	if resp.RunID == "" {
		t.Error("run was not recorded in history")
	}

	out, err = execute(t, dir, "inspect", "--format", "json")
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	var inspected InspectResponseCLI
	if err := json.Unmarshal([]byte(out), &inspected); err != nil {
		t.Fatal(err)
	}
	if len(inspected.Records) != 1 || inspected.ExceededLimits {
		t.Errorf("inspect = %+v", inspected)
	}
}

func TestPrecheckOverLongExitCodes(t *testing.T) {
	dir := t.TempDir()
	events := writeEvents(t, dir, methodRun(5)...)

	if _, err := execute(t, dir, "precheck", "--events", events, "--step-ceiling-global", "3", "--no-history"); err != nil {
		t.Fatalf("precheck failed: %v", err)
	}

	out, err := execute(t, dir, "inspect")
	if code := exitCode(err); code != exitLimitReached {
		t.Fatalf("inspect exit code = %d (%v), want %d", code, err, exitLimitReached)
	}
	if errorMessage(err) != "" {
		t.Errorf("limit status should print no error, got %q", errorMessage(err))
	}
	if !strings.Contains(out, "over global ceiling") {
		t.Errorf("human output missing over-long marker:\n%s", out)
	}
}

func TestPrecheckAppendHistory(t *testing.T) {
	dir := t.TempDir()
	events := writeEvents(t, dir, methodRun(2)...)

	for i := 0; i < 2; i++ {
		if _, err := execute(t, dir, "precheck", "--events", events, "--append", "--no-history"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	out, err := execute(t, dir, "inspect", "--history", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var inspected InspectResponseCLI
	if err := json.Unmarshal([]byte(out), &inspected); err != nil {
		t.Fatal(err)
	}
	if len(inspected.Records) != 2 {
		t.Errorf("records = %d, want 2", len(inspected.Records))
	}
}

func TestInspectCannotRead(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, dir, "inspect", "missing.bin")
	if code := exitCode(err); code != exitCannotRead {
		t.Errorf("missing file exit code = %d, want %d", code, exitCannotRead)
	}

	garbage := filepath.Join(dir, "garbage.bin")
	if err := os.WriteFile(garbage, []byte{0xff, 0xff, 0xff}, 0644); err != nil {
		t.Fatal(err)
	}
	_, err = execute(t, dir, "inspect", garbage)
	if code := exitCode(err); code != exitCannotRead {
		t.Errorf("corrupt file exit code = %d (%v), want %d", code, err, exitCannotRead)
	}
}

func TestPrecheckRequiresSource(t *testing.T) {
	_, err := execute(t, t.TempDir(), "precheck")
	if err == nil || !strings.Contains(err.Error(), "no program given") {
		t.Errorf("err = %v, want missing program", err)
	}
	if code := exitCode(err); code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
}

func TestRecordRankAndPath(t *testing.T) {
	dir := t.TempDir()
	events := writeEvents(t, dir, cartRun()...)

	out, err := execute(t, dir, "record", "--events", events, "--format", "json")
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	var rec RecordResponseCLI
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Steps != 2 || rec.ExitMessage != "false;wrong total" {
		t.Errorf("record = %+v", rec)
	}

	out, err = execute(t, dir, "rank", "--failure", "total#1", "--format", "json")
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	var ranked RankResponseCLI
	if err := json.Unmarshal([]byte(out), &ranked); err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, c := range ranked.Report.Candidates {
		ids = append(ids, c.ID)
	}
	if diff := cmp.Diff([]string{"price#1", "qty#1"}, ids); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}
	if ranked.Graph.Values != 3 || ranked.Graph.Edges != 2 {
		t.Errorf("graph stats = %+v", ranked.Graph)
	}
	if ranked.RunID == "" {
		t.Error("ranking was not recorded in history")
	}

	out, err = execute(t, dir, "path", "price#1")
	if err != nil {
		t.Fatalf("path failed: %v", err)
	}
	if strings.TrimSpace(out) != "price#1: price" {
		t.Errorf("path output = %q", out)
	}

	_, err = execute(t, dir, "path", "nope#9")
	if !stderrors.Is(err, errors.ErrNodeNotFound) {
		t.Errorf("unknown value err = %v, want NODE_NOT_FOUND", err)
	}

	out, err = execute(t, dir, "history", "--format", "json")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var hist HistoryResponseCLI
	if err := json.Unmarshal([]byte(out), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist.Rankings) != 1 || hist.Rankings[0].TopCandidate != "price#1" {
		t.Errorf("rankings history = %+v", hist.Rankings)
	}
}

func TestRankValidation(t *testing.T) {
	dir := t.TempDir()
	events := writeEvents(t, dir, cartRun()...)
	if _, err := execute(t, dir, "record", "--events", events); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no failure", []string{"rank"}, "--failure"},
		{"bad direction", []string{"rank", "--failure", "total#1", "--direction", "sideways"}, "invalid direction"},
		{"unknown failure", []string{"rank", "--failure", "missing#1"}, "not in the graph"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, dir, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestRankMissingTrace(t *testing.T) {
	_, err := execute(t, t.TempDir(), "rank", "--failure", "x#1")
	if code := exitCode(err); code != exitCannotRead {
		t.Errorf("exit code = %d (%v), want %d", code, err, exitCannotRead)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, dir, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".tracerank", "config.json")); err != nil {
		t.Fatalf("config file missing: %v", err)
	}
	if _, err := execute(t, dir, "config", "init"); err == nil {
		t.Error("second init without --force should fail")
	}

	out, err := execute(t, dir, "config", "show", "--format", "yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "stepCeilingGlobal: 1000000") {
		t.Errorf("yaml output missing ceiling:\n%s", out)
	}
}

func TestVersionOutput(t *testing.T) {
	oldVersion, oldCommit := version.Version, version.Commit
	version.Version, version.Commit = "9.9.9", "0123456789ab"
	t.Cleanup(func() { version.Version, version.Commit = oldVersion, oldCommit })

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, t.TempDir(), "version", "--format", "json")
		if err != nil {
			t.Fatal(err)
		}
		var got version.BuildInfo
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("decode %q: %v", out, err)
		}
		if got.Version != "9.9.9" || got.Commit != "0123456789ab" {
			t.Errorf("got %+v", got)
		}
		if got.Go == "" {
			t.Error("go version missing")
		}
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, t.TempDir(), "version", "--format", "yaml")
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"version: 9.9.9", "commit: 0123456789ab"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("human", func(t *testing.T) {
		out, err := execute(t, t.TempDir(), "version")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(out, "tracerank version 9.9.9\nCommit: 0123456789ab") {
			t.Errorf("output = %q", out)
		}
	})
}

func TestInvalidFormatRejected(t *testing.T) {
	_, err := execute(t, t.TempDir(), "version", "--format", "xml")
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("err = %v, want unsupported format", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain", fmt.Errorf("boom"), exitFailure},
		{"corrupt", errors.Corrupt(4, "truncated", nil), exitCannotRead},
		{"invalid format", errors.New(errors.InvalidFormat, "not a pre-check file", nil), exitCannotRead},
		{"budget", errors.New(errors.BudgetExceeded, "too many visits", nil), exitFailure},
		{"explicit", &exitError{code: exitLimitReached}, exitLimitReached},
		{"wrapped explicit", fmt.Errorf("inspect: %w", &exitError{code: 7, err: fmt.Errorf("x")}), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
