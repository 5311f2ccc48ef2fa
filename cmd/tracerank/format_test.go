package main

import (
	"strings"
	"testing"
	"time"

	"tracerank/internal/ranking"
	"tracerank/internal/storage"
	"tracerank/internal/version"
)

func TestFormatResponse_JSON(t *testing.T) {
	resp := map[string]interface{}{
		"key": "value",
		"num": 42,
	}

	result, err := FormatResponse(resp, FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, `"key": "value"`) {
		t.Error("JSON output missing expected key")
	}
	if !strings.Contains(result, `"num": 42`) {
		t.Error("JSON output missing expected number")
	}
}

func TestFormatResponse_YAML(t *testing.T) {
	resp := &PathResponseCLI{TracePath: "t.bin", Paths: []ValuePath{{ID: "a#1", Path: "this.a", Rooted: true}}}

	result, err := FormatResponse(resp, FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"tracePath: t.bin", "path: this.a", "rooted: true"} {
		if !strings.Contains(result, want) {
			t.Errorf("YAML output missing %q:\n%s", want, result)
		}
	}
	if strings.HasSuffix(result, "\n") {
		t.Error("YAML output should not end in a newline")
	}
}

func TestFormatResponse_UnsupportedFormat(t *testing.T) {
	_, err := FormatResponse(map[string]string{"key": "value"}, "xml")
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("err = %v, want unsupported format", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"human", FormatHuman, false},
		{"table", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatRankHuman(t *testing.T) {
	resp := &RankResponseCLI{
		TracePath: "failing.trace",
		Report: &ranking.Report{
			Start:      []string{"total#1"},
			TotalNodes: 3,
			TotalEdges: 2,
			Visits:     3,
			Candidates: []ranking.Candidate{
				{ID: "price#1", Path: "price", Value: "5", Probability: 0.6774, Level: ranking.High,
					Justification: []string{"total#1", "price#1"}},
			},
		},
	}

	out, err := formatHuman(resp)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Ranking of failing.trace",
		"Start: total#1",
		"3 values, 2 edges",
		"[HIGH] 0.677  price = 5",
		"via total#1 -> price#1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatRankHuman_NoCandidates(t *testing.T) {
	out := formatRankHuman(&RankResponseCLI{Report: &ranking.Report{Start: []string{"a"}}})
	if !strings.Contains(out, "No candidates reached.") {
		t.Errorf("output = %q", out)
	}
}

func TestFormatHistoryHuman(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	resp := &HistoryResponseCLI{
		Precheck: []storage.PrecheckRun{{RunID: "0123456789abcdef", CreatedAt: at, StepTotal: 10, ThreadNum: 2, OverLong: true}},
		Rankings: []storage.RankingRun{},
	}

	out := formatHistoryHuman(resp)
	for _, want := range []string{
		"Pre-check runs (1):",
		"2026-03-01 12:30:00  01234567  steps=10 threads=2 exceeding=0 overlong",
		"Ranking runs (0):",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatPathHuman(t *testing.T) {
	out := formatPathHuman(&PathResponseCLI{Paths: []ValuePath{
		{ID: "a#1", Path: "this.a.b", Rooted: true},
		{ID: "x#2", Path: "x"},
	}})
	want := "a#1: this.a.b\nx#2: x (no root)"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestFormatHumanFallsBackToJSON(t *testing.T) {
	out, err := formatHuman(&version.BuildInfo{Version: "1.0.0"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"version": "1.0.0"`) {
		t.Errorf("output = %s", out)
	}
}
