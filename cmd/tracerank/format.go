package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
	FormatYAML  OutputFormat = "yaml"
)

func parseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatJSON, FormatHuman, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatYAML:
		return formatYAML(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatYAML(resp interface{}) (string, error) {
	data, err := yaml.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *PrecheckResponseCLI:
		return formatPrecheckHuman(v), nil
	case *InspectResponseCLI:
		return formatInspectHuman(v), nil
	case *RecordResponseCLI:
		return formatRecordHuman(v), nil
	case *RankResponseCLI:
		return formatRankHuman(v), nil
	case *PathResponseCLI:
		return formatPathHuman(v), nil
	case *HistoryResponseCLI:
		return formatHistoryHuman(v), nil
	case *MethodsResponseCLI:
		return formatMethodsHuman(v), nil
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

// printResponse writes resp to the command's stdout in the global format.
func printResponse(out io.Writer, resp interface{}) error {
	format, err := parseFormat(formatFlag)
	if err != nil {
		return err
	}
	text, err := FormatResponse(resp, format)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, text)
	return err
}

func formatPrecheckHuman(r *PrecheckResponseCLI) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Pre-check written to %s\n", r.OutputPath))
	writeSummary(&b, r.Summary)
	if r.BoundaryErrors > 0 {
		b.WriteString(fmt.Sprintf("Boundary errors: %d", r.BoundaryErrors))
		if r.Degraded {
			b.WriteString(" (degraded)")
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("Duration: %dms\n", r.DurationMs))
	if r.RunID != "" {
		b.WriteString(fmt.Sprintf("Run: %s\n", r.RunID))
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeSummary(b *strings.Builder, s SummaryCLI) {
	b.WriteString(fmt.Sprintf("Program: %s\n", s.ProgramMsg))
	b.WriteString(fmt.Sprintf("Threads: %d\n", s.ThreadNum))
	b.WriteString(fmt.Sprintf("Steps: %d", s.StepTotal))
	if s.IsOverLong {
		b.WriteString(" (over global ceiling)")
	}
	b.WriteString("\n")
	if len(s.ExceedingMethods) > 0 {
		b.WriteString(fmt.Sprintf("Methods over ceiling (%d):\n", len(s.ExceedingMethods)))
		for _, m := range s.ExceedingMethods {
			b.WriteString("  " + m + "\n")
		}
	}
	b.WriteString(fmt.Sprintf("Visited locations: %d\n", s.VisitedCount))
	for _, loc := range s.Visited {
		b.WriteString("  " + loc + "\n")
	}
}

func formatInspectHuman(r *InspectResponseCLI) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s\n", r.Path))
	b.WriteString(strings.Repeat("=", 60) + "\n")
	for i, s := range r.Records {
		if len(r.Records) > 1 {
			b.WriteString(fmt.Sprintf("\nRecord %d:\n", i+1))
		}
		writeSummary(&b, s)
	}
	if r.ExceededLimits {
		b.WriteString("\nTrace exceeded limits.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRecordHuman(r *RecordResponseCLI) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Trace written to %s\n", r.OutputPath))
	b.WriteString(fmt.Sprintf("Program: %s\n", r.ExitMessage))
	b.WriteString(fmt.Sprintf("Steps: %d", r.Steps))
	if r.Truncated {
		b.WriteString(" (truncated)")
	}
	b.WriteString("\n")
	if r.BoundaryErrors > 0 {
		b.WriteString(fmt.Sprintf("Boundary errors: %d", r.BoundaryErrors))
		if r.Degraded {
			b.WriteString(" (degraded)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRankHuman(r *RankResponseCLI) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Ranking of %s\n", r.TracePath))
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(fmt.Sprintf("Start: %s\n", strings.Join(r.Report.Start, ", ")))
	b.WriteString(fmt.Sprintf("Graph: %d values, %d edges; visited %d\n",
		r.Report.TotalNodes, r.Report.TotalEdges, r.Report.Visits))
	if len(r.Report.Candidates) == 0 {
		b.WriteString("\nNo candidates reached.\n")
		return strings.TrimRight(b.String(), "\n")
	}
	b.WriteString("\nCandidates:\n")
	for i, c := range r.Report.Candidates {
		b.WriteString(fmt.Sprintf("  %2d. [%s] %.3f  %s = %s\n", i+1, c.Level, c.Probability, c.Path, c.Value))
		if len(c.Justification) > 1 {
			b.WriteString(fmt.Sprintf("      via %s\n", strings.Join(c.Justification, " -> ")))
		}
	}
	if r.RunID != "" {
		b.WriteString(fmt.Sprintf("\nRun: %s\n", r.RunID))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPathHuman(r *PathResponseCLI) string {
	var b strings.Builder
	for _, p := range r.Paths {
		if p.Rooted {
			b.WriteString(fmt.Sprintf("%s: %s\n", p.ID, p.Path))
		} else {
			b.WriteString(fmt.Sprintf("%s: %s (no root)\n", p.ID, p.Path))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistoryHuman(r *HistoryResponseCLI) string {
	var b strings.Builder
	if r.Precheck != nil {
		b.WriteString(fmt.Sprintf("Pre-check runs (%d):\n", len(r.Precheck)))
		for _, run := range r.Precheck {
			flags := ""
			if run.OverLong {
				flags += " overlong"
			}
			if run.Degraded {
				flags += " degraded"
			}
			b.WriteString(fmt.Sprintf("  %s  %s  steps=%d threads=%d exceeding=%d%s\n",
				run.CreatedAt.Format("2006-01-02 15:04:05"), shortID(run.RunID),
				run.StepTotal, run.ThreadNum, run.ExceedingCount, flags))
		}
	}
	if r.Rankings != nil {
		if r.Precheck != nil {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("Ranking runs (%d):\n", len(r.Rankings)))
		for _, run := range r.Rankings {
			top := run.TopCandidate
			if top == "" {
				top = "-"
			}
			b.WriteString(fmt.Sprintf("  %s  %s  top=%s (%.3f) candidates=%d\n",
				run.CreatedAt.Format("2006-01-02 15:04:05"), shortID(run.RunID),
				top, run.TopProbability, run.Candidates))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMethodsHuman(r *MethodsResponseCLI) string {
	var b strings.Builder
	if r.Resolution != nil {
		for _, id := range r.Resolution.IDs {
			b.WriteString(id + "\n")
		}
		for _, p := range r.Resolution.Unmatched {
			b.WriteString(fmt.Sprintf("unmatched: %s\n", p))
		}
		return strings.TrimRight(b.String(), "\n")
	}
	for _, m := range r.Methods {
		b.WriteString(fmt.Sprintf("%s%s  %s\n", m.Key, m.Params, m.Path))
	}
	b.WriteString(fmt.Sprintf("%d methods", len(r.Methods)))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
