package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tracerank/internal/precheck"
	"tracerank/internal/ranking"
)

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// PrecheckRun is one recorded pre-check run.
type PrecheckRun struct {
	RunID          string    `json:"runId" yaml:"runId"`
	CreatedAt      time.Time `json:"createdAt" yaml:"createdAt"`
	Command        string    `json:"command" yaml:"command"`
	OutputPath     string    `json:"outputPath" yaml:"outputPath"`
	ProgramMsg     string    `json:"programMsg" yaml:"programMsg"`
	ThreadNum      int       `json:"threadNum" yaml:"threadNum"`
	StepTotal      int       `json:"stepTotal" yaml:"stepTotal"`
	OverLong       bool      `json:"overLong" yaml:"overLong"`
	ExceedingCount int       `json:"exceedingCount" yaml:"exceedingCount"`
	BoundaryErrors int       `json:"boundaryErrors" yaml:"boundaryErrors"`
	Degraded       bool      `json:"degraded" yaml:"degraded"`
	DurationMs     int64     `json:"durationMs" yaml:"durationMs"`
}

// RankingRun is one recorded ranking pass.
type RankingRun struct {
	RunID          string    `json:"runId" yaml:"runId"`
	CreatedAt      time.Time `json:"createdAt" yaml:"createdAt"`
	TracePath      string    `json:"tracePath" yaml:"tracePath"`
	Start          []string  `json:"start" yaml:"start"`
	TopCandidate   string    `json:"topCandidate,omitempty" yaml:"topCandidate,omitempty"`
	TopProbability float64   `json:"topProbability" yaml:"topProbability"`
	Candidates     int       `json:"candidates" yaml:"candidates"`
	Visits         int       `json:"visits" yaml:"visits"`
	DurationMs     int64     `json:"durationMs" yaml:"durationMs"`
}

// NewPrecheckRun summarizes a pre-check result for the history.
func NewPrecheckRun(command, outputPath string, res precheck.Result) PrecheckRun {
	return PrecheckRun{
		Command:        command,
		OutputPath:     outputPath,
		ProgramMsg:     res.Info.ProgramMsg(),
		ThreadNum:      res.Info.ThreadNum(),
		StepTotal:      res.Info.StepTotal(),
		OverLong:       res.Info.IsOverLong(),
		ExceedingCount: len(res.Info.ExceedingMethods()),
		BoundaryErrors: res.BoundaryErrors,
		Degraded:       res.Degraded,
		DurationMs:     res.Duration.Milliseconds(),
	}
}

// NewRankingRun summarizes a ranking report for the history.
func NewRankingRun(tracePath string, report *ranking.Report) RankingRun {
	run := RankingRun{
		TracePath:  tracePath,
		Start:      append([]string(nil), report.Start...),
		Candidates: len(report.Candidates),
		Visits:     report.Visits,
		DurationMs: report.ComputationMs,
	}
	if len(report.Candidates) > 0 {
		run.TopCandidate = report.Candidates[0].ID
		run.TopProbability = report.Candidates[0].Probability
	}
	return run
}

// Store records and lists runs.
type Store struct {
	db  *DB
	now func() time.Time
}

// OpenStore opens the history database at path.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) stamp(id *string, at *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if at.IsZero() {
		*at = s.now()
	}
	*at = at.UTC()
}

// RecordPrecheck inserts run, assigning a run ID and timestamp when unset,
// and returns the run ID.
func (s *Store) RecordPrecheck(ctx context.Context, run PrecheckRun) (string, error) {
	s.stamp(&run.RunID, &run.CreatedAt)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO precheck_runs (
				run_id, created_at, command, output_path, program_msg,
				thread_num, step_total, over_long, exceeding_count,
				boundary_errors, degraded, duration_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.RunID,
			run.CreatedAt.Format(timeLayout),
			run.Command,
			run.OutputPath,
			run.ProgramMsg,
			run.ThreadNum,
			run.StepTotal,
			run.OverLong,
			run.ExceedingCount,
			run.BoundaryErrors,
			run.Degraded,
			run.DurationMs,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to record precheck run: %w", err)
	}

	s.db.logger.Debug("Recorded precheck run", "run_id", run.RunID)
	return run.RunID, nil
}

// RecordRanking inserts run and returns its run ID.
func (s *Store) RecordRanking(ctx context.Context, run RankingRun) (string, error) {
	s.stamp(&run.RunID, &run.CreatedAt)

	start, err := json.Marshal(run.Start)
	if err != nil {
		return "", err
	}
	var top sql.NullString
	var topP sql.NullFloat64
	if run.TopCandidate != "" {
		top = sql.NullString{String: run.TopCandidate, Valid: true}
		topP = sql.NullFloat64{Float64: run.TopProbability, Valid: true}
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ranking_runs (
				run_id, created_at, trace_path, start_json,
				top_candidate, top_probability, candidates, visits, duration_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.RunID,
			run.CreatedAt.Format(timeLayout),
			run.TracePath,
			string(start),
			top,
			topP,
			run.Candidates,
			run.Visits,
			run.DurationMs,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to record ranking run: %w", err)
	}

	s.db.logger.Debug("Recorded ranking run", "run_id", run.RunID)
	return run.RunID, nil
}

// sqlLimit maps "no limit" (<= 0) to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// ListPrecheckRuns returns up to limit runs, newest first. A limit of 0
// returns all of them.
func (s *Store) ListPrecheckRuns(ctx context.Context, limit int) ([]PrecheckRun, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT run_id, created_at, command, output_path, program_msg,
		       thread_num, step_total, over_long, exceeding_count,
		       boundary_errors, degraded, duration_ms
		FROM precheck_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list precheck runs: %w", err)
	}
	defer rows.Close()

	var runs []PrecheckRun
	for rows.Next() {
		var run PrecheckRun
		var createdAt string
		if err := rows.Scan(
			&run.RunID,
			&createdAt,
			&run.Command,
			&run.OutputPath,
			&run.ProgramMsg,
			&run.ThreadNum,
			&run.StepTotal,
			&run.OverLong,
			&run.ExceedingCount,
			&run.BoundaryErrors,
			&run.Degraded,
			&run.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan precheck run: %w", err)
		}
		if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListRankings returns up to limit ranking runs, newest first.
func (s *Store) ListRankings(ctx context.Context, limit int) ([]RankingRun, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT run_id, created_at, trace_path, start_json,
		       top_candidate, top_probability, candidates, visits, duration_ms
		FROM ranking_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list ranking runs: %w", err)
	}
	defer rows.Close()

	var runs []RankingRun
	for rows.Next() {
		var run RankingRun
		var createdAt, start string
		var top sql.NullString
		var topP sql.NullFloat64
		if err := rows.Scan(
			&run.RunID,
			&createdAt,
			&run.TracePath,
			&start,
			&top,
			&topP,
			&run.Candidates,
			&run.Visits,
			&run.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ranking run: %w", err)
		}
		if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if err := json.Unmarshal([]byte(start), &run.Start); err != nil {
			return nil, fmt.Errorf("failed to decode start ids: %w", err)
		}
		run.TopCandidate = top.String
		run.TopProbability = topP.Float64
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
