package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tracerank/internal/config"
	"tracerank/internal/depgraph"
	"tracerank/internal/model"
	"tracerank/internal/paths"
	"tracerank/internal/ranking"
	"tracerank/internal/storage"
	"tracerank/internal/tracestore"
)

var (
	rankFailures  []string
	rankStart     []string
	rankWrong     []string
	rankCorrect   []string
	rankDirection string
	rankTopK      int
	rankMaxVisits int
	rankNoHistory bool
)

var rankCmd = &cobra.Command{
	Use:   "rank [trace]",
	Short: "Rank the values of a recorded trace by root-cause probability",
	Long: `Build the dependency graph of a recorded trace and rank every value that
can reach the failing values. Values judged by hand are passed back with
--wrong and --correct to refine the next ranking.

Examples:
  tracerank rank --failure 'total#42'
  tracerank rank --failure 'total#42' --correct 'price#17' --format json failing.trace`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRank,
}

func init() {
	f := rankCmd.Flags()
	f.StringSliceVar(&rankFailures, "failure", nil, "Value id observed to be wrong at the failure point")
	f.StringSliceVar(&rankStart, "start", nil, "Value id to start relaxation from (default: the failures)")
	f.StringSliceVar(&rankWrong, "wrong", nil, "Value id judged wrong")
	f.StringSliceVar(&rankCorrect, "correct", nil, "Value id judged correct")
	f.StringVar(&rankDirection, "direction", "", "Edges to follow: parents or both (default from config)")
	f.IntVar(&rankTopK, "top-k", 0, "Number of candidates to report, 0 for all (default from config)")
	f.IntVar(&rankMaxVisits, "max-visits", 0, "Fail the pass after visiting this many values, 0 for unlimited")
	f.BoolVar(&rankNoHistory, "no-history", false, "Do not record the ranking in the history database")
	rootCmd.AddCommand(rankCmd)
}

// RankResponseCLI is the output of the rank command.
type RankResponseCLI struct {
	TracePath   string              `json:"tracePath" yaml:"tracePath"`
	ExitMessage string              `json:"exitMessage" yaml:"exitMessage"`
	Graph       depgraph.BuildStats `json:"graph" yaml:"graph"`
	Report      *ranking.Report     `json:"report" yaml:"report"`
	RunID       string              `json:"runId,omitempty" yaml:"runId,omitempty"`
}

// rankingOptions merges the command flags over the configured values.
func rankingOptions(cmd *cobra.Command, cfg config.RankingConfig) (ranking.Options, error) {
	flags := cmd.Flags()
	if flags.Changed("direction") {
		cfg.Direction = rankDirection
	}
	if flags.Changed("top-k") {
		cfg.TopK = rankTopK
	}
	if flags.Changed("max-visits") {
		cfg.MaxVisits = rankMaxVisits
	}
	switch ranking.Direction(cfg.Direction) {
	case "", ranking.Upstream, ranking.Both:
	default:
		return ranking.Options{}, fmt.Errorf("invalid direction %q: must be parents or both", cfg.Direction)
	}
	if cfg.TopK < 0 || cfg.MaxVisits < 0 {
		return ranking.Options{}, fmt.Errorf("--top-k and --max-visits must not be negative")
	}
	return ranking.Options{
		Decay:         cfg.Decay,
		Prior:         cfg.Prior,
		MaxIterations: cfg.MaxIterations,
		Tolerance:     cfg.Tolerance,
		MaxVisits:     cfg.MaxVisits,
		TopK:          cfg.TopK,
		Direction:     ranking.Direction(cfg.Direction),
	}, nil
}

// loadTrace reads the trace named by args, or the default trace file.
func loadTrace(a *app, args []string) (string, *model.Trace, error) {
	path := paths.DefaultTracePath(a.workDir)
	if len(args) == 1 {
		path = paths.Resolve(a.workDir, args[0])
	}
	t, err := tracestore.LoadTrace(path)
	if err != nil {
		return "", nil, cannotRead(err)
	}
	return path, t, nil
}

func runRank(cmd *cobra.Command, args []string) error {
	a := current
	if len(rankFailures) == 0 && len(rankStart) == 0 {
		return fmt.Errorf("at least one --failure or --start value is required")
	}
	opts, err := rankingOptions(cmd, a.cfg.Ranking)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	path, trace, err := loadTrace(a, args)
	if err != nil {
		return err
	}
	g, stats := depgraph.Build(trace)
	a.logger.Debug("Dependency graph built",
		"values", stats.Values,
		"edges", stats.Edges,
		"danglingDeps", stats.DanglingDeps,
	)

	report, err := ranking.NewRanker(g, opts, a.logger).Rank(ctx, ranking.Request{
		Start:    rankStart,
		Failures: rankFailures,
		Wrong:    rankWrong,
		Correct:  rankCorrect,
	})
	if err != nil {
		return err
	}

	resp := &RankResponseCLI{
		TracePath:   paths.Relative(a.workDir, path),
		ExitMessage: trace.ExitMessage,
		Graph:       stats,
		Report:      report,
	}
	if store := openHistory(a, rankNoHistory); store != nil {
		defer func() { _ = store.Close() }()
		id, err := store.RecordRanking(ctx, storage.NewRankingRun(resp.TracePath, report))
		if err != nil {
			a.logger.Warn("Recording ranking run failed", "error", err.Error())
		} else {
			resp.RunID = id
		}
	}
	return printResponse(cmd.OutOrStdout(), resp)
}
