package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tracerank/internal/paths"
	"tracerank/internal/storage"
)

var (
	historyLimit int
	historyKind  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded pre-check and ranking runs",
	Long: `List the runs recorded in the history database, newest first.

Examples:
  tracerank history
  tracerank history --kind precheck -n 5 --format json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs per kind, 0 for all")
	historyCmd.Flags().StringVar(&historyKind, "kind", "all", "Runs to list: precheck, rank or all")
	rootCmd.AddCommand(historyCmd)
}

// HistoryResponseCLI is the output of the history command. A nil list was
// not requested.
type HistoryResponseCLI struct {
	Precheck []storage.PrecheckRun `json:"precheck,omitempty" yaml:"precheck,omitempty"`
	Rankings []storage.RankingRun  `json:"rankings,omitempty" yaml:"rankings,omitempty"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	a := current
	var wantPrecheck, wantRank bool
	switch historyKind {
	case "all":
		wantPrecheck, wantRank = true, true
	case "precheck":
		wantPrecheck = true
	case "rank":
		wantRank = true
	default:
		return fmt.Errorf("invalid kind %q: must be precheck, rank or all", historyKind)
	}

	store, err := storage.OpenStore(paths.Resolve(a.workDir, a.cfg.Storage.Path), a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	resp := &HistoryResponseCLI{}
	if wantPrecheck {
		runs, err := store.ListPrecheckRuns(ctx, historyLimit)
		if err != nil {
			return err
		}
		resp.Precheck = nonNil(runs)
	}
	if wantRank {
		runs, err := store.ListRankings(ctx, historyLimit)
		if err != nil {
			return err
		}
		resp.Rankings = nonNil(runs)
	}
	return printResponse(cmd.OutOrStdout(), resp)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
