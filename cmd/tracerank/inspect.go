package main

import (
	"github.com/spf13/cobra"

	"tracerank/internal/errors"
	"tracerank/internal/paths"
	"tracerank/internal/precheck"
	"tracerank/internal/tracestore"
)

var (
	inspectHistory   bool
	inspectLocations bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Show the contents of a pre-check file",
	Long: `Read a pre-check file and print its summary.

The exit status tells a script what it found:
  0  the trace stayed within its limits
  2  the file cannot be read (missing, corrupt or of another format)
  3  the trace exceeded its limits

Examples:
  tracerank inspect
  tracerank inspect --history --format json .tracerank/precheck.bin`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectHistory, "history", false, "Show every appended record, oldest first")
	inspectCmd.Flags().BoolVar(&inspectLocations, "locations", false, "List every visited location")
	rootCmd.AddCommand(inspectCmd)
}

// SummaryCLI is the printable form of one pre-check record.
type SummaryCLI struct {
	ProgramMsg       string   `json:"programMsg" yaml:"programMsg"`
	ThreadNum        int      `json:"threadNum" yaml:"threadNum"`
	IsOverLong       bool     `json:"isOverLong" yaml:"isOverLong"`
	StepTotal        int      `json:"stepTotal" yaml:"stepTotal"`
	ExceedingMethods []string `json:"exceedingMethods" yaml:"exceedingMethods"`
	VisitedCount     int      `json:"visitedCount" yaml:"visitedCount"`
	Visited          []string `json:"visitedLocations,omitempty" yaml:"visitedLocations,omitempty"`
}

func newSummaryCLI(s precheck.Summary) SummaryCLI {
	out := SummaryCLI{
		ProgramMsg:       s.ProgramMsg,
		ThreadNum:        s.ThreadNum,
		IsOverLong:       s.IsOverLong,
		StepTotal:        s.StepTotal,
		ExceedingMethods: s.ExceedingMethods,
		VisitedCount:     s.VisitedCount,
	}
	for _, loc := range s.Visited {
		out.Visited = append(out.Visited, loc.String())
	}
	return out
}

// InspectResponseCLI is the output of the inspect command.
type InspectResponseCLI struct {
	Path           string       `json:"path" yaml:"path"`
	Records        []SummaryCLI `json:"records" yaml:"records"`
	ExceededLimits bool         `json:"exceededLimits" yaml:"exceededLimits"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	a := current
	path := a.cfg.Precheck.OutputPath
	if len(args) == 1 {
		path = args[0]
	}
	abs := paths.Resolve(a.workDir, path)

	var infos []precheck.Info
	if inspectHistory {
		history, err := tracestore.LoadPrecheckHistory(abs)
		if err != nil {
			return cannotRead(err)
		}
		infos = history
	} else {
		info, err := tracestore.LoadPrecheck(abs)
		if err != nil {
			return cannotRead(err)
		}
		infos = []precheck.Info{info}
	}

	resp := &InspectResponseCLI{Path: paths.Relative(a.workDir, abs)}
	for _, info := range infos {
		resp.Records = append(resp.Records, newSummaryCLI(info.Summary(inspectLocations)))
	}
	// The latest record decides the status.
	resp.ExceededLimits = infos[len(infos)-1].ExceededLimits()

	if err := printResponse(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	if resp.ExceededLimits {
		return &exitError{code: exitLimitReached}
	}
	return nil
}

// cannotRead maps any load failure, including a missing file, to the
// "cannot read trace" status.
func cannotRead(err error) error {
	if tracestore.IsNotExist(err) || errors.IsCannotRead(err) || errors.CodeOf(err) == errors.IOFailure {
		return &exitError{code: exitCannotRead, err: err}
	}
	return err
}
