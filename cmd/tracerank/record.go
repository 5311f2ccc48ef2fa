package main

import (
	"github.com/spf13/cobra"

	"tracerank/internal/instrument"
	"tracerank/internal/paths"
	"tracerank/internal/tracestore"
)

var (
	recordOutput       string
	recordCompress     bool
	recordMaxSteps     int
	recordIncludeClass []string
	recordExcludeClass []string
	recordEvents       string
)

var recordCmd = &cobra.Command{
	Use:   "record [flags] [-- program [args...]]",
	Short: "Record the full trace of an instrumented run",
	Long: `Run an instrumented program and keep every step with the values it read
and wrote. The trace file is the input of rank and path.

Examples:
  tracerank record -o failing.trace -- java -javaagent:agent.jar -jar app.jar
  tracerank record --compress --events run.ndjson`,
	RunE: runRecord,
}

func init() {
	f := recordCmd.Flags()
	f.StringVarP(&recordOutput, "output", "o", "", "Trace file (default .tracerank/trace.bin)")
	f.BoolVar(&recordCompress, "compress", false, "Compress the trace with zstd")
	f.IntVar(&recordMaxSteps, "max-steps", 0, "Stop recording after this many steps, 0 for unlimited")
	f.StringSliceVar(&recordIncludeClass, "include-class", nil, "Only record classes with these prefixes")
	f.StringSliceVar(&recordExcludeClass, "exclude-class", nil, "Never record classes with these prefixes")
	f.StringVar(&recordEvents, "events", "", "Read events from a file, or - for stdin, instead of running a program")
	rootCmd.AddCommand(recordCmd)
}

// RecordResponseCLI is the output of the record command.
type RecordResponseCLI struct {
	OutputPath     string `json:"outputPath" yaml:"outputPath"`
	ExitMessage    string `json:"exitMessage" yaml:"exitMessage"`
	Steps          int    `json:"steps" yaml:"steps"`
	Truncated      bool   `json:"truncated" yaml:"truncated"`
	BoundaryErrors int    `json:"boundaryErrors" yaml:"boundaryErrors"`
	Degraded       bool   `json:"degraded" yaml:"degraded"`
	Compressed     bool   `json:"compressed" yaml:"compressed"`
}

func runRecord(cmd *cobra.Command, args []string) error {
	a := current
	ctx, cancel := commandContext(cmd)
	defer cancel()

	src, closeSrc, err := eventSource(cmd, a, recordEvents, args)
	if err != nil {
		return err
	}
	defer closeSrc()

	pc := a.cfg.Precheck
	filter := instrument.NewFilter(nil,
		mergeList(cmd, "include-class", recordIncludeClass, pc.IncludeClasses),
		mergeList(cmd, "exclude-class", recordExcludeClass, pc.ExcludeClasses))

	rec, err := instrument.Record(ctx, src, instrument.RecordOptions{
		Filter:            filter,
		MaxSteps:          recordMaxSteps,
		MaxBoundaryErrors: pc.MaxBoundaryErrors,
		Logger:            a.logger,
	})
	if err != nil {
		return err
	}

	out := recordOutput
	if out == "" {
		out = paths.DefaultTracePath(a.workDir)
	}
	out = paths.Resolve(a.workDir, out)
	if err := tracestore.SaveTrace(out, rec.Trace, recordCompress); err != nil {
		return err
	}
	a.logger.Info("Trace recorded", "path", out, "steps", len(rec.Trace.Steps))

	return printResponse(cmd.OutOrStdout(), &RecordResponseCLI{
		OutputPath:     paths.Relative(a.workDir, out),
		ExitMessage:    rec.Trace.ExitMessage,
		Steps:          len(rec.Trace.Steps),
		Truncated:      rec.Truncated,
		BoundaryErrors: rec.BoundaryErrors,
		Degraded:       rec.Degraded,
		Compressed:     recordCompress,
	})
}
