package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"tracerank/internal/config"
	"tracerank/internal/instrument"
	"tracerank/internal/methodindex"
	"tracerank/internal/paths"
	"tracerank/internal/precheck"
	"tracerank/internal/storage"
	"tracerank/internal/tracestore"
)

var (
	precheckOutput        string
	precheckAppend        bool
	precheckMethodCeiling int
	precheckGlobalCeiling int
	precheckMethods       []string
	precheckIncludeClass  []string
	precheckExcludeClass  []string
	precheckEvents        string
	precheckTimeout       int
	precheckNoHistory     bool
	precheckJavaSrc       string
	precheckLocations     bool
)

var precheckCmd = &cobra.Command{
	Use:   "precheck [flags] [-- program [args...]]",
	Short: "Count the steps of an instrumented run against the step ceilings",
	Long: `Run an instrumented program under observation and count its execution
steps. Methods whose single invocation exceeds the per-method ceiling are
reported and the run is marked over-long once the global ceiling is hit.
The result is written to a pre-check file and recorded in the run history.

The program writes one JSON event per line to the descriptor named by
TRACERANK_EVENT_FD. Events can also be replayed from a file with --events.

Examples:
  tracerank precheck -- java -javaagent:agent.jar -jar app.jar
  tracerank precheck --step-ceiling-global 50000 --events run.ndjson
  tracerank precheck --include-method Cart.add --java-src src/main/java -- ./run.sh`,
	RunE: runPrecheck,
}

func init() {
	f := precheckCmd.Flags()
	f.StringVarP(&precheckOutput, "output", "o", "", "Pre-check file (default from config)")
	f.BoolVar(&precheckAppend, "append", false, "Append a record instead of overwriting the file")
	f.IntVar(&precheckMethodCeiling, "step-ceiling-method", 0, "Steps allowed per method invocation, 0 for unlimited")
	f.IntVar(&precheckGlobalCeiling, "step-ceiling-global", 0, "Steps allowed in the whole run, 0 for unlimited")
	f.StringSliceVar(&precheckMethods, "include-method", nil, "Only count these methods (Class.method or Class.method.line)")
	f.StringSliceVar(&precheckIncludeClass, "include-class", nil, "Only observe classes with these prefixes")
	f.StringSliceVar(&precheckExcludeClass, "exclude-class", nil, "Never observe classes with these prefixes")
	f.StringVar(&precheckEvents, "events", "", "Read events from a file, or - for stdin, instead of running a program")
	f.IntVar(&precheckTimeout, "timeout", 0, "Abort the run after this many seconds, 0 for none")
	f.BoolVar(&precheckNoHistory, "no-history", false, "Do not record the run in the history database")
	f.StringVar(&precheckJavaSrc, "java-src", "", "Resolve --include-method patterns against Java sources in this directory")
	f.BoolVar(&precheckLocations, "locations", false, "List every visited location in the output")
	rootCmd.AddCommand(precheckCmd)
}

// PrecheckResponseCLI is the output of the precheck command.
type PrecheckResponseCLI struct {
	OutputPath     string     `json:"outputPath" yaml:"outputPath"`
	Summary        SummaryCLI `json:"summary" yaml:"summary"`
	BoundaryErrors int        `json:"boundaryErrors" yaml:"boundaryErrors"`
	Degraded       bool       `json:"degraded" yaml:"degraded"`
	DurationMs     int64      `json:"durationMs" yaml:"durationMs"`
	RunID          string     `json:"runId,omitempty" yaml:"runId,omitempty"`
}

// precheckSettings merges the command flags over the configured values.
func precheckSettings(cmd *cobra.Command, cfg config.PrecheckConfig) config.PrecheckConfig {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.OutputPath = precheckOutput
	}
	if flags.Changed("append") {
		cfg.Append = precheckAppend
	}
	if flags.Changed("step-ceiling-method") {
		cfg.StepCeilingPerMethod = precheckMethodCeiling
	}
	if flags.Changed("step-ceiling-global") {
		cfg.StepCeilingGlobal = precheckGlobalCeiling
	}
	if flags.Changed("timeout") {
		cfg.TimeoutSeconds = precheckTimeout
	}
	cfg.InclusiveMethodIDs = mergeList(cmd, "include-method", precheckMethods, cfg.InclusiveMethodIDs)
	cfg.IncludeClasses = mergeList(cmd, "include-class", precheckIncludeClass, cfg.IncludeClasses)
	cfg.ExcludeClasses = mergeList(cmd, "exclude-class", precheckExcludeClass, cfg.ExcludeClasses)
	return cfg
}

func runPrecheck(cmd *cobra.Command, args []string) error {
	a := current
	settings := precheckSettings(cmd, a.cfg.Precheck)

	check := *a.cfg
	check.Precheck = settings
	if err := check.Validate(); err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	methods := settings.InclusiveMethodIDs
	if precheckJavaSrc != "" && len(methods) > 0 {
		resolved, err := resolveMethods(ctx, a, paths.Resolve(a.workDir, precheckJavaSrc), methods)
		if err != nil {
			return err
		}
		methods = resolved
	}

	src, closeSrc, err := eventSource(cmd, a, precheckEvents, args)
	if err != nil {
		return err
	}
	defer closeSrc()

	if settings.TimeoutSeconds > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, time.Duration(settings.TimeoutSeconds)*time.Second)
		defer cancelTimeout()
	}

	opts := precheck.Options{
		StepCeilingPerMethod: settings.StepCeilingPerMethod,
		StepCeilingGlobal:    settings.StepCeilingGlobal,
		Filter:               instrument.NewFilter(methods, settings.IncludeClasses, settings.ExcludeClasses),
		MaxBoundaryErrors:    settings.MaxBoundaryErrors,
		Logger:               a.logger,
	}
	a.logger.Info("Starting pre-check",
		"stepCeilingPerMethod", opts.StepCeilingPerMethod,
		"stepCeilingGlobal", opts.StepCeilingGlobal,
		"inclusiveMethods", len(methods),
	)
	res, err := precheck.Run(ctx, opts, src)
	if err != nil {
		return err
	}

	outPath := paths.Resolve(a.workDir, settings.OutputPath)
	if err := tracestore.SavePrecheck(outPath, res.Info, settings.Append); err != nil {
		return err
	}

	resp := &PrecheckResponseCLI{
		OutputPath:     paths.Relative(a.workDir, outPath),
		Summary:        newSummaryCLI(res.Info.Summary(precheckLocations)),
		BoundaryErrors: res.BoundaryErrors,
		Degraded:       res.Degraded,
		DurationMs:     res.Duration.Milliseconds(),
	}

	if store := openHistory(a, precheckNoHistory); store != nil {
		defer func() { _ = store.Close() }()
		run := storage.NewPrecheckRun(commandLine(cmd, args), resp.OutputPath, res)
		id, err := store.RecordPrecheck(ctx, run)
		if err != nil {
			a.logger.Warn("Recording pre-check run failed", "error", err.Error())
		} else {
			resp.RunID = id
		}
	}

	a.logger.Info("Pre-check finished",
		"steps", res.Info.StepTotal(),
		"overLong", res.Info.IsOverLong(),
		"exceedingMethods", len(res.Info.ExceedingMethods()),
	)
	return printResponse(cmd.OutOrStdout(), resp)
}

// resolveMethods expands inclusion patterns to full method ids using the
// declarations found under srcDir. Patterns that match nothing are kept as
// given so they still filter by class and method name.
func resolveMethods(ctx context.Context, a *app, srcDir string, patterns []string) ([]string, error) {
	methods, err := methodindex.NewIndexer().IndexDir(ctx, srcDir)
	if err != nil {
		return nil, err
	}
	res := methodindex.Resolve(methods, patterns)
	out := append([]string(nil), res.IDs...)
	seen := make(map[string]bool, len(out))
	for _, id := range out {
		seen[id] = true
	}
	for _, p := range res.Unmatched {
		a.logger.Warn("Method pattern matched no declaration", "pattern", p)
		if !seen[p] {
			out = append(out, p)
		}
	}
	a.logger.Debug("Resolved inclusive methods", "patterns", len(patterns), "ids", len(res.IDs))
	return out, nil
}
