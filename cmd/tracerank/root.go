package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tracerank/internal/config"
	"tracerank/internal/errors"
	"tracerank/internal/paths"
	"tracerank/internal/slogutil"
	"tracerank/internal/version"
)

// Exit codes. "Cannot read trace" and "trace exceeded limits" are kept
// apart so scripts can tell data loss from expected truncation.
const (
	exitOK           = 0
	exitFailure      = 1
	exitCannotRead   = 2
	exitLimitReached = 3
)

var (
	workDirFlag string
	formatFlag  string
	verbosity   int
	quietFlag   bool
)

// app is the state shared by every command of one invocation.
type app struct {
	workDir string
	cfg     *config.Config
	logger  *slog.Logger
	factory *slogutil.LoggerFactory
}

var current *app

var rootCmd = &cobra.Command{
	Use:   "tracerank",
	Short: "tracerank - trace pre-check and root-cause ranking",
	Long: `tracerank observes an instrumented program run, checks the size of its
execution trace against configured step ceilings, stores traces in a compact
binary format and ranks the values of a recorded trace by how likely they
are to be the root cause of a failure.`,
	Version:           version.Get().Short(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupApp,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if current != nil && current.factory != nil {
			return current.factory.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate("tracerank version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&workDirFlag, "workdir", "",
		"Working directory holding .tracerank (default: $TRACERANK_WORKDIR or the current directory)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "human", "Output format (human, json, yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all logs")
}

func setupApp(cmd *cobra.Command, args []string) error {
	if _, err := parseFormat(formatFlag); err != nil {
		return err
	}
	workDir, err := paths.WorkDir(workDirFlag)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(workDir)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var cliLevel *slog.Level
	if quietFlag || cmd.Flags().Changed("verbose") {
		lv := slogutil.LevelFromVerbosity(verbosity, quietFlag)
		cliLevel = &lv
	}
	factory := slogutil.NewLoggerFactory(workDir, cfg, cliLevel)
	logger := factory.CLILogger(cmd.ErrOrStderr()).With("command", cmd.Name())

	current = &app{workDir: workDir, cfg: cfg, logger: logger, factory: factory}
	return nil
}

// commandContext is canceled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// exitError carries an exit code; a nil err exits silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if stderrors.As(err, &ee) {
		return ee.code
	}
	if errors.IsCannotRead(err) {
		return exitCannotRead
	}
	return exitFailure
}

func errorMessage(err error) string {
	var ee *exitError
	if stderrors.As(err, &ee) && ee.err == nil {
		return ""
	}
	return err.Error()
}
