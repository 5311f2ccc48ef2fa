package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tracerank/internal/errors"
	"tracerank/internal/instrument"
	"tracerank/internal/paths"
	"tracerank/internal/storage"
)

// eventSource picks where events come from: a file or stdin named by
// eventsPath, or else the program in args run under observation. The
// returned closer releases an opened file.
func eventSource(cmd *cobra.Command, a *app, eventsPath string, args []string) (instrument.Source, func(), error) {
	noop := func() {}
	switch {
	case eventsPath == "-":
		if len(args) > 0 {
			return nil, noop, fmt.Errorf("--events and a program are mutually exclusive")
		}
		return instrument.NewStreamSource(cmd.InOrStdin()), noop, nil
	case eventsPath != "":
		if len(args) > 0 {
			return nil, noop, fmt.Errorf("--events and a program are mutually exclusive")
		}
		f, err := os.Open(paths.Resolve(a.workDir, eventsPath))
		if err != nil {
			return nil, noop, errors.New(errors.IOFailure, "opening event file failed", err)
		}
		return instrument.NewStreamSource(f), func() { _ = f.Close() }, nil
	case len(args) == 0:
		return nil, noop, fmt.Errorf("no program given; pass one after -- or use --events")
	}

	// The program's own output goes to stderr so stdout stays the report.
	var out io.Writer = cmd.ErrOrStderr()
	return &instrument.ProcessSource{
		Path:   args[0],
		Args:   args[1:],
		Dir:    a.workDir,
		Stdout: out,
		Stderr: out,
		Logger: a.logger,
	}, noop, nil
}

// openHistory opens the run history, or returns nil when it is disabled.
// History is best effort: a failure is logged and the run goes on.
func openHistory(a *app, disabled bool) *storage.Store {
	if disabled || !a.cfg.Storage.Enabled {
		return nil
	}
	store, err := storage.OpenStore(paths.Resolve(a.workDir, a.cfg.Storage.Path), a.logger)
	if err != nil {
		a.logger.Warn("Run history unavailable", "error", err.Error())
		return nil
	}
	return store
}

// mergeList returns override when the flag was given, else base.
func mergeList(cmd *cobra.Command, flag string, override, base []string) []string {
	if cmd.Flags().Changed(flag) {
		return override
	}
	return base
}

// commandLine renders the invocation stored in the run history.
func commandLine(cmd *cobra.Command, args []string) string {
	return strings.TrimSpace(cmd.CommandPath() + " " + strings.Join(args, " "))
}
