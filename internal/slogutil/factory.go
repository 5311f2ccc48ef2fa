package slogutil

import (
	"io"
	"log/slog"

	"tracerank/internal/config"
	"tracerank/internal/paths"
)

// LoggerFactory builds the CLI logger from configuration and flags.
// Precedence for the level is: CLI flags > config > info.
type LoggerFactory struct {
	workDir  string
	config   *config.Config
	cliLevel *slog.Level
	closers  []io.Closer
}

// NewLoggerFactory creates a factory. cliLevel is nil when no verbosity flag
// was given.
func NewLoggerFactory(workDir string, cfg *config.Config, cliLevel *slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{
		workDir:  workDir,
		config:   cfg,
		cliLevel: cliLevel,
	}
}

// Level returns the effective console level.
func (f *LoggerFactory) Level() slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if f.config.Logging.Level != "" {
		return LevelFromString(f.config.Logging.Level)
	}
	return slog.LevelInfo
}

// CLILogger returns a logger writing to console in the configured format
// and, when enabled, to .tracerank/tracerank.log. The file always records
// debug and above. A file that cannot be opened is skipped.
func (f *LoggerFactory) CLILogger(console io.Writer) *slog.Logger {
	consoleHandler := NewHandler(console, f.config.Logging.Format, f.Level())
	if !f.config.Logging.File || f.workDir == "" {
		return slog.New(consoleHandler)
	}

	fileHandler, err := f.fileHandler()
	if err != nil {
		logger := slog.New(consoleHandler)
		logger.Debug("Log file disabled", "error", err.Error())
		return logger
	}
	return slog.New(NewTeeHandler(consoleHandler, fileHandler))
}

func (f *LoggerFactory) fileHandler() (slog.Handler, error) {
	if _, err := paths.EnsureStateDir(f.workDir); err != nil {
		return nil, err
	}
	limit, err := config.ParseByteSize(f.config.Logging.MaxSize)
	if err != nil {
		return nil, err
	}
	lf, err := OpenLogFile(paths.LogPath(f.workDir), limit, f.config.Logging.MaxBackups)
	if err != nil {
		return nil, err
	}
	f.closers = append(f.closers, lf)
	return NewHandler(lf, f.config.Logging.Format, slog.LevelDebug), nil
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
