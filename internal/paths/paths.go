// Package paths describes where tracerank keeps its files inside a working
// directory.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DirName is the per-workspace state directory.
	DirName = ".tracerank"

	// WorkDirEnvVar overrides the working directory used by the CLI.
	WorkDirEnvVar = "TRACERANK_WORKDIR"

	configFile   = "config.json"
	historyFile  = "history.db"
	precheckFile = "precheck.bin"
	traceFile    = "trace.bin"
	logFile      = "tracerank.log"
)

// WorkDir returns the working directory: the explicit argument when set,
// then TRACERANK_WORKDIR, then the process working directory.
func WorkDir(explicit string) (string, error) {
	dir := explicit
	if dir == "" {
		dir = os.Getenv(WorkDirEnvVar)
	}
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}

// StateDir returns <workDir>/.tracerank.
func StateDir(workDir string) string {
	return filepath.Join(workDir, DirName)
}

// EnsureStateDir creates the state directory if needed and returns it.
func EnsureStateDir(workDir string) (string, error) {
	dir := StateDir(workDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// ConfigPath returns the path of the workspace config file.
func ConfigPath(workDir string) string {
	return filepath.Join(StateDir(workDir), configFile)
}

// HistoryPath returns the path of the run history database.
func HistoryPath(workDir string) string {
	return filepath.Join(StateDir(workDir), historyFile)
}

// DefaultPrecheckPath is where pre-check results go when no output path is
// configured.
func DefaultPrecheckPath(workDir string) string {
	return filepath.Join(StateDir(workDir), precheckFile)
}

// DefaultTracePath is where recorded traces go when no output path is given.
func DefaultTracePath(workDir string) string {
	return filepath.Join(StateDir(workDir), traceFile)
}

// LogPath returns the path of the CLI log file.
func LogPath(workDir string) string {
	return filepath.Join(StateDir(workDir), logFile)
}

// Resolve makes p absolute relative to workDir. Absolute paths and the empty
// string are returned unchanged.
func Resolve(workDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workDir, filepath.FromSlash(p))
}

// Relative returns p relative to workDir with forward slashes, or p itself
// when it lies outside workDir.
func Relative(workDir, p string) string {
	rel, err := filepath.Rel(workDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}
