package slogutil

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tracerank/internal/config"
	"tracerank/internal/paths"
)

func TestLogFile_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tracerank.log")

	rf, err := OpenLogFile(path, 50, 2)
	if err != nil {
		t.Fatalf("OpenLogFile failed: %v", err)
	}

	line := []byte(strings.Repeat("a", 29) + "\n")
	for i := 0; i < 5; i++ {
		if _, err := rf.Write(line); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}
	if err := rf.Close(); err != nil {
		t.Fatal(err)
	}

	// Every write after the first overflows, so each file holds one line and
	// only two backups survive.
	for _, p := range []string{path, path + ".1", path + ".2"} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		if len(data) != len(line) {
			t.Errorf("%s holds %d bytes, want %d", p, len(data), len(line))
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("backup .3 should not exist")
	}
}

func TestLogFile_NoBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	rf, err := OpenLogFile(path, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()

	for i := 0; i < 3; i++ {
		if _, err := rf.Write([]byte("12345678\n")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("no backup expected")
	}
}

func TestLogFile_WriteAfterClose(t *testing.T) {
	rf, err := OpenLogFile(filepath.Join(t.TempDir(), "x.log"), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := rf.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := rf.Write([]byte("late\n")); err == nil {
		t.Error("write after close should fail")
	}
	if err := rf.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestLogFile_OversizedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracerank.log")
	lf, err := OpenLogFile(path, 8, 1)
	if err != nil {
		t.Fatal(err)
	}
	big := []byte(strings.Repeat("z", 20) + "\n")
	for _, p := range [][]byte{big, big} {
		if _, err := lf.Write(p); err != nil {
			t.Fatal(err)
		}
	}
	if err := lf.Close(); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{path, path + ".1"} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != string(big) {
			t.Errorf("%s = %q, want one whole record", p, data)
		}
	}
}

func TestLoggerFactory_BadMaxSize(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Logging.MaxSize = "lots"

	f := NewLoggerFactory(dir, cfg, nil)
	var console bytes.Buffer
	f.CLILogger(&console).Info("console only")
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(paths.LogPath(dir)); !os.IsNotExist(err) {
		t.Errorf("log file should not be opened, stat = %v", err)
	}
	if !strings.Contains(console.String(), "console only") {
		t.Errorf("console = %q", console.String())
	}
}

func TestLoggerFactory_CLILogger(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "warn"

	f := NewLoggerFactory(dir, cfg, nil)
	var console bytes.Buffer
	logger := f.CLILogger(&console)

	logger.Debug("file only")
	logger.Warn("everywhere")
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	if strings.Contains(console.String(), "file only") || !strings.Contains(console.String(), "everywhere") {
		t.Errorf("console = %q", console.String())
	}
	data, err := os.ReadFile(paths.LogPath(dir))
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.Contains(string(data), "file only") || !strings.Contains(string(data), "everywhere") {
		t.Errorf("log file = %q", data)
	}
}

func TestLoggerFactory_Level(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "error"

	if got := NewLoggerFactory("", cfg, nil).Level(); got != slog.LevelError {
		t.Errorf("config level = %v, want error", got)
	}
	debug := slog.LevelDebug
	if got := NewLoggerFactory("", cfg, &debug).Level(); got != slog.LevelDebug {
		t.Errorf("flag level = %v, want debug", got)
	}

	cfg.Logging.File = false
	var console bytes.Buffer
	f := NewLoggerFactory(t.TempDir(), cfg, &debug)
	f.CLILogger(&console).Debug("x")
	if len(f.closers) != 0 {
		t.Error("file disabled but a file was opened")
	}
}
