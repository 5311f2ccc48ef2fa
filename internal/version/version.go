// Package version holds the build version of tracerank.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time:
// go build -ldflags "-X tracerank/internal/version.Version=1.0.0 -X tracerank/internal/version.Commit=abc123"
var (
	Version   = "0.4.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// BuildInfo is the version report of the running binary.
type BuildInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
	Go        string `json:"go" yaml:"go"`
}

// Get returns the build info. Values left unset by ldflags are taken from
// the VCS stamp of `go build`, when there is one.
func Get() BuildInfo {
	var settings []debug.BuildSetting
	if bi, ok := debug.ReadBuildInfo(); ok {
		settings = bi.Settings
	}
	return resolve(settings)
}

func resolve(settings []debug.BuildSetting) BuildInfo {
	info := BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate, Go: runtime.Version()}
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// Short is the form shown by `tracerank --version`: the version and a
// seven character commit when known.
func (b BuildInfo) Short() string {
	s := b.Version
	if b.Commit != "unknown" && len(b.Commit) >= 7 {
		s += " (" + b.Commit[:7]
		if b.Modified {
			s += ", dirty"
		}
		s += ")"
	}
	return s
}

// String is the multi-line human report of the version command.
func (b BuildInfo) String() string {
	commit := b.Commit
	if b.Modified {
		commit += " (dirty)"
	}
	return fmt.Sprintf("tracerank version %s\nCommit: %s\nBuilt: %s\nGo: %s", b.Version, commit, b.BuildDate, b.Go)
}
