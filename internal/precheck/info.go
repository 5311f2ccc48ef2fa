// Package precheck runs a traced program once with cheap counting to decide
// whether a full trace is feasible before paying for one.
package precheck

import (
	"tracerank/internal/model"
)

// Info is the summary of one pre-check run. It is immutable; accessors
// return copies.
type Info struct {
	programMsg       string
	threadNum        int
	overLong         bool
	stepTotal        int
	exceedingMethods []string
	visited          []model.ClassLocation
}

// NewInfo assembles an Info. Visited locations are de-duplicated and sorted.
func NewInfo(programMsg string, threadNum int, overLong bool, stepTotal int, exceeding []string, visited []model.ClassLocation) Info {
	seen := make(map[model.ClassLocation]struct{}, len(visited))
	locs := make([]model.ClassLocation, 0, len(visited))
	for _, l := range visited {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		locs = append(locs, l)
	}
	model.SortLocations(locs)

	return Info{
		programMsg:       programMsg,
		threadNum:        threadNum,
		overLong:         overLong,
		stepTotal:        stepTotal,
		exceedingMethods: append([]string(nil), exceeding...),
		visited:          locs,
	}
}

// ProgramMsg is the message the program reported on exit.
func (i Info) ProgramMsg() string { return i.programMsg }

// ThreadNum is the number of threads that executed at least one counted step.
func (i Info) ThreadNum() int { return i.threadNum }

// IsOverLong reports whether the global step ceiling was hit.
func (i Info) IsOverLong() bool { return i.overLong }

// StepTotal is the number of counted steps. It never exceeds the global
// ceiling.
func (i Info) StepTotal() int { return i.stepTotal }

// ExceedingMethods returns method ids whose single invocation passed the
// per-method ceiling, in first-seen order.
func (i Info) ExceedingMethods() []string {
	return append([]string(nil), i.exceedingMethods...)
}

// VisitedLocations returns every location executed before any cutoff,
// sorted.
func (i Info) VisitedLocations() []model.ClassLocation {
	return append([]model.ClassLocation(nil), i.visited...)
}

// ExceededLimits reports whether a full trace would be truncated.
func (i Info) ExceededLimits() bool {
	return i.overLong || len(i.exceedingMethods) > 0
}

// Equal compares two infos field by field.
func (i Info) Equal(o Info) bool {
	if i.programMsg != o.programMsg || i.threadNum != o.threadNum ||
		i.overLong != o.overLong || i.stepTotal != o.stepTotal ||
		len(i.exceedingMethods) != len(o.exceedingMethods) || len(i.visited) != len(o.visited) {
		return false
	}
	for k := range i.exceedingMethods {
		if i.exceedingMethods[k] != o.exceedingMethods[k] {
			return false
		}
	}
	for k := range i.visited {
		if i.visited[k] != o.visited[k] {
			return false
		}
	}
	return true
}

// Summary is a serializable view of Info for reports.
type Summary struct {
	ProgramMsg       string                `json:"programMsg" yaml:"programMsg"`
	ThreadNum        int                   `json:"threadNum" yaml:"threadNum"`
	IsOverLong       bool                  `json:"isOverLong" yaml:"isOverLong"`
	StepTotal        int                   `json:"stepTotal" yaml:"stepTotal"`
	ExceedingMethods []string              `json:"exceedingMethods" yaml:"exceedingMethods"`
	VisitedCount     int                   `json:"visitedCount" yaml:"visitedCount"`
	Visited          []model.ClassLocation `json:"visitedLocations,omitempty" yaml:"visitedLocations,omitempty"`
}

// Summary returns the report view; withLocations includes every visited
// location.
func (i Info) Summary(withLocations bool) Summary {
	s := Summary{
		ProgramMsg:       i.programMsg,
		ThreadNum:        i.threadNum,
		IsOverLong:       i.overLong,
		StepTotal:        i.stepTotal,
		ExceedingMethods: i.ExceedingMethods(),
		VisitedCount:     len(i.visited),
	}
	if s.ExceedingMethods == nil {
		s.ExceedingMethods = []string{}
	}
	if withLocations {
		s.Visited = i.VisitedLocations()
	}
	return s
}
