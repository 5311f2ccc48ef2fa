// Package model defines the trace data model: program locations, method
// identifiers, variables and the values they take at each trace step.
package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ClassLocation identifies a program point. It is comparable and used
// directly as a map key.
type ClassLocation struct {
	ClassName       string `json:"className" yaml:"className"`
	MethodSignature string `json:"methodSignature" yaml:"methodSignature"`
	LineNumber      int32  `json:"lineNumber" yaml:"lineNumber"`
}

// NewClassLocation creates a ClassLocation.
func NewClassLocation(className, methodSignature string, line int32) ClassLocation {
	return ClassLocation{ClassName: className, MethodSignature: methodSignature, LineNumber: line}
}

func (l ClassLocation) String() string {
	return fmt.Sprintf("%s#%s:%d", l.ClassName, l.MethodSignature, l.LineNumber)
}

// Less orders locations by class, signature, then line.
func (l ClassLocation) Less(o ClassLocation) bool {
	if l.ClassName != o.ClassName {
		return l.ClassName < o.ClassName
	}
	if l.MethodSignature != o.MethodSignature {
		return l.MethodSignature < o.MethodSignature
	}
	return l.LineNumber < o.LineNumber
}

// SortLocations sorts locations in place and returns them.
func SortLocations(locs []ClassLocation) []ClassLocation {
	sort.Slice(locs, func(i, j int) bool { return locs[i].Less(locs[j]) })
	return locs
}

// MethodID names a method by class, method name and the line it starts on.
// Its string form "<className>.<methodName>.<startLine>" is the key used for
// exceeding-limit reports and inclusion filters.
type MethodID struct {
	ClassName  string
	MethodName string
	StartLine  int
}

func (m MethodID) String() string {
	return m.ClassName + "." + m.MethodName + "." + strconv.Itoa(m.StartLine)
}

// ParseMethodID parses "<className>.<methodName>.<startLine>". The class name
// may itself contain dots; the last two segments are always the method name
// and the start line.
func ParseMethodID(s string) (MethodID, error) {
	lineDot := strings.LastIndexByte(s, '.')
	if lineDot <= 0 {
		return MethodID{}, fmt.Errorf("method id %q: missing start line", s)
	}
	line, err := strconv.Atoi(s[lineDot+1:])
	if err != nil || line < 0 {
		return MethodID{}, fmt.Errorf("method id %q: start line must be a non-negative integer", s)
	}
	rest := s[:lineDot]
	nameDot := strings.LastIndexByte(rest, '.')
	if nameDot <= 0 || nameDot == len(rest)-1 {
		return MethodID{}, fmt.Errorf("method id %q: expected <class>.<method>.<line>", s)
	}
	return MethodID{
		ClassName:  rest[:nameDot],
		MethodName: rest[nameDot+1:],
		StartLine:  line,
	}, nil
}

// MethodKey is the "<className>.<methodName>" prefix of a method id, used to
// match user-supplied filters that omit the start line.
func (m MethodID) MethodKey() string {
	return m.ClassName + "." + m.MethodName
}
