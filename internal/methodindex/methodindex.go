// Package methodindex lists the methods declared in Java sources as method
// ids and resolves the short forms users type in inclusion lists.
package methodindex

import (
	stderrors "errors"
	"sort"
	"strings"

	"tracerank/internal/model"
)

// ErrUnavailable is returned when the binary was built without cgo and
// therefore without the tree-sitter parser.
var ErrUnavailable = stderrors.New("method index requires a cgo build")

// ConstructorName is the method name the JVM reports for constructors.
const ConstructorName = "<init>"

// Method is one declared method or constructor.
type Method struct {
	ID model.MethodID `json:"-" yaml:"-"`
	// Key is the string form of ID.
	Key     string `json:"id" yaml:"id"`
	Params  string `json:"params" yaml:"params"`
	Path    string `json:"path" yaml:"path"`
	EndLine int    `json:"endLine" yaml:"endLine"`
}

func newMethod(id model.MethodID, params, path string, endLine int) Method {
	return Method{ID: id, Key: id.String(), Params: params, Path: path, EndLine: endLine}
}

// simpleClass strips the package and any enclosing classes.
func simpleClass(className string) string {
	if i := strings.LastIndexAny(className, ".$"); i >= 0 {
		return className[i+1:]
	}
	return className
}

// Resolution is the outcome of resolving inclusion patterns.
type Resolution struct {
	IDs       []string `json:"ids" yaml:"ids"`
	Unmatched []string `json:"unmatched" yaml:"unmatched"`
}

// Resolve expands patterns against methods. A pattern is a full method id
// ("pkg.A.run.12"), a qualified key ("pkg.A.run") or a simple key
// ("A.run"); keys match every overload. Full ids that are not declared are
// kept as given and also reported as unmatched. IDs are sorted and unique.
func Resolve(methods []Method, patterns []string) Resolution {
	byKey := make(map[string][]string)
	bySimple := make(map[string][]string)
	declared := make(map[string]bool, len(methods))
	for _, m := range methods {
		declared[m.Key] = true
		byKey[m.ID.MethodKey()] = append(byKey[m.ID.MethodKey()], m.Key)
		simple := simpleClass(m.ID.ClassName) + "." + m.ID.MethodName
		bySimple[simple] = append(bySimple[simple], m.Key)
	}

	seen := make(map[string]bool)
	res := Resolution{IDs: []string{}, Unmatched: []string{}}
	add := func(ids ...string) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				res.IDs = append(res.IDs, id)
			}
		}
	}

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := model.ParseMethodID(p); err == nil {
			add(p)
			if !declared[p] {
				res.Unmatched = append(res.Unmatched, p)
			}
			continue
		}
		if ids, ok := byKey[p]; ok {
			add(ids...)
			continue
		}
		if ids, ok := bySimple[p]; ok {
			add(ids...)
			continue
		}
		res.Unmatched = append(res.Unmatched, p)
	}

	sort.Strings(res.IDs)
	return res
}

// SortMethods orders methods by class, then start line, then name.
func SortMethods(methods []Method) {
	sort.Slice(methods, func(i, j int) bool {
		a, b := methods[i].ID, methods[j].ID
		if a.ClassName != b.ClassName {
			return a.ClassName < b.ClassName
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return a.MethodName < b.MethodName
	})
}
