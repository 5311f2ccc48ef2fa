package instrument

import (
	"strings"

	"tracerank/internal/model"
)

// DefaultExcludedClasses are runtime packages that are never counted.
var DefaultExcludedClasses = []string{"java.", "javax.", "sun.", "jdk.", "com.sun."}

// Filter decides which classes and methods take part in a run.
// A nil *Filter admits everything.
type Filter struct {
	methodIDs  map[string]struct{}
	methodKeys map[string]struct{}
	include    []string
	exclude    []string
}

// NewFilter builds a Filter. Entries in methods are either full method ids
// ("pkg.Class.run.12") or ids without the start line ("pkg.Class.run").
// A nil exclude list means DefaultExcludedClasses; an empty non-nil list
// excludes nothing.
func NewFilter(methods, include, exclude []string) *Filter {
	f := &Filter{
		include: include,
		exclude: exclude,
	}
	if exclude == nil {
		f.exclude = DefaultExcludedClasses
	}
	for _, m := range methods {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, err := model.ParseMethodID(m); err == nil {
			if f.methodIDs == nil {
				f.methodIDs = make(map[string]struct{})
			}
			f.methodIDs[m] = struct{}{}
			continue
		}
		if f.methodKeys == nil {
			f.methodKeys = make(map[string]struct{})
		}
		f.methodKeys[m] = struct{}{}
	}
	return f
}

// RestrictsMethods reports whether an inclusion set was configured.
func (f *Filter) RestrictsMethods() bool {
	return f != nil && (len(f.methodIDs) > 0 || len(f.methodKeys) > 0)
}

// AllowClass reports whether steps in className are observed.
func (f *Filter) AllowClass(className string) bool {
	if f == nil {
		return true
	}
	for _, p := range f.exclude {
		if strings.HasPrefix(className, p) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, p := range f.include {
		if strings.HasPrefix(className, p) {
			return true
		}
	}
	return false
}

// AllowMethod reports whether invocations of id are counted.
func (f *Filter) AllowMethod(id model.MethodID) bool {
	if f == nil {
		return true
	}
	if !f.AllowClass(id.ClassName) {
		return false
	}
	if !f.RestrictsMethods() {
		return true
	}
	if _, ok := f.methodIDs[id.String()]; ok {
		return true
	}
	_, ok := f.methodKeys[id.MethodKey()]
	return ok
}
