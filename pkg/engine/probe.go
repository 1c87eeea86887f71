package engine

import (
	"github.com/pacrec/pacrec/pkg/runner"
)

// Capabilities is the set of wrapper kinds installed on the target host,
// with their resolved executable paths.
type Capabilities struct {
	wrappers map[WrapperKind]string
}

// Probe determines which wrapper backends the host offers by checking for
// their executables on the search path. It has no side effects and never
// fails: a host with no wrapper at all is a valid, common result and routes
// community packages to the source-build fallback.
func Probe(r runner.Runner) Capabilities {
	caps := Capabilities{wrappers: make(map[WrapperKind]string)}
	for _, kind := range WrapperPriority {
		if path, err := r.LookPath(string(kind)); err == nil {
			caps.wrappers[kind] = path
		}
	}
	return caps
}

// Has reports whether a wrapper kind is installed.
func (c Capabilities) Has(kind WrapperKind) bool {
	_, ok := c.wrappers[kind]
	return ok
}

// Path returns the resolved executable path of an installed wrapper.
func (c Capabilities) Path(kind WrapperKind) string {
	return c.wrappers[kind]
}

// Best returns the highest-priority installed wrapper. The second return is
// false when no wrapper is installed.
func (c Capabilities) Best() (WrapperKind, bool) {
	for _, kind := range WrapperPriority {
		if c.Has(kind) {
			return kind, true
		}
	}
	return "", false
}

// Kinds lists the installed wrappers in priority order.
func (c Capabilities) Kinds() []WrapperKind {
	var kinds []WrapperKind
	for _, kind := range WrapperPriority {
		if c.Has(kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
