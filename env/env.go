// Package env implements the lexical scope chain of spec §3.2/§4.2.
package env

import (
	"sort"

	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/value"
)

// Environment is a mapping from name to Value reference plus an optional
// parent. It satisfies value.EnvLike so function values can capture it
// without an import cycle back into this package.
type Environment struct {
	names  map[string]value.Value
	parent *Environment

	// Global/Module marks this frame as a GC root (spec §4.8/§9): the
	// global environment and every module's root environment are always
	// scanned; ordinary call frames are not roots, so a value bound only in
	// a call frame is not marked reachable by a collection.
	Root bool
	// Name labels a module environment for diagnostics (empty for frames).
	Name string
}

// New creates a child environment of parent (nil for a fresh root).
func New(parent *Environment) *Environment {
	return &Environment{names: map[string]value.Value{}, parent: parent}
}

// NewRoot creates a root environment (global or per-module), flagged for the
// GC's root set.
func NewRoot(name string) *Environment {
	e := New(nil)
	e.Root = true
	e.Name = name
	return e
}

// Define binds name in the current frame, shadowing any parent binding.
func (e *Environment) Define(name string, v value.Value) {
	e.names[name] = v
}

// Lookup walks the parent chain, failing with UndefinedName if not found.
func (e *Environment) Lookup(name string) (value.Value, error) {
	for frame := e; frame != nil; frame = frame.parent {
		if v, ok := frame.names[name]; ok {
			return v, nil
		}
	}
	return nil, naaberr.Newf(naaberr.UndefinedName, "undefined name %q", name)
}

// Assign mutates the nearest enclosing binding; it never creates a new
// binding and never shadows a parent frame by defining locally.
func (e *Environment) Assign(name string, v value.Value) error {
	for frame := e; frame != nil; frame = frame.parent {
		if _, ok := frame.names[name]; ok {
			frame.names[name] = v
			return nil
		}
	}
	return naaberr.Newf(naaberr.UndefinedName, "assignment to undefined name %q", name)
}

// Has reports whether name resolves anywhere in the chain.
func (e *Environment) Has(name string) bool {
	for frame := e; frame != nil; frame = frame.parent {
		if _, ok := frame.names[name]; ok {
			return true
		}
	}
	return false
}

// AllNames enumerates every name visible from this frame (used for
// diagnostic "did you mean" suggestions), deduplicated and sorted
// alphabetically.
func (e *Environment) AllNames() []string {
	seen := map[string]bool{}
	var out []string
	for frame := e; frame != nil; frame = frame.parent {
		for n := range frame.names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Parent returns the enclosing frame, or nil at the root.
func (e *Environment) Parent() *Environment { return e.parent }

// Traverse visits every Value bound directly in this frame (not ancestors),
// used by the GC mark phase when walking from a root.
func (e *Environment) Traverse(visit func(value.Value)) {
	for _, v := range e.names {
		visit(v)
	}
}

// Export returns the subset of bindings considered a module's public name
// table. NAAb exports everything declared at module top level (spec §4.5);
// since only `use`, `export struct/enum/function/let` and `main` are legal
// at that level, every top-level binding is exported by construction.
func (e *Environment) Export() map[string]value.Value {
	out := make(map[string]value.Value, len(e.names))
	for k, v := range e.names {
		out[k] = v
	}
	return out
}
