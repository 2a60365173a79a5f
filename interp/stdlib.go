package interp

import (
	"strings"
	"sync"

	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/value"
)

// StdlibFunc is a native Go implementation of a standard-library function,
// invoked with already-evaluated arguments once its call marker is applied
// (spec §6.3: "function returns a call marker awaiting invocation").
type StdlibFunc func(args []value.Value) (value.Value, error)

// StdlibRegistry is the process-wide `(name, function|constant)` table of
// spec §6.3. Constants are bound directly wherever they're looked up;
// functions are represented as a marker string until called with arguments.
type StdlibRegistry struct {
	mu        sync.RWMutex
	constants map[string]map[string]value.Value
	funcs     map[string]map[string]StdlibFunc
}

func NewStdlibRegistry() *StdlibRegistry {
	return &StdlibRegistry{
		constants: map[string]map[string]value.Value{},
		funcs:     map[string]map[string]StdlibFunc{},
	}
}

// RegisterConstant binds a module-scoped constant, materialized eagerly on
// every lookup (no invocation needed).
func (r *StdlibRegistry) RegisterConstant(module, name string, v value.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.constants[module] == nil {
		r.constants[module] = map[string]value.Value{}
	}
	r.constants[module][name] = v
}

// RegisterFunc binds a module-scoped function implementation.
func (r *StdlibRegistry) RegisterFunc(module, name string, fn StdlibFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs[module] == nil {
		r.funcs[module] = map[string]StdlibFunc{}
	}
	r.funcs[module][name] = fn
}

// Lookup resolves a `module.name` stdlib reference: a constant's value
// directly, or a call-marker string for a function awaiting arguments.
func (r *StdlibRegistry) Lookup(module, name string) (value.Value, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if mod, ok := r.constants[module]; ok {
		if v, ok := mod[name]; ok {
			return v, nil
		}
	}
	if mod, ok := r.funcs[module]; ok {
		if _, ok := mod[name]; ok {
			return value.MakeStdlibMarker(module, name), nil
		}
	}
	return nil, naaberr.Newf(naaberr.UndefinedName, "undefined stdlib name %s.%s", module, name)
}

// Call invokes a registered stdlib function by module and name.
func (r *StdlibRegistry) Call(module, name string, args []value.Value) (value.Value, error) {
	r.mu.RLock()
	mod, ok := r.funcs[module]
	var fn StdlibFunc
	if ok {
		fn, ok = mod[name]
	}
	r.mu.RUnlock()
	if !ok {
		return nil, naaberr.Newf(naaberr.UndefinedName, "undefined stdlib function %s.%s", module, name)
	}
	return fn(args)
}

func isStdlibMarker(s string) bool {
	return strings.HasPrefix(s, value.StdlibMarkerPrefix)
}

// callStdlib parses a `"__stdlib_call__:<module>:<name>"` marker and
// dispatches to the registered implementation.
func (e *Evaluator) callStdlib(marker string, args []value.Value) (value.Value, error) {
	if e.Stdlib == nil {
		return nil, naaberr.New(naaberr.UndefinedName, "no stdlib registry configured", nil)
	}
	rest := strings.TrimPrefix(marker, value.StdlibMarkerPrefix)
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return nil, naaberr.Newf(naaberr.UndefinedName, "malformed stdlib marker %q", marker)
	}
	return e.Stdlib.Call(parts[0], parts[1], args)
}
