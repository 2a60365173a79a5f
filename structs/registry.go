// Package structs implements the process-wide, idempotent registry of
// nominal record types described in spec §3.3/§4.3.
package structs

import (
	"sync"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/naaberr"
	"go.uber.org/zap"
)

// FieldDesc is one field descriptor of a struct definition.
type FieldDesc struct {
	Name string
	Type *ast.TypeNode
}

// StructDef records a registered nominal record type.
type StructDef struct {
	Name       string
	Fields     []FieldDesc
	TypeParams []string
	Pos        ast.Position
}

// sameShape reports whether two definitions declare identical fields, used
// for idempotent re-registration (spec §3.3).
func sameShape(a, b *StructDef) bool {
	if len(a.Fields) != len(b.Fields) || len(a.TypeParams) != len(b.TypeParams) {
		return false
	}
	for i, f := range a.Fields {
		if f.Name != b.Fields[i].Name || typeString(f.Type) != typeString(b.Fields[i].Type) {
			return false
		}
	}
	return true
}

func typeString(t *ast.TypeNode) string {
	if t == nil {
		return ""
	}
	s := t.ModulePath
	if s != "" {
		s += "."
	}
	s += t.Name
	if t.Nullable {
		s += "?"
	}
	for _, u := range t.Union {
		s += "|" + typeString(u)
	}
	for _, a := range t.TypeArgs {
		s += "<" + typeString(a) + ">"
	}
	return s
}

// RegisterResult reports the outcome of Register.
type RegisterResult int

const (
	New RegisterResult = iota
	Duplicate
	Conflict
)

// Registry is the process-wide registry of struct definitions. Monomorphized
// specializations are also stored here under mangled names (spec §4.3/§4.4).
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*StructDef
	log  *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{defs: map[string]*StructDef{}, log: log}
}

// Register adds def if its name is unused. Re-registering an identical
// shape is a no-op (New->Duplicate); re-registering a different shape logs
// a warning and keeps the first registration (spec §3.3: "first registration
// wins"). The field-type graph is checked for value-owned cycles first.
func (r *Registry) Register(def *StructDef) (RegisterResult, error) {
	if err := r.validateNoCycle(def); err != nil {
		return Conflict, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.defs[def.Name]
	if !ok {
		r.defs[def.Name] = def
		return New, nil
	}
	if sameShape(existing, def) {
		return Duplicate, nil
	}
	r.log.Warn("struct re-registered with different field shape; keeping first registration",
		zap.String("name", def.Name))
	return Conflict, nil
}

// Get looks up a registered definition by name.
func (r *Registry) Get(name string) (*StructDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// validateNoCycle rejects field-type graphs that are transitively cyclic by
// value: `struct A{b:B}; struct B{a:A}` where B/A are embedded by value, not
// through a nullable/pointer-like indirection. Since NAAb has no pointer
// types, any reference to another struct name is a value-owned edge; a
// nullable field (`T?`) is the only way to break recursion (it can hold
// null), so cycles through a nullable member are permitted.
func (r *Registry) validateNoCycle(def *StructDef) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visited := map[string]bool{}
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		for _, p := range path {
			if p == name {
				return naaberr.Newf(naaberr.TypeCycleError, "cyclic struct definition: %v -> %s", path, name)
			}
		}
		d := def
		if name != def.Name {
			var ok bool
			d, ok = r.defs[name]
			if !ok {
				return nil // forward/unresolved reference; checked again on its own registration
			}
		}
		if visited[name] {
			return nil
		}
		visited[name] = true
		for _, f := range d.Fields {
			if f.Type == nil || f.Type.Nullable || f.Type.ModulePath != "" {
				continue
			}
			if isPrimitiveType(f.Type.Name) {
				continue
			}
			if err := visit(f.Type.Name, append(path, name)); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(def.Name, nil)
}

func isPrimitiveType(name string) bool {
	switch name {
	case "int", "float", "bool", "string", "null", "any":
		return true
	default:
		return false
	}
}

// MangledName computes the specialization name `<Base>_<TypeArg1>[_<TypeArg2>...]`
// used by the generic monomorphizer (spec §4.3).
func MangledName(base string, typeArgs []string) string {
	name := base
	for _, t := range typeArgs {
		name += "_" + t
	}
	return name
}

// Substitute produces a fresh StructDef with each type parameter in params
// replaced by its bound concrete type, used when registering a struct
// specialization.
func Substitute(def *StructDef, bindings map[string]string) *StructDef {
	fields := make([]FieldDesc, len(def.Fields))
	for i, f := range def.Fields {
		fields[i] = FieldDesc{Name: f.Name, Type: substituteType(f.Type, bindings)}
	}
	return &StructDef{
		Name:   MangledName(def.Name, orderedValues(def.TypeParams, bindings)),
		Fields: fields,
		Pos:    def.Pos,
	}
}

func orderedValues(params []string, bindings map[string]string) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = bindings[p]
	}
	return out
}

func substituteType(t *ast.TypeNode, bindings map[string]string) *ast.TypeNode {
	if t == nil {
		return nil
	}
	if bound, ok := bindings[t.Name]; ok && t.ModulePath == "" && len(t.TypeArgs) == 0 {
		return &ast.TypeNode{Name: bound, Nullable: t.Nullable}
	}
	args := make([]*ast.TypeNode, len(t.TypeArgs))
	for i, a := range t.TypeArgs {
		args[i] = substituteType(a, bindings)
	}
	return &ast.TypeNode{Name: t.Name, ModulePath: t.ModulePath, Nullable: t.Nullable, TypeArgs: args}
}
