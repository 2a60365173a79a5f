// Package value implements the NAAb value model of spec §3.1/§4.1: a tagged
// sum over primitives, containers, callables, struct instances and polyglot
// block handles, shared by reference, with bounded arithmetic and container
// operations.
package value

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/structs"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindList
	KindDict
	KindFunc
	KindStdlibMarker
	KindStruct
	KindBlockHandle
	KindSensitive
	KindModule
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	case KindFunc:
		return "function"
	case KindStdlibMarker:
		return "stdlib_call"
	case KindStruct:
		return "struct"
	case KindBlockHandle:
		return "block_handle"
	case KindSensitive:
		return "sensitive"
	case KindModule:
		return "module"
	default:
		return "unknown"
	}
}

// Value is the shared-by-reference unit of data the evaluator operates on.
type Value interface {
	Kind() Kind
	Truthy() bool
	Equals(other Value) bool
	// Traverse enumerates child Value references for GC use; a no-op for
	// primitives and callables.
	Traverse(visit func(Value))
	String() string
}

// ---- Primitives -------------------------------------------------------

type Null struct{}

func (Null) Kind() Kind                 { return KindNull }
func (Null) Truthy() bool               { return false }
func (Null) Traverse(func(Value))       {}
func (Null) String() string             { return "null" }
func (Null) Equals(o Value) bool        { _, ok := o.(Null); return ok }

// NullValue is the single shared null instance.
var NullValue Value = Null{}

type Int int64

func (Int) Kind() Kind           { return KindInt }
func (v Int) Truthy() bool       { return v != 0 }
func (Int) Traverse(func(Value)) {}
func (v Int) String() string     { return fmt.Sprintf("%d", int64(v)) }
func (v Int) Equals(o Value) bool {
	other, ok := o.(Int)
	return ok && other == v
}

func MakeInt(i int64) Value { return Int(i) }

type Float float64

func (Float) Kind() Kind           { return KindFloat }
func (v Float) Truthy() bool       { return float64(v) != 0 }
func (Float) Traverse(func(Value)) {}
func (v Float) String() string     { return fmt.Sprintf("%g", float64(v)) }
func (v Float) Equals(o Value) bool {
	other, ok := o.(Float)
	if !ok {
		return false
	}
	// NaN never equal, including to itself, per spec §4.1 comparison rules.
	if math.IsNaN(float64(v)) || math.IsNaN(float64(other)) {
		return false
	}
	return other == v
}

func MakeFloat(f float64) Value { return Float(f) }

type Bool bool

func (Bool) Kind() Kind           { return KindBool }
func (v Bool) Truthy() bool       { return bool(v) }
func (Bool) Traverse(func(Value)) {}
func (v Bool) String() string {
	if v {
		return "true"
	}
	return "false"
}
func (v Bool) Equals(o Value) bool {
	other, ok := o.(Bool)
	return ok && other == v
}

func MakeBool(b bool) Value { return Bool(b) }

type String string

func (String) Kind() Kind           { return KindString }
func (v String) Truthy() bool       { return len(v) > 0 }
func (String) Traverse(func(Value)) {}
func (v String) String() string     { return string(v) }
func (v String) Equals(o Value) bool {
	other, ok := o.(String)
	return ok && other == v
}

func MakeString(s string) Value { return String(s) }

// ---- Block handle -------------------------------------------------------

// BlockHandle is an opaque reference to a polyglot code fragment (spec §3.1).
type BlockHandle struct {
	Lang    string
	BlockID string
}

func (BlockHandle) Kind() Kind           { return KindBlockHandle }
func (BlockHandle) Truthy() bool         { return true }
func (BlockHandle) Traverse(func(Value)) {}
func (b BlockHandle) String() string     { return fmt.Sprintf("<block %s:%s>", b.Lang, b.BlockID) }
func (b BlockHandle) Equals(o Value) bool {
	other, ok := o.(BlockHandle)
	return ok && other == b
}

// ---- Function values -----------------------------------------------------

// EnvLike abstracts env.Environment without an import cycle: the evaluator's
// environment package imports value for bindings, so value cannot import it
// back. The interface carries only Define; the evaluator converts a
// closure's Captured back to *env.Environment for lookups.
type EnvLike interface {
	Define(name string, v Value)
}

// Func is a user-defined function value: parameters, body AST, captured
// environment, optional type parameters, and declaration site.
type Func struct {
	Name       string
	Params     []ast.Param
	TypeParams []string
	Body       *ast.Node
	Captured   EnvLike
	File       string
	Line       int
	// Specializations caches monomorphized bodies keyed by mangled type
	// suffix, populated lazily by the generic engine (spec §4.4).
	Specializations map[string]*Func
}

func (*Func) Kind() Kind           { return KindFunc }
func (*Func) Truthy() bool         { return true }
func (*Func) Traverse(func(Value)) {}
func (f *Func) String() string     { return fmt.Sprintf("<function %s>", f.Name) }
func (f *Func) Equals(o Value) bool {
	other, ok := o.(*Func)
	return ok && other == f
}

// StdlibMarkerPrefix identifies a stdlib-call marker string per spec §3.1:
// `"__stdlib_call__:<module>:<name>"`.
const StdlibMarkerPrefix = "__stdlib_call__:"

// MakeStdlibMarker builds the carrier string value for an unresolved stdlib
// function reference awaiting invocation with arguments.
func MakeStdlibMarker(module, name string) Value {
	return String(fmt.Sprintf("%s%s:%s", StdlibMarkerPrefix, module, name))
}

// ---- Struct instance ------------------------------------------------------

// StructInstance is a reference to a registered StructDef plus a positional
// vector of field values.
type StructInstance struct {
	header
	Def    *structs.StructDef
	Fields []Value
}

func (*StructInstance) Kind() Kind { return KindStruct }
func (*StructInstance) Truthy() bool { return true }

func (s *StructInstance) Traverse(visit func(Value)) {
	for _, f := range s.Fields {
		if f != nil {
			visit(f)
		}
	}
}

func (s *StructInstance) String() string {
	return fmt.Sprintf("%s{...}", s.Def.Name)
}

func (s *StructInstance) Equals(o Value) bool {
	other, ok := o.(*StructInstance)
	if !ok || other.Def != s.Def || len(other.Fields) != len(s.Fields) {
		return false
	}
	for i, f := range s.Fields {
		if !f.Equals(other.Fields[i]) {
			return false
		}
	}
	return true
}

// Clear empties the field vector, dropping internal references so the GC
// can break a reference cycle; visit is called once per former field value.
func (s *StructInstance) Clear(visit func(Value)) {
	for _, f := range s.Fields {
		if f != nil {
			visit(f)
		}
	}
	s.Fields = nil
}

// FieldByName returns the positional index of a field, or -1.
func (s *StructInstance) FieldByName(name string) int {
	for i, fd := range s.Def.Fields {
		if fd.Name == name {
			return i
		}
	}
	return -1
}

// NewStructInstance allocates an instance with fields in declaration order,
// matched from the provided name->value map; missing fields raise TypeError
// per spec §4.6.1 ("rejecting missing fields").
func NewStructInstance(def *structs.StructDef, byName map[string]Value) (*StructInstance, error) {
	fields := make([]Value, len(def.Fields))
	for i, fd := range def.Fields {
		v, ok := byName[fd.Name]
		if !ok {
			return nil, naaberr.Newf(naaberr.TypeError, "missing field %q in struct literal for %s", fd.Name, def.Name)
		}
		fields[i] = v
	}
	return &StructInstance{header: newHeader(), Def: def, Fields: fields}, nil
}

// Heapable is implemented by the container kinds (List, Dict, StructInstance)
// that can participate in reference cycles and therefore need the GC's
// bookkeeping. Primitives, Func and BlockHandle are not Heapable: per spec
// §4.8 "Structural cycles (type-level) are prevented in the struct registry;
// only runtime cycles need collection", and those only arise through
// mutable container/field slots.
type Heapable interface {
	Value
	ID() uint64
	RefCount() int32
	IncRef()
	DecRef() int32
	Clear(visit func(Value))
}

// header gives List/Dict/StructInstance the bookkeeping the GC needs
// (spec §4.8): a stable id and an approximate reference count. Primitives
// and callables don't need one; they are never cyclic.
type header struct {
	id   uint64
	refs int32
}

var nextHeapID uint64

func newHeader() header {
	return header{id: atomic.AddUint64(&nextHeapID, 1)}
}

func (h *header) ID() uint64       { return h.id }
func (h *header) RefCount() int32  { return atomic.LoadInt32(&h.refs) }
func (h *header) IncRef()          { atomic.AddInt32(&h.refs, 1) }
func (h *header) DecRef() int32    { return atomic.AddInt32(&h.refs, -1) }

// ---- Sensitive wrapper ----------------------------------------------------

// Sensitive wraps a value crossing the FFI boundary that was marked secret
// (spec §4.7.6): credentials, tokens, anything a backend must not let a
// polyglot fragment's stdout/stderr or a sanitized error message leak
// verbatim. It prints redacted and is unwrapped only at the point of use by
// the polyglot framework, never by the evaluator's ordinary display path.
type Sensitive struct {
	inner Value
}

// MarkSensitive wraps v, or returns v unchanged if it is already wrapped.
func MarkSensitive(v Value) Value {
	if _, ok := v.(Sensitive); ok {
		return v
	}
	return Sensitive{inner: v}
}

func (Sensitive) Kind() Kind { return KindSensitive }
func (s Sensitive) Truthy() bool { return s.inner.Truthy() }
func (s Sensitive) Traverse(visit func(Value)) { visit(s.inner) }
func (Sensitive) String() string { return "<sensitive>" }
func (s Sensitive) Equals(o Value) bool {
	other, ok := o.(Sensitive)
	return ok && s.inner.Equals(other.inner)
}

// IsSensitive reports whether v is a wrapped secret.
func IsSensitive(v Value) bool {
	_, ok := v.(Sensitive)
	return ok
}

// Unwrap returns the wrapped value, or v unchanged if it isn't Sensitive.
func Unwrap(v Value) Value {
	if s, ok := v.(Sensitive); ok {
		return s.inner
	}
	return v
}

// ---- Module reference ----------------------------------------------------

// Module is the value an import alias binds to (spec §4.5): a snapshot of
// the imported file's exported name table, taken at the moment the `use`
// statement resolved it. Member access (`z.f(x)`) is a lookup into Exports.
type Module struct {
	Path    string
	Exports map[string]Value
}

// NewModule builds a module reference over an already-evaluated export
// table.
func NewModule(path string, exports map[string]Value) *Module {
	return &Module{Path: path, Exports: exports}
}

func (*Module) Kind() Kind     { return KindModule }
func (*Module) Truthy() bool   { return true }
func (m *Module) String() string { return fmt.Sprintf("<module %s>", m.Path) }
func (m *Module) Equals(o Value) bool {
	other, ok := o.(*Module)
	return ok && other == m
}
func (m *Module) Traverse(visit func(Value)) {
	for _, v := range m.Exports {
		visit(v)
	}
}

// Get looks up name in the module's export table, raising UndefinedName if
// absent.
func (m *Module) Get(name string) (Value, error) {
	v, ok := m.Exports[name]
	if !ok {
		return nil, naaberr.Newf(naaberr.UndefinedName, "module %s has no exported name %q", m.Path, name)
	}
	return v, nil
}
