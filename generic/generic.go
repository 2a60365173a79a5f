// Package generic implements the on-demand specialization engine of spec
// §4.4: type inference from call-site/struct-literal argument values,
// mangled-name caching, and lazy substitution.
package generic

import (
	"strings"
	"sync"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/structs"
	"github.com/naab-lang/naab/value"
	"go.uber.org/zap"
)

// TypeTag is the concrete type name bound to a type parameter. For struct
// instances it is the struct's registered name; otherwise it is the value
// Kind's string form ("int", "string", "list", ...).
func TypeTag(v value.Value) string {
	if s, ok := v.(*value.StructInstance); ok {
		return s.Def.Name
	}
	return v.Kind().String()
}

// InferBindings implements the "first declared parameter slot wins" rule of
// spec §4.4: each type parameter not yet bound is bound to the concrete type
// of the first argument whose declared type names it. A later argument that
// would bind the same parameter to a different concrete type is a
// conflict: spec.md's Open Question leaves this as "warn, first binding
// wins" (see SPEC_FULL.md decision 1), so conflicts are logged, not errors.
func InferBindings(typeParams []string, paramTypes []*ast.TypeNode, args []value.Value, log *zap.Logger) (map[string]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	isParam := map[string]bool{}
	for _, p := range typeParams {
		isParam[p] = true
	}

	bindings := map[string]string{}
	for i, pt := range paramTypes {
		if i >= len(args) || pt == nil || !isParam[pt.Name] {
			continue
		}
		tag := TypeTag(args[i])
		if existing, bound := bindings[pt.Name]; bound {
			if existing != tag {
				log.Warn("conflicting generic type parameter binding; keeping first binding",
					zap.String("param", pt.Name), zap.String("first", existing), zap.String("conflicting", tag))
			}
			continue
		}
		bindings[pt.Name] = tag
	}

	for _, p := range typeParams {
		if _, ok := bindings[p]; !ok {
			return nil, naaberr.Newf(naaberr.TypeInferenceError, "unbound type parameter %q", p)
		}
	}
	return bindings, nil
}

// InferFieldBindings applies the same rule to struct-literal field
// initializers, keyed by field name rather than positional argument.
func InferFieldBindings(typeParams []string, fields []structs.FieldDesc, provided map[string]value.Value, log *zap.Logger) (map[string]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	isParam := map[string]bool{}
	for _, p := range typeParams {
		isParam[p] = true
	}

	bindings := map[string]string{}
	for _, f := range fields {
		if f.Type == nil || !isParam[f.Type.Name] {
			continue
		}
		v, ok := provided[f.Name]
		if !ok {
			continue
		}
		tag := TypeTag(v)
		if existing, bound := bindings[f.Type.Name]; bound {
			if existing != tag {
				log.Warn("conflicting generic type parameter binding in struct literal; keeping first binding",
					zap.String("param", f.Type.Name), zap.String("first", existing), zap.String("conflicting", tag))
			}
			continue
		}
		bindings[f.Type.Name] = tag
	}

	for _, p := range typeParams {
		if _, ok := bindings[p]; !ok {
			return nil, naaberr.Newf(naaberr.TypeInferenceError, "unbound type parameter %q", p)
		}
	}
	return bindings, nil
}

// MangledName computes `<Base>_<TypeArg1>[_<TypeArg2>...]` in type-parameter
// declaration order.
func MangledName(base string, typeParams []string, bindings map[string]string) string {
	var b strings.Builder
	b.WriteString(base)
	for _, p := range typeParams {
		b.WriteByte('_')
		b.WriteString(bindings[p])
	}
	return b.String()
}

// FuncCache is the process-global, call-site-triggered specialization cache
// for generic functions. It survives until interpreter teardown (spec §4.4
// "Scope").
type FuncCache struct {
	mu    sync.Mutex
	funcs map[string]*value.Func
}

func NewFuncCache() *FuncCache {
	return &FuncCache{funcs: map[string]*value.Func{}}
}

// GetOrSpecialize returns a cached specialization for mangledName if one
// exists; otherwise it calls build to substitute the generic body and
// caches the result. Idempotence (testable property 6) falls directly out
// of this cache: two calls with the same mangled name return the identical
// *value.Func.
func (c *FuncCache) GetOrSpecialize(mangledName string, build func() (*value.Func, error)) (*value.Func, error) {
	c.mu.Lock()
	if f, ok := c.funcs[mangledName]; ok {
		c.mu.Unlock()
		return f, nil
	}
	c.mu.Unlock()

	f, err := build()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.funcs[mangledName]; ok {
		return existing, nil
	}
	c.funcs[mangledName] = f
	return f, nil
}

// Len reports the number of cached specializations, for tests asserting
// cache size (spec §8 scenario 2: "exactly two entries").
func (c *FuncCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.funcs)
}

// Names returns the cached mangled names, for diagnostics and tests.
func (c *FuncCache) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.funcs))
	for n := range c.funcs {
		out = append(out, n)
	}
	return out
}

// SubstituteBody rewrites a structural copy of body, replacing every
// type-parameter-shaped TypeRef node with its bound concrete type. The
// evaluator doesn't otherwise need static types at runtime, but struct
// literals and `let` type annotations inside a generic body reference type
// parameters by name and must see the substituted form.
func SubstituteBody(body *ast.Node, bindings map[string]string) *ast.Node {
	if body == nil {
		return nil
	}
	clone := *body
	if body.Type != nil {
		clone.Type = substituteTypeNode(body.Type, bindings)
	}
	if body.Kind == ast.KindTypeRef {
		if bound, ok := bindings[body.Name]; ok {
			clone.Name = bound
		}
	}
	clone.Children = make([]*ast.Node, len(body.Children))
	for i, c := range body.Children {
		clone.Children[i] = SubstituteBody(c, bindings)
	}
	if body.Body != nil {
		clone.Body = SubstituteBody(body.Body, bindings)
	}
	if len(body.Fields) > 0 {
		clone.Fields = make([]ast.FieldInit, len(body.Fields))
		for i, f := range body.Fields {
			clone.Fields[i] = ast.FieldInit{Name: f.Name, Expr: SubstituteBody(f.Expr, bindings)}
		}
	}
	if len(body.Params) > 0 {
		clone.Params = make([]ast.Param, len(body.Params))
		for i, p := range body.Params {
			clone.Params[i] = ast.Param{Name: p.Name, Ref: p.Ref, Type: substituteTypeNode(p.Type, bindings)}
		}
	}
	return &clone
}

func substituteTypeNode(t *ast.TypeNode, bindings map[string]string) *ast.TypeNode {
	if t == nil {
		return nil
	}
	if bound, ok := bindings[t.Name]; ok && t.ModulePath == "" {
		return &ast.TypeNode{Name: bound, Nullable: t.Nullable}
	}
	args := make([]*ast.TypeNode, len(t.TypeArgs))
	for i, a := range t.TypeArgs {
		args[i] = substituteTypeNode(a, bindings)
	}
	return &ast.TypeNode{Name: t.Name, ModulePath: t.ModulePath, Nullable: t.Nullable, TypeArgs: args}
}

// StructCache mirrors FuncCache for generic struct specializations,
// registering each specialization in the struct registry under its mangled
// name the first time it's requested.
type StructCache struct {
	mu       sync.Mutex
	registry *structs.Registry
	seen     map[string]bool
}

func NewStructCache(registry *structs.Registry) *StructCache {
	return &StructCache{registry: registry, seen: map[string]bool{}}
}

// GetOrSpecialize registers (once) the substituted StructDef for def under
// its mangled name and returns it.
func (c *StructCache) GetOrSpecialize(def *structs.StructDef, bindings map[string]string) (*structs.StructDef, error) {
	mangled := structs.MangledName(def.Name, orderedValues(def.TypeParams, bindings))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[mangled] {
		d, _ := c.registry.Get(mangled)
		return d, nil
	}

	specialized := structs.Substitute(def, bindings)
	if _, err := c.registry.Register(specialized); err != nil {
		return nil, err
	}
	c.seen[mangled] = true
	return specialized, nil
}

func orderedValues(params []string, bindings map[string]string) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = bindings[p]
	}
	return out
}
