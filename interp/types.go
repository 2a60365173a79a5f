package interp

import (
	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/value"
)

// checkType validates v's runtime kind against a declared type annotation
// (spec §4.6.3), checked at `let`, assignment and struct-literal field
// initialization. Unions match any member; nullable permits null; type
// parameters are expected to already have been substituted to a concrete
// name by the caller (generic bodies run through generic.SubstituteBody
// first).
func (e *Evaluator) checkType(t *ast.TypeNode, v value.Value) error {
	if t == nil {
		return nil
	}
	if _, isNull := v.(value.Null); isNull {
		if t.Nullable {
			return nil
		}
		return naaberr.Newf(naaberr.TypeError, "type %s is not nullable", t.Name)
	}
	if len(t.Union) > 0 {
		for _, member := range t.Union {
			if e.checkType(member, v) == nil {
				return nil
			}
		}
		return naaberr.Newf(naaberr.TypeError, "value does not match any member of union type")
	}
	if e.matchesTypeName(t.Name, v) {
		return nil
	}
	return naaberr.Newf(naaberr.TypeError, "expected type %s, got %s", t.Name, v.Kind())
}

// matchesTypeName reports whether v's runtime kind satisfies the declared
// type name: a primitive kind name, "any" (matches everything), or a
// registered struct name (matched by the instance's own Def.Name, so a
// generic specialization's mangled name must be named exactly).
func (e *Evaluator) matchesTypeName(name string, v value.Value) bool {
	switch name {
	case "any":
		return true
	case "int":
		return v.Kind() == value.KindInt
	case "float":
		return v.Kind() == value.KindFloat
	case "bool":
		return v.Kind() == value.KindBool
	case "string":
		return v.Kind() == value.KindString
	case "list":
		return v.Kind() == value.KindList
	case "dict":
		return v.Kind() == value.KindDict
	case "function":
		return v.Kind() == value.KindFunc
	}
	si, ok := v.(*value.StructInstance)
	if !ok {
		return false
	}
	if si.Def.Name == name {
		return true
	}
	if e.Structs == nil {
		return false
	}
	def, ok := e.Structs.Get(name)
	return ok && def == si.Def
}

