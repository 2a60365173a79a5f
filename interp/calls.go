package interp

import (
	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/generic"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/structs"
	"github.com/naab-lang/naab/value"
)

// registerStructDecl registers a struct or enum declaration in e.Structs.
// Struct/enum field lists are carried in the node's Params, reusing the
// (name, type) shape a function parameter already has rather than adding a
// parallel field-list node type.
//
// Enum variants are treated as simple tagged singletons (spec.md's
// distillation doesn't specify payload-carrying variants or pattern
// matching, so this resolves that silence the same way a C-like enum
// would: each variant name is bound to its own zero-field struct instance,
// see DESIGN.md decision 5).
func (e *Evaluator) registerStructDecl(item *ast.Node) error {
	if e.Structs == nil {
		return naaberr.New(naaberr.TypeError, "struct registry not configured", nil)
	}
	fields := make([]structs.FieldDesc, len(item.Params))
	for i, p := range item.Params {
		fields[i] = structs.FieldDesc{Name: p.Name, Type: p.Type}
	}
	def := &structs.StructDef{Name: item.Name, Fields: fields, TypeParams: item.TypeParams, Pos: item.Pos}
	if _, err := e.Structs.Register(def); err != nil {
		return err
	}

	if item.Kind != ast.KindEnumDecl {
		return nil
	}
	for _, variant := range item.Children {
		variantDef := &structs.StructDef{Name: item.Name + "." + variant.Name, Pos: variant.Pos}
		if _, err := e.Structs.Register(variantDef); err != nil {
			return err
		}
		instance, err := value.NewStructInstance(variantDef, map[string]value.Value{})
		if err != nil {
			return err
		}
		e.Global.Define(variant.Name, e.trackNew(instance))
		e.retain(instance)
	}
	return nil
}

// makeFunc builds a closure value from a function declaration/literal node,
// capturing the lexical environment it was defined in.
func (e *Evaluator) makeFunc(node *ast.Node, captured *env.Environment, file string) *value.Func {
	return &value.Func{
		Name:       node.Name,
		Params:     node.Params,
		TypeParams: node.TypeParams,
		Body:       node.Body,
		Captured:   captured,
		File:       file,
		Line:       node.Pos.Line,
	}
}

// callFunc invokes fn with already-evaluated args at call site pos, pushing
// a scoped stack frame (spec §4.6: "{function_name, current_file,
// declaration_line}") and an independent call-depth guard. Parameters
// marked ref bind the argument's Value reference directly (alias);
// unmarked parameters receive a deep copy (spec §4.6.1).
func (e *Evaluator) callFunc(fn *value.Func, args []value.Value, pos ast.Position) (value.Value, error) {
	if len(args) != len(fn.Params) {
		return nil, naaberr.Newf(naaberr.TypeError, "%s expects %d argument(s), got %d", fn.Name, len(fn.Params), len(args))
	}

	release, err := e.callDepth.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if len(e.frames) >= MaxStackFrames {
		return nil, naaberr.Newf(naaberr.StackOverflow, "call stack exceeded %d frames", MaxStackFrames)
	}
	frame := naaberr.FrameFromPos(fn.Name, ast.Position{File: fn.File, Line: fn.Line})
	e.frames = append(e.frames, frame)
	defer func() { e.frames = e.frames[:len(e.frames)-1] }()

	parent, _ := fn.Captured.(*env.Environment)
	callEnv := env.New(parent)
	for i, p := range fn.Params {
		if p.Ref {
			callEnv.Define(p.Name, args[i])
			e.retain(args[i])
		} else {
			callEnv.Define(p.Name, e.trackTree(value.DeepCopy(args[i])))
		}
	}

	sig, err := e.exec(fn.Body, callEnv)
	if err != nil {
		if ne, ok := err.(*naaberr.Error); ok {
			ne.PushFrame(naaberr.FrameFromPos(fn.Name, pos))
		}
		return nil, err
	}
	if sig.kind == sigReturn {
		return sig.value, nil
	}
	return value.NullValue, nil
}

// specializeFunc returns fn itself if it has no type parameters, otherwise
// infers bindings from the evaluated arguments and returns (lazily
// building, then caching) the monomorphized specialization (spec §4.4).
func (e *Evaluator) specializeFunc(fn *value.Func, args []value.Value) (*value.Func, error) {
	if len(fn.TypeParams) == 0 {
		return fn, nil
	}
	if e.FuncCache == nil {
		return nil, naaberr.New(naaberr.TypeInferenceError, "generic function call with no specialization cache configured", nil)
	}

	paramTypes := make([]*ast.TypeNode, len(fn.Params))
	for i, p := range fn.Params {
		paramTypes[i] = p.Type
	}
	bindings, err := generic.InferBindings(fn.TypeParams, paramTypes, args, e.log)
	if err != nil {
		return nil, err
	}

	mangled := generic.MangledName(fn.Name, fn.TypeParams, bindings)
	return e.FuncCache.GetOrSpecialize(mangled, func() (*value.Func, error) {
		specialized := *fn
		specialized.Name = mangled
		specialized.TypeParams = nil
		specialized.Body = generic.SubstituteBody(fn.Body, bindings)
		specialized.Params = make([]ast.Param, len(fn.Params))
		for i, p := range fn.Params {
			specialized.Params[i] = ast.Param{Name: p.Name, Ref: p.Ref, Type: substituteParamType(p.Type, bindings)}
		}
		return &specialized, nil
	})
}

func substituteParamType(t *ast.TypeNode, bindings map[string]string) *ast.TypeNode {
	if t == nil {
		return nil
	}
	if bound, ok := bindings[t.Name]; ok && t.ModulePath == "" {
		return &ast.TypeNode{Name: bound, Nullable: t.Nullable}
	}
	return t
}
