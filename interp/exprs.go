package interp

import (
	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/generic"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/value"
)

// Eval evaluates an expression node to a Value (spec §4.6.1).
func (e *Evaluator) Eval(node *ast.Node, frame *env.Environment) (value.Value, error) {
	if node == nil {
		return value.NullValue, nil
	}
	switch node.Kind {
	case ast.KindIntLit:
		return value.MakeInt(node.Int), nil
	case ast.KindFloatLit:
		return value.MakeFloat(node.Float), nil
	case ast.KindStringLit:
		return value.MakeString(node.Str), nil
	case ast.KindBoolLit:
		return value.MakeBool(node.Bool), nil
	case ast.KindNullLit:
		return value.NullValue, nil
	case ast.KindIdent:
		return frame.Lookup(node.Name)
	case ast.KindBinary:
		return e.evalBinary(node, frame)
	case ast.KindUnary:
		return e.evalUnary(node, frame)
	case ast.KindIndex:
		return e.evalIndex(node, frame)
	case ast.KindMember:
		return e.evalMember(node, frame)
	case ast.KindModuleAccess:
		return e.evalModuleAccess(node, frame)
	case ast.KindCall:
		return e.evalCall(node, frame)
	case ast.KindStructLit:
		return e.evalStructLit(node, frame)
	case ast.KindListLit:
		return e.evalListLit(node, frame)
	case ast.KindDictLit:
		return e.evalDictLit(node, frame)
	case ast.KindRange:
		return e.evalRange(node, frame)
	case ast.KindPipeline:
		return e.evalPipeline(node, frame)
	case ast.KindFuncLit:
		return e.makeFunc(node, frame, node.Pos.File), nil
	case ast.KindPolyglotBlock:
		return e.evalPolyglotBlock(node, frame)
	default:
		return nil, naaberr.Newf(naaberr.ParseError, "unexpected expression node kind %d", node.Kind)
	}
}

func (e *Evaluator) evalBinary(node *ast.Node, frame *env.Environment) (value.Value, error) {
	l, err := e.Eval(node.Children[0], frame)
	if err != nil {
		return nil, err
	}

	// Logical operators short-circuit before the right operand is evaluated.
	switch node.Op {
	case "&&":
		if !l.Truthy() {
			return value.MakeBool(false), nil
		}
		r, err := e.Eval(node.Children[1], frame)
		if err != nil {
			return nil, err
		}
		return value.MakeBool(r.Truthy()), nil
	case "||":
		if l.Truthy() {
			return value.MakeBool(true), nil
		}
		r, err := e.Eval(node.Children[1], frame)
		if err != nil {
			return nil, err
		}
		return value.MakeBool(r.Truthy()), nil
	}

	r, err := e.Eval(node.Children[1], frame)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case "+", "-", "*", "/", "%":
		return evalArith(node.Op, l, r)
	case "==":
		return value.MakeBool(l.Equals(r)), nil
	case "!=":
		return value.MakeBool(!l.Equals(r)), nil
	case "<", "<=", ">", ">=":
		return evalCompare(node.Op, l, r)
	default:
		return nil, naaberr.Newf(naaberr.TypeError, "unknown binary operator %q", node.Op)
	}
}

// evalArith layers string/list concatenation (spec §4.6.1) on top of
// value.BinaryArith's numeric-tower arithmetic.
func evalArith(op string, l, r value.Value) (value.Value, error) {
	if op == "+" {
		if ls, ok := l.(value.String); ok {
			if rs, ok := r.(value.String); ok {
				return value.MakeString(string(ls) + string(rs)), nil
			}
		}
		if ll, ok := l.(*value.List); ok {
			if rl, ok := r.(*value.List); ok {
				elems := make([]value.Value, 0, len(ll.Elems)+len(rl.Elems))
				elems = append(elems, ll.Elems...)
				elems = append(elems, rl.Elems...)
				return value.NewList(elems...), nil
			}
		}
	}
	return value.BinaryArith(op, l, r)
}

func evalCompare(op string, l, r value.Value) (value.Value, error) {
	cmp, ok := value.Compare(l, r)
	if !ok {
		return nil, naaberr.Newf(naaberr.TypeError, "operands are not ordered for %s", op)
	}
	switch op {
	case "<":
		return value.MakeBool(cmp < 0), nil
	case "<=":
		return value.MakeBool(cmp <= 0), nil
	case ">":
		return value.MakeBool(cmp > 0), nil
	case ">=":
		return value.MakeBool(cmp >= 0), nil
	}
	return nil, naaberr.Newf(naaberr.TypeError, "unknown comparison operator %q", op)
}

func (e *Evaluator) evalUnary(node *ast.Node, frame *env.Environment) (value.Value, error) {
	v, err := e.Eval(node.Children[0], frame)
	if err != nil {
		return nil, err
	}
	switch node.Op {
	case "-":
		switch t := v.(type) {
		case value.Int:
			n, err := value.SafeNeg(int64(t))
			return value.MakeInt(n), err
		case value.Float:
			return value.MakeFloat(-float64(t)), nil
		default:
			return nil, naaberr.Newf(naaberr.TypeError, "cannot negate %s", v.Kind())
		}
	case "not", "!":
		return value.MakeBool(!v.Truthy()), nil
	default:
		return nil, naaberr.Newf(naaberr.TypeError, "unknown unary operator %q", node.Op)
	}
}

func (e *Evaluator) evalIndex(node *ast.Node, frame *env.Environment) (value.Value, error) {
	container, err := e.Eval(node.Children[0], frame)
	if err != nil {
		return nil, err
	}
	key, err := e.Eval(node.Children[1], frame)
	if err != nil {
		return nil, err
	}
	switch t := container.(type) {
	case *value.List:
		idx, ok := key.(value.Int)
		if !ok {
			return nil, naaberr.Newf(naaberr.TypeError, "list index must be int, got %s", key.Kind())
		}
		return t.Get(int64(idx))
	case *value.Dict:
		k, ok := key.(value.String)
		if !ok {
			return nil, naaberr.Newf(naaberr.TypeError, "dict key must be string, got %s", key.Kind())
		}
		return t.Get(string(k))
	case value.String:
		idx, ok := key.(value.Int)
		if !ok {
			return nil, naaberr.Newf(naaberr.TypeError, "string index must be int, got %s", key.Kind())
		}
		runes := []rune(string(t))
		n := int64(len(runes))
		i := int64(idx)
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, naaberr.Newf(naaberr.IndexError, "index %d out of range for length %d", idx, n)
		}
		return value.MakeString(string(runes[i])), nil
	default:
		return nil, naaberr.Newf(naaberr.TypeError, "cannot index into %s", container.Kind())
	}
}

func (e *Evaluator) assignIndex(node *ast.Node, frame *env.Environment, v value.Value) error {
	container, err := e.Eval(node.Children[0], frame)
	if err != nil {
		return err
	}
	key, err := e.Eval(node.Children[1], frame)
	if err != nil {
		return err
	}
	switch t := container.(type) {
	case *value.List:
		idx, ok := key.(value.Int)
		if !ok {
			return naaberr.Newf(naaberr.TypeError, "list index must be int, got %s", key.Kind())
		}
		old, _ := t.Get(int64(idx))
		if err := t.Set(int64(idx), v); err != nil {
			return err
		}
		e.release(old)
		e.retain(v)
		return nil
	case *value.Dict:
		k, ok := key.(value.String)
		if !ok {
			return naaberr.Newf(naaberr.TypeError, "dict key must be string, got %s", key.Kind())
		}
		old, getErr := t.Get(string(k))
		if err := t.Set(string(k), v); err != nil {
			return err
		}
		if getErr == nil {
			e.release(old)
		}
		e.retain(v)
		return nil
	default:
		return naaberr.Newf(naaberr.TypeError, "cannot assign into %s", container.Kind())
	}
}

// evalMember handles struct field access. Module-qualified access
// (`module.name`) is parsed as KindModuleAccess instead, so this path is
// struct fields only.
func (e *Evaluator) evalMember(node *ast.Node, frame *env.Environment) (value.Value, error) {
	receiver, err := e.Eval(node.Children[0], frame)
	if err != nil {
		return nil, err
	}
	si, ok := receiver.(*value.StructInstance)
	if !ok {
		return nil, naaberr.Newf(naaberr.TypeError, "cannot access field %q on %s", node.Name, receiver.Kind())
	}
	idx := si.FieldByName(node.Name)
	if idx < 0 {
		return nil, naaberr.Newf(naaberr.KeyError, "%s has no field %q", si.Def.Name, node.Name)
	}
	return si.Fields[idx], nil
}

func (e *Evaluator) assignMember(node *ast.Node, frame *env.Environment, v value.Value) error {
	receiver, err := e.Eval(node.Children[0], frame)
	if err != nil {
		return err
	}
	si, ok := receiver.(*value.StructInstance)
	if !ok {
		return naaberr.Newf(naaberr.TypeError, "cannot assign field %q on %s", node.Name, receiver.Kind())
	}
	idx := si.FieldByName(node.Name)
	if idx < 0 {
		return naaberr.Newf(naaberr.KeyError, "%s has no field %q", si.Def.Name, node.Name)
	}
	e.release(si.Fields[idx])
	si.Fields[idx] = v
	e.retain(v)
	return nil
}

// evalModuleAccess looks up node.Name in the module value bound to
// node.ModulePath's alias (spec §4.5: "member access performs lookup in the
// module environment's exported table"). If ModulePath isn't a bound NAAb
// import alias, it's tried as a standard-library module name instead (spec
// §6.3), so `math.sqrt(x)` and a user's `use`d `app.db` alias share the
// same dotted-access syntax.
func (e *Evaluator) evalModuleAccess(node *ast.Node, frame *env.Environment) (value.Value, error) {
	alias, err := frame.Lookup(node.ModulePath)
	if err != nil {
		if e.Stdlib != nil {
			return e.Stdlib.Lookup(node.ModulePath, node.Name)
		}
		return nil, err
	}
	mod, ok := alias.(*value.Module)
	if !ok {
		return nil, naaberr.Newf(naaberr.TypeError, "%q is not a module", node.ModulePath)
	}
	return mod.Get(node.Name)
}

func (e *Evaluator) evalCall(node *ast.Node, frame *env.Environment) (value.Value, error) {
	callee, err := e.Eval(node.Children[0], frame)
	if err != nil {
		return nil, err
	}

	args := make([]value.Value, len(node.Children)-1)
	for i, a := range node.Children[1:] {
		v, err := e.Eval(a, frame)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if marker, ok := callee.(value.String); ok && string(marker) == builtinGCCollectMarker {
		return e.callBuiltinGCCollect(args)
	}
	if marker, ok := callee.(value.String); ok && isStdlibMarker(string(marker)) {
		return e.callStdlib(string(marker), args)
	}

	fn, ok := callee.(*value.Func)
	if !ok {
		return nil, naaberr.Newf(naaberr.TypeError, "%s is not callable", callee.Kind())
	}
	specialized, err := e.specializeFunc(fn, args)
	if err != nil {
		return nil, err
	}
	return e.callFunc(specialized, args, node.Pos)
}

func (e *Evaluator) evalStructLit(node *ast.Node, frame *env.Environment) (value.Value, error) {
	if e.Structs == nil {
		return nil, naaberr.New(naaberr.TypeError, "struct registry not configured", nil)
	}
	def, ok := e.Structs.Get(node.Name)
	if !ok {
		return nil, naaberr.Newf(naaberr.UndefinedName, "undefined struct %q", node.Name)
	}

	byName := make(map[string]value.Value, len(node.Fields))
	for _, fi := range node.Fields {
		v, err := e.Eval(fi.Expr, frame)
		if err != nil {
			return nil, err
		}
		byName[fi.Name] = v
	}

	if len(def.TypeParams) > 0 {
		if e.StructCache == nil {
			return nil, naaberr.New(naaberr.TypeInferenceError, "generic struct literal with no specialization cache configured", nil)
		}
		bindings, err := generic.InferFieldBindings(def.TypeParams, def.Fields, byName, e.log)
		if err != nil {
			return nil, err
		}
		specialized, err := e.StructCache.GetOrSpecialize(def, bindings)
		if err != nil {
			return nil, err
		}
		def = specialized
	}

	for _, fd := range def.Fields {
		v, ok := byName[fd.Name]
		if !ok {
			continue
		}
		if err := e.checkType(fd.Type, v); err != nil {
			return nil, err
		}
	}
	inst, err := value.NewStructInstance(def, byName)
	if err != nil {
		return nil, err
	}
	for _, v := range byName {
		e.retain(v)
	}
	return e.trackNew(inst), nil
}

func (e *Evaluator) evalListLit(node *ast.Node, frame *env.Environment) (value.Value, error) {
	elems := make([]value.Value, len(node.Children))
	for i, c := range node.Children {
		v, err := e.Eval(c, frame)
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	if len(elems) > value.MaxListElements {
		return nil, naaberr.Newf(naaberr.ResourceLimit, "list literal exceeds maximum size of %d elements", value.MaxListElements)
	}
	list := value.NewList(elems...)
	for _, v := range elems {
		e.retain(v)
	}
	return e.trackNew(list), nil
}

func (e *Evaluator) evalDictLit(node *ast.Node, frame *env.Environment) (value.Value, error) {
	d := value.NewDict()
	for _, fi := range node.Fields {
		v, err := e.Eval(fi.Expr, frame)
		if err != nil {
			return nil, err
		}
		if err := d.Set(fi.Name, v); err != nil {
			return nil, err
		}
		e.retain(v)
	}
	return e.trackNew(d), nil
}

// evalRange evaluates both endpoints eagerly and validates a <= b (spec
// §4.6.4).
func (e *Evaluator) evalRange(node *ast.Node, frame *env.Environment) (value.Value, error) {
	lo, err := e.Eval(node.Children[0], frame)
	if err != nil {
		return nil, err
	}
	hi, err := e.Eval(node.Children[1], frame)
	if err != nil {
		return nil, err
	}
	loi, ok := lo.(value.Int)
	if !ok {
		return nil, naaberr.Newf(naaberr.TypeError, "range endpoints must be int, got %s", lo.Kind())
	}
	hii, ok := hi.(value.Int)
	if !ok {
		return nil, naaberr.Newf(naaberr.TypeError, "range endpoints must be int, got %s", hi.Kind())
	}
	if int64(loi) > int64(hii) {
		return nil, naaberr.Newf(naaberr.TypeError, "range start %d is greater than end %d", loi, hii)
	}
	return e.trackNew(value.NewRange(int64(loi), int64(hii))), nil
}

// evalPipeline desugars `x |> f` into `f(x)` (spec §4.6.1).
func (e *Evaluator) evalPipeline(node *ast.Node, frame *env.Environment) (value.Value, error) {
	x, err := e.Eval(node.Children[0], frame)
	if err != nil {
		return nil, err
	}
	callee, err := e.Eval(node.Children[1], frame)
	if err != nil {
		return nil, err
	}
	if marker, ok := callee.(value.String); ok && isStdlibMarker(string(marker)) {
		return e.callStdlib(string(marker), []value.Value{x})
	}
	fn, ok := callee.(*value.Func)
	if !ok {
		return nil, naaberr.Newf(naaberr.TypeError, "%s is not callable", callee.Kind())
	}
	specialized, err := e.specializeFunc(fn, []value.Value{x})
	if err != nil {
		return nil, err
	}
	return e.callFunc(specialized, []value.Value{x}, node.Pos)
}
