package interp

import (
	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/value"
)

// exec evaluates a statement node, returning its control-flow signal. A
// non-nil error is always a *naaberr.Error: either one of the evaluator's
// own (TypeError, IndexError, ...) or one built by a `throw` (UserError,
// carrying the thrown value in Payload). try/catch is the only statement
// that inspects err instead of merely propagating it.
func (e *Evaluator) exec(node *ast.Node, frame *env.Environment) (signal, error) {
	if node == nil {
		return normalSignal, nil
	}
	switch node.Kind {
	case ast.KindBlock:
		return e.execBlock(node, env.New(frame))
	case ast.KindLet:
		return e.execLet(node, frame)
	case ast.KindAssign:
		return e.execAssign(node, frame)
	case ast.KindExprStmt:
		_, err := e.Eval(node.Body, frame)
		return normalSignal, err
	case ast.KindIf:
		return e.execIf(node, frame)
	case ast.KindWhile:
		return e.execWhile(node, frame)
	case ast.KindFor:
		return e.execFor(node, frame)
	case ast.KindBreak:
		return signal{kind: sigBreak}, nil
	case ast.KindContinue:
		return signal{kind: sigContinue}, nil
	case ast.KindReturn:
		var v value.Value = value.NullValue
		if node.Body != nil {
			var err error
			v, err = e.Eval(node.Body, frame)
			if err != nil {
				return normalSignal, err
			}
		}
		return signal{kind: sigReturn, value: v}, nil
	case ast.KindThrow:
		v, err := e.Eval(node.Body, frame)
		if err != nil {
			return normalSignal, err
		}
		return normalSignal, naaberr.New(naaberr.UserError, v.String(), nil).WithPayload(v)
	case ast.KindTry:
		return e.execTry(node, frame)
	default:
		return normalSignal, naaberr.Newf(naaberr.ParseError, "unexpected statement node kind %d", node.Kind)
	}
}

// execBlock runs each statement of a block in order, stopping at the first
// non-normal signal or error (spec §4.6: status propagates up immediately).
func (e *Evaluator) execBlock(node *ast.Node, frame *env.Environment) (signal, error) {
	for _, stmt := range node.Children {
		sig, err := e.exec(stmt, frame)
		if err != nil {
			return normalSignal, err
		}
		if !sig.isNormal() {
			return sig, nil
		}
	}
	return normalSignal, nil
}

func (e *Evaluator) execLet(node *ast.Node, frame *env.Environment) (signal, error) {
	if node.Body == nil {
		if node.Type == nil {
			return normalSignal, naaberr.Newf(naaberr.TypeInferenceError, "let %q has no initializer and no declared type", node.Name)
		}
		frame.Define(node.Name, value.NullValue)
		return normalSignal, nil
	}
	v, err := e.evalInitializer(node.Body, frame)
	if err != nil {
		return normalSignal, err
	}
	if node.Type != nil {
		if err := e.checkType(node.Type, v); err != nil {
			return normalSignal, err
		}
	}
	frame.Define(node.Name, v)
	e.retain(v)
	return normalSignal, nil
}

func (e *Evaluator) execAssign(node *ast.Node, frame *env.Environment) (signal, error) {
	v, err := e.evalInitializer(node.Body, frame)
	if err != nil {
		return normalSignal, err
	}
	target := node.Children[0]
	switch target.Kind {
	case ast.KindIdent:
		if err := e.checkAssignTarget(target.Name, frame, v); err != nil {
			return normalSignal, err
		}
		old, _ := frame.Lookup(target.Name)
		if err := frame.Assign(target.Name, v); err != nil {
			return normalSignal, err
		}
		e.release(old)
		e.retain(v)
		return normalSignal, nil
	case ast.KindIndex:
		return normalSignal, e.assignIndex(target, frame, v)
	case ast.KindMember:
		return normalSignal, e.assignMember(target, frame, v)
	default:
		return normalSignal, naaberr.Newf(naaberr.TypeError, "invalid assignment target")
	}
}

// checkAssignTarget validates v against the existing binding's runtime kind
// when one already exists, approximating spec §4.6.3's "validates against
// stored type if tracked" without a separate declared-type side table: the
// current value's own kind stands in for the tracked type.
func (e *Evaluator) checkAssignTarget(name string, frame *env.Environment, v value.Value) error {
	existing, err := frame.Lookup(name)
	if err != nil {
		return err
	}
	if _, isNull := existing.(value.Null); isNull {
		return nil // untyped/null-initialized binding accepts any replacement
	}
	if existing.Kind() != v.Kind() {
		return naaberr.Newf(naaberr.TypeError, "cannot assign %s to %q, which holds %s", v.Kind(), name, existing.Kind())
	}
	return nil
}

// execIf: node.Children[0] is the condition, node.Body the then-branch,
// and node.Children[1] (if present) the else-branch — an `if`/`else if`
// chain is just a nested `if` sitting in that else slot.
func (e *Evaluator) execIf(node *ast.Node, frame *env.Environment) (signal, error) {
	cond, err := e.Eval(node.Children[0], frame)
	if err != nil {
		return normalSignal, err
	}
	if cond.Truthy() {
		return e.exec(node.Body, env.New(frame))
	}
	if len(node.Children) > 1 {
		return e.exec(node.Children[1], env.New(frame))
	}
	return normalSignal, nil
}

func (e *Evaluator) execWhile(node *ast.Node, frame *env.Environment) (signal, error) {
	for {
		cond, err := e.Eval(node.Children[0], frame)
		if err != nil {
			return normalSignal, err
		}
		if !cond.Truthy() {
			return normalSignal, nil
		}
		sig, err := e.exec(node.Body, env.New(frame))
		if err != nil {
			return normalSignal, err
		}
		switch sig.kind {
		case sigBreak:
			return normalSignal, nil
		case sigReturn:
			return sig, nil
		}
	}
}

// execFor iterates a range, list, or dict (spec §4.6.2); dict iteration
// yields key-value pairs as a two-element list in insertion order.
func (e *Evaluator) execFor(node *ast.Node, frame *env.Environment) (signal, error) {
	iterable, err := e.Eval(node.Children[0], frame)
	if err != nil {
		return normalSignal, err
	}

	runBody := func(binding value.Value) (signal, bool, error) {
		iterEnv := env.New(frame)
		iterEnv.Define(node.Name, binding)
		sig, err := e.exec(node.Body, iterEnv)
		if err != nil {
			return normalSignal, false, err
		}
		switch sig.kind {
		case sigBreak:
			return normalSignal, false, nil
		case sigReturn:
			return sig, false, nil
		}
		return normalSignal, true, nil
	}

	switch t := iterable.(type) {
	case *value.Dict:
		if value.IsRange(t) {
			var outSig signal
			var outErr error
			t.EachRange(func(i int64) bool {
				sig, cont, err := runBody(value.MakeInt(i))
				if err != nil {
					outErr = err
					return false
				}
				if sig.kind == sigReturn {
					outSig = sig
					return false
				}
				return cont
			})
			return outSig, outErr
		}
		for _, k := range t.Keys {
			pair := value.NewList(value.MakeString(k), t.Vals[k])
			sig, cont, err := runBody(pair)
			if err != nil {
				return normalSignal, err
			}
			if sig.kind == sigReturn {
				return sig, nil
			}
			if !cont {
				break
			}
		}
		return normalSignal, nil
	case *value.List:
		for _, elem := range t.Elems {
			sig, cont, err := runBody(elem)
			if err != nil {
				return normalSignal, err
			}
			if sig.kind == sigReturn {
				return sig, nil
			}
			if !cont {
				break
			}
		}
		return normalSignal, nil
	default:
		return normalSignal, naaberr.Newf(naaberr.TypeError, "cannot iterate over %s", iterable.Kind())
	}
}

// execTry implements try/catch/finally (spec §4.6.2): finally always runs,
// and its own non-normal status supersedes whatever the try/catch produced.
func (e *Evaluator) execTry(node *ast.Node, frame *env.Environment) (signal, error) {
	sig, err := e.exec(node.Body, env.New(frame))
	if err != nil {
		if ne, ok := err.(*naaberr.Error); ok {
			if caught, catchSig, catchErr, handled := e.tryCatches(node, ne, frame); handled {
				sig, err = catchSig, catchErr
				_ = caught
			}
		}
	}
	if node.Finally == nil {
		return sig, err
	}
	finSig, finErr := e.exec(node.Finally, env.New(frame))
	if finErr != nil {
		return normalSignal, finErr
	}
	if !finSig.isNormal() {
		return finSig, nil
	}
	return sig, err
}

func (e *Evaluator) tryCatches(node *ast.Node, thrown *naaberr.Error, frame *env.Environment) (bool, signal, error, bool) {
	for _, c := range node.Catches {
		if c.KindFilter != "" && string(thrown.Kind) != c.KindFilter {
			continue
		}
		catchEnv := env.New(frame)
		catchEnv.Define(c.Name, payloadValue(thrown))
		sig, err := e.exec(c.Body, catchEnv)
		return true, sig, err, true
	}
	return false, normalSignal, nil, false
}

// payloadValue recovers the Value a `throw` carried, or synthesizes a
// string describing a built-in evaluator error so catch always binds
// something usable.
func payloadValue(e *naaberr.Error) value.Value {
	if v, ok := e.Payload.(value.Value); ok {
		return v
	}
	return value.MakeString(e.Error())
}
