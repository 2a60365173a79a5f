package interp

import (
	"testing"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/generic"
	"github.com/naab-lang/naab/structs"
	"github.com/naab-lang/naab/value"
)

func newTestEvaluator() *Evaluator {
	global := env.NewRoot("main")
	e := New(global, structs.NewRegistry(nil), nil, nil)
	return e
}

func ident(name string) *ast.Node  { return &ast.Node{Kind: ast.KindIdent, Name: name} }
func intLit(n int64) *ast.Node     { return &ast.Node{Kind: ast.KindIntLit, Int: n} }
func boolLit(b bool) *ast.Node     { return &ast.Node{Kind: ast.KindBoolLit, Bool: b} }
func strLit(s string) *ast.Node    { return &ast.Node{Kind: ast.KindStringLit, Str: s} }
func binary(op string, l, r *ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.KindBinary, Op: op, Children: []*ast.Node{l, r}}
}

func TestEvalArithmetic(t *testing.T) {
	e := newTestEvaluator()
	v, err := e.Eval(binary("+", intLit(2), binary("*", intLit(3), intLit(4))), e.Global)
	if err != nil {
		t.Fatal(err)
	}
	if v.(value.Int) != 14 {
		t.Errorf("expected 14, got %v", v)
	}
}

func TestEvalStringConcat(t *testing.T) {
	e := newTestEvaluator()
	v, err := e.Eval(binary("+", strLit("foo"), strLit("bar")), e.Global)
	if err != nil {
		t.Fatal(err)
	}
	if v.(value.String) != "foobar" {
		t.Errorf("expected foobar, got %v", v)
	}
}

func TestEvalComparisonAndLogic(t *testing.T) {
	e := newTestEvaluator()
	v, err := e.Eval(binary("&&", binary("<", intLit(1), intLit(2)), boolLit(true)), e.Global)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Truthy() {
		t.Errorf("expected true, got %v", v)
	}
}

func TestDivisionByZero(t *testing.T) {
	e := newTestEvaluator()
	_, err := e.Eval(binary("/", intLit(1), intLit(0)), e.Global)
	if err == nil {
		t.Fatal("expected division by zero error")
	}
}

func TestExecLetAndAssign(t *testing.T) {
	e := newTestEvaluator()
	frame := env.New(e.Global)

	letNode := &ast.Node{Kind: ast.KindLet, Name: "x", Body: intLit(1)}
	if _, err := e.exec(letNode, frame); err != nil {
		t.Fatal(err)
	}

	assignNode := &ast.Node{
		Kind:     ast.KindAssign,
		Children: []*ast.Node{ident("x")},
		Body:     binary("+", ident("x"), intLit(41)),
	}
	if _, err := e.exec(assignNode, frame); err != nil {
		t.Fatal(err)
	}

	v, err := frame.Lookup("x")
	if err != nil {
		t.Fatal(err)
	}
	if v.(value.Int) != 42 {
		t.Errorf("expected 42, got %v", v)
	}
}

func TestExecIfElse(t *testing.T) {
	e := newTestEvaluator()
	frame := env.New(e.Global)
	frame.Define("out", value.MakeInt(0))

	ifNode := &ast.Node{
		Kind:     ast.KindIf,
		Children: []*ast.Node{boolLit(false), assignBlock("out", intLit(2))},
		Body:     assignBlock("out", intLit(1)),
	}
	if _, err := e.exec(ifNode, frame); err != nil {
		t.Fatal(err)
	}
	v, _ := frame.Lookup("out")
	if v.(value.Int) != 2 {
		t.Errorf("expected else-branch to run, got %v", v)
	}
}

func assignBlock(name string, body *ast.Node) *ast.Node {
	assign := &ast.Node{Kind: ast.KindAssign, Children: []*ast.Node{ident(name)}, Body: body}
	return &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{assign}}
}

func TestExecWhileLoop(t *testing.T) {
	e := newTestEvaluator()
	frame := env.New(e.Global)
	frame.Define("i", value.MakeInt(0))
	frame.Define("sum", value.MakeInt(0))

	body := &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
		{Kind: ast.KindAssign, Children: []*ast.Node{ident("sum")}, Body: binary("+", ident("sum"), ident("i"))},
		{Kind: ast.KindAssign, Children: []*ast.Node{ident("i")}, Body: binary("+", ident("i"), intLit(1))},
	}}
	whileNode := &ast.Node{Kind: ast.KindWhile, Children: []*ast.Node{binary("<", ident("i"), intLit(5))}, Body: body}

	if _, err := e.exec(whileNode, frame); err != nil {
		t.Fatal(err)
	}
	v, _ := frame.Lookup("sum")
	if v.(value.Int) != 10 {
		t.Errorf("expected sum 10, got %v", v)
	}
}

func TestExecForOverList(t *testing.T) {
	e := newTestEvaluator()
	frame := env.New(e.Global)
	frame.Define("total", value.MakeInt(0))
	frame.Define("xs", value.NewList(value.MakeInt(1), value.MakeInt(2), value.MakeInt(3)))

	body := &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
		{Kind: ast.KindAssign, Children: []*ast.Node{ident("total")}, Body: binary("+", ident("total"), ident("item"))},
	}}
	forNode := &ast.Node{Kind: ast.KindFor, Name: "item", Children: []*ast.Node{ident("xs")}, Body: body}

	if _, err := e.exec(forNode, frame); err != nil {
		t.Fatal(err)
	}
	v, _ := frame.Lookup("total")
	if v.(value.Int) != 6 {
		t.Errorf("expected 6, got %v", v)
	}
}

func TestCallFuncAndReturn(t *testing.T) {
	e := newTestEvaluator()
	fnNode := &ast.Node{
		Kind:   ast.KindFuncDecl,
		Name:   "add",
		Params: []ast.Param{{Name: "a"}, {Name: "b"}},
		Body: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
			{Kind: ast.KindReturn, Body: binary("+", ident("a"), ident("b"))},
		}},
	}
	if err := e.evalTopLevel(fnNode, e.Global, "test.naab"); err != nil {
		t.Fatal(err)
	}

	call := &ast.Node{Kind: ast.KindCall, Children: []*ast.Node{ident("add"), intLit(3), intLit(4)}}
	v, err := e.Eval(call, e.Global)
	if err != nil {
		t.Fatal(err)
	}
	if v.(value.Int) != 7 {
		t.Errorf("expected 7, got %v", v)
	}
}

func TestTryCatchCatchesUserThrow(t *testing.T) {
	e := newTestEvaluator()
	frame := env.New(e.Global)
	frame.Define("caught", value.MakeBool(false))

	tryNode := &ast.Node{
		Kind: ast.KindTry,
		Body: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
			{Kind: ast.KindThrow, Body: strLit("boom")},
		}},
		Catches: []ast.CatchClause{
			{Name: "err", Body: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
				{Kind: ast.KindAssign, Children: []*ast.Node{ident("caught")}, Body: boolLit(true)},
			}}},
		},
	}

	if _, err := e.exec(tryNode, frame); err != nil {
		t.Fatal(err)
	}
	v, _ := frame.Lookup("caught")
	if !v.Truthy() {
		t.Error("expected catch clause to run")
	}
}

func TestStructLiteralAndFieldAccess(t *testing.T) {
	e := newTestEvaluator()
	if err := e.registerStructDecl(&ast.Node{
		Kind: ast.KindStructDecl,
		Name: "Point",
		Params: []ast.Param{
			{Name: "x", Type: &ast.TypeNode{Name: "int"}},
			{Name: "y", Type: &ast.TypeNode{Name: "int"}},
		},
	}); err != nil {
		t.Fatal(err)
	}

	lit := &ast.Node{
		Kind: ast.KindStructLit,
		Name: "Point",
		Fields: []ast.FieldInit{
			{Name: "x", Expr: intLit(1)},
			{Name: "y", Expr: intLit(2)},
		},
	}
	frame := env.New(e.Global)
	if _, err := e.exec(&ast.Node{Kind: ast.KindLet, Name: "p", Body: lit}, frame); err != nil {
		t.Fatal(err)
	}

	member := &ast.Node{Kind: ast.KindMember, Name: "y", Children: []*ast.Node{ident("p")}}
	v, err := e.Eval(member, frame)
	if err != nil {
		t.Fatal(err)
	}
	if v.(value.Int) != 2 {
		t.Errorf("expected 2, got %v", v)
	}
}

func TestUndefinedStructLiteral(t *testing.T) {
	e := newTestEvaluator()
	lit := &ast.Node{Kind: ast.KindStructLit, Name: "Nope"}
	if _, err := e.Eval(lit, e.Global); err == nil {
		t.Fatal("expected error for undefined struct")
	}
}

func TestGenericFuncSpecializesPerArgumentType(t *testing.T) {
	e := newTestEvaluator()
	e.FuncCache = generic.NewFuncCache()

	fnNode := &ast.Node{
		Kind:       ast.KindFuncDecl,
		Name:       "identity",
		TypeParams: []string{"T"},
		Params:     []ast.Param{{Name: "v", Type: &ast.TypeNode{Name: "T"}}},
		Body: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
			{Kind: ast.KindReturn, Body: ident("v")},
		}},
	}
	if err := e.evalTopLevel(fnNode, e.Global, "test.naab"); err != nil {
		t.Fatal(err)
	}

	intCall := &ast.Node{Kind: ast.KindCall, Children: []*ast.Node{ident("identity"), intLit(9)}}
	v, err := e.Eval(intCall, e.Global)
	if err != nil {
		t.Fatal(err)
	}
	if v.(value.Int) != 9 {
		t.Errorf("expected 9, got %v", v)
	}

	strCall := &ast.Node{Kind: ast.KindCall, Children: []*ast.Node{ident("identity"), strLit("hi")}}
	sv, err := e.Eval(strCall, e.Global)
	if err != nil {
		t.Fatal(err)
	}
	if sv.(value.String) != "hi" {
		t.Errorf("expected hi, got %v", sv)
	}

	if e.FuncCache.Len() != 2 {
		t.Errorf("expected two cached specializations, got %d", e.FuncCache.Len())
	}
}

func TestStdlibCallMarkerDispatch(t *testing.T) {
	e := newTestEvaluator()
	e.Stdlib = NewStdlibRegistry()
	e.Stdlib.RegisterFunc("math", "double", func(args []value.Value) (value.Value, error) {
		return value.MakeInt(int64(args[0].(value.Int)) * 2), nil
	})

	access := &ast.Node{Kind: ast.KindModuleAccess, ModulePath: "math", Name: "double"}
	call := &ast.Node{Kind: ast.KindCall, Children: []*ast.Node{access, intLit(21)}}

	v, err := e.Eval(call, e.Global)
	if err != nil {
		t.Fatal(err)
	}
	if v.(value.Int) != 42 {
		t.Errorf("expected 42, got %v", v)
	}
}

func TestCallFuncDeepCopiesNonRefParam(t *testing.T) {
	e := newTestEvaluator()
	fnNode := &ast.Node{
		Kind:   ast.KindFuncDecl,
		Name:   "mutate",
		Params: []ast.Param{{Name: "xs"}},
		Body: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
			{Kind: ast.KindAssign,
				Children: []*ast.Node{{Kind: ast.KindIndex, Children: []*ast.Node{ident("xs"), intLit(0)}}},
				Body:     intLit(99)},
		}},
	}
	if err := e.evalTopLevel(fnNode, e.Global, "test.naab"); err != nil {
		t.Fatal(err)
	}

	frame := env.New(e.Global)
	listLit := &ast.Node{Kind: ast.KindListLit, Children: []*ast.Node{intLit(1), intLit(2)}}
	if _, err := e.exec(&ast.Node{Kind: ast.KindLet, Name: "original", Body: listLit}, frame); err != nil {
		t.Fatal(err)
	}

	call := &ast.Node{Kind: ast.KindCall, Children: []*ast.Node{ident("mutate"), ident("original")}}
	if _, err := e.Eval(call, frame); err != nil {
		t.Fatal(err)
	}

	v, err := frame.Lookup("original")
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.(*value.List).Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if got.(value.Int) != 1 {
		t.Errorf("mutation inside a non-ref parameter must not be visible in the caller, got %v", got)
	}
}

func TestCallFuncAliasesRefParam(t *testing.T) {
	e := newTestEvaluator()
	fnNode := &ast.Node{
		Kind:   ast.KindFuncDecl,
		Name:   "mutate",
		Params: []ast.Param{{Name: "xs", Ref: true}},
		Body: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
			{Kind: ast.KindAssign,
				Children: []*ast.Node{{Kind: ast.KindIndex, Children: []*ast.Node{ident("xs"), intLit(0)}}},
				Body:     intLit(99)},
		}},
	}
	if err := e.evalTopLevel(fnNode, e.Global, "test.naab"); err != nil {
		t.Fatal(err)
	}

	frame := env.New(e.Global)
	listLit := &ast.Node{Kind: ast.KindListLit, Children: []*ast.Node{intLit(1), intLit(2)}}
	if _, err := e.exec(&ast.Node{Kind: ast.KindLet, Name: "original", Body: listLit}, frame); err != nil {
		t.Fatal(err)
	}

	call := &ast.Node{Kind: ast.KindCall, Children: []*ast.Node{ident("mutate"), ident("original")}}
	if _, err := e.Eval(call, frame); err != nil {
		t.Fatal(err)
	}

	v, err := frame.Lookup("original")
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.(*value.List).Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if got.(value.Int) != 99 {
		t.Errorf("mutation inside a ref parameter must be visible in the caller, got %v", got)
	}
}

func TestFinallyRunsOnNormalCompletion(t *testing.T) {
	e := newTestEvaluator()
	frame := env.New(e.Global)
	frame.Define("ran", value.MakeBool(false))

	tryNode := &ast.Node{
		Kind: ast.KindTry,
		Body: &ast.Node{Kind: ast.KindBlock},
		Finally: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
			{Kind: ast.KindAssign, Children: []*ast.Node{ident("ran")}, Body: boolLit(true)},
		}},
	}
	if _, err := e.exec(tryNode, frame); err != nil {
		t.Fatal(err)
	}
	v, _ := frame.Lookup("ran")
	if !v.Truthy() {
		t.Error("expected finally to run on normal completion")
	}
}

func TestFinallyRunsAfterUncaughtThrow(t *testing.T) {
	e := newTestEvaluator()
	frame := env.New(e.Global)
	frame.Define("ran", value.MakeBool(false))

	tryNode := &ast.Node{
		Kind: ast.KindTry,
		Body: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
			{Kind: ast.KindThrow, Body: strLit("boom")},
		}},
		Finally: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
			{Kind: ast.KindAssign, Children: []*ast.Node{ident("ran")}, Body: boolLit(true)},
		}},
	}
	if _, err := e.exec(tryNode, frame); err == nil {
		t.Fatal("expected the throw to propagate past an uncaught try")
	}
	v, _ := frame.Lookup("ran")
	if !v.Truthy() {
		t.Error("expected finally to run even when the error is left uncaught")
	}
}

func TestFinallyRunsOnReturn(t *testing.T) {
	e := newTestEvaluator()
	e.Global.Define("ran", value.MakeBool(false))
	fnNode := &ast.Node{
		Kind: ast.KindFuncDecl,
		Name: "f",
		Body: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
			{Kind: ast.KindTry,
				Body: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
					{Kind: ast.KindReturn, Body: intLit(1)},
				}},
				Finally: &ast.Node{Kind: ast.KindBlock, Children: []*ast.Node{
					{Kind: ast.KindAssign, Children: []*ast.Node{ident("ran")}, Body: boolLit(true)},
				}},
			},
			{Kind: ast.KindReturn, Body: ident("ran")},
		}},
	}
	if err := e.evalTopLevel(fnNode, e.Global, "test.naab"); err != nil {
		t.Fatal(err)
	}

	call := &ast.Node{Kind: ast.KindCall, Children: []*ast.Node{ident("f")}}
	v, err := e.Eval(call, e.Global)
	if err != nil {
		t.Fatal(err)
	}
	if v.(value.Int) != 1 {
		t.Errorf("a return inside try must still propagate out past finally, got %v", v)
	}
	ran, _ := e.Global.Lookup("ran")
	if !ran.Truthy() {
		t.Error("expected finally to run when the try block returns")
	}
}

func TestModuleAccessOnUseBoundAlias(t *testing.T) {
	e := newTestEvaluator()
	exports := map[string]value.Value{"greeting": value.MakeString("hi")}
	e.Global.Define("greeter", value.NewModule("lib.greeter", exports))

	access := &ast.Node{Kind: ast.KindModuleAccess, ModulePath: "greeter", Name: "greeting"}
	v, err := e.Eval(access, e.Global)
	if err != nil {
		t.Fatal(err)
	}
	if v.(value.String) != "hi" {
		t.Errorf("expected hi, got %v", v)
	}
}
