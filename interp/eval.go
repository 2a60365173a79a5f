// Package interp implements the tree-walking evaluator of spec §4.6: a
// visitor producing a Value for every expression and a status for every
// statement, over the AST the external parser hands it.
package interp

import (
	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/config"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/gc"
	"github.com/naab-lang/naab/generic"
	"github.com/naab-lang/naab/module"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/polyglot"
	"github.com/naab-lang/naab/safety"
	"github.com/naab-lang/naab/structs"
	"github.com/naab-lang/naab/value"
	"go.uber.org/zap"
)

// MaxStackFrames bounds the scoped call stack (spec §4.6: "bounded at
// 10,000 frames; exceeding it raises StackOverflow").
const MaxStackFrames = 10_000

// Evaluator bundles every collaborator the tree-walker needs: the global
// environment, the struct and generics registries, the module loader, the
// GC heap, the polyglot framework, and the safety-layer guards. One
// Evaluator corresponds to one running program (spec §9).
type Evaluator struct {
	Global      *env.Environment
	Structs     *structs.Registry
	FuncCache   *generic.FuncCache
	StructCache *generic.StructCache
	Modules     *module.Loader
	Heap        *gc.Heap
	Polyglot    *polyglot.Framework
	Stdlib      *StdlibRegistry
	Config      *config.Config
	Audit       *safety.AuditLog

	callDepth *safety.CounterGuard
	frames    []naaberr.Frame
	log       *zap.Logger
}

// New builds an Evaluator around its already-constructed collaborators.
// Any of structs/funcCache/structCache/modules/polyglot/stdlib/audit may be
// nil; the evaluator degrades the corresponding feature (module `use`,
// generics, polyglot blocks, stdlib calls) to a runtime error rather than
// panicking, so a minimal evaluator can still run pure NAAb code. The GC
// heap is always constructed, sized from cfg, since the `gc_collect`
// built-in and the allocation-threshold trigger of spec §4.8 must work in
// every evaluator without extra setup.
func New(global *env.Environment, reg *structs.Registry, cfg *config.Config, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	heap := gc.NewHeap(log)
	heap.SetThreshold(cfg.GCThreshold)
	if !cfg.GCEnabled {
		heap.Disable()
	}
	e := &Evaluator{
		Global:    global,
		Structs:   reg,
		Config:    cfg,
		Heap:      heap,
		callDepth: safety.NewCounterGuard(cfg.CallDepthLimit, naaberr.StackOverflow, "call depth"),
		log:       log,
	}
	e.registerBuiltins()
	return e
}

// registerBuiltins binds the handful of names spec §4.8/§6 requires without
// a `use`: currently only gc_collect, the explicit-request GC trigger.
func (e *Evaluator) registerBuiltins() {
	e.Global.Define("gc_collect", value.MakeString(builtinGCCollectMarker))
}

// builtinGCCollectMarker is a call marker in the same spirit as the stdlib
// registry's (spec §6.3), but for names bound directly at global scope
// rather than behind a module alias.
const builtinGCCollectMarker = "__builtin_call__:gc_collect"

// callBuiltinGCCollect runs an explicit-request collection (spec §4.8,
// testable property 9): `gc_collect()` called from NAAb source with no
// `use`.
func (e *Evaluator) callBuiltinGCCollect(args []value.Value) (value.Value, error) {
	if len(args) != 0 {
		return nil, naaberr.Newf(naaberr.TypeError, "gc_collect expects 0 arguments, got %d", len(args))
	}
	if e.Heap != nil {
		e.Heap.Collect(e.gcRoots()...)
	}
	return value.NullValue, nil
}

// gcRoots is the GC mark phase's root set (spec §4.8/§9): the global
// environment plus every module's root environment.
func (e *Evaluator) gcRoots() []gc.Root {
	roots := make([]gc.Root, 0, 1+len(e.moduleRoots()))
	if e.Global != nil {
		roots = append(roots, e.Global)
	}
	for _, m := range e.moduleRoots() {
		roots = append(roots, m)
	}
	return roots
}

func (e *Evaluator) moduleRoots() []*env.Environment {
	if e.Modules == nil {
		return nil
	}
	return e.Modules.Roots()
}

// trackNew registers a freshly constructed container or struct instance
// with the heap and checks the allocation-count trigger (spec §4.8). It
// does not retain v; the binding or container slot that is about to hold it
// is responsible for that.
func (e *Evaluator) trackNew(v value.Value) value.Value {
	if e.Heap == nil {
		return v
	}
	if hv, ok := v.(value.Heapable); ok {
		e.Heap.Track(hv)
		e.Heap.MaybeCollect(e.gcRoots()...)
	}
	return v
}

// trackTree registers v and every Heapable value nested inside it (spec
// §4.6.1's deep copy produces a whole new subtree in one step, not one
// allocation at a time) and retains each, since each is now owned by
// exactly the parent that contains it.
func (e *Evaluator) trackTree(v value.Value) value.Value {
	if e.Heap == nil {
		return v
	}
	hv, ok := v.(value.Heapable)
	if !ok {
		return v
	}
	e.Heap.Track(hv)
	e.Heap.Retain(hv)
	hv.Traverse(func(child value.Value) { e.trackTree(child) })
	e.Heap.MaybeCollect(e.gcRoots()...)
	return v
}

// retain and release wrap the heap's reference counting; both are no-ops
// when the value isn't Heapable or no heap is configured.
func (e *Evaluator) retain(v value.Value) {
	if e.Heap != nil {
		e.Heap.Retain(v)
	}
}

func (e *Evaluator) release(v value.Value) {
	if e.Heap != nil {
		e.Heap.Release(v)
	}
}

// EvalTop evaluates a program's top-level declarations into modEnv: struct
// and enum registration, `use` resolution, and definition of exported
// functions/constants. It matches module.EvalFunc's signature so a Loader
// can call back into the evaluator without an import cycle (module does
// not import interp).
func (e *Evaluator) EvalTop(modEnv *env.Environment, program *ast.Node, filePath string) error {
	if program == nil {
		return nil
	}
	for _, item := range program.Children {
		if err := e.evalTopLevel(item, modEnv, filePath); err != nil {
			return err
		}
	}
	return nil
}

// RunMain evaluates the program's top-level items into e.Global, then runs
// the `main` block if present. The GC's shutdown trigger (spec §4.8: "at
// program shutdown") runs on every exit path, whether main completed,
// threw, or never ran at all.
func (e *Evaluator) RunMain(program *ast.Node, filePath string) error {
	if e.Heap != nil {
		defer func() { e.Heap.Collect(e.gcRoots()...) }()
	}

	var mainBlock *ast.Node
	for _, item := range program.Children {
		if item.Kind == ast.KindMain {
			mainBlock = item.Body
			continue
		}
		if err := e.evalTopLevel(item, e.Global, filePath); err != nil {
			return err
		}
	}
	if mainBlock == nil {
		return nil
	}
	sig, err := e.exec(mainBlock, env.New(e.Global))
	if err != nil {
		return err
	}
	if sig.kind == sigReturn || sig.kind == sigBreak || sig.kind == sigContinue {
		return naaberr.Newf(naaberr.ControlFlowError, "%v at top level outside a function/loop", sig.kind)
	}
	return nil
}

func (k sigKind) String() string {
	switch k {
	case sigReturn:
		return "return"
	case sigBreak:
		return "break"
	case sigContinue:
		return "continue"
	default:
		return "normal"
	}
}

// evalTopLevel handles the module-level item kinds of spec §6.4: use,
// export struct/enum/function/let, and main (main is handled by the
// caller, since only RunMain executes it; EvalTop, called for imported
// modules, skips it per spec §4.5 step 5's "registers structs, defines
// exported names").
func (e *Evaluator) evalTopLevel(item *ast.Node, into *env.Environment, filePath string) error {
	switch item.Kind {
	case ast.KindMain:
		return nil
	case ast.KindUse:
		return e.evalUse(item, into, filePath)
	case ast.KindStructDecl, ast.KindEnumDecl:
		return e.registerStructDecl(item)
	case ast.KindFuncDecl:
		into.Define(item.Name, e.makeFunc(item, into, filePath))
		return nil
	case ast.KindLetDecl:
		v, err := e.evalInitializer(item.Body, into)
		if err != nil {
			return err
		}
		if item.Type != nil {
			if err := e.checkType(item.Type, v); err != nil {
				return err
			}
		}
		into.Define(item.Name, v)
		e.retain(v)
		return nil
	default:
		return naaberr.Newf(naaberr.ParseError, "unexpected node kind %d at module top level", item.Kind)
	}
}
