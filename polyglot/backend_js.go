package polyglot

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/value"
)

// JSBackend is the in-process embedding of spec §4.7.1 for JavaScript,
// built on goja. A single *goja.Runtime is reused across calls (the spec's
// "persistent interpreter handle"); calls are serialized because goja
// runtimes are not safe for concurrent use.
type JSBackend struct {
	mu  sync.Mutex
	vm  *goja.Runtime
}

func NewJSBackend() *JSBackend {
	return &JSBackend{}
}

func (b *JSBackend) Initialize() error {
	b.vm = goja.New()
	return nil
}

func (b *JSBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vm = nil
	return nil
}

func (b *JSBackend) Execute(ctx context.Context, block Block, captured []Captured) error {
	_, err := b.run(ctx, block, captured, false)
	return err
}

func (b *JSBackend) ExecuteWithResult(ctx context.Context, block Block, captured []Captured) (value.Value, error) {
	return b.run(ctx, block, captured, true)
}

// run injects captures as global bindings, polls ctx between statements via
// goja's interrupt mechanism (spec §4.7.4: "in-process embeddings poll a
// cancellation flag between statements"), and evaluates either the last
// expression (wantResult) or the whole fragment for side effects.
func (b *JSBackend) run(ctx context.Context, block Block, captured []Captured, wantResult bool) (value.Value, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.vm == nil {
		return nil, naaberr.New(naaberr.PolyglotError, "javascript backend not initialized", nil)
	}

	for _, c := range captured {
		jv, err := toGoja(b.vm, value.Unwrap(c.Value))
		if err != nil {
			return nil, err
		}
		if err := b.vm.Set(c.Name, jv); err != nil {
			return nil, naaberr.New(naaberr.PolyglotError, "binding capture "+c.Name, err)
		}
	}

	stopInterrupt := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			b.vm.Interrupt("deadline exceeded")
		case <-stopInterrupt:
		}
	}()
	defer close(stopInterrupt)

	// goja's RunString always yields the value of the last completed
	// statement/expression, which is exactly spec §4.7.3's "evaluates the
	// last top-level expression" rule for in-process embeddings; no
	// wrapping is needed for JS the way subprocess languages require it.
	result, err := b.vm.RunString(block.Source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, naaberr.New(naaberr.PolyglotTimeout, "javascript execution interrupted", err)
		}
		if exc, ok := err.(*goja.Exception); ok {
			return nil, naaberr.NewPolyglot(naaberr.PolyglotRuntime, exc.String(), err)
		}
		return nil, naaberr.NewPolyglot(naaberr.PolyglotSyntax, err.Error(), err)
	}

	if !wantResult {
		return value.NullValue, nil
	}
	return fromGoja(result)
}

func toGoja(vm *goja.Runtime, v value.Value) (goja.Value, error) {
	switch t := v.(type) {
	case value.Null:
		return goja.Null(), nil
	case value.Bool:
		return vm.ToValue(bool(t)), nil
	case value.Int:
		return vm.ToValue(int64(t)), nil
	case value.Float:
		return vm.ToValue(float64(t)), nil
	case value.String:
		return vm.ToValue(string(t)), nil
	case *value.List:
		elems := make([]interface{}, len(t.Elems))
		for i, e := range t.Elems {
			jv, err := toGoja(vm, e)
			if err != nil {
				return nil, err
			}
			elems[i] = jv
		}
		return vm.ToValue(elems), nil
	case *value.Dict:
		out := map[string]interface{}{}
		for _, k := range t.Keys {
			jv, err := toGoja(vm, t.Vals[k])
			if err != nil {
				return nil, err
			}
			out[k] = jv
		}
		return vm.ToValue(out), nil
	case *value.StructInstance:
		out := map[string]interface{}{}
		for i, fd := range t.Def.Fields {
			jv, err := toGoja(vm, t.Fields[i])
			if err != nil {
				return nil, err
			}
			out[fd.Name] = jv
		}
		return vm.ToValue(out), nil
	default:
		return nil, naaberr.NewPolyglot(naaberr.PolyglotValidation, fmt.Sprintf("value kind %s cannot cross into javascript", v.Kind()), nil)
	}
}

func fromGoja(v goja.Value) (value.Value, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return value.NullValue, nil
	}
	exported := v.Export()
	return fromGoExported(exported)
}

func fromGoExported(v interface{}) (value.Value, error) {
	switch t := v.(type) {
	case nil:
		return value.NullValue, nil
	case bool:
		return value.MakeBool(t), nil
	case string:
		return value.MakeString(t), nil
	case int64:
		return value.MakeInt(t), nil
	case float64:
		if t == float64(int64(t)) {
			return value.MakeInt(int64(t)), nil
		}
		return value.MakeFloat(t), nil
	case []interface{}:
		elems := make([]value.Value, len(t))
		for i, e := range t {
			ev, err := fromGoExported(e)
			if err != nil {
				return nil, err
			}
			elems[i] = ev
		}
		return value.NewList(elems...), nil
	case map[string]interface{}:
		d := value.NewDict()
		for k, e := range t {
			ev, err := fromGoExported(e)
			if err != nil {
				return nil, err
			}
			if err := d.Set(k, ev); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, naaberr.NewPolyglot(naaberr.PolyglotType, fmt.Sprintf("unrecognized javascript return shape %T", v), nil)
	}
}
