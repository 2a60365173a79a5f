package interp

import (
	"context"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/polyglot"
	"github.com/naab-lang/naab/value"
)

// evalInitializer evaluates the right-hand side of a `let`/assignment,
// special-casing a bare polyglot block so its returned value is substituted
// in directly rather than binding a handle (spec §4.6.1).
func (e *Evaluator) evalInitializer(node *ast.Node, frame *env.Environment) (value.Value, error) {
	if node != nil && node.Kind == ast.KindPolyglotBlock {
		return e.evalPolyglotBlockResult(node, frame)
	}
	return e.Eval(node, frame)
}

// buildPolyglotBlock reads the captured variables named in node.Captures out
// of the enclosing scope and assembles the framework's wire shape.
func (e *Evaluator) buildPolyglotBlock(node *ast.Node, frame *env.Environment) (polyglot.Block, []polyglot.Captured, error) {
	block := polyglot.Block{Language: node.Lang, Source: node.SourceText, Captures: node.Captures, BlockID: node.BlockID}
	captured := make([]polyglot.Captured, len(node.Captures))
	for i, name := range node.Captures {
		v, err := frame.Lookup(name)
		if err != nil {
			return block, nil, err
		}
		captured[i] = polyglot.Captured{Name: name, Value: v}
	}
	return block, captured, nil
}

// evalPolyglotBlock runs a polyglot fragment for side effects, evaluating
// to an opaque handle (spec §3.1/§4.6.1). Used whenever a polyglot block
// isn't the direct initializer of a `let`/assignment.
func (e *Evaluator) evalPolyglotBlock(node *ast.Node, frame *env.Environment) (value.Value, error) {
	if e.Polyglot == nil {
		return nil, naaberr.New(naaberr.PolyglotError, "no polyglot framework configured", nil)
	}
	block, captured, err := e.buildPolyglotBlock(node, frame)
	if err != nil {
		return nil, err
	}
	if err := e.Polyglot.Run(context.Background(), block, captured, 0); err != nil {
		return nil, err
	}
	return value.BlockHandle{Lang: node.Lang, BlockID: node.BlockID}, nil
}

// evalPolyglotBlockResult runs a polyglot fragment and returns its parsed
// value, used when the block sits directly on the right-hand side of a
// `let`/assignment (spec §4.6.1: "the evaluator invokes the executor and
// substitutes the returned value").
func (e *Evaluator) evalPolyglotBlockResult(node *ast.Node, frame *env.Environment) (value.Value, error) {
	if e.Polyglot == nil {
		return nil, naaberr.New(naaberr.PolyglotError, "no polyglot framework configured", nil)
	}
	block, captured, err := e.buildPolyglotBlock(node, frame)
	if err != nil {
		return nil, err
	}
	return e.Polyglot.RunWithResult(context.Background(), block, captured, 0)
}
