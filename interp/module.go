package interp

import (
	"strings"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/value"
)

// evalUse resolves a `use` statement (spec §4.5): loads (or reuses the
// cached load of) the named module, snapshots its exported names, and
// binds that snapshot into the importing scope under the declared alias,
// or the path's last segment when no alias is given.
func (e *Evaluator) evalUse(item *ast.Node, into *env.Environment, filePath string) error {
	if e.Modules == nil {
		return naaberr.New(naaberr.ModuleNotFound, "no module loader configured", nil)
	}
	mod, err := e.Modules.Load(item.ModulePath, filePath)
	if err != nil {
		return err
	}
	bindName := item.Alias
	if bindName == "" {
		bindName = lastSegment(item.ModulePath)
	}
	into.Define(bindName, value.NewModule(mod.Path, mod.Env.Export()))
	return nil
}

func lastSegment(dotted string) string {
	if i := strings.LastIndexByte(dotted, '.'); i >= 0 {
		return dotted[i+1:]
	}
	return dotted
}
