// Package module implements the dotted-path module loader of spec §4.5:
// path resolution, load-once caching, cyclic-import handling and per-module
// environments.
package module

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/safety"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ParseFunc turns module source text into a program AST. The real lexer and
// parser are external collaborators (spec §1); the loader only depends on
// this narrow contract so it can be tested against hand-built or
// txtar-derived fixtures without a real NAAb parser.
type ParseFunc func(source, filePath string) (*ast.Node, error)

// EvalFunc evaluates a parsed module's top-level declarations into modEnv,
// registering structs and defining exported names (spec §4.5 step 5). It is
// supplied by the interp package, which owns the evaluator; module does not
// import interp to avoid a cycle.
type EvalFunc func(modEnv *env.Environment, program *ast.Node, filePath string) error

// Module is a loaded NAAb source file: its canonical path and root
// environment.
type Module struct {
	Path string
	Env  *env.Environment
}

const naabExt = ".naab"

// Loader resolves dotted module paths, maintains the load-once cache and
// cycle guard, and evaluates new modules on first load.
type Loader struct {
	mu          sync.Mutex
	cache       map[string]*Module
	loading     map[string]bool
	searchRoots []string
	baseDirs    []string
	maxFileSize int64

	parse   ParseFunc
	evalTop EvalFunc
	log     *zap.Logger
}

// Config bundles the loader's tunables.
type Config struct {
	SearchRoots []string
	BaseDirs    []string // restricts filesystem access, per safety.CanonicalizePath
	MaxFileSize int64
}

func New(cfg Config, parse ParseFunc, evalTop EvalFunc, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		cache:       map[string]*Module{},
		loading:     map[string]bool{},
		searchRoots: cfg.SearchRoots,
		baseDirs:    cfg.BaseDirs,
		maxFileSize: cfg.MaxFileSize,
		parse:       parse,
		evalTop:     evalTop,
		log:         log,
	}
}

// resolve converts a dotted module path to a candidate filesystem path,
// first relative to the importing file's directory, then each search root
// (spec §4.5 step 2).
func (l *Loader) resolve(dottedPath, fromFile string) (string, error) {
	rel := strings.ReplaceAll(dottedPath, ".", string(filepath.Separator)) + naabExt

	candidates := make([]string, 0, 1+len(l.searchRoots))
	if fromFile != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(fromFile), rel))
	}
	for _, root := range l.searchRoots {
		candidates = append(candidates, filepath.Join(root, rel))
	}

	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c, nil
		}
	}
	return "", naaberr.Newf(naaberr.ModuleNotFound, "module %q not found (tried %d location(s))", dottedPath, len(candidates))
}

// Load resolves dottedPath relative to fromFile, loading and evaluating it
// if this is the first time it's been seen, returning the cached module
// environment otherwise. A re-entrant load of a path still marked "loading"
// returns the partially populated environment without re-evaluating,
// breaking import cycles (spec §4.5 step 6, testable property 8).
func (l *Loader) Load(dottedPath, fromFile string) (*Module, error) {
	path, err := l.resolve(dottedPath, fromFile)
	if err != nil {
		return nil, err
	}

	canonical, err := safety.CanonicalizePath(path, l.baseDirs)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if m, ok := l.cache[canonical]; ok {
		l.mu.Unlock()
		return m, nil
	}
	if l.loading[canonical] {
		// Cycle: hand back the environment as it stands right now. The
		// consumer sees whatever had been defined at the time of re-entry.
		partial, ok := l.cache[canonical]
		l.mu.Unlock()
		if ok {
			return partial, nil
		}
		// Not yet in cache because the first load hasn't created the
		// environment yet; this only happens if Load races itself on the
		// same path from two import sites before the env is installed,
		// which can't occur in the single-threaded evaluator, but guard
		// anyway by returning an empty module rather than panicking.
		return &Module{Path: canonical, Env: env.NewRoot(canonical)}, nil
	}
	l.loading[canonical] = true
	l.mu.Unlock()

	m, err := l.loadFresh(canonical)

	l.mu.Lock()
	delete(l.loading, canonical)
	if err == nil {
		l.cache[canonical] = m
	}
	l.mu.Unlock()

	return m, err
}

func (l *Loader) loadFresh(canonical string) (*Module, error) {
	fi, err := os.Stat(canonical)
	if err != nil {
		return nil, naaberr.New(naaberr.IOError, "reading module", errors.WithStack(err))
	}
	if l.maxFileSize > 0 && fi.Size() > l.maxFileSize {
		return nil, naaberr.Newf(naaberr.ResourceLimit, "module file %s exceeds maximum size of %d bytes", canonical, l.maxFileSize)
	}

	src, err := os.ReadFile(canonical)
	if err != nil {
		return nil, naaberr.New(naaberr.IOError, "reading module", errors.WithStack(err))
	}

	program, err := l.parse(string(src), canonical)
	if err != nil {
		return nil, naaberr.New(naaberr.ParseError, "parsing module "+canonical, err)
	}

	modEnv := env.NewRoot(canonical)

	// Install the (still-empty) environment into the cache *before*
	// evaluating top-level declarations, so a re-entrant cyclic Load sees a
	// live, growing environment rather than nothing.
	l.mu.Lock()
	l.cache[canonical] = &Module{Path: canonical, Env: modEnv}
	l.mu.Unlock()

	if err := l.evalTop(modEnv, program, canonical); err != nil {
		l.mu.Lock()
		delete(l.cache, canonical)
		l.mu.Unlock()
		return nil, err
	}

	l.log.Debug("module loaded", zap.String("path", canonical))
	return &Module{Path: canonical, Env: modEnv}, nil
}

// Loaded reports whether canonicalPath is in the load cache, either fully
// loaded or still being evaluated (testable property 7: load-once, identity
// of exported definitions preserved across aliases).
func (l *Loader) Loaded(canonicalPath string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.cache[canonicalPath]
	return ok
}

// LoadCount reports how many distinct modules are cached, for tests.
func (l *Loader) LoadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}

// Roots returns the root environment of every module loaded so far. The GC
// mark phase walks these alongside the global environment (spec §4.8/§9:
// "the global environment and every module's root environment").
func (l *Loader) Roots() []*env.Environment {
	l.mu.Lock()
	defer l.mu.Unlock()
	roots := make([]*env.Environment, 0, len(l.cache))
	for _, m := range l.cache {
		roots = append(roots, m.Env)
	}
	return roots
}
