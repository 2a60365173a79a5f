package polyglot

import (
	"sync"

	"github.com/naab-lang/naab/naaberr"
)

// Registry holds the backends registered at core initialization, keyed by
// language_id (spec §4.7.1: "Backends are registered at core
// initialization").
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	kinds    map[string]Embedding
}

func NewRegistry() *Registry {
	return &Registry{backends: map[string]Backend{}, kinds: map[string]Embedding{}}
}

// Register installs backend under language, calling its Initialize hook.
func (r *Registry) Register(language string, backend Backend, kind Embedding) error {
	if err := backend.Initialize(); err != nil {
		return naaberr.New(naaberr.PolyglotError, "initializing "+language+" backend", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[language] = backend
	r.kinds[language] = kind
	return nil
}

// Lookup returns the backend for language, or a PolyglotError if no backend
// is registered for it.
func (r *Registry) Lookup(language string) (Backend, Embedding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[language]
	if !ok {
		return nil, 0, naaberr.Newf(naaberr.PolyglotError, "no backend registered for language %q", language)
	}
	return b, r.kinds[language], nil
}

// Languages lists the registered language ids, for diagnostics.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for l := range r.backends {
		out = append(out, l)
	}
	return out
}

// ShutdownAll calls Shutdown on every registered backend, collecting the
// first error encountered but still attempting the rest.
func (r *Registry) ShutdownAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var first error
	for lang, b := range r.backends {
		if err := b.Shutdown(); err != nil && first == nil {
			first = naaberr.New(naaberr.PolyglotError, "shutting down "+lang+" backend", err)
		}
	}
	return first
}
