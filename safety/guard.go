package safety

import (
	"sync"

	"github.com/naab-lang/naab/naaberr"
)

// CounterGuard is an RAII-style increment+check+decrement over a shared
// bounded counter (spec §4.9's "counter_guard(counter, max)"), used for the
// evaluator's call-depth limit and the parser-depth tracking it mirrors.
type CounterGuard struct {
	mu      sync.Mutex
	current int
	max     int
	kind    naaberr.Kind
	label   string
}

// NewCounterGuard builds a guard that raises kind (typically StackOverflow
// or ResourceLimit) once current exceeds max.
func NewCounterGuard(max int, kind naaberr.Kind, label string) *CounterGuard {
	return &CounterGuard{max: max, kind: kind, label: label}
}

// Enter increments the counter, failing if it would exceed max. The
// returned release func must be deferred by the caller to decrement on
// every exit path (normal, return, break, continue, throw).
func (g *CounterGuard) Enter() (release func(), err error) {
	g.mu.Lock()
	if g.current >= g.max {
		g.mu.Unlock()
		return func() {}, naaberr.Newf(g.kind, "%s exceeded limit of %d", g.label, g.max)
	}
	g.current++
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		g.current--
		g.mu.Unlock()
	}, nil
}

// Depth returns the current counter value, mainly for tests.
func (g *CounterGuard) Depth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}
