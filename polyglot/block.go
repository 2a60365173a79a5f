// Package polyglot implements the executor framework of spec §4.7: per-
// language backends behind a common interface, argument marshalling and
// validation, return-value parsing, timeout/cancellation, the exception
// boundary, secret zeroization and the host-side async wrapper.
package polyglot

import "github.com/naab-lang/naab/value"

// Block is the fixed shape of a polyglot fragment (spec §4.7.1): a
// language tag, its source text, the names of variables captured from the
// enclosing NAAb scope, and a stable id for logging/caching.
type Block struct {
	Language string
	Source   string
	Captures []string
	BlockID  string
}

// Captured pairs a capture name with the live NAAb value to marshal across
// the boundary.
type Captured struct {
	Name  string
	Value value.Value
}
