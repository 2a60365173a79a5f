package polyglot

import (
	"context"

	"github.com/naab-lang/naab/value"
)

// Backend is the per-language contract of spec §4.7.1. Execute runs a
// block for side effects only; ExecuteWithResult runs it and parses a
// single returned value. Both accept a deadline-bound context so the
// framework can enforce §4.7.4's cancellation uniformly across in-process
// and subprocess backends.
type Backend interface {
	Initialize() error
	Execute(ctx context.Context, block Block, captured []Captured) error
	ExecuteWithResult(ctx context.Context, block Block, captured []Captured) (value.Value, error)
	Shutdown() error
}

// Embedding distinguishes the two strategies of spec §4.7.1, mainly so the
// framework can log which one served a given language.
type Embedding int

const (
	EmbeddingInProcess Embedding = iota
	EmbeddingSubprocess
)

func (e Embedding) String() string {
	if e == EmbeddingInProcess {
		return "in_process"
	}
	return "subprocess"
}
