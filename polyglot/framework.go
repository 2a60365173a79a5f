package polyglot

import (
	"context"
	"time"

	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/safety"
	"github.com/naab-lang/naab/value"
	"go.uber.org/zap"
)

// Framework ties the registry, FFI validation, the audit log and the
// exception boundary together into the single entry point the evaluator
// calls for a polyglot block (spec §4.7).
type Framework struct {
	registry    *Registry
	ffiLimits   safety.FFILimits
	defaultTTL  time.Duration
	audit       *safety.AuditLog
	log         *zap.Logger
}

// NewFramework wires a Framework around an already-populated Registry.
// audit may be nil (no-op logging).
func NewFramework(registry *Registry, ffiLimits safety.FFILimits, defaultTimeout time.Duration, audit *safety.AuditLog, log *zap.Logger) *Framework {
	if log == nil {
		log = zap.NewNop()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Framework{registry: registry, ffiLimits: ffiLimits, defaultTTL: defaultTimeout, audit: audit, log: log}
}

// Run executes block for side effects (no return value consumed).
func (f *Framework) Run(ctx context.Context, block Block, captures []Captured, timeout time.Duration) error {
	backend, kind, err := f.registry.Lookup(block.Language)
	if err != nil {
		return err
	}
	if err := f.validate(captures); err != nil {
		f.logAudit("ffi_validation_failure", block, err)
		return err
	}
	defer f.zeroize(captures)

	runCtx, cancel := f.deadline(ctx, timeout)
	defer cancel()

	f.log.Debug("polyglot execute", zap.String("lang", block.Language), zap.String("embedding", kind.String()), zap.String("block_id", block.BlockID))
	err = backend.Execute(runCtx, block, captures)
	return f.classify(block, runCtx, err)
}

// RunWithResult executes block and returns its parsed value.
func (f *Framework) RunWithResult(ctx context.Context, block Block, captures []Captured, timeout time.Duration) (value.Value, error) {
	backend, kind, err := f.registry.Lookup(block.Language)
	if err != nil {
		return nil, err
	}
	if err := f.validate(captures); err != nil {
		f.logAudit("ffi_validation_failure", block, err)
		return nil, err
	}
	defer f.zeroize(captures)

	runCtx, cancel := f.deadline(ctx, timeout)
	defer cancel()

	f.log.Debug("polyglot execute_with_result", zap.String("lang", block.Language), zap.String("embedding", kind.String()), zap.String("block_id", block.BlockID))
	result, err := backend.ExecuteWithResult(runCtx, block, captures)
	if err != nil {
		return nil, f.classify(block, runCtx, err)
	}
	return result, nil
}

func (f *Framework) deadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = f.defaultTTL
	}
	return context.WithTimeout(ctx, timeout)
}

func (f *Framework) validate(captures []Captured) error {
	for _, c := range captures {
		if err := safety.ValidateFFIValue(value.Unwrap(c.Value), f.ffiLimits); err != nil {
			return err
		}
	}
	return nil
}

// zeroize drops the plaintext of every sensitive capture after dispatch
// (spec §4.7.6), by releasing our only reference to the unwrapped value so
// nothing but the Sensitive box (and, once the backend call returns, not
// even that) keeps it alive in host memory. Go has no way to scrub a
// string's backing bytes in place without unsafe code, so this is
// best-effort: it disposes of the reference the framework itself holds.
func (f *Framework) zeroize(captures []Captured) {
	for i := range captures {
		if value.IsSensitive(captures[i].Value) {
			captures[i].Value = nil
		}
	}
}

// classify turns a raw backend error into a tagged PolyglotError per spec
// §4.7.5, distinguishing timeout (context deadline), from the backend's own
// classification (already a *naaberr.Error with a sub-kind, if the backend
// knew better) and a generic runtime failure otherwise.
func (f *Framework) classify(block Block, ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		classified := naaberr.New(naaberr.PolyglotTimeout, "execution of "+block.Language+" block timed out", err)
		f.logAudit("polyglot_timeout", block, classified)
		return classified
	}
	if ne, ok := err.(*naaberr.Error); ok {
		f.logAudit("polyglot_error", block, ne)
		return ne
	}
	classified := naaberr.NewPolyglot(naaberr.PolyglotRuntime, err.Error(), err)
	f.logAudit("polyglot_error", block, classified)
	return classified
}

func (f *Framework) logAudit(kind string, block Block, err error) {
	if f.audit == nil {
		return
	}
	payload := map[string]interface{}{
		"language": block.Language,
		"block_id": block.BlockID,
		"message":  err.Error(),
	}
	if aerr := f.audit.Append(kind, payload); aerr != nil {
		f.log.Warn("audit log append failed", zap.Error(aerr))
	}
}
