package polyglot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/safety"
	"github.com/naab-lang/naab/value"
)

type stubBackend struct {
	sleep   time.Duration
	fail    error
	result  value.Value
	shutErr error
}

func (b *stubBackend) Initialize() error { return nil }
func (b *stubBackend) Execute(ctx context.Context, block Block, captured []Captured) error {
	return b.run(ctx)
}
func (b *stubBackend) ExecuteWithResult(ctx context.Context, block Block, captured []Captured) (value.Value, error) {
	if err := b.run(ctx); err != nil {
		return nil, err
	}
	return b.result, nil
}
func (b *stubBackend) Shutdown() error { return b.shutErr }

func (b *stubBackend) run(ctx context.Context) error {
	if b.sleep > 0 {
		select {
		case <-time.After(b.sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return b.fail
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("py", &stubBackend{}, EmbeddingSubprocess))

	backend, kind, err := reg.Lookup("py")
	require.NoError(t, err)
	assert.NotNil(t, backend)
	assert.Equal(t, EmbeddingSubprocess, kind)
	assert.Equal(t, "subprocess", kind.String())
	assert.Contains(t, reg.Languages(), "py")
}

func TestRegistryLookupUnknownLanguageFails(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Lookup("nope")
	assert.Error(t, err)
}

func TestRegistryShutdownAllCollectsFirstError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, reg.Register("a", &stubBackend{}, EmbeddingInProcess))
	require.NoError(t, reg.Register("b", &stubBackend{shutErr: boom}, EmbeddingInProcess))

	err := reg.ShutdownAll()
	assert.Error(t, err)
}

func testFramework(t *testing.T, backend Backend) *Framework {
	reg := NewRegistry()
	require.NoError(t, reg.Register("lang", backend, EmbeddingInProcess))
	return NewFramework(reg, safety.FFILimits{MaxStringLen: 1 << 20, MaxDepth: 10, MaxPayload: 1 << 20}, 0, nil, nil)
}

func TestFrameworkRunWithResultReturnsBackendValue(t *testing.T) {
	f := testFramework(t, &stubBackend{result: value.MakeInt(9)})
	v, err := f.RunWithResult(context.Background(), Block{Language: "lang"}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, value.Int(9), v)
}

func TestFrameworkRunUnknownLanguageFails(t *testing.T) {
	f := testFramework(t, &stubBackend{})
	err := f.Run(context.Background(), Block{Language: "other"}, nil, 0)
	assert.Error(t, err)
}

func TestFrameworkValidatesCapturesBeforeDispatch(t *testing.T) {
	f := testFramework(t, &stubBackend{})
	captures := []Captured{{Name: "fn", Value: &value.Func{Name: "f"}}}
	err := f.Run(context.Background(), Block{Language: "lang"}, captures, 0)
	assert.Error(t, err, "a callable capture must be rejected before the backend ever runs")
}

func TestFrameworkClassifiesTimeoutAsPolyglotTimeout(t *testing.T) {
	f := testFramework(t, &stubBackend{sleep: 50 * time.Millisecond})
	err := f.Run(context.Background(), Block{Language: "lang"}, nil, 5*time.Millisecond)
	require.Error(t, err)
	nerr, ok := err.(*naaberr.Error)
	require.True(t, ok)
	assert.Equal(t, naaberr.PolyglotTimeout, nerr.Kind)
}

func TestFrameworkClassifiesGenericBackendErrorAsPolyglotRuntime(t *testing.T) {
	f := testFramework(t, &stubBackend{fail: errors.New("syntax error")})
	err := f.Run(context.Background(), Block{Language: "lang"}, nil, 0)
	require.Error(t, err)
	nerr, ok := err.(*naaberr.Error)
	require.True(t, ok)
	assert.Equal(t, naaberr.PolyglotError, nerr.Kind)
	assert.Equal(t, naaberr.PolyglotRuntime, nerr.SubKind())
}

func TestFrameworkPassesThroughAlreadyTaggedBackendError(t *testing.T) {
	tagged := naaberr.New(naaberr.PolyglotError, "bad syntax", nil)
	f := testFramework(t, &stubBackend{fail: tagged})
	err := f.Run(context.Background(), Block{Language: "lang"}, nil, 0)
	assert.Same(t, tagged, err)
}

func TestPoolSubmitAndWait(t *testing.T) {
	pool := NewPool(2)
	future := pool.Submit(context.Background(), func(ctx context.Context) (value.Value, error) {
		return value.MakeInt(5), nil
	})
	v, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, value.Int(5), v)
	assert.True(t, future.Done())
}

func TestFutureCancelPropagatesToTask(t *testing.T) {
	pool := NewPool(1)
	future := pool.Submit(context.Background(), func(ctx context.Context) (value.Value, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	future.Cancel()
	_, err := future.Wait(context.Background())
	assert.Error(t, err)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	v, err := Retry(context.Background(), 3, time.Millisecond, func(ctx context.Context) (value.Value, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return value.MakeInt(1), nil
	})
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), v)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	lastErr := errors.New("still failing")
	_, err := Retry(context.Background(), 2, time.Millisecond, func(ctx context.Context) (value.Value, error) {
		return nil, lastErr
	})
	assert.Equal(t, lastErr, err)
}

func TestParallelRunsAllAndPreservesOrder(t *testing.T) {
	pool := NewPool(4)
	tasks := []Task{
		func(ctx context.Context) (value.Value, error) { return value.MakeInt(1), nil },
		func(ctx context.Context) (value.Value, error) { return value.MakeInt(2), nil },
		func(ctx context.Context) (value.Value, error) { return nil, errors.New("nope") },
	}
	results := Parallel(context.Background(), pool, tasks)
	require.Len(t, results, 3)
	assert.Equal(t, value.Int(1), results[0].Value)
	assert.Equal(t, value.Int(2), results[1].Value)
	assert.Error(t, results[2].Err)
}

func TestRaceReturnsFirstSuccess(t *testing.T) {
	pool := NewPool(4)
	tasks := []Task{
		func(ctx context.Context) (value.Value, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		func(ctx context.Context) (value.Value, error) { return value.MakeInt(7), nil },
	}
	v, err := Race(context.Background(), pool, tasks)
	require.NoError(t, err)
	assert.Equal(t, value.Int(7), v)
}

func TestRaceReturnsLastErrorWhenAllFail(t *testing.T) {
	pool := NewPool(2)
	tasks := []Task{
		func(ctx context.Context) (value.Value, error) { return nil, errors.New("a") },
		func(ctx context.Context) (value.Value, error) { return nil, errors.New("b") },
	}
	_, err := Race(context.Background(), pool, tasks)
	assert.Error(t, err)
}
