package safety

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naab-lang/naab/config"
	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/structs"
	"github.com/naab-lang/naab/value"
)

func TestCounterGuardEnterAndRelease(t *testing.T) {
	g := NewCounterGuard(2, naaberr.StackOverflow, "call depth")

	release1, err := g.Enter()
	require.NoError(t, err)
	assert.Equal(t, 1, g.Depth())

	release2, err := g.Enter()
	require.NoError(t, err)
	assert.Equal(t, 2, g.Depth())

	_, err = g.Enter()
	assert.Error(t, err)

	release2()
	assert.Equal(t, 1, g.Depth())
	release1()
	assert.Equal(t, 0, g.Depth())
}

func TestCanonicalizePathRejectsNullByteAndControlChars(t *testing.T) {
	_, err := CanonicalizePath("foo\x00bar", nil)
	assert.Error(t, err)

	_, err = CanonicalizePath("foo\x01bar", nil)
	assert.Error(t, err)
}

func TestCanonicalizePathWithinBaseDirSucceeds(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.naab")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	resolved, err := CanonicalizePath(target, []string{dir})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(resolved))
}

func TestCanonicalizePathEscapingBaseDirFails(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(dir, "..", "escaped.naab")

	_, err := CanonicalizePath(outside, []string{dir})
	assert.Error(t, err)
}

func TestValidateFFIValuePrimitives(t *testing.T) {
	limits := DefaultFFILimits()
	assert.NoError(t, ValidateFFIValue(value.MakeInt(1), limits))
	assert.NoError(t, ValidateFFIValue(value.MakeString("ok"), limits))
	assert.Error(t, ValidateFFIValue(value.MakeFloat(0), FFILimits{MaxStringLen: 10, MaxDepth: 10, MaxPayload: 4}))
}

func TestValidateFFIValueRejectsNaNAndInf(t *testing.T) {
	limits := DefaultFFILimits()
	assert.Error(t, ValidateFFIValue(value.Float(nan()), limits))
	assert.Error(t, ValidateFFIValue(value.Float(inf()), limits))
}

func TestValidateFFIValueRejectsCallablesAndBlockHandles(t *testing.T) {
	limits := DefaultFFILimits()
	assert.Error(t, ValidateFFIValue(&value.Func{Name: "f"}, limits))
	assert.Error(t, ValidateFFIValue(value.BlockHandle{Lang: "py", BlockID: "b1"}, limits))
}

func TestValidateFFIValueUnwrapsSensitive(t *testing.T) {
	limits := DefaultFFILimits()
	wrapped := value.MarkSensitive(value.MakeString("secret"))
	assert.NoError(t, ValidateFFIValue(wrapped, limits))
}

func TestValidateFFIValueEnforcesStringLenAndDepth(t *testing.T) {
	tight := FFILimits{MaxStringLen: 4, MaxDepth: 100, MaxPayload: 1024}
	assert.Error(t, ValidateFFIValue(value.MakeString("toolong"), tight))

	shallow := FFILimits{MaxStringLen: 1024, MaxDepth: 1, MaxPayload: 1024}
	nested := value.NewList(value.NewList(value.MakeInt(1)))
	assert.Error(t, ValidateFFIValue(nested, shallow))
}

func TestValidateFFIValueEnforcesPayloadCap(t *testing.T) {
	tiny := FFILimits{MaxStringLen: 1024, MaxDepth: 10, MaxPayload: 4}
	assert.Error(t, ValidateFFIValue(value.MakeString("12345"), tiny))
}

func TestValidateFFIValueStructInstance(t *testing.T) {
	limits := DefaultFFILimits()
	def := &structs.StructDef{Name: "Point", Fields: []structs.FieldDesc{{Name: "x"}}}
	inst, err := value.NewStructInstance(def, map[string]value.Value{"x": value.MakeInt(1)})
	require.NoError(t, err)
	assert.NoError(t, ValidateFFIValue(inst, limits))
}

func TestSanitizeDevelopmentReturnsUnchanged(t *testing.T) {
	e := &naaberr.Error{Kind: naaberr.IOError, Message: "/repo/secrets/password=hunter2"}
	out := Sanitize(e, config.ModeDevelopment, "/repo")
	assert.Equal(t, e.Message, out.Message)
}

func TestSanitizeProductionRedactsSecretsAndPaths(t *testing.T) {
	e := &naaberr.Error{
		Kind:    naaberr.IOError,
		Message: "/repo/app/config: password=hunter2 at 0xdeadbeefcafe",
		Stack:   []naaberr.Frame{{FunctionName: "load", FilePath: "/repo/app/config.go", Line: 10}},
	}
	out := Sanitize(e, config.ModeProduction, "/repo")
	assert.NotContains(t, out.Message, "/repo")
	assert.NotContains(t, out.Message, "hunter2")
	assert.NotContains(t, out.Message, "0xdeadbeefcafe")
	require.Len(t, out.Stack, 1)
	assert.NotContains(t, out.Stack[0].FilePath, "/repo")
}

func TestSanitizeStrictSuppressesStack(t *testing.T) {
	e := &naaberr.Error{
		Kind:    naaberr.IOError,
		Message: "boom",
		Stack:   []naaberr.Frame{{FunctionName: "load", FilePath: "/repo/app/config.go", Line: 10}},
	}
	out := Sanitize(e, config.ModeStrict, "/repo")
	assert.Nil(t, out.Stack)
}

func TestAuditLogAppendChainsAndVerifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := OpenAuditLog(path, "", nil)
	require.NoError(t, err)

	require.NoError(t, log.Append("ffi_validation_failed", map[string]interface{}{"lang": "py"}))
	require.NoError(t, log.Append("path_violation", map[string]interface{}{"path": "../x"}))
	require.NoError(t, log.Close())

	intact, err := Verify(path, "")
	require.NoError(t, err)
	assert.Equal(t, 2, intact)
}

func TestAuditLogVerifyWithHMAC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := OpenAuditLog(path, "shared-key", nil)
	require.NoError(t, err)
	require.NoError(t, log.Append("timeout", map[string]interface{}{"ms": 500}))
	require.NoError(t, log.Close())

	intact, err := Verify(path, "shared-key")
	require.NoError(t, err)
	assert.Equal(t, 1, intact)

	intact, err = Verify(path, "wrong-key")
	require.NoError(t, err)
	assert.Equal(t, 0, intact)
}

func TestAuditLogReopenContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log1, err := OpenAuditLog(path, "", nil)
	require.NoError(t, err)
	require.NoError(t, log1.Append("a", nil))
	require.NoError(t, log1.Close())

	log2, err := OpenAuditLog(path, "", nil)
	require.NoError(t, err)
	require.NoError(t, log2.Append("b", nil))
	require.NoError(t, log2.Close())

	intact, err := Verify(path, "")
	require.NoError(t, err)
	assert.Equal(t, 2, intact)
}

func TestCompileSafeRejectsNestedQuantifiers(t *testing.T) {
	_, err := CompileSafe(`(a+)+`, DefaultRegexLimits())
	assert.Error(t, err)
}

func TestCompileSafeRejectsOverlongPattern(t *testing.T) {
	limits := RegexLimits{MaxPatternLen: 4, Timeout: DefaultRegexLimits().Timeout}
	_, err := CompileSafe(`abcdef`, limits)
	assert.Error(t, err)
}

func TestCompileSafeAcceptsOrdinaryPattern(t *testing.T) {
	re, err := CompileSafe(`[a-z]+@[a-z]+\.com`, DefaultRegexLimits())
	require.NoError(t, err)
	assert.True(t, re.MatchString("user@example.com"))
}

func TestRunEnforcesTimeout(t *testing.T) {
	re, err := CompileSafe(`[a-z]+`, DefaultRegexLimits())
	require.NoError(t, err)

	limits := DefaultRegexLimits()
	limits.Timeout = 0
	_, err = Run(context.Background(), re, "abcdef", limits)
	assert.Error(t, err)
}

func TestRunRejectsOversizedInput(t *testing.T) {
	re, err := CompileSafe(`a`, DefaultRegexLimits())
	require.NoError(t, err)

	limits := DefaultRegexLimits()
	limits.MaxInput = 2
	_, err = Run(context.Background(), re, "aaaa", limits)
	assert.Error(t, err)
}

func TestRunReturnsMatches(t *testing.T) {
	re, err := CompileSafe(`a`, DefaultRegexLimits())
	require.NoError(t, err)

	matches, err := Run(context.Background(), re, "banana", DefaultRegexLimits())
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func nan() float64 { var zero float64; return zero / zero }
func inf() float64 { var one, zero float64 = 1, 0; return one / zero }
