// Package naaberr implements the tagged error taxonomy of spec §7. Unlike an
// exception class hierarchy, the runtime error is a single record type; catch
// matches by Kind label when the user asks for it, or binds unconditionally.
package naaberr

import (
	"fmt"
	"strings"

	"github.com/naab-lang/naab/ast"
	pkgerrors "github.com/pkg/errors"
)

// Kind is one of the fixed error tags from spec §7.
type Kind string

const (
	TypeError          Kind = "TypeError"
	UndefinedName      Kind = "UndefinedName"
	IndexError         Kind = "IndexError"
	KeyError           Kind = "KeyError"
	ArithmeticError    Kind = "ArithmeticError"
	DivisionByZero     Kind = "DivisionByZero"
	TypeInferenceError Kind = "TypeInferenceError"
	TypeCycleError     Kind = "TypeCycleError"
	NullAccess         Kind = "NullAccess"
	StackOverflow      Kind = "StackOverflow"
	ResourceLimit      Kind = "ResourceLimit"
	PolyglotError      Kind = "PolyglotError"
	PolyglotTimeout    Kind = "PolyglotTimeout"
	IOError            Kind = "IOError"
	PathSecurityError  Kind = "PathSecurityError"
	ParseError         Kind = "ParseError"
	ModuleNotFound     Kind = "ModuleNotFound"
	RegexComplexity    Kind = "RegexComplexity"
	UserError          Kind = "UserError"
	ControlFlowError   Kind = "ControlFlowError"
)

// Frame is a single captured stack frame (spec §3.5).
type Frame struct {
	FunctionName string
	FilePath     string
	Line         int
	Column       int
}

func (f Frame) String() string {
	return fmt.Sprintf("%s (%s:%d:%d)", f.FunctionName, f.FilePath, f.Line, f.Column)
}

// Error is the tagged record of spec §3.4. Payload carries the value thrown
// by a user `throw`; Cause carries a wrapped host-side/FFI error.
type Error struct {
	Kind    Kind
	Message string
	Payload interface{}
	Stack   []Frame
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind, wrapping cause (if any) with
// pkg/errors so the original Go-level stack is retained for development-mode
// diagnostics (see safety.Sanitize).
func New(kind Kind, message string, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = pkgerrors.Wrap(cause, message)
	}
	return &Error{Kind: kind, Message: message, Cause: wrapped}
}

// Newf is New with fmt-style formatting of the message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// PolyglotSubKind classifies a PolyglotError per spec §6.2/§4.7.5.
type PolyglotSubKind string

const (
	PolyglotSyntax     PolyglotSubKind = "syntax"
	PolyglotRuntime    PolyglotSubKind = "runtime"
	PolyglotTimeoutSub PolyglotSubKind = "timeout"
	PolyglotType       PolyglotSubKind = "type"
	PolyglotSize       PolyglotSubKind = "size"
	PolyglotValidation PolyglotSubKind = "validation"
)

// NewPolyglot builds a PolyglotError tagged with its classification
// sub-kind, carrying the foreign stack excerpt (if any) as Cause.
func NewPolyglot(sub PolyglotSubKind, message string, foreignStack error) *Error {
	e := New(PolyglotError, message, foreignStack)
	e.Payload = sub
	return e
}

// SubKind extracts the PolyglotSubKind from an Error built by NewPolyglot,
// or "" if e is not a classified PolyglotError.
func (e *Error) SubKind() PolyglotSubKind {
	sub, _ := e.Payload.(PolyglotSubKind)
	return sub
}

// WithPayload attaches a thrown value (used for UserError) and returns e.
func (e *Error) WithPayload(v interface{}) *Error {
	e.Payload = v
	return e
}

// PushFrame prepends a frame, so Stack reads most-recent-first as required
// by spec §4.6.5 ("emits a formatted stack trace (most-recent first)").
func (e *Error) PushFrame(f Frame) {
	e.Stack = append([]Frame{f}, e.Stack...)
}

// FrameFromPos builds a Frame from an AST position and enclosing function
// name, the shape the evaluator pushes on every call (spec §4.6).
func FrameFromPos(functionName string, pos ast.Position) Frame {
	return Frame{FunctionName: functionName, FilePath: pos.File, Line: pos.Line, Column: pos.Column}
}

// FormatStack renders the captured frames most-recent-first, one per line,
// for the uncaught-at-root trace of spec §4.6.5.
func (e *Error) FormatStack() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", e.Error())
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "\tat %s\n", f)
	}
	return b.String()
}

// Is supports errors.Is matching purely on Kind, which is how `catch (e:
// TypeError)` filters are implemented by the evaluator.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}
