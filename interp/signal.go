package interp

import "github.com/naab-lang/naab/value"

// sigKind discriminates the non-error statuses a statement can produce
// (spec §4.6: "normal, return(value), break, continue"). Throw is not a
// sigKind: it propagates as an ordinary Go error (*naaberr.Error), the same
// channel built-in evaluation errors already use, so try/catch has one
// thing to intercept rather than two.
type sigKind int

const (
	sigNormal sigKind = iota
	sigReturn
	sigBreak
	sigContinue
)

// signal carries a statement's control-flow outcome up through exec. Only
// sigReturn carries a payload.
type signal struct {
	kind  sigKind
	value value.Value
}

var normalSignal = signal{kind: sigNormal}

func (s signal) isNormal() bool { return s.kind == sigNormal }
