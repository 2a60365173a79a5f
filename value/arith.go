package value

import (
	"math"

	"github.com/naab-lang/naab/naaberr"
)

// Safe integer arithmetic (spec §4.1/§4.9): every operation is checked for
// overflow, underflow and the INT_MIN/-1 special case, failing with
// ArithmeticError rather than wrapping or invoking undefined behavior.

const (
	maxInt64 = math.MaxInt64
	minInt64 = math.MinInt64
)

func SafeAdd(a, b int64) (int64, error) {
	r := a + b
	if (b > 0 && r < a) || (b < 0 && r > a) {
		return 0, naaberr.Newf(naaberr.ArithmeticError, "integer overflow: %d + %d", a, b)
	}
	return r, nil
}

func SafeSub(a, b int64) (int64, error) {
	r := a - b
	if (b < 0 && r < a) || (b > 0 && r > a) {
		return 0, naaberr.Newf(naaberr.ArithmeticError, "integer overflow: %d - %d", a, b)
	}
	return r, nil
}

func SafeMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/b != a {
		return 0, naaberr.Newf(naaberr.ArithmeticError, "integer overflow: %d * %d", a, b)
	}
	if a == -1 && b == minInt64 || b == -1 && a == minInt64 {
		return 0, naaberr.Newf(naaberr.ArithmeticError, "integer overflow: %d * %d", a, b)
	}
	return r, nil
}

func SafeDiv(a, b int64) (int64, error) {
	if b == 0 {
		return 0, naaberr.New(naaberr.DivisionByZero, "division by zero", nil)
	}
	if a == minInt64 && b == -1 {
		return 0, naaberr.Newf(naaberr.ArithmeticError, "integer overflow: %d / %d", a, b)
	}
	return a / b, nil
}

func SafeMod(a, b int64) (int64, error) {
	if b == 0 {
		return 0, naaberr.New(naaberr.DivisionByZero, "modulo by zero", nil)
	}
	if a == minInt64 && b == -1 {
		return 0, naaberr.Newf(naaberr.ArithmeticError, "integer overflow: %d %% %d", a, b)
	}
	return a % b, nil
}

func SafeNeg(a int64) (int64, error) {
	if a == minInt64 {
		return 0, naaberr.Newf(naaberr.ArithmeticError, "integer overflow: -(%d)", a)
	}
	return -a, nil
}

// BinaryArith dispatches an int/float binary arithmetic op, mirroring the
// evaluator's operator table (spec §4.6.1). Mixed int/float promotes to
// float, matching ordinary numeric-tower behavior.
func BinaryArith(op string, l, r Value) (Value, error) {
	li, lIsInt := l.(Int)
	ri, rIsInt := r.(Int)
	if lIsInt && rIsInt {
		a, b := int64(li), int64(ri)
		switch op {
		case "+":
			v, err := SafeAdd(a, b)
			return Int(v), err
		case "-":
			v, err := SafeSub(a, b)
			return Int(v), err
		case "*":
			v, err := SafeMul(a, b)
			return Int(v), err
		case "/":
			v, err := SafeDiv(a, b)
			return Int(v), err
		case "%":
			v, err := SafeMod(a, b)
			return Int(v), err
		}
	}

	lf, ok1 := toFloat(l)
	rf, ok2 := toFloat(r)
	if !ok1 || !ok2 {
		return nil, naaberr.Newf(naaberr.TypeError, "unsupported operand types for %s: %s and %s", op, l.Kind(), r.Kind())
	}
	switch op {
	case "+":
		return Float(lf + rf), nil
	case "-":
		return Float(lf - rf), nil
	case "*":
		return Float(lf * rf), nil
	case "/":
		return Float(lf / rf), nil
	case "%":
		return Float(math.Mod(lf, rf)), nil
	}
	return nil, naaberr.Newf(naaberr.TypeError, "unknown operator %s", op)
}

func toFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case Int:
		return float64(t), true
	case Float:
		return float64(t), true
	default:
		return 0, false
	}
}

// Compare implements tri-valued comparison: -1/0/1, or ok=false when the
// operands are incomparable (e.g. NaN, which is never equal or ordered).
func Compare(l, r Value) (cmp int, ok bool) {
	lf, ok1 := toFloat(l)
	rf, ok2 := toFloat(r)
	if ok1 && ok2 {
		if math.IsNaN(lf) || math.IsNaN(rf) {
			return 0, false
		}
		switch {
		case lf < rf:
			return -1, true
		case lf > rf:
			return 1, true
		default:
			return 0, true
		}
	}
	ls, ok1 := l.(String)
	rs, ok2 := r.(String)
	if ok1 && ok2 {
		switch {
		case ls < rs:
			return -1, true
		case ls > rs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}
