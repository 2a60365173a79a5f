package safety

import (
	"fmt"
	"math"
	"strings"

	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/value"
)

// FFILimits bounds the validation performed before a captured value crosses
// the polyglot boundary (spec §4.7.2).
type FFILimits struct {
	MaxStringLen int64
	MaxDepth     int
	MaxPayload   int64
}

// DefaultFFILimits mirrors the spec's hard caps.
func DefaultFFILimits() FFILimits {
	return FFILimits{
		MaxStringLen: 1 * 1024 * 1024,
		MaxDepth:     100,
		MaxPayload:   10 * 1024 * 1024,
	}
}

// ValidateFFIValue rejects FFI-unsafe values before any foreign code runs,
// per spec §4.7.2 and testable property 10. It returns a PolyglotError of
// sub-kind "validation" on failure.
func ValidateFFIValue(v value.Value, limits FFILimits) error {
	size, err := validate(v, limits, 0)
	if err != nil {
		return err
	}
	if size > limits.MaxPayload {
		return polyglotValidationErr("serialized payload exceeds %d bytes", limits.MaxPayload)
	}
	return nil
}

func polyglotValidationErr(format string, args ...interface{}) error {
	return naaberr.NewPolyglot(naaberr.PolyglotValidation, fmt.Sprintf(format, args...), nil)
}

func validate(v value.Value, limits FFILimits, depth int) (int64, error) {
	if depth > limits.MaxDepth {
		return 0, polyglotValidationErr("container nesting exceeds maximum depth of %d", limits.MaxDepth)
	}
	switch t := v.(type) {
	case value.Sensitive:
		return validate(value.Unwrap(t), limits, depth)
	case value.Null:
		return 4, nil
	case value.Bool:
		return 1, nil
	case value.Int:
		return 8, nil
	case value.Float:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return 0, polyglotValidationErr("NaN and infinite floats cannot cross the FFI boundary")
		}
		return 8, nil
	case value.String:
		s := string(t)
		if int64(len(s)) > limits.MaxStringLen {
			return 0, polyglotValidationErr("string exceeds maximum length of %d bytes", limits.MaxStringLen)
		}
		if strings.ContainsRune(s, 0) {
			return 0, polyglotValidationErr("string contains an embedded null byte")
		}
		return int64(len(s)), nil
	case *value.List:
		var total int64
		for _, e := range t.Elems {
			sz, err := validate(e, limits, depth+1)
			if err != nil {
				return 0, err
			}
			total += sz
		}
		return total, nil
	case *value.Dict:
		var total int64
		for _, k := range t.Keys {
			sz, err := validate(t.Vals[k], limits, depth+1)
			if err != nil {
				return 0, err
			}
			total += int64(len(k)) + sz
		}
		return total, nil
	case *value.StructInstance:
		var total int64
		for _, f := range t.Fields {
			sz, err := validate(f, limits, depth+1)
			if err != nil {
				return 0, err
			}
			total += sz
		}
		return total, nil
	case *value.Func, value.BlockHandle:
		return 0, polyglotValidationErr("callables and block handles cannot cross the FFI boundary")
	default:
		return 0, polyglotValidationErr("unrecognized value kind for FFI")
	}
}
