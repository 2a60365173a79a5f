package polyglot

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/value"
)

// looksComplete heuristically detects whether source is already a full
// program for languages that otherwise need enclosing scaffolding (spec
// §4.7.7): presence of a main/class/package/module declaration.
var completeProgramMarkers = map[string]*regexp.Regexp{
	"python": regexp.MustCompile(`(?m)^\s*(class\s+\w|def\s+main\s*\(|if\s+__name__\s*==)`),
	"ruby":   regexp.MustCompile(`(?m)^\s*(class\s+\w|module\s+\w)`),
	"go":     regexp.MustCompile(`(?m)^\s*package\s+\w`),
	"rust":   regexp.MustCompile(`(?m)^\s*(fn\s+main\s*\(|mod\s+\w)`),
	"cpp":    regexp.MustCompile(`(?m)^\s*(int\s+main\s*\(|class\s+\w)`),
	"csharp": regexp.MustCompile(`(?m)(class\s+\w|namespace\s+\w)`),
}

func looksComplete(lang, source string) bool {
	re, ok := completeProgramMarkers[lang]
	return ok && re.MatchString(source)
}

// wrapFragment wraps a bare expression/statement fragment in the minimal
// scaffolding each subprocess language needs to compile and run (spec
// §4.7.7). When wantResult is true, the final expression's value is also
// printed as JSON on its own stdout line so the host can recover it (spec
// §4.7.3). prologue (built by buildPrologue) is spliced in immediately
// after the main/class opening that wrapFragment adds, so captured
// variables are in scope for the user's fragment under their original
// names (spec §6.2). A source that already looks like a complete program is
// returned with the prologue prepended to it unchanged.
func wrapFragment(lang, source, prologue string, wantResult bool) string {
	trimmed := strings.TrimRight(source, " \t\n")
	if looksComplete(lang, source) {
		return prologue + source
	}
	switch lang {
	case "python":
		if !wantResult {
			return prologue + trimmed + "\n"
		}
		lines := strings.Split(trimmed, "\n")
		last := strings.TrimSpace(lines[len(lines)-1])
		if last != "" && !looksLikeStatement(last) {
			lines[len(lines)-1] = "import json as __naab_json\n__naab_result = (" + last + ")\nprint(__naab_json.dumps(__naab_result))"
			return prologue + strings.Join(lines, "\n")
		}
		return prologue + trimmed + "\n"
	case "ruby":
		if !wantResult {
			return "require 'json'\n" + prologue + trimmed + "\n"
		}
		return "require 'json'\n" + prologue + "__naab_result = begin\n" + trimmed + "\nend\nputs __naab_result.to_json\n"
	case "shell", "bash":
		return prologue + trimmed + "\n"
	case "cpp":
		// Statically typed compiled languages can't reliably have their
		// final expression's type inferred and auto-printed the way the
		// dynamic interpreted backends do; execute_with_result for these
		// relies on the fragment itself printing its JSON result (a
		// documented scope limit, see DESIGN.md).
		return "#include <iostream>\nint main(){\n" + prologue + trimmed + "\nreturn 0;\n}\n"
	case "rust":
		return "fn main(){\n" + prologue + trimmed + "\n}\n"
	case "csharp":
		return "using System;\nclass __NaabProgram { static void Main() {\n" + prologue + trimmed + "\n} }\n"
	case "go":
		return "package main\nimport \"fmt\"\nfunc main(){\n" + prologue + trimmed + "\n_ = fmt.Sprint\n}\n"
	default:
		return prologue + trimmed
	}
}

// looksLikeStatement is a crude heuristic (spec §4.7.3: "multi-statement
// sources where the final token is a statement are detected") for whether
// the final line of a Python fragment is a standalone statement (assignment,
// control flow, import, `print`) rather than a value-producing expression.
func looksLikeStatement(line string) bool {
	for _, kw := range []string{"import ", "return ", "if ", "for ", "while ", "def ", "class ", "print(", "raise "} {
		if strings.HasPrefix(line, kw) {
			return true
		}
	}
	return strings.Contains(line, " = ") && !strings.Contains(line, "==")
}

// buildPrologue generates the "small prologue" spec §6.2 requires:
// subprocess backends receive captures via NAAB_CAP_<name> environment
// variables, but user code must see the original NAAb identifier, not the
// prefixed form. For interpreted languages the prologue decodes the JSON
// payload from the environment into a same-named local binding. Compiled
// languages (no JSON library assumed available) get the literal inlined
// directly for scalar kinds; container captures are left as a raw JSON
// string binding for the user to parse, a documented scope limit (see
// DESIGN.md).
func buildPrologue(lang string, captured []Captured) (string, error) {
	switch lang {
	case "python":
		var b strings.Builder
		b.WriteString("import json as __naab_json, os as __naab_os\n")
		for _, c := range captured {
			fmt.Fprintf(&b, "%s = __naab_json.loads(__naab_os.environ[%q])\n", c.Name, "NAAB_CAP_"+c.Name)
		}
		return b.String(), nil
	case "ruby":
		var b strings.Builder
		b.WriteString("require 'json'\n")
		for _, c := range captured {
			fmt.Fprintf(&b, "%s = JSON.parse(ENV[%q])\n", c.Name, "NAAB_CAP_"+c.Name)
		}
		return b.String(), nil
	case "shell", "bash":
		var b strings.Builder
		for _, c := range captured {
			fmt.Fprintf(&b, "%s=\"${NAAB_CAP_%s}\"\n", c.Name, c.Name)
		}
		return b.String(), nil
	case "cpp", "rust", "csharp", "go":
		return buildScalarPrologue(lang, captured)
	default:
		return "", nil
	}
}

// buildScalarPrologue inlines scalar captures (int/float/bool/string) as
// source-level literal declarations for compiled languages, since assuming
// a JSON library is available in the user's toolchain isn't safe. Non-
// scalar captures fall back to a raw JSON string literal under the same
// name, left for the fragment to parse itself if it needs to.
func buildScalarPrologue(lang string, captured []Captured) (string, error) {
	var b strings.Builder
	for _, c := range captured {
		raw, err := MarshalCaptured(c.Value)
		if err != nil {
			return "", err
		}
		switch lang {
		case "cpp":
			fmt.Fprintf(&b, "auto %s = %s;\n", c.Name, cppLiteral(c.Value, raw))
		case "rust":
			fmt.Fprintf(&b, "let %s = %s;\n", c.Name, cppLiteral(c.Value, raw))
		case "csharp":
			fmt.Fprintf(&b, "var %s = %s;\n", c.Name, cppLiteral(c.Value, raw))
		case "go":
			fmt.Fprintf(&b, "%s := %s\n", c.Name, cppLiteral(c.Value, raw))
		}
	}
	return b.String(), nil
}

// cppLiteral renders v as a source literal usable in C-family/Rust/Go
// syntax for the scalar kinds; anything else becomes a quoted JSON string
// (raw) that the fragment must parse itself.
func cppLiteral(v value.Value, raw string) string {
	switch t := value.Unwrap(v).(type) {
	case value.Int:
		return raw
	case value.Float:
		return raw
	case value.Bool:
		return raw
	case value.String:
		return strconv.Quote(string(t))
	default:
		return strconv.Quote(raw)
	}
}

// ParseReturnValue decodes a subprocess's whole stdout (trimmed of
// surrounding whitespace) per spec §4.7.3's recognition rules: null, int, float (NaN/Inf rejected), bool,
// string, JSON array → list, JSON object → dict, anything else → string.
func ParseReturnValue(raw string) (value.Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return value.NullValue, nil
	}
	var generic interface{}
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return value.MakeString(raw), nil
	}
	return fromJSON(generic)
}

func fromJSON(v interface{}) (value.Value, error) {
	switch t := v.(type) {
	case nil:
		return value.NullValue, nil
	case bool:
		return value.MakeBool(t), nil
	case string:
		return value.MakeString(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, naaberr.NewPolyglot(naaberr.PolyglotType, "returned value is NaN or infinite", nil)
		}
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return value.MakeInt(int64(t)), nil
		}
		return value.MakeFloat(t), nil
	case []interface{}:
		elems := make([]value.Value, len(t))
		for i, e := range t {
			ev, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			elems[i] = ev
		}
		return value.NewList(elems...), nil
	case map[string]interface{}:
		d := value.NewDict()
		for k, e := range t {
			ev, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			if err := d.Set(k, ev); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, naaberr.NewPolyglot(naaberr.PolyglotType, "unrecognized return value shape", nil)
	}
}

// MarshalCaptured serializes a captured NAAb value to the JSON form
// subprocess backends inject via environment variables or inlined source
// literals (spec §4.7.2). Sensitive values are unwrapped here; zeroization
// of the captures happens in framework.go once the backend call returns.
func MarshalCaptured(v value.Value) (string, error) {
	generic, err := toJSON(value.Unwrap(v))
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return "", naaberr.New(naaberr.PolyglotError, "marshaling captured value", err)
	}
	return string(out), nil
}

func toJSON(v value.Value) (interface{}, error) {
	switch t := v.(type) {
	case value.Null:
		return nil, nil
	case value.Bool:
		return bool(t), nil
	case value.Int:
		return int64(t), nil
	case value.Float:
		return float64(t), nil
	case value.String:
		return string(t), nil
	case *value.List:
		out := make([]interface{}, len(t.Elems))
		for i, e := range t.Elems {
			jv, err := toJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = jv
		}
		return out, nil
	case *value.Dict:
		out := map[string]interface{}{}
		for _, k := range t.Keys {
			jv, err := toJSON(t.Vals[k])
			if err != nil {
				return nil, err
			}
			out[k] = jv
		}
		return out, nil
	case *value.StructInstance:
		out := map[string]interface{}{}
		for i, fd := range t.Def.Fields {
			jv, err := toJSON(t.Fields[i])
			if err != nil {
				return nil, err
			}
			out[fd.Name] = jv
		}
		return out, nil
	default:
		return nil, naaberr.NewPolyglot(naaberr.PolyglotValidation, "value kind cannot be marshaled across the FFI boundary", nil)
	}
}
