package value

import (
	"fmt"
	"strings"

	"github.com/naab-lang/naab/naaberr"
)

// MaxListElements and MaxDictEntries are the container size caps of spec
// §4.1/§4.9; exceeding them raises ResourceLimit.
const (
	MaxListElements = 10_000_000
	MaxDictEntries  = 1_000_000
)

// List is an ordered, growable, shared-by-reference sequence of Values.
type List struct {
	header
	Elems []Value
}

func NewList(elems ...Value) *List {
	return &List{header: newHeader(), Elems: elems}
}

func (*List) Kind() Kind     { return KindList }
func (l *List) Truthy() bool { return len(l.Elems) > 0 }

func (l *List) Traverse(visit func(Value)) {
	for _, e := range l.Elems {
		if e != nil {
			visit(e)
		}
	}
}

func (l *List) String() string {
	parts := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (l *List) Equals(o Value) bool {
	other, ok := o.(*List)
	if !ok || len(other.Elems) != len(l.Elems) {
		return false
	}
	for i, e := range l.Elems {
		if !e.Equals(other.Elems[i]) {
			return false
		}
	}
	return true
}

// normalizeIndex resolves a (possibly negative) index against length n,
// rejecting out-of-range results with IndexError per spec §4.1.
func normalizeIndex(i int64, n int) (int, error) {
	idx := i
	if idx < 0 {
		idx += int64(n)
	}
	if idx < 0 || idx >= int64(n) {
		return 0, naaberr.Newf(naaberr.IndexError, "index %d out of range for length %d", i, n)
	}
	return int(idx), nil
}

// Get returns the element at i, applying negative-index wraparound.
func (l *List) Get(i int64) (Value, error) {
	idx, err := normalizeIndex(i, len(l.Elems))
	if err != nil {
		return nil, err
	}
	return l.Elems[idx], nil
}

// Set mutates the element at i in place.
func (l *List) Set(i int64, v Value) error {
	idx, err := normalizeIndex(i, len(l.Elems))
	if err != nil {
		return err
	}
	l.Elems[idx] = v
	return nil
}

// Clear empties the element slice, dropping internal references so the GC
// can break a reference cycle (spec §4.8 "Collect"); visit is called once
// per former child so the caller can cascade reference-counted release.
func (l *List) Clear(visit func(Value)) {
	for _, e := range l.Elems {
		if e != nil {
			visit(e)
		}
	}
	l.Elems = nil
}

// Push appends v, enforcing the MaxListElements cap.
func (l *List) Push(v Value) error {
	if len(l.Elems) >= MaxListElements {
		return naaberr.Newf(naaberr.ResourceLimit, "list exceeds maximum size of %d elements", MaxListElements)
	}
	l.Elems = append(l.Elems, v)
	return nil
}

// Reverse returns a new list with elements in reverse order (used by the
// round-trip law reverse(reverse(xs)) == xs in spec §8).
func (l *List) Reverse() *List {
	out := make([]Value, len(l.Elems))
	for i, e := range l.Elems {
		out[len(out)-1-i] = e
	}
	return NewList(out...)
}

// DeepCopy duplicates the list and all nested containers/structs, per the
// pass-by-value parameter semantics of spec §4.6.1.
func DeepCopy(v Value) Value {
	switch t := v.(type) {
	case *List:
		out := make([]Value, len(t.Elems))
		for i, e := range t.Elems {
			out[i] = DeepCopy(e)
		}
		return NewList(out...)
	case *Dict:
		nd := NewDict()
		for _, k := range t.Keys {
			nd.Set(k, DeepCopy(t.Vals[k]))
		}
		return nd
	case *StructInstance:
		fields := make([]Value, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = DeepCopy(f)
		}
		return &StructInstance{header: newHeader(), Def: t.Def, Fields: fields}
	default:
		// Primitives, functions, block handles: copy is identity (immutable
		// or alias-only per spec §3.1/§3.6).
		return v
	}
}

// Dict is an insertion-order-preserving mapping from string key to Value.
type Dict struct {
	header
	Keys []string
	Vals map[string]Value
}

func NewDict() *Dict {
	return &Dict{header: newHeader(), Vals: map[string]Value{}}
}

func (*Dict) Kind() Kind     { return KindDict }
func (d *Dict) Truthy() bool { return len(d.Keys) > 0 }

func (d *Dict) Traverse(visit func(Value)) {
	for _, k := range d.Keys {
		visit(d.Vals[k])
	}
}

func (d *Dict) String() string {
	parts := make([]string, 0, len(d.Keys))
	for _, k := range d.Keys {
		parts = append(parts, fmt.Sprintf("%q: %s", k, d.Vals[k].String()))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (d *Dict) Equals(o Value) bool {
	other, ok := o.(*Dict)
	if !ok || len(other.Keys) != len(d.Keys) {
		return false
	}
	for _, k := range d.Keys {
		ov, ok := other.Vals[k]
		if !ok || !d.Vals[k].Equals(ov) {
			return false
		}
	}
	return true
}

// Get looks up key, raising KeyError if absent.
func (d *Dict) Get(key string) (Value, error) {
	v, ok := d.Vals[key]
	if !ok {
		return nil, naaberr.Newf(naaberr.KeyError, "key %q not found", key)
	}
	return v, nil
}

// Set inserts or overwrites key, preserving insertion order and enforcing
// the MaxDictEntries cap.
func (d *Dict) Set(key string, v Value) error {
	if _, exists := d.Vals[key]; !exists {
		if len(d.Keys) >= MaxDictEntries {
			return naaberr.Newf(naaberr.ResourceLimit, "dict exceeds maximum size of %d entries", MaxDictEntries)
		}
		d.Keys = append(d.Keys, key)
	}
	d.Vals[key] = v
	return nil
}

// Clear empties the dict, dropping internal references so the GC can break
// a reference cycle; visit is called once per former value.
func (d *Dict) Clear(visit func(Value)) {
	for _, k := range d.Keys {
		if v := d.Vals[k]; v != nil {
			visit(v)
		}
	}
	d.Keys = nil
	d.Vals = map[string]Value{}
}

// Has reports whether key is present.
func (d *Dict) Has(key string) bool {
	_, ok := d.Vals[key]
	return ok
}

// ---- Range values (spec §4.6.4) --------------------------------------

// Range sentinel keys distinguishing a lazy integer interval represented as
// a Dict, so `for` recognizes it without a dedicated Value variant.
const (
	RangeIsRangeKey = "__is_range"
	RangeStartKey   = "__range_start"
	RangeEndKey     = "__range_end"
)

// NewRange builds the half-open interval [start, end). Callers must have
// already validated start <= end (spec §4.6.4).
func NewRange(start, end int64) *Dict {
	d := NewDict()
	_ = d.Set(RangeIsRangeKey, MakeBool(true))
	_ = d.Set(RangeStartKey, MakeInt(start))
	_ = d.Set(RangeEndKey, MakeInt(end))
	return d
}

// IsRange reports whether d was built by NewRange.
func IsRange(d *Dict) bool {
	v, ok := d.Vals[RangeIsRangeKey]
	if !ok {
		return false
	}
	b, ok := v.(Bool)
	return ok && bool(b)
}

// RangeBounds extracts the [start, end) bounds of a range dict.
func RangeBounds(d *Dict) (int64, int64) {
	s := d.Vals[RangeStartKey].(Int)
	e := d.Vals[RangeEndKey].(Int)
	return int64(s), int64(e)
}

// EachRange iterates a range in O(1) memory, calling fn for every integer in
// [start, end) until fn returns false or the range is exhausted.
func (d *Dict) EachRange(fn func(i int64) bool) {
	start, end := RangeBounds(d)
	for i := start; i < end; i++ {
		if !fn(i) {
			return
		}
	}
}
