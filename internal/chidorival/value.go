// Package chidorival implements Value, the universal marshalling
// format every executor consumes and produces regardless of host
// language. It is the self-describing serialized tree named in
// spec.md §3: Null, Bool, Int, Float, String, Array, Object, Set,
// FunctionPointer, StreamPointer, Cell.
package chidorival

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind discriminates a Value's payload.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
	KindSet
	KindFunctionPointer
	KindStreamPointer
	KindCell
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindSet:
		return "set"
	case KindFunctionPointer:
		return "function_pointer"
	case KindStreamPointer:
		return "stream_pointer"
	case KindCell:
		return "cell"
	default:
		return "unknown"
	}
}

// FunctionPointer identifies a callable produced by an operation: the
// operation that defines it and the name it was registered under.
type FunctionPointer struct {
	OperationID string
	Name        string
}

// StreamPointer identifies an intermediate-output channel by the
// chronology_id of the state that originated it.
type StreamPointer struct {
	ChronologyID string
}

// Value is a tagged union. Exactly one of the payload fields is
// meaningful for a given Kind; the zero Value is Null.
type Value struct {
	Kind Kind

	boolVal   bool
	intVal    int64
	floatVal  float64
	stringVal string

	array  []Value
	object map[string]Value
	set    []Value // kept sorted by fingerprint for deterministic equality/encoding

	fn     FunctionPointer
	stream StreamPointer
	cell   any // opaque cell descriptor, avoids an import cycle with package cell
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, boolVal: b} }
func Int(i int64) Value          { return Value{Kind: KindInt, intVal: i} }
func Float(f float64) Value      { return Value{Kind: KindFloat, floatVal: f} }
func String(s string) Value      { return Value{Kind: KindString, stringVal: s} }
func Func(ptr FunctionPointer) Value { return Value{Kind: KindFunctionPointer, fn: ptr} }
func Stream(ptr StreamPointer) Value { return Value{Kind: KindStreamPointer, stream: ptr} }
func CellRef(descriptor any) Value   { return Value{Kind: KindCell, cell: descriptor} }

// Array builds an Array value, copying the input slice.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{Kind: KindArray, array: cp}
}

// Object builds an Object value, copying the input map.
func Object(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{Kind: KindObject, object: cp}
}

// Set builds a Set value. Members are deduplicated and ordered by
// fingerprint so that two Sets with the same members are always
// structurally identical, regardless of construction order.
func Set(members ...Value) Value {
	seen := make(map[string]Value, len(members))
	for _, m := range members {
		fp, err := m.Fingerprint()
		if err != nil {
			continue
		}
		seen[string(fp)] = m
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Value, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return Value{Kind: KindSet, set: out}
}

// AsBool, AsInt, AsFloat, AsString return the payload and whether Kind matched.
func (v Value) AsBool() (bool, bool)     { return v.boolVal, v.Kind == KindBool }
func (v Value) AsInt() (int64, bool)     { return v.intVal, v.Kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.floatVal, v.Kind == KindFloat }
func (v Value) AsString() (string, bool) { return v.stringVal, v.Kind == KindString }

// AsArray returns a copy of the Array payload.
func (v Value) AsArray() ([]Value, bool) {
	if v.Kind != KindArray {
		return nil, false
	}
	cp := make([]Value, len(v.array))
	copy(cp, v.array)
	return cp, true
}

// AsObject returns a copy of the Object payload.
func (v Value) AsObject() (map[string]Value, bool) {
	if v.Kind != KindObject {
		return nil, false
	}
	cp := make(map[string]Value, len(v.object))
	for k, val := range v.object {
		cp[k] = val
	}
	return cp, true
}

// AsSet returns a copy of the Set payload, already in canonical order.
func (v Value) AsSet() ([]Value, bool) {
	if v.Kind != KindSet {
		return nil, false
	}
	cp := make([]Value, len(v.set))
	copy(cp, v.set)
	return cp, true
}

func (v Value) AsFunctionPointer() (FunctionPointer, bool) {
	return v.fn, v.Kind == KindFunctionPointer
}

func (v Value) AsStreamPointer() (StreamPointer, bool) {
	return v.stream, v.Kind == KindStreamPointer
}

func (v Value) AsCell() (any, bool) {
	return v.cell, v.Kind == KindCell
}

func (v Value) IsNull() bool { return v.Kind == KindNull }

// canonical is the msgpack-friendly intermediate form: a plain Go
// value with map keys pre-sorted, so two structurally equal Values
// always produce byte-identical encodings.
func (v Value) canonical() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolVal
	case KindInt:
		return v.intVal
	case KindFloat:
		return v.floatVal
	case KindString:
		return v.stringVal
	case KindArray:
		out := make([]any, len(v.array))
		for i, e := range v.array {
			out[i] = e.canonical()
		}
		return out
	case KindObject:
		keys := make([]string, 0, len(v.object))
		for k := range v.object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		// msgpack on a map does not guarantee key order, so we encode
		// an ordered list of [key, value] pairs instead of a map.
		out := make([][2]any, len(keys))
		for i, k := range keys {
			out[i] = [2]any{k, v.object[k].canonical()}
		}
		return out
	case KindSet:
		out := make([]any, len(v.set))
		for i, e := range v.set {
			out[i] = e.canonical()
		}
		return out
	case KindFunctionPointer:
		return [2]string{v.fn.OperationID, v.fn.Name}
	case KindStreamPointer:
		return v.stream.ChronologyID
	case KindCell:
		return fmt.Sprintf("%v", v.cell)
	default:
		return nil
	}
}

// Fingerprint returns a stable byte encoding suitable for equality
// comparison, deduplication (Set), and producer-freshness checks.
func (v Value) Fingerprint() ([]byte, error) {
	return msgpack.Marshal(v.canonical())
}

// Equal reports whether two Values have identical fingerprints.
func (v Value) Equal(other Value) bool {
	a, errA := v.Fingerprint()
	b, errB := other.Fingerprint()
	if errA != nil || errB != nil {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MarshalBinary implements encoding.BinaryMarshaler via the canonical
// msgpack encoding, letting Value be embedded in other msgpack payloads.
func (v Value) MarshalBinary() ([]byte, error) {
	return v.Fingerprint()
}
