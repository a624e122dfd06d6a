// Package value holds the dynamically typed value used for component payloads
// and override diffs in self-describing encodings. It is decoded without
// knowing the Go type that will eventually consume it.
package value

import (
	"bytes"
	"fmt"
	"math"
)

// Kind tags which member of a Value is populated.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Int
	Uint
	Float
	String
	Bytes
	Seq
	Map
)

var kindNames = [...]string{"null", "bool", "int", "uint", "float", "string", "bytes", "seq", "map"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Entry is one key/value pair of a Map. Entries keep insertion order.
type Entry struct {
	Key   string
	Value Value
}

// Value is a small sum type over the shapes a self-describing format can carry.
type Value struct {
	kind    Kind
	b       bool
	i       int64
	u       uint64
	f       float64
	s       string
	raw     []byte
	items   []Value
	entries []Entry
}

func NewNull() Value               { return Value{} }
func NewBool(v bool) Value         { return Value{kind: Bool, b: v} }
func NewInt(v int64) Value         { return Value{kind: Int, i: v} }
func NewUint(v uint64) Value       { return Value{kind: Uint, u: v} }
func NewFloat(v float64) Value     { return Value{kind: Float, f: v} }
func NewString(v string) Value     { return Value{kind: String, s: v} }
func NewBytes(v []byte) Value      { return Value{kind: Bytes, raw: v} }
func NewSeq(items ...Value) Value  { return Value{kind: Seq, items: items} }
func NewMap(entries ...Entry) Value { return Value{kind: Map, entries: entries} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == Null }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == Bool }

func (v Value) AsString() (string, bool) { return v.s, v.kind == String }

func (v Value) AsBytes() ([]byte, bool) { return v.raw, v.kind == Bytes }

func (v Value) AsSeq() ([]Value, bool) { return v.items, v.kind == Seq }

func (v Value) AsMap() ([]Entry, bool) { return v.entries, v.kind == Map }

// AsInt returns the value as int64. Uint values are accepted when they fit.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case Int:
		return v.i, true
	case Uint:
		if v.u <= math.MaxInt64 {
			return int64(v.u), true
		}
	}
	return 0, false
}

// AsUint returns the value as uint64. Non-negative Int values are accepted.
func (v Value) AsUint() (uint64, bool) {
	switch v.kind {
	case Uint:
		return v.u, true
	case Int:
		if v.i >= 0 {
			return uint64(v.i), true
		}
	}
	return 0, false
}

// AsFloat returns the value as float64. Integers are widened.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case Float:
		return v.f, true
	case Int:
		return float64(v.i), true
	case Uint:
		return float64(v.u), true
	}
	return 0, false
}

// Len is the number of items of a Seq or entries of a Map.
func (v Value) Len() int {
	switch v.kind {
	case Seq:
		return len(v.items)
	case Map:
		return len(v.entries)
	}
	return 0
}

// Lookup finds key in a Map.
func (v Value) Lookup(key string) (Value, bool) {
	for _, e := range v.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Equal compares two values structurally. Int and Uint holding the same
// number are equal; floats compare bitwise so NaN equals itself.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		if (v.kind == Int || v.kind == Uint) && (o.kind == Int || o.kind == Uint) {
			a, aok := v.AsUint()
			b, bok := o.AsUint()
			return aok && bok && a == b
		}
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == o.b
	case Int:
		return v.i == o.i
	case Uint:
		return v.u == o.u
	case Float:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case String:
		return v.s == o.s
	case Bytes:
		return bytes.Equal(v.raw, o.raw)
	case Seq:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(v.entries) != len(o.entries) {
			return false
		}
		for i := range v.entries {
			if v.entries[i].Key != o.entries[i].Key || !v.entries[i].Value.Equal(o.entries[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case Null:
		return "null"
	case Bool:
		return fmt.Sprint(v.b)
	case Int:
		return fmt.Sprint(v.i)
	case Uint:
		return fmt.Sprint(v.u)
	case Float:
		return fmt.Sprint(v.f)
	case String:
		return fmt.Sprintf("%q", v.s)
	case Bytes:
		return fmt.Sprintf("bytes(%d)", len(v.raw))
	case Seq:
		return fmt.Sprint(v.items)
	case Map:
		var b bytes.Buffer
		b.WriteByte('{')
		for i, e := range v.entries {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(e.Key)
			b.WriteString(": ")
			b.WriteString(e.Value.String())
		}
		b.WriteByte('}')
		return b.String()
	}
	return "invalid"
}
