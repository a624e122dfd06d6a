// Package schema compiles component struct types into reusable plans that
// drive the compact codec, conversion to and from dynamic values, structural
// diffs and deep copies. A plan is built once per type and cached.
package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("unsupported type")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrUnknownField    = errors.New("unknown field")
	ErrInvalidData     = errors.New("invalid data")
	ErrInvalidPatch    = errors.New("invalid patch")
)

type kind uint8

const (
	kindBool kind = iota
	kindInt
	kindUint
	kindFloat32
	kindFloat64
	kindString
	kindBytes
	kindUUID // 16-byte identifiers; the text form is the canonical uuid string
	kindSlice
	kindArray
	kindMap
	kindStruct
)

type node struct {
	kind    kind
	typ     reflect.Type
	elem    *node
	key     *node
	fields  []field
	minSize int // smallest compact encoding, bounds decoded counts
}

type field struct {
	name  string
	index int
	node  *node
}

// Schema is the compiled plan for one struct type.
type Schema struct {
	typ  reflect.Type
	root *node
}

var (
	cache        sync.Map // reflect.Type -> *Schema
	uuidType     = reflect.TypeOf(uuid.UUID{})
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// Of returns the schema for t, compiling it on first use. Only struct types
// can be components.
func Of(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrUnsupportedType)
	}
	if cached, ok := cache.Load(t); ok {
		return cached.(*Schema), nil
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrUnsupportedType, t)
	}

	c := compiler{building: make(map[reflect.Type]*node)}
	root, err := c.compile(t)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", t, err)
	}

	actual, _ := cache.LoadOrStore(t, &Schema{typ: t, root: root})
	return actual.(*Schema), nil
}

// For is Of for a static type.
func For[T any]() (*Schema, error) {
	return Of(reflect.TypeFor[T]())
}

func (s *Schema) Type() reflect.Type {
	return s.typ
}

// Fields lists the serialized field names of the root struct in wire order.
func (s *Schema) Fields() []string {
	names := make([]string, len(s.root.fields))
	for i, f := range s.root.fields {
		names[i] = f.name
	}
	return names
}

type compiler struct {
	building map[reflect.Type]*node
}

func (c *compiler) compile(t reflect.Type) (*node, error) {
	if n, ok := c.building[t]; ok {
		return n, nil
	}

	n := &node{typ: t}
	switch t.Kind() {
	case reflect.Bool:
		n.kind, n.minSize = kindBool, 1
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n.kind, n.minSize = kindInt, 1
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n.kind, n.minSize = kindUint, 1
	case reflect.Float32:
		n.kind, n.minSize = kindFloat32, 4
	case reflect.Float64:
		n.kind, n.minSize = kindFloat64, 8
	case reflect.String:
		n.kind, n.minSize = kindString, 1
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			n.kind, n.minSize = kindBytes, 1
			break
		}
		n.kind, n.minSize = kindSlice, 1
		elem, err := c.compile(t.Elem())
		if err != nil {
			return nil, fmt.Errorf("[]: %w", err)
		}
		n.elem = elem
	case reflect.Array:
		if isUUID(t) {
			n.kind, n.minSize = kindUUID, 16
			break
		}
		elem, err := c.compile(t.Elem())
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", t.Len(), err)
		}
		n.kind, n.elem, n.minSize = kindArray, elem, elem.minSize*t.Len()
	case reflect.Map:
		switch t.Key().Kind() {
		case reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return nil, fmt.Errorf("%w: map key %s", ErrUnsupportedType, t.Key())
		}
		key, err := c.compile(t.Key())
		if err != nil {
			return nil, err
		}
		elem, err := c.compile(t.Elem())
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		n.kind, n.key, n.elem, n.minSize = kindMap, key, elem, 1
	case reflect.Struct:
		n.kind = kindStruct
		c.building[t] = n
		defer delete(c.building, t)
		seen := make(map[string]struct{})
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name := sf.Tag.Get("prefab")
			if name == "-" {
				continue
			}
			if name == "" {
				name = lowerFirst(sf.Name)
			}
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("%w: duplicate field name %q", ErrUnsupportedType, name)
			}
			seen[name] = struct{}{}
			fn, err := c.compile(sf.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			n.fields = append(n.fields, field{name: name, index: i, node: fn})
			n.minSize += fn.minSize
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	return n, nil
}

func isUUID(t reflect.Type) bool {
	if t.Len() != 16 || t.Elem().Kind() != reflect.Uint8 {
		return false
	}
	return t == uuidType || t.Implements(stringerType)
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

func (n *node) field(name string) (int, *field, bool) {
	for i := range n.fields {
		if n.fields[i].name == name {
			return i, &n.fields[i], true
		}
	}
	return 0, nil, false
}

// Equal reports whether a and b hold the same serialized state. Nil and empty
// slices and maps are equal; floats compare bitwise.
func (s *Schema) Equal(a, b reflect.Value) bool {
	return equal(s.root, a, b)
}

func equal(n *node, a, b reflect.Value) bool {
	switch n.kind {
	case kindBool:
		return a.Bool() == b.Bool()
	case kindInt:
		return a.Int() == b.Int()
	case kindUint:
		return a.Uint() == b.Uint()
	case kindFloat32, kindFloat64:
		return math.Float64bits(a.Float()) == math.Float64bits(b.Float())
	case kindString:
		return a.String() == b.String()
	case kindBytes:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if a.Index(i).Uint() != b.Index(i).Uint() {
				return false
			}
		}
		return true
	case kindUUID:
		for i := 0; i < 16; i++ {
			if a.Index(i).Uint() != b.Index(i).Uint() {
				return false
			}
		}
		return true
	case kindSlice, kindArray:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !equal(n.elem, a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case kindMap:
		if a.Len() != b.Len() {
			return false
		}
		iter := a.MapRange()
		for iter.Next() {
			bv := b.MapIndex(iter.Key())
			if !bv.IsValid() || !equal(n.elem, iter.Value(), bv) {
				return false
			}
		}
		return true
	case kindStruct:
		for _, f := range n.fields {
			if !equal(f.node, a.Field(f.index), b.Field(f.index)) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of v that shares no slice or map storage with it.
func (s *Schema) Clone(v reflect.Value) reflect.Value {
	return clone(s.root, v)
}

func clone(n *node, v reflect.Value) reflect.Value {
	switch n.kind {
	case kindBytes, kindSlice:
		if v.IsNil() {
			return reflect.Zero(n.typ)
		}
		out := reflect.MakeSlice(n.typ, v.Len(), v.Len())
		if n.kind == kindBytes {
			reflect.Copy(out, v)
			return out
		}
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(clone(n.elem, v.Index(i)))
		}
		return out
	case kindArray:
		out := reflect.New(n.typ).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(clone(n.elem, v.Index(i)))
		}
		return out
	case kindMap:
		if v.IsNil() {
			return reflect.Zero(n.typ)
		}
		out := reflect.MakeMapWithSize(n.typ, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), clone(n.elem, iter.Value()))
		}
		return out
	case kindStruct:
		out := reflect.New(n.typ).Elem()
		out.Set(v)
		for _, f := range n.fields {
			out.Field(f.index).Set(clone(f.node, v.Field(f.index)))
		}
		return out
	}
	return v
}
