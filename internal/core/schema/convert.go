package schema

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/google/uuid"

	"github.com/zeusync/prefab/internal/core/value"
)

// ToValue converts v into its self-describing form.
func (s *Schema) ToValue(v reflect.Value) value.Value {
	return toValue(s.root, v)
}

// FromValue writes val into the settable v. Struct fields missing from val
// keep whatever v already holds.
func (s *Schema) FromValue(val value.Value, v reflect.Value) error {
	return fromValue(s.root, val, v)
}

func toValue(n *node, v reflect.Value) value.Value {
	switch n.kind {
	case kindBool:
		return value.NewBool(v.Bool())
	case kindInt:
		return value.NewInt(v.Int())
	case kindUint:
		return value.NewUint(v.Uint())
	case kindFloat32, kindFloat64:
		return value.NewFloat(v.Float())
	case kindString:
		return value.NewString(v.String())
	case kindBytes:
		p := make([]byte, v.Len())
		for i := range p {
			p[i] = byte(v.Index(i).Uint())
		}
		return value.NewBytes(p)
	case kindUUID:
		var u uuid.UUID
		for i := range u {
			u[i] = byte(v.Index(i).Uint())
		}
		return value.NewString(u.String())
	case kindSlice, kindArray:
		items := make([]value.Value, v.Len())
		for i := range items {
			items[i] = toValue(n.elem, v.Index(i))
		}
		return value.NewSeq(items...)
	case kindMap:
		keys := sortedKeys(n.key, v)
		entries := make([]value.Entry, len(keys))
		for i, k := range keys {
			entries[i] = value.Entry{Key: formatKey(n.key, k), Value: toValue(n.elem, v.MapIndex(k))}
		}
		return value.NewMap(entries...)
	case kindStruct:
		entries := make([]value.Entry, len(n.fields))
		for i, f := range n.fields {
			entries[i] = value.Entry{Key: f.name, Value: toValue(f.node, v.Field(f.index))}
		}
		return value.NewMap(entries...)
	}
	return value.NewNull()
}

func fromValue(n *node, val value.Value, v reflect.Value) error {
	switch n.kind {
	case kindBool:
		b, ok := val.AsBool()
		if !ok {
			return mismatch(n, val)
		}
		v.SetBool(b)
	case kindInt:
		i, ok := val.AsInt()
		if !ok {
			return mismatch(n, val)
		}
		if v.OverflowInt(i) {
			return fmt.Errorf("%w: %d overflows %s", ErrInvalidData, i, n.typ)
		}
		v.SetInt(i)
	case kindUint:
		u, ok := val.AsUint()
		if !ok {
			return mismatch(n, val)
		}
		if v.OverflowUint(u) {
			return fmt.Errorf("%w: %d overflows %s", ErrInvalidData, u, n.typ)
		}
		v.SetUint(u)
	case kindFloat32, kindFloat64:
		f, ok := val.AsFloat()
		if !ok {
			return mismatch(n, val)
		}
		v.SetFloat(f)
	case kindString:
		s, ok := val.AsString()
		if !ok {
			return mismatch(n, val)
		}
		v.SetString(s)
	case kindBytes:
		if val.IsNull() {
			v.Set(reflect.Zero(n.typ))
			return nil
		}
		p, ok := val.AsBytes()
		if !ok {
			return mismatch(n, val)
		}
		setBytes(n, v, p)
	case kindUUID:
		s, ok := val.AsString()
		if !ok {
			return mismatch(n, val)
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		for i := range u {
			v.Index(i).SetUint(uint64(u[i]))
		}
	case kindSlice:
		if val.IsNull() {
			v.Set(reflect.Zero(n.typ))
			return nil
		}
		items, ok := val.AsSeq()
		if !ok {
			return mismatch(n, val)
		}
		if len(items) == 0 {
			v.Set(reflect.Zero(n.typ))
			return nil
		}
		out := reflect.MakeSlice(n.typ, len(items), len(items))
		for i, item := range items {
			if err := fromValue(n.elem, item, out.Index(i)); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		v.Set(out)
	case kindArray:
		items, ok := val.AsSeq()
		if !ok {
			return mismatch(n, val)
		}
		if len(items) != v.Len() {
			return fmt.Errorf("%w: %s needs %d items, got %d", ErrTypeMismatch, n.typ, v.Len(), len(items))
		}
		for i, item := range items {
			if err := fromValue(n.elem, item, v.Index(i)); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case kindMap:
		if val.IsNull() {
			v.Set(reflect.Zero(n.typ))
			return nil
		}
		entries, ok := val.AsMap()
		if !ok {
			return mismatch(n, val)
		}
		if len(entries) == 0 {
			v.Set(reflect.Zero(n.typ))
			return nil
		}
		out := reflect.MakeMapWithSize(n.typ, len(entries))
		for _, e := range entries {
			k := reflect.New(n.key.typ).Elem()
			if err := parseKey(n.key, e.Key, k); err != nil {
				return err
			}
			elem := reflect.New(n.elem.typ).Elem()
			if err := fromValue(n.elem, e.Value, elem); err != nil {
				return fmt.Errorf("[%s]: %w", e.Key, err)
			}
			out.SetMapIndex(k, elem)
		}
		v.Set(out)
	case kindStruct:
		entries, ok := val.AsMap()
		if !ok {
			return mismatch(n, val)
		}
		for _, e := range entries {
			_, f, ok := n.field(e.Key)
			if !ok {
				return fmt.Errorf("%w: %q in %s", ErrUnknownField, e.Key, n.typ)
			}
			if err := fromValue(f.node, e.Value, v.Field(f.index)); err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
		}
	}
	return nil
}

func mismatch(n *node, val value.Value) error {
	return fmt.Errorf("%w: cannot store %s in %s", ErrTypeMismatch, val.Kind(), n.typ)
}

func formatKey(key *node, k reflect.Value) string {
	switch key.kind {
	case kindInt:
		return strconv.FormatInt(k.Int(), 10)
	case kindUint:
		return strconv.FormatUint(k.Uint(), 10)
	}
	return k.String()
}

func parseKey(key *node, s string, k reflect.Value) error {
	switch key.kind {
	case kindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil || k.OverflowInt(i) {
			return fmt.Errorf("%w: map key %q for %s", ErrInvalidData, s, key.typ)
		}
		k.SetInt(i)
	case kindUint:
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil || k.OverflowUint(u) {
			return fmt.Errorf("%w: map key %q for %s", ErrInvalidData, s, key.typ)
		}
		k.SetUint(u)
	default:
		k.SetString(s)
	}
	return nil
}
