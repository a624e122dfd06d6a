package schema

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"

	"github.com/zeusync/prefab/pkg/encoding"
)

// Encode appends the compact, positional encoding of v to buf.
func (s *Schema) Encode(buf *encoding.Buffer, v reflect.Value) {
	encode(buf, s.root, v)
}

// Decode reads one value from buf into the settable v.
func (s *Schema) Decode(buf *encoding.Buffer, v reflect.Value) error {
	return decode(buf, s.root, v)
}

func encode(buf *encoding.Buffer, n *node, v reflect.Value) {
	switch n.kind {
	case kindBool:
		if v.Bool() {
			_ = buf.WriteByte(1)
		} else {
			_ = buf.WriteByte(0)
		}
	case kindInt:
		buf.WriteVarint(v.Int())
	case kindUint:
		buf.WriteUvarint(v.Uint())
	case kindFloat32:
		buf.WriteFloat32(float32(v.Float()))
	case kindFloat64:
		buf.WriteFloat64(v.Float())
	case kindString:
		buf.WriteString(v.String())
	case kindBytes:
		buf.WriteUvarint(uint64(v.Len()))
		for i := 0; i < v.Len(); i++ {
			_ = buf.WriteByte(byte(v.Index(i).Uint()))
		}
	case kindUUID:
		for i := 0; i < 16; i++ {
			_ = buf.WriteByte(byte(v.Index(i).Uint()))
		}
	case kindSlice:
		buf.WriteUvarint(uint64(v.Len()))
		for i := 0; i < v.Len(); i++ {
			encode(buf, n.elem, v.Index(i))
		}
	case kindArray:
		for i := 0; i < v.Len(); i++ {
			encode(buf, n.elem, v.Index(i))
		}
	case kindMap:
		keys := sortedKeys(n.key, v)
		buf.WriteUvarint(uint64(len(keys)))
		for _, k := range keys {
			encode(buf, n.key, k)
			encode(buf, n.elem, v.MapIndex(k))
		}
	case kindStruct:
		for _, f := range n.fields {
			encode(buf, f.node, v.Field(f.index))
		}
	}
}

func decode(buf *encoding.Buffer, n *node, v reflect.Value) error {
	switch n.kind {
	case kindBool:
		b, err := buf.ReadByte()
		if err != nil {
			return err
		}
		if b > 1 {
			return fmt.Errorf("%w: bool byte %d", ErrInvalidData, b)
		}
		v.SetBool(b == 1)
	case kindInt:
		x, err := buf.ReadVarint()
		if err != nil {
			return err
		}
		if v.OverflowInt(x) {
			return fmt.Errorf("%w: %d overflows %s", ErrInvalidData, x, n.typ)
		}
		v.SetInt(x)
	case kindUint:
		x, err := buf.ReadUvarint()
		if err != nil {
			return err
		}
		if v.OverflowUint(x) {
			return fmt.Errorf("%w: %d overflows %s", ErrInvalidData, x, n.typ)
		}
		v.SetUint(x)
	case kindFloat32:
		f, err := buf.ReadFloat32()
		if err != nil {
			return err
		}
		v.SetFloat(float64(f))
	case kindFloat64:
		f, err := buf.ReadFloat64()
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case kindString:
		s, err := buf.ReadString()
		if err != nil {
			return err
		}
		v.SetString(s)
	case kindBytes:
		p, err := buf.ReadBlob()
		if err != nil {
			return err
		}
		setBytes(n, v, p)
	case kindUUID:
		p, err := buf.ReadN(16)
		if err != nil {
			return err
		}
		for i := range p {
			v.Index(i).SetUint(uint64(p[i]))
		}
	case kindSlice:
		count, err := buf.ReadLen(n.elem.minSize)
		if err != nil {
			return err
		}
		if count == 0 {
			v.Set(reflect.Zero(n.typ))
			return nil
		}
		out := reflect.MakeSlice(n.typ, count, count)
		for i := 0; i < count; i++ {
			if err = decode(buf, n.elem, out.Index(i)); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		v.Set(out)
	case kindArray:
		for i := 0; i < v.Len(); i++ {
			if err := decode(buf, n.elem, v.Index(i)); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case kindMap:
		count, err := buf.ReadLen(n.key.minSize + n.elem.minSize)
		if err != nil {
			return err
		}
		if count == 0 {
			v.Set(reflect.Zero(n.typ))
			return nil
		}
		out := reflect.MakeMapWithSize(n.typ, count)
		for i := 0; i < count; i++ {
			k := reflect.New(n.key.typ).Elem()
			if err = decode(buf, n.key, k); err != nil {
				return err
			}
			e := reflect.New(n.elem.typ).Elem()
			if err = decode(buf, n.elem, e); err != nil {
				return fmt.Errorf("[%v]: %w", k, err)
			}
			out.SetMapIndex(k, e)
		}
		v.Set(out)
	case kindStruct:
		for _, f := range n.fields {
			if err := decode(buf, f.node, v.Field(f.index)); err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
		}
	}
	return nil
}

func setBytes(n *node, v reflect.Value, p []byte) {
	if len(p) == 0 {
		v.Set(reflect.Zero(n.typ))
		return
	}
	out := reflect.MakeSlice(n.typ, len(p), len(p))
	for i, b := range p {
		out.Index(i).SetUint(uint64(b))
	}
	v.Set(out)
}

// sortedKeys orders map keys so encodings are deterministic.
func sortedKeys(key *node, m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	switch key.kind {
	case kindString:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.String(), b.String()) })
	case kindInt:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Int(), b.Int()) })
	case kindUint:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Uint(), b.Uint()) })
	}
	return keys
}
