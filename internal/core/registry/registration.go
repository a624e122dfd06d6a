package registry

import (
	"fmt"
	"reflect"

	"github.com/zeusync/prefab/internal/core/ecs"
	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/schema"
	"github.com/zeusync/prefab/internal/core/value"
	"github.com/zeusync/prefab/pkg/encoding"
)

// DiffResult classifies the difference of one component between two entities.
type DiffResult uint8

const (
	NoChange DiffResult = iota
	Change
	Add
	Remove
)

func (r DiffResult) String() string {
	switch r {
	case NoChange:
		return "no_change"
	case Change:
		return "change"
	case Add:
		return "add"
	case Remove:
		return "remove"
	}
	return fmt.Sprintf("diff_result(%d)", uint8(r))
}

// Registration is the operation bundle of one component type. Every
// operation works only on its explicit arguments.
type Registration interface {
	ID() models.ComponentTypeID
	Name() string
	// Key is the Go type the registration stores.
	Key() reflect.Type
	Schema() *schema.Schema
	NewColumn() ecs.Column

	// SerializeColumn writes rows [start, start+n) of col.
	SerializeColumn(enc format.Encoder, col ecs.Column, start, n int) error
	// DeserializeColumn fills rows [start, start+n) of col, which must exist.
	DeserializeColumn(dec format.Decoder, col ecs.Column, start, n int) error

	SerializeComponent(enc format.Encoder, w *ecs.World, e ecs.Entity) error
	DeserializeComponent(dec format.Decoder, w *ecs.World, e ecs.Entity) error

	// EncodeComponent returns the compact bytes of the whole component.
	EncodeComponent(w *ecs.World, e ecs.Entity) ([]byte, error)
	// AddComponent sets the component from EncodeComponent bytes.
	AddComponent(data []byte, w *ecs.World, e ecs.Entity) error

	// Diff describes how to turn the component on (src, se) into the one on
	// (dst, de). Change carries patch bytes, Add carries component bytes.
	Diff(src *ecs.World, se ecs.Entity, dst *ecs.World, de ecs.Entity) (DiffResult, []byte, error)
	// ApplyDiff applies patch bytes. A missing component starts from its
	// zero value.
	ApplyDiff(data []byte, w *ecs.World, e ecs.Entity) error

	// Clone deep-copies the component of (src, se) onto (dst, de).
	Clone(src *ecs.World, se ecs.Entity, dst *ecs.World, de ecs.Entity) error

	// SerializeDiff writes patch bytes in the shape the encoder supports: a
	// value map for self-describing formats, an opaque blob otherwise.
	SerializeDiff(enc format.Encoder, data []byte) error
	DeserializeDiff(dec format.Decoder) ([]byte, error)
	DiffToValue(data []byte) (value.Value, error)
	DiffFromValue(v value.Value) ([]byte, error)
}

type registration[T any] struct {
	id     models.ComponentTypeID
	name   string
	schema *schema.Schema
}

var _ Registration = (*registration[struct{}])(nil)

func (r *registration[T]) ID() models.ComponentTypeID { return r.id }
func (r *registration[T]) Name() string               { return r.name }
func (r *registration[T]) Key() reflect.Type          { return r.schema.Type() }
func (r *registration[T]) Schema() *schema.Schema     { return r.schema }
func (r *registration[T]) NewColumn() ecs.Column      { return ecs.NewColumn[T](r.id) }

func (r *registration[T]) get(w *ecs.World, e ecs.Entity) (*T, error) {
	v, ok := ecs.Get[T](w, e, r.id)
	if !ok {
		return nil, fmt.Errorf("%w: %s on entity %s", ErrMissingComponent, r.name, e)
	}
	return v, nil
}

func (r *registration[T]) column(col ecs.Column, start, n int) ([]T, error) {
	tc, err := ecs.Typed[T](col)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	if start < 0 || n < 0 || start+n > tc.Len() {
		return nil, fmt.Errorf("%w: rows [%d,%d) of %d", ErrOutOfRange, start, start+n, tc.Len())
	}
	return tc.Slice(start, n), nil
}

func (r *registration[T]) compact(v *T) []byte {
	buf := encoding.NewBuffer()
	r.schema.Encode(buf, reflect.ValueOf(v).Elem())
	return buf.Bytes()
}

func (r *registration[T]) decodeCompact(data []byte, v *T) error {
	buf := encoding.NewBufferFrom(data)
	if err := r.schema.Decode(buf, reflect.ValueOf(v).Elem()); err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	if buf.Remaining() != 0 {
		return fmt.Errorf("%s: %w: %d trailing bytes", r.name, schema.ErrInvalidData, buf.Remaining())
	}
	return nil
}

func (r *registration[T]) SerializeColumn(enc format.Encoder, col ecs.Column, start, n int) error {
	rows, err := r.column(col, start, n)
	if err != nil {
		return err
	}
	if enc.SelfDescribing() {
		if err := enc.BeginSeq(len(rows)); err != nil {
			return err
		}
		for i := range rows {
			if err := enc.Value(r.schema.ToValue(reflect.ValueOf(&rows[i]).Elem())); err != nil {
				return err
			}
		}
		return enc.EndSeq()
	}
	buf := encoding.NewBuffer()
	for i := range rows {
		r.schema.Encode(buf, reflect.ValueOf(&rows[i]).Elem())
	}
	return enc.Bytes(buf.Bytes())
}

func (r *registration[T]) DeserializeColumn(dec format.Decoder, col ecs.Column, start, n int) error {
	rows, err := r.column(col, start, n)
	if err != nil {
		return err
	}
	if dec.SelfDescribing() {
		count, err := dec.BeginSeq()
		if err != nil {
			return err
		}
		if count != len(rows) {
			return fmt.Errorf("%s: %w: %d rows, expected %d", r.name, schema.ErrInvalidData, count, len(rows))
		}
		for i := range rows {
			v, err := dec.Value()
			if err != nil {
				return err
			}
			if err := r.schema.FromValue(v, reflect.ValueOf(&rows[i]).Elem()); err != nil {
				return fmt.Errorf("%s: row %d: %w", r.name, start+i, err)
			}
		}
		return dec.EndSeq()
	}
	data, err := dec.Bytes()
	if err != nil {
		return err
	}
	buf := encoding.NewBufferFrom(data)
	for i := range rows {
		if err := r.schema.Decode(buf, reflect.ValueOf(&rows[i]).Elem()); err != nil {
			return fmt.Errorf("%s: row %d: %w", r.name, start+i, err)
		}
	}
	if buf.Remaining() != 0 {
		return fmt.Errorf("%s: %w: %d trailing bytes", r.name, schema.ErrInvalidData, buf.Remaining())
	}
	return nil
}

func (r *registration[T]) SerializeComponent(enc format.Encoder, w *ecs.World, e ecs.Entity) error {
	v, err := r.get(w, e)
	if err != nil {
		return err
	}
	if enc.SelfDescribing() {
		return enc.Value(r.schema.ToValue(reflect.ValueOf(v).Elem()))
	}
	return enc.Bytes(r.compact(v))
}

func (r *registration[T]) DeserializeComponent(dec format.Decoder, w *ecs.World, e ecs.Entity) error {
	var v T
	if dec.SelfDescribing() {
		val, err := dec.Value()
		if err != nil {
			return err
		}
		if err := r.schema.FromValue(val, reflect.ValueOf(&v).Elem()); err != nil {
			return fmt.Errorf("%s: %w", r.name, err)
		}
	} else {
		data, err := dec.Bytes()
		if err != nil {
			return err
		}
		if err := r.decodeCompact(data, &v); err != nil {
			return err
		}
	}
	return ecs.Set(w, e, r.id, v)
}

func (r *registration[T]) EncodeComponent(w *ecs.World, e ecs.Entity) ([]byte, error) {
	v, err := r.get(w, e)
	if err != nil {
		return nil, err
	}
	return r.compact(v), nil
}

func (r *registration[T]) AddComponent(data []byte, w *ecs.World, e ecs.Entity) error {
	var v T
	if err := r.decodeCompact(data, &v); err != nil {
		return err
	}
	return ecs.Set(w, e, r.id, v)
}

func (r *registration[T]) Diff(src *ecs.World, se ecs.Entity, dst *ecs.World, de ecs.Entity) (DiffResult, []byte, error) {
	from, inSrc := ecs.Get[T](src, se, r.id)
	to, inDst := ecs.Get[T](dst, de, r.id)
	switch {
	case inSrc && inDst:
		p := r.schema.Diff(reflect.ValueOf(from).Elem(), reflect.ValueOf(to).Elem())
		if p.Empty() {
			return NoChange, nil, nil
		}
		data, err := r.schema.EncodePatch(p)
		if err != nil {
			return NoChange, nil, fmt.Errorf("%s: %w", r.name, err)
		}
		return Change, data, nil
	case inDst:
		return Add, r.compact(to), nil
	case inSrc:
		return Remove, nil, nil
	}
	return NoChange, nil, nil
}

func (r *registration[T]) ApplyDiff(data []byte, w *ecs.World, e ecs.Entity) error {
	p, err := r.schema.DecodePatch(data)
	if err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	col, row, err := w.AddZero(e, r.NewColumn())
	if err != nil {
		return err
	}
	tc, err := ecs.Typed[T](col)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	if err := r.schema.Apply(p, reflect.ValueOf(tc.At(row)).Elem()); err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	return nil
}

func (r *registration[T]) Clone(src *ecs.World, se ecs.Entity, dst *ecs.World, de ecs.Entity) error {
	v, err := r.get(src, se)
	if err != nil {
		return err
	}
	cp := r.schema.Clone(reflect.ValueOf(v).Elem()).Interface().(T)
	return ecs.Set(dst, de, r.id, cp)
}

func (r *registration[T]) SerializeDiff(enc format.Encoder, data []byte) error {
	if !enc.SelfDescribing() {
		return enc.Bytes(data)
	}
	v, err := r.DiffToValue(data)
	if err != nil {
		return err
	}
	return enc.Value(v)
}

func (r *registration[T]) DeserializeDiff(dec format.Decoder) ([]byte, error) {
	if !dec.SelfDescribing() {
		data, err := dec.Bytes()
		if err != nil {
			return nil, err
		}
		// validate before the bytes are stored
		if _, err := r.schema.DecodePatch(data); err != nil {
			return nil, fmt.Errorf("%s: %w", r.name, err)
		}
		return data, nil
	}
	v, err := dec.Value()
	if err != nil {
		return nil, err
	}
	return r.DiffFromValue(v)
}

func (r *registration[T]) DiffToValue(data []byte) (value.Value, error) {
	p, err := r.schema.DecodePatch(data)
	if err != nil {
		return value.Value{}, fmt.Errorf("%s: %w", r.name, err)
	}
	return r.schema.PatchToValue(p), nil
}

func (r *registration[T]) DiffFromValue(v value.Value) ([]byte, error) {
	p, err := r.schema.PatchFromValue(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.name, err)
	}
	data, err := r.schema.EncodePatch(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.name, err)
	}
	return data, nil
}
