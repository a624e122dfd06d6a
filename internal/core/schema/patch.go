package schema

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/zeusync/prefab/internal/core/value"
	"github.com/zeusync/prefab/pkg/encoding"
)

// Change replaces one leaf field. Path holds field positions walked from the
// root struct; the last position never names a struct.
type Change struct {
	Path  []int
	Value reflect.Value
}

// Patch is a structural diff: the minimal set of leaf replacements that turns
// one value into another. Changes are kept sorted by path.
type Patch struct {
	Changes []Change
}

func (p Patch) Empty() bool {
	return len(p.Changes) == 0
}

// Diff computes the patch that turns from into to.
func (s *Schema) Diff(from, to reflect.Value) Patch {
	var p Patch
	diffStruct(s.root, from, to, nil, &p)
	return p
}

func diffStruct(n *node, a, b reflect.Value, prefix []int, p *Patch) {
	for i, f := range n.fields {
		path := append(slices.Clone(prefix), i)
		fa, fb := a.Field(f.index), b.Field(f.index)
		if f.node.kind == kindStruct {
			diffStruct(f.node, fa, fb, path, p)
			continue
		}
		if !equal(f.node, fa, fb) {
			p.Changes = append(p.Changes, Change{Path: path, Value: clone(f.node, fb)})
		}
	}
}

// Apply writes every change of p into the settable target.
func (s *Schema) Apply(p Patch, target reflect.Value) error {
	for _, c := range p.Changes {
		leaf, v, err := s.walk(c.Path, target)
		if err != nil {
			return err
		}
		if c.Value.Type() != leaf.typ {
			return fmt.Errorf("%w: %s at %v, want %s", ErrInvalidPatch, c.Value.Type(), c.Path, leaf.typ)
		}
		v.Set(clone(leaf, c.Value))
	}
	return nil
}

// walk resolves a change path to its leaf node, and to the matching field of
// target when target is valid.
func (s *Schema) walk(path []int, target reflect.Value) (*node, reflect.Value, error) {
	if len(path) == 0 {
		return nil, target, fmt.Errorf("%w: empty path", ErrInvalidPatch)
	}
	n, v := s.root, target
	for _, pos := range path {
		if n.kind != kindStruct || pos < 0 || pos >= len(n.fields) {
			return nil, v, fmt.Errorf("%w: path %v does not exist in %s", ErrInvalidPatch, path, s.typ)
		}
		f := n.fields[pos]
		if v.IsValid() {
			v = v.Field(f.index)
		}
		n = f.node
	}
	if n.kind == kindStruct {
		return nil, v, fmt.Errorf("%w: path %v ends on a struct", ErrInvalidPatch, path)
	}
	return n, v, nil
}

// EncodePatch flattens p into its compact byte form.
func (s *Schema) EncodePatch(p Patch) ([]byte, error) {
	buf := encoding.NewBuffer()
	buf.WriteUvarint(uint64(len(p.Changes)))
	for _, c := range p.Changes {
		leaf, _, err := s.walk(c.Path, reflect.Value{})
		if err != nil {
			return nil, err
		}
		buf.WriteUvarint(uint64(len(c.Path)))
		for _, pos := range c.Path {
			buf.WriteUvarint(uint64(pos))
		}
		encode(buf, leaf, c.Value)
	}
	return buf.Bytes(), nil
}

// DecodePatch parses the compact byte form produced by EncodePatch.
func (s *Schema) DecodePatch(data []byte) (Patch, error) {
	buf := encoding.NewBufferFrom(data)
	count, err := buf.ReadLen(2)
	if err != nil {
		return Patch{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	p := Patch{Changes: make([]Change, 0, count)}
	for i := 0; i < count; i++ {
		depth, err := buf.ReadLen(1)
		if err != nil {
			return Patch{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		path := make([]int, depth)
		for j := range path {
			pos, err := buf.ReadUvarint()
			if err != nil {
				return Patch{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
			}
			path[j] = int(pos)
		}
		leaf, _, err := s.walk(path, reflect.Value{})
		if err != nil {
			return Patch{}, err
		}
		v := reflect.New(leaf.typ).Elem()
		if err = decode(buf, leaf, v); err != nil {
			return Patch{}, fmt.Errorf("%w: %v: %v", ErrInvalidPatch, path, err)
		}
		p.Changes = append(p.Changes, Change{Path: path, Value: v})
	}
	if buf.Remaining() != 0 {
		return Patch{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidPatch, buf.Remaining())
	}
	return p, normalize(&p)
}

// PatchToValue renders p as nested maps keyed by field name.
func (s *Schema) PatchToValue(p Patch) value.Value {
	return patchValue(s.root, p.Changes, 0)
}

func patchValue(n *node, changes []Change, depth int) value.Value {
	entries := make([]value.Entry, 0, len(changes))
	for i := 0; i < len(changes); {
		pos := changes[i].Path[depth]
		j := i + 1
		for j < len(changes) && changes[j].Path[depth] == pos {
			j++
		}
		f := n.fields[pos]
		if f.node.kind == kindStruct {
			entries = append(entries, value.Entry{Key: f.name, Value: patchValue(f.node, changes[i:j], depth+1)})
		} else {
			entries = append(entries, value.Entry{Key: f.name, Value: toValue(f.node, changes[i].Value)})
		}
		i = j
	}
	return value.NewMap(entries...)
}

// PatchFromValue is the inverse of PatchToValue.
func (s *Schema) PatchFromValue(v value.Value) (Patch, error) {
	var p Patch
	if err := patchFromValue(s.root, v, nil, &p); err != nil {
		return Patch{}, err
	}
	return p, normalize(&p)
}

func patchFromValue(n *node, v value.Value, prefix []int, p *Patch) error {
	entries, ok := v.AsMap()
	if !ok {
		return fmt.Errorf("%w: patch for %s must be a map, got %s", ErrInvalidPatch, n.typ, v.Kind())
	}
	for _, e := range entries {
		pos, f, ok := n.field(e.Key)
		if !ok {
			return fmt.Errorf("%w: %q in %s", ErrUnknownField, e.Key, n.typ)
		}
		path := append(slices.Clone(prefix), pos)
		if f.node.kind == kindStruct {
			if err := patchFromValue(f.node, e.Value, path, p); err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
			continue
		}
		leaf := reflect.New(f.node.typ).Elem()
		if err := fromValue(f.node, e.Value, leaf); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		p.Changes = append(p.Changes, Change{Path: path, Value: leaf})
	}
	return nil
}

func normalize(p *Patch) error {
	slices.SortFunc(p.Changes, func(a, b Change) int { return slices.Compare(a.Path, b.Path) })
	for i := 1; i < len(p.Changes); i++ {
		if slices.Equal(p.Changes[i-1].Path, p.Changes[i].Path) {
			return fmt.Errorf("%w: duplicate change at %v", ErrInvalidPatch, p.Changes[i].Path)
		}
	}
	return nil
}
