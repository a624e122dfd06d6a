package text

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/value"
)

type frame struct {
	node   *yaml.Node
	pos    int
	fields []string
}

type Decoder struct {
	stack []*frame
	root  *yaml.Node
	done  bool
}

var _ format.Decoder = (*Decoder)(nil)

// NewDecoder parses data as a single YAML document.
func NewDecoder(data []byte) (*Decoder, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", format.ErrSyntax, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, fmt.Errorf("%w: expected one document", format.ErrSyntax)
	}
	return &Decoder{root: doc.Content[0]}, nil
}

func (d *Decoder) SelfDescribing() bool { return true }

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func (d *Decoder) next() (*yaml.Node, error) {
	if len(d.stack) == 0 {
		if d.done {
			return nil, fmt.Errorf("%w: read past end of document", format.ErrSyntax)
		}
		d.done = true
		return resolveAlias(d.root), nil
	}
	top := d.stack[len(d.stack)-1]
	if top.pos >= len(top.node.Content) {
		return nil, fmt.Errorf("%w: read past end of container at line %d", format.ErrSyntax, top.node.Line)
	}
	n := top.node.Content[top.pos]
	top.pos++
	return resolveAlias(n), nil
}

func (d *Decoder) enter(kind yaml.Kind, what string) (*frame, error) {
	n, err := d.next()
	if err != nil {
		return nil, err
	}
	if n.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s at line %d", format.ErrSyntax, what, n.Line)
	}
	f := &frame{node: n}
	d.stack = append(d.stack, f)
	return f, nil
}

func (d *Decoder) leave(kind yaml.Kind) error {
	if len(d.stack) == 0 {
		return fmt.Errorf("%w: unbalanced end", format.ErrSyntax)
	}
	top := d.stack[len(d.stack)-1]
	if top.node.Kind != kind {
		return fmt.Errorf("%w: unbalanced end", format.ErrSyntax)
	}
	if top.pos < len(top.node.Content) {
		if kind == yaml.MappingNode {
			key := top.node.Content[top.pos]
			return fmt.Errorf("%w: unexpected %q at line %d", format.ErrUnknownField, key.Value, key.Line)
		}
		return fmt.Errorf("%w: unread items at line %d", format.ErrSyntax, top.node.Line)
	}
	d.stack = d.stack[:len(d.stack)-1]
	return nil
}

func (d *Decoder) BeginMap(fields ...string) error {
	f, err := d.enter(yaml.MappingNode, "map")
	if err != nil {
		return err
	}
	f.fields = fields
	return nil
}

func (d *Decoder) Field(name string) error {
	if len(d.stack) == 0 || d.stack[len(d.stack)-1].node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: field %q outside of a map", format.ErrSyntax, name)
	}
	top := d.stack[len(d.stack)-1]
	if top.pos%2 != 0 {
		return fmt.Errorf("%w: value of previous field not read", format.ErrSyntax)
	}
	if top.pos >= len(top.node.Content) {
		return fmt.Errorf("%w: missing %q at line %d", format.ErrFieldOrder, name, top.node.Line)
	}
	key := top.node.Content[top.pos]
	if key.Value != name {
		return fmt.Errorf("line %d: %w", key.Line, format.FieldError(name, key.Value, top.fields))
	}
	top.pos++
	return nil
}

func (d *Decoder) EndMap() error { return d.leave(yaml.MappingNode) }

func (d *Decoder) BeginSeq() (int, error) {
	f, err := d.enter(yaml.SequenceNode, "sequence")
	if err != nil {
		return 0, err
	}
	return len(f.node.Content), nil
}

func (d *Decoder) EndSeq() error { return d.leave(yaml.SequenceNode) }

func (d *Decoder) Variant(names ...string) (uint32, error) {
	f, err := d.enter(yaml.MappingNode, "variant")
	if err != nil {
		return 0, err
	}
	if len(f.node.Content) != 2 {
		return 0, fmt.Errorf("%w: variant at line %d must have exactly one key", format.ErrSyntax, f.node.Line)
	}
	key := f.node.Content[0]
	for i, name := range names {
		if key.Value == name {
			f.pos = 1
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("line %d: %w: variant %q", key.Line, format.ErrUnknownField, key.Value)
}

func (d *Decoder) EndVariant() error { return d.leave(yaml.MappingNode) }

func (d *Decoder) scalar(tag string) (*yaml.Node, error) {
	n, err := d.next()
	if err != nil {
		return nil, err
	}
	if n.Kind != yaml.ScalarNode || n.ShortTag() != tag {
		return nil, fmt.Errorf("%w: expected %s at line %d, found %s", format.ErrSyntax, tag, n.Line, n.ShortTag())
	}
	return n, nil
}

func (d *Decoder) UUID() (uuid.UUID, error) {
	n, err := d.scalar(tagStr)
	if err != nil {
		return uuid.UUID{}, err
	}
	id, err := uuid.Parse(n.Value)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: line %d: %v", format.ErrSyntax, n.Line, err)
	}
	return id, nil
}

func (d *Decoder) String() (string, error) {
	n, err := d.scalar(tagStr)
	if err != nil {
		return "", err
	}
	return n.Value, nil
}

func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.scalar(tagBinary)
	if err != nil {
		return nil, err
	}
	return decodeBinary(n)
}

func (d *Decoder) Value() (value.Value, error) {
	n, err := d.next()
	if err != nil {
		return value.Value{}, err
	}
	return toValue(n)
}

func (d *Decoder) Finish() error {
	if len(d.stack) != 0 {
		return fmt.Errorf("%w: %d unclosed containers", format.ErrSyntax, len(d.stack))
	}
	if !d.done {
		return fmt.Errorf("%w: document not read", format.ErrSyntax)
	}
	return nil
}

func decodeBinary(n *yaml.Node) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, n.Value)
	p, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: line %d: %v", format.ErrSyntax, n.Line, err)
	}
	return p, nil
}

func toValue(n *yaml.Node) (value.Value, error) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.SequenceNode:
		items := make([]value.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := toValue(c)
			if err != nil {
				return value.Value{}, err
			}
			items = append(items, v)
		}
		return value.NewSeq(items...), nil
	case yaml.MappingNode:
		entries := make([]value.Entry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := resolveAlias(n.Content[i])
			if key.Kind != yaml.ScalarNode {
				return value.Value{}, fmt.Errorf("%w: non-scalar key at line %d", format.ErrSyntax, key.Line)
			}
			v, err := toValue(n.Content[i+1])
			if err != nil {
				return value.Value{}, err
			}
			entries = append(entries, value.Entry{Key: key.Value, Value: v})
		}
		return value.NewMap(entries...), nil
	case yaml.ScalarNode:
		return scalarValue(n)
	}
	return value.Value{}, fmt.Errorf("%w: unexpected node at line %d", format.ErrSyntax, n.Line)
}

func scalarValue(n *yaml.Node) (value.Value, error) {
	switch n.ShortTag() {
	case tagNull:
		return value.NewNull(), nil
	case tagBool:
		var b bool
		if err := n.Decode(&b); err != nil {
			return value.Value{}, err
		}
		return value.NewBool(b), nil
	case tagInt:
		var i int64
		if err := n.Decode(&i); err == nil {
			return value.NewInt(i), nil
		}
		var u uint64
		if err := n.Decode(&u); err != nil {
			return value.Value{}, err
		}
		return value.NewUint(u), nil
	case tagFloat:
		var f float64
		if err := n.Decode(&f); err != nil {
			return value.Value{}, err
		}
		return value.NewFloat(f), nil
	case tagBinary:
		p, err := decodeBinary(n)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBytes(p), nil
	case tagStr:
		return value.NewString(n.Value), nil
	}
	return value.Value{}, fmt.Errorf("%w: unsupported tag %s at line %d", format.ErrSyntax, n.ShortTag(), n.Line)
}
