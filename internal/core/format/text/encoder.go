// Package text is the self-describing, human-readable physical encoding. A
// document is a YAML mapping built from yaml.Node trees so that field order
// and scalar tags survive exactly.
package text

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/value"
)

const (
	tagNull   = "!!null"
	tagBool   = "!!bool"
	tagInt    = "!!int"
	tagFloat  = "!!float"
	tagStr    = "!!str"
	tagBinary = "!!binary"
)

type Encoder struct {
	root  *yaml.Node
	stack []*yaml.Node
}

var _ format.Encoder = (*Encoder)(nil)

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) SelfDescribing() bool { return true }

func (e *Encoder) push(n *yaml.Node) error {
	if len(e.stack) == 0 {
		if e.root != nil {
			return fmt.Errorf("%w: second top-level value", format.ErrSyntax)
		}
		e.root = n
		return nil
	}
	top := e.stack[len(e.stack)-1]
	top.Content = append(top.Content, n)
	return nil
}

func (e *Encoder) open(kind yaml.Kind) error {
	n := &yaml.Node{Kind: kind}
	if err := e.push(n); err != nil {
		return err
	}
	e.stack = append(e.stack, n)
	return nil
}

func (e *Encoder) close(kind yaml.Kind) error {
	if len(e.stack) == 0 || e.stack[len(e.stack)-1].Kind != kind {
		return fmt.Errorf("%w: unbalanced end", format.ErrSyntax)
	}
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

func (e *Encoder) BeginMap() error { return e.open(yaml.MappingNode) }
func (e *Encoder) EndMap() error   { return e.close(yaml.MappingNode) }

func (e *Encoder) Field(name string) error {
	if len(e.stack) == 0 || e.stack[len(e.stack)-1].Kind != yaml.MappingNode {
		return fmt.Errorf("%w: field %q outside of a map", format.ErrSyntax, name)
	}
	return e.push(scalar(tagStr, name))
}

func (e *Encoder) BeginSeq(int) error { return e.open(yaml.SequenceNode) }
func (e *Encoder) EndSeq() error      { return e.close(yaml.SequenceNode) }

// Variant is written as a single-entry map keyed by the alternative's name.
func (e *Encoder) Variant(_ uint32, name string) error {
	if err := e.BeginMap(); err != nil {
		return err
	}
	return e.Field(name)
}

func (e *Encoder) EndVariant() error { return e.EndMap() }

func (e *Encoder) UUID(id uuid.UUID) error {
	return e.push(scalar(tagStr, id.String()))
}

func (e *Encoder) String(s string) error {
	return e.push(scalar(tagStr, s))
}

func (e *Encoder) Bytes(p []byte) error {
	return e.push(scalar(tagBinary, base64.StdEncoding.EncodeToString(p)))
}

func (e *Encoder) Value(v value.Value) error {
	return e.push(node(v))
}

func (e *Encoder) Finish() ([]byte, error) {
	if len(e.stack) != 0 {
		return nil, fmt.Errorf("%w: %d unclosed containers", format.ErrSyntax, len(e.stack))
	}
	if e.root == nil {
		return nil, fmt.Errorf("%w: empty document", format.ErrSyntax)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(e.root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scalar(tag, v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v}
}

func node(v value.Value) *yaml.Node {
	switch v.Kind() {
	case value.Bool:
		b, _ := v.AsBool()
		return scalar(tagBool, strconv.FormatBool(b))
	case value.Int:
		i, _ := v.AsInt()
		return scalar(tagInt, strconv.FormatInt(i, 10))
	case value.Uint:
		u, _ := v.AsUint()
		return scalar(tagInt, strconv.FormatUint(u, 10))
	case value.Float:
		f, _ := v.AsFloat()
		return scalar(tagFloat, formatFloat(f))
	case value.String:
		s, _ := v.AsString()
		return scalar(tagStr, s)
	case value.Bytes:
		p, _ := v.AsBytes()
		return scalar(tagBinary, base64.StdEncoding.EncodeToString(p))
	case value.Seq:
		items, _ := v.AsSeq()
		n := &yaml.Node{Kind: yaml.SequenceNode, Content: make([]*yaml.Node, 0, len(items))}
		for _, item := range items {
			n.Content = append(n.Content, node(item))
		}
		if len(items) == 0 {
			n.Style = yaml.FlowStyle
		}
		return n
	case value.Map:
		entries, _ := v.AsMap()
		n := &yaml.Node{Kind: yaml.MappingNode, Content: make([]*yaml.Node, 0, 2*len(entries))}
		for _, en := range entries {
			n.Content = append(n.Content, scalar(tagStr, en.Key), node(en.Value))
		}
		if len(entries) == 0 {
			n.Style = yaml.FlowStyle
		}
		return n
	}
	return scalar(tagNull, "null")
}

// formatFloat keeps a decimal point or exponent so the scalar resolves as a
// float and not as an int when read back.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
