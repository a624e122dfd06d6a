// Package compact is the positional binary encoding. It carries no field
// names and no type tags, so dynamic values must be flattened to bytes before
// they reach it.
package compact

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/value"
	"github.com/zeusync/prefab/pkg/encoding"
	"github.com/zeusync/prefab/pkg/generic"
)

// Magic starts every compact document.
var Magic = [4]byte{'P', 'F', 'B', '1'}

var buffers = generic.NewPool(encoding.NewBuffer, (*encoding.Buffer).Reset)

type Encoder struct {
	buf   *encoding.Buffer
	depth int
}

var _ format.Encoder = (*Encoder)(nil)

func NewEncoder() *Encoder {
	buf := buffers.Get()
	_, _ = buf.Write(Magic[:])
	return &Encoder{buf: buf}
}

func (e *Encoder) SelfDescribing() bool { return false }

func (e *Encoder) BeginMap() error { e.depth++; return nil }
func (e *Encoder) Field(string) error {
	if e.depth == 0 {
		return fmt.Errorf("%w: field outside of a map", format.ErrSyntax)
	}
	return nil
}
func (e *Encoder) EndMap() error { return e.end() }

func (e *Encoder) BeginSeq(n int) error {
	e.depth++
	e.buf.WriteUvarint(uint64(n))
	return nil
}

func (e *Encoder) EndSeq() error { return e.end() }

func (e *Encoder) Variant(tag uint32, _ string) error {
	e.depth++
	e.buf.WriteUvarint(uint64(tag))
	return nil
}

func (e *Encoder) EndVariant() error { return e.end() }

func (e *Encoder) end() error {
	if e.depth == 0 {
		return fmt.Errorf("%w: unbalanced end", format.ErrSyntax)
	}
	e.depth--
	return nil
}

func (e *Encoder) UUID(id uuid.UUID) error {
	_, _ = e.buf.Write(id[:])
	return nil
}

func (e *Encoder) String(s string) error {
	e.buf.WriteString(s)
	return nil
}

func (e *Encoder) Bytes(p []byte) error {
	e.buf.WriteBlob(p)
	return nil
}

func (e *Encoder) Value(value.Value) error {
	return fmt.Errorf("%w: dynamic values", format.ErrUnsupported)
}

// Finish returns the document and releases the encoder's buffer. The encoder
// must not be used afterwards.
func (e *Encoder) Finish() ([]byte, error) {
	if e.buf == nil {
		return nil, fmt.Errorf("%w: encoder already finished", format.ErrSyntax)
	}
	if e.depth != 0 {
		return nil, fmt.Errorf("%w: %d unclosed containers", format.ErrSyntax, e.depth)
	}
	out := bytes.Clone(e.buf.Bytes())
	buffers.Put(e.buf)
	e.buf = nil
	return out, nil
}

type Decoder struct {
	buf   *encoding.Buffer
	depth int
}

var _ format.Decoder = (*Decoder)(nil)

// NewDecoder checks the magic and positions the decoder on the first value.
func NewDecoder(data []byte) (*Decoder, error) {
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, fmt.Errorf("%w: missing compact magic", format.ErrSyntax)
	}
	return &Decoder{buf: encoding.NewBufferFrom(data[len(Magic):])}, nil
}

func (d *Decoder) SelfDescribing() bool { return false }

func (d *Decoder) BeginMap(...string) error { d.depth++; return nil }
func (d *Decoder) Field(string) error       { return nil }
func (d *Decoder) EndMap() error            { return d.end() }

// BeginSeq reads the item count. Every item this format stores takes at
// least one byte, which bounds the count by the remaining input.
func (d *Decoder) BeginSeq() (int, error) {
	n, err := d.buf.ReadLen(1)
	if err != nil {
		return 0, fmt.Errorf("%w: sequence length: %v", format.ErrSyntax, err)
	}
	d.depth++
	return n, nil
}

func (d *Decoder) EndSeq() error { return d.end() }

func (d *Decoder) Variant(names ...string) (uint32, error) {
	tag, err := d.buf.ReadUvarint()
	if err != nil {
		return 0, fmt.Errorf("%w: variant tag: %v", format.ErrSyntax, err)
	}
	if tag >= uint64(len(names)) {
		return 0, fmt.Errorf("%w: variant tag %d", format.ErrUnknownField, tag)
	}
	d.depth++
	return uint32(tag), nil
}

func (d *Decoder) EndVariant() error { return d.end() }

func (d *Decoder) end() error {
	if d.depth == 0 {
		return fmt.Errorf("%w: unbalanced end", format.ErrSyntax)
	}
	d.depth--
	return nil
}

func (d *Decoder) UUID() (uuid.UUID, error) {
	p, err := d.buf.ReadN(16)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: uuid: %v", format.ErrSyntax, err)
	}
	return uuid.UUID(p), nil
}

func (d *Decoder) String() (string, error) {
	s, err := d.buf.ReadString()
	if err != nil {
		return "", fmt.Errorf("%w: string: %v", format.ErrSyntax, err)
	}
	return s, nil
}

func (d *Decoder) Bytes() ([]byte, error) {
	p, err := d.buf.ReadBlob()
	if err != nil {
		return nil, fmt.Errorf("%w: blob: %v", format.ErrSyntax, err)
	}
	return p, nil
}

func (d *Decoder) Value() (value.Value, error) {
	return value.Value{}, fmt.Errorf("%w: dynamic values", format.ErrUnsupported)
}

func (d *Decoder) Finish() error {
	if d.depth != 0 {
		return fmt.Errorf("%w: %d unclosed containers", format.ErrSyntax, d.depth)
	}
	if n := d.buf.Remaining(); n != 0 {
		return fmt.Errorf("%w: %d trailing bytes", format.ErrSyntax, n)
	}
	return nil
}
