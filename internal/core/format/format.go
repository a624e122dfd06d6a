// Package format declares the push/pull capabilities a physical encoding
// offers to the prefab traversal driver. The driver never knows which
// encoding it is talking to; it only asks whether the format is
// self-describing.
package format

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zeusync/prefab/internal/core/value"
)

var (
	// ErrFieldOrder reports a known field that arrived before or after its slot.
	ErrFieldOrder = errors.New("field out of order")
	// ErrUnknownField reports a field name the schema does not declare.
	ErrUnknownField = errors.New("unknown field")
	ErrUnsupported  = errors.New("not supported by this format")
	ErrSyntax       = errors.New("malformed input")
	ErrUnknownKind  = errors.New("unknown format kind")
)

// Encoder receives a document in traversal order.
type Encoder interface {
	// SelfDescribing reports whether Value can be used. When false, dynamic
	// payloads must be flattened to Bytes first.
	SelfDescribing() bool

	BeginMap() error
	Field(name string) error
	EndMap() error

	// BeginSeq starts a sequence of exactly n items.
	BeginSeq(n int) error
	EndSeq() error

	// Variant starts one alternative of a tagged union.
	Variant(tag uint32, name string) error
	EndVariant() error

	UUID(id uuid.UUID) error
	String(s string) error
	Value(v value.Value) error
	Bytes(p []byte) error

	// Finish returns the encoded document.
	Finish() ([]byte, error)
}

// Decoder yields a document in the order it was encoded.
type Decoder interface {
	SelfDescribing() bool

	// BeginMap enters a map whose schema declares fields, in order.
	BeginMap(fields ...string) error
	// Field asserts that the next field is name.
	Field(name string) error
	EndMap() error

	// BeginSeq enters a sequence and returns its length.
	BeginSeq() (int, error)
	EndSeq() error

	// Variant enters a tagged union and returns the index of the
	// alternative within names.
	Variant(names ...string) (uint32, error)
	EndVariant() error

	UUID() (uuid.UUID, error)
	String() (string, error)
	Value() (value.Value, error)
	Bytes() ([]byte, error)

	// Finish checks that the whole input was consumed.
	Finish() error
}

// Kind names a physical encoding.
type Kind uint8

const (
	Text Kind = iota + 1
	Compact
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Compact:
		return "compact"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Extension is the file extension used for documents of kind k.
func (k Kind) Extension() string {
	switch k {
	case Text:
		return ".prefab.yaml"
	case Compact:
		return ".prefab.bin"
	}
	return ""
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "yaml":
		return Text, nil
	case "compact", "binary", "bin":
		return Compact, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// UnmarshalText lets Kind appear directly in config files.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// FieldError builds the error for a field that does not match the expected
// name. known is the declared field list of the enclosing map.
func FieldError(want, got string, known []string) error {
	for _, f := range known {
		if f == got {
			return fmt.Errorf("%w: expected %q, found %q", ErrFieldOrder, want, got)
		}
	}
	return fmt.Errorf("%w: %q (expected %q)", ErrUnknownField, got, want)
}
