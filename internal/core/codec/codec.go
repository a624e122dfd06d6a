// Package codec walks the logical prefab schema over any physical format.
//
//	Prefab            := { id, objects: [PrefabObject] }
//	PrefabObject      := entity{ id, components: [Component] }
//	                   | prefab_ref{ prefab_id, entity_overrides: [EntityOverride] }
//	Component         := { type, data }
//	EntityOverride    := { entity_id, component_overrides: [ComponentOverride] }
//	ComponentOverride := { component_type, diff }
//
// Field order is part of the schema: a type id always precedes the payload it
// selects a registration for.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/format/compact"
	"github.com/zeusync/prefab/internal/core/format/text"
)

var (
	ErrDuplicateEntity    = errors.New("duplicate entity id")
	ErrDuplicateComponent = errors.New("component type listed twice on one entity")
	ErrUnnamedEntity      = errors.New("entity has no uuid")
	ErrMalformed          = errors.New("malformed document")
)

// Error locates a traversal failure inside the document.
type Error struct {
	Op    string
	Path  string
	Cause error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// wrap attaches path to err unless a deeper location is already attached.
func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Op: op, Path: path, Cause: err}
}

func NewEncoder(kind format.Kind) (format.Encoder, error) {
	switch kind {
	case format.Text:
		return text.NewEncoder(), nil
	case format.Compact:
		return compact.NewEncoder(), nil
	}
	return nil, fmt.Errorf("%w: %s", format.ErrUnknownKind, kind)
}

func NewDecoder(kind format.Kind, data []byte) (format.Decoder, error) {
	switch kind {
	case format.Text:
		return text.NewDecoder(data)
	case format.Compact:
		return compact.NewDecoder(data)
	}
	return nil, fmt.Errorf("%w: %s", format.ErrUnknownKind, kind)
}

// Detect guesses the kind of an encoded document from its first bytes.
func Detect(data []byte) format.Kind {
	if bytes.HasPrefix(data, compact.Magic[:]) {
		return format.Compact
	}
	return format.Text
}
