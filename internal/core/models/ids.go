package models

import (
	"bytes"
	"slices"

	"github.com/google/uuid"
)

// ComponentTypeID identifies a component type across builds. It is assigned
// once per type at registration and is the key used on the wire.
type ComponentTypeID uuid.UUID

// EntityUUID is the stable identity of an entity across save, cook and load.
type EntityUUID uuid.UUID

// PrefabUUID is the stable identity of a prefab asset.
type PrefabUUID uuid.UUID

// ID is satisfied by every identifier type in this package.
type ID interface {
	~[16]byte
}

func NewEntityUUID() EntityUUID { return EntityUUID(uuid.New()) }
func NewPrefabUUID() PrefabUUID { return PrefabUUID(uuid.New()) }

func (id ComponentTypeID) String() string { return uuid.UUID(id).String() }
func (id EntityUUID) String() string      { return uuid.UUID(id).String() }
func (id PrefabUUID) String() string      { return uuid.UUID(id).String() }

func (id ComponentTypeID) IsZero() bool { return id == ComponentTypeID{} }
func (id EntityUUID) IsZero() bool      { return id == EntityUUID{} }
func (id PrefabUUID) IsZero() bool      { return id == PrefabUUID{} }

// Parse decodes the canonical textual form of any identifier type.
func Parse[T ID](s string) (T, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		var zero T
		return zero, err
	}
	return T(u), nil
}

// Must is Parse for literals known to be valid.
func Must[T ID](s string) T {
	return T(uuid.MustParse(s))
}

// Compare orders identifiers by their byte representation.
func Compare[T ID](a, b T) int {
	return bytes.Compare(a[:], b[:])
}

// Sort sorts ids in place by byte order and returns them.
func Sort[T ID](ids []T) []T {
	slices.SortFunc(ids, Compare[T])
	return ids
}

// SortedKeys returns the keys of m in byte order.
func SortedKeys[T ID, V any](m map[T]V) []T {
	keys := make([]T, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return Sort(keys)
}
