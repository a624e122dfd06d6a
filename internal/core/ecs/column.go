package ecs

import (
	"fmt"

	"github.com/zeusync/prefab/internal/core/models"
)

// Column is the type-erased face of one component column inside an archetype.
// Rows are dense: row i belongs to the i-th entity of the archetype.
type Column interface {
	TypeID() models.ComponentTypeID
	Len() int
	// New returns an empty column of the same component type.
	New() Column
	AppendZero()
	// AppendFrom copies row of src, which must hold the same component type.
	AppendFrom(src Column, row int)
	SwapRemove(row int)
}

// TypedColumn is the concrete storage for components of type T.
type TypedColumn[T any] struct {
	id   models.ComponentTypeID
	data []T
}

func NewColumn[T any](id models.ComponentTypeID) *TypedColumn[T] {
	return &TypedColumn[T]{id: id}
}

func (c *TypedColumn[T]) TypeID() models.ComponentTypeID { return c.id }
func (c *TypedColumn[T]) Len() int                       { return len(c.data) }
func (c *TypedColumn[T]) New() Column                    { return &TypedColumn[T]{id: c.id} }

func (c *TypedColumn[T]) AppendZero() {
	var zero T
	c.data = append(c.data, zero)
}

func (c *TypedColumn[T]) AppendFrom(src Column, row int) {
	s, ok := src.(*TypedColumn[T])
	if !ok {
		panic(fmt.Sprintf("ecs: column type mismatch for %s: %T", c.id, src))
	}
	c.data = append(c.data, s.data[row])
}

func (c *TypedColumn[T]) SwapRemove(row int) {
	last := len(c.data) - 1
	c.data[row] = c.data[last]
	var zero T
	c.data[last] = zero
	c.data = c.data[:last]
}

// At returns a pointer to the component in row. The pointer is invalidated by
// any structural change of the world.
func (c *TypedColumn[T]) At(row int) *T {
	return &c.data[row]
}

// Slice returns rows [start, start+n) with the capacity clipped to n, so a
// caller cannot reach past the live region.
func (c *TypedColumn[T]) Slice(start, n int) []T {
	if start < 0 || n < 0 || start+n > len(c.data) {
		panic(fmt.Sprintf("ecs: rows [%d,%d) out of range for column of %d", start, start+n, len(c.data)))
	}
	return c.data[start : start+n : start+n]
}

// Typed asserts that col stores T.
func Typed[T any](col Column) (*TypedColumn[T], error) {
	tc, ok := col.(*TypedColumn[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %T", ErrColumnType, col.TypeID(), col)
	}
	return tc, nil
}
