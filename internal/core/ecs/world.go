// Package ecs is the archetype-columnar entity/component store that prefabs,
// cooked prefabs and transactions keep their data in.
package ecs

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/prefab/internal/core/models"
)

var (
	ErrDeadEntity = errors.New("entity is not alive")
	ErrColumnType = errors.New("column holds a different component type")
)

// Entity is a live handle. It is only meaningful inside the World that issued
// it; the Version guards against reuse of recycled IDs.
type Entity struct {
	ID      uint32
	Version uint32
}

func (e Entity) String() string {
	return fmt.Sprintf("%d:%d", e.ID, e.Version)
}

type entityMeta struct {
	arch    *archetype
	row     int
	version uint32
}

type archetype struct {
	key      uint64
	types    []models.ComponentTypeID
	columns  []Column
	entities []Entity
}

func (a *archetype) index(id models.ComponentTypeID) int {
	i, found := slices.BinarySearchFunc(a.types, id, models.Compare[models.ComponentTypeID])
	if !found {
		return -1
	}
	return i
}

// World stores entities grouped by archetype, one column per component type.
type World struct {
	metas      []entityMeta
	free       []uint32
	alive      int
	archetypes []*archetype
	byKey      map[uint64][]*archetype
	empty      *archetype
}

func NewWorld() *World {
	w := &World{byKey: make(map[uint64][]*archetype)}
	w.empty = w.archetype(nil, nil)
	return w
}

func archetypeKey(types []models.ComponentTypeID) uint64 {
	h := xxhash.New()
	for _, id := range types {
		_, _ = h.Write(id[:])
	}
	return h.Sum64()
}

// archetype finds or creates the archetype for the sorted types. columns
// supplies one prototype per type when the archetype must be created.
func (w *World) archetype(types []models.ComponentTypeID, columns []Column) *archetype {
	key := archetypeKey(types)
	for _, a := range w.byKey[key] {
		if slices.Equal(a.types, types) {
			return a
		}
	}
	a := &archetype{key: key, types: slices.Clone(types), columns: make([]Column, len(columns))}
	for i, proto := range columns {
		a.columns[i] = proto.New()
	}
	w.archetypes = append(w.archetypes, a)
	w.byKey[key] = append(w.byKey[key], a)
	return a
}

func (w *World) meta(e Entity) (*entityMeta, bool) {
	if int(e.ID) >= len(w.metas) {
		return nil, false
	}
	m := &w.metas[e.ID]
	if m.arch == nil || m.version != e.Version {
		return nil, false
	}
	return m, true
}

func (w *World) allocate() Entity {
	if n := len(w.free); n > 0 {
		id := w.free[n-1]
		w.free = w.free[:n-1]
		return Entity{ID: id, Version: w.metas[id].version}
	}
	w.metas = append(w.metas, entityMeta{version: 1})
	return Entity{ID: uint32(len(w.metas) - 1), Version: 1}
}

func (w *World) place(e Entity, a *archetype) {
	m := &w.metas[e.ID]
	m.arch = a
	m.row = len(a.entities)
	a.entities = append(a.entities, e)
	w.alive++
}

// Spawn creates an entity with no components.
func (w *World) Spawn() Entity {
	e := w.allocate()
	w.place(e, w.empty)
	return e
}

// SpawnBatch creates n entities that carry a zero value of every prototype's
// component type. The entities occupy consecutive rows of one archetype.
func (w *World) SpawnBatch(n int, protos ...Column) []Entity {
	protos = slices.Clone(protos)
	slices.SortFunc(protos, func(a, b Column) int { return models.Compare(a.TypeID(), b.TypeID()) })
	types := make([]models.ComponentTypeID, len(protos))
	for i, p := range protos {
		types[i] = p.TypeID()
	}
	a := w.archetype(types, protos)

	out := make([]Entity, n)
	for i := range out {
		e := w.allocate()
		for _, col := range a.columns {
			col.AppendZero()
		}
		w.place(e, a)
		out[i] = e
	}
	return out
}

// Despawn removes e and all its components.
func (w *World) Despawn(e Entity) bool {
	m, ok := w.meta(e)
	if !ok {
		return false
	}
	w.detach(m.arch, m.row)
	m.arch = nil
	m.version++
	w.free = append(w.free, e.ID)
	w.alive--
	return true
}

// detach drops row from a, moving the last row into its place.
func (w *World) detach(a *archetype, row int) {
	last := len(a.entities) - 1
	for _, col := range a.columns {
		col.SwapRemove(row)
	}
	if row != last {
		moved := a.entities[last]
		a.entities[row] = moved
		w.metas[moved.ID].row = row
	}
	a.entities = a.entities[:last]
}

// move transfers e into dst, copying shared columns and zero-filling new ones.
func (w *World) move(e Entity, m *entityMeta, dst *archetype) {
	src, row := m.arch, m.row
	for i, id := range dst.types {
		if j := src.index(id); j >= 0 {
			dst.columns[i].AppendFrom(src.columns[j], row)
		} else {
			dst.columns[i].AppendZero()
		}
	}
	w.detach(src, row)
	w.alive--
	w.place(e, dst)
}

func (w *World) Alive(e Entity) bool {
	_, ok := w.meta(e)
	return ok
}

// Len is the number of live entities.
func (w *World) Len() int {
	return w.alive
}

// Entities returns every live entity in ascending ID order.
func (w *World) Entities() []Entity {
	out := make([]Entity, 0, w.alive)
	for id := range w.metas {
		m := &w.metas[id]
		if m.arch != nil {
			out = append(out, Entity{ID: uint32(id), Version: m.version})
		}
	}
	return out
}

func (w *World) Has(e Entity, id models.ComponentTypeID) bool {
	m, ok := w.meta(e)
	return ok && m.arch.index(id) >= 0
}

// ComponentTypes lists the component types of e in ascending id order.
func (w *World) ComponentTypes(e Entity) []models.ComponentTypeID {
	m, ok := w.meta(e)
	if !ok {
		return nil
	}
	return slices.Clone(m.arch.types)
}

// Location returns the column and row holding component id of e.
func (w *World) Location(e Entity, id models.ComponentTypeID) (Column, int, bool) {
	m, ok := w.meta(e)
	if !ok {
		return nil, 0, false
	}
	i := m.arch.index(id)
	if i < 0 {
		return nil, 0, false
	}
	return m.arch.columns[i], m.row, true
}

// AddZero makes sure e has a component of proto's type, adding a zero value if
// it is missing, and returns its location.
func (w *World) AddZero(e Entity, proto Column) (Column, int, error) {
	m, ok := w.meta(e)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrDeadEntity, e)
	}
	id := proto.TypeID()
	if i := m.arch.index(id); i >= 0 {
		return m.arch.columns[i], m.row, nil
	}

	src := m.arch
	types := make([]models.ComponentTypeID, 0, len(src.types)+1)
	columns := make([]Column, 0, len(src.types)+1)
	inserted := false
	for i, t := range src.types {
		if !inserted && models.Compare(id, t) < 0 {
			types, columns = append(types, id), append(columns, proto)
			inserted = true
		}
		types, columns = append(types, t), append(columns, src.columns[i])
	}
	if !inserted {
		types, columns = append(types, id), append(columns, proto)
	}

	w.move(e, m, w.archetype(types, columns))
	m = &w.metas[e.ID]
	return m.arch.columns[m.arch.index(id)], m.row, nil
}

// Remove drops component id from e. It reports whether anything was removed.
func (w *World) Remove(e Entity, id models.ComponentTypeID) bool {
	m, ok := w.meta(e)
	if !ok {
		return false
	}
	i := m.arch.index(id)
	if i < 0 {
		return false
	}
	src := m.arch
	types := slices.Delete(slices.Clone(src.types), i, i+1)
	columns := slices.Delete(slices.Clone(src.columns), i, i+1)
	w.move(e, m, w.archetype(types, columns))
	return true
}

// Set stores v as component id of e, adding the component when missing.
func Set[T any](w *World, e Entity, id models.ComponentTypeID, v T) error {
	col, row, err := w.AddZero(e, NewColumn[T](id))
	if err != nil {
		return err
	}
	tc, err := Typed[T](col)
	if err != nil {
		return err
	}
	*tc.At(row) = v
	return nil
}

// Get returns a pointer to component id of e. The pointer is valid until the
// next structural change of w.
func Get[T any](w *World, e Entity, id models.ComponentTypeID) (*T, bool) {
	col, row, ok := w.Location(e, id)
	if !ok {
		return nil, false
	}
	tc, ok := col.(*TypedColumn[T])
	if !ok {
		return nil, false
	}
	return tc.At(row), true
}

// ArchetypeView is a read-only window onto one archetype.
type ArchetypeView struct {
	a *archetype
}

func (v ArchetypeView) Types() []models.ComponentTypeID { return slices.Clone(v.a.types) }
func (v ArchetypeView) Entities() []Entity              { return slices.Clone(v.a.entities) }
func (v ArchetypeView) Len() int                        { return len(v.a.entities) }

func (v ArchetypeView) Column(id models.ComponentTypeID) (Column, bool) {
	i := v.a.index(id)
	if i < 0 {
		return nil, false
	}
	return v.a.columns[i], true
}

// Archetypes returns views of every non-empty archetype.
func (w *World) Archetypes() []ArchetypeView {
	out := make([]ArchetypeView, 0, len(w.archetypes))
	for _, a := range w.archetypes {
		if len(a.entities) > 0 {
			out = append(out, ArchetypeView{a: a})
		}
	}
	return out
}
