package codec

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/zeusync/prefab/internal/core/ecs"
	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/registry"
)

// WriteWorld encodes w archetype by archetype:
//
//	{ world: [ { types: [id], entities: [uuid], columns: [ { type, data } ] } ] }
//
// Archetypes are ordered by their type lists and every live entity must have
// a uuid in names.
func WriteWorld(enc format.Encoder, reg *registry.Registry, w *ecs.World, names map[ecs.Entity]models.EntityUUID) error {
	const op = "write world"
	views := w.Archetypes()
	slices.SortFunc(views, func(a, b ecs.ArchetypeView) int {
		return slices.CompareFunc(a.Types(), b.Types(), models.Compare[models.ComponentTypeID])
	})

	if err := enc.BeginMap(); err != nil {
		return wrap(op, "", err)
	}
	if err := enc.Field("world"); err != nil {
		return wrap(op, "", err)
	}
	if err := enc.BeginSeq(len(views)); err != nil {
		return wrap(op, "world", err)
	}
	for i, view := range views {
		if err := writeArchetype(enc, reg, view, names, fmt.Sprintf("world[%d]", i)); err != nil {
			return err
		}
	}
	if err := enc.EndSeq(); err != nil {
		return wrap(op, "world", err)
	}
	return wrap(op, "", enc.EndMap())
}

func writeArchetype(enc format.Encoder, reg *registry.Registry, view ecs.ArchetypeView, names map[ecs.Entity]models.EntityUUID, path string) error {
	const op = "write archetype"
	types := view.Types()
	entities := view.Entities()

	regs := make([]registry.Registration, len(types))
	for i, id := range types {
		r, err := reg.Lookup(id)
		if err != nil {
			return wrap(op, path, err)
		}
		regs[i] = r
	}

	if err := enc.BeginMap(); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.Field("types"); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.BeginSeq(len(types)); err != nil {
		return wrap(op, path+".types", err)
	}
	for _, id := range types {
		if err := enc.UUID(uuid.UUID(id)); err != nil {
			return wrap(op, path+".types", err)
		}
	}
	if err := enc.EndSeq(); err != nil {
		return wrap(op, path+".types", err)
	}

	if err := enc.Field("entities"); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.BeginSeq(len(entities)); err != nil {
		return wrap(op, path+".entities", err)
	}
	for _, e := range entities {
		name, ok := names[e]
		if !ok {
			return wrap(op, path+".entities", fmt.Errorf("%w: %s", ErrUnnamedEntity, e))
		}
		if err := enc.UUID(uuid.UUID(name)); err != nil {
			return wrap(op, path+".entities", err)
		}
	}
	if err := enc.EndSeq(); err != nil {
		return wrap(op, path+".entities", err)
	}

	if err := enc.Field("columns"); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.BeginSeq(len(types)); err != nil {
		return wrap(op, path+".columns", err)
	}
	for i, id := range types {
		cpath := fmt.Sprintf("%s.columns[%d]", path, i)
		col, _ := view.Column(id)
		if err := enc.BeginMap(); err != nil {
			return wrap(op, cpath, err)
		}
		if err := enc.Field("type"); err != nil {
			return wrap(op, cpath, err)
		}
		if err := enc.UUID(uuid.UUID(id)); err != nil {
			return wrap(op, cpath+".type", err)
		}
		if err := enc.Field("data"); err != nil {
			return wrap(op, cpath, err)
		}
		if err := regs[i].SerializeColumn(enc, col, 0, len(entities)); err != nil {
			return wrap(op, cpath+".data", err)
		}
		if err := enc.EndMap(); err != nil {
			return wrap(op, cpath, err)
		}
	}
	if err := enc.EndSeq(); err != nil {
		return wrap(op, path+".columns", err)
	}
	return wrap(op, path, enc.EndMap())
}

// ReadWorld decodes a world written by WriteWorld and rebuilds its uuid
// lookup table.
func ReadWorld(dec format.Decoder, reg *registry.Registry) (*ecs.World, map[models.EntityUUID]ecs.Entity, error) {
	const op = "read world"
	w := ecs.NewWorld()
	lookup := make(map[models.EntityUUID]ecs.Entity)

	if err := dec.BeginMap("world"); err != nil {
		return nil, nil, wrap(op, "", err)
	}
	if err := dec.Field("world"); err != nil {
		return nil, nil, wrap(op, "", err)
	}
	n, err := dec.BeginSeq()
	if err != nil {
		return nil, nil, wrap(op, "world", err)
	}
	for i := 0; i < n; i++ {
		if err := readArchetype(dec, reg, w, lookup, fmt.Sprintf("world[%d]", i)); err != nil {
			return nil, nil, err
		}
	}
	if err := dec.EndSeq(); err != nil {
		return nil, nil, wrap(op, "world", err)
	}
	if err := dec.EndMap(); err != nil {
		return nil, nil, wrap(op, "", err)
	}
	return w, lookup, nil
}

func readArchetype(dec format.Decoder, reg *registry.Registry, w *ecs.World, lookup map[models.EntityUUID]ecs.Entity, path string) error {
	const op = "read archetype"
	if err := dec.BeginMap("types", "entities", "columns"); err != nil {
		return wrap(op, path, err)
	}

	if err := dec.Field("types"); err != nil {
		return wrap(op, path, err)
	}
	nt, err := dec.BeginSeq()
	if err != nil {
		return wrap(op, path+".types", err)
	}
	regs := make([]registry.Registration, nt)
	for i := range regs {
		raw, err := dec.UUID()
		if err != nil {
			return wrap(op, path+".types", err)
		}
		id := models.ComponentTypeID(raw)
		if i > 0 && models.Compare(regs[i-1].ID(), id) >= 0 {
			return wrap(op, path+".types", fmt.Errorf("%w: types not in ascending order", ErrMalformed))
		}
		if regs[i], err = reg.Lookup(id); err != nil {
			return wrap(op, path+".types", err)
		}
	}
	if err := dec.EndSeq(); err != nil {
		return wrap(op, path+".types", err)
	}

	if err := dec.Field("entities"); err != nil {
		return wrap(op, path, err)
	}
	ne, err := dec.BeginSeq()
	if err != nil {
		return wrap(op, path+".entities", err)
	}
	names := make([]models.EntityUUID, ne)
	for i := range names {
		raw, err := dec.UUID()
		if err != nil {
			return wrap(op, path+".entities", err)
		}
		names[i] = models.EntityUUID(raw)
	}
	if err := dec.EndSeq(); err != nil {
		return wrap(op, path+".entities", err)
	}

	protos := make([]ecs.Column, len(regs))
	for i, r := range regs {
		protos[i] = r.NewColumn()
	}
	spawned := w.SpawnBatch(ne, protos...)
	for i, e := range spawned {
		if _, dup := lookup[names[i]]; dup {
			return wrap(op, path+".entities", fmt.Errorf("%w: %s", ErrDuplicateEntity, names[i]))
		}
		lookup[names[i]] = e
	}

	if err := dec.Field("columns"); err != nil {
		return wrap(op, path, err)
	}
	nc, err := dec.BeginSeq()
	if err != nil {
		return wrap(op, path+".columns", err)
	}
	if nc != len(regs) {
		return wrap(op, path+".columns", fmt.Errorf("%w: %d columns for %d types", ErrMalformed, nc, len(regs)))
	}
	for i, r := range regs {
		cpath := fmt.Sprintf("%s.columns[%d]", path, i)
		if err := dec.BeginMap("type", "data"); err != nil {
			return wrap(op, cpath, err)
		}
		if err := dec.Field("type"); err != nil {
			return wrap(op, cpath, err)
		}
		raw, err := dec.UUID()
		if err != nil {
			return wrap(op, cpath+".type", err)
		}
		if models.ComponentTypeID(raw) != r.ID() {
			return wrap(op, cpath+".type", fmt.Errorf("%w: column %s does not match type %s", ErrMalformed, models.ComponentTypeID(raw), r.ID()))
		}
		if err := dec.Field("data"); err != nil {
			return wrap(op, cpath, err)
		}
		col, start := r.NewColumn(), 0
		if ne > 0 {
			col, start, _ = w.Location(spawned[0], r.ID())
		}
		if err := r.DeserializeColumn(dec, col, start, ne); err != nil {
			return wrap(op, cpath+".data", err)
		}
		if err := dec.EndMap(); err != nil {
			return wrap(op, cpath, err)
		}
	}
	if err := dec.EndSeq(); err != nil {
		return wrap(op, path+".columns", err)
	}
	return wrap(op, path, dec.EndMap())
}
