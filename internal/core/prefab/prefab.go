// Package prefab holds authored prefabs: an entity world, the uuid of every
// entity in it, and references to other prefabs together with the overrides
// applied on top of them.
package prefab

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/zeusync/prefab/internal/core/ecs"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/registry"
)

var (
	ErrDuplicateEntity = errors.New("duplicate entity uuid")
	ErrDuplicateRef    = errors.New("duplicate prefab reference")
	ErrUnknownEntity   = errors.New("unknown entity uuid")
	ErrDanglingHandle  = errors.New("entity handle does not exist in the world")
	ErrSelfReference   = errors.New("prefab references itself")
	ErrNilRef          = errors.New("nil prefab reference")
)

// ComponentOverride replaces part of one component of a referenced entity.
// Data is the compact structural diff of the component type.
type ComponentOverride struct {
	ComponentType models.ComponentTypeID
	Data          []byte
}

// Ref is a reference to another prefab. Overrides are applied in list order.
type Ref struct {
	Overrides map[models.EntityUUID][]ComponentOverride
}

type Meta struct {
	ID         models.PrefabUUID
	PrefabRefs map[models.PrefabUUID]*Ref
	Entities   map[models.EntityUUID]ecs.Entity
}

type Prefab struct {
	World *ecs.World
	Meta  Meta
}

func New(id models.PrefabUUID) *Prefab {
	return &Prefab{
		World: ecs.NewWorld(),
		Meta: Meta{
			ID:         id,
			PrefabRefs: make(map[models.PrefabUUID]*Ref),
			Entities:   make(map[models.EntityUUID]ecs.Entity),
		},
	}
}

// AddEntity spawns an entity known as id.
func (p *Prefab) AddEntity(id models.EntityUUID) (ecs.Entity, error) {
	if _, ok := p.Meta.Entities[id]; ok {
		return ecs.Entity{}, fmt.Errorf("%w: %s", ErrDuplicateEntity, id)
	}
	e := p.World.Spawn()
	p.Meta.Entities[id] = e
	return e, nil
}

func (p *Prefab) Entity(id models.EntityUUID) (ecs.Entity, bool) {
	e, ok := p.Meta.Entities[id]
	return e, ok
}

// Names inverts the entity table.
func (p *Prefab) Names() map[ecs.Entity]models.EntityUUID {
	out := make(map[ecs.Entity]models.EntityUUID, len(p.Meta.Entities))
	for id, e := range p.Meta.Entities {
		out[e] = id
	}
	return out
}

// SetComponent stores v on the entity known as id. T must be registered.
func SetComponent[T any](reg *registry.Registry, p *Prefab, id models.EntityUUID, v T) error {
	e, ok := p.Meta.Entities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	componentType, err := registry.IDOf[T](reg)
	if err != nil {
		return err
	}
	return ecs.Set(p.World, e, componentType, v)
}

// AddRef returns the reference to target, creating it when missing.
func (p *Prefab) AddRef(target models.PrefabUUID) (*Ref, error) {
	if target == p.Meta.ID {
		return nil, fmt.Errorf("%w: %s", ErrSelfReference, target)
	}
	if ref, ok := p.Meta.PrefabRefs[target]; ok && ref != nil {
		return ref, nil
	}
	ref := &Ref{Overrides: make(map[models.EntityUUID][]ComponentOverride)}
	p.Meta.PrefabRefs[target] = ref
	return ref, nil
}

// AddOverride appends a raw override for entity of target.
func (p *Prefab) AddOverride(target models.PrefabUUID, entity models.EntityUUID, o ComponentOverride) error {
	ref, err := p.AddRef(target)
	if err != nil {
		return err
	}
	ref.Overrides[entity] = append(ref.Overrides[entity], o)
	return nil
}

// SetOverride records the diff that turns base into v as an override of
// entity inside target. Nothing is recorded when they are equal.
func SetOverride[T any](reg *registry.Registry, p *Prefab, target models.PrefabUUID, entity models.EntityUUID, base, v T) error {
	r, ok := registry.KeyOf[T](reg)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnregisteredType, reflect.TypeFor[T]())
	}
	s := r.Schema()
	patch := s.Diff(reflect.ValueOf(&base).Elem(), reflect.ValueOf(&v).Elem())
	if patch.Empty() {
		_, err := p.AddRef(target)
		return err
	}
	data, err := s.EncodePatch(patch)
	if err != nil {
		return err
	}
	return p.AddOverride(target, entity, ComponentOverride{ComponentType: r.ID(), Data: data})
}

// Validate checks that every handle in the entity table is alive, that
// the table covers the whole world and that every reference is usable.
func (p *Prefab) Validate() error {
	for _, target := range models.SortedKeys(p.Meta.PrefabRefs) {
		switch {
		case p.Meta.PrefabRefs[target] == nil:
			return fmt.Errorf("%w: %s", ErrNilRef, target)
		case target == p.Meta.ID:
			return fmt.Errorf("%w: %s", ErrSelfReference, target)
		}
	}
	for id, e := range p.Meta.Entities {
		if !p.World.Alive(e) {
			return fmt.Errorf("%w: %s -> %s", ErrDanglingHandle, id, e)
		}
	}
	if n := p.World.Len(); n != len(p.Meta.Entities) {
		return fmt.Errorf("%w: world has %d entities, table has %d", ErrUnknownEntity, n, len(p.Meta.Entities))
	}
	return nil
}
