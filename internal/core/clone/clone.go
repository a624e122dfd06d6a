// Package clone copies entities from one world into another, component type
// by component type, optionally transforming components on the way.
package clone

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/zeusync/prefab/internal/core/ecs"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/registry"
)

var ErrStaleTarget = errors.New("merge target is not alive")

type rule interface {
	merge(p *Policy, reg *registry.Registry, from models.ComponentTypeID, src ecs.ArchetypeView, dst *ecs.World, targets []ecs.Entity) error
}

// Policy decides what happens to each source component type. Types without a
// rule are copied as they are.
type Policy struct {
	resources *ecs.Resources
	rules     map[models.ComponentTypeID]rule
}

// NewPolicy returns an identity policy. res is handed to transforms and may
// be nil.
func NewPolicy(res *ecs.Resources) *Policy {
	if res == nil {
		res = ecs.NewResources()
	}
	return &Policy{resources: res, rules: make(map[models.ComponentTypeID]rule)}
}

func (p *Policy) Resources() *ecs.Resources { return p.resources }

// Skip leaves components of id behind.
func (p *Policy) Skip(id models.ComponentTypeID) *Policy {
	p.rules[id] = skip{}
	return p
}

type skip struct{}

func (skip) merge(*Policy, *registry.Registry, models.ComponentTypeID, ecs.ArchetypeView, *ecs.World, []ecs.Entity) error {
	return nil
}

// TransformFunc converts a batch of source components. dst has the same
// length as src and starts zeroed; slots left untouched stay zero.
type TransformFunc[From, To any] func(res *ecs.Resources, src []From, dst []To) error

// Transform replaces components of type from with components of type to
// produced by fn.
func Transform[From, To any](p *Policy, from, to models.ComponentTypeID, fn TransformFunc[From, To]) *Policy {
	p.rules[from] = transform[From, To]{to: to, fn: fn}
	return p
}

// Convert replaces components of type from with ctor(component).
func Convert[From, To any](p *Policy, from, to models.ComponentTypeID, ctor func(From) To) *Policy {
	return Transform(p, from, to, func(_ *ecs.Resources, src []From, dst []To) error {
		for i := range src {
			dst[i] = ctor(src[i])
		}
		return nil
	})
}

type transform[From, To any] struct {
	to models.ComponentTypeID
	fn TransformFunc[From, To]
}

func (t transform[From, To]) merge(p *Policy, reg *registry.Registry, from models.ComponentTypeID, src ecs.ArchetypeView, dst *ecs.World, targets []ecs.Entity) error {
	r, err := reg.Lookup(t.to)
	if err != nil {
		return err
	}
	if want := reflect.TypeFor[To](); r.Key() != want {
		return fmt.Errorf("%w: %s stores %s, transform produces %s", registry.ErrTypeMismatch, r.Name(), r.Key(), want)
	}
	col, ok := src.Column(from)
	if !ok {
		return fmt.Errorf("%w: transform source column", registry.ErrMissingComponent)
	}
	tc, err := ecs.Typed[From](col)
	if err != nil {
		return fmt.Errorf("%w: %v", registry.ErrTypeMismatch, err)
	}

	in := slices.Clone(tc.Slice(0, len(targets)))
	out := make([]To, len(in))
	if err := t.fn(p.resources, in, out); err != nil {
		return err
	}
	for i, e := range targets {
		if err := ecs.Set(dst, e, t.to, out[i]); err != nil {
			return err
		}
	}
	return nil
}

// Merge copies every live entity of src into dst and returns the source to
// destination mapping. A source entity listed in existing is merged into
// that live destination entity instead of a new one. Entities are visited in
// ascending id order, so identical inputs give identical worlds.
func Merge(reg *registry.Registry, src, dst *ecs.World, p *Policy, existing map[ecs.Entity]ecs.Entity) (map[ecs.Entity]ecs.Entity, error) {
	if p == nil {
		p = NewPolicy(nil)
	}
	mapping := make(map[ecs.Entity]ecs.Entity, src.Len())
	for _, e := range src.Entities() {
		if target, ok := existing[e]; ok {
			if !dst.Alive(target) {
				return nil, fmt.Errorf("%w: %s for source %s", ErrStaleTarget, target, e)
			}
			mapping[e] = target
			continue
		}
		mapping[e] = dst.Spawn()
	}

	views := src.Archetypes()
	slices.SortFunc(views, func(a, b ecs.ArchetypeView) int {
		return slices.CompareFunc(a.Types(), b.Types(), models.Compare[models.ComponentTypeID])
	})
	for _, view := range views {
		entities := view.Entities()
		targets := make([]ecs.Entity, len(entities))
		for i, e := range entities {
			targets[i] = mapping[e]
		}
		for _, id := range view.Types() {
			if rl, ok := p.rules[id]; ok {
				if err := rl.merge(p, reg, id, view, dst, targets); err != nil {
					return nil, fmt.Errorf("merge %s: %w", id, err)
				}
				continue
			}
			r, err := reg.Lookup(id)
			if err != nil {
				return nil, err
			}
			for i, e := range entities {
				if err := r.Clone(src, e, dst, targets[i]); err != nil {
					return nil, fmt.Errorf("merge %s: %w", r.Name(), err)
				}
			}
		}
	}
	return mapping, nil
}
