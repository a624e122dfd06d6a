// Package diff computes and applies per-component differences between
// entities, in the form the editor stores for undo and for overrides.
package diff

import (
	"errors"
	"fmt"
	"slices"

	"github.com/zeusync/prefab/internal/core/ecs"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/prefab"
	"github.com/zeusync/prefab/internal/core/registry"
)

var ErrUnknownEntity = errors.New("diff targets an unknown entity")

type Result = registry.DiffResult

const (
	NoChange = registry.NoChange
	Change   = registry.Change
	Add      = registry.Add
	Remove   = registry.Remove
)

// Op is one edit of one component. Data is a compact patch for Change, the
// whole component for Add and empty for Remove.
type Op struct {
	Kind Result
	Data []byte
}

type ComponentDiff struct {
	Entity        models.EntityUUID
	ComponentType models.ComponentTypeID
	Op            Op
}

func (d ComponentDiff) String() string {
	return fmt.Sprintf("%s %s on %s (%d bytes)", d.Op.Kind, d.ComponentType, d.Entity, len(d.Op.Data))
}

// Single diffs one component type between two entities. NoChange never
// carries data and callers must not record an entry for it.
func Single(reg *registry.Registry, componentType models.ComponentTypeID, src *ecs.World, se ecs.Entity, dst *ecs.World, de ecs.Entity) (Result, []byte, error) {
	r, err := reg.Lookup(componentType)
	if err != nil {
		return NoChange, nil, err
	}
	return r.Diff(src, se, dst, de)
}

// Pair ties the two versions of one entity together.
type Pair struct {
	Entity models.EntityUUID
	Before ecs.Entity
	After  ecs.Entity
}

// Entities diffs every registered component type of every pair. forward
// turns before into after; reverse undoes it and is ordered back to front,
// so reverse[i] undoes forward[len-1-i].
func Entities(reg *registry.Registry, before, after *ecs.World, pairs []Pair) (forward, reverse []ComponentDiff, err error) {
	pairs = slices.Clone(pairs)
	slices.SortFunc(pairs, func(a, b Pair) int { return models.Compare(a.Entity, b.Entity) })

	for _, p := range pairs {
		for _, r := range reg.All() {
			fk, fdata, err := r.Diff(before, p.Before, after, p.After)
			if err != nil {
				return nil, nil, fmt.Errorf("diff %s on %s: %w", r.Name(), p.Entity, err)
			}
			if fk == NoChange {
				continue
			}
			rk, rdata, err := r.Diff(after, p.After, before, p.Before)
			if err != nil {
				return nil, nil, fmt.Errorf("diff %s on %s: %w", r.Name(), p.Entity, err)
			}
			forward = append(forward, ComponentDiff{Entity: p.Entity, ComponentType: r.ID(), Op: Op{Kind: fk, Data: fdata}})
			reverse = append(reverse, ComponentDiff{Entity: p.Entity, ComponentType: r.ID(), Op: Op{Kind: rk, Data: rdata}})
		}
	}
	slices.Reverse(reverse)
	return forward, reverse, nil
}

// Target resolves entity uuids to the world and handle a diff applies to.
type Target interface {
	Resolve(id models.EntityUUID) (*ecs.World, ecs.Entity, bool)
}

// WorldTarget applies diffs to w through an explicit uuid table.
type WorldTarget struct {
	World    *ecs.World
	Entities map[models.EntityUUID]ecs.Entity
}

func (t WorldTarget) Resolve(id models.EntityUUID) (*ecs.World, ecs.Entity, bool) {
	e, ok := t.Entities[id]
	if !ok || !t.World.Alive(e) {
		return nil, ecs.Entity{}, false
	}
	return t.World, e, true
}

func ApplyToPrefab(p *prefab.Prefab) Target {
	return WorldTarget{World: p.World, Entities: p.Meta.Entities}
}

func ApplyToCooked(c *prefab.Cooked) Target {
	return WorldTarget{World: c.World, Entities: c.Entities}
}

// Apply runs diffs against t in order. It stops at the first failure; diffs
// before it stay applied.
func Apply(reg *registry.Registry, t Target, diffs []ComponentDiff) error {
	for i, d := range diffs {
		w, e, ok := t.Resolve(d.Entity)
		if !ok {
			return fmt.Errorf("diff %d: %w: %s", i, ErrUnknownEntity, d.Entity)
		}
		r, err := reg.Lookup(d.ComponentType)
		if err != nil {
			return fmt.Errorf("diff %d: %w", i, err)
		}
		switch d.Op.Kind {
		case Change:
			err = r.ApplyDiff(d.Op.Data, w, e)
		case Add:
			err = r.AddComponent(d.Op.Data, w, e)
		case Remove:
			w.Remove(e, d.ComponentType)
		}
		if err != nil {
			return fmt.Errorf("diff %d: %s %s: %w", i, d.Op.Kind, r.Name(), err)
		}
	}
	return nil
}
