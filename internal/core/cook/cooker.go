// Package cook flattens a prefab and everything it references into a single
// cooked world. Referenced prefabs are cooked first, every world is merged in
// that order, and overrides are applied afterwards in the same order.
package cook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/prefab/internal/core/clone"
	"github.com/zeusync/prefab/internal/core/ecs"
	"github.com/zeusync/prefab/internal/core/events/bus"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/observability/log"
	"github.com/zeusync/prefab/internal/core/prefab"
	"github.com/zeusync/prefab/internal/core/registry"
	"github.com/zeusync/prefab/pkg/concurrent"
)

var (
	ErrPrefabCycle           = errors.New("prefab reference cycle")
	ErrMissingOverrideTarget = errors.New("override target entity not found")
	ErrEntityConflict        = errors.New("entity uuid defined by more than one prefab")
)

// EventCooked is published after every successful cook.
const EventCooked = "prefab.cooked"

// CookedEvent is the payload of EventCooked.
type CookedEvent struct {
	Prefab   models.PrefabUUID
	Order    []models.PrefabUUID
	Entities int
	Elapsed  time.Duration
}

type Cooker struct {
	reg    *registry.Registry
	source Source
	logger log.Log
	events bus.EventBus
}

// NewCooker returns a cooker reading prefabs from source. logger and events
// may be nil.
func NewCooker(reg *registry.Registry, source Source, logger log.Log, events bus.EventBus) *Cooker {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Cooker{
		reg:    reg,
		source: source,
		logger: logger.Named("cook"),
		events: events,
	}
}

type cookState struct {
	prefabs  map[models.PrefabUUID]*prefab.Prefab
	visiting map[models.PrefabUUID]bool
	order    []models.PrefabUUID
}

// Cook resolves id and its references and returns the flattened result. Any
// error aborts the whole cook; nothing partial is returned.
func (c *Cooker) Cook(id models.PrefabUUID) (*prefab.Cooked, error) {
	started := time.Now()
	st := &cookState{
		prefabs:  make(map[models.PrefabUUID]*prefab.Prefab),
		visiting: make(map[models.PrefabUUID]bool),
	}
	if err := c.resolve(st, id, nil); err != nil {
		return nil, err
	}

	cooked, err := c.merge(st)
	if err != nil {
		return nil, fmt.Errorf("cook %s: %w", id, err)
	}
	if err := c.applyOverrides(st, cooked); err != nil {
		return nil, fmt.Errorf("cook %s: %w", id, err)
	}

	elapsed := time.Since(started)
	c.logger.Debug("prefab cooked",
		log.Stringer("prefab", id),
		log.Int("prefabs", len(st.order)),
		log.Int("entities", len(cooked.Entities)),
		log.Duration("elapsed", elapsed),
	)
	if c.events != nil {
		event := bus.NewEvent(EventCooked, "cook", CookedEvent{
			Prefab:   id,
			Order:    st.order,
			Entities: len(cooked.Entities),
			Elapsed:  elapsed,
		})
		if err := c.events.Publish(event); err != nil {
			c.logger.Warn("cooked event handler failed", log.Stringer("prefab", id), log.Error(err))
		}
	}
	return cooked, nil
}

// CookMany cooks independent roots concurrently, at most limit at a time.
// Results are in the order of ids.
func (c *Cooker) CookMany(ctx context.Context, ids []models.PrefabUUID, limit int) ([]*prefab.Cooked, error) {
	return concurrent.ParallelMap(ctx, ids, limit, func(_ context.Context, id models.PrefabUUID) (*prefab.Cooked, error) {
		return c.Cook(id)
	})
}

// resolve loads id after all of its references, appending to the cook order.
func (c *Cooker) resolve(st *cookState, id models.PrefabUUID, path []models.PrefabUUID) error {
	if _, ok := st.prefabs[id]; ok {
		return nil
	}
	path = append(path, id)
	if st.visiting[id] {
		return fmt.Errorf("%w: %s", ErrPrefabCycle, chain(path))
	}
	st.visiting[id] = true

	p, err := c.source.Load(id)
	if err != nil {
		return fmt.Errorf("load prefab %s: %w", id, err)
	}
	if p.Meta.ID != id {
		return fmt.Errorf("load prefab %s: %w: got %s", id, ErrIDMismatch, p.Meta.ID)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("load prefab %s: %w", id, err)
	}

	for _, ref := range models.SortedKeys(p.Meta.PrefabRefs) {
		if err := c.resolve(st, ref, path); err != nil {
			return err
		}
	}

	delete(st.visiting, id)
	st.prefabs[id] = p
	st.order = append(st.order, id)
	c.logger.Debug("prefab resolved", log.Stringer("prefab", id), log.Int("refs", len(p.Meta.PrefabRefs)))
	return nil
}

func chain(path []models.PrefabUUID) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}

func (c *Cooker) merge(st *cookState) (*prefab.Cooked, error) {
	cooked := &prefab.Cooked{
		World:    ecs.NewWorld(),
		Entities: make(map[models.EntityUUID]ecs.Entity),
	}
	for _, id := range st.order {
		p := st.prefabs[id]
		mapping, err := clone.Merge(c.reg, p.World, cooked.World, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("merge prefab %s: %w", id, err)
		}
		for _, entity := range models.SortedKeys(p.Meta.Entities) {
			if _, ok := cooked.Entities[entity]; ok {
				return nil, fmt.Errorf("%w: %s in prefab %s", ErrEntityConflict, entity, id)
			}
			cooked.Entities[entity] = mapping[p.Meta.Entities[entity]]
		}
	}
	return cooked, nil
}

func (c *Cooker) applyOverrides(st *cookState, cooked *prefab.Cooked) error {
	for _, id := range st.order {
		p := st.prefabs[id]
		for _, target := range models.SortedKeys(p.Meta.PrefabRefs) {
			ref := p.Meta.PrefabRefs[target]
			for _, entity := range models.SortedKeys(ref.Overrides) {
				e, ok := cooked.Entities[entity]
				if !ok {
					return fmt.Errorf("%w: %s (prefab %s, ref %s)", ErrMissingOverrideTarget, entity, id, target)
				}
				for _, o := range ref.Overrides[entity] {
					r, err := c.reg.Lookup(o.ComponentType)
					if err != nil {
						return fmt.Errorf("override %s of %s: %w", o.ComponentType, entity, err)
					}
					if err := r.ApplyDiff(o.Data, cooked.World, e); err != nil {
						return fmt.Errorf("override %s of %s: %w", r.Name(), entity, err)
					}
				}
			}
		}
	}
	return nil
}

// Fingerprint identifies serialized cooked output. Equal cooks give equal
// fingerprints.
func Fingerprint(data []byte) uint64 {
	return xxhash.Sum64(data)
}
