package prefab

import (
	"github.com/zeusync/prefab/internal/core/codec"
	"github.com/zeusync/prefab/internal/core/ecs"
	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/registry"
)

// Cooked is a fully resolved prefab graph flattened into one world. It has no
// references left and is not modified after the cook that produced it.
type Cooked struct {
	World    *ecs.World
	Entities map[models.EntityUUID]ecs.Entity
}

func (c *Cooked) Lookup(id models.EntityUUID) (ecs.Entity, bool) {
	e, ok := c.Entities[id]
	return e, ok
}

func (c *Cooked) Names() map[ecs.Entity]models.EntityUUID {
	out := make(map[ecs.Entity]models.EntityUUID, len(c.Entities))
	for id, e := range c.Entities {
		out[e] = id
	}
	return out
}

// Encode writes the on-disk form { world: ... }.
func (c *Cooked) Encode(reg *registry.Registry, kind format.Kind) ([]byte, error) {
	enc, err := codec.NewEncoder(kind)
	if err != nil {
		return nil, err
	}
	if err := codec.WriteWorld(enc, reg, c.World, c.Names()); err != nil {
		return nil, err
	}
	return enc.Finish()
}

func DecodeCooked(reg *registry.Registry, kind format.Kind, data []byte) (*Cooked, error) {
	dec, err := codec.NewDecoder(kind, data)
	if err != nil {
		return nil, err
	}
	w, lookup, err := codec.ReadWorld(dec, reg)
	if err != nil {
		return nil, err
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}
	return &Cooked{World: w, Entities: lookup}, nil
}
