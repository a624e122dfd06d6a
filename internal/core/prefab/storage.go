package prefab

import (
	"fmt"

	"github.com/zeusync/prefab/internal/core/codec"
	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/registry"
)

// builder fills a Prefab from a decoded document.
type builder struct {
	reg *registry.Registry
	p   *Prefab
}

var _ codec.Storage = (*builder)(nil)

func (b *builder) BeginPrefab(id models.PrefabUUID) error {
	b.p.Meta.ID = id
	return nil
}

func (b *builder) BeginEntityObject(entity models.EntityUUID) error {
	_, err := b.p.AddEntity(entity)
	return err
}

func (b *builder) EndEntityObject(models.EntityUUID) error { return nil }

func (b *builder) DeserializeComponent(entity models.EntityUUID, componentType models.ComponentTypeID, dec format.Decoder) error {
	r, err := b.reg.Lookup(componentType)
	if err != nil {
		return err
	}
	return r.DeserializeComponent(dec, b.p.World, b.p.Meta.Entities[entity])
}

func (b *builder) BeginPrefabRef(target models.PrefabUUID) error {
	if _, ok := b.p.Meta.PrefabRefs[target]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRef, target)
	}
	_, err := b.p.AddRef(target)
	return err
}

func (b *builder) EndPrefabRef(models.PrefabUUID) error { return nil }

func (b *builder) ApplyComponentDiff(target models.PrefabUUID, entity models.EntityUUID, componentType models.ComponentTypeID, dec format.Decoder) error {
	r, err := b.reg.Lookup(componentType)
	if err != nil {
		return err
	}
	data, err := r.DeserializeDiff(dec)
	if err != nil {
		return err
	}
	return b.p.AddOverride(target, entity, ComponentOverride{ComponentType: componentType, Data: data})
}

// serializer exposes a Prefab to the encode driver.
type serializer struct {
	reg *registry.Registry
	p   *Prefab
}

var _ codec.StorageSerializer = (*serializer)(nil)

func (s *serializer) PrefabID() models.PrefabUUID { return s.p.Meta.ID }

func (s *serializer) Entities() []models.EntityUUID {
	return models.SortedKeys(s.p.Meta.Entities)
}

func (s *serializer) ComponentTypes(entity models.EntityUUID) []models.ComponentTypeID {
	return s.p.World.ComponentTypes(s.p.Meta.Entities[entity])
}

func (s *serializer) SerializeEntityComponent(enc format.Encoder, entity models.EntityUUID, componentType models.ComponentTypeID) error {
	r, err := s.reg.Lookup(componentType)
	if err != nil {
		return err
	}
	return r.SerializeComponent(enc, s.p.World, s.p.Meta.Entities[entity])
}

func (s *serializer) PrefabRefs() []models.PrefabUUID {
	return models.SortedKeys(s.p.Meta.PrefabRefs)
}

func (s *serializer) PrefabRefOverrides(target models.PrefabUUID) []models.EntityUUID {
	return models.SortedKeys(s.p.Meta.PrefabRefs[target].Overrides)
}

func (s *serializer) ComponentOverrides(target models.PrefabUUID, entity models.EntityUUID) []models.ComponentTypeID {
	overrides := s.p.Meta.PrefabRefs[target].Overrides[entity]
	out := make([]models.ComponentTypeID, len(overrides))
	for i, o := range overrides {
		out[i] = o.ComponentType
	}
	return out
}

func (s *serializer) SerializeComponentOverrideDiff(enc format.Encoder, target models.PrefabUUID, entity models.EntityUUID, index int) error {
	o := s.p.Meta.PrefabRefs[target].Overrides[entity][index]
	r, err := s.reg.Lookup(o.ComponentType)
	if err != nil {
		return err
	}
	return r.SerializeDiff(enc, o.Data)
}

// Decode reads a prefab document of the given kind.
func Decode(reg *registry.Registry, kind format.Kind, data []byte) (*Prefab, error) {
	dec, err := codec.NewDecoder(kind, data)
	if err != nil {
		return nil, err
	}
	p := New(models.PrefabUUID{})
	if err := codec.ReadPrefab(dec, &builder{reg: reg, p: p}); err != nil {
		return nil, err
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode writes p as a document of the given kind.
func (p *Prefab) Encode(reg *registry.Registry, kind format.Kind) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	enc, err := codec.NewEncoder(kind)
	if err != nil {
		return nil, err
	}
	if err := codec.WritePrefab(enc, &serializer{reg: reg, p: p}); err != nil {
		return nil, err
	}
	return enc.Finish()
}
