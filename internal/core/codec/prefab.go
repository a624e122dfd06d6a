package codec

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/models"
)

const (
	objectEntity uint32 = iota
	objectPrefabRef
)

var objectVariants = []string{"entity", "prefab_ref"}

// Storage receives a decoded prefab. Component payloads and override diffs
// are left in the decoder for the storage to consume, since only it knows
// which registration reads them.
type Storage interface {
	BeginPrefab(id models.PrefabUUID) error
	BeginEntityObject(entity models.EntityUUID) error
	EndEntityObject(entity models.EntityUUID) error
	DeserializeComponent(entity models.EntityUUID, componentType models.ComponentTypeID, dec format.Decoder) error
	BeginPrefabRef(target models.PrefabUUID) error
	EndPrefabRef(target models.PrefabUUID) error
	ApplyComponentDiff(target models.PrefabUUID, entity models.EntityUUID, componentType models.ComponentTypeID, dec format.Decoder) error
}

// StorageSerializer is the source side of a prefab encode. The driver sorts
// every id list it receives, except override lists whose order is the order
// the overrides apply in.
type StorageSerializer interface {
	PrefabID() models.PrefabUUID
	Entities() []models.EntityUUID
	ComponentTypes(entity models.EntityUUID) []models.ComponentTypeID
	SerializeEntityComponent(enc format.Encoder, entity models.EntityUUID, componentType models.ComponentTypeID) error
	PrefabRefs() []models.PrefabUUID
	PrefabRefOverrides(target models.PrefabUUID) []models.EntityUUID
	ComponentOverrides(target models.PrefabUUID, entity models.EntityUUID) []models.ComponentTypeID
	SerializeComponentOverrideDiff(enc format.Encoder, target models.PrefabUUID, entity models.EntityUUID, index int) error
}

// ReadPrefab decodes one prefab document into s.
func ReadPrefab(dec format.Decoder, s Storage) error {
	const op = "read prefab"
	if err := dec.BeginMap("id", "objects"); err != nil {
		return wrap(op, "", err)
	}
	if err := dec.Field("id"); err != nil {
		return wrap(op, "", err)
	}
	id, err := dec.UUID()
	if err != nil {
		return wrap(op, "id", err)
	}
	if err := s.BeginPrefab(models.PrefabUUID(id)); err != nil {
		return wrap(op, "id", err)
	}
	if err := dec.Field("objects"); err != nil {
		return wrap(op, "", err)
	}
	n, err := dec.BeginSeq()
	if err != nil {
		return wrap(op, "objects", err)
	}
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("objects[%d]", i)
		tag, err := dec.Variant(objectVariants...)
		if err != nil {
			return wrap(op, path, err)
		}
		switch tag {
		case objectEntity:
			err = readEntity(dec, s, path+".entity")
		case objectPrefabRef:
			err = readPrefabRef(dec, s, path+".prefab_ref")
		}
		if err != nil {
			return wrap(op, path, err)
		}
		if err := dec.EndVariant(); err != nil {
			return wrap(op, path, err)
		}
	}
	if err := dec.EndSeq(); err != nil {
		return wrap(op, "objects", err)
	}
	if err := dec.EndMap(); err != nil {
		return wrap(op, "", err)
	}
	return nil
}

func readEntity(dec format.Decoder, s Storage, path string) error {
	const op = "read entity"
	if err := dec.BeginMap("id", "components"); err != nil {
		return wrap(op, path, err)
	}
	if err := dec.Field("id"); err != nil {
		return wrap(op, path, err)
	}
	raw, err := dec.UUID()
	if err != nil {
		return wrap(op, path+".id", err)
	}
	entity := models.EntityUUID(raw)
	if err := s.BeginEntityObject(entity); err != nil {
		return wrap(op, path+".id", err)
	}
	if err := dec.Field("components"); err != nil {
		return wrap(op, path, err)
	}
	n, err := dec.BeginSeq()
	if err != nil {
		return wrap(op, path+".components", err)
	}
	seen := make(map[models.ComponentTypeID]struct{}, n)
	for i := 0; i < n; i++ {
		cpath := fmt.Sprintf("%s.components[%d]", path, i)
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
		componentType := models.ComponentTypeID(raw)
		if _, dup := seen[componentType]; dup {
			return wrap(op, cpath+".type", fmt.Errorf("%w: %s on entity %s", ErrDuplicateComponent, componentType, entity))
		}
		seen[componentType] = struct{}{}
		if err := dec.Field("data"); err != nil {
			return wrap(op, cpath, err)
		}
		if err := s.DeserializeComponent(entity, componentType, dec); err != nil {
			return wrap(op, cpath+".data", err)
		}
		if err := dec.EndMap(); err != nil {
			return wrap(op, cpath, err)
		}
	}
	if err := dec.EndSeq(); err != nil {
		return wrap(op, path+".components", err)
	}
	if err := dec.EndMap(); err != nil {
		return wrap(op, path, err)
	}
	return wrap(op, path, s.EndEntityObject(entity))
}

func readPrefabRef(dec format.Decoder, s Storage, path string) error {
	const op = "read prefab ref"
	if err := dec.BeginMap("prefab_id", "entity_overrides"); err != nil {
		return wrap(op, path, err)
	}
	if err := dec.Field("prefab_id"); err != nil {
		return wrap(op, path, err)
	}
	raw, err := dec.UUID()
	if err != nil {
		return wrap(op, path+".prefab_id", err)
	}
	target := models.PrefabUUID(raw)
	if err := s.BeginPrefabRef(target); err != nil {
		return wrap(op, path+".prefab_id", err)
	}
	if err := dec.Field("entity_overrides"); err != nil {
		return wrap(op, path, err)
	}
	n, err := dec.BeginSeq()
	if err != nil {
		return wrap(op, path+".entity_overrides", err)
	}
	for i := 0; i < n; i++ {
		if err := readEntityOverride(dec, s, target, fmt.Sprintf("%s.entity_overrides[%d]", path, i)); err != nil {
			return err
		}
	}
	if err := dec.EndSeq(); err != nil {
		return wrap(op, path+".entity_overrides", err)
	}
	if err := dec.EndMap(); err != nil {
		return wrap(op, path, err)
	}
	return wrap(op, path, s.EndPrefabRef(target))
}

func readEntityOverride(dec format.Decoder, s Storage, target models.PrefabUUID, path string) error {
	const op = "read entity override"
	if err := dec.BeginMap("entity_id", "component_overrides"); err != nil {
		return wrap(op, path, err)
	}
	if err := dec.Field("entity_id"); err != nil {
		return wrap(op, path, err)
	}
	raw, err := dec.UUID()
	if err != nil {
		return wrap(op, path+".entity_id", err)
	}
	entity := models.EntityUUID(raw)
	if err := dec.Field("component_overrides"); err != nil {
		return wrap(op, path, err)
	}
	n, err := dec.BeginSeq()
	if err != nil {
		return wrap(op, path+".component_overrides", err)
	}
	for i := 0; i < n; i++ {
		opath := fmt.Sprintf("%s.component_overrides[%d]", path, i)
		if err := dec.BeginMap("component_type", "diff"); err != nil {
			return wrap(op, opath, err)
		}
		if err := dec.Field("component_type"); err != nil {
			return wrap(op, opath, err)
		}
		componentType, err := dec.UUID()
		if err != nil {
			return wrap(op, opath+".component_type", err)
		}
		if err := dec.Field("diff"); err != nil {
			return wrap(op, opath, err)
		}
		if err := s.ApplyComponentDiff(target, entity, models.ComponentTypeID(componentType), dec); err != nil {
			return wrap(op, opath+".diff", err)
		}
		if err := dec.EndMap(); err != nil {
			return wrap(op, opath, err)
		}
	}
	if err := dec.EndSeq(); err != nil {
		return wrap(op, path+".component_overrides", err)
	}
	return wrap(op, path, dec.EndMap())
}

// WritePrefab encodes src. Entities come first, then prefab refs, each
// group ordered by id.
func WritePrefab(enc format.Encoder, src StorageSerializer) error {
	const op = "write prefab"
	entities := models.Sort(src.Entities())
	refs := models.Sort(src.PrefabRefs())

	if err := enc.BeginMap(); err != nil {
		return wrap(op, "", err)
	}
	if err := enc.Field("id"); err != nil {
		return wrap(op, "", err)
	}
	if err := enc.UUID(uuid.UUID(src.PrefabID())); err != nil {
		return wrap(op, "id", err)
	}
	if err := enc.Field("objects"); err != nil {
		return wrap(op, "", err)
	}
	if err := enc.BeginSeq(len(entities) + len(refs)); err != nil {
		return wrap(op, "objects", err)
	}
	for i, entity := range entities {
		path := fmt.Sprintf("objects[%d].entity", i)
		if err := enc.Variant(objectEntity, objectVariants[objectEntity]); err != nil {
			return wrap(op, path, err)
		}
		if err := writeEntity(enc, src, entity, path); err != nil {
			return err
		}
		if err := enc.EndVariant(); err != nil {
			return wrap(op, path, err)
		}
	}
	for i, target := range refs {
		path := fmt.Sprintf("objects[%d].prefab_ref", len(entities)+i)
		if err := enc.Variant(objectPrefabRef, objectVariants[objectPrefabRef]); err != nil {
			return wrap(op, path, err)
		}
		if err := writePrefabRef(enc, src, target, path); err != nil {
			return err
		}
		if err := enc.EndVariant(); err != nil {
			return wrap(op, path, err)
		}
	}
	if err := enc.EndSeq(); err != nil {
		return wrap(op, "objects", err)
	}
	return wrap(op, "", enc.EndMap())
}

func writeEntity(enc format.Encoder, src StorageSerializer, entity models.EntityUUID, path string) error {
	const op = "write entity"
	types := models.Sort(src.ComponentTypes(entity))
	if err := enc.BeginMap(); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.Field("id"); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.UUID(uuid.UUID(entity)); err != nil {
		return wrap(op, path+".id", err)
	}
	if err := enc.Field("components"); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.BeginSeq(len(types)); err != nil {
		return wrap(op, path+".components", err)
	}
	for i, componentType := range types {
		cpath := fmt.Sprintf("%s.components[%d]", path, i)
		if err := enc.BeginMap(); err != nil {
			return wrap(op, cpath, err)
		}
		if err := enc.Field("type"); err != nil {
			return wrap(op, cpath, err)
		}
		if err := enc.UUID(uuid.UUID(componentType)); err != nil {
			return wrap(op, cpath+".type", err)
		}
		if err := enc.Field("data"); err != nil {
			return wrap(op, cpath, err)
		}
		if err := src.SerializeEntityComponent(enc, entity, componentType); err != nil {
			return wrap(op, cpath+".data", err)
		}
		if err := enc.EndMap(); err != nil {
			return wrap(op, cpath, err)
		}
	}
	if err := enc.EndSeq(); err != nil {
		return wrap(op, path+".components", err)
	}
	return wrap(op, path, enc.EndMap())
}

func writePrefabRef(enc format.Encoder, src StorageSerializer, target models.PrefabUUID, path string) error {
	const op = "write prefab ref"
	entities := models.Sort(src.PrefabRefOverrides(target))
	if err := enc.BeginMap(); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.Field("prefab_id"); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.UUID(uuid.UUID(target)); err != nil {
		return wrap(op, path+".prefab_id", err)
	}
	if err := enc.Field("entity_overrides"); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.BeginSeq(len(entities)); err != nil {
		return wrap(op, path+".entity_overrides", err)
	}
	for i, entity := range entities {
		epath := fmt.Sprintf("%s.entity_overrides[%d]", path, i)
		if err := writeEntityOverride(enc, src, target, entity, epath); err != nil {
			return err
		}
	}
	if err := enc.EndSeq(); err != nil {
		return wrap(op, path+".entity_overrides", err)
	}
	return wrap(op, path, enc.EndMap())
}

func writeEntityOverride(enc format.Encoder, src StorageSerializer, target models.PrefabUUID, entity models.EntityUUID, path string) error {
	const op = "write entity override"
	types := src.ComponentOverrides(target, entity)
	if err := enc.BeginMap(); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.Field("entity_id"); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.UUID(uuid.UUID(entity)); err != nil {
		return wrap(op, path+".entity_id", err)
	}
	if err := enc.Field("component_overrides"); err != nil {
		return wrap(op, path, err)
	}
	if err := enc.BeginSeq(len(types)); err != nil {
		return wrap(op, path+".component_overrides", err)
	}
	for i, componentType := range types {
		opath := fmt.Sprintf("%s.component_overrides[%d]", path, i)
		if err := enc.BeginMap(); err != nil {
			return wrap(op, opath, err)
		}
		if err := enc.Field("component_type"); err != nil {
			return wrap(op, opath, err)
		}
		if err := enc.UUID(uuid.UUID(componentType)); err != nil {
			return wrap(op, opath+".component_type", err)
		}
		if err := enc.Field("diff"); err != nil {
			return wrap(op, opath, err)
		}
		if err := src.SerializeComponentOverrideDiff(enc, target, entity, i); err != nil {
			return wrap(op, opath+".diff", err)
		}
		if err := enc.EndMap(); err != nil {
			return wrap(op, opath, err)
		}
	}
	if err := enc.EndSeq(); err != nil {
		return wrap(op, path+".component_overrides", err)
	}
	return wrap(op, path, enc.EndMap())
}
