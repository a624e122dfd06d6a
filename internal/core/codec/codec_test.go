package codec_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/prefab/internal/components"
	"github.com/zeusync/prefab/internal/core/codec"
	"github.com/zeusync/prefab/internal/core/ecs"
	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/registry"
)

var kinds = []format.Kind{format.Text, format.Compact}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := components.Register(registry.NewBuilder(nil)).Build()
	require.NoError(t, err)
	return reg
}

// recorder is a Storage that logs every callback and skips payloads.
type recorder struct {
	events []string
}

func (r *recorder) skip(dec format.Decoder) error {
	if dec.SelfDescribing() {
		_, err := dec.Value()
		return err
	}
	_, err := dec.Bytes()
	return err
}

func (r *recorder) BeginPrefab(id models.PrefabUUID) error {
	r.events = append(r.events, "prefab "+id.String())
	return nil
}

func (r *recorder) BeginEntityObject(e models.EntityUUID) error {
	r.events = append(r.events, "begin entity "+e.String())
	return nil
}

func (r *recorder) EndEntityObject(e models.EntityUUID) error {
	r.events = append(r.events, "end entity")
	return nil
}

func (r *recorder) DeserializeComponent(_ models.EntityUUID, ct models.ComponentTypeID, dec format.Decoder) error {
	r.events = append(r.events, "component "+ct.String())
	return r.skip(dec)
}

func (r *recorder) BeginPrefabRef(target models.PrefabUUID) error {
	r.events = append(r.events, "begin ref "+target.String())
	return nil
}

func (r *recorder) EndPrefabRef(models.PrefabUUID) error {
	r.events = append(r.events, "end ref")
	return nil
}

func (r *recorder) ApplyComponentDiff(_ models.PrefabUUID, e models.EntityUUID, ct models.ComponentTypeID, dec format.Decoder) error {
	r.events = append(r.events, fmt.Sprintf("override %s %s", e, ct))
	return r.skip(dec)
}

const (
	prefabID = "c0a80101-0000-4000-8000-000000000001"
	entityID = "c0a80101-0000-4000-8000-000000000002"
	refID    = "c0a80101-0000-4000-8000-000000000003"
)

func TestReadPrefabVisitsObjectsInOrder(t *testing.T) {
	doc := fmt.Sprintf(`id: %s
objects:
  - entity:
      id: %s
      components:
        - type: %s
          data: {value: {x: 0.0, y: -0.2}}
  - prefab_ref:
      prefab_id: %s
      entity_overrides:
        - entity_id: %s
          component_overrides:
            - component_type: %s
              diff: {value: {x: 10.0}}
`, prefabID, entityID, components.PositionID, refID, entityID, components.PositionID)

	dec, err := codec.NewDecoder(format.Text, []byte(doc))
	require.NoError(t, err)
	rec := &recorder{}
	require.NoError(t, codec.ReadPrefab(dec, rec))
	require.NoError(t, dec.Finish())

	assert.Equal(t, []string{
		"prefab " + prefabID,
		"begin entity " + entityID,
		"component " + components.PositionID.String(),
		"end entity",
		"begin ref " + refID,
		fmt.Sprintf("override %s %s", entityID, components.PositionID),
		"end ref",
	}, rec.events)
}

func TestReadPrefabRejectsDataBeforeType(t *testing.T) {
	doc := fmt.Sprintf(`id: %s
objects:
  - entity:
      id: %s
      components:
        - data: {}
          type: %s
`, prefabID, entityID, components.PositionID)

	dec, err := codec.NewDecoder(format.Text, []byte(doc))
	require.NoError(t, err)
	err = codec.ReadPrefab(dec, &recorder{})
	require.ErrorIs(t, err, format.ErrFieldOrder)

	var cerr *codec.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "objects[0].entity.components[0]", cerr.Path)
}

func TestReadPrefabRejectsOverrideWithoutEntityID(t *testing.T) {
	doc := fmt.Sprintf(`id: %s
objects:
  - prefab_ref:
      prefab_id: %s
      entity_overrides:
        - component_overrides: []
          entity_id: %s
`, prefabID, refID, entityID)

	dec, err := codec.NewDecoder(format.Text, []byte(doc))
	require.NoError(t, err)
	assert.ErrorIs(t, codec.ReadPrefab(dec, &recorder{}), format.ErrFieldOrder)
}

func TestDetect(t *testing.T) {
	enc, err := codec.NewEncoder(format.Compact)
	require.NoError(t, err)
	require.NoError(t, enc.UUID(uuid.Nil))
	out, err := enc.Finish()
	require.NoError(t, err)
	assert.Equal(t, format.Compact, codec.Detect(out))
	assert.Equal(t, format.Text, codec.Detect([]byte("id: x\n")))

	_, err = codec.NewEncoder(format.Kind(9))
	assert.ErrorIs(t, err, format.ErrUnknownKind)
}

func sampleWorld(t *testing.T) (*ecs.World, map[ecs.Entity]models.EntityUUID) {
	t.Helper()
	w := ecs.NewWorld()
	names := make(map[ecs.Entity]models.EntityUUID)

	ground := w.Spawn()
	require.NoError(t, ecs.Set(w, ground, components.PositionID, components.Position{Value: components.Vec2{Y: -0.2}}))
	require.NoError(t, ecs.Set(w, ground, components.RigidBodyID, components.RigidBody{Static: true}))
	names[ground] = models.Must[models.EntityUUID]("00000000-0000-4000-8000-0000000000aa")

	for i := 0; i < 3; i++ {
		ball := w.Spawn()
		require.NoError(t, ecs.Set(w, ball, components.PositionID, components.Position{Value: components.Vec2{X: float32(i), Y: 4}}))
		require.NoError(t, ecs.Set(w, ball, components.NameID, components.Name{Value: fmt.Sprintf("ball-%d", i)}))
		names[ball] = models.Must[models.EntityUUID](fmt.Sprintf("00000000-0000-4000-8000-0000000001%02d", i))
	}
	marker := w.Spawn()
	names[marker] = models.Must[models.EntityUUID]("00000000-0000-4000-8000-0000000000ff")
	return w, names
}

func TestWorldRoundTrip(t *testing.T) {
	reg := newRegistry(t)
	w, names := sampleWorld(t)

	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			enc, err := codec.NewEncoder(kind)
			require.NoError(t, err)
			require.NoError(t, codec.WriteWorld(enc, reg, w, names))
			first, err := enc.Finish()
			require.NoError(t, err)

			dec, err := codec.NewDecoder(kind, first)
			require.NoError(t, err)
			got, lookup, err := codec.ReadWorld(dec, reg)
			require.NoError(t, err)
			require.NoError(t, dec.Finish())
			assert.Equal(t, w.Len(), got.Len())
			require.Len(t, lookup, len(names))

			for e, name := range names {
				ge, ok := lookup[name]
				require.True(t, ok, name.String())
				assert.Equal(t, w.ComponentTypes(e), got.ComponentTypes(ge))
				if p, ok := ecs.Get[components.Position](w, e, components.PositionID); ok {
					gp, _ := ecs.Get[components.Position](got, ge, components.PositionID)
					assert.Equal(t, *p, *gp)
				}
			}

			rnames := make(map[ecs.Entity]models.EntityUUID, len(lookup))
			for name, e := range lookup {
				rnames[e] = name
			}
			enc, err = codec.NewEncoder(kind)
			require.NoError(t, err)
			require.NoError(t, codec.WriteWorld(enc, reg, got, rnames))
			second, err := enc.Finish()
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestWriteWorldNeedsNames(t *testing.T) {
	reg := newRegistry(t)
	w, names := sampleWorld(t)
	for e := range names {
		delete(names, e)
		break
	}
	enc, err := codec.NewEncoder(format.Text)
	require.NoError(t, err)
	assert.ErrorIs(t, codec.WriteWorld(enc, reg, w, names), codec.ErrUnnamedEntity)
}

func TestReadWorldRejectsUnregisteredTypes(t *testing.T) {
	reg := newRegistry(t)
	w, names := sampleWorld(t)
	enc, err := codec.NewEncoder(format.Compact)
	require.NoError(t, err)
	require.NoError(t, codec.WriteWorld(enc, reg, w, names))
	doc, err := enc.Finish()
	require.NoError(t, err)

	partial, err := registry.Register[components.Position](registry.NewBuilder(nil), components.PositionID, "position").Build()
	require.NoError(t, err)
	dec, err := codec.NewDecoder(format.Compact, doc)
	require.NoError(t, err)
	_, _, err = codec.ReadWorld(dec, partial)
	assert.ErrorIs(t, err, registry.ErrUnregisteredType)
}
