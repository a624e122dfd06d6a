package codec_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/prefab/internal/components"
	"github.com/zeusync/prefab/internal/core/codec"
	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/prefab"
)

func duplicateComponentDoc() string {
	return fmt.Sprintf(`id: %s
objects:
  - entity:
      id: %s
      components:
        - type: %s
          data: {static: false, mass: 1.0, restitution: 0.5}
        - type: %s
          data: {static: true, mass: 2.0, restitution: 0.1}
`, prefabID, entityID, components.RigidBodyID, components.RigidBodyID)
}

func TestReadPrefabRejectsDuplicateComponent(t *testing.T) {
	dec, err := codec.NewDecoder(format.Text, []byte(duplicateComponentDoc()))
	require.NoError(t, err)
	rec := &recorder{}
	err = codec.ReadPrefab(dec, rec)
	require.ErrorIs(t, err, codec.ErrDuplicateComponent)

	var cerr *codec.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "objects[0].entity.components[1].type", cerr.Path)
	assert.Contains(t, err.Error(), entityID)
	assert.Contains(t, err.Error(), components.RigidBodyID.String())

	assert.Equal(t, []string{
		"prefab " + prefabID,
		"begin entity " + entityID,
		"component " + components.RigidBodyID.String(),
	}, rec.events)
}

func TestDecodePrefabRejectsDuplicateComponent(t *testing.T) {
	_, err := prefab.Decode(newRegistry(t), format.Text, []byte(duplicateComponentDoc()))
	assert.ErrorIs(t, err, codec.ErrDuplicateComponent)
}

func TestReadPrefabAllowsSameComponentOnDifferentEntities(t *testing.T) {
	doc := fmt.Sprintf(`id: %s
objects:
  - entity:
      id: %s
      components:
        - type: %s
          data: {value: "a"}
  - entity:
      id: %s
      components:
        - type: %s
          data: {value: "b"}
`, prefabID, entityID, components.NameID, refID, components.NameID)

	p, err := prefab.Decode(newRegistry(t), format.Text, []byte(doc))
	require.NoError(t, err)
	assert.Len(t, p.Meta.Entities, 2)
}
