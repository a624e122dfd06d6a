package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/prefab/internal/components"
	"github.com/zeusync/prefab/internal/core/ecs"
	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/format/compact"
	"github.com/zeusync/prefab/internal/core/format/text"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/observability/log"
	"github.com/zeusync/prefab/internal/core/registry"
	"github.com/zeusync/prefab/internal/core/schema"
)

func build(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := components.Register(registry.NewBuilder(log.NewNop())).Build()
	require.NoError(t, err)
	return reg
}

func TestLookups(t *testing.T) {
	reg := build(t)

	r, ok := reg.ByID(components.PositionID)
	require.True(t, ok)
	assert.Equal(t, "position", r.Name())

	r, ok = registry.KeyOf[components.RigidBody](reg)
	require.True(t, ok)
	assert.Equal(t, components.RigidBodyID, r.ID())

	id, err := registry.IDOf[components.Name](reg)
	require.NoError(t, err)
	assert.Equal(t, components.NameID, id)

	_, err = reg.Lookup(models.Must[models.ComponentTypeID]("00000000-0000-4000-8000-000000000001"))
	assert.ErrorIs(t, err, registry.ErrUnregisteredType)

	all := reg.All()
	require.Len(t, all, reg.Len())
	for i := 1; i < len(all); i++ {
		assert.Negative(t, models.Compare(all[i-1].ID(), all[i].ID()))
	}
}

func TestRegisterRejectsUnsupportedTypes(t *testing.T) {
	type withPointer struct{ P *int }
	b := registry.NewBuilder(nil)
	registry.Register[withPointer](b, models.Must[models.ComponentTypeID]("00000000-0000-4000-8000-000000000002"), "bad")
	_, err := b.Build()
	assert.ErrorIs(t, err, schema.ErrUnsupportedType)
}

func TestDuplicateIDLastWins(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := registry.NewBuilder(log.FromZap(zap.New(core), log.LevelDebug))
	registry.Register[components.Name](b, components.NameID, "name")
	registry.Register[components.Tags](b, components.NameID, "tags")
	reg, err := b.Build()
	require.NoError(t, err)

	r, ok := reg.ByID(components.NameID)
	require.True(t, ok)
	assert.Equal(t, "tags", r.Name())
	_, ok = registry.KeyOf[components.Name](reg)
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 1, logs.FilterMessage("duplicate component type id").Len())
}

func TestDiffKinds(t *testing.T) {
	reg := build(t)
	r, _ := reg.ByID(components.PositionID)

	src, dst := ecs.NewWorld(), ecs.NewWorld()
	a, b := src.Spawn(), dst.Spawn()

	res, data, err := r.Diff(src, a, dst, b)
	require.NoError(t, err)
	assert.Equal(t, registry.NoChange, res)
	assert.Nil(t, data)

	require.NoError(t, ecs.Set(dst, b, components.PositionID, components.Position{Value: components.Vec2{X: 1}}))
	res, data, err = r.Diff(src, a, dst, b)
	require.NoError(t, err)
	assert.Equal(t, registry.Add, res)
	require.NoError(t, r.AddComponent(data, src, a))
	p, ok := ecs.Get[components.Position](src, a, components.PositionID)
	require.True(t, ok)
	assert.Equal(t, float32(1), p.Value.X)

	res, _, err = r.Diff(src, a, dst, b)
	require.NoError(t, err)
	assert.Equal(t, registry.NoChange, res)

	require.NoError(t, ecs.Set(dst, b, components.PositionID, components.Position{Value: components.Vec2{X: 1, Y: 5}}))
	res, data, err = r.Diff(src, a, dst, b)
	require.NoError(t, err)
	assert.Equal(t, registry.Change, res)
	require.NoError(t, r.ApplyDiff(data, src, a))
	p, _ = ecs.Get[components.Position](src, a, components.PositionID)
	assert.Equal(t, components.Vec2{X: 1, Y: 5}, p.Value)

	dst.Remove(b, components.PositionID)
	res, _, err = r.Diff(src, a, dst, b)
	require.NoError(t, err)
	assert.Equal(t, registry.Remove, res)
}

func TestApplyDiffOntoMissingComponentStartsFromZero(t *testing.T) {
	reg := build(t)
	r, _ := reg.ByID(components.RigidBodyID)

	base, target := ecs.NewWorld(), ecs.NewWorld()
	from, to := base.Spawn(), base.Spawn()
	require.NoError(t, ecs.Set(base, from, components.RigidBodyID, components.RigidBody{}))
	require.NoError(t, ecs.Set(base, to, components.RigidBodyID, components.RigidBody{Mass: 2}))
	_, data, err := r.Diff(base, from, base, to)
	require.NoError(t, err)

	e := target.Spawn()
	require.NoError(t, r.ApplyDiff(data, target, e))
	body, ok := ecs.Get[components.RigidBody](target, e, components.RigidBodyID)
	require.True(t, ok)
	assert.Equal(t, components.RigidBody{Mass: 2}, *body)
}

func TestComponentPayloadRoundTrip(t *testing.T) {
	reg := build(t)
	r, _ := reg.ByID(components.TagsID)

	w := ecs.NewWorld()
	e := w.Spawn()
	require.NoError(t, ecs.Set(w, e, components.TagsID, components.Tags{Values: []string{"ball", "dynamic"}}))

	for _, kind := range []format.Kind{format.Text, format.Compact} {
		t.Run(kind.String(), func(t *testing.T) {
			var enc format.Encoder = text.NewEncoder()
			if kind == format.Compact {
				enc = compact.NewEncoder()
			}
			require.NoError(t, r.SerializeComponent(enc, w, e))
			doc, err := enc.Finish()
			require.NoError(t, err)

			var dec format.Decoder
			if kind == format.Compact {
				dec, err = compact.NewDecoder(doc)
			} else {
				dec, err = text.NewDecoder(doc)
			}
			require.NoError(t, err)

			out := ecs.NewWorld()
			oe := out.Spawn()
			require.NoError(t, r.DeserializeComponent(dec, out, oe))
			require.NoError(t, dec.Finish())
			got, ok := ecs.Get[components.Tags](out, oe, components.TagsID)
			require.True(t, ok)
			assert.Equal(t, []string{"ball", "dynamic"}, got.Values)
		})
	}
}

func TestColumnRoundTrip(t *testing.T) {
	reg := build(t)
	r, _ := reg.ByID(components.PositionID)

	w := ecs.NewWorld()
	es := w.SpawnBatch(3, r.NewColumn())
	for i, e := range es {
		require.NoError(t, ecs.Set(w, e, components.PositionID, components.Position{Value: components.Vec2{X: float32(i), Y: -1}}))
	}
	col, _, _ := w.Location(es[0], components.PositionID)

	enc := compact.NewEncoder()
	require.NoError(t, r.SerializeColumn(enc, col, 1, 2))
	doc, err := enc.Finish()
	require.NoError(t, err)

	out := ecs.NewWorld()
	oes := out.SpawnBatch(2, r.NewColumn())
	ocol, _, _ := out.Location(oes[0], components.PositionID)
	dec, err := compact.NewDecoder(doc)
	require.NoError(t, err)
	require.NoError(t, r.DeserializeColumn(dec, ocol, 0, 2))

	p, _ := ecs.Get[components.Position](out, oes[1], components.PositionID)
	assert.Equal(t, components.Vec2{X: 2, Y: -1}, p.Value)

	assert.ErrorIs(t, r.SerializeColumn(compact.NewEncoder(), col, 2, 2), registry.ErrOutOfRange)
	other, _ := reg.ByID(components.NameID)
	assert.ErrorIs(t, other.SerializeColumn(compact.NewEncoder(), col, 0, 1), registry.ErrTypeMismatch)
}

func TestDiffPayloadDuality(t *testing.T) {
	reg := build(t)
	r, _ := reg.ByID(components.RigidBodyID)

	w := ecs.NewWorld()
	a, b := w.Spawn(), w.Spawn()
	require.NoError(t, ecs.Set(w, a, components.RigidBodyID, components.RigidBody{Mass: 1}))
	require.NoError(t, ecs.Set(w, b, components.RigidBodyID, components.RigidBody{Static: true, Mass: 1}))
	_, data, err := r.Diff(w, a, w, b)
	require.NoError(t, err)

	v, err := r.DiffToValue(data)
	require.NoError(t, err)
	static, ok := v.Lookup("static")
	require.True(t, ok)
	assert.Equal(t, "true", static.String())

	back, err := r.DiffFromValue(v)
	require.NoError(t, err)
	assert.Equal(t, data, back)

	enc := text.NewEncoder()
	require.NoError(t, r.SerializeDiff(enc, data))
	doc, err := enc.Finish()
	require.NoError(t, err)
	dec, err := text.NewDecoder(doc)
	require.NoError(t, err)
	got, err := r.DeserializeDiff(dec)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	cdec, err := compact.NewDecoder(append(compact.Magic[:], 2, 0xff, 0xff))
	require.NoError(t, err)
	_, err = r.DeserializeDiff(cdec)
	assert.ErrorIs(t, err, schema.ErrInvalidPatch)
}

func TestCloneDoesNotAlias(t *testing.T) {
	reg := build(t)
	r, _ := reg.ByID(components.TagsID)

	src, dst := ecs.NewWorld(), ecs.NewWorld()
	a, b := src.Spawn(), dst.Spawn()
	require.NoError(t, ecs.Set(src, a, components.TagsID, components.Tags{Values: []string{"x"}}))
	require.NoError(t, r.Clone(src, a, dst, b))

	orig, _ := ecs.Get[components.Tags](src, a, components.TagsID)
	orig.Values[0] = "changed"
	cp, _ := ecs.Get[components.Tags](dst, b, components.TagsID)
	assert.Equal(t, []string{"x"}, cp.Values)
}
