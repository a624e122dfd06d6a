package transaction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/prefab/internal/components"
	"github.com/zeusync/prefab/internal/core/diff"
	"github.com/zeusync/prefab/internal/core/ecs"
	"github.com/zeusync/prefab/internal/core/events/bus"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/registry"
	"github.com/zeusync/prefab/internal/core/transaction"
)

var (
	ballID  = models.Must[models.EntityUUID]("ffffffff-0000-4000-8000-000000000001")
	crateID = models.Must[models.EntityUUID]("ffffffff-0000-4000-8000-000000000002")
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := components.Register(registry.NewBuilder(nil)).Build()
	require.NoError(t, err)
	return reg
}

func live(t *testing.T) (*ecs.World, map[models.EntityUUID]ecs.Entity) {
	t.Helper()
	w := ecs.NewWorld()
	ball, crate := w.Spawn(), w.Spawn()
	require.NoError(t, ecs.Set(w, ball, components.PositionID, components.Position{Value: components.Vec2{X: 1, Y: 2}}))
	require.NoError(t, ecs.Set(w, ball, components.VelocityID, components.Velocity{Value: components.Vec2{Y: -1}}))
	require.NoError(t, ecs.Set(w, crate, components.RigidBodyID, components.RigidBody{Mass: 5}))
	return w, map[models.EntityUUID]ecs.Entity{ballID: ball, crateID: crate}
}

func assertSame(t *testing.T, reg *registry.Registry, w1 *ecs.World, e1 ecs.Entity, w2 *ecs.World, e2 ecs.Entity) {
	t.Helper()
	for _, r := range reg.All() {
		res, _, err := r.Diff(w1, e1, w2, e2)
		require.NoError(t, err)
		assert.Equal(t, registry.NoChange, res, r.Name())
	}
}

// edit moves the ball, drops its velocity and names it.
func edit(t *testing.T, tx *transaction.Transaction) {
	t.Helper()
	e, ok := tx.Entity(ballID)
	require.True(t, ok)
	w := tx.World()
	require.NoError(t, ecs.Set(w, e, components.PositionID, components.Position{Value: components.Vec2{X: 1, Y: 7}}))
	require.True(t, w.Remove(e, components.VelocityID))
	require.NoError(t, ecs.Set(w, e, components.NameID, components.Name{Value: "ball"}))
}

func TestTransaction_CommitAppliesToLiveWorld(t *testing.T) {
	reg := newRegistry(t)
	w, lookup := live(t)

	tx, err := transaction.Begin(reg, w, lookup, []models.EntityUUID{ballID, crateID})
	require.NoError(t, err)
	edit(t, tx)

	d, err := tx.Commit()
	require.NoError(t, err)
	require.Len(t, d.Forward, 3)
	require.Len(t, d.Reverse, 3)

	target := diff.WorldTarget{World: w, Entities: lookup}
	require.NoError(t, diff.Apply(reg, target, d.Forward))
	edited, _ := tx.Entity(ballID)
	assertSame(t, reg, w, lookup[ballID], tx.World(), edited)

	require.NoError(t, diff.Apply(reg, target, d.Reverse))
	pos, ok := ecs.Get[components.Position](w, lookup[ballID], components.PositionID)
	require.True(t, ok)
	assert.Equal(t, float32(2), pos.Value.Y)
	assert.True(t, w.Has(lookup[ballID], components.VelocityID))
	assert.False(t, w.Has(lookup[ballID], components.NameID))

	_, err = tx.Commit()
	assert.ErrorIs(t, err, transaction.ErrFinished)
}

func TestTransaction_DoesNotTouchSource(t *testing.T) {
	reg := newRegistry(t)
	w, lookup := live(t)
	ids := []models.EntityUUID{crateID, ballID}

	tx, err := transaction.Begin(reg, w, lookup, ids)
	require.NoError(t, err)
	edit(t, tx)

	assert.Equal(t, []models.EntityUUID{crateID, ballID}, ids)
	assert.True(t, w.Has(lookup[ballID], components.VelocityID))
	assert.False(t, w.Has(lookup[ballID], components.NameID))
}

func TestTransaction_Cancel(t *testing.T) {
	reg := newRegistry(t)
	w, lookup := live(t)

	tx, err := transaction.Begin(reg, w, lookup, []models.EntityUUID{ballID})
	require.NoError(t, err)
	edit(t, tx)

	d, err := tx.Cancel()
	require.NoError(t, err)
	assert.Len(t, d.Forward, 3)

	e, ok := tx.Entity(ballID)
	require.True(t, ok)
	assertSame(t, reg, w, lookup[ballID], tx.World(), e)
}

func TestTransaction_CancelRestoresDeleted(t *testing.T) {
	reg := newRegistry(t)
	w, lookup := live(t)

	tx, err := transaction.Begin(reg, w, lookup, []models.EntityUUID{ballID, crateID})
	require.NoError(t, err)
	edit(t, tx)
	require.True(t, tx.Delete(crateID))

	d, err := tx.Cancel()
	require.NoError(t, err)
	assert.Len(t, d.Forward, 3)

	crate, ok := tx.Entity(crateID)
	require.True(t, ok)
	assertSame(t, reg, w, lookup[crateID], tx.World(), crate)
	ball, ok := tx.Entity(ballID)
	require.True(t, ok)
	assertSame(t, reg, w, lookup[ballID], tx.World(), ball)
	assert.Equal(t, 2, tx.World().Len())
}

func TestTransaction_NoEdit(t *testing.T) {
	reg := newRegistry(t)
	w, lookup := live(t)

	tx, err := transaction.Begin(reg, w, lookup, []models.EntityUUID{ballID, crateID})
	require.NoError(t, err)
	d, err := tx.CreateDiffs()
	require.NoError(t, err)
	assert.True(t, d.Empty())
}

func TestTransaction_DeletedEntitySkipped(t *testing.T) {
	reg := newRegistry(t)
	w, lookup := live(t)

	tx, err := transaction.Begin(reg, w, lookup, []models.EntityUUID{ballID, crateID})
	require.NoError(t, err)
	e, _ := tx.Entity(crateID)
	require.NoError(t, ecs.Set(tx.World(), e, components.RigidBodyID, components.RigidBody{Mass: 9}))
	assert.True(t, tx.Delete(crateID))
	assert.False(t, tx.Delete(models.NewEntityUUID()))

	_, ok := tx.Entity(crateID)
	assert.False(t, ok)
	d, err := tx.Commit()
	require.NoError(t, err)
	assert.True(t, d.Empty())
}

func TestTransaction_UnknownEntity(t *testing.T) {
	reg := newRegistry(t)
	w, lookup := live(t)
	_, err := transaction.Begin(reg, w, lookup, []models.EntityUUID{models.NewEntityUUID()})
	assert.ErrorIs(t, err, transaction.ErrUnknownEntity)

	w.Despawn(lookup[crateID])
	_, err = transaction.Begin(reg, w, lookup, []models.EntityUUID{crateID})
	assert.ErrorIs(t, err, transaction.ErrUnknownEntity)
}

func TestHistory_UndoRedo(t *testing.T) {
	reg := newRegistry(t)
	w, lookup := live(t)
	events := bus.New()
	var seen []string
	for _, typ := range []string{transaction.EventRecorded, transaction.EventUndone, transaction.EventRedone} {
		_, err := events.Subscribe(typ, func(e bus.Event) error {
			seen = append(seen, e.Type())
			return nil
		})
		require.NoError(t, err)
	}

	h := transaction.NewHistory(reg, diff.WorldTarget{World: w, Entities: lookup}, nil, events)
	ok, err := h.Undo()
	require.NoError(t, err)
	assert.False(t, ok)

	tx, err := transaction.Begin(reg, w, lookup, []models.EntityUUID{ballID})
	require.NoError(t, err)
	edit(t, tx)
	d, err := tx.Commit()
	require.NoError(t, err)
	require.NoError(t, h.Do(d))
	edited, _ := tx.Entity(ballID)
	assertSame(t, reg, w, lookup[ballID], tx.World(), edited)

	h.Record(transaction.Diffs{})
	assert.True(t, h.CanUndo())
	assert.False(t, h.CanRedo())

	ok, err = h.Undo()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, w.Has(lookup[ballID], components.VelocityID))
	assert.True(t, h.CanRedo())

	ok, err = h.Redo()
	require.NoError(t, err)
	assert.True(t, ok)
	assertSame(t, reg, w, lookup[ballID], tx.World(), edited)

	ok, err = h.Redo()
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{transaction.EventRecorded, transaction.EventUndone, transaction.EventRedone}, seen)
}
