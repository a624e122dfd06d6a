// Package transaction edits a selection of entities in private copies and
// turns the edit into forward and reverse component diffs.
package transaction

import (
	"errors"
	"fmt"
	"slices"

	"github.com/zeusync/prefab/internal/core/diff"
	"github.com/zeusync/prefab/internal/core/ecs"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/registry"
)

var (
	ErrUnknownEntity = errors.New("entity is not part of the transaction")
	ErrFinished      = errors.New("transaction already finished")
)

// Diffs is the result of a finished transaction. Applying Forward to the
// state the transaction started from yields the edited state; Reverse undoes
// it.
type Diffs struct {
	Forward []diff.ComponentDiff
	Reverse []diff.ComponentDiff
}

func (d Diffs) Empty() bool { return len(d.Forward) == 0 }

type tracked struct {
	before, after ecs.Entity
}

// Transaction holds a before and an after copy of every selected entity.
// Edits go to the after world.
type Transaction struct {
	reg      *registry.Registry
	before   *ecs.World
	after    *ecs.World
	entities map[models.EntityUUID]tracked
	lookup   map[models.EntityUUID]ecs.Entity
	finished bool
}

// Begin copies the entities named by ids out of world. lookup maps uuids to
// handles in world.
func Begin(reg *registry.Registry, world *ecs.World, lookup map[models.EntityUUID]ecs.Entity, ids []models.EntityUUID) (*Transaction, error) {
	tx := &Transaction{
		reg:      reg,
		before:   ecs.NewWorld(),
		after:    ecs.NewWorld(),
		entities: make(map[models.EntityUUID]tracked, len(ids)),
		lookup:   make(map[models.EntityUUID]ecs.Entity, len(ids)),
	}

	for _, id := range models.Sort(slices.Clone(ids)) {
		if _, ok := tx.entities[id]; ok {
			continue
		}
		src, ok := lookup[id]
		if !ok || !world.Alive(src) {
			return nil, fmt.Errorf("begin: %w: %s", ErrUnknownEntity, id)
		}
		t := tracked{before: tx.before.Spawn(), after: tx.after.Spawn()}
		for _, componentType := range world.ComponentTypes(src) {
			r, err := reg.Lookup(componentType)
			if err != nil {
				return nil, fmt.Errorf("begin %s: %w", id, err)
			}
			if err := r.Clone(world, src, tx.before, t.before); err != nil {
				return nil, fmt.Errorf("begin %s: %w", id, err)
			}
			if err := r.Clone(world, src, tx.after, t.after); err != nil {
				return nil, fmt.Errorf("begin %s: %w", id, err)
			}
		}
		tx.entities[id] = t
		tx.lookup[id] = t.after
	}
	return tx, nil
}

// World is the editable copy.
func (tx *Transaction) World() *ecs.World { return tx.after }

// Entity returns the editable handle of id.
func (tx *Transaction) Entity(id models.EntityUUID) (ecs.Entity, bool) {
	t, ok := tx.entities[id]
	if !ok || !tx.after.Alive(t.after) {
		return ecs.Entity{}, false
	}
	return t.after, true
}

// Target resolves uuids against the editable copy.
func (tx *Transaction) Target() diff.Target {
	return diff.WorldTarget{World: tx.after, Entities: tx.lookup}
}

// Delete removes id from the editable copy. A deleted entity produces no
// diffs.
func (tx *Transaction) Delete(id models.EntityUUID) bool {
	t, ok := tx.entities[id]
	if !ok {
		return false
	}
	return tx.after.Despawn(t.after)
}

// CreateDiffs compares before and after for every tracked entity that is
// still alive.
func (tx *Transaction) CreateDiffs() (Diffs, error) {
	if tx.finished {
		return Diffs{}, ErrFinished
	}
	pairs := make([]diff.Pair, 0, len(tx.entities))
	for id, t := range tx.entities {
		if !tx.after.Alive(t.after) {
			continue
		}
		pairs = append(pairs, diff.Pair{Entity: id, Before: t.before, After: t.after})
	}
	forward, reverse, err := diff.Entities(tx.reg, tx.before, tx.after, pairs)
	if err != nil {
		return Diffs{}, err
	}
	return Diffs{Forward: forward, Reverse: reverse}, nil
}

// Commit finishes the transaction, keeping the edits.
func (tx *Transaction) Commit() (Diffs, error) {
	d, err := tx.CreateDiffs()
	if err != nil {
		return Diffs{}, err
	}
	tx.finished = true
	tx.before = nil
	return d, nil
}

// Cancel finishes the transaction and rolls the editable copy back to its
// starting state. Entities deleted during the transaction are spawned again
// from their starting copy under a new handle. The diffs of the discarded
// edit are returned; deletions are not part of them.
func (tx *Transaction) Cancel() (Diffs, error) {
	d, err := tx.CreateDiffs()
	if err != nil {
		return Diffs{}, err
	}
	if err := diff.Apply(tx.reg, tx.Target(), d.Reverse); err != nil {
		return Diffs{}, fmt.Errorf("cancel: %w", err)
	}
	if err := tx.restoreDeleted(); err != nil {
		return Diffs{}, fmt.Errorf("cancel: %w", err)
	}
	tx.finished = true
	tx.before = nil
	return d, nil
}

func (tx *Transaction) restoreDeleted() error {
	for _, id := range models.SortedKeys(tx.entities) {
		t := tx.entities[id]
		if tx.after.Alive(t.after) {
			continue
		}
		t.after = tx.after.Spawn()
		for _, componentType := range tx.before.ComponentTypes(t.before) {
			r, err := tx.reg.Lookup(componentType)
			if err != nil {
				return fmt.Errorf("restore %s: %w", id, err)
			}
			if err := r.Clone(tx.before, t.before, tx.after, t.after); err != nil {
				return fmt.Errorf("restore %s: %w", id, err)
			}
		}
		tx.entities[id] = t
		tx.lookup[id] = t.after
	}
	return nil
}
