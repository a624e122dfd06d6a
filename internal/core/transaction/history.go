package transaction

import (
	"fmt"

	"github.com/zeusync/prefab/internal/core/diff"
	"github.com/zeusync/prefab/internal/core/events/bus"
	"github.com/zeusync/prefab/internal/core/observability/log"
	"github.com/zeusync/prefab/internal/core/registry"
)

const (
	EventRecorded = "history.recorded"
	EventUndone   = "history.undone"
	EventRedone   = "history.redone"
)

// HistoryEvent is the payload of the history events.
type HistoryEvent struct {
	Diffs     int
	UndoDepth int
	RedoDepth int
}

// History keeps committed edits of one target so they can be undone and
// redone in order. It is not safe for concurrent use.
type History struct {
	reg    *registry.Registry
	target diff.Target
	logger log.Log
	events bus.EventBus
	undo   []Diffs
	redo   []Diffs
}

// NewHistory returns an empty history over target. logger and events may be
// nil.
func NewHistory(reg *registry.Registry, target diff.Target, logger log.Log, events bus.EventBus) *History {
	if logger == nil {
		logger = log.NewNop()
	}
	return &History{
		reg:    reg,
		target: target,
		logger: logger.Named("history"),
		events: events,
	}
}

// Do applies d forward to the target and records it.
func (h *History) Do(d Diffs) error {
	if err := diff.Apply(h.reg, h.target, d.Forward); err != nil {
		return fmt.Errorf("do: %w", err)
	}
	h.Record(d)
	return nil
}

// Record pushes d, already applied to the target, and drops the redo stack.
// Empty edits are ignored.
func (h *History) Record(d Diffs) {
	if d.Empty() {
		return
	}
	h.undo = append(h.undo, d)
	h.redo = h.redo[:0]
	h.publish(EventRecorded, d)
}

// Undo reverts the latest edit. It reports false when there is nothing to
// undo.
func (h *History) Undo() (bool, error) {
	if len(h.undo) == 0 {
		return false, nil
	}
	d := h.undo[len(h.undo)-1]
	if err := diff.Apply(h.reg, h.target, d.Reverse); err != nil {
		return false, fmt.Errorf("undo: %w", err)
	}
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, d)
	h.publish(EventUndone, d)
	return true, nil
}

// Redo reapplies the latest undone edit.
func (h *History) Redo() (bool, error) {
	if len(h.redo) == 0 {
		return false, nil
	}
	d := h.redo[len(h.redo)-1]
	if err := diff.Apply(h.reg, h.target, d.Forward); err != nil {
		return false, fmt.Errorf("redo: %w", err)
	}
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, d)
	h.publish(EventRedone, d)
	return true, nil
}

func (h *History) CanUndo() bool { return len(h.undo) > 0 }
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

func (h *History) publish(typ string, d Diffs) {
	h.logger.Debug(typ,
		log.Int("diffs", len(d.Forward)),
		log.Int("undo", len(h.undo)),
		log.Int("redo", len(h.redo)),
	)
	if h.events == nil {
		return
	}
	event := bus.NewEvent(typ, "history", HistoryEvent{
		Diffs:     len(d.Forward),
		UndoDepth: len(h.undo),
		RedoDepth: len(h.redo),
	})
	if err := h.events.Publish(event); err != nil {
		h.logger.Warn("history event handler failed", log.String("event", typ), log.Error(err))
	}
}
