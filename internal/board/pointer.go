package board

import (
	"context"
	"errors"

	"github.com/dukerupert/famboard/internal/drag"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/timegrid"
)

var (
	ErrDragBusy     = errors.New("another event is being dragged")
	ErrNotDraggable = errors.New("events cannot be dragged in month view")
)

// PointerDown arms a drag on the event at key. offsetY is the pointer's
// distance from the top of the event's box and picks move or resize.
func (b *Board) PointerDown(key model.EventKey, offsetY float64, p drag.Pointer) error {
	ev, ok := b.events.Get(key)
	if !ok {
		return ErrEventNotFound
	}
	if ev.Provisional || b.pending.Has(key) {
		return ErrEventPending
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == timegrid.ModeMonth {
		return ErrNotDraggable
	}
	t, ok := drag.TargetFor(ev, b.rangeLocked(), b.cfg.Grid, b.cfg.Location)
	if !ok {
		return ErrNotTimed
	}
	region := drag.HitRegion(offsetY, t.HeightPx)
	if !b.machine.PointerDown(t, region, p, b.pending) {
		return ErrDragBusy
	}
	return nil
}

// PointerMove updates the drag and broadcasts the preview once the pointer
// has crossed the threshold.
func (b *Board) PointerMove(p drag.Pointer) (drag.State, bool) {
	b.mu.Lock()
	s, ok := b.machine.PointerMove(p)
	b.mu.Unlock()
	if ok {
		b.emit(Change{Type: ChangePreview, Drag: &s})
	}
	return s, ok
}

// Release is the result of a pointer-up.
type Release struct {
	Kind  drag.OutcomeKind
	Key   model.EventKey
	Patch model.Patch
	// Done yields the calendar's answer for a commit. It is nil otherwise.
	Done <-chan error
}

// PointerUp ends the interaction. A completed drag is resolved to a patch
// and committed optimistically; the call returns before the calendar
// answers.
func (b *Board) PointerUp(ctx context.Context, p drag.Pointer) (Release, error) {
	b.mu.Lock()
	out := b.machine.PointerUp(p)
	r := b.rangeLocked()
	b.mu.Unlock()

	rel := Release{Kind: out.Kind, Key: out.Key}
	if out.Kind != drag.OutcomeCommit {
		return rel, nil
	}

	ev, ok := b.events.Get(out.Key)
	if !ok {
		b.emit(Change{Type: ChangeBoard})
		return rel, ErrEventNotFound
	}
	patch, err := drag.Resolve(out.State, ev, b.cfg.Grid, r, b.cfg.Location)
	if err != nil {
		b.emit(Change{Type: ChangeBoard})
		return rel, ErrNotTimed
	}
	rel.Patch = patch

	if sameInstants(patch.Apply(ev).Time, ev.Time) {
		// Dropped where it started.
		b.emit(Change{Type: ChangeBoard})
		rel.Done = closed(nil)
		return rel, nil
	}
	rel.Done = translated(b.coord.Commit(ctx, out.Key, patch))
	return rel, nil
}

// PointerCancel drops any drag, for example when the pointer leaves the
// window.
func (b *Board) PointerCancel() {
	b.mu.Lock()
	b.machine.Cancel()
	b.mu.Unlock()
	b.emit(Change{Type: ChangeBoard})
}

// Dragging returns the live preview, if any.
func (b *Board) Dragging() (drag.State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.machine.State()
}

func sameInstants(a, b model.TimeRange) bool {
	return a.Start.Equal(b.Start) && a.End.Equal(b.End)
}
