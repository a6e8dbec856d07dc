package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/notify"
)

var (
	ErrPending  = errors.New("event has an update in flight")
	ErrNotFound = errors.New("event not found")
)

// ProvisionalPrefix marks ids of events created locally and not yet
// confirmed by the calendar.
const ProvisionalPrefix = "local-"

const defaultTimeout = 30 * time.Second

// Remote is the calendar write boundary.
type Remote interface {
	CreateEvent(ctx context.Context, calendarID string, draft model.EventDraft) (model.CalendarEvent, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, patch model.Patch) (model.CalendarEvent, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

type Options struct {
	// Refetch reloads the visible range after a failed write.
	Refetch func(ctx context.Context) error
	// Changed is called whenever the list or the pending set changes.
	Changed func()
	// Timeout bounds each remote call. Zero means 30s.
	Timeout time.Duration
}

// Coordinator applies writes locally, dispatches them, and reconciles.
type Coordinator struct {
	events  *EventList
	pending *PendingSet
	remote  Remote
	sink    notify.Sink
	logger  *slog.Logger
	opts    Options

	mu       sync.Mutex
	inflight map[model.EventKey]model.Patch
	wg       sync.WaitGroup
}

func NewCoordinator(events *EventList, pending *PendingSet, remote Remote, sink notify.Sink, logger *slog.Logger, opts Options) *Coordinator {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	return &Coordinator{
		events:   events,
		pending:  pending,
		remote:   remote,
		sink:     sink,
		logger:   logger,
		opts:     opts,
		inflight: make(map[model.EventKey]model.Patch),
	}
}

// Commit applies patch to the event locally, marks it pending and sends the
// update. It returns at once; the channel yields the remote result after
// the key has left the pending set. On failure the user is notified and
// the visible range is refetched.
func (c *Coordinator) Commit(ctx context.Context, key model.EventKey, patch model.Patch) <-chan error {
	calendarID, eventID, ok := key.Split()
	if !ok {
		return settled(fmt.Errorf("commit %q: %w", key, ErrNotFound))
	}
	if !c.pending.Add(key) {
		return settled(ErrPending)
	}
	if !c.events.Update(key, patch.Apply) {
		c.pending.Remove(key)
		return settled(fmt.Errorf("commit %q: %w", key, ErrNotFound))
	}
	c.mu.Lock()
	c.inflight[key] = patch
	c.mu.Unlock()
	c.changed()

	return c.dispatch(ctx, key, "update", func(ctx context.Context) error {
		_, err := c.remote.UpdateEvent(ctx, calendarID, eventID, patch)
		return err
	}, func(ctx context.Context, err error) {
		c.notify("Couldn't update event", err)
		c.refetch(ctx)
	})
}

// Create inserts a provisional copy of the draft and sends the create. The
// provisional event is swapped for the calendar's copy on success and
// removed on failure.
func (c *Coordinator) Create(ctx context.Context, calendarID string, accountID int64, draft model.EventDraft) (model.EventKey, <-chan error) {
	local := model.CalendarEvent{
		ID:          ProvisionalPrefix + uuid.NewString(),
		CalendarID:  calendarID,
		AccountID:   accountID,
		Title:       draft.Title,
		Description: draft.Description,
		Location:    draft.Location,
		Time:        draft.Time,
		Provisional: true,
	}
	key := local.Key()
	c.pending.Add(key)
	c.events.Insert(local)
	c.changed()

	return key, c.dispatch(ctx, key, "create", func(ctx context.Context) error {
		created, err := c.remote.CreateEvent(ctx, calendarID, draft)
		if err != nil {
			return err
		}
		created.CalendarID = calendarID
		created.AccountID = accountID
		created.Assigned = local.Assigned
		c.events.Swap(key, created)
		return nil
	}, func(ctx context.Context, err error) {
		c.events.Remove(key)
		c.notify("Couldn't create event", err)
	})
}

// Delete sends the delete and drops the event once the calendar confirms.
func (c *Coordinator) Delete(ctx context.Context, key model.EventKey) <-chan error {
	calendarID, eventID, ok := key.Split()
	if !ok {
		return settled(fmt.Errorf("delete %q: %w", key, ErrNotFound))
	}
	if _, ok := c.events.Get(key); !ok {
		return settled(fmt.Errorf("delete %q: %w", key, ErrNotFound))
	}
	if !c.pending.Add(key) {
		return settled(ErrPending)
	}
	c.changed()

	return c.dispatch(ctx, key, "delete", func(ctx context.Context) error {
		if err := c.remote.DeleteEvent(ctx, calendarID, eventID); err != nil {
			return err
		}
		c.events.Remove(key)
		return nil
	}, func(ctx context.Context, err error) {
		c.notify("Couldn't delete event", err)
		c.refetch(ctx)
	})
}

// Replace installs a fresh snapshot, re-applying patches still in flight
// so a refresh does not briefly undo them.
func (c *Coordinator) Replace(events []model.CalendarEvent) {
	c.mu.Lock()
	if len(c.inflight) > 0 {
		cp := make([]model.CalendarEvent, len(events))
		for i, ev := range events {
			if p, ok := c.inflight[ev.Key()]; ok {
				ev = p.Apply(ev)
			}
			cp[i] = ev
		}
		events = cp
	}
	c.mu.Unlock()
	c.events.Replace(events)
	c.changed()
}

// Wait blocks until every dispatched write has settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) dispatch(ctx context.Context, key model.EventKey, op string, call func(context.Context) error, onFail func(context.Context, error)) <-chan error {
	done := make(chan error, 1)
	ctx = context.WithoutCancel(ctx)
	logger := c.logger.With("key", key, "op", op)

	c.wg.Add(1)
	go func() {
		var err error
		defer c.wg.Done()
		defer func() {
			c.pending.Remove(key)
			c.changed()
			done <- err
			close(done)
		}()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s event %s: panic: %v", op, key, r)
			}
			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
			if err != nil {
				logger.Warn("remote write failed", "error", err)
				onFail(ctx, err)
			}
		}()

		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
		err = call(callCtx)
		if err == nil {
			logger.Debug("remote write confirmed")
		}
	}()
	return done
}

func (c *Coordinator) refetch(ctx context.Context) {
	if c.opts.Refetch == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	if err := c.opts.Refetch(ctx); err != nil {
		c.logger.Warn("refetch after failed write", "error", err)
	}
}

func (c *Coordinator) notify(prefix string, err error) {
	if c.sink != nil {
		c.sink.Notify(prefix+": "+err.Error(), notify.Error)
	}
}

func (c *Coordinator) changed() {
	if c.opts.Changed != nil {
		c.opts.Changed()
	}
}

func settled(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}
