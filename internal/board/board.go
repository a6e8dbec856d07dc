// Package board owns the interactive calendar state of a hub: the cursor
// and view mode, the selected calendars, the event list, the pending set
// and the drag machine. HTTP and WebSocket handlers drive it; it never
// blocks pointer handling on the network.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/famboard/internal/assign"
	"github.com/dukerupert/famboard/internal/drag"
	"github.com/dukerupert/famboard/internal/layout"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/notify"
	"github.com/dukerupert/famboard/internal/optimistic"
	"github.com/dukerupert/famboard/internal/pipeline"
	"github.com/dukerupert/famboard/internal/placement"
	"github.com/dukerupert/famboard/internal/timegrid"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrEventPending    = errors.New("event has an update in flight")
	ErrNotTimed        = errors.New("event is not a timed event")
	ErrInvalidTime     = errors.New("event must end after it starts")
	ErrUnknownCalendar = errors.New("calendar is not selected")
	ErrDayOutOfRange   = errors.New("day is outside the visible range")
)

// Loader runs one fetch generation. *pipeline.Pipeline implements it.
type Loader interface {
	Run(ctx context.Context, sels []model.SelectedCalendar, timeMin, timeMax time.Time) (pipeline.Result, error)
}

// Members lists household members for avatars.
type Members interface {
	ListMembers() ([]model.Member, error)
}

// Assignments persists manual member assignments.
type Assignments interface {
	SetAssignments(key model.EventKey, assigned []model.Assignment) error
}

type Config struct {
	Grid      timegrid.Grid
	Mode      timegrid.ViewMode
	WeekStart time.Weekday
	Location  *time.Location
	// GridLeftX and ColumnWidthPx describe the client's time grid until it
	// reports its own viewport.
	GridLeftX     float64
	ColumnWidthPx float64
	// WriteTimeout bounds each calendar write. Zero means 30s.
	WriteTimeout time.Duration
	Now          func() time.Time
}

type Deps struct {
	Loader      Loader
	Remote      optimistic.Remote
	Members     Members
	Assignments Assignments
	Sink        notify.Sink
	Logger      *slog.Logger
}

type ChangeType string

const (
	// ChangeBoard means the events, the pending set or the view changed.
	ChangeBoard ChangeType = "board_changed"
	// ChangePreview carries a live drag preview.
	ChangePreview ChangeType = "drag_preview"
)

type Change struct {
	Type ChangeType
	Drag *drag.State
}

type Board struct {
	cfg         Config
	loader      Loader
	members     Members
	assignments Assignments
	sink        notify.Sink
	logger      *slog.Logger

	events  *optimistic.EventList
	pending *optimistic.PendingSet
	coord   *optimistic.Coordinator

	mu         sync.Mutex
	cursor     model.Date
	mode       timegrid.ViewMode
	selections []model.SelectedCalendar
	machine    *drag.Machine
	memberByID map[int64]model.Member

	listenMu  sync.RWMutex
	listeners []func(Change)
}

func New(cfg Config, deps Deps) *Board {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Mode == "" {
		cfg.Mode = timegrid.ModeWeek
	}
	if cfg.Grid == (timegrid.Grid{}) {
		cfg.Grid = timegrid.DefaultGrid()
	}
	if cfg.ColumnWidthPx == 0 {
		cfg.ColumnWidthPx = 120
	}
	sink := deps.Sink
	if sink == nil {
		sink = notify.LogSink{Logger: deps.Logger}
	}

	b := &Board{
		cfg:         cfg,
		loader:      deps.Loader,
		members:     deps.Members,
		assignments: deps.Assignments,
		sink:        sink,
		logger:      deps.Logger,
		events:      optimistic.NewEventList(),
		pending:     optimistic.NewPendingSet(),
		mode:        cfg.Mode,
		memberByID:  make(map[int64]model.Member),
	}
	b.cursor = model.DateOf(cfg.Now().In(cfg.Location))
	b.machine = drag.NewMachine(b.geometryLocked())
	b.coord = optimistic.NewCoordinator(b.events, b.pending, deps.Remote, sink, deps.Logger, optimistic.Options{
		Refetch: b.Refresh,
		Changed: func() { b.emit(Change{Type: ChangeBoard}) },
		Timeout: cfg.WriteTimeout,
	})
	return b
}

// OnChange registers fn to be told about changes. fn runs on the goroutine
// that made the change and must not call back into the board.
func (b *Board) OnChange(fn func(Change)) {
	b.listenMu.Lock()
	b.listeners = append(b.listeners, fn)
	b.listenMu.Unlock()
}

func (b *Board) emit(c Change) {
	b.listenMu.RLock()
	defer b.listenMu.RUnlock()
	for _, fn := range b.listeners {
		fn(c)
	}
}

// Wait blocks until every dispatched calendar write has settled.
func (b *Board) Wait() {
	b.coord.Wait()
}

func (b *Board) Location() *time.Location {
	return b.cfg.Location
}

func (b *Board) Grid() timegrid.Grid {
	return b.cfg.Grid
}

func (b *Board) today() model.Date {
	return model.DateOf(b.cfg.Now().In(b.cfg.Location))
}

func (b *Board) geometryLocked() drag.Geometry {
	return drag.Geometry{
		Grid:          b.cfg.Grid,
		GridLeftX:     b.cfg.GridLeftX,
		ColumnWidthPx: b.cfg.ColumnWidthPx,
		DayCount:      b.mode.DayCount(),
	}
}

func (b *Board) rangeLocked() timegrid.VisibleRange {
	return timegrid.RangeFor(b.cursor, b.mode, b.cfg.WeekStart)
}

// Range is the visible range for the current cursor and mode.
func (b *Board) Range() timegrid.VisibleRange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rangeLocked()
}

func (b *Board) Mode() timegrid.ViewMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

func (b *Board) Cursor() model.Date {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// navigate applies fn to the cursor and mode, cancels any drag, and
// reports the new range.
func (b *Board) navigate(fn func()) timegrid.VisibleRange {
	b.mu.Lock()
	fn()
	b.machine.Cancel()
	b.machine.SetGeometry(b.geometryLocked())
	r := b.rangeLocked()
	b.mu.Unlock()
	b.emit(Change{Type: ChangeBoard})
	return r
}

func (b *Board) SetMode(mode timegrid.ViewMode) timegrid.VisibleRange {
	return b.navigate(func() { b.mode = mode })
}

func (b *Board) SetCursor(d model.Date) timegrid.VisibleRange {
	return b.navigate(func() { b.cursor = d })
}

// Step pages the view: a month, seven days or three days per step.
func (b *Board) Step(n int) timegrid.VisibleRange {
	return b.navigate(func() { b.cursor = timegrid.Step(b.cursor, b.mode, n) })
}

func (b *Board) Today() timegrid.VisibleRange {
	today := b.today()
	return b.navigate(func() { b.cursor = today })
}

// SetViewport records where the client drew the time grid.
func (b *Board) SetViewport(gridLeftX, columnWidthPx float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.GridLeftX = gridLeftX
	if columnWidthPx > 0 {
		b.cfg.ColumnWidthPx = columnWidthPx
	}
	b.machine.SetGeometry(b.geometryLocked())
}

func (b *Board) SetSelections(sels []model.SelectedCalendar) {
	b.mu.Lock()
	b.selections = append([]model.SelectedCalendar(nil), sels...)
	b.mu.Unlock()
}

func (b *Board) Selections() []model.SelectedCalendar {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.SelectedCalendar(nil), b.selections...)
}

// Refresh fetches the visible range for the selected calendars and
// installs the result. A refresh overtaken by a newer one returns nil and
// installs nothing.
func (b *Board) Refresh(ctx context.Context) error {
	b.mu.Lock()
	sels := append([]model.SelectedCalendar(nil), b.selections...)
	timeMin, timeMax := b.rangeLocked().Bounds(b.cfg.Location)
	b.mu.Unlock()

	b.loadMembers()

	res, err := b.loader.Run(ctx, sels, timeMin, timeMax)
	if errors.Is(err, pipeline.ErrSuperseded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh events: %w", err)
	}
	b.coord.Replace(res.Events)

	if res.Fetched > 0 && len(res.Failed) == res.Fetched {
		b.sink.Notify("Couldn't load any calendars", notify.Warning)
	}
	b.logger.Debug("refreshed",
		"events", len(res.Events),
		"calendars", res.Fetched,
		"failed", len(res.Failed),
		"generation", res.Generation,
	)
	return nil
}

func (b *Board) loadMembers() {
	if b.members == nil {
		return
	}
	list, err := b.members.ListMembers()
	if err != nil {
		b.logger.Warn("list members", "error", err)
		return
	}
	byID := make(map[int64]model.Member, len(list))
	for _, m := range list {
		byID[m.ID] = m
	}
	b.mu.Lock()
	b.memberByID = byID
	b.mu.Unlock()
}

// Event returns the current copy of an event.
func (b *Board) Event(key model.EventKey) (model.CalendarEvent, bool) {
	return b.events.Get(key)
}

// Events returns the current snapshot.
func (b *Board) Events() []model.CalendarEvent {
	return b.events.Snapshot()
}

func (b *Board) Pending(key model.EventKey) bool {
	return b.pending.Has(key)
}

// QuickCreate proposes the time range for a new event on the i-th visible
// day.
func (b *Board) QuickCreate(dayIndex int) (model.TimeRange, error) {
	r := b.Range()
	if dayIndex < 0 || dayIndex >= r.Days() {
		return model.TimeRange{}, ErrDayOutOfRange
	}
	return layout.QuickCreate(r.Day(dayIndex), b.cfg.Location), nil
}

// CreateEvent inserts a provisional event and sends it to the calendar.
func (b *Board) CreateEvent(ctx context.Context, calendarID string, draft model.EventDraft) (model.EventKey, <-chan error, error) {
	if !draft.Time.Valid() {
		return "", nil, ErrInvalidTime
	}
	accountID, ok := b.accountFor(calendarID)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownCalendar, calendarID)
	}
	key, done := b.coord.Create(ctx, calendarID, accountID, draft)
	return key, done, nil
}

func (b *Board) accountFor(calendarID string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.selections {
		if s.CalendarID == calendarID {
			return s.AccountID, true
		}
	}
	return 0, false
}

// EditEvent applies a field patch through the coordinator.
func (b *Board) EditEvent(ctx context.Context, key model.EventKey, patch model.Patch) (<-chan error, error) {
	ev, ok := b.events.Get(key)
	if !ok {
		return nil, ErrEventNotFound
	}
	if b.pending.Has(key) || ev.Provisional {
		return nil, ErrEventPending
	}
	if patch.Start != nil || patch.End != nil {
		if !ev.Time.Timed() {
			return nil, ErrNotTimed
		}
		if !patch.Apply(ev).Time.Valid() {
			return nil, ErrInvalidTime
		}
	}
	if patch.Empty() {
		return closed(nil), nil
	}
	return b.commit(ctx, key, patch)
}

func (b *Board) commit(ctx context.Context, key model.EventKey, patch model.Patch) (<-chan error, error) {
	return translated(b.coord.Commit(ctx, key, patch)), nil
}

func (b *Board) DeleteEvent(ctx context.Context, key model.EventKey) (<-chan error, error) {
	ev, ok := b.events.Get(key)
	if !ok {
		return nil, ErrEventNotFound
	}
	if b.pending.Has(key) || ev.Provisional {
		return nil, ErrEventPending
	}
	return translated(b.coord.Delete(ctx, key)), nil
}

// Reassign replaces the members assigned to an event and stores the
// choice so later refreshes keep it.
func (b *Board) Reassign(key model.EventKey, memberIDs []int64) error {
	if _, ok := b.events.Get(key); !ok {
		return ErrEventNotFound
	}
	now := b.cfg.Now()
	assigned := make([]model.Assignment, 0, len(memberIDs))
	for _, id := range memberIDs {
		assigned = append(assigned, model.Assignment{MemberID: id, AssignedAt: now, AssignedBy: assign.ByManual})
	}
	if b.assignments != nil {
		if err := b.assignments.SetAssignments(key, assigned); err != nil {
			return fmt.Errorf("save assignments: %w", err)
		}
	}
	b.events.Update(key, func(ev model.CalendarEvent) model.CalendarEvent {
		ev.Assigned = assigned
		return ev
	})
	b.emit(Change{Type: ChangeBoard})
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, optimistic.ErrPending):
		return ErrEventPending
	case errors.Is(err, optimistic.ErrNotFound):
		return ErrEventNotFound
	}
	return err
}

// translated maps coordinator errors on done to the board's own.
func translated(done <-chan error) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- translate(<-done)
		close(out)
	}()
	return out
}

func closed(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}

func (b *Board) layoutInput() (layout.Input, model.Date, timegrid.ViewMode) {
	b.mu.Lock()
	r := b.rangeLocked()
	in := layout.Input{
		Range:    r,
		Grid:     b.cfg.Grid,
		Pending:  b.pending,
		Members:  b.memberByID,
		Today:    b.today(),
		Location: b.cfg.Location,
	}
	if s, ok := b.machine.State(); ok {
		in.Drag = &s
	}
	cursor, mode := b.cursor, b.mode
	b.mu.Unlock()

	in.Days = placement.ByDay(b.events.Snapshot(), r, b.cfg.Location)
	return in, cursor, mode
}

// View is the rendered board.
type View struct {
	Mode    timegrid.ViewMode     `json:"mode"`
	Cursor  model.Date            `json:"cursor"`
	Range   timegrid.VisibleRange `json:"range"`
	Title   string                `json:"title"`
	Week    *layout.WeekView      `json:"week,omitempty"`
	Month   *layout.MonthView     `json:"month,omitempty"`
	Pending []model.EventKey      `json:"pending"`
}

// Layout computes the current view.
func (b *Board) Layout() View {
	in, cursor, mode := b.layoutInput()
	v := View{Mode: mode, Cursor: cursor, Range: in.Range, Pending: b.pending.Keys()}
	if mode == timegrid.ModeMonth {
		m := layout.Month(in, cursor)
		v.Month = &m
		v.Title = m.Title
		return v
	}
	w := layout.Week(in)
	v.Week = &w
	v.Title = rangeTitle(in.Range, b.cfg.Location)
	return v
}

func rangeTitle(r timegrid.VisibleRange, loc *time.Location) string {
	first := r.Start.In(loc)
	last := r.End.AddDays(-1).In(loc)
	switch {
	case first.Year() != last.Year():
		return first.Format("Jan 2, 2006") + " - " + last.Format("Jan 2, 2006")
	case first.Month() != last.Month():
		return first.Format("Jan 2") + " - " + last.Format("Jan 2, 2006")
	}
	return first.Format("Jan 2") + " - " + last.Format("2, 2006")
}
