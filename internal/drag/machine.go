// Package drag tracks a single pointer-driven move or resize of a timed
// event and turns the final pointer position into a time patch.
package drag

import (
	"math"
	"time"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/timegrid"
)

const (
	// MoveThresholdPx separates a click from a move.
	MoveThresholdPx = 8
	// ResizeThresholdPx applies when the pointer went down on a handle.
	ResizeThresholdPx = 3
	// HandleStripPx is the height of the top and bottom resize handles.
	HandleStripPx = 3
)

type Mode string

const (
	ModeMove         Mode = "move"
	ModeResizeTop    Mode = "resize-top"
	ModeResizeBottom Mode = "resize-bottom"
)

// Region is the part of an event box the pointer went down on.
type Region string

const (
	RegionBody   Region = "body"
	RegionTop    Region = "top"
	RegionBottom Region = "bottom"
)

// HitRegion classifies a pointer offset measured from the top of a box.
func HitRegion(offsetY, boxHeightPx float64) Region {
	switch {
	case offsetY <= HandleStripPx:
		return RegionTop
	case offsetY >= boxHeightPx-HandleStripPx:
		return RegionBottom
	default:
		return RegionBody
	}
}

type Phase int

const (
	Idle Phase = iota
	PendingDetect
	Dragging
)

func (p Phase) String() string {
	switch p {
	case PendingDetect:
		return "pending-detect"
	case Dragging:
		return "dragging"
	default:
		return "idle"
	}
}

// Pointer is a pointer position. X is in the same space as
// Geometry.GridLeftX; Y is measured from the top of the time area.
type Pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Geometry describes the on-screen grid the pointer moves over.
type Geometry struct {
	Grid          timegrid.Grid `json:"grid"`
	GridLeftX     float64       `json:"grid_left_x"`
	ColumnWidthPx float64       `json:"column_width_px"`
	DayCount      int           `json:"day_count"`
}

func (g Geometry) containerHeight() float64 {
	return g.Grid.ContainerHeightPx()
}

// minBoxPx keeps a moved event's top far enough from the bottom edge that
// part of it stays visible.
func (g Geometry) minBoxPx() float64 {
	return g.Grid.HourHeightPx / 2
}

// Target is the event a pointer went down on, with its drawn position.
type Target struct {
	EventID    string        `json:"event_id"`
	CalendarID string        `json:"calendar_id"`
	DayIndex   int           `json:"day_index"`
	TopPx      float64       `json:"top_px"`
	HeightPx   float64       `json:"height_px"`
	Duration   time.Duration `json:"duration"`
}

func (t Target) Key() model.EventKey {
	return model.NewEventKey(t.CalendarID, t.EventID)
}

// TargetFor locates a timed event inside r. All-day events, malformed
// events and events outside the range are not draggable.
func TargetFor(ev model.CalendarEvent, r timegrid.VisibleRange, g timegrid.Grid, loc *time.Location) (Target, bool) {
	if !ev.Time.Timed() || !ev.Time.End.After(ev.Time.Start) {
		return Target{}, false
	}
	start := ev.Time.Start.In(loc)
	day := model.DateOf(start)
	if !r.Contains(day) {
		return Target{}, false
	}
	idx := 0
	for i := 0; i < r.Days(); i++ {
		if r.Day(i) == day {
			idx = i
			break
		}
	}
	top, height := g.Box(start, ev.Time.End.In(loc))
	return Target{
		EventID:    ev.ID,
		CalendarID: ev.CalendarID,
		DayIndex:   idx,
		TopPx:      top,
		HeightPx:   height,
		Duration:   ev.Time.Duration(),
	}, true
}

// State is the live manipulation shown by the renderer.
type State struct {
	TargetEventID    string        `json:"target_event_id"`
	TargetCalendarID string        `json:"target_calendar_id"`
	Mode             Mode          `json:"mode"`
	OriginDayIndex   int           `json:"origin_day_index"`
	OriginTopPx      float64       `json:"origin_top_px"`
	OriginHeightPx   float64       `json:"origin_height_px"`
	CurrentDayIndex  int           `json:"current_day_index"`
	CurrentTopPx     float64       `json:"current_top_px"`
	CurrentHeightPx  float64       `json:"current_height_px"`
	Duration         time.Duration `json:"duration_ns"`
}

func (s State) Key() model.EventKey {
	return model.NewEventKey(s.TargetCalendarID, s.TargetEventID)
}

// Locks reports keys that must not start a new manipulation.
type Locks interface {
	Has(key model.EventKey) bool
}

type OutcomeKind int

const (
	// OutcomeNone means the pointer-up ended nothing.
	OutcomeNone OutcomeKind = iota
	// OutcomeClick is a press that never crossed the threshold.
	OutcomeClick
	// OutcomeCommit carries the final State of a completed drag.
	OutcomeCommit
)

// Outcome is what a pointer-up produced.
type Outcome struct {
	Kind  OutcomeKind
	Key   model.EventKey
	State State
}

// Machine is the single-flight drag state machine. It is not safe for
// concurrent use; the board serializes access.
type Machine struct {
	geo    Geometry
	phase  Phase
	region Region
	down   Pointer
	target Target
	state  State
}

func NewMachine(geo Geometry) *Machine {
	return &Machine{geo: geo}
}

// SetGeometry replaces the grid geometry. It takes effect on the next
// pointer-down.
func (m *Machine) SetGeometry(geo Geometry) {
	m.geo = geo
}

func (m *Machine) Geometry() Geometry {
	return m.geo
}

func (m *Machine) Phase() Phase {
	return m.phase
}

// State returns the live preview while dragging.
func (m *Machine) State() (State, bool) {
	if m.phase != Dragging {
		return State{}, false
	}
	return m.state, true
}

// PointerDown arms the machine for t. It returns false when another
// manipulation is in progress, the event is locked, or t has no duration.
func (m *Machine) PointerDown(t Target, region Region, p Pointer, locks Locks) bool {
	if m.phase != Idle {
		return false
	}
	if t.Duration <= 0 {
		return false
	}
	if locks != nil && locks.Has(t.Key()) {
		return false
	}
	m.phase = PendingDetect
	m.region = region
	m.down = p
	m.target = t
	return true
}

// PointerMove advances the machine and returns the preview when dragging.
// It never blocks.
func (m *Machine) PointerMove(p Pointer) (State, bool) {
	switch m.phase {
	case PendingDetect:
		mode, threshold := ModeMove, float64(MoveThresholdPx)
		switch m.region {
		case RegionTop:
			mode, threshold = ModeResizeTop, ResizeThresholdPx
		case RegionBottom:
			mode, threshold = ModeResizeBottom, ResizeThresholdPx
		}
		if math.Hypot(p.X-m.down.X, p.Y-m.down.Y) <= threshold {
			return State{}, false
		}
		m.phase = Dragging
		m.state = State{
			TargetEventID:    m.target.EventID,
			TargetCalendarID: m.target.CalendarID,
			Mode:             mode,
			OriginDayIndex:   m.target.DayIndex,
			OriginTopPx:      m.target.TopPx,
			OriginHeightPx:   m.target.HeightPx,
			CurrentDayIndex:  m.target.DayIndex,
			CurrentTopPx:     m.target.TopPx,
			CurrentHeightPx:  m.target.HeightPx,
			Duration:         m.target.Duration,
		}
		m.update(p)
		return m.state, true
	case Dragging:
		m.update(p)
		return m.state, true
	}
	return State{}, false
}

// PointerUp ends the interaction. The machine is back in Idle whatever the
// outcome, so a late move cannot reopen the drag.
func (m *Machine) PointerUp(p Pointer) Outcome {
	defer m.reset()

	switch m.phase {
	case PendingDetect:
		return Outcome{Kind: OutcomeClick, Key: m.target.Key()}
	case Dragging:
		m.update(p)
		return Outcome{Kind: OutcomeCommit, Key: m.state.Key(), State: m.state}
	}
	return Outcome{Kind: OutcomeNone}
}

// Cancel drops any manipulation without an outcome.
func (m *Machine) Cancel() {
	m.reset()
}

func (m *Machine) reset() {
	m.phase = Idle
	m.region = ""
	m.down = Pointer{}
	m.target = Target{}
	m.state = State{}
}

func (m *Machine) update(p Pointer) {
	g := m.geo.Grid
	h := m.geo.containerHeight()
	minH := g.SnapHeightPx()
	s := &m.state

	switch s.Mode {
	case ModeMove:
		top := clamp(s.OriginTopPx+(p.Y-m.down.Y), 0, h-m.geo.minBoxPx())
		s.CurrentTopPx = g.SnapPx(top)
		s.CurrentHeightPx = s.OriginHeightPx
		s.CurrentDayIndex = timegrid.PxToDayIndex(p.X, m.geo.GridLeftX, m.geo.ColumnWidthPx, m.geo.DayCount)

	case ModeResizeTop:
		bottom := s.OriginTopPx + s.OriginHeightPx
		limit := bottom - minH
		top := g.SnapPx(clamp(p.Y, 0, limit))
		if top > limit {
			top = g.FloorSnapPx(limit)
		}
		if top < 0 {
			top = 0
		}
		s.CurrentTopPx = top
		s.CurrentHeightPx = bottom - top
		s.CurrentDayIndex = s.OriginDayIndex

	case ModeResizeBottom:
		low := s.OriginTopPx + minH
		bottom := g.SnapPx(clamp(p.Y, low, h))
		if bottom < low {
			bottom = g.CeilSnapPx(low)
		}
		if bottom > h {
			bottom = h
		}
		s.CurrentTopPx = s.OriginTopPx
		s.CurrentHeightPx = bottom - s.OriginTopPx
		s.CurrentDayIndex = s.OriginDayIndex
	}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(hi, v))
}
