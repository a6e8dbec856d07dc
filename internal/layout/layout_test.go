package layout

import (
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/famboard/internal/drag"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/placement"
	"github.com/dukerupert/famboard/internal/timegrid"
)

var monday = model.Date{Year: 2024, Month: time.January, Day: 15}

type lockSet map[model.EventKey]bool

func (l lockSet) Has(k model.EventKey) bool { return l[k] }

func timed(id string, day model.Date, h, m int, d time.Duration) model.CalendarEvent {
	start := time.Date(day.Year, day.Month, day.Day, h, m, 0, 0, time.UTC)
	return model.CalendarEvent{ID: id, CalendarID: "family", Title: id, Time: model.TimedRange(start, start.Add(d))}
}

func weekInput(t *testing.T, events []model.CalendarEvent) Input {
	t.Helper()
	r := timegrid.RangeFor(monday, timegrid.ModeWeek, time.Sunday)
	return Input{
		Range:    r,
		Days:     placement.ByDay(events, r, time.UTC),
		Grid:     timegrid.DefaultGrid(),
		Today:    monday,
		Location: time.UTC,
	}
}

func findBox(t *testing.T, v WeekView, key model.EventKey) (int, Box) {
	t.Helper()
	for _, c := range v.Columns {
		for _, b := range c.Boxes {
			if b.Key == key {
				return c.Index, b
			}
		}
	}
	t.Fatalf("box %s not found", key)
	return 0, Box{}
}

func TestPastelColor(t *testing.T) {
	// Values computed with the browser's string hash.
	tests := []struct{ in, want string }{
		{"", "hsl(0 60% 70%)"},
		{"a", "hsl(97 77% 70%)"},
		{"cal", "hsl(334 74% 70%)"},
	}
	for _, tt := range tests {
		if got := PastelColor(tt.in); got != tt.want {
			t.Errorf("PastelColor(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if PastelColor("family@example.com") != PastelColor("family@example.com") {
		t.Error("color not deterministic")
	}
}

func TestEventColorFallback(t *testing.T) {
	ev := model.CalendarEvent{ID: "e1", CalendarID: "work", Title: "x"}
	if EventColor(ev) != PastelColor("work") {
		t.Error("calendar id should key the color")
	}
	ev.CalendarID = ""
	if EventColor(ev) != PastelColor("e1") {
		t.Error("event id should be the first fallback")
	}
	ev.ID = ""
	if EventColor(ev) != PastelColor("x") {
		t.Error("title should be the second fallback")
	}
}

func TestWeekGeometry(t *testing.T) {
	v := Week(weekInput(t, []model.CalendarEvent{timed("a", monday, 9, 0, 90*time.Minute)}))

	if len(v.Columns) != 7 {
		t.Fatalf("columns = %d", len(v.Columns))
	}
	if v.ContainerHeightPx != 900 {
		t.Errorf("container = %v, want 900", v.ContainerHeightPx)
	}
	if len(v.HourLines) != 15 || v.HourLines[0].Label != "6 AM" {
		t.Errorf("hour lines = %d first %q", len(v.HourLines), v.HourLines[0].Label)
	}
	if len(v.QuarterLines) != 45 || v.QuarterLines[0].TopPx != 15 || v.QuarterLines[0].Opacity != 0.25 {
		t.Errorf("quarter lines = %d first %+v", len(v.QuarterLines), v.QuarterLines[0])
	}
	if !v.Columns[1].IsToday {
		t.Error("monday column should be today")
	}

	idx, b := findBox(t, v, "family:a")
	if idx != 1 || b.TopPx != 180 || b.HeightPx != 90 || b.WidthPct != 100 {
		t.Errorf("box = col %d %+v", idx, b)
	}
	if !b.Draggable || b.Disabled {
		t.Error("committed box should be draggable")
	}
}

func TestWeekPendingDisabled(t *testing.T) {
	in := weekInput(t, []model.CalendarEvent{timed("a", monday, 9, 0, time.Hour)})
	in.Pending = lockSet{"family:a": true}

	_, b := findBox(t, Week(in), "family:a")
	if !b.Disabled || b.Draggable {
		t.Errorf("pending box = %+v, want disabled", b)
	}
}

func TestWeekDragPreview(t *testing.T) {
	in := weekInput(t, []model.CalendarEvent{
		timed("a", monday, 9, 0, time.Hour),
		timed("b", monday, 9, 0, time.Hour),
	})
	in.Drag = &drag.State{
		TargetEventID:    "a",
		TargetCalendarID: "family",
		Mode:             drag.ModeMove,
		OriginDayIndex:   1,
		OriginTopPx:      180,
		OriginHeightPx:   60,
		CurrentDayIndex:  3,
		CurrentTopPx:     300,
		CurrentHeightPx:  60,
		Duration:         time.Hour,
	}
	v := Week(in)

	idx, b := findBox(t, v, "family:a")
	if idx != 3 || b.TopPx != 300 || !b.Dragging {
		t.Errorf("dragged box = col %d %+v", idx, b)
	}
	if b.TimeText != "11:00 - 12:00" {
		t.Errorf("preview label = %q", b.TimeText)
	}
	_, other := findBox(t, v, "family:b")
	if other.TopPx != 180 || other.WidthPct != 100 {
		t.Errorf("other box = %+v, want committed position at full width", other)
	}
}

func TestAssignLanes(t *testing.T) {
	boxes := []Box{
		{Key: "a", TopPx: 0, HeightPx: 60},
		{Key: "b", TopPx: 30, HeightPx: 60},
		{Key: "c", TopPx: 60, HeightPx: 30},
		{Key: "d", TopPx: 200, HeightPx: 30},
	}
	assignLanes(boxes)

	if boxes[0].WidthPct != 50 || boxes[1].WidthPct != 50 || boxes[2].WidthPct != 50 {
		t.Errorf("cluster widths = %v %v %v", boxes[0].WidthPct, boxes[1].WidthPct, boxes[2].WidthPct)
	}
	if boxes[0].LeftPct != 0 || boxes[1].LeftPct != 50 || boxes[2].LeftPct != 0 {
		t.Errorf("cluster lanes = %v %v %v", boxes[0].LeftPct, boxes[1].LeftPct, boxes[2].LeftPct)
	}
	if boxes[3].WidthPct != 100 || boxes[3].LeftPct != 0 {
		t.Errorf("isolated box = %+v", boxes[3])
	}
}

func TestMonthCaps(t *testing.T) {
	cursor := model.Date{Year: 2024, Month: time.February, Day: 10}
	r := timegrid.RangeFor(cursor, timegrid.ModeMonth, time.Sunday)
	day := model.Date{Year: 2024, Month: time.February, Day: 14}

	var events []model.CalendarEvent
	for i := 0; i < 8; i++ {
		events = append(events, model.CalendarEvent{
			ID: "ad" + string(rune('a'+i)), CalendarID: "c", Time: model.AllDayRange(day, day),
		})
	}
	for i := 0; i < 6; i++ {
		events = append(events, timed("t"+string(rune('a'+i)), day, 8+i, 0, time.Hour))
	}

	v := Month(Input{
		Range:    r,
		Days:     placement.ByDay(events, r, time.UTC),
		Grid:     timegrid.DefaultGrid(),
		Today:    day,
		Location: time.UTC,
	}, cursor)

	if len(v.Cells) != 42 {
		t.Fatalf("cells = %d", len(v.Cells))
	}
	if v.Title != "February 2024" {
		t.Errorf("title = %q", v.Title)
	}
	if v.Weekdays[0] != "Sun" {
		t.Errorf("weekdays = %v", v.Weekdays)
	}
	if v.Cells[0].InMonth || v.Cells[0].Date.Day != 28 {
		t.Errorf("first cell = %+v, want Jan 28 outside the month", v.Cells[0])
	}

	var c MonthCell
	for _, cell := range v.Cells {
		if cell.Date == day {
			c = cell
		}
	}
	if !c.IsToday || !c.InMonth {
		t.Error("Feb 14 should be in month and today")
	}
	if len(c.AllDay) != MonthAllDayCap || len(c.Timed) != MonthTimedCap || c.Overflow != 4 {
		t.Errorf("cell = %d all-day, %d timed, overflow %d", len(c.AllDay), len(c.Timed), c.Overflow)
	}
	if !strings.HasSuffix(c.Timed[0].TimeText, "AM") {
		t.Errorf("time text = %q", c.Timed[0].TimeText)
	}
}

func TestQuickCreate(t *testing.T) {
	tr := QuickCreate(monday, time.UTC)
	want := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	if !tr.Start.Equal(want) || tr.Duration() != time.Hour {
		t.Errorf("QuickCreate = %v - %v", tr.Start, tr.End)
	}
}

func TestWeekBoxOutsideVisibleHours(t *testing.T) {
	v := Week(weekInput(t, []model.CalendarEvent{
		timed("early", monday, 5, 0, 2*time.Hour),
		timed("late", monday, 20, 0, 3*time.Hour),
	}))

	_, early := findBox(t, v, "family:early")
	if early.TopPx != 0 || early.HeightPx != 60 {
		t.Errorf("early box = top %v height %v, want 0 and 60", early.TopPx, early.HeightPx)
	}
	_, late := findBox(t, v, "family:late")
	if late.TopPx+late.HeightPx != v.ContainerHeightPx {
		t.Errorf("late box bottom = %v, want %v", late.TopPx+late.HeightPx, v.ContainerHeightPx)
	}
}
