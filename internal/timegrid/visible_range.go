package timegrid

import (
	"fmt"
	"time"

	"github.com/dukerupert/famboard/internal/model"
)

type ViewMode string

const (
	ModeMonth    ViewMode = "month"
	ModeWeek     ViewMode = "week"
	ModeThreeDay ViewMode = "3day"
)

// monthCells is the fixed 6x7 month grid.
const monthCells = 42

func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(s) {
	case ModeMonth, ModeWeek, ModeThreeDay:
		return ViewMode(s), nil
	}
	return "", fmt.Errorf("unknown view mode %q", s)
}

// DayCount is the number of columns the mode shows in a time grid. Month
// mode reports seven, the width of one grid row.
func (m ViewMode) DayCount() int {
	if m == ModeThreeDay {
		return 3
	}
	return 7
}

// VisibleRange is the half-open span of dates [Start, End) a view covers.
type VisibleRange struct {
	Start model.Date `json:"start"`
	End   model.Date `json:"end"`
}

// RangeFor computes the visible range for a cursor date and mode. Month
// mode always spans six full weeks starting on the week boundary at or
// before the first of the month.
func RangeFor(cursor model.Date, mode ViewMode, weekStart time.Weekday) VisibleRange {
	switch mode {
	case ModeMonth:
		first := model.Date{Year: cursor.Year, Month: cursor.Month, Day: 1}
		start := startOfWeek(first, weekStart)
		return VisibleRange{Start: start, End: start.AddDays(monthCells)}
	case ModeThreeDay:
		return VisibleRange{Start: cursor, End: cursor.AddDays(3)}
	default:
		start := startOfWeek(cursor, weekStart)
		return VisibleRange{Start: start, End: start.AddDays(7)}
	}
}

// Step moves a cursor by n pages of the given mode.
func Step(cursor model.Date, mode ViewMode, n int) model.Date {
	switch mode {
	case ModeMonth:
		t := time.Date(cursor.Year, cursor.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
		return model.DateOf(t)
	case ModeThreeDay:
		return cursor.AddDays(3 * n)
	default:
		return cursor.AddDays(7 * n)
	}
}

func startOfWeek(d model.Date, weekStart time.Weekday) model.Date {
	wd := d.In(time.UTC).Weekday()
	offset := (int(wd) - int(weekStart) + 7) % 7
	return d.AddDays(-offset)
}

// Days returns the number of dates in the range.
func (r VisibleRange) Days() int {
	return int(r.End.In(time.UTC).Sub(r.Start.In(time.UTC)).Hours() / 24)
}

// Day returns the i-th date of the range.
func (r VisibleRange) Day(i int) model.Date {
	return r.Start.AddDays(i)
}

// Contains reports whether d falls inside the range.
func (r VisibleRange) Contains(d model.Date) bool {
	return !d.Before(r.Start) && d.Before(r.End)
}

// Bounds returns the range as instants in loc, suitable for timeMin/timeMax.
func (r VisibleRange) Bounds(loc *time.Location) (time.Time, time.Time) {
	return r.Start.In(loc), r.End.In(loc)
}
