// Package placement buckets a flat event list into per-day all-day and
// timed lists for a visible range.
package placement

import (
	"time"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/timegrid"
)

// Day holds the events that belong to one date, in input order.
type Day struct {
	Date   model.Date            `json:"date"`
	AllDay []model.CalendarEvent `json:"all_day"`
	Timed  []model.CalendarEvent `json:"timed"`
}

// dateOf returns the date an event is placed on. Events with neither a start
// date nor a start instant report ok=false and are skipped.
func dateOf(ev model.CalendarEvent, loc *time.Location) (d model.Date, allDay, ok bool) {
	if ev.Time.AllDay {
		if ev.Time.StartDate.IsZero() {
			return model.Date{}, true, false
		}
		return ev.Time.StartDate, true, true
	}
	if ev.Time.Start.IsZero() {
		return model.Date{}, false, false
	}
	return model.DateOf(ev.Time.Start.In(loc)), false, true
}

// ForDay partitions events for a single date. All-day events match on their
// calendar date; timed events match on the local date of their start.
func ForDay(events []model.CalendarEvent, day model.Date, loc *time.Location) Day {
	out := Day{Date: day}
	for _, ev := range events {
		d, allDay, ok := dateOf(ev, loc)
		if !ok || d != day {
			continue
		}
		if allDay {
			out.AllDay = append(out.AllDay, ev)
		} else {
			out.Timed = append(out.Timed, ev)
		}
	}
	return out
}

// ByDay partitions events across every date of r in one pass. The result
// is indexed by day offset from r.Start.
func ByDay(events []model.CalendarEvent, r timegrid.VisibleRange, loc *time.Location) []Day {
	n := r.Days()
	days := make([]Day, n)
	index := make(map[model.Date]int, n)
	for i := range days {
		days[i].Date = r.Day(i)
		index[days[i].Date] = i
	}

	for _, ev := range events {
		d, allDay, ok := dateOf(ev, loc)
		if !ok {
			continue
		}
		i, inRange := index[d]
		if !inRange {
			continue
		}
		if allDay {
			days[i].AllDay = append(days[i].AllDay, ev)
		} else {
			days[i].Timed = append(days[i].Timed, ev)
		}
	}
	return days
}
