// Package layout turns placed events, the drag preview and the pending set
// into positioned boxes for the week, 3-day and month views.
package layout

import (
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/famboard/internal/drag"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/placement"
	"github.com/dukerupert/famboard/internal/timegrid"
)

const (
	// MonthAllDayCap and MonthTimedCap bound the entries listed in a month cell.
	MonthAllDayCap = 6
	MonthTimedCap  = 4
	// QuickCreateHour is where a quick-created event starts.
	QuickCreateHour = 9
)

// Input is everything a view is computed from.
type Input struct {
	Range    timegrid.VisibleRange
	Days     []placement.Day
	Grid     timegrid.Grid
	Drag     *drag.State
	Pending  drag.Locks
	Members  map[int64]model.Member
	Today    model.Date
	Location *time.Location
}

func (in Input) pending(k model.EventKey) bool {
	return in.Pending != nil && in.Pending.Has(k)
}

func (in Input) loc() *time.Location {
	if in.Location == nil {
		return time.Local
	}
	return in.Location
}

// Avatar is an assigned member as shown on an event.
type Avatar struct {
	MemberID int64  `json:"member_id"`
	Name     string `json:"name"`
	Emoji    string `json:"emoji"`
	Color    string `json:"color"`
	Initial  string `json:"initial"`
}

func (in Input) avatars(ev model.CalendarEvent) []Avatar {
	var out []Avatar
	for _, a := range ev.Assigned {
		m, ok := in.Members[a.MemberID]
		if !ok {
			continue
		}
		out = append(out, Avatar{
			MemberID: m.ID,
			Name:     m.Name,
			Emoji:    m.AvatarEmoji,
			Color:    m.Color,
			Initial:  initial(m.Name),
		})
	}
	if len(out) == 0 && ev.CreatorEmail != "" {
		out = append(out, Avatar{Initial: initial(ev.CreatorEmail)})
	}
	return out
}

func initial(s string) string {
	for _, r := range s {
		return strings.ToUpper(string(r))
	}
	return ""
}

// Chip is a list entry: all-day events in every view and timed events in
// the month view.
type Chip struct {
	Key      model.EventKey `json:"key"`
	Title    string         `json:"title"`
	TimeText string         `json:"time_text,omitempty"`
	Color    string         `json:"color"`
	Disabled bool           `json:"disabled"`
	Avatars  []Avatar       `json:"avatars,omitempty"`
}

func (in Input) chip(ev model.CalendarEvent) Chip {
	c := Chip{
		Key:      ev.Key(),
		Title:    ev.Title,
		Color:    EventColor(ev),
		Disabled: ev.Provisional || in.pending(ev.Key()),
		Avatars:  in.avatars(ev),
	}
	if !ev.Time.AllDay && !ev.Time.Start.IsZero() {
		c.TimeText = ev.Time.Start.In(in.loc()).Format("3:04 PM")
	}
	return c
}

// QuickCreate proposes a one hour event at 09:00 local on day.
func QuickCreate(day model.Date, loc *time.Location) model.TimeRange {
	start := time.Date(day.Year, day.Month, day.Day, QuickCreateHour, 0, 0, 0, loc)
	return model.TimedRange(start, start.Add(time.Hour))
}

// sortedByStart returns timed events ordered by start, ties in input order.
func sortedByStart(evs []model.CalendarEvent) []model.CalendarEvent {
	out := make([]model.CalendarEvent, len(evs))
	copy(out, evs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Start.Before(out[j].Time.Start)
	})
	return out
}
