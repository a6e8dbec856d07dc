package model

import (
	"strings"
	"time"
)

// EventKey identifies an event across calendars as "calendarId:eventId".
type EventKey string

// NewEventKey builds the key for an event in a calendar.
func NewEventKey(calendarID, eventID string) EventKey {
	return EventKey(calendarID + ":" + eventID)
}

// Split returns the calendar and event ids. Calendar ids may themselves
// contain colons (CalDAV paths, feed URLs), so the event id is taken after
// the last separator.
func (k EventKey) Split() (calendarID, eventID string, ok bool) {
	i := strings.LastIndexByte(string(k), ':')
	if i <= 0 || i == len(k)-1 {
		return "", "", false
	}
	return string(k[:i]), string(k[i+1:]), true
}

// TimeRange is either an all-day span of dates (EndDate exclusive) or a
// timed span of instants (End exclusive).
type TimeRange struct {
	AllDay    bool      `json:"all_day"`
	StartDate Date      `json:"start_date,omitempty"`
	EndDate   Date      `json:"end_date,omitempty"`
	Start     time.Time `json:"start,omitempty"`
	End       time.Time `json:"end,omitempty"`
}

// AllDayRange returns an all-day range covering first through last inclusive.
func AllDayRange(first, last Date) TimeRange {
	return TimeRange{AllDay: true, StartDate: first, EndDate: last.AddDays(1)}
}

// TimedRange returns a timed range from start to end.
func TimedRange(start, end time.Time) TimeRange {
	return TimeRange{Start: start, End: end}
}

// Timed reports whether the range carries both a start and an end instant.
func (r TimeRange) Timed() bool {
	return !r.AllDay && !r.Start.IsZero() && !r.End.IsZero()
}

// Valid reports whether the range satisfies its kind's invariant.
func (r TimeRange) Valid() bool {
	if r.AllDay {
		return !r.StartDate.IsZero() && r.Start.IsZero() && r.End.IsZero() &&
			(r.EndDate.IsZero() || r.StartDate.Before(r.EndDate))
	}
	return r.Timed() && r.End.After(r.Start)
}

// Duration is End-Start for timed ranges and zero otherwise.
func (r TimeRange) Duration() time.Duration {
	if !r.Timed() {
		return 0
	}
	return r.End.Sub(r.Start)
}

type CalendarEvent struct {
	ID           string       `json:"id"`
	CalendarID   string       `json:"calendar_id"`
	AccountID    int64        `json:"account_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Location     string       `json:"location,omitempty"`
	Time         TimeRange    `json:"time"`
	CreatorEmail string       `json:"creator_email,omitempty"`
	Assigned     []Assignment `json:"assigned"`
	// Provisional marks a locally created event the server has not confirmed.
	Provisional bool `json:"provisional,omitempty"`
}

func (e CalendarEvent) Key() EventKey {
	return NewEventKey(e.CalendarID, e.ID)
}

// EventDraft is the payload for creating an event.
type EventDraft struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Time        TimeRange `json:"time"`
}

// Patch is a partial update. Nil fields are left untouched, which lets a
// resize send only the boundary it moved.
type Patch struct {
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Start == nil && p.End == nil && p.Title == nil && p.Description == nil && p.Location == nil
}

// Apply returns a copy of ev with the patch applied.
func (p Patch) Apply(ev CalendarEvent) CalendarEvent {
	if p.Start != nil {
		ev.Time.Start = *p.Start
	}
	if p.End != nil {
		ev.Time.End = *p.End
	}
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
	return ev
}
