// Package assign attaches household members to calendar events.
package assign

import (
	"strings"
	"time"

	"github.com/dukerupert/famboard/internal/model"
)

// Sources recorded in Assignment.AssignedBy.
const (
	ByCreator = "auto-assign"
	ByDefault = "default-assign"
	ByManual  = "manual-reassign"
)

// Apply returns events with assignments filled in. Stored manual
// assignments win; otherwise an event whose creator email matches a
// member goes to that member, and anything left goes to the default
// member if there is one. The input slice is not modified.
func Apply(events []model.CalendarEvent, members []model.Member, manual map[model.EventKey][]model.Assignment, now time.Time) []model.CalendarEvent {
	byEmail := make(map[string]int64, len(members))
	var defaultID int64
	for _, m := range members {
		if m.Email != "" {
			byEmail[strings.ToLower(m.Email)] = m.ID
		}
		if m.IsDefault && defaultID == 0 {
			defaultID = m.ID
		}
	}

	out := make([]model.CalendarEvent, len(events))
	for i, ev := range events {
		if a, ok := manual[ev.Key()]; ok && len(a) > 0 {
			ev.Assigned = append([]model.Assignment(nil), a...)
			out[i] = ev
			continue
		}
		if len(ev.Assigned) > 0 {
			out[i] = ev
			continue
		}
		if id, ok := byEmail[strings.ToLower(ev.CreatorEmail)]; ok && ev.CreatorEmail != "" {
			ev = Assign(ev, id, ByCreator, now)
		} else if defaultID != 0 {
			ev = Assign(ev, defaultID, ByDefault, now)
		}
		out[i] = ev
	}
	return out
}

// Assign adds memberID to ev unless already present.
func Assign(ev model.CalendarEvent, memberID int64, by string, now time.Time) model.CalendarEvent {
	if IsAssigned(ev, memberID) {
		return ev
	}
	assigned := make([]model.Assignment, 0, len(ev.Assigned)+1)
	assigned = append(assigned, ev.Assigned...)
	ev.Assigned = append(assigned, model.Assignment{MemberID: memberID, AssignedAt: now, AssignedBy: by})
	return ev
}

func Unassign(ev model.CalendarEvent, memberID int64) model.CalendarEvent {
	kept := make([]model.Assignment, 0, len(ev.Assigned))
	for _, a := range ev.Assigned {
		if a.MemberID != memberID {
			kept = append(kept, a)
		}
	}
	ev.Assigned = kept
	return ev
}

func IsAssigned(ev model.CalendarEvent, memberID int64) bool {
	for _, a := range ev.Assigned {
		if a.MemberID == memberID {
			return true
		}
	}
	return false
}

// Filter keeps the events assigned to memberID. Zero keeps everything.
func Filter(events []model.CalendarEvent, memberID int64) []model.CalendarEvent {
	if memberID == 0 {
		return events
	}
	var out []model.CalendarEvent
	for _, ev := range events {
		if IsAssigned(ev, memberID) {
			out = append(out, ev)
		}
	}
	return out
}
