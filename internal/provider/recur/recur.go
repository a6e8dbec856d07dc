// Package recur expands recurring VEVENTs into the instances that fall
// inside a window. The ICS and CalDAV providers parse with different
// iCalendar libraries and share this step.
package recur

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// MaxInstances caps the expansion of one series.
const MaxInstances = 5000

// Series is one parsed VEVENT, either a master or an override.
type Series struct {
	UID      string
	Start    time.Time
	End      time.Time
	AllDay   bool
	RRule    string
	ExDates  []time.Time
	// RecurrenceID is set on an override of a single instance.
	RecurrenceID *time.Time
	Cancelled    bool
}

// Instance is one concrete occurrence. Index points back into the input
// slice so callers can recover titles and other fields.
type Instance struct {
	Index     int
	Start     time.Time
	End       time.Time
	Recurring bool
}

// Expand returns every instance overlapping [from, to), sorted by start.
// Overrides replace the instance whose start equals their RECURRENCE-ID.
// A master with an unparsable rule is kept as a single event.
func Expand(series []Series, from, to time.Time) ([]Instance, error) {
	overrides := make(map[string][]int)
	for i, s := range series {
		if s.RecurrenceID != nil {
			overrides[s.UID] = append(overrides[s.UID], i)
		}
	}

	var (
		out  []Instance
		errs []string
	)
	for i, s := range series {
		if s.RecurrenceID != nil || s.Cancelled {
			continue
		}
		if s.RRule == "" {
			if overlaps(s.Start, s.End, from, to) {
				out = append(out, Instance{Index: i, Start: s.Start, End: s.End})
			}
			continue
		}

		starts, err := occurrences(s, from, to)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.UID, err))
			if overlaps(s.Start, s.End, from, to) {
				out = append(out, Instance{Index: i, Start: s.Start, End: s.End})
			}
			continue
		}
		dur := s.End.Sub(s.Start)
		for _, st := range starts {
			inst := Instance{Index: i, Start: st, End: st.Add(dur), Recurring: true}
			if oi, ok := findOverride(series, overrides[s.UID], st); ok {
				if series[oi].Cancelled {
					continue
				}
				inst = Instance{Index: oi, Start: series[oi].Start, End: series[oi].End, Recurring: true}
			}
			if overlaps(inst.Start, inst.End, from, to) {
				out = append(out, inst)
			}
		}
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Start.Before(out[b].Start) })
	if len(errs) > 0 {
		return out, fmt.Errorf("expand recurrences: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

func occurrences(s Series, from, to time.Time) ([]time.Time, error) {
	r, err := rrule.StrToRRule(strings.TrimPrefix(s.RRule, "RRULE:"))
	if err != nil {
		return nil, err
	}
	r.DTStart(s.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range s.ExDates {
		set.ExDate(ex.In(s.Start.Location()))
	}

	// Widen the lower bound by the duration so an instance that started
	// before the window but runs into it is kept.
	dur := s.End.Sub(s.Start)
	loc := s.Start.Location()
	starts := set.Between(from.Add(-dur).In(loc), to.In(loc), true)
	if len(starts) > MaxInstances {
		starts = starts[:MaxInstances]
	}
	return starts, nil
}

func findOverride(series []Series, idx []int, start time.Time) (int, bool) {
	for _, i := range idx {
		if series[i].RecurrenceID.Equal(start) {
			return i, true
		}
	}
	return 0, false
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.IsZero() || !aEnd.After(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// InstanceID derives a stable id for a recurring instance. Colons are
// avoided because event keys use them as a separator.
func InstanceID(uid string, start time.Time) string {
	return EscapeID(uid) + "_" + start.UTC().Format("20060102T150405Z")
}

// EscapeID makes an iCalendar UID safe to embed in an event key.
func EscapeID(uid string) string {
	return strings.ReplaceAll(uid, ":", "%3A")
}

// ParseStamp reads the DATE and DATE-TIME forms used by DTSTART, EXDATE
// and RECURRENCE-ID. A known TZID overrides loc; floating times use loc.
func ParseStamp(v, tzid string, loc *time.Location) (time.Time, error) {
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
