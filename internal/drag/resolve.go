package drag

import (
	"errors"
	"time"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/timegrid"
)

// MinDuration is the shortest span a resize can produce.
const MinDuration = timegrid.SnapMinutes * time.Minute

var errNotTimed = errors.New("event has no start and end instant")

// Resolve converts a finished drag into the patch sent to the calendar. A
// move carries both boundaries and keeps the duration exactly. A resize
// carries only the boundary it moved.
func Resolve(s State, ev model.CalendarEvent, g timegrid.Grid, r timegrid.VisibleRange, loc *time.Location) (model.Patch, error) {
	if !ev.Time.Timed() {
		return model.Patch{}, errNotTimed
	}
	origStart := ev.Time.Start.In(loc)
	origEnd := ev.Time.End.In(loc)

	switch s.Mode {
	case ModeMove:
		day := r.Day(s.CurrentDayIndex)
		start := g.OffsetPxToTime(s.CurrentTopPx).On(day, loc)
		end := start.Add(s.Duration)
		return model.Patch{Start: &start, End: &end}, nil

	case ModeResizeTop:
		start := g.OffsetPxToTime(s.CurrentTopPx).On(model.DateOf(origStart), loc)
		if origEnd.Sub(start) < MinDuration {
			start = origEnd.Add(-MinDuration)
		}
		return model.Patch{Start: &start}, nil

	case ModeResizeBottom:
		end := g.OffsetPxToEndTime(s.CurrentTopPx+s.CurrentHeightPx).On(model.DateOf(origStart), loc)
		if end.Sub(origStart) < MinDuration {
			end = origStart.Add(MinDuration)
		}
		return model.Patch{End: &end}, nil
	}
	return model.Patch{}, errors.New("unknown drag mode " + string(s.Mode))
}
