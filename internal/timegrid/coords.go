// Package timegrid maps between wall-clock time and pixel offsets inside a
// day column, and between pointer positions and day columns.
package timegrid

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dukerupert/famboard/internal/model"
)

// SnapMinutes is the quantization applied to every computed start and end.
// Move and resize share it so a moved event's edges stay on the grid.
const SnapMinutes = 15

// Grid describes the vertical time axis of a day column.
type Grid struct {
	DayStartHour int     `json:"day_start_hour"`
	DayEndHour   int     `json:"day_end_hour"`
	HourHeightPx float64 `json:"hour_height_px"`
}

// DefaultGrid is 06:00 to 21:00 at 60px per hour.
func DefaultGrid() Grid {
	return Grid{DayStartHour: 6, DayEndHour: 21, HourHeightPx: 60}
}

func (g Grid) Validate() error {
	if g.DayStartHour < 0 || g.DayEndHour > 24 {
		return fmt.Errorf("day hours must be within 0-24, got %d-%d", g.DayStartHour, g.DayEndHour)
	}
	if g.DayEndHour <= g.DayStartHour {
		return errors.New("day end hour must be after day start hour")
	}
	if g.HourHeightPx <= 0 {
		return errors.New("hour height must be positive")
	}
	return nil
}

// Hours is the number of visible hours in a column.
func (g Grid) Hours() int {
	return g.DayEndHour - g.DayStartHour
}

// ContainerHeightPx is the pixel height of a day column's time area.
func (g Grid) ContainerHeightPx() float64 {
	return float64(g.Hours()) * g.HourHeightPx
}

// SnapHeightPx is the pixel height of one snap unit (15 minutes).
func (g Grid) SnapHeightPx() float64 {
	return g.HourHeightPx * SnapMinutes / 60
}

// MinBoxPx is the smallest height an event box is drawn at, so very short
// events stay clickable.
const MinBoxPx = 18

// Box returns the top offset and drawn height of a timed event in a column.
// Both edges are clipped to the time area, so an event running past either
// end of the day is drawn only for its visible part.
func (g Grid) Box(start, end time.Time) (top, height float64) {
	h := g.ContainerHeightPx()
	raw := offsetPx(start, g.DayStartHour, g.HourHeightPx)
	top = math.Min(math.Max(raw, 0), h)
	bottom := math.Min(math.Max(raw+g.DurationToPx(end.Sub(start)), 0), h)
	height = bottom - top
	if height < MinBoxPx {
		height = MinBoxPx
	}
	return top, height
}

// DurationToPx converts a duration to a pixel height.
func (g Grid) DurationToPx(d time.Duration) float64 {
	return d.Hours() * g.HourHeightPx
}

// TimeToOffsetPx returns the distance from the top of the column to t's
// time of day. Times before the day start clamp to 0.
func (g Grid) TimeToOffsetPx(t time.Time) float64 {
	return TimeToOffsetPx(t, g.DayStartHour, g.HourHeightPx)
}

// TimeToOffsetPx is the free-standing form of Grid.TimeToOffsetPx.
func TimeToOffsetPx(t time.Time, dayStartHour int, hourHeightPx float64) float64 {
	px := offsetPx(t, dayStartHour, hourHeightPx)
	if px < 0 {
		return 0
	}
	return px
}

func offsetPx(t time.Time, dayStartHour int, hourHeightPx float64) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600 +
		float64(t.Nanosecond())/3.6e12
	return (h - float64(dayStartHour)) * hourHeightPx
}

// OffsetPxToTime converts a start offset to a snapped clock time. The
// result never starts later than one snap unit before the day end.
func (g Grid) OffsetPxToTime(px float64) Clock {
	mins := g.snappedMinutes(px)
	if last := g.DayEndHour*60 - SnapMinutes; mins > last {
		mins = last
	}
	return clockOf(mins)
}

// OffsetPxToEndTime converts an end offset to a snapped clock time. Unlike
// a start, an end may sit exactly on the day end.
func (g Grid) OffsetPxToEndTime(px float64) Clock {
	mins := g.snappedMinutes(px)
	if last := g.DayEndHour * 60; mins > last {
		mins = last
	}
	return clockOf(mins)
}

func (g Grid) snappedMinutes(px float64) int {
	if px < 0 {
		px = 0
	}
	hours := float64(g.DayStartHour) + px/g.HourHeightPx
	hour := int(math.Floor(hours))
	minute := int(math.Round((hours-float64(hour))*60/SnapMinutes)) * SnapMinutes
	if minute == 60 {
		hour++
		minute = 0
	}
	return hour*60 + minute
}

// SnapPx rounds a pixel offset to the nearest snap unit.
func (g Grid) SnapPx(px float64) float64 {
	units := math.Round(px / g.SnapHeightPx())
	return units * g.SnapHeightPx()
}

// FloorSnapPx rounds a pixel offset down to a snap unit.
func (g Grid) FloorSnapPx(px float64) float64 {
	return math.Floor(px/g.SnapHeightPx()) * g.SnapHeightPx()
}

// CeilSnapPx rounds a pixel offset up to a snap unit.
func (g Grid) CeilSnapPx(px float64) float64 {
	return math.Ceil(px/g.SnapHeightPx()) * g.SnapHeightPx()
}

// PxToDayIndex returns the day column under pointerX, clamped to the grid.
func PxToDayIndex(pointerX, gridLeftX, columnWidthPx float64, dayCount int) int {
	if dayCount <= 0 || columnWidthPx <= 0 {
		return 0
	}
	i := int(math.Floor((pointerX - gridLeftX) / columnWidthPx))
	if i < 0 {
		return 0
	}
	if i > dayCount-1 {
		return dayCount - 1
	}
	return i
}

// Clock is a time of day.
type Clock struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func clockOf(minutes int) Clock {
	return Clock{Hour: minutes / 60, Minute: minutes % 60}
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// On places the clock time on a calendar date in loc. Hour 24 rolls over
// to midnight of the next day.
func (c Clock) On(d model.Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}
