package layout

import (
	"time"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/timegrid"
)

type MonthCell struct {
	Date     model.Date `json:"date"`
	Day      int        `json:"day"`
	InMonth  bool       `json:"in_month"`
	IsToday  bool       `json:"is_today"`
	AllDay   []Chip     `json:"all_day"`
	Timed    []Chip     `json:"timed"`
	Overflow int        `json:"overflow"`
}

type MonthView struct {
	Range    timegrid.VisibleRange `json:"range"`
	Title    string                `json:"title"`
	Weekdays []string              `json:"weekdays"`
	Cells    []MonthCell           `json:"cells"`
}

// Month lays out the six-week grid for the month containing cursor. Cells
// list at most MonthAllDayCap all-day and MonthTimedCap timed entries and
// count the rest in Overflow.
func Month(in Input, cursor model.Date) MonthView {
	loc := in.loc()
	v := MonthView{
		Range: in.Range,
		Title: time.Date(cursor.Year, cursor.Month, 1, 0, 0, 0, 0, loc).Format("January 2006"),
		Cells: make([]MonthCell, len(in.Days)),
	}
	for i := 0; i < 7 && i < len(in.Days); i++ {
		v.Weekdays = append(v.Weekdays, in.Days[i].Date.In(loc).Format("Mon"))
	}

	for i, day := range in.Days {
		c := MonthCell{
			Date:    day.Date,
			Day:     day.Date.Day,
			InMonth: day.Date.Month == cursor.Month && day.Date.Year == cursor.Year,
			IsToday: day.Date == in.Today,
		}
		for j, ev := range day.AllDay {
			if j >= MonthAllDayCap {
				c.Overflow += len(day.AllDay) - MonthAllDayCap
				break
			}
			c.AllDay = append(c.AllDay, in.chip(ev))
		}
		for j, ev := range day.Timed {
			if j >= MonthTimedCap {
				c.Overflow += len(day.Timed) - MonthTimedCap
				break
			}
			c.Timed = append(c.Timed, in.chip(ev))
		}
		v.Cells[i] = c
	}
	return v
}
