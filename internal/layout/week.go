package layout

import (
	"time"

	"github.com/dukerupert/famboard/internal/drag"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/timegrid"
)

// Box is a positioned timed event inside a day column. Left and width are
// percentages of the column so overlapping events share it side by side.
type Box struct {
	Key       model.EventKey `json:"key"`
	EventID   string         `json:"event_id"`
	Title     string         `json:"title"`
	TimeText  string         `json:"time_text"`
	TopPx     float64        `json:"top_px"`
	HeightPx  float64        `json:"height_px"`
	LeftPct   float64        `json:"left_pct"`
	WidthPct  float64        `json:"width_pct"`
	Color     string         `json:"color"`
	Draggable bool           `json:"draggable"`
	Disabled  bool           `json:"disabled"`
	Dragging  bool           `json:"dragging"`
	Avatars   []Avatar       `json:"avatars,omitempty"`
}

type GridLine struct {
	TopPx   float64 `json:"top_px"`
	Label   string  `json:"label,omitempty"`
	Opacity float64 `json:"opacity"`
}

type DayColumn struct {
	Index   int        `json:"index"`
	Date    model.Date `json:"date"`
	Heading string     `json:"heading"`
	IsToday bool       `json:"is_today"`
	AllDay  []Chip     `json:"all_day"`
	Boxes   []Box      `json:"boxes"`
}

// WeekView is the week or 3-day time grid.
type WeekView struct {
	Range             timegrid.VisibleRange `json:"range"`
	Grid              timegrid.Grid         `json:"grid"`
	ContainerHeightPx float64               `json:"container_height_px"`
	HourLines         []GridLine            `json:"hour_lines"`
	QuarterLines      []GridLine            `json:"quarter_lines"`
	Columns           []DayColumn           `json:"columns"`
}

// Week lays out one column per day of in.Range. The dragged event is drawn
// at the preview position, in the preview column; all others at the
// position their committed time gives.
func Week(in Input) WeekView {
	loc := in.loc()
	g := in.Grid
	v := WeekView{
		Range:             in.Range,
		Grid:              g,
		ContainerHeightPx: g.ContainerHeightPx(),
		HourLines:         hourLines(g),
		QuarterLines:      quarterLines(g),
		Columns:           make([]DayColumn, len(in.Days)),
	}

	var dragged *Box
	for i, day := range in.Days {
		col := DayColumn{
			Index:   i,
			Date:    day.Date,
			Heading: day.Date.In(loc).Format("Mon Jan 2"),
			IsToday: day.Date == in.Today,
		}
		for _, ev := range day.AllDay {
			col.AllDay = append(col.AllDay, in.chip(ev))
		}

		for _, ev := range sortedByStart(day.Timed) {
			if !ev.Time.Timed() {
				continue
			}
			b := in.box(ev, g, loc)
			if in.Drag != nil && in.Drag.Key() == b.Key {
				b.Dragging = true
				b.TopPx = in.Drag.CurrentTopPx
				b.HeightPx = in.Drag.CurrentHeightPx
				b.LeftPct, b.WidthPct = 0, 100
				s, e := PreviewTimes(*in.Drag, g)
				b.TimeText = s.String() + " - " + e.String()
				dragged = &b
				continue
			}
			col.Boxes = append(col.Boxes, b)
		}
		assignLanes(col.Boxes)
		v.Columns[i] = col
	}

	if dragged != nil && len(v.Columns) > 0 {
		i := in.Drag.CurrentDayIndex
		if i < 0 {
			i = 0
		}
		if i >= len(v.Columns) {
			i = len(v.Columns) - 1
		}
		v.Columns[i].Boxes = append(v.Columns[i].Boxes, *dragged)
	}
	return v
}

func (in Input) box(ev model.CalendarEvent, g timegrid.Grid, loc *time.Location) Box {
	start, end := ev.Time.Start.In(loc), ev.Time.End.In(loc)
	top, height := g.Box(start, end)
	disabled := ev.Provisional || in.pending(ev.Key())
	return Box{
		Key:       ev.Key(),
		EventID:   ev.ID,
		Title:     ev.Title,
		TimeText:  start.Format("3:04") + " - " + end.Format("3:04 PM"),
		TopPx:     top,
		HeightPx:  height,
		WidthPct:  100,
		Color:     EventColor(ev),
		Draggable: !disabled && end.After(start),
		Disabled:  disabled,
		Avatars:   in.avatars(ev),
	}
}

// assignLanes splits overlapping boxes into side-by-side lanes. Boxes must
// be ordered by top. Each cluster of transitively overlapping boxes shares
// the column width evenly.
func assignLanes(boxes []Box) {
	var (
		cluster   []int
		laneEnds  []float64
		laneOf    = make([]int, len(boxes))
		clusterTo float64
	)
	flush := func() {
		w := 100 / float64(len(laneEnds))
		for _, i := range cluster {
			boxes[i].WidthPct = w
			boxes[i].LeftPct = float64(laneOf[i]) * w
		}
		cluster, laneEnds = cluster[:0], laneEnds[:0]
	}

	for i := range boxes {
		top, bottom := boxes[i].TopPx, boxes[i].TopPx+boxes[i].HeightPx
		if len(cluster) > 0 && top >= clusterTo {
			flush()
		}
		lane := -1
		for l, end := range laneEnds {
			if end <= top {
				lane = l
				break
			}
		}
		if lane < 0 {
			lane = len(laneEnds)
			laneEnds = append(laneEnds, 0)
		}
		laneEnds[lane] = bottom
		laneOf[i] = lane
		cluster = append(cluster, i)
		if len(cluster) == 1 || bottom > clusterTo {
			clusterTo = bottom
		}
	}
	if len(cluster) > 0 {
		flush()
	}
}

func hourLines(g timegrid.Grid) []GridLine {
	lines := make([]GridLine, 0, g.Hours())
	for h := 0; h < g.Hours(); h++ {
		label := time.Date(2000, 1, 1, g.DayStartHour+h, 0, 0, 0, time.UTC).Format("3 PM")
		lines = append(lines, GridLine{TopPx: float64(h) * g.HourHeightPx, Label: label, Opacity: 1})
	}
	return lines
}

// quarterLines returns the quarter-hour lines between hour lines.
func quarterLines(g timegrid.Grid) []GridLine {
	var lines []GridLine
	for i := 0; i < g.Hours()*4; i++ {
		if i%4 == 0 {
			continue
		}
		lines = append(lines, GridLine{TopPx: float64(i) * g.HourHeightPx / 4, Opacity: 0.25})
	}
	return lines
}

// PreviewTimes reports the start and end a drag preview would commit to,
// for the label shown on the dragged box.
func PreviewTimes(s drag.State, g timegrid.Grid) (timegrid.Clock, timegrid.Clock) {
	start := g.OffsetPxToTime(s.CurrentTopPx)
	end := g.OffsetPxToEndTime(s.CurrentTopPx + s.CurrentHeightPx)
	return start, end
}
