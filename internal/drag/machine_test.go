package drag

import (
	"math/rand"
	"testing"
	"time"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/timegrid"
)

var monday = model.Date{Year: 2024, Month: time.January, Day: 15}

type lockSet map[model.EventKey]bool

func (l lockSet) Has(k model.EventKey) bool { return l[k] }

func setup(t *testing.T) (*Machine, timegrid.VisibleRange) {
	t.Helper()
	geo := Geometry{
		Grid:          timegrid.DefaultGrid(),
		GridLeftX:     0,
		ColumnWidthPx: 100,
		DayCount:      7,
	}
	r := timegrid.RangeFor(monday, timegrid.ModeWeek, time.Sunday)
	return NewMachine(geo), r
}

func event(id string, day model.Date, startH, startM int, d time.Duration) model.CalendarEvent {
	start := time.Date(day.Year, day.Month, day.Day, startH, startM, 0, 0, time.UTC)
	return model.CalendarEvent{ID: id, CalendarID: "family", Time: model.TimedRange(start, start.Add(d))}
}

func mustTarget(t *testing.T, ev model.CalendarEvent, r timegrid.VisibleRange) Target {
	t.Helper()
	tg, ok := TargetFor(ev, r, timegrid.DefaultGrid(), time.UTC)
	if !ok {
		t.Fatalf("TargetFor(%s) not draggable", ev.ID)
	}
	return tg
}

func TestHitRegion(t *testing.T) {
	tests := []struct {
		offset, height float64
		want           Region
	}{
		{0, 60, RegionTop},
		{3, 60, RegionTop},
		{4, 60, RegionBody},
		{30, 60, RegionBody},
		{57, 60, RegionBottom},
		{60, 60, RegionBottom},
	}
	for _, tt := range tests {
		if got := HitRegion(tt.offset, tt.height); got != tt.want {
			t.Errorf("HitRegion(%v, %v) = %s, want %s", tt.offset, tt.height, got, tt.want)
		}
	}
}

func TestTargetFor(t *testing.T) {
	_, r := setup(t)

	tg := mustTarget(t, event("a", monday, 9, 0, time.Hour), r)
	if tg.DayIndex != 1 || tg.TopPx != 180 || tg.HeightPx != 60 || tg.Duration != time.Hour {
		t.Errorf("target = %+v", tg)
	}

	allDay := model.CalendarEvent{ID: "h", CalendarID: "family", Time: model.AllDayRange(monday, monday)}
	if _, ok := TargetFor(allDay, r, timegrid.DefaultGrid(), time.UTC); ok {
		t.Error("all-day event should not be draggable")
	}

	outside := event("b", monday.AddDays(14), 9, 0, time.Hour)
	if _, ok := TargetFor(outside, r, timegrid.DefaultGrid(), time.UTC); ok {
		t.Error("event outside the range should not be draggable")
	}
}

func TestMoveTwoHoursLater(t *testing.T) {
	m, r := setup(t)
	ev := event("a", monday, 9, 0, time.Hour)
	tg := mustTarget(t, ev, r)

	if !m.PointerDown(tg, RegionBody, Pointer{X: 150, Y: 200}, nil) {
		t.Fatal("PointerDown rejected")
	}
	if m.Phase() != PendingDetect {
		t.Fatalf("phase = %s, want pending-detect", m.Phase())
	}

	up := Pointer{X: 150, Y: 200 + 2*60}
	st, ok := m.PointerMove(up)
	if !ok || st.Mode != ModeMove {
		t.Fatalf("expected move drag, got %+v ok=%v", st, ok)
	}
	if st.CurrentTopPx != 300 || st.CurrentDayIndex != 1 {
		t.Errorf("preview = top %v day %d, want top 300 day 1", st.CurrentTopPx, st.CurrentDayIndex)
	}

	out := m.PointerUp(up)
	if out.Kind != OutcomeCommit {
		t.Fatalf("outcome = %v, want commit", out.Kind)
	}
	if m.Phase() != Idle {
		t.Error("machine not idle after pointer-up")
	}

	p, err := Resolve(out.State, ev, timegrid.DefaultGrid(), r, time.UTC)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	wantStart := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
	if p.Start == nil || !p.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", p.Start, wantStart)
	}
	if p.End == nil || !p.End.Equal(wantStart.Add(time.Hour)) {
		t.Errorf("end = %v, want 12:00", p.End)
	}
}

func TestMoveToAnotherDay(t *testing.T) {
	m, r := setup(t)
	ev := event("a", monday, 9, 7, 45*time.Minute)
	tg := mustTarget(t, ev, r)

	m.PointerDown(tg, RegionBody, Pointer{X: 150, Y: 190}, nil)
	m.PointerMove(Pointer{X: 460, Y: 250})
	out := m.PointerUp(Pointer{X: 460, Y: 250})

	p, err := Resolve(out.State, ev, timegrid.DefaultGrid(), r, time.UTC)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := model.DateOf(*p.Start); got != monday.AddDays(3) {
		t.Errorf("moved to %s, want %s", got, monday.AddDays(3))
	}
	if p.Start.Minute()%timegrid.SnapMinutes != 0 {
		t.Errorf("start %v not on the snap grid", p.Start)
	}
	if p.End.Sub(*p.Start) != 45*time.Minute {
		t.Errorf("duration = %v, want 45m", p.End.Sub(*p.Start))
	}
}

func TestMoveClampsToGrid(t *testing.T) {
	m, r := setup(t)
	ev := event("a", monday, 9, 0, time.Hour)
	tg := mustTarget(t, ev, r)

	m.PointerDown(tg, RegionBody, Pointer{X: 150, Y: 200}, nil)
	st, _ := m.PointerMove(Pointer{X: 150, Y: -500})
	if st.CurrentTopPx != 0 {
		t.Errorf("top = %v, want 0", st.CurrentTopPx)
	}
	st, _ = m.PointerMove(Pointer{X: 150, Y: 5000})
	if want := timegrid.DefaultGrid().ContainerHeightPx() - 30; st.CurrentTopPx != want {
		t.Errorf("top = %v, want %v", st.CurrentTopPx, want)
	}
}

func TestResizeBottomSmallNudgeKeepsEnd(t *testing.T) {
	m, r := setup(t)
	ev := event("a", monday, 14, 0, 30*time.Minute)
	tg := mustTarget(t, ev, r)
	bottom := tg.TopPx + tg.HeightPx

	region := HitRegion(tg.HeightPx, tg.HeightPx)
	if region != RegionBottom {
		t.Fatalf("region = %s", region)
	}
	m.PointerDown(tg, region, Pointer{X: 150, Y: bottom}, nil)

	nudge := Pointer{X: 150, Y: bottom - 0.1*60}
	st, ok := m.PointerMove(nudge)
	if !ok || st.Mode != ModeResizeBottom {
		t.Fatalf("expected resize-bottom, got %+v", st)
	}
	out := m.PointerUp(nudge)

	p, err := Resolve(out.State, ev, timegrid.DefaultGrid(), r, time.UTC)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Start != nil {
		t.Error("resize-bottom must not send a start")
	}
	want := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	if p.End == nil || !p.End.Equal(want) {
		t.Errorf("end = %v, want %v", p.End, want)
	}
}

func TestResizeTopKeepsEnd(t *testing.T) {
	m, r := setup(t)
	ev := event("a", monday, 9, 0, time.Hour)
	tg := mustTarget(t, ev, r)

	m.PointerDown(tg, RegionTop, Pointer{X: 150, Y: tg.TopPx + 1}, nil)
	m.PointerMove(Pointer{X: 150, Y: 500})
	out := m.PointerUp(Pointer{X: 150, Y: 500})

	if out.State.CurrentTopPx != 225 {
		t.Errorf("top = %v, want 225", out.State.CurrentTopPx)
	}
	p, err := Resolve(out.State, ev, timegrid.DefaultGrid(), r, time.UTC)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.End != nil {
		t.Error("resize-top must not send an end")
	}
	want := time.Date(2024, 1, 15, 9, 45, 0, 0, time.UTC)
	if p.Start == nil || !p.Start.Equal(want) {
		t.Errorf("start = %v, want %v", p.Start, want)
	}
}

func TestResizeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g := timegrid.DefaultGrid()

	for i := 0; i < 500; i++ {
		m, r := setup(t)
		startMin := rng.Intn(14 * 60)
		dur := time.Duration(5+rng.Intn(240)) * time.Minute
		ev := event("e", monday, 6+startMin/60, startMin%60, dur)
		tg, ok := TargetFor(ev, r, g, time.UTC)
		if !ok {
			t.Fatalf("iteration %d: not draggable", i)
		}

		region := []Region{RegionTop, RegionBottom}[rng.Intn(2)]
		down := Pointer{X: 150, Y: tg.TopPx}
		if region == RegionBottom {
			down.Y = tg.TopPx + tg.HeightPx
		}
		m.PointerDown(tg, region, down, nil)
		to := Pointer{X: rng.Float64() * 700, Y: rng.Float64()*1100 - 100}
		if _, ok := m.PointerMove(to); !ok {
			continue
		}
		out := m.PointerUp(to)
		p, err := Resolve(out.State, ev, g, r, time.UTC)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}

		got := p.Apply(ev)
		if got.Time.End.Sub(got.Time.Start) < MinDuration {
			t.Errorf("iteration %d: %s produced %v", i, region, got.Time.End.Sub(got.Time.Start))
		}
		switch region {
		case RegionTop:
			if p.End != nil || !got.Time.End.Equal(ev.Time.End) {
				t.Errorf("iteration %d: resize-top changed end", i)
			}
		case RegionBottom:
			if p.Start != nil || !got.Time.Start.Equal(ev.Time.Start) {
				t.Errorf("iteration %d: resize-bottom changed start", i)
			}
		}
	}
}

func TestMovePreservesDuration(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	g := timegrid.DefaultGrid()

	for i := 0; i < 500; i++ {
		m, r := setup(t)
		startMin := rng.Intn(14 * 60)
		dur := time.Duration(1+rng.Intn(600)) * time.Minute
		ev := event("e", monday, 6+startMin/60, startMin%60, dur)
		tg, _ := TargetFor(ev, r, g, time.UTC)

		m.PointerDown(tg, RegionBody, Pointer{X: 150, Y: tg.TopPx + 5}, nil)
		to := Pointer{X: rng.Float64() * 900, Y: rng.Float64()*1200 - 150}
		if _, ok := m.PointerMove(to); !ok {
			continue
		}
		out := m.PointerUp(to)
		p, err := Resolve(out.State, ev, g, r, time.UTC)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if p.End.Sub(*p.Start) != dur {
			t.Errorf("iteration %d: duration %v, want %v", i, p.End.Sub(*p.Start), dur)
		}
	}
}

func TestClickBelowThreshold(t *testing.T) {
	m, r := setup(t)
	tg := mustTarget(t, event("a", monday, 9, 0, time.Hour), r)

	m.PointerDown(tg, RegionBody, Pointer{X: 150, Y: 200}, nil)
	if _, ok := m.PointerMove(Pointer{X: 155, Y: 205}); ok {
		t.Fatal("7px displacement started a move")
	}
	out := m.PointerUp(Pointer{X: 155, Y: 205})
	if out.Kind != OutcomeClick || out.Key != "family:a" {
		t.Errorf("outcome = %+v, want click on family:a", out)
	}
}

func TestResizeUsesSmallerThreshold(t *testing.T) {
	m, r := setup(t)
	tg := mustTarget(t, event("a", monday, 9, 0, time.Hour), r)

	m.PointerDown(tg, RegionBottom, Pointer{X: 150, Y: 240}, nil)
	if _, ok := m.PointerMove(Pointer{X: 150, Y: 243}); ok {
		t.Fatal("3px displacement should not start a resize")
	}
	if _, ok := m.PointerMove(Pointer{X: 150, Y: 244}); !ok {
		t.Fatal("4px displacement should start a resize")
	}
}

func TestSingleFlight(t *testing.T) {
	m, r := setup(t)
	a := mustTarget(t, event("a", monday, 9, 0, time.Hour), r)
	b := mustTarget(t, event("b", monday, 13, 0, time.Hour), r)

	if !m.PointerDown(a, RegionBody, Pointer{X: 150, Y: 200}, nil) {
		t.Fatal("first PointerDown rejected")
	}
	if m.PointerDown(b, RegionBody, Pointer{X: 150, Y: 440}, nil) {
		t.Error("second PointerDown accepted while pending")
	}
	m.PointerMove(Pointer{X: 150, Y: 260})
	if m.PointerDown(b, RegionBody, Pointer{X: 150, Y: 440}, nil) {
		t.Error("second PointerDown accepted while dragging")
	}
	if st, _ := m.State(); st.TargetEventID != "a" {
		t.Errorf("dragging %q, want a", st.TargetEventID)
	}
}

func TestLockedEventIgnored(t *testing.T) {
	m, r := setup(t)
	tg := mustTarget(t, event("a", monday, 9, 0, time.Hour), r)

	if m.PointerDown(tg, RegionBody, Pointer{X: 150, Y: 200}, lockSet{"family:a": true}) {
		t.Error("PointerDown accepted on a pending event")
	}
	if m.Phase() != Idle {
		t.Errorf("phase = %s, want idle", m.Phase())
	}
}

func TestLateMoveAfterUp(t *testing.T) {
	m, r := setup(t)
	tg := mustTarget(t, event("a", monday, 9, 0, time.Hour), r)

	m.PointerDown(tg, RegionBody, Pointer{X: 150, Y: 200}, nil)
	m.PointerMove(Pointer{X: 150, Y: 300})
	m.PointerUp(Pointer{X: 150, Y: 300})

	if _, ok := m.PointerMove(Pointer{X: 150, Y: 400}); ok {
		t.Error("move after pointer-up reopened the drag")
	}
	if out := m.PointerUp(Pointer{}); out.Kind != OutcomeNone {
		t.Errorf("second pointer-up = %v, want none", out.Kind)
	}
}

func TestResizeBottomOfEarlyEvent(t *testing.T) {
	m, r := setup(t)
	ev := event("a", monday, 5, 0, 2*time.Hour)
	tg := mustTarget(t, ev, r)
	if tg.TopPx != 0 || tg.HeightPx != 60 {
		t.Fatalf("target = top %v height %v, want 0 and 60", tg.TopPx, tg.HeightPx)
	}
	bottom := tg.TopPx + tg.HeightPx

	m.PointerDown(tg, HitRegion(tg.HeightPx, tg.HeightPx), Pointer{X: 150, Y: bottom}, nil)
	nudge := Pointer{X: 150, Y: bottom + 4}
	if st, ok := m.PointerMove(nudge); !ok || st.Mode != ModeResizeBottom {
		t.Fatalf("expected resize-bottom, got %+v", st)
	}
	out := m.PointerUp(nudge)

	p, err := Resolve(out.State, ev, timegrid.DefaultGrid(), r, time.UTC)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)
	if p.Start != nil || p.End == nil || !p.End.Equal(want) {
		t.Errorf("patch = start %v end %v, want end %v only", p.Start, p.End, want)
	}
}
