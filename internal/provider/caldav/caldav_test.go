package caldav

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/provider"
)

type fakeDAV struct {
	calendars []caldav.Calendar
	objects   map[string]*ical.Calendar
	removed   []string
}

func (f *fakeDAV) FindCurrentUserPrincipal(context.Context) (string, error) {
	return "/principals/jo/", nil
}

func (f *fakeDAV) FindCalendarHomeSet(_ context.Context, principal string) (string, error) {
	return principal + "calendars/", nil
}

func (f *fakeDAV) FindCalendars(context.Context, string) ([]caldav.Calendar, error) {
	return f.calendars, nil
}

func (f *fakeDAV) QueryCalendar(_ context.Context, calendar string, _ *caldav.CalendarQuery) ([]caldav.CalendarObject, error) {
	var paths []string
	for p := range f.objects {
		if strings.HasPrefix(p, calendar) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	out := make([]caldav.CalendarObject, 0, len(paths))
	for _, p := range paths {
		out = append(out, caldav.CalendarObject{Path: p, Data: f.objects[p]})
	}
	return out, nil
}

func (f *fakeDAV) GetCalendarObject(_ context.Context, path string) (*caldav.CalendarObject, error) {
	cal, ok := f.objects[path]
	if !ok {
		return nil, &provider.StatusError{Code: http.StatusNotFound}
	}
	return &caldav.CalendarObject{Path: path, Data: cal}, nil
}

func (f *fakeDAV) PutCalendarObject(_ context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error) {
	f.objects[path] = cal
	return &caldav.CalendarObject{Path: path, Data: cal}, nil
}

func (f *fakeDAV) RemoveAll(_ context.Context, path string) error {
	f.removed = append(f.removed, path)
	delete(f.objects, path)
	return nil
}

func decode(t *testing.T, lines ...string) *ical.Calendar {
	t.Helper()
	body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
		strings.Join(lines, "\r\n") + "\r\nEND:VCALENDAR\r\n"
	cal, err := ical.NewDecoder(strings.NewReader(body)).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return cal
}

func newTestProvider(f *fakeDAV) *Provider {
	return &Provider{
		loc:    time.UTC,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		dial:   func(provider.Credentials) (davClient, error) { return f, nil },
	}
}

func seeded(t *testing.T) *fakeDAV {
	return &fakeDAV{objects: map[string]*ical.Calendar{
		"/cal/home/dentist.ics": decode(t,
			"BEGIN:VEVENT",
			"UID:dentist",
			"DTSTAMP:20240101T000000Z",
			"DTSTART:20240115T100000Z",
			"DURATION:PT1H",
			"SUMMARY:Dentist",
			"LOCATION:Main St",
			"ORGANIZER:mailto:jo@example.com",
			"END:VEVENT"),
		"/cal/home/swim.ics": decode(t,
			"BEGIN:VEVENT",
			"UID:swim",
			"DTSTAMP:20240101T000000Z",
			"DTSTART:20240102T170000Z",
			"DTEND:20240102T180000Z",
			"RRULE:FREQ=WEEKLY;BYDAY=TU",
			"SUMMARY:Swim",
			"END:VEVENT",
			"BEGIN:VEVENT",
			"UID:swim",
			"DTSTAMP:20240101T000000Z",
			"RECURRENCE-ID:20240116T170000Z",
			"DTSTART:20240116T180000Z",
			"DTEND:20240116T190000Z",
			"SUMMARY:Swim (late)",
			"END:VEVENT"),
	}}
}

func TestFetchEvents(t *testing.T) {
	f := seeded(t)
	p := newTestProvider(f)

	from := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC)
	events, err := p.FetchEvents(context.Background(), provider.Credentials{}, "/cal/home/", from, to)
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}

	dentist := events[0]
	if dentist.ID != "/cal/home/dentist.ics" || dentist.Title != "Dentist" || dentist.CreatorEmail != "jo@example.com" {
		t.Errorf("dentist = %+v", dentist)
	}
	if dentist.Time.Duration() != time.Hour {
		t.Errorf("dentist duration = %v", dentist.Time.Duration())
	}

	swim := events[1]
	if swim.Title != "Swim (late)" || swim.ID != "/cal/home/swim.ics#20240116T180000Z" {
		t.Errorf("swim = %+v", swim)
	}
	if !strings.Contains(string(swim.Key()), ":") {
		t.Errorf("key = %s", swim.Key())
	}
}

func TestUpdateEventRewritesObject(t *testing.T) {
	f := seeded(t)
	p := newTestProvider(f)

	end := time.Date(2024, 1, 15, 11, 30, 0, 0, time.UTC)
	title := "Dentist (Sam)"
	ev, err := p.UpdateEvent(context.Background(), provider.Credentials{}, "/cal/home/", "/cal/home/dentist.ics",
		model.Patch{End: &end, Title: &title})
	if err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if !ev.Time.End.Equal(end) || ev.Title != title {
		t.Errorf("returned event = %+v", ev)
	}

	comp := f.objects["/cal/home/dentist.ics"].Children[0]
	if got := comp.Props.Get(ical.PropDateTimeStart).Value; got != "20240115T100000Z" {
		t.Errorf("DTSTART = %s", got)
	}
	if got := comp.Props.Get(ical.PropDateTimeEnd).Value; got != "20240115T113000Z" {
		t.Errorf("DTEND = %s", got)
	}
	if comp.Props.Get(ical.PropDuration) != nil {
		t.Error("DURATION kept next to DTEND")
	}
	if got := comp.Props.Get(ical.PropSummary).Value; got != title {
		t.Errorf("SUMMARY = %s", got)
	}
	if got := comp.Props.Get(ical.PropLocation).Value; got != "Main St" {
		t.Errorf("LOCATION = %s", got)
	}
}

func TestRecurringIsReadOnly(t *testing.T) {
	f := seeded(t)
	p := newTestProvider(f)
	ctx := context.Background()
	start := time.Date(2024, 1, 16, 19, 0, 0, 0, time.UTC)

	_, err := p.UpdateEvent(ctx, provider.Credentials{}, "/cal/home/", "/cal/home/swim.ics#20240116T180000Z", model.Patch{Start: &start})
	if !errors.Is(err, provider.ErrReadOnly) {
		t.Errorf("instance update err = %v", err)
	}
	_, err = p.UpdateEvent(ctx, provider.Credentials{}, "/cal/home/", "/cal/home/swim.ics", model.Patch{Start: &start})
	if !errors.Is(err, provider.ErrReadOnly) {
		t.Errorf("series update err = %v", err)
	}
	if err := p.DeleteEvent(ctx, provider.Credentials{}, "/cal/home/", "/cal/home/swim.ics#20240116T180000Z"); !errors.Is(err, provider.ErrReadOnly) {
		t.Errorf("instance delete err = %v", err)
	}
}

func TestCreateAndDelete(t *testing.T) {
	f := &fakeDAV{objects: map[string]*ical.Calendar{}}
	p := newTestProvider(f)
	ctx := context.Background()

	start := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	ev, err := p.CreateEvent(ctx, provider.Credentials{}, "/cal/home", model.EventDraft{
		Title: "Piano",
		Time:  model.TimedRange(start, start.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if !strings.HasPrefix(ev.ID, "/cal/home/") || !strings.HasSuffix(ev.ID, ".ics") {
		t.Errorf("id = %s", ev.ID)
	}
	cal, ok := f.objects[ev.ID]
	if !ok {
		t.Fatalf("object %s not stored", ev.ID)
	}
	comp := cal.Children[0]
	if comp.Name != ical.CompEvent || comp.Props.Get(ical.PropSummary).Value != "Piano" {
		t.Errorf("stored component = %+v", comp)
	}
	uid := comp.Props.Get(ical.PropUID).Value
	if !strings.HasSuffix(ev.ID, uid+".ics") {
		t.Errorf("uid %s does not name the object %s", uid, ev.ID)
	}

	if err := p.DeleteEvent(ctx, provider.Credentials{}, "/cal/home", ev.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if len(f.removed) != 1 || f.removed[0] != ev.ID {
		t.Errorf("removed = %v", f.removed)
	}
}

func TestListCalendarsSkipsTaskLists(t *testing.T) {
	f := &fakeDAV{calendars: []caldav.Calendar{
		{Path: "/cal/home/", Name: "Home", SupportedComponentSet: []string{"VEVENT"}},
		{Path: "/cal/tasks/", Name: "Tasks", SupportedComponentSet: []string{"VTODO"}},
		{Path: "/cal/work/"},
	}}
	cals, err := newTestProvider(f).ListCalendars(context.Background(), provider.Credentials{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cals) != 2 || cals[0].Summary != "Home" || cals[1].Summary != "/cal/work/" {
		t.Errorf("calendars = %+v", cals)
	}
}

func TestAuthTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "jo" || pass != "app-password" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusMultiStatus)
	}))
	defer srv.Close()

	good := &http.Client{Transport: &authTransport{username: "jo", password: "app-password"}}
	resp, err := good.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMultiStatus {
		t.Errorf("status = %d", resp.StatusCode)
	}

	bad := &http.Client{Transport: &authTransport{username: "jo", password: "stale"}}
	_, err = bad.Get(srv.URL)
	if !errors.Is(err, provider.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}
