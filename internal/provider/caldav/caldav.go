// Package caldav talks to CalDAV servers such as iCloud, Fastmail and
// Nextcloud. An event id is the object path on the server; instances of a
// recurring object carry a "#<start>" suffix and cannot be edited.
package caldav

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/provider"
	"github.com/dukerupert/famboard/internal/provider/recur"
)

const (
	// DefaultiCloudURL is used when an account has no server URL.
	DefaultiCloudURL = "https://caldav.icloud.com"

	instanceSep = "#"
	prodID      = "-//famboard//CalDAV//EN"
)

// davClient is the part of *caldav.Client the provider uses.
type davClient interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, calendarHomeSet string) ([]caldav.Calendar, error)
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
	GetCalendarObject(ctx context.Context, path string) (*caldav.CalendarObject, error)
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
	RemoveAll(ctx context.Context, path string) error
}

type Provider struct {
	loc    *time.Location
	logger *slog.Logger
	dial   func(cred provider.Credentials) (davClient, error)
}

func New(loc *time.Location, logger *slog.Logger) *Provider {
	return &Provider{loc: loc, logger: logger, dial: dial}
}

func dial(cred provider.Credentials) (davClient, error) {
	endpoint := cred.ServerURL
	if endpoint == "" {
		endpoint = DefaultiCloudURL
	}
	httpClient := &http.Client{
		Transport: &authTransport{username: cred.Username, password: cred.Token},
		Timeout:   30 * time.Second,
	}
	c, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}
	return c, nil
}

// authTransport adds Basic Auth and turns the statuses the router acts on
// into provider.StatusError.
type authTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	r := req.Clone(req.Context())
	r.SetBasicAuth(t.username, t.password)
	resp, err := base.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &provider.StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func (p *Provider) ListCalendars(ctx context.Context, cred provider.Credentials) ([]provider.CalendarInfo, error) {
	c, err := p.dial(cred)
	if err != nil {
		return nil, err
	}
	principal, err := c.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := c.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}
	cals, err := c.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	out := make([]provider.CalendarInfo, 0, len(cals))
	for _, cal := range cals {
		if !supportsEvents(cal) {
			continue
		}
		name := cal.Name
		if name == "" {
			name = cal.Path
		}
		out = append(out, provider.CalendarInfo{ID: cal.Path, Summary: name})
	}
	return out, nil
}

func supportsEvents(cal caldav.Calendar) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	for _, comp := range cal.SupportedComponentSet {
		if comp == ical.CompEvent {
			return true
		}
	}
	return false
}

func (p *Provider) FetchEvents(ctx context.Context, cred provider.Credentials, calendarID string, timeMin, timeMax time.Time) ([]model.CalendarEvent, error) {
	c, err := p.dial(cred)
	if err != nil {
		return nil, err
	}
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: timeMin.UTC(),
				End:   timeMax.UTC(),
			}},
		},
	}
	objects, err := c.QueryCalendar(ctx, calendarID, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	var events []model.CalendarEvent
	for _, obj := range objects {
		evs, err := p.objectEvents(obj, calendarID, timeMin, timeMax)
		if err != nil {
			p.logger.Warn("skip calendar object", "path", obj.Path, "error", err)
		}
		events = append(events, evs...)
	}
	return events, nil
}

// objectEvents expands one calendar object. Masters and their overrides
// live in the same object, so expansion is per object.
func (p *Provider) objectEvents(obj caldav.CalendarObject, calendarID string, timeMin, timeMax time.Time) ([]model.CalendarEvent, error) {
	if obj.Data == nil {
		return nil, fmt.Errorf("no data in calendar object")
	}
	var (
		items  []vevent
		series []recur.Series
	)
	for _, comp := range obj.Data.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		it, err := parseVEvent(comp, p.loc)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
		series = append(series, it.series)
	}

	instances, err := recur.Expand(series, timeMin, timeMax)
	events := make([]model.CalendarEvent, 0, len(instances))
	for _, in := range instances {
		id := obj.Path
		if in.Recurring {
			id = obj.Path + instanceSep + in.Start.UTC().Format("20060102T150405Z")
		}
		events = append(events, items[in.Index].event(id, calendarID, in.Start, in.End, p.loc))
	}
	return events, err
}

type vevent struct {
	series      recur.Series
	title       string
	description string
	location    string
	organizer   string
}

func (v vevent) event(id, calendarID string, start, end time.Time, loc *time.Location) model.CalendarEvent {
	ev := model.CalendarEvent{
		ID:           id,
		CalendarID:   calendarID,
		Title:        v.title,
		Description:  v.description,
		Location:     v.location,
		CreatorEmail: v.organizer,
	}
	if v.series.AllDay {
		first, last := model.DateOf(start), model.DateOf(end)
		if !first.Before(last) {
			last = first.AddDays(1)
		}
		ev.Time = model.TimeRange{AllDay: true, StartDate: first, EndDate: last}
	} else {
		ev.Time = model.TimedRange(start.In(loc), end.In(loc))
	}
	return ev
}

func text(comp *ical.Component, name string) string {
	if prop := comp.Props.Get(name); prop != nil {
		return prop.Value
	}
	return ""
}

func stamp(prop *ical.Prop, loc *time.Location) (time.Time, error) {
	return recur.ParseStamp(prop.Value, prop.Params.Get("TZID"), loc)
}

func isDate(prop *ical.Prop) bool {
	return prop.Params.Get(ical.ParamValue) == string(ical.ValueDate) || !strings.Contains(prop.Value, "T")
}

func parseVEvent(comp *ical.Component, loc *time.Location) (vevent, error) {
	v := vevent{
		title:       text(comp, ical.PropSummary),
		description: text(comp, ical.PropDescription),
		location:    text(comp, ical.PropLocation),
		organizer:   strings.TrimPrefix(strings.ToLower(text(comp, ical.PropOrganizer)), "mailto:"),
	}
	v.series.UID = text(comp, ical.PropUID)
	v.series.RRule = text(comp, ical.PropRecurrenceRule)
	v.series.Cancelled = strings.EqualFold(text(comp, ical.PropStatus), "CANCELLED")

	start := comp.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		return v, fmt.Errorf("vevent %s missing DTSTART", v.series.UID)
	}
	var err error
	if v.series.Start, err = stamp(start, loc); err != nil {
		return v, fmt.Errorf("vevent %s DTSTART: %w", v.series.UID, err)
	}
	v.series.AllDay = isDate(start)
	if v.series.AllDay {
		v.series.End = v.series.Start.AddDate(0, 0, 1)
	} else {
		v.series.End = v.series.Start.Add(time.Hour)
	}
	if end := comp.Props.Get(ical.PropDateTimeEnd); end != nil {
		if t, err := stamp(end, loc); err == nil && t.After(v.series.Start) {
			v.series.End = t
		}
	}

	for _, prop := range comp.Props[ical.PropExceptionDates] {
		tz := prop.Params.Get("TZID")
		for _, part := range strings.Split(prop.Value, ",") {
			if t, err := recur.ParseStamp(strings.TrimSpace(part), tz, loc); err == nil {
				v.series.ExDates = append(v.series.ExDates, t)
			}
		}
	}
	if rid := comp.Props.Get(ical.PropRecurrenceID); rid != nil {
		if t, err := stamp(rid, loc); err == nil {
			v.series.RecurrenceID = &t
		}
	}
	return v, nil
}

func objectPath(calendarID, name string) string {
	if !strings.HasSuffix(calendarID, "/") {
		calendarID += "/"
	}
	return calendarID + name
}

func (p *Provider) CreateEvent(ctx context.Context, cred provider.Credentials, calendarID string, draft model.EventDraft) (model.CalendarEvent, error) {
	c, err := p.dial(cred)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	uid := uuid.NewString()

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)

	ve := ical.NewEvent()
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, draft.Title)
	if draft.Description != "" {
		ve.Props.SetText(ical.PropDescription, draft.Description)
	}
	if draft.Location != "" {
		ve.Props.SetText(ical.PropLocation, draft.Location)
	}
	setTimes(ve.Component, draft.Time)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	cal.Children = append(cal.Children, ve.Component)

	path := objectPath(calendarID, uid+".ics")
	if _, err := c.PutCalendarObject(ctx, path, cal); err != nil {
		return model.CalendarEvent{}, fmt.Errorf("create event: %w", err)
	}
	return model.CalendarEvent{
		ID:          path,
		CalendarID:  calendarID,
		Title:       draft.Title,
		Description: draft.Description,
		Location:    draft.Location,
		Time:        draft.Time,
	}, nil
}

func setTimes(comp *ical.Component, tr model.TimeRange) {
	delete(comp.Props, ical.PropDuration)
	if tr.AllDay {
		comp.Props.SetDate(ical.PropDateTimeStart, tr.StartDate.In(time.UTC))
		comp.Props.SetDate(ical.PropDateTimeEnd, tr.EndDate.In(time.UTC))
		return
	}
	comp.Props.SetDateTime(ical.PropDateTimeStart, tr.Start.UTC())
	comp.Props.SetDateTime(ical.PropDateTimeEnd, tr.End.UTC())
}

// UpdateEvent rewrites the stored object. Only the fields set in patch
// change; times are written back in UTC and any DURATION is replaced by
// an explicit DTEND.
func (p *Provider) UpdateEvent(ctx context.Context, cred provider.Credentials, calendarID, eventID string, patch model.Patch) (model.CalendarEvent, error) {
	if strings.Contains(eventID, instanceSep) {
		return model.CalendarEvent{}, fmt.Errorf("update recurring instance: %w", provider.ErrReadOnly)
	}
	c, err := p.dial(cred)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	obj, err := c.GetCalendarObject(ctx, eventID)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("get event: %w", err)
	}
	if obj.Data == nil {
		return model.CalendarEvent{}, fmt.Errorf("get event: %w", provider.ErrNotFound)
	}

	var master *ical.Component
	for _, comp := range obj.Data.Children {
		if comp.Name == ical.CompEvent && comp.Props.Get(ical.PropRecurrenceID) == nil {
			master = comp
			break
		}
	}
	if master == nil {
		return model.CalendarEvent{}, fmt.Errorf("event %s has no VEVENT: %w", eventID, provider.ErrNotFound)
	}
	cur, err := parseVEvent(master, p.loc)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	if cur.series.RRule != "" {
		return model.CalendarEvent{}, fmt.Errorf("update recurring event: %w", provider.ErrReadOnly)
	}

	ev := cur.event(eventID, calendarID, cur.series.Start, cur.series.End, p.loc)
	ev = patch.Apply(ev)
	if patch.Start != nil || patch.End != nil {
		setTimes(master, ev.Time)
	}
	if patch.Title != nil {
		master.Props.SetText(ical.PropSummary, *patch.Title)
	}
	setOptional(master, ical.PropDescription, patch.Description)
	setOptional(master, ical.PropLocation, patch.Location)
	master.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	if _, err := c.PutCalendarObject(ctx, eventID, obj.Data); err != nil {
		return model.CalendarEvent{}, fmt.Errorf("update event: %w", err)
	}
	return ev, nil
}

func setOptional(comp *ical.Component, name string, v *string) {
	switch {
	case v == nil:
	case *v == "":
		delete(comp.Props, name)
	default:
		comp.Props.SetText(name, *v)
	}
}

func (p *Provider) DeleteEvent(ctx context.Context, cred provider.Credentials, calendarID, eventID string) error {
	if strings.Contains(eventID, instanceSep) {
		return fmt.Errorf("delete recurring instance: %w", provider.ErrReadOnly)
	}
	c, err := p.dial(cred)
	if err != nil {
		return err
	}
	if err := c.RemoveAll(ctx, eventID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
