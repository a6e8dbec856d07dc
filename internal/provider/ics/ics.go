// Package ics reads public or secret-address iCalendar feeds. Feeds are
// read-only; every write returns provider.ErrReadOnly.
package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/provider"
	"github.com/dukerupert/famboard/internal/provider/recur"
)

const (
	dateLayout = "20060102"
	maxBody    = 16 << 20
)

type cacheEntry struct {
	etag         string
	lastModified string
	body         []byte
}

// Provider fetches feeds with conditional GETs and keeps the last body per
// URL in memory.
type Provider struct {
	client *http.Client
	loc    *time.Location
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func New(client *http.Client, loc *time.Location, logger *slog.Logger) *Provider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Provider{client: client, loc: loc, logger: logger, cache: make(map[string]cacheEntry)}
}

// feedURL maps the webcal scheme some calendar apps hand out to https.
func feedURL(calendarID string) string {
	if rest, ok := strings.CutPrefix(calendarID, "webcal://"); ok {
		return "https://" + rest
	}
	return calendarID
}

func (p *Provider) fetch(ctx context.Context, cred provider.Credentials, calendarID string) ([]byte, error) {
	url := feedURL(calendarID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	if cred.Username != "" {
		req.SetBasicAuth(cred.Username, cred.Token)
	}

	p.mu.Lock()
	cached, hasCache := p.cache[url]
	p.mu.Unlock()
	if hasCache {
		if cached.etag != "" {
			req.Header.Set("If-None-Match", cached.etag)
		}
		if cached.lastModified != "" {
			req.Header.Set("If-Modified-Since", cached.lastModified)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && hasCache:
		return cached.body, nil
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, fmt.Errorf("read feed: %w", err)
		}
		p.mu.Lock()
		p.cache[url] = cacheEntry{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}
		p.mu.Unlock()
		return body, nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &provider.StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
}

func (p *Provider) ListCalendars(ctx context.Context, cred provider.Credentials) ([]provider.CalendarInfo, error) {
	body, err := p.fetch(ctx, cred, cred.ServerURL)
	if err != nil {
		return nil, err
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	name := cred.ServerURL
	for _, prop := range cal.CalendarProperties {
		if prop.IANAToken == "X-WR-CALNAME" && prop.Value != "" {
			name = prop.Value
		}
	}
	return []provider.CalendarInfo{{ID: cred.ServerURL, Summary: name, ReadOnly: true}}, nil
}

func (p *Provider) FetchEvents(ctx context.Context, cred provider.Credentials, calendarID string, timeMin, timeMax time.Time) ([]model.CalendarEvent, error) {
	body, err := p.fetch(ctx, cred, calendarID)
	if err != nil {
		return nil, err
	}
	events, err := Parse(body, calendarID, timeMin, timeMax, p.loc)
	if err != nil && len(events) == 0 {
		return nil, err
	}
	if err != nil {
		p.logger.Warn("feed partially parsed", "calendar_id", calendarID, "error", err)
	}
	return events, nil
}

func (p *Provider) CreateEvent(context.Context, provider.Credentials, string, model.EventDraft) (model.CalendarEvent, error) {
	return model.CalendarEvent{}, provider.ErrReadOnly
}

func (p *Provider) UpdateEvent(context.Context, provider.Credentials, string, string, model.Patch) (model.CalendarEvent, error) {
	return model.CalendarEvent{}, provider.ErrReadOnly
}

func (p *Provider) DeleteEvent(context.Context, provider.Credentials, string, string) error {
	return provider.ErrReadOnly
}

type parsed struct {
	series      recur.Series
	title       string
	description string
	location    string
	organizer   string
}

// Parse reads VEVENTs from an ICS payload and expands them into the
// instances overlapping [timeMin, timeMax). Events that fail to parse are
// skipped and reported in the returned error.
func Parse(body []byte, calendarID string, timeMin, timeMax time.Time, loc *time.Location) ([]model.CalendarEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var (
		items []parsed
		errs  []error
	)
	for _, ve := range cal.Events() {
		it, err := parseVEvent(ve, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, it)
	}

	series := make([]recur.Series, len(items))
	for i, it := range items {
		series[i] = it.series
	}
	instances, err := recur.Expand(series, timeMin, timeMax)
	if err != nil {
		errs = append(errs, err)
	}

	events := make([]model.CalendarEvent, 0, len(instances))
	for _, in := range instances {
		it := items[in.Index]
		id := recur.EscapeID(it.series.UID)
		if in.Recurring {
			id = recur.InstanceID(it.series.UID, in.Start)
		}
		ev := model.CalendarEvent{
			ID:           id,
			CalendarID:   calendarID,
			Title:        it.title,
			Description:  it.description,
			Location:     it.location,
			CreatorEmail: it.organizer,
		}
		if it.series.AllDay {
			first := model.DateOf(in.Start)
			end := model.DateOf(in.End)
			if !first.Before(end) {
				end = first.AddDays(1)
			}
			ev.Time = model.TimeRange{AllDay: true, StartDate: first, EndDate: end}
		} else {
			ev.Time = model.TimedRange(in.Start.In(loc), in.End.In(loc))
		}
		events = append(events, ev)
	}
	return events, errors.Join(errs...)
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (parsed, error) {
	var out parsed
	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("vevent missing UID")
	}
	out.series.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		out.organizer = strings.TrimPrefix(strings.ToLower(p.Value), "mailto:")
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		out.series.Cancelled = true
	}

	start := ve.GetProperty(ical.ComponentPropertyDtStart)
	if start == nil {
		return out, fmt.Errorf("vevent %s missing DTSTART", out.series.UID)
	}
	out.series.AllDay = isDate(start)

	var err error
	if out.series.AllDay {
		out.series.Start, err = parseDate(start.Value, loc)
		if err != nil {
			return out, fmt.Errorf("vevent %s DTSTART: %w", out.series.UID, err)
		}
		out.series.End = out.series.Start.AddDate(0, 0, 1)
		if end := ve.GetProperty(ical.ComponentPropertyDtEnd); end != nil {
			if t, err := parseDate(end.Value, loc); err == nil && t.After(out.series.Start) {
				out.series.End = t
			}
		}
	} else {
		out.series.Start, err = ve.GetStartAt()
		if err != nil {
			return out, fmt.Errorf("vevent %s DTSTART: %w", out.series.UID, err)
		}
		out.series.End, err = ve.GetEndAt()
		if err != nil {
			out.series.End = out.series.Start.Add(time.Hour)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.series.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tz := ""
		if v, ok := p.ICalParameters["TZID"]; ok && len(v) == 1 {
			tz = v[0]
		}
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := recur.ParseStamp(strings.TrimSpace(part), tz, loc); err == nil {
				out.series.ExDates = append(out.series.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		tz := ""
		if v, ok := p.ICalParameters["TZID"]; ok && len(v) == 1 {
			tz = v[0]
		}
		if t, err := recur.ParseStamp(p.Value, tz, loc); err == nil {
			out.series.RecurrenceID = &t
		}
	}
	return out, nil
}

func isDate(p *ical.IANAProperty) bool {
	if v, ok := p.ICalParameters["VALUE"]; ok && len(v) > 0 && strings.EqualFold(v[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func parseDate(v string, loc *time.Location) (time.Time, error) {
	if len(v) < len(dateLayout) {
		return time.Time{}, fmt.Errorf("bad date %q", v)
	}
	return time.ParseInLocation(dateLayout, v[:len(dateLayout)], loc)
}
