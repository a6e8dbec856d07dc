// Package gcal is the Google Calendar provider.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/provider"
)

const (
	statusCancelled = "cancelled"
	pageSize        = 250
)

type Provider struct {
	client   *http.Client
	endpoint string
	loc      *time.Location
}

// New returns a provider using client as the base transport. endpoint
// overrides the API root and is empty in production.
func New(client *http.Client, endpoint string, loc *time.Location) *Provider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Provider{client: client, endpoint: endpoint, loc: loc}
}

func (p *Provider) service(ctx context.Context, cred provider.Credentials) (*calendar.Service, error) {
	base := p.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token, TokenType: "Bearer"}),
			Base:   base,
		},
		Timeout: p.client.Timeout,
	}
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return svc, nil
}

// apiError turns a googleapi.Error into a provider.StatusError so the
// router can recognise an expired token.
func apiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &provider.StatusError{Code: gerr.Code, Message: gerr.Message}
	}
	return err
}

func (p *Provider) ListCalendars(ctx context.Context, cred provider.Credentials) ([]provider.CalendarInfo, error) {
	svc, err := p.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	var (
		out   []provider.CalendarInfo
		token string
	)
	for {
		call := svc.CalendarList.List().Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}
		list, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list calendars: %w", apiError(err))
		}
		for _, item := range list.Items {
			name := item.SummaryOverride
			if name == "" {
				name = item.Summary
			}
			out = append(out, provider.CalendarInfo{
				ID:       item.Id,
				Summary:  name,
				Primary:  item.Primary,
				ReadOnly: item.AccessRole == "reader" || item.AccessRole == "freeBusyReader",
			})
		}
		if list.NextPageToken == "" {
			return out, nil
		}
		token = list.NextPageToken
	}
}

func (p *Provider) FetchEvents(ctx context.Context, cred provider.Credentials, calendarID string, timeMin, timeMax time.Time) ([]model.CalendarEvent, error) {
	svc, err := p.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	var (
		out   []model.CalendarEvent
		token string
	)
	for {
		call := svc.Events.List(calendarID).
			TimeMin(timeMin.Format(time.RFC3339)).
			TimeMax(timeMax.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(pageSize).
			Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}
		events, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list events: %w", apiError(err))
		}
		for _, item := range events.Items {
			if item.Status == statusCancelled {
				continue
			}
			out = append(out, p.toModel(item, calendarID))
		}
		if events.NextPageToken == "" {
			return out, nil
		}
		token = events.NextPageToken
	}
}

// toModel converts a Google event. An event without a readable start is
// returned with a zero time range and dropped later by placement.
func (p *Provider) toModel(item *calendar.Event, calendarID string) model.CalendarEvent {
	ev := model.CalendarEvent{
		ID:          item.Id,
		CalendarID:  calendarID,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
	}
	switch {
	case item.Creator != nil && item.Creator.Email != "":
		ev.CreatorEmail = strings.ToLower(item.Creator.Email)
	case item.Organizer != nil:
		ev.CreatorEmail = strings.ToLower(item.Organizer.Email)
	}
	if item.Start == nil || item.End == nil {
		return ev
	}

	if item.Start.Date != "" {
		first, err := model.ParseDate(item.Start.Date)
		if err != nil {
			return ev
		}
		last, err := model.ParseDate(item.End.Date)
		if err != nil || !first.Before(last) {
			last = first.AddDays(1)
		}
		ev.Time = model.TimeRange{AllDay: true, StartDate: first, EndDate: last}
		return ev
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return ev
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		end = start
	}
	ev.Time = model.TimedRange(start.In(p.loc), end.In(p.loc))
	return ev
}

func dateTime(t time.Time) *calendar.EventDateTime {
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
}

func (p *Provider) CreateEvent(ctx context.Context, cred provider.Credentials, calendarID string, draft model.EventDraft) (model.CalendarEvent, error) {
	svc, err := p.service(ctx, cred)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	body := &calendar.Event{
		Summary:     draft.Title,
		Description: draft.Description,
		Location:    draft.Location,
	}
	if draft.Time.AllDay {
		body.Start = &calendar.EventDateTime{Date: draft.Time.StartDate.String()}
		body.End = &calendar.EventDateTime{Date: draft.Time.EndDate.String()}
	} else {
		body.Start = dateTime(draft.Time.Start)
		body.End = dateTime(draft.Time.End)
	}
	created, err := svc.Events.Insert(calendarID, body).Context(ctx).Do()
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("insert event: %w", apiError(err))
	}
	return p.toModel(created, calendarID), nil
}

// patchBody carries only the fields set in patch. Empty strings are
// forced onto the wire so a field can be cleared.
func patchBody(patch model.Patch) *calendar.Event {
	body := &calendar.Event{}
	if patch.Start != nil {
		body.Start = dateTime(*patch.Start)
	}
	if patch.End != nil {
		body.End = dateTime(*patch.End)
	}
	if patch.Title != nil {
		body.Summary = *patch.Title
		body.ForceSendFields = append(body.ForceSendFields, "Summary")
	}
	if patch.Description != nil {
		body.Description = *patch.Description
		body.ForceSendFields = append(body.ForceSendFields, "Description")
	}
	if patch.Location != nil {
		body.Location = *patch.Location
		body.ForceSendFields = append(body.ForceSendFields, "Location")
	}
	return body
}

func (p *Provider) UpdateEvent(ctx context.Context, cred provider.Credentials, calendarID, eventID string, patch model.Patch) (model.CalendarEvent, error) {
	svc, err := p.service(ctx, cred)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	updated, err := svc.Events.Patch(calendarID, eventID, patchBody(patch)).Context(ctx).Do()
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("patch event: %w", apiError(err))
	}
	return p.toModel(updated, calendarID), nil
}

func (p *Provider) DeleteEvent(ctx context.Context, cred provider.Credentials, calendarID, eventID string) error {
	svc, err := p.service(ctx, cred)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event: %w", apiError(err))
	}
	return nil
}
