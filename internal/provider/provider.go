// Package provider is the boundary to external calendar services. Each
// account kind has a Provider; the Router picks one per call and owns the
// single token refresh and retry on an authorization failure.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dukerupert/famboard/internal/model"
)

var (
	// ErrUnauthorized is matched by any 401 or 403 from a calendar service.
	ErrUnauthorized    = errors.New("calendar: unauthorized")
	ErrReadOnly        = errors.New("calendar: read-only")
	ErrNotFound        = errors.New("calendar: not found")
	ErrUnknownProvider = errors.New("calendar: unknown provider")
)

// StatusError is a non-2xx answer from a calendar service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound || e.Code == http.StatusGone
	}
	return false
}

// Credentials authenticate one call. Token is an OAuth access token for
// Google and the app password for CalDAV.
type Credentials struct {
	Email     string
	Token     string
	Username  string
	ServerURL string
}

// CredentialsFor builds the credentials stored on an account.
func CredentialsFor(a *model.Account) Credentials {
	return Credentials{
		Email:     a.Email,
		Token:     a.AccessToken,
		Username:  a.Username,
		ServerURL: a.ServerURL,
	}
}

// CalendarInfo describes a calendar an account can offer for selection.
type CalendarInfo struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Primary  bool   `json:"primary"`
	ReadOnly bool   `json:"read_only"`
}

type Provider interface {
	ListCalendars(ctx context.Context, cred Credentials) ([]CalendarInfo, error)
	FetchEvents(ctx context.Context, cred Credentials, calendarID string, timeMin, timeMax time.Time) ([]model.CalendarEvent, error)
	CreateEvent(ctx context.Context, cred Credentials, calendarID string, draft model.EventDraft) (model.CalendarEvent, error)
	// UpdateEvent sends only the fields set in patch.
	UpdateEvent(ctx context.Context, cred Credentials, calendarID, eventID string, patch model.Patch) (model.CalendarEvent, error)
	DeleteEvent(ctx context.Context, cred Credentials, calendarID, eventID string) error
}
