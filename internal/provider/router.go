package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/token"
)

// Directory resolves accounts for calls routed by calendar.
type Directory interface {
	GetAccount(id int64) (*model.Account, error)
	AccountForCalendar(calendarID string) (*model.Account, error)
}

type Router struct {
	dir       Directory
	tokens    token.Refresher
	providers map[model.AccountKind]Provider
	logger    *slog.Logger
}

func NewRouter(dir Directory, tokens token.Refresher, logger *slog.Logger) *Router {
	return &Router{
		dir:       dir,
		tokens:    tokens,
		providers: make(map[model.AccountKind]Provider),
		logger:    logger,
	}
}

// Register installs the provider for an account kind.
func (r *Router) Register(kind model.AccountKind, p Provider) {
	r.providers[kind] = p
}

func (r *Router) provider(a *model.Account) (Provider, error) {
	p, ok := r.providers[a.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, a.Kind)
	}
	return p, nil
}

func (r *Router) account(id int64) (*model.Account, error) {
	a, err := r.dir.GetAccount(id)
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	if a == nil {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return a, nil
}

func (r *Router) accountForCalendar(calendarID string) (*model.Account, error) {
	a, err := r.dir.AccountForCalendar(calendarID)
	if err != nil {
		return nil, fmt.Errorf("find account for calendar %s: %w", calendarID, err)
	}
	if a == nil {
		return nil, fmt.Errorf("calendar %s: %w", calendarID, ErrNotFound)
	}
	return a, nil
}

// withRetry runs call once and, if it fails with ErrUnauthorized, asks the
// refresher for a new token and runs it exactly once more. A refresher
// with no token for the account leaves the first error standing.
func withRetry[T any](ctx context.Context, r *Router, a *model.Account, call func(Credentials) (T, error)) (T, error) {
	cred := CredentialsFor(a)
	out, err := call(cred)
	if err == nil || !errors.Is(err, ErrUnauthorized) || r.tokens == nil {
		return out, err
	}

	tok, terr := r.tokens.RequestToken(ctx, a.Email)
	if terr != nil {
		r.logger.Warn("token refresh failed", "account", a.Email, "error", terr)
		return out, err
	}
	if tok == "" {
		return out, err
	}
	r.logger.Debug("retrying with refreshed token", "account", a.Email)
	cred.Token = tok
	return call(cred)
}

// FetchEvents reads one selected calendar.
func (r *Router) FetchEvents(ctx context.Context, sel model.SelectedCalendar, timeMin, timeMax time.Time) ([]model.CalendarEvent, error) {
	a, err := r.account(sel.AccountID)
	if err != nil {
		return nil, err
	}
	p, err := r.provider(a)
	if err != nil {
		return nil, err
	}
	return withRetry(ctx, r, a, func(c Credentials) ([]model.CalendarEvent, error) {
		return p.FetchEvents(ctx, c, sel.CalendarID, timeMin, timeMax)
	})
}

// ListCalendars lists what an account offers for selection.
func (r *Router) ListCalendars(ctx context.Context, accountID int64) ([]CalendarInfo, error) {
	a, err := r.account(accountID)
	if err != nil {
		return nil, err
	}
	p, err := r.provider(a)
	if err != nil {
		return nil, err
	}
	return withRetry(ctx, r, a, func(c Credentials) ([]CalendarInfo, error) {
		return p.ListCalendars(ctx, c)
	})
}

func (r *Router) CreateEvent(ctx context.Context, calendarID string, draft model.EventDraft) (model.CalendarEvent, error) {
	a, err := r.accountForCalendar(calendarID)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	p, err := r.provider(a)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	return withRetry(ctx, r, a, func(c Credentials) (model.CalendarEvent, error) {
		return p.CreateEvent(ctx, c, calendarID, draft)
	})
}

func (r *Router) UpdateEvent(ctx context.Context, calendarID, eventID string, patch model.Patch) (model.CalendarEvent, error) {
	a, err := r.accountForCalendar(calendarID)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	p, err := r.provider(a)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	return withRetry(ctx, r, a, func(c Credentials) (model.CalendarEvent, error) {
		return p.UpdateEvent(ctx, c, calendarID, eventID, patch)
	})
}

func (r *Router) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	a, err := r.accountForCalendar(calendarID)
	if err != nil {
		return err
	}
	p, err := r.provider(a)
	if err != nil {
		return err
	}
	_, err = withRetry(ctx, r, a, func(c Credentials) (struct{}, error) {
		return struct{}{}, p.DeleteEvent(ctx, c, calendarID, eventID)
	})
	return err
}
