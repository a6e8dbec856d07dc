package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/provider"
	"github.com/dukerupert/famboard/internal/store"
)

// CalendarLister lists what an account offers. The provider router
// satisfies it.
type CalendarLister interface {
	ListCalendars(ctx context.Context, accountID int64) ([]provider.CalendarInfo, error)
}

// OAuthLinker runs the Google consent flow.
type OAuthLinker interface {
	Start(email string) (string, error)
	Finish(ctx context.Context, state, code string) (string, *oauth2.Token, error)
}

type AccountHandler struct {
	accounts *store.AccountStore
	lister   CalendarLister
	linker   OAuthLinker
	reload   func(ctx context.Context)
	logger   *slog.Logger
}

// NewAccountHandler builds the handler. linker may be nil when Google
// linking is not configured. reload is called after an account goes away.
func NewAccountHandler(accounts *store.AccountStore, lister CalendarLister, linker OAuthLinker, reload func(ctx context.Context), logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, lister: lister, linker: linker, reload: reload, logger: logger}
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List()
	if err != nil {
		h.logger.Error("list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// Create links a CalDAV or ICS account. The account is kept only if its
// calendars can be listed with the given details.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind      model.AccountKind `json:"kind"`
		Email     string            `json:"email"`
		ServerURL string            `json:"server_url"`
		Username  string            `json:"username"`
		Password  string            `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	a := model.Account{
		Kind:        req.Kind,
		Email:       strings.TrimSpace(req.Email),
		ServerURL:   strings.TrimSpace(req.ServerURL),
		Username:    strings.TrimSpace(req.Username),
		AccessToken: req.Password,
	}
	switch a.Kind {
	case model.AccountCalDAV:
		if a.Username == "" || a.AccessToken == "" {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}
		if a.Email == "" {
			a.Email = a.Username
		}
	case model.AccountICS:
		u, err := url.Parse(a.ServerURL)
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http" && u.Scheme != "webcal") {
			writeError(w, http.StatusBadRequest, "server_url must be a feed URL")
			return
		}
		if a.Email == "" {
			a.Email = u.Host + u.Path
		}
	case model.AccountGoogle:
		writeError(w, http.StatusBadRequest, "google accounts are linked through /accounts/google/link")
		return
	default:
		writeError(w, http.StatusBadRequest, "kind must be caldav or ics")
		return
	}

	existing, err := h.accounts.GetByEmail(a.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check account")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "an account with that email already exists")
		return
	}

	created, err := h.accounts.Create(a)
	if err != nil {
		h.logger.Error("create account", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	cals, err := h.lister.ListCalendars(r.Context(), created.ID)
	if err != nil {
		h.logger.Warn("account check failed", "account", created.Email, "error", err)
		if derr := h.accounts.Delete(created.ID); derr != nil {
			h.logger.Error("remove unusable account", "error", derr)
		}
		status := http.StatusUnprocessableEntity
		if errors.Is(err, provider.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		writeError(w, status, "could not read calendars with these details")
		return
	}

	h.logger.Info("account linked", "account", created.Email, "kind", created.Kind, "calendars", len(cals))
	writeJSON(w, http.StatusCreated, map[string]any{"account": created, "calendars": cals})
}

func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.accounts.GetAccount(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err := h.accounts.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	h.logger.Info("account removed", "account", existing.Email)
	if h.reload != nil {
		h.reload(r.Context())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) Calendars(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	cals, err := h.lister.ListCalendars(r.Context(), id)
	if err != nil {
		h.logger.Warn("list calendars", "account_id", id, "error", err)
		writeError(w, statusFor(err), "failed to list calendars")
		return
	}
	if cals == nil {
		cals = []provider.CalendarInfo{}
	}
	writeJSON(w, http.StatusOK, cals)
}

// GoogleLink redirects to Google's consent screen for ?email=.
func (h *AccountHandler) GoogleLink(w http.ResponseWriter, r *http.Request) {
	if h.linker == nil {
		writeError(w, http.StatusNotFound, "google linking is not configured")
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	consent, err := h.linker.Start(email)
	if err != nil {
		h.logger.Error("start google link", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start linking")
		return
	}
	http.Redirect(w, r, consent, http.StatusFound)
}

// GoogleCallback stores the tokens from a finished consent flow. Linking
// an email that is already present replaces its tokens.
func (h *AccountHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.linker == nil {
		writeError(w, http.StatusNotFound, "google linking is not configured")
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.logger.Warn("google consent refused", "error", e)
		http.Redirect(w, r, "/?link=cancelled", http.StatusFound)
		return
	}

	email, tok, err := h.linker.Finish(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		h.logger.Warn("finish google link", "error", err)
		writeError(w, http.StatusBadRequest, "linking failed")
		return
	}

	existing, err := h.accounts.GetByEmail(email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check account")
		return
	}
	if existing != nil {
		refresh := tok.RefreshToken
		if refresh == "" {
			refresh = existing.RefreshToken
		}
		err = h.accounts.UpdateTokens(existing.ID, tok.AccessToken, refresh)
	} else {
		_, err = h.accounts.Create(model.Account{
			Email:        email,
			Kind:         model.AccountGoogle,
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
		})
	}
	if err != nil {
		h.logger.Error("save google account", "account", email, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save account")
		return
	}

	h.logger.Info("google account linked", "account", email)
	http.Redirect(w, r, "/?link=ok", http.StatusFound)
}
