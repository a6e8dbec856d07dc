package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/store"
)

type CalendarHandler struct {
	calendars *store.CalendarStore
	accounts  *store.AccountStore
	reload    func(ctx context.Context)
	logger    *slog.Logger
}

func NewCalendarHandler(calendars *store.CalendarStore, accounts *store.AccountStore, reload func(ctx context.Context), logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{calendars: calendars, accounts: accounts, reload: reload, logger: logger}
}

func (h *CalendarHandler) ListSelected(w http.ResponseWriter, r *http.Request) {
	sels, err := h.calendars.ListSelected()
	if err != nil {
		h.logger.Error("list selected calendars", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list calendars")
		return
	}
	if sels == nil {
		sels = []model.SelectedCalendar{}
	}
	writeJSON(w, http.StatusOK, sels)
}

// ReplaceSelected sets the whole selection. Order is kept as given and is
// the order calendars are merged in.
func (h *CalendarHandler) ReplaceSelected(w http.ResponseWriter, r *http.Request) {
	var req []struct {
		CalendarID string `json:"calendar_id"`
		AccountID  int64  `json:"account_id"`
		Summary    string `json:"summary"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sels := make([]model.SelectedCalendar, 0, len(req))
	for _, c := range req {
		if c.CalendarID == "" {
			writeError(w, http.StatusBadRequest, "calendar_id is required")
			return
		}
		a, err := h.accounts.GetAccount(c.AccountID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to get account")
			return
		}
		if a == nil {
			writeError(w, http.StatusBadRequest, "unknown account")
			return
		}
		sels = append(sels, model.SelectedCalendar{CalendarID: c.CalendarID, AccountID: c.AccountID, Summary: c.Summary})
	}

	if err := h.calendars.ReplaceSelected(sels); err != nil {
		h.logger.Error("replace selected calendars", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save calendars")
		return
	}
	if h.reload != nil {
		h.reload(r.Context())
	}
	h.ListSelected(w, r)
}
