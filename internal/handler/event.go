package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/famboard/internal/board"
	"github.com/dukerupert/famboard/internal/model"
)

// EventHandler edits events through the board so every write is
// optimistic. Writes answer 202 at once; ?wait=1 holds the response until
// the calendar has answered.
type EventHandler struct {
	board  *board.Board
	logger *slog.Logger
}

func NewEventHandler(b *board.Board, logger *slog.Logger) *EventHandler {
	return &EventHandler{board: b, logger: logger}
}

func eventKey(r *http.Request) (model.EventKey, bool) {
	key := model.EventKey(r.PathValue("key"))
	_, _, ok := key.Split()
	return key, ok
}

func wantsWait(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return v
}

// settle writes the outcome of a dispatched write.
func (h *EventHandler) settle(w http.ResponseWriter, r *http.Request, done <-chan error, okStatus int, body any) {
	if !wantsWait(r) {
		writeJSON(w, http.StatusAccepted, body)
		return
	}
	select {
	case err := <-done:
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		if okStatus == http.StatusNoContent {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, okStatus, body)
	case <-r.Context().Done():
	}
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := eventKey(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event key")
		return
	}
	ev, ok := h.board.Event(key)
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CalendarID string `json:"calendar_id"`
		model.EventDraft
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.CalendarID == "" {
		writeError(w, http.StatusBadRequest, "calendar_id is required")
		return
	}

	key, done, err := h.board.CreateEvent(r.Context(), req.CalendarID, req.EventDraft)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.logger.Info("event create dispatched", "calendar_id", req.CalendarID, "key", key)

	if !wantsWait(r) {
		writeJSON(w, http.StatusAccepted, map[string]any{"key": key})
		return
	}
	select {
	case err := <-done:
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		// The provisional key has been swapped for the calendar's own id;
		// the next board_changed carries it.
		writeJSON(w, http.StatusCreated, map[string]any{"provisional_key": key})
	case <-r.Context().Done():
	}
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	key, ok := eventKey(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event key")
		return
	}
	var patch model.Patch
	if err := decode(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	done, err := h.board.EditEvent(r.Context(), key, patch)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.settle(w, r, done, http.StatusOK, map[string]any{"key": key, "patch": patch})
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, ok := eventKey(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event key")
		return
	}
	done, err := h.board.DeleteEvent(r.Context(), key)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.settle(w, r, done, http.StatusNoContent, map[string]any{"key": key})
}

func (h *EventHandler) QuickCreate(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "day must be a column index")
		return
	}
	tr, err := h.board.QuickCreate(day)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (h *EventHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	key, ok := eventKey(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event key")
		return
	}
	var req struct {
		MemberIDs []int64 `json:"member_ids"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.board.Reassign(key, req.MemberIDs); err != nil {
		h.logger.Error("reassign event", "key", key, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	ev, _ := h.board.Event(key)
	writeJSON(w, http.StatusOK, ev)
}
