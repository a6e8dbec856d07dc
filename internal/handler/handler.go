package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dukerupert/famboard/internal/board"
	"github.com/dukerupert/famboard/internal/provider"
)

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusFor maps board and calendar errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, board.ErrEventNotFound), errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, board.ErrEventPending), errors.Is(err, board.ErrDragBusy):
		return http.StatusConflict
	case errors.Is(err, board.ErrNotTimed), errors.Is(err, board.ErrNotDraggable), errors.Is(err, board.ErrInvalidTime),
		errors.Is(err, board.ErrUnknownCalendar), errors.Is(err, board.ErrDayOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, provider.ErrUnauthorized):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
