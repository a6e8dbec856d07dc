package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/famboard/internal/board"
	"github.com/dukerupert/famboard/internal/drag"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/timegrid"
)

// BoardHandler serves the layout and the navigation and pointer controls.
// Every mutating call answers with the new layout.
type BoardHandler struct {
	board  *board.Board
	logger *slog.Logger
}

func NewBoardHandler(b *board.Board, logger *slog.Logger) *BoardHandler {
	return &BoardHandler{board: b, logger: logger}
}

func (h *BoardHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.board.Layout())
}

// navigated refetches after the range moved. Fetch failures are already
// reported per calendar, so the layout is returned either way.
func (h *BoardHandler) navigated(w http.ResponseWriter, r *http.Request) {
	if err := h.board.Refresh(r.Context()); err != nil {
		h.logger.Warn("refresh after navigation", "error", err)
	}
	writeJSON(w, http.StatusOK, h.board.Layout())
}

func (h *BoardHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	mode, err := timegrid.ParseViewMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.board.SetMode(mode)
	h.navigated(w, r)
}

func (h *BoardHandler) Step(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta int `json:"delta"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Delta == 0 {
		writeError(w, http.StatusBadRequest, "delta must be non-zero")
		return
	}
	h.board.Step(req.Delta)
	h.navigated(w, r)
}

func (h *BoardHandler) Today(w http.ResponseWriter, r *http.Request) {
	h.board.Today()
	h.navigated(w, r)
}

func (h *BoardHandler) SetCursor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date model.Date `json:"date"`
	}
	if err := decode(r, &req); err != nil || req.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	h.board.SetCursor(req.Date)
	h.navigated(w, r)
}

func (h *BoardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.board.Refresh(r.Context()); err != nil {
		h.logger.Error("refresh", "error", err)
		writeError(w, http.StatusBadGateway, "failed to refresh")
		return
	}
	writeJSON(w, http.StatusOK, h.board.Layout())
}

func (h *BoardHandler) SetViewport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GridLeftX     float64 `json:"grid_left_x"`
		ColumnWidthPx float64 `json:"column_width_px"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ColumnWidthPx <= 0 {
		writeError(w, http.StatusBadRequest, "column_width_px must be positive")
		return
	}
	h.board.SetViewport(req.GridLeftX, req.ColumnWidthPx)
	w.WriteHeader(http.StatusNoContent)
}

type pointerRequest struct {
	Phase   string         `json:"phase"`
	Key     model.EventKey `json:"key"`
	OffsetY float64        `json:"offset_y"`
	X       float64        `json:"x"`
	Y       float64        `json:"y"`
}

type pointerResponse struct {
	Phase   string       `json:"phase"`
	Preview *drag.State  `json:"preview,omitempty"`
	Outcome string       `json:"outcome,omitempty"`
	Patch   *model.Patch `json:"patch,omitempty"`
}

// Pointer is the HTTP form of the WebSocket pointer stream, for clients
// that cannot hold a socket open.
func (h *BoardHandler) Pointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p := drag.Pointer{X: req.X, Y: req.Y}
	resp := pointerResponse{Phase: req.Phase}

	switch req.Phase {
	case "down":
		if err := h.board.PointerDown(req.Key, req.OffsetY, p); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
	case "move":
		if s, ok := h.board.PointerMove(p); ok {
			resp.Preview = &s
		}
	case "up":
		rel, err := h.board.PointerUp(r.Context(), p)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		resp.Outcome = outcomeName(rel.Kind)
		if rel.Kind == drag.OutcomeCommit {
			resp.Patch = &rel.Patch
		}
	case "cancel":
		h.board.PointerCancel()
	default:
		writeError(w, http.StatusBadRequest, "phase must be down, move, up or cancel")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func outcomeName(k drag.OutcomeKind) string {
	switch k {
	case drag.OutcomeClick:
		return "click"
	case drag.OutcomeCommit:
		return "commit"
	}
	return "none"
}
