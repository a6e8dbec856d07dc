package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/store"
)

var hexColorRegexp = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

const defaultMemberColor = "#3B82F6"

type MemberHandler struct {
	store  *store.MemberStore
	reload func(ctx context.Context)
	logger *slog.Logger
}

// NewMemberHandler builds the handler. reload re-runs assignment after a
// change to who is in the household.
func NewMemberHandler(s *store.MemberStore, reload func(ctx context.Context), logger *slog.Logger) *MemberHandler {
	return &MemberHandler{store: s, reload: reload, logger: logger}
}

type memberRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Color       string `json:"color"`
	AvatarEmoji string `json:"avatar_emoji"`
}

// validate trims and checks req, filling blanks from fallback.
func (req *memberRequest) validate(fallback *model.Member) string {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		return "name is required"
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return "email is not valid"
		}
	}
	if req.Color == "" {
		if fallback != nil {
			req.Color = fallback.Color
		} else {
			req.Color = defaultMemberColor
		}
	}
	if !hexColorRegexp.MatchString(req.Color) {
		return "color must be a hex color (e.g. #FF0000)"
	}
	if req.AvatarEmoji == "" && fallback != nil {
		req.AvatarEmoji = fallback.AvatarEmoji
	}
	return ""
}

func (h *MemberHandler) changed(ctx context.Context) {
	if h.reload != nil {
		h.reload(ctx)
	}
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.ListMembers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(nil); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	member, err := h.store.Create(req.Name, req.Email, req.Color, req.AvatarEmoji)
	if err != nil {
		h.logger.Error("create member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create member")
		return
	}
	h.changed(r.Context())
	writeJSON(w, http.StatusCreated, member)
}

func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.store.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	var req memberRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(existing); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	member, err := h.store.Update(id, req.Name, req.Email, req.Color, req.AvatarEmoji)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update member")
		return
	}
	h.changed(r.Context())
	writeJSON(w, http.StatusOK, member)
}

func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.store.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if err := h.store.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete member")
		return
	}
	h.changed(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemberHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.store.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if err := h.store.SetDefault(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set default member")
		return
	}
	h.changed(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemberHandler) UpdateSortOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}
	if err := h.store.UpdateSortOrder(req.IDs); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update sort order")
		return
	}
	h.changed(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
