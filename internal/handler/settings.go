package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/famboard/internal/config"
	"github.com/dukerupert/famboard/internal/store"
)

// SettingsHandler edits the stored display settings. They are checked
// against the running configuration and take effect on the next start.
type SettingsHandler struct {
	settings *store.SettingsStore
	base     config.Config
	logger   *slog.Logger
}

func NewSettingsHandler(ss *store.SettingsStore, base config.Config, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: ss, base: base, logger: logger}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stored, err := h.settings.GetMany(config.SettingKeys)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	cfg := h.base
	if err := cfg.ApplySettings(stored); err != nil {
		h.logger.Warn("stored settings invalid", "error", err)
	}
	writeJSON(w, http.StatusOK, displaySettings(cfg))
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	for k := range req {
		if !isSettingKey(k) {
			writeError(w, http.StatusBadRequest, "unknown setting "+k)
			return
		}
	}

	stored, err := h.settings.GetMany(config.SettingKeys)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	for k, v := range req {
		stored[k] = v
	}
	cfg := h.base
	if err := cfg.ApplySettings(stored); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.settings.SetMany(req); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	h.logger.Info("settings updated", "keys", len(req))
	writeJSON(w, http.StatusOK, displaySettings(cfg))
}

func isSettingKey(k string) bool {
	for _, s := range config.SettingKeys {
		if s == k {
			return true
		}
	}
	return false
}

func displaySettings(c config.Config) map[string]any {
	return map[string]any{
		"default_view":   c.DefaultView,
		"week_start":     c.WeekStart,
		"day_start_hour": c.DayStartHour,
		"day_end_hour":   c.DayEndHour,
		"hour_height_px": c.HourHeightPx,
	}
}
