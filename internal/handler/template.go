package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/famboard/internal/board"
	"github.com/dukerupert/famboard/internal/timegrid"
	"github.com/dukerupert/famboard/web"
)

var templateFuncs = template.FuncMap{
	"px":  func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) + "px" },
	"pct": func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) + "%" },
	// Colors are generated or validated hex; hsl() would otherwise be
	// filtered out of style attributes.
	"color": func(s string) template.CSS { return template.CSS(s) },
}

// TemplateHandler renders the board page and its partial.
type TemplateHandler struct {
	board     *board.Board
	templates *template.Template
	logger    *slog.Logger
}

func NewTemplateHandler(b *board.Board, logger *slog.Logger) (*TemplateHandler, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &TemplateHandler{board: b, templates: tmpl, logger: logger}, nil
}

func (h *TemplateHandler) Page(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := map[string]any{
		"View":         h.board.Layout(),
		"Modes":        []timegrid.ViewMode{timegrid.ModeMonth, timegrid.ModeWeek, timegrid.ModeThreeDay},
		"HourHeightPx": h.board.Grid().HourHeightPx,
	}
	h.render(w, "page.html", data)
}

// Board renders only the grid. The title travels in a header so the
// toolbar can follow navigation without a full page load.
func (h *TemplateHandler) Board(w http.ResponseWriter, r *http.Request) {
	v := h.board.Layout()
	w.Header().Set("X-Board-Title", v.Title)
	h.render(w, "board", v)
}

func (h *TemplateHandler) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("render template", "template", name, "error", err)
		http.Error(w, "failed to render", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
