package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/famboard/internal/board"
	"github.com/dukerupert/famboard/internal/config"
	"github.com/dukerupert/famboard/internal/handler"
	"github.com/dukerupert/famboard/internal/middleware"
	"github.com/dukerupert/famboard/internal/store"
	ws "github.com/dukerupert/famboard/internal/websocket"
	"github.com/dukerupert/famboard/web"
)

// Deps is what the server is assembled from. Linker is nil when Google
// linking is not configured.
type Deps struct {
	DB     *sql.DB
	Board  *board.Board
	Hub    *ws.Hub
	Lister handler.CalendarLister
	Linker handler.OAuthLinker
	Sealer store.Sealer
	Config config.Config
	Logger *slog.Logger
}

type Server struct {
	cfg         config.Config
	board       *board.Board
	hub         *ws.Hub
	calendars   *store.CalendarStore
	boardH      *handler.BoardHandler
	eventH      *handler.EventHandler
	accountH    *handler.AccountHandler
	calendarH   *handler.CalendarHandler
	memberH     *handler.MemberHandler
	settingsH   *handler.SettingsHandler
	templateH   *handler.TemplateHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(d Deps) (*Server, error) {
	s := &Server{
		cfg:         d.Config,
		board:       d.Board,
		hub:         d.Hub,
		calendars:   store.NewCalendarStore(d.DB),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      d.Logger,
	}

	accountStore := store.NewAccountStore(d.DB, d.Sealer)
	memberStore := store.NewMemberStore(d.DB)
	settingsStore := store.NewSettingsStore(d.DB)

	templateH, err := handler.NewTemplateHandler(d.Board, d.Logger.With("component", "templates"))
	if err != nil {
		return nil, err
	}
	s.templateH = templateH

	apiLogger := d.Logger.With("component", "api")
	s.boardH = handler.NewBoardHandler(d.Board, apiLogger)
	s.eventH = handler.NewEventHandler(d.Board, apiLogger)
	s.accountH = handler.NewAccountHandler(accountStore, d.Lister, d.Linker, s.Reload, apiLogger)
	s.calendarH = handler.NewCalendarHandler(s.calendars, accountStore, s.Reload, apiLogger)
	s.memberH = handler.NewMemberHandler(memberStore, s.Reload, apiLogger)
	s.settingsH = handler.NewSettingsHandler(settingsStore, d.Config, apiLogger)
	return s, nil
}

// Reload pushes the stored calendar selection into the board and fetches
// the visible range again. Errors are logged; the board keeps its events.
func (s *Server) Reload(ctx context.Context) {
	sels, err := s.calendars.ListSelected()
	if err != nil {
		s.logger.Error("load selected calendars", "error", err)
		return
	}
	s.board.SetSelections(sels)
	if err := s.board.Refresh(ctx); err != nil {
		s.logger.Warn("refresh after reload", "error", err)
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	static, err := fs.Sub(web.Static, "static")
	if err != nil {
		panic(fmt.Sprintf("static assets: %v", err))
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("GET /", s.templateH.Page)
	mux.HandleFunc("GET /partials/board", s.templateH.Board)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.board))

	// Board
	mux.HandleFunc("GET /api/board", s.boardH.Get)
	mux.HandleFunc("POST /api/board/mode", s.boardH.SetMode)
	mux.HandleFunc("POST /api/board/step", s.boardH.Step)
	mux.HandleFunc("POST /api/board/today", s.boardH.Today)
	mux.HandleFunc("POST /api/board/cursor", s.boardH.SetCursor)
	mux.HandleFunc("POST /api/board/refresh", s.boardH.Refresh)
	mux.HandleFunc("POST /api/board/viewport", s.boardH.SetViewport)
	mux.HandleFunc("POST /api/board/pointer", s.boardH.Pointer)

	// Events
	mux.HandleFunc("POST /api/events", s.eventH.Create)
	mux.HandleFunc("GET /api/events/quick-create", s.eventH.QuickCreate)
	mux.HandleFunc("GET /api/events/{key}", s.eventH.Get)
	mux.HandleFunc("PATCH /api/events/{key}", s.eventH.Update)
	mux.HandleFunc("DELETE /api/events/{key}", s.eventH.Delete)
	mux.HandleFunc("PUT /api/events/{key}/assignees", s.eventH.Reassign)

	// Accounts and calendars
	mux.HandleFunc("GET /api/accounts", s.accountH.List)
	mux.HandleFunc("POST /api/accounts", s.accountH.Create)
	mux.HandleFunc("DELETE /api/accounts/{id}", s.accountH.Delete)
	mux.HandleFunc("GET /api/accounts/{id}/calendars", s.accountH.Calendars)
	mux.HandleFunc("GET /accounts/google/link", s.rateLimitedHandler(s.accountH.GoogleLink))
	mux.HandleFunc("GET /accounts/google/callback", s.rateLimitedHandler(s.accountH.GoogleCallback))
	mux.HandleFunc("GET /api/calendars/selected", s.calendarH.ListSelected)
	mux.HandleFunc("PUT /api/calendars/selected", s.calendarH.ReplaceSelected)

	// Members
	mux.HandleFunc("GET /api/members", s.memberH.List)
	mux.HandleFunc("POST /api/members", s.memberH.Create)
	mux.HandleFunc("PUT /api/members/order", s.memberH.UpdateSortOrder)
	mux.HandleFunc("PUT /api/members/{id}", s.memberH.Update)
	mux.HandleFunc("DELETE /api/members/{id}", s.memberH.Delete)
	mux.HandleFunc("POST /api/members/{id}/default", s.memberH.SetDefault)

	// Settings
	mux.HandleFunc("GET /api/settings", s.settingsH.Get)
	mux.HandleFunc("PUT /api/settings", s.settingsH.Update)

	var h http.Handler = mux
	if s.cfg.BasicAuthEnabled() {
		h = middleware.BasicAuth(s.cfg.BasicAuth.Username, s.cfg.BasicAuth.Password, "/health")(h)
	}
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
