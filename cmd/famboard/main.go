package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/famboard/internal/board"
	"github.com/dukerupert/famboard/internal/config"
	"github.com/dukerupert/famboard/internal/database"
	"github.com/dukerupert/famboard/internal/logging"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/notify"
	"github.com/dukerupert/famboard/internal/pipeline"
	"github.com/dukerupert/famboard/internal/provider"
	"github.com/dukerupert/famboard/internal/provider/caldav"
	"github.com/dukerupert/famboard/internal/provider/gcal"
	"github.com/dukerupert/famboard/internal/provider/ics"
	"github.com/dukerupert/famboard/internal/refresh"
	"github.com/dukerupert/famboard/internal/secret"
	"github.com/dukerupert/famboard/internal/server"
	"github.com/dukerupert/famboard/internal/store"
	"github.com/dukerupert/famboard/internal/token"
	ws "github.com/dukerupert/famboard/internal/websocket"
)

func main() {
	defaultPath := os.Getenv("FAMBOARD_CONFIG")
	if defaultPath == "" {
		defaultPath = "famboard.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	settingsStore := store.NewSettingsStore(db)
	stored, err := settingsStore.GetMany(config.SettingKeys)
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	if err := cfg.ApplySettings(stored); err != nil {
		slog.Warn("ignoring invalid stored settings", "error", err)
	}

	var sealer store.Sealer
	if cfg.Secret != "" {
		salt, err := settingsStore.SecretSalt(secret.GenerateSalt)
		if err != nil {
			slog.Error("failed to load secret salt", "error", err)
			os.Exit(1)
		}
		box, err := secret.New(cfg.Secret, salt)
		if err != nil {
			slog.Error("failed to derive token key", "error", err)
			os.Exit(1)
		}
		sealer = box
	} else {
		slog.Warn("FAMBOARD_SECRET not set; account tokens are stored unencrypted")
	}

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("invalid timezone", "error", err)
		os.Exit(1)
	}
	weekStart, err := cfg.WeekStartDay()
	if err != nil {
		slog.Error("invalid week start", "error", err)
		os.Exit(1)
	}

	accountStore := store.NewAccountStore(db, sealer)
	household := store.NewHousehold(db)

	var (
		tokens token.Refresher
		linker *token.Linker
	)
	if cfg.GoogleEnabled() {
		oauthCfg := token.GoogleConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
		tokens = token.NewStoreRefresher(accountStore, oauthCfg, logger.With("component", "token"))
		linker = token.NewLinker(oauthCfg)
	} else {
		slog.Info("google client not configured; google accounts cannot be linked")
	}

	router := provider.NewRouter(accountStore, tokens, logger.With("component", "provider"))
	router.Register(model.AccountGoogle, gcal.New(nil, "", loc))
	router.Register(model.AccountCalDAV, caldav.New(loc, logger.With("component", "caldav")))
	router.Register(model.AccountICS, ics.New(nil, loc, logger.With("component", "ics")))

	hub := ws.NewHub(logger.With("component", "websocket"))
	b := board.New(board.Config{
		Grid:      cfg.Grid(),
		Mode:      cfg.View(),
		WeekStart: weekStart,
		Location:  loc,
	}, board.Deps{
		Loader:      pipeline.New(router, household, logger.With("component", "pipeline")),
		Remote:      router,
		Members:     household,
		Assignments: household,
		Sink:        notify.Multi{notify.LogSink{Logger: logger.With("component", "notify")}, ws.ToastSink{Hub: hub}},
		Logger:      logger.With("component", "board"),
	})
	hub.Follow(b)

	deps := server.Deps{
		DB:     db,
		Board:  b,
		Hub:    hub,
		Lister: router,
		Sealer: sealer,
		Config: *cfg,
		Logger: logger,
	}
	if linker != nil {
		deps.Linker = linker
	}
	srv, err := server.New(deps)
	if err != nil {
		slog.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	startCtx, startCancel := context.WithTimeout(bgCtx, 30*time.Second)
	srv.Reload(startCtx)
	startCancel()

	scheduler := refresh.New(b, cfg.RefreshCron, loc, time.Minute, logger.With("component", "refresh"))
	if err := scheduler.Start(bgCtx); err != nil {
		slog.Error("failed to start refresh scheduler", "error", err)
		os.Exit(1)
	}
	go srv.RateLimiter().RunCleanup(bgCtx, time.Hour)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("famboard starting", "addr", httpServer.Addr, "url", cfg.PublicURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	scheduler.Stop()
	bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	// Let writes already sent to a calendar finish and settle.
	b.Wait()
}
