// Command accmove-server runs the viewer proxy for an accmove workspace.
// It serves viewer tokens, listing proxies, and background saves over HTTP,
// reusing the workspace's stored session.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kilupskalvis/accmove/internal/aps"
	"github.com/kilupskalvis/accmove/internal/auth"
	"github.com/kilupskalvis/accmove/internal/config"
	"github.com/kilupskalvis/accmove/internal/core"
	"github.com/kilupskalvis/accmove/internal/history"
	"github.com/kilupskalvis/accmove/internal/server"
	"github.com/kilupskalvis/accmove/internal/store"
)

func main() {
	listen := flag.String("listen", envOrDefault("ACCMOVE_LISTEN", "127.0.0.1:8722"), "Listen address")
	origin := flag.String("origin", envOrDefault("ACCMOVE_VIEWER_ORIGIN", "*"), "Allowed CORS origin for the viewer")
	logLevel := flag.String("log-level", envOrDefault("ACCMOVE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", envOrDefault("ACCMOVE_LOG_FORMAT", "json"), "Log format (json, text)")
	flag.Parse()

	// Setup logger
	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Workspace
	cfg, err := config.Load()
	if err != nil {
		logger.Error("no accmove workspace found", "error", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	hist, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logger.Error("failed to open history", "error", err)
		os.Exit(1)
	}
	defer hist.Close()
	if err := hist.Initialize(); err != nil {
		logger.Error("failed to initialize history", "error", err)
		os.Exit(1)
	}

	// The client secret comes from the environment only.
	workspaceRoot := filepath.Dir(filepath.Dir(cfg.Path()))
	_ = godotenv.Load(filepath.Join(workspaceRoot, ".env"))
	secret := os.Getenv("APS_CLIENT_SECRET")
	if secret == "" {
		logger.Warn("APS_CLIENT_SECRET is not set; save submissions will fail")
	}
	if cfg.Activity == "" {
		logger.Warn("no activity configured; run 'accmove provision' before saving")
	}

	oauth := auth.NewClient(cfg.BaseURL, cfg.ClientID, secret, cfg.CallbackURL)
	tokens := auth.NewTokenSource(st, oauth)
	resources := aps.NewHTTPClient(cfg.BaseURL, tokens)
	appTokens := auth.NewAppTokenSource(oauth, auth.AppScopes...)
	worker := aps.NewDesignAutomationClient(cfg.BaseURL, appTokens, cfg.Activity, aps.WorkBucketName(cfg.ClientID))
	saver := core.NewSaver(resources, worker, hist)

	scfg := server.DefaultConfig()
	scfg.AllowedOrigin = *origin

	h, handlerCleanup := server.Handler(&server.Deps{
		Tokens:    tokens,
		Resources: resources,
		Saver:     saver,
	}, scfg, logger)
	defer handlerCleanup()

	srv := &http.Server{
		Addr:         *listen,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return context.Background() },
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting accmove-server", "listen", *listen, "client_id", cfg.ClientID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
