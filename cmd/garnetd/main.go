// Garnet authorization engine daemon.
// Sits between the identity provider and the protected application,
// deciding who gets in and recording every decision.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garnet-sec/garnet/internal/api"
	"github.com/garnet-sec/garnet/internal/config"
	"github.com/garnet-sec/garnet/internal/version"
	"github.com/garnet-sec/garnet/pkg/allowlist"
	"github.com/garnet-sec/garnet/pkg/audit"
	"github.com/garnet-sec/garnet/pkg/idp"
	"github.com/garnet-sec/garnet/pkg/store"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	listenAddr = flag.String("listen", "", "HTTP listen address (overrides config)")
	dbPath     = flag.String("db", "", "Database path (overrides config)")
)

func main() {
	flag.CommandLine.SetOutput(os.Stdout)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("garnetd starting", "version", version.String())

	path := cfg.DBPath
	if path == "" {
		path = store.DefaultPath()
	}
	db, err := store.Open(path)
	if err != nil {
		logger.Error("failed to open database", "path", path, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache := allowlist.NewMemoryCache(cfg.Cache.TTL)
	allow := allowlist.NewService(db, cache, logger)
	recorder := audit.NewRecorder(db, logger)
	idpClient := idp.NewHTTPClient(cfg.IdP.BaseURL, cfg.IdP.Timeout, logger)

	server := api.NewServer(db, allow, recorder, idpClient, logger, api.ServerConfig{
		StoreTimeout:  cfg.StoreTimeout,
		WebhookSecret: cfg.IdP.WebhookSecret,
	})

	mux := http.NewServeMux()
	server.RegisterRoutes(mux, api.BodyLimit)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Middleware order: logging -> CORS -> edge filter -> routes.
	// CORS wraps the edge filter so headers are set even on redirects.
	handler := api.LoggingMiddleware(logger)(
		api.CORSMiddleware(
			server.EdgeWrap(cfg.EdgePrecheck)(mux)))

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	logger.Info("HTTP server listening", "addr", cfg.Listen)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("HTTP server error", "error", err)
		os.Exit(1)
	}

	logger.Info("garnetd stopped")
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
