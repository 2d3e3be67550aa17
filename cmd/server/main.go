/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the hour tracking service. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load YAML configuration (HOURS_* env vars override)
  2. Build the structured logger
  3. Open the SQLite store (runs pending migrations)
  4. Wire the FX service and clause policy
  5. Configure HTTP router
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with the example config
  ./server -config=config/example.yaml

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nueva-educacion/hours-engine/api"
	"github.com/nueva-educacion/hours-engine/config"
	"github.com/nueva-educacion/hours-engine/fx"
	"github.com/nueva-educacion/hours-engine/hours"
	"github.com/nueva-educacion/hours-engine/logger"
	"github.com/nueva-educacion/hours-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "config/example.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	store, err := sqlite.New(cfg.SQLite.Path)
	if err != nil {
		log.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("database ready", "path", cfg.SQLite.Path)

	fxURL := cfg.FX.URL
	if fxURL == "" {
		fxURL = fx.DefaultAPIURL
	}
	provider := fx.NewHTTPProvider(fxURL)
	if cfg.FX.Timeout > 0 {
		provider.Client.Timeout = cfg.FX.Timeout
	}
	fxService := fx.NewService(store, provider, log)

	handler := api.NewHandler(store, fxService, hours.DefaultClausePolicy(), log)
	router := api.NewRouter(handler, cfg.Metrics.Enabled)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", cfg.HTTP.Addr, "env", cfg.App.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "err", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
