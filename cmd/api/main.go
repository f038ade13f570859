package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"finca-activity/internal/adapters/actors/users"
	"finca-activity/internal/adapters/auth/core"
	"finca-activity/internal/adapters/storage/postgres"
	"finca-activity/internal/platform/logger"
	"finca-activity/internal/router"
)

// @title finca-activity API
// @version 1.0
// @description Log de actividad y agregación analítica del backend de finca.
// @BasePath /
func main() {
	log := logger.NewFromEnv()

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	opts := router.Options{Logger: log}

	// Sin AUTH_BASE_URL corre en modo dev (X-Debug-User-ID).
	if base := os.Getenv("AUTH_BASE_URL"); base != "" {
		v, err := core.NewVerifier(core.Config{
			BaseURL: base,
			APIKey:  os.Getenv("AUTH_API_KEY"),
		})
		if err != nil {
			log.Error("auth verifier init failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		opts.AuthVerifier = v
	}

	if base := os.Getenv("USERS_BASE_URL"); base != "" {
		res, err := users.NewResolver(users.Config{BaseURL: base})
		if err != nil {
			log.Error("users resolver init failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		opts.Actors = res
	}

	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		db, err := postgres.Open(dsn)
		if err != nil {
			log.Error("postgres open failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			cancel()
			log.Error("schema migration failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		cancel()

		opts.DB = db
	}

	r := router.NewRouter(opts)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info("starting server", map[string]any{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
