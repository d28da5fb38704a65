// Package main is the entrypoint for the CardLens API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardlens/internal/api"
	"github.com/kiranshivaraju/cardlens/internal/api/handler"
	mw "github.com/kiranshivaraju/cardlens/internal/api/middleware"
	"github.com/kiranshivaraju/cardlens/internal/api/response"
	"github.com/kiranshivaraju/cardlens/internal/cache"
	"github.com/kiranshivaraju/cardlens/internal/config"
	"github.com/kiranshivaraju/cardlens/internal/store"
	"github.com/kiranshivaraju/cardlens/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const shutdownTimeout = 30 * time.Second

const bootstrapKeyName = "admin"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	})))
	slog.Info("config loaded", "env", cfg.Server.Env, "log_level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database, "cardlens-api")
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied", "dir", cfg.Database.MigrationsDir)

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and bootstrap the first key
	pgStore := store.NewPostgresStore(pool)
	if err := ensureAdminKey(ctx, pgStore, cfg.Server.AdminKey); err != nil {
		return fmt.Errorf("bootstrap admin key: %w", err)
	}

	// 6. Build router with dependencies
	analysis := handler.NewAnalysis(pgStore, redisCache, handler.Options{
		MaxAttempts: cfg.Worker.MaxAttempts,
		CacheTTL:    cfg.Redis.AnalysisTTL,
	})
	keys := handler.NewKeys(pgStore, bcrypt.DefaultCost)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Redis.RateLimitPerMinute, cfg.Redis.TriggerRateLimitPerMinute),

		HealthHandler: healthHandler(pgStore, redisCache),

		EnqueueCardHandler: analysis.EnqueueCard,
		EnqueueDeckHandler: analysis.EnqueueDeck,
		LatestHandler:      analysis.GetLatest,
		HistoryHandler:     analysis.History,
		JobHandler:         analysis.GetJob,
		BacklogHandler:     analysis.Backlog,
		ReanalyzeHandler:   analysis.Reanalyze,

		CreateKeyHandler: keys.Create,
		ListKeysHandler:  keys.List,
		RevokeKeyHandler: keys.Revoke,
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// ensureAdminKey installs raw as an admin key when no active key exists, so a
// fresh deployment can reach the admin routes.
func ensureAdminKey(ctx context.Context, s store.Store, raw string) error {
	if raw == "" {
		return nil
	}
	existing, err := s.ListAPIKeys(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      bootstrapKeyName,
		KeyHash:   string(hash),
		KeyPrefix: raw[:8],
		Scopes:    []string{"read", "admin"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		// Another server instance got there first.
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil
		}
		return err
	}
	slog.Info("bootstrap admin key installed", "key_id", key.ID, "key_prefix", key.KeyPrefix)
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, response.CodeDegraded,
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
