// Package main is the entrypoint for the CardLens analysis worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/cardlens/internal/ai"
	"github.com/kiranshivaraju/cardlens/internal/analysis"
	"github.com/kiranshivaraju/cardlens/internal/cache"
	"github.com/kiranshivaraju/cardlens/internal/config"
	"github.com/kiranshivaraju/cardlens/internal/store"
	"github.com/kiranshivaraju/cardlens/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	})))
	slog.Info("config loaded", "env", cfg.Server.Env, "llm_provider", cfg.LLM.Provider)

	// SIGINT/SIGTERM cancel ctx; Run then finishes the job in hand and
	// releases the rest of its claims.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database, "cardlens-worker")
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Every analysis write goes through to redis; a worker without it would
	// leave the API serving superseded versions.
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	fallback, err := ai.NewFallback(cfg.LLM)
	if err != nil {
		return fmt.Errorf("create LLM fallback: %w", err)
	}

	w := worker.New(store.NewPostgresStore(pool), newEngine(cfg.Analysis), fallback, redisCache, workerConfig(cfg.Worker, cfg.Redis))
	return w.Run(ctx)
}

func newEngine(cfg config.AnalysisConfig) *analysis.Engine {
	return analysis.NewEngine(analysis.Options{
		SecondaryDomainThreshold: cfg.SecondaryDomainThreshold,
		MinDomainConfidence:      cfg.MinDomainConfidence,
		MaxConcepts:              cfg.MaxConcepts,
	})
}

func workerConfig(cfg config.WorkerConfig, rc config.RedisConfig) worker.Config {
	return worker.Config{
		ID:              cfg.ID,
		PollInterval:    cfg.PollInterval,
		BatchSize:       cfg.BatchSize,
		ReapInterval:    cfg.ReapInterval,
		StaleAfter:      cfg.StaleAfter,
		ShutdownTimeout: cfg.ShutdownTimeout,
		CacheTTL:        rc.AnalysisTTL,
	}
}
