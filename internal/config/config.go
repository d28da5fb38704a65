package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the CardLens server and worker.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Worker   WorkerConfig
	Analysis AnalysisConfig
	LLM      LLMConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// AdminKey, when set, is installed as an admin-scoped API key at startup
	// if no active key exists yet.
	AdminKey string
}

type LogConfig struct {
	Level string
}

// SlogLevel maps Level to its slog equivalent. Load has already rejected
// unknown names.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
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

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectRetries  int
	MigrationsDir   string
}

type RedisConfig struct {
	URL         string
	AnalysisTTL time.Duration
	// RateLimitPerMinute bounds reads per API key; TriggerRateLimitPerMinute
	// bounds enqueues and admin writes.
	RateLimitPerMinute        int
	TriggerRateLimitPerMinute int
}

type WorkerConfig struct {
	ID              string
	PollInterval    time.Duration
	BatchSize       int
	ReapInterval    time.Duration
	StaleAfter      time.Duration
	ShutdownTimeout time.Duration
	MaxAttempts     int
}

type AnalysisConfig struct {
	SecondaryDomainThreshold float64
	MinDomainConfidence      float64
	MaxConcepts              int
}

type LLMConfig struct {
	Provider string
}

var validProviders = map[string]bool{
	"none": true,
}

const minAdminKeyLen = 16

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is applied first when present; variables
// already set in the environment win.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:     envInt("CARDLENS_PORT", 8080),
			Env:      envString("CARDLENS_ENV", "development"),
			AdminKey: os.Getenv("ADMIN_API_KEY"),
		},
		Log: LogConfig{
			Level: strings.ToLower(envString("LOG_LEVEL", "info")),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectRetries:  envInt("DATABASE_CONNECT_RETRIES", 5),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL:                       os.Getenv("REDIS_URL"),
			AnalysisTTL:               envDuration("CACHE_ANALYSIS_TTL", 10*time.Minute),
			RateLimitPerMinute:        envInt("RATE_LIMIT_PER_MINUTE", 60),
			TriggerRateLimitPerMinute: envInt("RATE_LIMIT_TRIGGERS_PER_MINUTE", 20),
		},
		Worker: WorkerConfig{
			ID:              os.Getenv("WORKER_ID"),
			PollInterval:    envDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			BatchSize:       envInt("WORKER_BATCH_SIZE", 10),
			ReapInterval:    envDuration("WORKER_REAP_INTERVAL", 60*time.Second),
			StaleAfter:      envMinutes("WORKER_STALE_AFTER_MINUTES", 10*time.Minute),
			ShutdownTimeout: envDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxAttempts:     envInt("JOB_MAX_ATTEMPTS", 3),
		},
		Analysis: AnalysisConfig{
			SecondaryDomainThreshold: envFloat("ANALYSIS_SECONDARY_DOMAIN_THRESHOLD", 0.3),
			MinDomainConfidence:      envFloat("ANALYSIS_MIN_DOMAIN_CONFIDENCE", 0.3),
			MaxConcepts:              envInt("ANALYSIS_MAX_CONCEPTS", 10),
		},
		LLM: LLMConfig{
			Provider: envString("LLM_PROVIDER", "none"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateServer checks the settings only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("CARDLENS_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Redis.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Redis.RateLimitPerMinute)
	}
	if c.Redis.TriggerRateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_TRIGGERS_PER_MINUTE must be positive, got %d", c.Redis.TriggerRateLimitPerMinute)
	}
	if c.Server.AdminKey != "" && len(c.Server.AdminKey) < minAdminKeyLen {
		return fmt.Errorf("ADMIN_API_KEY must be at least %d characters", minAdminKeyLen)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Database.ConnectRetries < 0 {
		return fmt.Errorf("DATABASE_CONNECT_RETRIES must not be negative, got %d", c.Database.ConnectRetries)
	}
	// Both binaries need redis: the server reads the latest-analysis cache
	// and the worker is the only writer that keeps it current.
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Redis.AnalysisTTL <= 0 {
		return fmt.Errorf("CACHE_ANALYSIS_TTL must be positive, got %s", c.Redis.AnalysisTTL)
	}

	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive, got %s", c.Worker.PollInterval)
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("WORKER_BATCH_SIZE must be positive, got %d", c.Worker.BatchSize)
	}
	if c.Worker.ReapInterval <= 0 {
		return fmt.Errorf("WORKER_REAP_INTERVAL must be positive, got %s", c.Worker.ReapInterval)
	}
	if c.Worker.StaleAfter <= 0 {
		return fmt.Errorf("WORKER_STALE_AFTER_MINUTES must be positive, got %s", c.Worker.StaleAfter)
	}
	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("WORKER_SHUTDOWN_TIMEOUT must be positive, got %s", c.Worker.ShutdownTimeout)
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be positive, got %d", c.Worker.MaxAttempts)
	}

	if !inUnitRange(c.Analysis.SecondaryDomainThreshold) {
		return fmt.Errorf("ANALYSIS_SECONDARY_DOMAIN_THRESHOLD must be within [0,1], got %v", c.Analysis.SecondaryDomainThreshold)
	}
	if !inUnitRange(c.Analysis.MinDomainConfidence) {
		return fmt.Errorf("ANALYSIS_MIN_DOMAIN_CONFIDENCE must be within [0,1], got %v", c.Analysis.MinDomainConfidence)
	}
	if c.Analysis.MaxConcepts <= 0 {
		return fmt.Errorf("ANALYSIS_MAX_CONCEPTS must be positive, got %d", c.Analysis.MaxConcepts)
	}

	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("LLM_PROVIDER must be none; got %q", c.LLM.Provider)
	}

	return nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envMinutes(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	mins, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(mins) * time.Minute
}
