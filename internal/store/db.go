package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/cardlens/internal/config"
)

const (
	connectBackoff    = 500 * time.Millisecond
	connectBackoffMax = 5 * time.Second
)

// Connect opens a pgx pool sized from cfg and pings it, retrying the ping
// cfg.ConnectRetries times with doubling backoff so a binary started
// alongside postgres does not exit while the database is still booting.
// appName is reported to postgres as application_name, which tells the API
// and worker connections apart in pg_stat_activity.
func Connect(ctx context.Context, cfg config.DatabaseConfig, appName string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	if appName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = appName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pingWithRetry(ctx, pool, cfg.ConnectRetries); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func pingWithRetry(ctx context.Context, pool *pgxpool.Pool, retries int) error {
	backoff := connectBackoff
	for attempt := 0; ; attempt++ {
		err := pool.Ping(ctx)
		if err == nil || attempt >= retries {
			return err
		}
		slog.Warn("database not ready", "attempt", attempt+1, "retry_in", backoff, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, connectBackoffMax)
	}
}
