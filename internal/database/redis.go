package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects the session store.
func NewRedisClient(cfg config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse redis url: %w", err)
	}

	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.MaxRetries = 3
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	logger.Info("redis connection established", slog.Int("pool_size", cfg.PoolSize))
	return client, nil
}
