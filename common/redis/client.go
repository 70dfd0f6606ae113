package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/meiriv/kids-sports-safety-app/common/config"
)

// Client aliases the go-redis client so callers need only this package.
type Client = redis.Client

// Connect creates a client from cfg and pings it. The client is closed
// again when the ping fails.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
