package database

import (
	"context"
	"fmt"
	"time"

	"github.com/alexnthnz/alert-fanout/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisClient wraps redis.Client for cross-instance claims
type RedisClient struct {
	*redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{Client: rdb}, nil
}

// ClaimAlert marks an inserted alert as being handled. It returns false when
// another listener already claimed the same alert within ttl.
func (r *RedisClient) ClaimAlert(ctx context.Context, alertID int64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("alert_claim:%d", alertID)
	return r.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}
