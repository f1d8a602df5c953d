package sessionlock

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/avenlabs/chat-scheduler/internal/config"
)

// NewRedisClient connects the lock client and fails fast if Redis is
// unreachable: without it the single-writer guarantee is gone.
func NewRedisClient(cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	return client
}
