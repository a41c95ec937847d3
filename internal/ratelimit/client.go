package ratelimit

import (
	"strings"

	redis "github.com/redis/go-redis/v9"

	"github.com/trackvault/trackvault/internal/config"
)

// NewRedisClient builds the shared redis client. Returns nil when no
// address is configured; consumers treat a nil client as "redis off".
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}
