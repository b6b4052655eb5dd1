package db

import (
	"github.com/JGarto/oss-mytracks/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis builds the client backing the preference store and the live
// stream relay. A nil return means Redis is not configured; both consumers
// degrade to single-instance in-memory behavior.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
