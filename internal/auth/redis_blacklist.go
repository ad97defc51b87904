package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Clark-Hu/movie-ratings/internal/config"
)

const (
	redisBlacklistPrefix = "blacklist:"
	redisConnectTimeout  = 5 * time.Second
)

// RedisBlacklist keeps revoked refresh token ids in Redis with a TTL equal to
// the token's remaining lifetime.
type RedisBlacklist struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisBlacklist wraps an established client.
func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client, now: time.Now}
}

// ConnectRedis opens a client and checks connectivity with a ping.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Add sets the key only if absent. Entries for already expired tokens are
// kept for one second so concurrent callers still race on a single key.
func (b *RedisBlacklist) Add(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(b.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := b.client.SetNX(ctx, b.key(jti), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis blacklist add: %w", err)
	}
	return ok, nil
}

// Contains reports whether jti is blacklisted.
func (b *RedisBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis blacklist check: %w", err)
	}
	return n > 0, nil
}

func (b *RedisBlacklist) key(jti string) string {
	return redisBlacklistPrefix + jti
}
