package dedupe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCmdable is the subset of redis.UniversalClient the guard uses.
type redisCmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisGuard drops repeated deliveries of the same storage notification.
// Buckets may deliver an event more than once; the first claim wins for ttl.
type RedisGuard struct {
	client    redisCmdable
	ttl       time.Duration
	keyPrefix string
}

func NewRedisGuard(client redis.UniversalClient, ttl time.Duration, keyPrefix string) (*RedisGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return newRedisGuard(client, ttl, keyPrefix)
}

func newRedisGuard(client redisCmdable, ttl time.Duration, keyPrefix string) (*RedisGuard, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "variantflow:seen"
	}
	return &RedisGuard{client: client, ttl: ttl, keyPrefix: keyPrefix}, nil
}

// Claim returns true when eventID has not been seen within the ttl.
func (g *RedisGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(eventID), time.Now().UTC().UnixMilli(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return ok, nil
}

// Release forgets a claim so a redelivery is processed again. Used when the
// claimed event could not be handed off.
func (g *RedisGuard) Release(ctx context.Context, eventID string) error {
	if err := g.client.Del(ctx, g.key(eventID)).Err(); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}

func (g *RedisGuard) key(eventID string) string {
	return fmt.Sprintf("%s:%s", g.keyPrefix, eventID)
}
