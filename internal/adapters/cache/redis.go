package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// Connect builds a redis client from either a redis:// URL or a bare address.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisDedupStore is the webhook dedup fast path. SetNX gives the atomic
// check-and-set the ingestor needs under concurrent delivery of the same
// vendor event.
type RedisDedupStore struct {
	client *redis.Client
}

func NewRedisDedupStore(client *redis.Client) *RedisDedupStore {
	return &RedisDedupStore{client: client}
}

func dedupKey(provider domain.ProviderKind, eventID string) string {
	return "pos:webhook:dedup:" + string(provider) + ":" + eventID
}

func (s *RedisDedupStore) Reserve(ctx context.Context, provider domain.ProviderKind, eventID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, dedupKey(provider, eventID), "1", ttl).Result()
}

func (s *RedisDedupStore) Release(ctx context.Context, provider domain.ProviderKind, eventID string) error {
	return s.client.Del(ctx, dedupKey(provider, eventID)).Err()
}

// RedisReconcileLock serializes reconciliation runs per (location, provider).
// The TTL bounds lock leakage if a run dies without releasing.
type RedisReconcileLock struct {
	client *redis.Client
}

func NewRedisReconcileLock(client *redis.Client) *RedisReconcileLock {
	return &RedisReconcileLock{client: client}
}

func reconcileLockKey(locationID string, provider domain.ProviderKind) string {
	return "pos:reconcile:lock:" + locationID + ":" + string(provider)
}

func (l *RedisReconcileLock) Acquire(ctx context.Context, locationID string, provider domain.ProviderKind, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, reconcileLockKey(locationID, provider), "1", ttl).Result()
}

func (l *RedisReconcileLock) Release(ctx context.Context, locationID string, provider domain.ProviderKind) error {
	return l.client.Del(ctx, reconcileLockKey(locationID, provider)).Err()
}
