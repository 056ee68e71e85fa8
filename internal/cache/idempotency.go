// internal/cache/idempotency.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedResponse is what gets stored for one idempotency key.
// A record without a StatusCode is a reservation whose request is still running.
type CachedResponse struct {
	Fingerprint string `json:"fingerprint"`
	StatusCode  int    `json:"statusCode,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Pending reports whether the original request has not finished yet.
func (c *CachedResponse) Pending() bool { return c.StatusCode == 0 }

// IdempotencyStore reserves keys and keeps finished responses for replay.
type IdempotencyStore interface {
	// Reserve claims key for a new request. When the key is already taken it
	// returns false and the existing record.
	Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, *CachedResponse, error)
	Save(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type RedisIdempotencyStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisIdempotencyStore(rdb redis.UniversalClient) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, prefix: "idempotency:"}
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, *CachedResponse, error) {
	pending, err := json.Marshal(CachedResponse{Fingerprint: fingerprint})
	if err != nil {
		return false, nil, fmt.Errorf("marshal reservation: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, s.prefix+key, pending, ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return true, nil, nil
	}

	existing, err := s.get(ctx, key)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		// Expired between SETNX and GET; let the caller retry as a new request.
		return s.Reserve(ctx, key, fingerprint, ttl)
	}
	return false, existing, nil
}

func (s *RedisIdempotencyStore) get(ctx context.Context, key string) (*CachedResponse, error) {
	val, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}

	var resp CachedResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal cached response: %w", err)
	}
	return &resp, nil
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return s.rdb.Set(ctx, s.prefix+key, b, ttl).Err()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}
