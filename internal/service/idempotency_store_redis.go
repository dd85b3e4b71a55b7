package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisIdempotencyRecord struct {
	Fingerprint string              `json:"fingerprint"`
	Status      string              `json:"status"`
	Response    *CachedHTTPResponse `json:"response,omitempty"`
}

const (
	redisIdempotencyPending   = "pending"
	redisIdempotencyCompleted = "completed"
)

// releaseScript deletes a claim only while it still belongs to the caller
// and has not completed.
var releaseScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then return 0 end
local rec = cjson.decode(raw)
if rec.fingerprint == ARGV[1] and rec.status == "pending" then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisIdempotencyStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisIdempotencyStore(client redis.UniversalClient, prefix string) *RedisIdempotencyStore {
	if prefix == "" {
		prefix = "products_idem"
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix}
}

func (s *RedisIdempotencyStore) Begin(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyBeginResult, error) {
	redisKey := s.key(scope, key)
	claim, err := json.Marshal(redisIdempotencyRecord{Fingerprint: fingerprint, Status: redisIdempotencyPending})
	if err != nil {
		return IdempotencyBeginResult{}, err
	}
	ok, err := s.client.SetNX(ctx, redisKey, claim, ttl).Result()
	if err != nil {
		return IdempotencyBeginResult{}, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return IdempotencyBeginResult{State: IdempotencyStateNew}, nil
	}

	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Begin(ctx, scope, key, fingerprint, ttl)
	}
	if err != nil {
		return IdempotencyBeginResult{}, fmt.Errorf("load idempotency key: %w", err)
	}
	var rec redisIdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return IdempotencyBeginResult{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	switch {
	case rec.Fingerprint != fingerprint:
		return IdempotencyBeginResult{State: IdempotencyStateConflict}, nil
	case rec.Status != redisIdempotencyCompleted || rec.Response == nil:
		return IdempotencyBeginResult{State: IdempotencyStateInProgress}, nil
	default:
		return IdempotencyBeginResult{State: IdempotencyStateReplay, Cached: rec.Response}, nil
	}
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, scope, key, fingerprint string, response CachedHTTPResponse, ttl time.Duration) error {
	payload, err := json.Marshal(redisIdempotencyRecord{
		Fingerprint: fingerprint,
		Status:      redisIdempotencyCompleted,
		Response:    &response,
	})
	if err != nil {
		return err
	}
	return s.client.SetXX(ctx, s.key(scope, key), payload, ttl).Err()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, scope, key, fingerprint string) error {
	return releaseScript.Run(ctx, s.client, []string{s.key(scope, key)}, fingerprint).Err()
}

func (s *RedisIdempotencyStore) key(scope, key string) string {
	if scope == "" {
		scope = "default"
	}
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, hex.EncodeToString(sum[:]))
}
