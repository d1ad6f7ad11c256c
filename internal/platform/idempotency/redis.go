package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "storefront:idem:"

// RedisStore keeps entries as JSON values with native expiry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix uses the default.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

type redisEntry struct {
	Key         string              `json:"key"`
	Fingerprint string              `json:"fingerprint"`
	State       State               `json:"state"`
	Status      int                 `json:"status,omitempty"`
	Header      map[string][]string `json:"header,omitempty"`
	Body        []byte              `json:"body,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	ExpiresAt   time.Time           `json:"expiresAt"`
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + documentID(key)
}

func (s *RedisStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry := freshEntry(key, fingerprint, now, ttl)
	payload, err := json.Marshal(redisEntry(entry))
	if err != nil {
		return OutcomeInFlight, Entry{}, err
	}

	rk := s.redisKey(key)
	ok, err := s.client.SetNX(ctx, rk, payload, ttl).Result()
	if err != nil {
		return OutcomeInFlight, Entry{}, fmt.Errorf("idempotency: redis claim: %w", err)
	}
	if ok {
		return OutcomeFresh, entry, nil
	}

	raw, err := s.client.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as held so the client retries.
		return OutcomeInFlight, Entry{}, nil
	}
	if err != nil {
		return OutcomeInFlight, Entry{}, fmt.Errorf("idempotency: redis read: %w", err)
	}
	var stored redisEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return OutcomeInFlight, Entry{}, fmt.Errorf("idempotency: decode entry: %w", err)
	}
	return classify(Entry(stored), fingerprint)
}

func (s *RedisStore) Complete(ctx context.Context, entry Entry, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry.State = StateDone
	entry.ExpiresAt = now.Add(ttl)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	payload, err := json.Marshal(redisEntry(entry))
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.redisKey(entry.Key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: redis complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Abandon(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: redis abandon: %w", err)
	}
	return nil
}
