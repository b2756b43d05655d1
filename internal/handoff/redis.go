package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps source images in Redis so a capture session can move
// between pages or processes by id alone.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed handoff store. Entries expire after ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Put writes the source image for a session.
func (s *RedisStore) Put(ctx context.Context, sessionID string, entry Entry) error {
	serialized, err := json.Marshal(toRecord(entry))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, Key(sessionID), serialized, s.ttl).Err()
}

// Get reads the source image for a session.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (Entry, error) {
	value, err := s.client.Get(ctx, Key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}

	var rec record
	if err := json.Unmarshal(value, &rec); err != nil {
		return Entry{}, err
	}
	return rec.entry(), nil
}

// Delete removes the source image for a session.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, Key(sessionID)).Err()
}
