package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/opsdesk/deskbot/internal/models"
)

const redisKeyPrefix = "session:"

// RedisStore is the production Store. Sessions are stored as JSON under
// session:<threadID> with the TTL set on every write, so expiry is enforced
// by Redis itself.
type RedisStore struct {
	client *backend.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: backend.NewClient(&backend.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// NewRedisStoreFromClient wraps an existing client, used by tests.
func NewRedisStoreFromClient(client *backend.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(threadID string) string {
	return redisKeyPrefix + threadID
}

func (s *RedisStore) Get(ctx context.Context, threadID string) (*models.Session, bool, error) {
	val, err := s.client.Get(ctx, s.key(threadID)).Result()
	if err == backend.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal session %q: %w", threadID, err)
	}
	return &sess, true, nil
}

func (s *RedisStore) Put(ctx context.Context, threadID string, sess *models.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session %q: %w", threadID, err)
	}
	if err := s.client.Set(ctx, s.key(threadID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, s.key(threadID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
