package runs

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore 让多个实例共享最近一次运行记录。
type RedisStore struct {
	key    string
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = "croncounter:last-run"
	}
	return &RedisStore{key: key, client: client}
}

func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Last(ctx context.Context) (*Record, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &rec, nil
}
