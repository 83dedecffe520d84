package runs

import (
	"context"

	"github.com/patrickmn/go-cache"
)

const lastKey = "last"

// InMemoryStore 是进程内实现：重启即丢失，多实例之间不共享。
type InMemoryStore struct {
	c *cache.Cache
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{c: cache.New(cache.NoExpiration, 0)}
}

func (s *InMemoryStore) Save(_ context.Context, rec *Record) error {
	cp := *rec
	s.c.Set(lastKey, &cp, cache.NoExpiration)
	return nil
}

func (s *InMemoryStore) Last(_ context.Context) (*Record, error) {
	v, ok := s.c.Get(lastKey)
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v.(*Record)
	return &cp, nil
}
