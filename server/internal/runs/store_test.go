package runs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(prev int64) *Record {
	return &Record{
		RunID:         uuid.NewString(),
		Outcome:       OutcomeSuccess,
		PreviousCount: prev,
		NewCount:      prev + 1,
		StartedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Duration:      "12ms",
	}
}

// exerciseStore 是两种实现共用的契约测试。
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Last(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	first := sampleRecord(41)
	require.NoError(t, s.Save(ctx, first))
	second := sampleRecord(42)
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.RunID, got.RunID)
	assert.Equal(t, int64(43), got.NewCount)
	assert.True(t, second.StartedAt.Equal(got.StartedAt))
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

// TestInMemoryStoreReturnsCopy 验证调用方修改返回值不会影响内部状态。
func TestInMemoryStoreReturnsCopy(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	rec := sampleRecord(1)
	require.NoError(t, s.Save(ctx, rec))
	rec.Outcome = OutcomeError

	got, err := s.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, got.Outcome)

	got.Outcome = OutcomeConflict
	again, err := s.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, again.Outcome)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	cl := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer cl.Close()

	key := "croncounter:test:" + uuid.NewString()
	defer cl.Del(context.Background(), key)

	exerciseStore(t, NewRedisStore(cl, key))
}
