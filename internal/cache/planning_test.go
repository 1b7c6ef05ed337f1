package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paiban/busplan/pkg/model"
	"github.com/paiban/busplan/pkg/stats"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	from, to := model.MustParseDate("2024-02-18"), model.MustParseDate("2024-04-20")
	assert.Equal(t, "busplan:planning:v0:2024-02-18:2024-04-20", Key(0, from, to))
	assert.Equal(t, "busplan:planning:v3:2024-02-18:2024-04-20", Key(3, from, to))
	assert.False(t, strings.HasPrefix(genKey, keyPrefix))
}

func TestPlanningCache_Disabled(t *testing.T) {
	ctx := context.Background()
	from, to := model.MustParseDate("2024-02-18"), model.MustParseDate("2024-04-20")

	caches := map[string]*PlanningCache{
		"nil":       nil,
		"no client": NewPlanningCache(nil, time.Minute),
		"zero ttl":  NewPlanningCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), 0),
	}

	for name, c := range caches {
		t.Run(name, func(t *testing.T) {
			assert.False(t, c.Enabled())

			_, _, err := c.Get(ctx, from, to)
			assert.ErrorIs(t, err, ErrMiss)
			assert.NoError(t, c.Set(ctx, 0, from, to, []stats.DailyPlanningStatus{{Date: from}}))
			assert.NoError(t, c.Invalidate(ctx))
		})
	}
}

func TestPlanningCache_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewPlanningCache(client, time.Minute)
	require.True(t, c.Enabled())

	ctx := context.Background()
	from, to := model.MustParseDate("2024-02-18"), model.MustParseDate("2024-04-20")

	_, _, err := c.Get(ctx, from, to)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
	assert.Error(t, c.Set(ctx, 0, from, to, nil))
	assert.Error(t, c.Invalidate(ctx))
}

// memoryRedis 内存版 Redis，只实现规划缓存用到的命令
type memoryRedis struct {
	redis.UniversalClient
	mu   sync.Mutex
	data map[string]string
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: make(map[string]string)}
}

func (m *memoryRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	_, _ = fmt.Sscan(m.data[key], &n)
	n++
	m.data[key] = fmt.Sprint(n)
	return redis.NewIntResult(n, nil)
}

func (m *memoryRedis) Scan(_ context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return redis.NewScanCmdResult(keys, 0, nil)
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memoryRedis) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func TestPlanningCache_Generation(t *testing.T) {
	ctx := context.Background()
	from, to := model.MustParseDate("2024-02-18"), model.MustParseDate("2024-04-20")
	days := []stats.DailyPlanningStatus{{Date: from, TotalShifts: 3, AssignedShifts: 1}}

	t.Run("命中与失效", func(t *testing.T) {
		store := newMemoryRedis()
		c := NewPlanningCache(store, time.Minute)

		_, gen, err := c.Get(ctx, from, to)
		require.ErrorIs(t, err, ErrMiss)
		assert.Equal(t, int64(0), gen)
		require.NoError(t, c.Set(ctx, gen, from, to, days))

		got, _, err := c.Get(ctx, from, to)
		require.NoError(t, err)
		assert.Equal(t, days, got)

		require.NoError(t, c.Invalidate(ctx))
		assert.False(t, store.has(Key(0, from, to)))
		assert.True(t, store.has(genKey))

		_, gen, err = c.Get(ctx, from, to)
		assert.ErrorIs(t, err, ErrMiss)
		assert.Equal(t, int64(1), gen)
	})

	t.Run("计算期间失效则不写回", func(t *testing.T) {
		store := newMemoryRedis()
		c := NewPlanningCache(store, time.Minute)

		_, gen, err := c.Get(ctx, from, to)
		require.ErrorIs(t, err, ErrMiss)

		// 读取数据后、写回之前发生了一次排班变更
		require.NoError(t, c.Invalidate(ctx))
		require.NoError(t, c.Set(ctx, gen, from, to, days))

		assert.False(t, store.has(Key(gen, from, to)))
		_, _, err = c.Get(ctx, from, to)
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("旧代的写入不会被读取", func(t *testing.T) {
		store := newMemoryRedis()
		c := NewPlanningCache(store, time.Minute)

		require.NoError(t, c.Invalidate(ctx))
		_, err := store.Set(ctx, Key(0, from, to), []byte(`[{"date":"2024-02-18"}]`), time.Minute).Result()
		require.NoError(t, err)

		_, gen, err := c.Get(ctx, from, to)
		assert.ErrorIs(t, err, ErrMiss)
		assert.Equal(t, int64(1), gen)
	})
}
