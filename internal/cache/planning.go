// Package cache 提供规划进度的 Redis 缓存
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paiban/busplan/internal/config"
	"github.com/paiban/busplan/pkg/model"
	"github.com/paiban/busplan/pkg/stats"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "busplan:planning:"
	genKey    = "busplan:planning-gen" // 不匹配 keyPrefix*，清理时不会被删除
)

// ErrMiss 缓存未命中
var ErrMiss = errors.New("cache miss")

// NewRedis 创建 Redis 客户端并检查连通性
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}
	return client, nil
}

// PlanningCache 规划进度缓存，client 为 nil 时所有操作都是空操作
type PlanningCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewPlanningCache 创建规划进度缓存
func NewPlanningCache(client redis.UniversalClient, ttl time.Duration) *PlanningCache {
	return &PlanningCache{client: client, ttl: ttl}
}

// Enabled 是否启用
func (c *PlanningCache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Key 规划窗口在某一代下的缓存键
func Key(gen int64, from, to model.Date) string {
	return fmt.Sprintf("%sv%d:%s:%s", keyPrefix, gen, from, to)
}

// Generation 当前缓存代数，每次 Invalidate 加一，尚未失效过时为 0
func (c *PlanningCache) Generation(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	gen, err := c.client.Get(ctx, genKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("读取规划缓存代数失败: %w", err)
	}
	return gen, nil
}

// Get 读取当前代的规划进度，同时返回读取时的代数供 Set 使用；未命中返回 ErrMiss
func (c *PlanningCache) Get(ctx context.Context, from, to model.Date) ([]stats.DailyPlanningStatus, int64, error) {
	if !c.Enabled() {
		return nil, 0, ErrMiss
	}

	gen, err := c.Generation(ctx)
	if err != nil {
		return nil, 0, err
	}

	data, err := c.client.Get(ctx, Key(gen, from, to)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, gen, ErrMiss
		}
		return nil, gen, fmt.Errorf("读取规划进度缓存失败: %w", err)
	}

	var days []stats.DailyPlanningStatus
	if err := json.Unmarshal(data, &days); err != nil {
		return nil, gen, fmt.Errorf("解析规划进度缓存失败: %w", err)
	}
	return days, gen, nil
}

// Set 按读取时的代数写入规划进度；期间发生过 Invalidate 时放弃写入。
// 检查与写入之间的竞争只会写到旧代的键上，该键不再被读取并随 TTL 过期。
func (c *PlanningCache) Set(ctx context.Context, gen int64, from, to model.Date, days []stats.DailyPlanningStatus) error {
	if !c.Enabled() {
		return nil
	}

	current, err := c.Generation(ctx)
	if err != nil {
		return err
	}
	if current != gen {
		return nil
	}

	data, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("序列化规划进度失败: %w", err)
	}
	if err := c.client.Set(ctx, Key(gen, from, to), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("写入规划进度缓存失败: %w", err)
	}
	return nil
}

// Invalidate 使所有规划进度缓存失效（排班或线路变更后调用）：先推进代数，再清理旧键
func (c *PlanningCache) Invalidate(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}

	if err := c.client.Incr(ctx, genKey).Err(); err != nil {
		return fmt.Errorf("推进规划缓存代数失败: %w", err)
	}

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("扫描规划进度缓存失败: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("删除规划进度缓存失败: %w", err)
	}
	return nil
}
