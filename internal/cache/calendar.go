// Package cache 提供基于 Redis 的读缓存
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/logger"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
	"github.com/redis/go-redis/v9"
)

// missing 缓存"当天没有日历记录"
const missing = "null"

// Client 用到的 Redis 命令
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CalendarCache 生产日历读穿缓存，实现 store.CalendarStore
//
// Redis 不可用时直接回源，不影响排班。
type CalendarCache struct {
	next   store.CalendarStore
	client Client
	ttl    time.Duration
}

// NewCalendarCache 创建日历缓存
func NewCalendarCache(next store.CalendarStore, client Client, ttl time.Duration) *CalendarCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CalendarCache{next: next, client: client, ttl: ttl}
}

// GetDay 实现 store.CalendarStore
func (c *CalendarCache) GetDay(ctx context.Context, tenantID uuid.UUID, date string) (*model.ProductionCalendar, error) {
	key := calendarKey(tenantID, date)

	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if raw == missing {
			return nil, nil
		}
		day := &model.ProductionCalendar{}
		if err := json.Unmarshal([]byte(raw), day); err == nil {
			return day, nil
		}
		logger.Warn().Str("key", key).Msg("日历缓存内容无效，回源查询")
	case errors.Is(err, redis.Nil):
	default:
		logger.Warn().Err(err).Str("key", key).Msg("读取日历缓存失败")
	}

	day, err := c.next.GetDay(ctx, tenantID, date)
	if err != nil {
		return nil, err
	}

	value := missing
	if day != nil {
		data, err := json.Marshal(day)
		if err != nil {
			return day, nil
		}
		value = string(data)
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("写入日历缓存失败")
	}
	return day, nil
}

// Invalidate 日历变更后删除缓存
func (c *CalendarCache) Invalidate(ctx context.Context, tenantID uuid.UUID, dates ...string) error {
	if len(dates) == 0 {
		return nil
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = calendarKey(tenantID, d)
	}
	return c.client.Del(ctx, keys...).Err()
}

func calendarKey(tenantID uuid.UUID, date string) string {
	return fmt.Sprintf("shiftplan:calendar:%s:%s", tenantID, date)
}
