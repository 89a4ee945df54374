package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// rateRetention bounds how long a stale rate lingers. Freshness is judged by
// readers from the stored timestamp, not by key expiry.
const rateRetention = time.Hour

// RateCache implements domain.RateCache using Redis hashes. Each rate lives
// at "rate:{key}" with fields "value" and "ts_ms" (Unix milliseconds).
type RateCache struct {
	c *Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{c: c}
}

// SetRate stores value observed at ts.
func (rc *RateCache) SetRate(ctx context.Context, key string, value float64, ts time.Time) error {
	k := rc.c.key("rate", key)
	_, err := rc.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, map[string]any{
			"value": strconv.FormatFloat(value, 'f', -1, 64),
			"ts_ms": strconv.FormatInt(ts.UnixMilli(), 10),
		})
		pipe.Expire(ctx, k, rateRetention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set rate %s: %w", key, err)
	}
	return nil
}

// GetRate returns the stored rate and its observation time, or
// domain.ErrNotFound.
func (rc *RateCache) GetRate(ctx context.Context, key string) (float64, time.Time, error) {
	vals, err := rc.c.rdb.HMGet(ctx, rc.c.key("rate", key), "value", "ts_ms").Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get rate %s: %w", key, err)
	}
	rawValue, ok1 := vals[0].(string)
	rawTS, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	value, err := strconv.ParseFloat(rawValue, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse rate %s: %w", key, err)
	}
	ms, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse rate ts %s: %w", key, err)
	}
	return value, time.UnixMilli(ms), nil
}

var _ domain.RateCache = (*RateCache)(nil)
