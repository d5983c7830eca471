package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores resolved slot lists for future dates. Entries are keyed by a
// per venue/date version, so Invalidate makes every older entry unreachable.
type Cache interface {
	Get(ctx context.Context, key CacheKey) ([]SlotView, bool)
	Put(ctx context.Context, key CacheKey, slots []SlotView)
	Invalidate(ctx context.Context, venueID, date string)
}

// CacheKey carries the party size as well as the tier because minimum spend
// fees scale with the party.
type CacheKey struct {
	VenueID   string
	Date      string
	Tier      int
	PartySize int
	From      int
	To        int
}

type noCache struct{}

func (noCache) Get(context.Context, CacheKey) ([]SlotView, bool) { return nil, false }
func (noCache) Put(context.Context, CacheKey, []SlotView) {}
func (noCache) Invalidate(context.Context, string, string) {}

// NoCache disables caching.
var NoCache Cache = noCache{}

type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: "avail", logger: logger}
}

func (c *RedisCache) versionKey(venueID, date string) string {
	return fmt.Sprintf("%s:ver:%s:%s", c.prefix, venueID, date)
}

func (c *RedisCache) dataKey(ctx context.Context, k CacheKey) (string, error) {
	ver, err := c.rdb.Get(ctx, c.versionKey(k.VenueID, k.Date)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s:%s:%s:v%d:t%d:p%d:%d-%d", c.prefix, k.VenueID, k.Date, ver, k.Tier, k.PartySize, k.From, k.To), nil
}

func (c *RedisCache) Get(ctx context.Context, k CacheKey) ([]SlotView, bool) {
	key, err := c.dataKey(ctx, k)
	if err != nil {
		c.logger.Warn("availability cache read failed", "err", err)
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("availability cache read failed", "err", err)
		}
		return nil, false
	}
	var slots []SlotView
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false
	}
	return slots, true
}

func (c *RedisCache) Put(ctx context.Context, k CacheKey, slots []SlotView) {
	key, err := c.dataKey(ctx, k)
	if err != nil {
		c.logger.Warn("availability cache write failed", "err", err)
		return
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write failed", "err", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, venueID, date string) {
	key := c.versionKey(venueID, date)
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("availability cache invalidate failed", "venue_id", venueID, "date", date, "err", err)
	}
}

// ReadyCheck pings Redis.
func (c *RedisCache) ReadyCheck() func(context.Context) error {
	return func(ctx context.Context) error {
		return c.rdb.Ping(ctx).Err()
	}
}
