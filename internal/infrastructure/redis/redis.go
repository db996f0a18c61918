package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// windowSlack keeps a cached window around a little past the hunt's end so late
// joins still hit the fast-fail path.
const (
	windowSlack     = 24 * time.Hour
	defaultWindowTT = 24 * time.Hour
)

type Cache struct {
	Client *redis.Client
	now    func() time.Time
}

func New(addr, pass string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return NewWithClient(rdb)
}

func NewWithClient(rdb *redis.Client) *Cache {
	return &Cache{Client: rdb, now: time.Now}
}

var _ domain.CacheRepository = (*Cache)(nil)

func windowKey(eventID uuid.UUID) string {
	return "hunt:window:" + eventID.String()
}

func (c *Cache) GetEventWindow(ctx context.Context, eventID uuid.UUID) (domain.EventWindow, error) {
	val, err := c.Client.Get(ctx, windowKey(eventID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.EventWindow{}, domain.ErrCacheMiss
		}
		return domain.EventWindow{}, err
	}
	var w domain.EventWindow
	if err := json.Unmarshal(val, &w); err != nil {
		return domain.EventWindow{}, fmt.Errorf("decode event window: %w", err)
	}
	return w, nil
}

// SetEventWindow caches the window until a day after the hunt ends.
func (c *Cache) SetEventWindow(ctx context.Context, w domain.EventWindow) error {
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	ttl := defaultWindowTT
	if !w.EndTime.IsZero() {
		if until := w.EndTime.Add(windowSlack).Sub(c.now()); until > ttl {
			ttl = until
		}
	}
	return c.Client.Set(ctx, windowKey(w.EventID), b, ttl).Err()
}

// AllowRequest: Simple Fixed Window Rate Limit
func (c *Cache) AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	key = "ratelimit:" + key
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, err // fail open; caller logs
	}
	if count == 1 {
		_ = c.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}
