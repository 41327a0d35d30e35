package wfconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"publication/api/internal/document"
	"publication/api/internal/store"
)

const defaultCacheTTL = 10 * time.Minute

// Cache keeps resolved configurations in Redis in front of another
// resolver. Missing configurations are not cached. Redis failures fall back
// to the wrapped resolver.
type Cache struct {
	next   Resolver
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewCache(client *redis.Client, next Resolver, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{
		next:   next,
		client: client,
		prefix: "wfconfig:",
		ttl:    ttl,
		log:    log,
	}
}

func (c *Cache) key(ref document.Ref) string {
	return c.prefix + ref.String()
}

func (c *Cache) Resolve(ctx context.Context, ref string, relativeTo document.Ref) (*Config, error) {
	parsed := document.ParseRef(ref, relativeTo)
	if parsed.IsZero() {
		return nil, nil
	}
	key := c.key(parsed)

	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var cfg Config
		if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
			return &cfg, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding unreadable cached workflow config")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", key).Msg("workflow config cache unavailable")
	}

	cfg, err := c.next.Resolve(ctx, ref, relativeTo)
	if err != nil || cfg == nil {
		return cfg, err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow config: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache workflow config")
	}
	return cfg, nil
}

// Invalidate drops the cached configuration stored under ref.
func (c *Cache) Invalidate(ctx context.Context, ref document.Ref) error {
	if err := c.client.Del(ctx, c.key(ref)).Err(); err != nil {
		return fmt.Errorf("invalidate workflow config %s: %w", ref, err)
	}
	return nil
}

// DocumentSaved invalidates the saved document, including saves that drop
// its configuration object.
func (c *Cache) DocumentSaved(ctx context.Context, ev store.SaveEvent) {
	if err := c.Invalidate(ctx, ev.Document.Ref); err != nil {
		c.log.Warn().Err(err).Msg("workflow config cache")
	}
}

func (c *Cache) DocumentDeleted(ctx context.Context, ref document.Ref) {
	if err := c.Invalidate(ctx, ref); err != nil {
		c.log.Warn().Err(err).Msg("workflow config cache")
	}
}
