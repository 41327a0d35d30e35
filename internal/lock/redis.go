package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultTTL   = 30 * time.Second
	defaultRetry = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired hold never releases someone else's.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry back while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker backed by SET NX with an expiry. The expiry is renewed
// every third of the TTL while the lock is held, so a holder that dies
// loses the key after at most one TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	renew  time.Duration
	log    zerolog.Logger
}

// Connect parses redisURL and checks the server answers.
func Connect(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func NewRedis(client *redis.Client, ttl time.Duration, log zerolog.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	renew := ttl / 3
	if renew <= 0 {
		renew = ttl
	}
	return &Redis{
		client: client,
		prefix: "publication:lock:",
		ttl:    ttl,
		retry:  defaultRetry,
		renew:  renew,
		log:    log,
	}
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := r.key(key)
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("lock %s: %w", key, ctxErr)
			}
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go r.keepAlive(key, redisKey, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				r.log.Warn().Err(err).Str("key", key).Msg("release lock")
			}
		})
	}, nil
}

func (r *Redis) keepAlive(key, redisKey, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(r.renew)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		renewed, err := renewScript.Run(ctx, r.client, []string{redisKey}, token, r.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			r.log.Warn().Err(err).Str("key", key).Msg("renew lock")
		case renewed == 0:
			r.log.Warn().Str("key", key).Msg("lock expired while held")
			return
		}
	}
}
