package cache

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// DefaultRedisPrefix namespaces cache keys when none is configured.
const DefaultRedisPrefix = "sanction-watch:cache:"

// RedisClient is the command subset the Redis persister needs. *redis.Client
// implements it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Close() error
}

// Redis persists each entry under prefix+sourceID and tracks keys in a set.
// Entries carry no expiry: stale entries still serve as a fallback.
type Redis struct {
	client RedisClient
	prefix string
}

// NewRedis wraps client.
func NewRedis(client RedisClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// DialRedis connects to redisURL and pings it.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "redis: parse url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "redis: ping")
	}
	return client, nil
}

func (r *Redis) indexKey() string {
	return r.prefix + "index"
}

func (r *Redis) Load(ctx context.Context, sourceID string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.prefix+sourceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "redis: load %s", sourceID)
	}
	return b, true, nil
}

func (r *Redis) Save(ctx context.Context, sourceID string, payload []byte) error {
	if err := r.client.Set(ctx, r.prefix+sourceID, payload, 0).Err(); err != nil {
		return eris.Wrapf(err, "redis: save %s", sourceID)
	}
	return eris.Wrapf(r.client.SAdd(ctx, r.indexKey(), sourceID).Err(), "redis: index %s", sourceID)
}

func (r *Redis) Delete(ctx context.Context, sourceID string) error {
	if err := r.client.Del(ctx, r.prefix+sourceID).Err(); err != nil {
		return eris.Wrapf(err, "redis: delete %s", sourceID)
	}
	return eris.Wrapf(r.client.SRem(ctx, r.indexKey(), sourceID).Err(), "redis: unindex %s", sourceID)
}

func (r *Redis) List(ctx context.Context) ([]string, error) {
	keys, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: list")
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
