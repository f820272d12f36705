package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "enricher:"
	redisOpTimeout     = 3 * time.Second
)

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// redisStore shares the checkpoint between several enricher instances.
type redisStore struct {
	client     *redis.Client
	prefix     string
	contactTTL time.Duration
}

func openRedis(opts Options) (*redisStore, error) {
	ro := opts.Redis
	if strings.TrimSpace(ro.Addr) == "" {
		return nil, fmt.Errorf("redis storage requires an address")
	}
	prefix := ro.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     ro.Addr,
		Password: ro.Password,
		DB:       ro.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", ro.Addr, err)
	}

	return &redisStore{client: client, prefix: prefix, contactTTL: opts.ContactTTL}, nil
}

func (r *redisStore) contactKey(key string) string  { return r.prefix + "contact:" + key }
func (r *redisStore) cursorKey(scope string) string { return r.prefix + "cursor:" + scope }

func (r *redisStore) Close() error { return r.client.Close() }

// Seen relies on redis key expiry for the TTL.
func (r *redisStore) Seen(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	n, err := r.client.Exists(ctx, r.contactKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *redisStore) Mark(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.client.Set(ctx, r.contactKey(key), time.Now().UTC().Unix(), r.contactTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *redisStore) Cursor(scope string) (int, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	start, err := r.client.Get(ctx, r.cursorKey(scope)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get cursor: %w", err)
	}
	return start, true, nil
}

func (r *redisStore) SaveCursor(scope string, start int) error {
	if start < 0 {
		return fmt.Errorf("cursor must not be negative: %d", start)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.client.Set(ctx, r.cursorKey(scope), start, 0).Err(); err != nil {
		return fmt.Errorf("redis set cursor: %w", err)
	}
	return nil
}

func (r *redisStore) ClearCursor(scope string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.client.Del(ctx, r.cursorKey(scope)).Err(); err != nil {
		return fmt.Errorf("redis del cursor: %w", err)
	}
	return nil
}
