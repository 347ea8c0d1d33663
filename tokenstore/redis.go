package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ray-remotestate/restroclient/utils"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares one credential between client processes on the same
// kiosk or terminal host.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore stores the token under key. Keys expire with the token's exp
// claim; ttl, when non-zero, caps that and applies to tokens without one.
func NewRedisStore(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

func (r *RedisStore) Save(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return r.Clear(ctx)
	}
	ttl := r.ttl
	if exp, err := utils.TokenExpiry(token); err == nil {
		left := time.Until(exp)
		if left <= 0 {
			return r.Clear(ctx)
		}
		if ttl == 0 || left < ttl {
			ttl = left
		}
	}
	if err := r.client.Set(ctx, r.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context) (string, bool, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}

	token = strings.TrimSpace(token)
	return token, token != "", nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
