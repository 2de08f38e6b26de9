package session

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/staff-profile/internal/config"
)

// RedisStore keeps the token under a single Redis key, for shared terminals and
// kiosks where the credential outlives one machine's home directory.
type RedisStore struct {
	Client *redis.Client
	key    string
}

// NewRedisStore connects to Redis using the provided configuration.
func NewRedisStore(cfg config.RedisConfig, key string, logger *zap.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Debug("connected to redis", zap.String("addr", cfg.Addr))
	}

	return &RedisStore{Client: client, key: key}
}

func (r *RedisStore) Load(ctx context.Context) (string, error) {
	if r == nil || r.Client == nil {
		return "", errors.New("redis client not configured")
	}
	token, err := r.Client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

func (r *RedisStore) Save(ctx context.Context, token string) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Set(ctx, r.key, strings.TrimSpace(token), 0).Err()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Del(ctx, r.key).Err()
}

// Ping verifies Redis connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}
