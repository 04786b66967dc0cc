package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fitQuestAPI/internal/achievement"
)

var (
	ErrMiss = errors.New("cache miss")
	// ErrStale is returned by Set when the user's entry was invalidated
	// after the caller read its version.
	ErrStale = errors.New("cache entry invalidated")
)

const minGenerationTTL = 24 * time.Hour

// AchievementCache stores the per-user achievements projection in Redis.
type AchievementCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewAchievementCache(ctx context.Context, addr, password string, ttl time.Duration, logger *zap.Logger) (*AchievementCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("redis_connection_failed", zap.Error(err), zap.String("addr", addr))
		_ = client.Close()
		return nil, err
	}
	logger.Info("redis_connected", zap.String("addr", addr))

	return &AchievementCache{client: client, ttl: ttl, logger: logger}, nil
}

func Key(userID uuid.UUID) string {
	return "fitquest:achievements:" + userID.String()
}

func (c *AchievementCache) Get(ctx context.Context, userID uuid.UUID) ([]achievement.AchievementWithStatus, error) {
	val, err := c.client.Get(ctx, Key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	} else if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}

	var items []achievement.AchievementWithStatus
	if err := json.Unmarshal(val, &items); err != nil {
		return nil, fmt.Errorf("cache unmarshal failed: %w", err)
	}
	return items, nil
}

func generationKey(userID uuid.UUID) string {
	return Key(userID) + ":gen"
}

// Version returns the user's invalidation generation. Read it before loading
// the data to be cached and pass it to Set.
func (c *AchievementCache) Version(ctx context.Context, userID uuid.UUID) (int64, error) {
	v, err := c.client.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("cache version failed: %w", err)
	}
	return v, nil
}

// Set stores items only while the generation still equals version.
func (c *AchievementCache) Set(ctx context.Context, userID uuid.UUID, version int64, items []achievement.AchievementWithStatus) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	genKey := generationKey(userID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, Key(userID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrStale
	}
	return err
}

// Invalidate drops the entry and bumps the generation so in-flight Sets
// holding an older version are discarded.
func (c *AchievementCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	genKey := generationKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, max(minGenerationTTL, 2*c.ttl))
		pipe.Del(ctx, Key(userID))
		return nil
	})
	return err
}

func (c *AchievementCache) Close() error {
	return c.client.Close()
}
