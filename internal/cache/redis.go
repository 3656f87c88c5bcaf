package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pharmacy-forecast/internal/model"
)

const scanBatch = 100

// RedisTier shares generated series between processes. Writes use SETNX so
// the first series stored for a key wins, matching the local write-once rule.
type RedisTier struct {
	rdb    *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisTier wraps a redis client.
func NewRedisTier(rdb *redis.Client, prefix string, logger zerolog.Logger) *RedisTier {
	if prefix == "" {
		prefix = "pharmaforecast:series"
	}
	return &RedisTier{rdb: rdb, prefix: prefix, logger: logger.With().Str("component", "series_cache_redis").Logger()}
}

func (r *RedisTier) redisKey(key Key) string {
	return r.prefix + ":" + key.String()
}

// Load fetches a series; a missing key is not an error.
func (r *RedisTier) Load(ctx context.Context, key Key) ([]model.DemandPoint, bool, error) {
	payload, err := r.rdb.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var series []model.DemandPoint
	if err := json.Unmarshal(payload, &series); err != nil {
		return nil, false, fmt.Errorf("decode cached series: %w", err)
	}
	return series, true, nil
}

// Store writes series if the key is absent.
func (r *RedisTier) Store(ctx context.Context, key Key, series []model.DemandPoint) error {
	payload, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}
	stored, err := r.rdb.SetNX(ctx, r.redisKey(key), payload, time.Duration(0)).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !stored {
		r.logger.Debug().Str("key", key.String()).Msg("series already present in shared tier")
	}
	return nil
}

// Delete removes one key.
func (r *RedisTier) Delete(ctx context.Context, key Key) error {
	if err := r.rdb.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Purge removes every key of a target.
func (r *RedisTier) Purge(ctx context.Context, targetType string, targetID int64) error {
	pattern := fmt.Sprintf("%s:%s:%d:*", r.prefix, targetType, targetID)

	var keys []string
	iter := r.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	r.logger.Debug().Str("pattern", pattern).Int("keys", len(keys)).Msg("purged shared tier")
	return nil
}

var _ Tier = (*RedisTier)(nil)
