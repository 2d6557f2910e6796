// Package kvstore is the durable key-value backing for computed cache
// entries. Semantics are last-writer-wins per key; no transactions.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/finwatch/portfolio-engine/config"
	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/finwatch/portfolio-engine/utils"
	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisStore(redisClient *redis.Client, cfg *config.Config) *RedisStore {
	return &RedisStore{redis: redisClient, cfg: cfg}
}

func (r *RedisStore) Get(ctx context.Context, key string) (model.CacheEntry, bool, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("RedisStore.Get start", slog.String("rqID", rqID), slog.String("key", key))

	res, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.CacheEntry{}, false, nil
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return model.CacheEntry{}, false, err
	}

	entry := model.CacheEntry{}
	err = json.Unmarshal([]byte(res), &entry)
	if err != nil {
		slog.Error(
			"can't unmarshall cache entry in RedisStore.Get",
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
			slog.String("resultFromRedis", res),
		)
		return model.CacheEntry{}, false, errors.New("can't unmarshall cache entry")
	}

	slog.Debug("RedisStore.Get finished", slog.String("rqID", rqID))

	return entry, true, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, entry model.CacheEntry) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("RedisStore.Put start", slog.String("rqID", rqID), slog.String("key", key))

	entryJson, err := json.Marshal(entry)
	if err != nil {
		slog.Error(
			"can't marshall cache entry in RedisStore.Put",
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
			slog.Any("entry", entry),
		)
		return errors.New("can't marshall cache entry")
	}

	err = r.redis.Set(ctx, key, entryJson, r.cfg.Cache.EntryExpiration).Err()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}

	slog.Debug("RedisStore.Put finished", slog.String("rqID", rqID))

	return nil
}

// BulkUpsert writes all entries through a single pipeline. Used by the
// periodic cache flush job.
func (r *RedisStore) BulkUpsert(ctx context.Context, entries map[string]model.CacheEntry) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("RedisStore.BulkUpsert start", slog.String("rqID", rqID), slog.Int("count", len(entries)))

	pipe := r.redis.Pipeline()
	for key, entry := range entries {
		entryJson, err := json.Marshal(entry)
		if err != nil {
			slog.Error(
				"can't marshall cache entry in BulkUpsert",
				slog.String("rqID", rqID),
				slog.String("err", err.Error()),
				slog.String("key", key),
			)
			return errors.New("can't marshall cache entry")
		}

		pipe.Set(ctx, key, entryJson, r.cfg.Cache.EntryExpiration)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("failed on pipe.Exec", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("RedisStore.BulkUpsert completed", slog.String("rqID", rqID))

	return nil
}

// GetRange returns every persisted entry under keyPrefix computed inside
// [from, to]. A zero bound is open.
func (r *RedisStore) GetRange(ctx context.Context, keyPrefix string, from, to time.Time) (map[string]model.CacheEntry, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("RedisStore.GetRange start", slog.String("rqID", rqID), slog.String("keyPrefix", keyPrefix))

	entries := make(map[string]model.CacheEntry)

	iter := r.redis.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		entry, found, err := r.Get(ctx, key)
		if err != nil || !found {
			continue
		}

		if !from.IsZero() && entry.ComputedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.ComputedAt.After(to) {
			continue
		}

		entries[key] = entry
	}
	if err := iter.Err(); err != nil {
		slog.Error("failed on redis scan", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return nil, err
	}

	slog.Debug("RedisStore.GetRange completed", slog.String("rqID", rqID), slog.Int("count", len(entries)))

	return entries, nil
}
