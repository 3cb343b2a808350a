package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/internal/repository"
	"github.com/d60-Lab/unveil/pkg/logger"
)

// ProfileSnapshot contains the public profile fields shown next to a
// conversation. Photo gating is applied on top of it per viewer.
type ProfileSnapshot struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	Age         int    `json:"age"`
	PhotoURL    string `json:"photo_url"`
}

func snapshotOf(u *model.User) ProfileSnapshot {
	return ProfileSnapshot{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Bio:         u.Bio,
		Age:         u.Age,
		PhotoURL:    u.PhotoURL,
	}
}

// ProfileCache is a cache-aside reader for participant profiles: MGET from
// redis, bulk-load the misses from the database, write them back with a TTL.
// A nil redis client turns it into a plain database reader.
type ProfileCache struct {
	users repository.UserRepository
	cache *redis.Client
	ttl   time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	bulkLoads atomic.Int64
}

func NewProfileCache(users repository.UserRepository, cache *redis.Client, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ProfileCache{users: users, cache: cache, ttl: ttl}
}

func profileKey(id string) string { return fmt.Sprintf("profile:%s", id) }

// Load returns snapshots keyed by user id; unknown ids are absent.
func (s *ProfileCache) Load(ctx context.Context, ids []string) (map[string]ProfileSnapshot, error) {
	result := make(map[string]ProfileSnapshot, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	if s.cache != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = profileKey(id)
		}
		vals, err := s.cache.MGet(ctx, keys...).Result()
		if err != nil {
			// 缓存不可用时退化为直接读库
			logger.Warn("profile cache mget failed", zap.Error(err))
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var snap ProfileSnapshot
			if uErr := json.Unmarshal([]byte(str), &snap); uErr == nil {
				result[ids[i]] = snap
			}
		}
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			missing = append(missing, id)
		}
	}
	s.hits.Add(int64(len(ids) - len(missing)))
	s.misses.Add(int64(len(missing)))
	if len(missing) == 0 {
		return result, nil
	}

	s.bulkLoads.Add(1)
	users, err := s.users.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	var pipe redis.Pipeliner
	if s.cache != nil {
		pipe = s.cache.Pipeline()
	}
	queued := 0
	for _, u := range users {
		snap := snapshotOf(u)
		result[u.ID] = snap
		if pipe == nil {
			continue
		}
		if payload, err := json.Marshal(snap); err == nil {
			pipe.Set(ctx, profileKey(u.ID), payload, s.ttl)
			queued++
		}
	}
	if queued > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("profile cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// Invalidate drops a cached profile after it changes.
func (s *ProfileCache) Invalidate(ctx context.Context, id string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, profileKey(id)).Err()
}

// ProfileCacheCounters summarises cache behaviour since the last reset.
type ProfileCacheCounters struct {
	Hits      int64
	Misses    int64
	BulkLoads int64
}

func (s *ProfileCache) Counters() ProfileCacheCounters {
	return ProfileCacheCounters{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		BulkLoads: s.bulkLoads.Load(),
	}
}

func (s *ProfileCache) ResetCounters() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.bulkLoads.Store(0)
}
