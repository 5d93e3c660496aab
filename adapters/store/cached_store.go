package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/ports"
)

// DefaultCacheTTL bounds how long a cached API key record may lag the store
const DefaultCacheTTL = 30 * time.Second

// RedisClient is the minimal Redis surface needed for caching
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedStore puts a Redis read-through cache in front of API key lookups.
// Every other operation goes straight to the wrapped store.
type CachedStore struct {
	ports.Store
	client RedisClient
	prefix string
	ttl    time.Duration
}

var _ ports.Store = (*CachedStore)(nil)

// NewCachedStore wraps store with a Redis cache
func NewCachedStore(store ports.Store, client RedisClient, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		Store:  store,
		client: client,
		prefix: "keyvault:apikey:hash:",
		ttl:    ttl,
	}
}

// GetAPIKeyByHash serves the record from Redis when present. Cache errors
// degrade to a store read; they never fail the lookup.
func (s *CachedStore) GetAPIKeyByHash(ctx context.Context, hash string) (*core.APIKey, error) {
	key := s.prefix + hash

	raw, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached core.APIKey
		if err := json.Unmarshal(raw, &cached); err == nil {
			log.Debugf("api key cache hit for %s", cached.ID)
			return &cached, nil
		}
		log.Warnf("discarding undecodable cache entry: %v", err)
	case !errors.Is(err, redis.Nil):
		log.Warnf("api key cache read failed: %v", err)
	}

	record, err := s.Store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		log.Warnf("failed to marshal api key for cache: %v", err)
		return record, nil
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		log.Warnf("failed to cache api key: %v", err)
	}
	return record, nil
}

// InsertAPIKey drops any stale entry for the hash before inserting
func (s *CachedStore) InsertAPIKey(ctx context.Context, k *core.APIKey) error {
	if err := s.client.Del(ctx, s.prefix+k.Hash).Err(); err != nil {
		log.Warnf("failed to invalidate api key cache: %v", err)
	}
	return s.Store.InsertAPIKey(ctx, k)
}
