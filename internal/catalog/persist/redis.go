package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/materialmap/internal/catalog/materials"
)

const DefaultRedisPrefix = "materialmap"

// RedisStore keeps the cached dataset as a JSON string and the validator
// pair as a hash. It does not own the client.
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore stores under "<prefix>:cache:<key>". A zero ttl keeps
// entries until they are cleared.
func NewRedisStore(rdb *goredis.Client, prefix string, ttl time.Duration) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

func (s *RedisStore) cacheKey(key string) string { return s.prefix + ":cache:" + key }
func (s *RedisStore) versionKey() string         { return s.prefix + ":version" }

func (s *RedisStore) Get(ctx context.Context, key string) (*materials.Dataset, error) {
	raw, err := s.rdb.Get(ctx, s.cacheKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var ds materials.Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("decode cached dataset: %w", err)
	}
	return &ds, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, ds *materials.Dataset) error {
	raw, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if err := s.rdb.Set(ctx, s.cacheKey(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadValidators(ctx context.Context) (materials.Validators, error) {
	vals, err := s.rdb.HGetAll(ctx, s.versionKey()).Result()
	if err != nil {
		return materials.Validators{}, fmt.Errorf("redis hgetall: %w", err)
	}
	return materials.Validators{LastModified: vals["lastModified"], ETag: vals["etag"]}, nil
}

func (s *RedisStore) SaveValidators(ctx context.Context, v materials.Validators) error {
	err := s.rdb.HSet(ctx, s.versionKey(), "lastModified", v.LastModified, "etag", v.ETag).Err()
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return nil }
