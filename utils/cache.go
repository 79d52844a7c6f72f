package utils

import (
	"Cabinet/internal/repo"
	"Cabinet/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis cache client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
	}
}

// Get reads a cached value.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

// Set writes a cached value.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, string(data), expiration).Err()
}

// Delete removes a cache entry.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// DeleteByPattern deletes cache entries by pattern.
func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return nil
}

type CacheManager struct {
	cache Cache
}

var (
	globalCacheManager *CacheManager
	cacheManagerMu     sync.Mutex
)

// InitCacheManager wires the list cache to Redis when a client is available.
func InitCacheManager() {
	cacheManagerMu.Lock()
	defer cacheManagerMu.Unlock()
	if repo.Redis == nil {
		globalCacheManager = nil
		return
	}
	globalCacheManager = &CacheManager{cache: NewRedisCache(repo.Redis)}
}

// SetCache replaces the backing cache; nil disables caching.
func SetCache(c Cache) {
	cacheManagerMu.Lock()
	defer cacheManagerMu.Unlock()
	if c == nil {
		globalCacheManager = nil
		return
	}
	globalCacheManager = &CacheManager{cache: c}
}

// GetCacheManager returns the cache manager, or nil when caching is disabled.
func GetCacheManager() *CacheManager {
	cacheManagerMu.Lock()
	defer cacheManagerMu.Unlock()
	return globalCacheManager
}

// BuildCacheKey builds a cache key.
func BuildCacheKey(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key += fmt.Sprintf(":%v", param)
	}
	return key
}

const (
	CacheKeyUserFileList   = "user:file:list"
	CacheKeyUserFolderList = "user:folder:list"
	CacheKeyUserListGen    = "user:list:gen"
)

// parentCacheParam renders the listing filter: "all", "root" or the folder id.
func parentCacheParam(parentID *uint64) string {
	if parentID == nil {
		return "all"
	}
	if *parentID == 0 {
		return "root"
	}
	return fmt.Sprintf("%d", *parentID)
}

// listGeneration reads the token every cached listing of a user is keyed by.
// An empty token means the cache is unusable and nothing may be written.
func listGeneration(ctx context.Context, manager *CacheManager, userID uint64) string {
	var gen string
	err := manager.cache.Get(ctx, BuildCacheKey(CacheKeyUserListGen, userID), &gen)
	if errors.Is(err, ErrCacheMiss) {
		return "0"
	}
	if err != nil || gen == "" {
		return ""
	}
	return gen
}

func listKey(prefix string, userID uint64, gen string, parentID *uint64) string {
	return BuildCacheKey(prefix, userID, gen, parentCacheParam(parentID))
}

// GetUserFileListFromCache reads a cached file listing. The returned generation
// must be handed to SetUserFileListToCache, so a listing read before an
// invalidation is stored under a key nobody reads anymore.
func GetUserFileListFromCache(ctx context.Context, userID uint64, parentID *uint64) ([]model.UserFile, string, bool) {
	manager := GetCacheManager()
	if manager == nil {
		return nil, "", false
	}
	gen := listGeneration(ctx, manager, userID)
	if gen == "" {
		return nil, "", false
	}
	var result []model.UserFile
	if err := manager.cache.Get(ctx, listKey(CacheKeyUserFileList, userID, gen, parentID), &result); err != nil {
		return nil, gen, false
	}
	return result, gen, true
}

// SetUserFileListToCache writes a cached file listing read under gen.
func SetUserFileListToCache(ctx context.Context, userID uint64, gen string, parentID *uint64, files []model.UserFile, expiration time.Duration) error {
	manager := GetCacheManager()
	if manager == nil || gen == "" {
		return nil
	}
	return manager.cache.Set(ctx, listKey(CacheKeyUserFileList, userID, gen, parentID), files, expiration)
}

// GetUserFolderListFromCache reads a cached folder listing, see GetUserFileListFromCache.
func GetUserFolderListFromCache(ctx context.Context, userID uint64, parentID *uint64) ([]model.Folder, string, bool) {
	manager := GetCacheManager()
	if manager == nil {
		return nil, "", false
	}
	gen := listGeneration(ctx, manager, userID)
	if gen == "" {
		return nil, "", false
	}
	var result []model.Folder
	if err := manager.cache.Get(ctx, listKey(CacheKeyUserFolderList, userID, gen, parentID), &result); err != nil {
		return nil, gen, false
	}
	return result, gen, true
}

// SetUserFolderListToCache writes a cached folder listing read under gen.
func SetUserFolderListToCache(ctx context.Context, userID uint64, gen string, parentID *uint64, folders []model.Folder, expiration time.Duration) error {
	manager := GetCacheManager()
	if manager == nil || gen == "" {
		return nil
	}
	return manager.cache.Set(ctx, listKey(CacheKeyUserFolderList, userID, gen, parentID), folders, expiration)
}

// InvalidateUserListCache moves a user to a fresh listing generation and drops
// the listings of older ones. A single mutation can change the "all" view as
// well as one or two folder views.
func InvalidateUserListCache(ctx context.Context, userID uint64) error {
	manager := GetCacheManager()
	if manager == nil {
		return nil
	}
	if err := manager.cache.Set(ctx, BuildCacheKey(CacheKeyUserListGen, userID), uuid.NewString(), 0); err != nil {
		return err
	}
	if err := manager.cache.DeleteByPattern(ctx, BuildCacheKey(CacheKeyUserFileList, userID)+":*"); err != nil {
		return err
	}
	return manager.cache.DeleteByPattern(ctx, BuildCacheKey(CacheKeyUserFolderList, userID)+":*")
}
