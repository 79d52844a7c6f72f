package testutil

import (
	"Cabinet/utils"
	"context"
	"encoding/json"
	"path"
	"strings"
	"sync"
	"time"
)

// MemoryCache is an in-process utils.Cache. BeforeListSet, when set, runs
// once right before the next listing is stored.
type MemoryCache struct {
	mu            sync.Mutex
	data          map[string][]byte
	BeforeListSet func()
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: map[string][]byte{}}
}

// Install makes c the active list cache until the test ends.
func (c *MemoryCache) Install(t interface{ Cleanup(func()) }) {
	utils.SetCache(c)
	t.Cleanup(func() { utils.SetCache(nil) })
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	b, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return utils.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if strings.Contains(key, ":list:") && !strings.HasPrefix(key, utils.CacheKeyUserListGen) {
		c.mu.Lock()
		hook := c.BeforeListSet
		c.BeforeListSet = nil
		c.mu.Unlock()
		if hook != nil {
			hook()
		}
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[key] = b
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.data, key)
		}
	}
	return nil
}
