package utils

import (
	"Cabinet/config"
	"Cabinet/model"
	"context"
	"encoding/json"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	config.AppConfig.JWTSecret = "unit-secret"
	config.AppConfig.TokenTTL = time.Minute

	token, err := GenerateToken(7, "alice", true)
	require.NoError(t, err)
	claims, err := VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.UserId)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsAdmin)

	config.AppConfig.JWTSecret = "rotated"
	_, err = VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	config.AppConfig.JWTSecret = "unit-secret"
	config.AppConfig.TokenTTL = -time.Minute
	token, err := GenerateToken(1, "bob", false)
	require.NoError(t, err)
	_, err = VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHash(t *testing.T) {
	hash, err := GetPwd("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, CheckPwd("s3cret", hash))
	assert.False(t, CheckPwd("guess", hash))
}

func TestGenShareID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id, err := GenShareID()
		require.NoError(t, err)
		assert.Len(t, id, 8)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestCleanEntryName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":        "report.pdf",
		"  spaced.txt  ":    "spaced.txt",
		"../../etc/passwd":  "passwd",
		`C:\Users\me\a.txt`: "a.txt",
		"..":                "",
		"   ":               "",
		"bad\nname":         "badname",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanEntryName(in), in)
	}
	assert.Equal(t, "download", SanitizeHeaderFilename(" "))
	assert.Equal(t, "ab", SanitizeHeaderFilename("a\"\r\nb"))
}

// memoryCache is a Cache that supports the glob patterns DeleteByPattern uses.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.data, key)
		}
	}
	return nil
}

func TestListCache(t *testing.T) {
	cache := newMemoryCache()
	SetCache(cache)
	defer SetCache(nil)
	ctx := context.Background()
	root := uint64(0)
	folder := uint64(9)

	_, gen, ok := GetUserFileListFromCache(ctx, 1, nil)
	assert.False(t, ok)
	require.NotEmpty(t, gen)

	files := []model.UserFile{{ID: 1, Name: "a"}}
	require.NoError(t, SetUserFileListToCache(ctx, 1, gen, nil, files, time.Minute))
	require.NoError(t, SetUserFileListToCache(ctx, 1, gen, &root, files, time.Minute))
	require.NoError(t, SetUserFolderListToCache(ctx, 1, gen, &folder, []model.Folder{{ID: 3}}, time.Minute))
	_, gen2, _ := GetUserFileListFromCache(ctx, 2, nil)
	require.NoError(t, SetUserFileListToCache(ctx, 2, gen2, nil, files, time.Minute))

	got, _, ok := GetUserFileListFromCache(ctx, 1, &root)
	require.True(t, ok)
	assert.Equal(t, "a", got[0].Name)
	_, _, ok = GetUserFileListFromCache(ctx, 1, &folder)
	assert.False(t, ok)

	require.NoError(t, InvalidateUserListCache(ctx, 1))
	_, _, ok = GetUserFileListFromCache(ctx, 1, nil)
	assert.False(t, ok)
	_, _, ok = GetUserFolderListFromCache(ctx, 1, &folder)
	assert.False(t, ok)
	_, _, ok = GetUserFileListFromCache(ctx, 2, nil)
	assert.True(t, ok)
}

func TestListCacheStaleWriteAfterInvalidate(t *testing.T) {
	SetCache(newMemoryCache())
	defer SetCache(nil)
	ctx := context.Background()

	// A reader takes the generation, then a mutation invalidates before it stores.
	_, gen, ok := GetUserFileListFromCache(ctx, 1, nil)
	require.False(t, ok)
	require.NoError(t, InvalidateUserListCache(ctx, 1))
	require.NoError(t, SetUserFileListToCache(ctx, 1, gen, nil, []model.UserFile{{ID: 1}}, time.Minute))

	_, newGen, ok := GetUserFileListFromCache(ctx, 1, nil)
	assert.False(t, ok)
	assert.NotEqual(t, gen, newGen)
}

func TestCacheDisabled(t *testing.T) {
	SetCache(nil)
	ctx := context.Background()
	require.NoError(t, SetUserFileListToCache(ctx, 1, "0", nil, nil, time.Minute))
	_, gen, ok := GetUserFileListFromCache(ctx, 1, nil)
	assert.False(t, ok)
	assert.Empty(t, gen)
	assert.NoError(t, InvalidateUserListCache(ctx, 1))
}
