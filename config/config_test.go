package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_PATH", "/srv/cabinet")
	t.Setenv("APP_BASE_URL", "https://files.example.com/")
	t.Setenv("DERIVATIVE_RETRY_DELAYS", "1s, 2s")
	t.Setenv("MAX_FOLDER_DEPTH", "not-a-number")
	t.Setenv("REDIS_ENABLED", "yes")

	InitConfig()
	require.NoError(t, Validate())
	assert.Equal(t, "/srv/cabinet/cabinet.db", AppConfig.DBPath)
	assert.Equal(t, "https://files.example.com", AppConfig.PublicBaseURL)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, AppConfig.DerivativeRetryDelays)
	assert.Equal(t, 64, AppConfig.MaxFolderDepth)
	assert.True(t, AppConfig.RedisEnabled)
	assert.Equal(t, int64(268402689), AppConfig.ThumbnailMaxPixels)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("DERIVATIVE_MODE", "carrier-pigeon")
	InitConfig()
	assert.Error(t, Validate())

	t.Setenv("DERIVATIVE_MODE", "queue")
	t.Setenv("DB_DRIVER", "postgres")
	InitConfig()
	assert.Error(t, Validate())
}
