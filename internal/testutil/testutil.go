// Package testutil wires the global stores to throwaway SQLite and disk state.
package testutil

import (
	"Cabinet/config"
	"Cabinet/internal/logger"
	"Cabinet/internal/repo"
	"Cabinet/internal/storage"
	"Cabinet/utils"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Config returns a small configuration suitable for tests.
func Config(root string) config.Config {
	return config.Config{
		HTTPAddr:           ":0",
		JWTSecret:          "test-secret",
		TokenTTL:           time.Hour,
		StoragePath:        filepath.Join(root, "storage"),
		DefaultQuotaBytes:  1 << 20,
		MaxUploadBytes:     1 << 20,
		MaxFolderDepth:     8,
		DBDriver:           "sqlite",
		DBPath:             filepath.Join(root, "test.db"),
		DerivativeMode:     "local",
		DerivativeWorkers:  2,
		DerivativeBurst:    4,
		DerivativeTimeout:  30 * time.Second,
		ThumbnailSize:      16,
		ThumbnailMaxPixels: 1 << 24,
		FFmpegPath:         "ffmpeg",
		FFprobePath:        "ffprobe",
		AdminUsername:      "admin",
		AdminPassword:      "admin123",
		LogFile:            filepath.Join(root, "cabinet.log"),
	}
}

// Setup creates a temp root and points config, repo and storage at it.
// It returns a cleanup function for TestMain.
func Setup() (func(), error) {
	root, err := os.MkdirTemp("", "cabinet-test-*")
	if err != nil {
		return nil, err
	}
	logger.SetOutput(io.Discard)
	config.AppConfig = Config(root)

	db, err := repo.OpenSqlite(config.AppConfig.DBPath)
	if err != nil {
		_ = os.RemoveAll(root)
		return nil, err
	}
	repo.Db = db
	if err := storage.InitLocal(config.AppConfig.StoragePath); err != nil {
		_ = os.RemoveAll(root)
		return nil, err
	}
	utils.SetCache(nil)

	return func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = os.RemoveAll(root)
	}, nil
}

// Run is a TestMain body: Setup, run the tests, clean up.
func Run(m *testing.M) int {
	cleanup, err := Setup()
	if err != nil {
		panic(err)
	}
	defer cleanup()
	return m.Run()
}

// CleanTables empties every table and the storage root.
func CleanTables(t testing.TB) {
	t.Helper()
	tables := []string{"file_share", "derivative_task", "user_file", "folder", "user_db"}
	for _, table := range tables {
		if err := repo.Db.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("clean %s failed: %v", table, err)
		}
	}
	entries, err := os.ReadDir(storage.Local.Root())
	if err != nil {
		t.Fatalf("read storage root: %v", err)
	}
	for _, e := range entries {
		_ = os.RemoveAll(filepath.Join(storage.Local.Root(), e.Name()))
	}
}
