package service

import (
	"Cabinet/config"
	"Cabinet/internal/logger"
	"Cabinet/internal/repo"
	"Cabinet/internal/storage"
	"Cabinet/model"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gorm.io/gorm"
)

const (
	backupLockKey = "cabinet:backup:lock"
	backupLockTTL = 5 * time.Minute
	backupURLTTL  = 24 * time.Hour
)

// localBackupMu guards uploads when no Redis lock is available.
var localBackupMu sync.Mutex

// Snapshot is a point-in-time export of the metadata store.
// Password hashes are never exported.
type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Users       []model.User      `json:"users"`
	Folders     []model.Folder    `json:"folders"`
	Files       []model.UserFile  `json:"files"`
	Shares      []model.FileShare `json:"shares"`
}

// BackupResult describes an uploaded snapshot.
type BackupResult struct {
	Bucket string `json:"bucket"`
	Object string `json:"object"`
	Size   int64  `json:"size"`
	URL    string `json:"url"`
}

// BuildSnapshot reads every record collection inside one transaction.
func BuildSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{GeneratedAt: time.Now().UTC()}
	err := repo.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("id ASC").Find(&snap.Users).Error; err != nil {
			return err
		}
		if err := tx.Order("id ASC").Find(&snap.Folders).Error; err != nil {
			return err
		}
		if err := tx.Order("id ASC").Find(&snap.Files).Error; err != nil {
			return err
		}
		return tx.Order("id ASC").Find(&snap.Shares).Error
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// WriteSnapshot streams a JSON snapshot to w.
func WriteSnapshot(ctx context.Context, w io.Writer) error {
	snap, err := BuildSnapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// BackupFileName is the download name of a snapshot taken at t.
func BackupFileName(t time.Time) string {
	return fmt.Sprintf("cabinet-backup-%s.json", t.UTC().Format("2006-01-02"))
}

func acquireBackupLock(ctx context.Context) (func(), error) {
	if repo.Redis == nil {
		if !localBackupMu.TryLock() {
			return nil, ErrBackupBusy
		}
		return localBackupMu.Unlock, nil
	}
	lock := repo.NewRedisLock(repo.Redis, backupLockKey, backupLockTTL)
	if err := lock.Lock(ctx); err != nil {
		if errors.Is(err, repo.ErrLockBusy) {
			return nil, ErrBackupBusy
		}
		return nil, err
	}
	return func() {
		if err := lock.Unlock(context.Background()); err != nil {
			logger.Log.Warn().Err(err).Msg("release backup lock fail")
		}
	}, nil
}

// UploadSnapshot exports the metadata store to the backup bucket and returns
// a presigned download link. Only one upload runs at a time across instances.
func UploadSnapshot(ctx context.Context) (*BackupResult, error) {
	store := storage.Default
	if store == nil {
		return nil, ErrBackupUnavailable
	}
	unlock, err := acquireBackupLock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var buf bytes.Buffer
	if err := WriteSnapshot(ctx, &buf); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	object := fmt.Sprintf("snapshots/cabinet-backup-%s.json", now.Format("20060102T150405Z"))
	bucket := config.AppConfig.BackupBucket
	size := int64(buf.Len())
	if err := store.PutObject(ctx, bucket, object, &buf, size, storage.PutOptions{ContentType: "application/json"}); err != nil {
		return nil, fmt.Errorf("upload snapshot: %w", err)
	}
	url, err := store.PresignedGetObject(ctx, bucket, object, backupURLTTL)
	if err != nil {
		logger.Log.Warn().Err(err).Str("object", object).Msg("presign snapshot fail")
	}
	logger.Log.Info().Str("bucket", bucket).Str("object", object).Int64("size", size).Msg("snapshot uploaded")
	return &BackupResult{Bucket: bucket, Object: object, Size: size, URL: url}, nil
}
