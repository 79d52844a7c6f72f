package service

import (
	"Cabinet/config"
	"Cabinet/internal/logger"
	"Cabinet/internal/metrics"
	"Cabinet/internal/repo"
	"Cabinet/internal/storage"
	"Cabinet/model"
	"Cabinet/utils"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DerivativeDispatcher schedules preview generation for a new file.
// Dispatch must not block the caller.
type DerivativeDispatcher interface {
	Dispatch(file *model.UserFile)
}

var derivativeDispatcher DerivativeDispatcher

// SetDerivativeDispatcher installs the dispatcher used after uploads; nil disables derivatives.
func SetDerivativeDispatcher(d DerivativeDispatcher) {
	derivativeDispatcher = d
}

// CreateFileInput describes one upload.
type CreateFileInput struct {
	OwnerID  uint64
	Name     string
	MimeType string
	Size     int64
	ParentID *uint64
	Content  io.Reader
}

// IntegrityReport compares the recorded digest with the stored bytes.
type IntegrityReport struct {
	FileID   uint64 `json:"file_id"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	OK       bool   `json:"ok"`
}

func fileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func detectMimeType(name, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

func maxUploadBytes() int64 {
	if config.AppConfig.MaxUploadBytes > 0 {
		return config.AppConfig.MaxUploadBytes
	}
	return 500 * 1024 * 1024
}

// CreateFile admits, stores and registers an upload.
// Quota is reserved before any byte is written; every failure after that
// point gives the reservation back and leaves no partial content on disk.
func CreateFile(ctx context.Context, in CreateFileInput) (*model.UserFile, error) {
	name := utils.CleanEntryName(in.Name)
	if name == "" || in.Size < 0 || in.Content == nil {
		return nil, ErrInvalidArgument
	}
	if in.Size > maxUploadBytes() {
		metrics.Uploads.WithLabelValues("too_large").Inc()
		return nil, ErrUploadTooLarge
	}
	parentID := normalizeParent(in.ParentID)
	if parentID != nil {
		if _, err := ownedFolder(repo.Db.WithContext(ctx), in.OwnerID, *parentID); err != nil {
			return nil, err
		}
	}

	if err := ReserveQuota(ctx, in.OwnerID, in.Size); err != nil {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return nil, err
	}
	// Cleanup must still run when the client went away.
	cleanupCtx := context.WithoutCancel(ctx)
	release := func() {
		if err := ReleaseQuota(cleanupCtx, in.OwnerID, in.Size); err != nil {
			logger.Log.Error().Err(err).Uint64("user_id", in.OwnerID).Int64("size", in.Size).Msg("release quota fail")
		}
	}

	sb, err := storage.Local.EnsureSandbox(in.OwnerID)
	if err != nil {
		release()
		metrics.Uploads.WithLabelValues("failed").Inc()
		return nil, err
	}
	key := uuid.NewString()
	written, err := storage.Local.WriteContent(ctx, sb, key, in.Content, in.Size)
	if err != nil {
		release()
		metrics.Uploads.WithLabelValues("failed").Inc()
		if errors.Is(err, storage.ErrSizeMismatch) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return nil, err
	}

	file := &model.UserFile{
		OwnerID:    in.OwnerID,
		ParentID:   parentID,
		Name:       name,
		Extension:  fileExtension(name),
		MimeType:   detectMimeType(name, in.MimeType),
		Size:       written.Size,
		Hash:       written.Hash,
		StorageKey: key,
	}
	err = repo.Db.WithContext(cleanupCtx).Transaction(func(tx *gorm.DB) error {
		// The folder may have been removed while bytes were streaming.
		if parentID != nil {
			if _, err := ownedFolder(tx, in.OwnerID, *parentID); err != nil {
				return err
			}
		}
		return tx.Create(file).Error
	})
	if err != nil {
		if rmErr := storage.Local.RemoveContent(sb, key); rmErr != nil {
			logger.Log.Warn().Err(rmErr).Str("key", key).Msg("remove orphan content fail")
		}
		release()
		metrics.Uploads.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.Uploads.WithLabelValues("ok").Inc()
	metrics.UploadedBytes.Add(float64(file.Size))
	invalidateLists(cleanupCtx, in.OwnerID)
	logger.Log.Info().
		Uint64("user_id", in.OwnerID).
		Uint64("file_id", file.ID).
		Int64("size", file.Size).
		Str("mime", file.MimeType).
		Msg("file uploaded")

	if derivativeDispatcher != nil {
		derivativeDispatcher.Dispatch(file)
	}
	return file, nil
}

func ownedFile(db *gorm.DB, ownerID, fileID uint64) (*model.UserFile, error) {
	var file model.UserFile
	err := db.Where("id = ? AND owner_id = ?", fileID, ownerID).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// GetFile returns the metadata of a file owned by ownerID.
func GetFile(ctx context.Context, ownerID, fileID uint64) (*model.UserFile, error) {
	return ownedFile(repo.Db.WithContext(ctx), ownerID, fileID)
}

// GetFileByID loads a file regardless of owner.
func GetFileByID(ctx context.Context, fileID uint64) (*model.UserFile, error) {
	var file model.UserFile
	err := repo.Db.WithContext(ctx).First(&file, fileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func openStored(file *model.UserFile) (*os.File, error) {
	f, err := storage.Local.OpenContent(storage.Local.SandboxFor(file.OwnerID), file.StorageKey)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open content: %v", ErrStorageIO, err)
	}
	return f, nil
}

// OpenContent opens the bytes of a file owned by ownerID. The caller closes the handle.
func OpenContent(ctx context.Context, ownerID, fileID uint64) (*model.UserFile, *os.File, error) {
	file, err := GetFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, nil, err
	}
	f, err := openStored(file)
	if err != nil {
		return nil, nil, err
	}
	return file, f, nil
}

// OpenDerivative opens the preview artifact of a file owned by ownerID.
func OpenDerivative(ctx context.Context, ownerID, fileID uint64) (*model.UserFile, *os.File, error) {
	file, err := GetFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, nil, err
	}
	if file.DerivativeRef == nil || *file.DerivativeRef == "" {
		return nil, nil, ErrDerivativeEmpty
	}
	path := storage.Local.SandboxFor(ownerID).DerivativePath(*file.DerivativeRef)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrDerivativeEmpty
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open derivative: %v", ErrStorageIO, err)
	}
	return file, f, nil
}

// RenameFile changes the display name of a file. The stored bytes are untouched.
func RenameFile(ctx context.Context, ownerID, fileID uint64, name string) (*model.UserFile, error) {
	name = utils.CleanEntryName(name)
	if name == "" {
		return nil, ErrInvalidArgument
	}
	var file *model.UserFile
	err := repo.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := ownedFile(tx, ownerID, fileID)
		if err != nil {
			return err
		}
		f.Name = name
		f.Extension = fileExtension(name)
		file = f
		return tx.Model(f).Updates(map[string]interface{}{
			"name":      f.Name,
			"extension": f.Extension,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	invalidateLists(ctx, ownerID)
	return file, nil
}

// MoveFile places a file into another folder of the same owner, or the root.
func MoveFile(ctx context.Context, ownerID, fileID uint64, parentID *uint64) (*model.UserFile, error) {
	parentID = normalizeParent(parentID)
	var file *model.UserFile
	err := repo.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := ownedFile(tx, ownerID, fileID)
		if err != nil {
			return err
		}
		if parentID != nil {
			if _, err := ownedFolder(tx, ownerID, *parentID); err != nil {
				return err
			}
		}
		f.ParentID = parentID
		file = f
		return tx.Model(f).Update("parent_id", parentID).Error
	})
	if err != nil {
		return nil, err
	}
	invalidateLists(ctx, ownerID)
	return file, nil
}

// DeleteFile removes a file. The record and its quota contribution go away in
// one transaction; the bytes and the derivative are reclaimed afterwards, so a
// reader never sees a record whose content is already gone.
func DeleteFile(ctx context.Context, ownerID, fileID uint64) error {
	var file *model.UserFile
	err := repo.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := ownedFile(tx, ownerID, fileID)
		if err != nil {
			return err
		}
		file = f
		if err := tx.Delete(&model.UserFile{}, f.ID).Error; err != nil {
			return err
		}
		return releaseQuotaTx(tx, ownerID, f.Size)
	})
	if err != nil {
		return err
	}
	reclaimFileBytes(file)
	invalidateLists(context.WithoutCancel(ctx), ownerID)
	logger.Log.Info().Uint64("user_id", ownerID).Uint64("file_id", fileID).Msg("file deleted")
	return nil
}

// reclaimFileBytes removes content and derivative of an already deleted record.
// Leftovers are harmless orphans, so failures are only logged.
func reclaimFileBytes(file *model.UserFile) {
	sb := storage.Local.SandboxFor(file.OwnerID)
	if err := storage.Local.RemoveContent(sb, file.StorageKey); err != nil {
		logger.Log.Warn().Err(err).Uint64("file_id", file.ID).Msg("remove content fail")
	}
	if file.DerivativeRef != nil {
		if err := storage.Local.RemoveDerivative(sb, *file.DerivativeRef); err != nil {
			logger.Log.Warn().Err(err).Uint64("file_id", file.ID).Msg("remove derivative fail")
		}
	}
	// A derivative may land after the record is gone; its name is keyed by file id.
	if err := storage.Local.RemoveDerivative(sb, storage.DerivativeName(file.ID)); err != nil {
		logger.Log.Warn().Err(err).Uint64("file_id", file.ID).Msg("remove derivative fail")
	}
}

// ListFiles lists a user's files in insertion order. A nil parentID lists
// every file; a zero parentID lists the root level.
func ListFiles(ctx context.Context, ownerID uint64, parentID *uint64) ([]model.UserFile, error) {
	cached, gen, ok := utils.GetUserFileListFromCache(ctx, ownerID, parentID)
	if ok {
		return cached, nil
	}
	db := repo.Db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if parentID != nil {
		if *parentID == 0 {
			db = db.Where("parent_id IS NULL")
		} else {
			if _, err := ownedFolder(repo.Db.WithContext(ctx), ownerID, *parentID); err != nil {
				return nil, err
			}
			db = db.Where("parent_id = ?", *parentID)
		}
	}
	files := make([]model.UserFile, 0)
	if err := db.Order("id ASC").Find(&files).Error; err != nil {
		return nil, err
	}
	if err := utils.SetUserFileListToCache(ctx, ownerID, gen, parentID, files, config.AppConfig.ListCacheTTL); err != nil {
		logger.Log.Warn().Err(err).Uint64("user_id", ownerID).Msg("cache file list fail")
	}
	return files, nil
}

// VerifyIntegrity recomputes the digest of the stored bytes.
func VerifyIntegrity(ctx context.Context, ownerID, fileID uint64) (*IntegrityReport, error) {
	file, err := GetFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	path := storage.Local.SandboxFor(ownerID).ContentPath(file.StorageKey)
	actual, err := storage.HashFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: hash content: %v", ErrStorageIO, err)
	}
	return &IntegrityReport{
		FileID:   file.ID,
		Expected: file.Hash,
		Actual:   actual,
		OK:       actual == file.Hash,
	}, nil
}
