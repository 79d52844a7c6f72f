package service

import (
	"Cabinet/internal/logger"
	"Cabinet/internal/metrics"
	"Cabinet/internal/repo"
	"Cabinet/model"
	"Cabinet/utils"
	"context"
	"errors"
	"os"
	"time"

	"gorm.io/gorm"
)

const shareIDAttempts = 8

// CreateShareInput describes a new share link. Zero values mean "no gate".
type CreateShareInput struct {
	FileID       uint64
	CreatorID    uint64
	Password     string
	ExpiresAt    *time.Time
	MaxDownloads *int64
}

// SharedContent is the result of a successful share consumption.
type SharedContent struct {
	Share   *model.FileShare
	File    *model.UserFile
	Content *os.File
}

// ShareInfo is the public view of a share, readable without a password.
type ShareInfo struct {
	ShareID           string     `json:"share_id"`
	FileName          string     `json:"file_name"`
	Size              int64      `json:"size"`
	MimeType          string     `json:"mime_type"`
	PasswordProtected bool       `json:"password_protected"`
	ExpiresAt         *time.Time `json:"expires_at"`
	RemainingDownload *int64     `json:"remaining_downloads"`
}

// CreateShare mints a share link for a file owned by the creator.
func CreateShare(ctx context.Context, in CreateShareInput) (*model.FileShare, error) {
	if in.MaxDownloads != nil && *in.MaxDownloads <= 0 {
		return nil, ErrInvalidArgument
	}
	if _, err := GetFile(ctx, in.CreatorID, in.FileID); err != nil {
		return nil, err
	}

	share := &model.FileShare{
		FileID:       in.FileID,
		CreatorID:    in.CreatorID,
		Active:       true,
		MaxDownloads: in.MaxDownloads,
	}
	if in.ExpiresAt != nil {
		// Stored in UTC so the SQL comparison in ResolveShare is offset-safe.
		expiresAt := in.ExpiresAt.UTC()
		share.ExpiresAt = &expiresAt
	}
	if in.Password != "" {
		if len(in.Password) > utils.MaxPasswordBytes {
			return nil, ErrInvalidArgument
		}
		hash, err := utils.GetPwd(in.Password)
		if err != nil {
			return nil, err
		}
		share.PasswordHash = &hash
	}

	db := repo.Db.WithContext(ctx)
	for attempt := 0; attempt < shareIDAttempts; attempt++ {
		id, err := utils.GenShareID()
		if err != nil {
			return nil, err
		}
		var taken int64
		if err := db.Model(&model.FileShare{}).Where("share_id = ?", id).Count(&taken).Error; err != nil {
			return nil, err
		}
		if taken > 0 {
			continue
		}
		share.ID = 0
		share.ShareID = id
		err = db.Create(share).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		if err != nil {
			return nil, err
		}
		logger.Log.Info().Str("share_id", share.ShareID).Uint64("file_id", share.FileID).Msg("share created")
		return share, nil
	}
	return nil, errors.New("could not allocate a unique share id")
}

func findShare(db *gorm.DB, shareID string) (*model.FileShare, error) {
	var share model.FileShare
	err := db.Where("share_id = ?", shareID).First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// shareGate applies the time and counter gates in their fixed order:
// inactive, exhausted, expired.
func shareGate(share *model.FileShare, now time.Time) error {
	if !share.Active {
		return ErrShareNotFound
	}
	if share.MaxDownloads != nil && share.CurrentDownloads >= *share.MaxDownloads {
		return ErrShareExhausted
	}
	if share.ExpiresAt != nil && now.After(*share.ExpiresAt) {
		return ErrShareExpired
	}
	return nil
}

func shareOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrShareExhausted):
		return "exhausted"
	case errors.Is(err, ErrShareExpired):
		return "expired"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrShareNotFound), errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// ResolveShare walks the share state machine and, when every gate passes,
// counts one download and returns the open content. The caller closes Content.
//
// The counter is taken before bytes are delivered. A transfer that fails
// afterwards still consumes one download.
func ResolveShare(ctx context.Context, shareID, password string) (res *SharedContent, err error) {
	defer func() { metrics.ShareConsumptions.WithLabelValues(shareOutcome(err)).Inc() }()

	db := repo.Db.WithContext(ctx)
	share, err := findShare(db, shareID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := shareGate(share, now); err != nil {
		return nil, err
	}
	if share.PasswordProtected() {
		if password == "" {
			return nil, ErrSharePasswordRequired
		}
		if !utils.CheckPwd(password, *share.PasswordHash) {
			return nil, ErrSharePasswordInvalid
		}
	}

	file, err := GetFileByID(ctx, share.FileID)
	if err != nil {
		// Dangling share: the file was deleted after the link was minted.
		return nil, ErrNotFound
	}
	content, err := openStored(file)
	if err != nil {
		return nil, err
	}

	counted := db.Model(&model.FileShare{}).
		Where("id = ? AND active = ?", share.ID, true).
		Where("max_downloads IS NULL OR current_downloads < max_downloads").
		Where("expires_at IS NULL OR expires_at > ?", now.UTC()).
		UpdateColumn("current_downloads", gorm.Expr("current_downloads + 1"))
	if counted.Error != nil {
		_ = content.Close()
		return nil, counted.Error
	}
	if counted.RowsAffected == 0 {
		// Another consumer took the last download, or the creator revoked it.
		_ = content.Close()
		latest, err := findShare(db, shareID)
		if err != nil {
			return nil, err
		}
		if err := shareGate(latest, now); err != nil {
			return nil, err
		}
		return nil, ErrShareExhausted
	}
	share.CurrentDownloads++
	return &SharedContent{Share: share, File: file, Content: content}, nil
}

// DescribeShare returns public share metadata without consuming a download.
func DescribeShare(ctx context.Context, shareID string) (*ShareInfo, error) {
	share, err := findShare(repo.Db.WithContext(ctx), shareID)
	if err != nil {
		return nil, err
	}
	if err := shareGate(share, time.Now()); err != nil {
		return nil, err
	}
	file, err := GetFileByID(ctx, share.FileID)
	if err != nil {
		return nil, ErrNotFound
	}
	info := &ShareInfo{
		ShareID:           share.ShareID,
		FileName:          file.Name,
		Size:              file.Size,
		MimeType:          file.MimeType,
		PasswordProtected: share.PasswordProtected(),
		ExpiresAt:         share.ExpiresAt,
	}
	if share.MaxDownloads != nil {
		remaining := *share.MaxDownloads - share.CurrentDownloads
		info.RemainingDownload = &remaining
	}
	return info, nil
}

// DeactivateShare revokes a share early. Revocation is terminal.
func DeactivateShare(ctx context.Context, creatorID uint64, shareID string) error {
	res := repo.Db.WithContext(ctx).Model(&model.FileShare{}).
		Where("share_id = ? AND creator_id = ? AND active = ?", shareID, creatorID, true).
		UpdateColumn("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		share, err := findShare(repo.Db.WithContext(ctx), shareID)
		if err != nil {
			return err
		}
		if share.CreatorID != creatorID {
			return ErrShareNotFound
		}
		// Already inactive; revoking twice is a no-op.
	}
	logger.Log.Info().Str("share_id", shareID).Uint64("user_id", creatorID).Msg("share deactivated")
	return nil
}

// ListShares lists the shares a user created, newest last. A non-zero fileID narrows to one file.
func ListShares(ctx context.Context, creatorID, fileID uint64) ([]model.FileShare, error) {
	db := repo.Db.WithContext(ctx).Where("creator_id = ?", creatorID)
	if fileID != 0 {
		db = db.Where("file_id = ?", fileID)
	}
	shares := make([]model.FileShare, 0)
	err := db.Order("id ASC").Find(&shares).Error
	return shares, err
}
