package service

import (
	"Cabinet/internal/metrics"
	"Cabinet/internal/repo"
	"Cabinet/model"
	"context"
	"errors"

	"gorm.io/gorm"
)

// Usage is a user's consumed and allotted capacity.
type Usage struct {
	UsedBytes  int64 `json:"used_bytes"`
	QuotaBytes int64 `json:"quota_bytes"`
	FreeBytes  int64 `json:"free_bytes"`
}

// ReserveQuota admits delta bytes for userID or fails with ErrQuotaExceeded.
// The check and the increment are a single conditional UPDATE, so concurrent
// admissions for one user can never both pass against the same headroom.
func ReserveQuota(ctx context.Context, userID uint64, delta int64) error {
	return reserveQuotaTx(repo.Db.WithContext(ctx), userID, delta)
}

func reserveQuotaTx(db *gorm.DB, userID uint64, delta int64) error {
	if delta < 0 {
		return ErrInvalidArgument
	}
	if delta == 0 {
		// MySQL reports zero affected rows for a no-op update.
		return userExists(db, userID)
	}
	res := db.Model(&model.User{}).
		Where("id = ? AND used_bytes + ? <= quota_bytes", userID, delta).
		UpdateColumn("used_bytes", gorm.Expr("used_bytes + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if err := userExists(db, userID); err != nil {
			return err
		}
		metrics.QuotaRejections.Inc()
		return ErrQuotaExceeded
	}
	return nil
}

func userExists(db *gorm.DB, userID uint64) error {
	var count int64
	if err := db.Model(&model.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseQuota gives delta bytes back to userID.
func ReleaseQuota(ctx context.Context, userID uint64, delta int64) error {
	return releaseQuotaTx(repo.Db.WithContext(ctx), userID, delta)
}

func releaseQuotaTx(db *gorm.DB, userID uint64, delta int64) error {
	if delta <= 0 {
		return nil
	}
	return db.Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("used_bytes", gorm.Expr("CASE WHEN used_bytes >= ? THEN used_bytes - ? ELSE 0 END", delta, delta)).
		Error
}

// GetUsage reports the current ledger entry of a user.
func GetUsage(ctx context.Context, userID uint64) (*Usage, error) {
	var user model.User
	err := repo.Db.WithContext(ctx).Select("id", "used_bytes", "quota_bytes").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	free := user.QuotaBytes - user.UsedBytes
	if free < 0 {
		free = 0
	}
	return &Usage{UsedBytes: user.UsedBytes, QuotaBytes: user.QuotaBytes, FreeBytes: free}, nil
}

// RecomputeUsage rebuilds used_bytes from the file records of a user.
func RecomputeUsage(ctx context.Context, userID uint64) (int64, error) {
	var total int64
	err := repo.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := userExists(tx, userID); err != nil {
			return err
		}
		if err := tx.Model(&model.UserFile{}).
			Where("owner_id = ?", userID).
			Select("COALESCE(SUM(size), 0)").
			Scan(&total).Error; err != nil {
			return err
		}
		return tx.Model(&model.User{}).Where("id = ?", userID).UpdateColumn("used_bytes", total).Error
	})
	return total, err
}
