package derivative

import (
	"Cabinet/internal/logger"
	"Cabinet/internal/metrics"
	"Cabinet/internal/repo"
	"Cabinet/internal/storage"
	"Cabinet/model"
	"Cabinet/utils"
	"context"
	"errors"
	"os"

	"gorm.io/gorm"
)

type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeSkipped   Outcome = "skipped"
	// OutcomeDiscarded means the file disappeared while its preview was rendered.
	OutcomeDiscarded Outcome = "discarded"
	OutcomeFailed    Outcome = "failed"
)

// Process renders the preview of fileID and records it on the file.
// It never touches anything but the file's derivative_ref column.
func Process(ctx context.Context, gen *Generator, fileID uint64) (outcome Outcome, err error) {
	defer func() {
		if err != nil {
			outcome = OutcomeFailed
		}
		metrics.Derivatives.WithLabelValues(string(outcome)).Inc()
	}()

	var file model.UserFile
	if err := repo.Db.WithContext(ctx).First(&file, fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeDiscarded, nil
		}
		return OutcomeFailed, err
	}
	if CategoryOf(file.MimeType) == CategoryNone {
		return OutcomeSkipped, nil
	}

	sb, err := storage.Local.EnsureSandbox(file.OwnerID)
	if err != nil {
		return OutcomeFailed, err
	}
	src := sb.ContentPath(file.StorageKey)
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return OutcomeDiscarded, nil
	}
	name := storage.DerivativeName(file.ID)
	dst := sb.DerivativePath(name)
	if err := gen.Generate(ctx, src, file.MimeType, dst); err != nil {
		return OutcomeFailed, err
	}

	res := repo.Db.WithContext(ctx).Model(&model.UserFile{}).
		Where("id = ?", file.ID).
		UpdateColumn("derivative_ref", name)
	if res.Error != nil {
		_ = os.Remove(dst)
		return OutcomeFailed, res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := repo.Db.WithContext(ctx).Model(&model.UserFile{}).Where("id = ?", file.ID).Count(&count).Error; err != nil {
			return OutcomeFailed, err
		}
		if count == 0 {
			if err := storage.Local.RemoveDerivative(sb, name); err != nil {
				logger.Log.Warn().Err(err).Uint64("file_id", file.ID).Msg("remove orphan derivative fail")
			}
			return OutcomeDiscarded, nil
		}
	}
	if err := utils.InvalidateUserListCache(ctx, file.OwnerID); err != nil {
		logger.Log.Warn().Err(err).Uint64("user_id", file.OwnerID).Msg("invalidate list cache fail")
	}
	return OutcomeGenerated, nil
}
