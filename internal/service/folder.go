package service

import (
	"Cabinet/config"
	"Cabinet/internal/logger"
	"Cabinet/internal/repo"
	"Cabinet/model"
	"Cabinet/utils"
	"context"
	"errors"

	"gorm.io/gorm"
)

const defaultMaxFolderDepth = 64

func maxFolderDepth() int {
	if config.AppConfig.MaxFolderDepth > 0 {
		return config.AppConfig.MaxFolderDepth
	}
	return defaultMaxFolderDepth
}

// ownedFolder loads a folder only if it belongs to ownerID. A foreign folder
// is reported as missing so ids of other tenants are not leaked.
func ownedFolder(db *gorm.DB, ownerID, folderID uint64) (*model.Folder, error) {
	var folder model.Folder
	err := db.Where("id = ? AND owner_id = ?", folderID, ownerID).First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFolderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

// folderChain walks from folderID up to the root, target first.
// The walk fails closed once it exceeds the depth bound.
func folderChain(db *gorm.DB, ownerID, folderID uint64) ([]model.Folder, error) {
	limit := maxFolderDepth()
	chain := make([]model.Folder, 0, 8)
	next := &folderID
	for next != nil {
		if len(chain) >= limit {
			return nil, ErrFolderTooDeep
		}
		folder, err := ownedFolder(db, ownerID, *next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *folder)
		next = folder.ParentID
	}
	return chain, nil
}

func invalidateLists(ctx context.Context, ownerID uint64) {
	if err := utils.InvalidateUserListCache(ctx, ownerID); err != nil {
		logger.Log.Warn().Err(err).Uint64("user_id", ownerID).Msg("invalidate list cache fail")
	}
}

// normalizeParent maps a zero id to the root.
func normalizeParent(parentID *uint64) *uint64 {
	if parentID == nil || *parentID == 0 {
		return nil
	}
	id := *parentID
	return &id
}

// CreateFolder creates a folder under parentID, or at the root when parentID is nil.
func CreateFolder(ctx context.Context, ownerID uint64, name string, parentID *uint64) (*model.Folder, error) {
	name = utils.CleanEntryName(name)
	if name == "" {
		return nil, ErrInvalidArgument
	}
	parentID = normalizeParent(parentID)
	folder := &model.Folder{OwnerID: ownerID, ParentID: parentID, Name: name}

	err := repo.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if parentID != nil {
			chain, err := folderChain(tx, ownerID, *parentID)
			if err != nil {
				return err
			}
			if len(chain)+1 > maxFolderDepth() {
				return ErrFolderTooDeep
			}
		}
		return tx.Create(folder).Error
	})
	if err != nil {
		return nil, err
	}
	invalidateLists(ctx, ownerID)
	return folder, nil
}

// DeleteFolder removes an empty folder. Folders holding files or subfolders are rejected.
func DeleteFolder(ctx context.Context, ownerID, folderID uint64) error {
	err := repo.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ownedFolder(tx, ownerID, folderID); err != nil {
			return err
		}
		var children int64
		if err := tx.Model(&model.Folder{}).Where("parent_id = ?", folderID).Count(&children).Error; err != nil {
			return err
		}
		if children > 0 {
			return ErrFolderNotEmpty
		}
		if err := tx.Model(&model.UserFile{}).Where("parent_id = ?", folderID).Count(&children).Error; err != nil {
			return err
		}
		if children > 0 {
			return ErrFolderNotEmpty
		}
		return tx.Delete(&model.Folder{}, folderID).Error
	})
	if err != nil {
		return err
	}
	invalidateLists(ctx, ownerID)
	return nil
}

// Breadcrumb returns the folders from the root down to folderID.
func Breadcrumb(ctx context.Context, ownerID, folderID uint64) ([]model.Folder, error) {
	chain, err := folderChain(repo.Db.WithContext(ctx), ownerID, folderID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// RenameFolder changes a folder's name.
func RenameFolder(ctx context.Context, ownerID, folderID uint64, name string) (*model.Folder, error) {
	name = utils.CleanEntryName(name)
	if name == "" {
		return nil, ErrInvalidArgument
	}
	var folder *model.Folder
	err := repo.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := ownedFolder(tx, ownerID, folderID)
		if err != nil {
			return err
		}
		f.Name = name
		folder = f
		return tx.Model(f).Update("name", name).Error
	})
	if err != nil {
		return nil, err
	}
	invalidateLists(ctx, ownerID)
	return folder, nil
}

// MoveFolder re-parents a folder. Moving a folder into itself or any of its
// descendants is rejected with ErrFolderCycle.
func MoveFolder(ctx context.Context, ownerID, folderID uint64, newParentID *uint64) (*model.Folder, error) {
	newParentID = normalizeParent(newParentID)
	var folder *model.Folder
	err := repo.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := ownedFolder(tx, ownerID, folderID)
		if err != nil {
			return err
		}
		if newParentID != nil {
			chain, err := folderChain(tx, ownerID, *newParentID)
			if err != nil {
				return err
			}
			for _, ancestor := range chain {
				if ancestor.ID == folderID {
					return ErrFolderCycle
				}
			}
			if len(chain)+1 > maxFolderDepth() {
				return ErrFolderTooDeep
			}
		}
		f.ParentID = newParentID
		folder = f
		return tx.Model(f).Update("parent_id", newParentID).Error
	})
	if err != nil {
		return nil, err
	}
	invalidateLists(ctx, ownerID)
	return folder, nil
}

// ListFolders lists a user's folders in insertion order. A nil parentID lists
// every folder; a zero parentID lists the root level.
func ListFolders(ctx context.Context, ownerID uint64, parentID *uint64) ([]model.Folder, error) {
	cached, gen, ok := utils.GetUserFolderListFromCache(ctx, ownerID, parentID)
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
	folders := make([]model.Folder, 0)
	if err := db.Order("id ASC").Find(&folders).Error; err != nil {
		return nil, err
	}
	if err := utils.SetUserFolderListToCache(ctx, ownerID, gen, parentID, folders, config.AppConfig.ListCacheTTL); err != nil {
		logger.Log.Warn().Err(err).Uint64("user_id", ownerID).Msg("cache folder list fail")
	}
	return folders, nil
}
