package service

import (
	"Cabinet/config"
	"Cabinet/internal/logger"
	"Cabinet/internal/repo"
	"Cabinet/internal/storage"
	"Cabinet/model"
	"Cabinet/utils"
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// CreateUserInput describes a user provisioned by registration or by an admin.
type CreateUserInput struct {
	Username   string
	Password   string
	IsAdmin    bool
	QuotaBytes int64
}

func defaultQuota() int64 {
	if config.AppConfig.DefaultQuotaBytes > 0 {
		return config.AppConfig.DefaultQuotaBytes
	}
	return 50 * 1024 * 1024 * 1024
}

// CreateUser hashes the password, stores the user and provisions its sandbox.
func CreateUser(ctx context.Context, in CreateUserInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || len(username) > 50 || in.Password == "" || in.QuotaBytes < 0 {
		return nil, ErrInvalidArgument
	}
	if len(in.Password) > utils.MaxPasswordBytes {
		return nil, ErrInvalidArgument
	}
	quota := in.QuotaBytes
	if quota == 0 {
		quota = defaultQuota()
	}
	// 对密码进行加密
	hash, err := utils.GetPwd(in.Password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		UserName:   username,
		Password:   hash,
		IsAdmin:    in.IsAdmin,
		QuotaBytes: quota,
	}

	db := repo.Db.WithContext(ctx)
	var count int64
	if err := db.Model(&model.User{}).Where("user_name = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUserExists
	}
	if err := db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	if _, err := storage.Local.EnsureSandbox(user.ID); err != nil {
		if delErr := db.Delete(&model.User{}, user.ID).Error; delErr != nil {
			logger.Log.Error().Err(delErr).Uint64("user_id", user.ID).Msg("rollback user after sandbox failure")
		}
		return nil, err
	}
	logger.Log.Info().Uint64("user_id", user.ID).Str("username", user.UserName).Bool("admin", user.IsAdmin).Msg("user created")
	return user, nil
}

// Register creates a regular user with the default quota.
func Register(ctx context.Context, username, password string) (*model.User, error) {
	return CreateUser(ctx, CreateUserInput{Username: username, Password: password})
}

// Login verifies credentials and issues a token.
func Login(ctx context.Context, username, password string) (*model.User, string, error) {
	var user model.User
	err := repo.Db.WithContext(ctx).Where("user_name = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrBadCredentials
	}
	if err != nil {
		return nil, "", err
	}
	// 使用 bcrypt 验证密码
	if !utils.CheckPwd(password, user.Password) {
		return nil, "", ErrBadCredentials
	}
	token, err := utils.GenerateToken(user.ID, user.UserName, user.IsAdmin)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// GetUser returns a user by id.
func GetUser(ctx context.Context, userID uint64) (*model.User, error) {
	var user model.User
	err := repo.Db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns every user in creation order.
func ListUsers(ctx context.Context) ([]model.User, error) {
	users := make([]model.User, 0)
	err := repo.Db.WithContext(ctx).Order("id ASC").Find(&users).Error
	return users, err
}

// SetQuota changes a user's allotted capacity. Lowering it below the current
// usage only blocks future uploads; nothing stored is removed.
func SetQuota(ctx context.Context, userID uint64, quotaBytes int64) (*model.User, error) {
	if quotaBytes <= 0 {
		return nil, ErrInvalidArgument
	}
	user, err := GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := repo.Db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		UpdateColumn("quota_bytes", quotaBytes).Error; err != nil {
		return nil, err
	}
	user.QuotaBytes = quotaBytes
	return user, nil
}

// ResetPassword replaces a user's password.
func ResetPassword(ctx context.Context, userID uint64, password string) error {
	if password == "" || len(password) > utils.MaxPasswordBytes {
		return ErrInvalidArgument
	}
	if _, err := GetUser(ctx, userID); err != nil {
		return err
	}
	hash, err := utils.GetPwd(password)
	if err != nil {
		return err
	}
	return repo.Db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		Update("pass_word", hash).Error
}

// DeleteUser removes a user together with every record it owns, then its sandbox.
func DeleteUser(ctx context.Context, userID uint64) error {
	err := repo.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("creator_id = ?", userID).Delete(&model.FileShare{}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", userID).Delete(&model.DerivativeTask{}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", userID).Delete(&model.UserFile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", userID).Delete(&model.Folder{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.User{}, userID).Error
	})
	if err != nil {
		return err
	}
	if err := storage.Local.RemoveSandbox(userID); err != nil {
		logger.Log.Error().Err(err).Uint64("user_id", userID).Msg("cleanup user storage fail")
	}
	invalidateLists(context.WithoutCancel(ctx), userID)
	logger.Log.Info().Uint64("user_id", userID).Msg("user deleted")
	return nil
}

// SeedAdmin creates the configured admin account when no admin exists yet.
func SeedAdmin(ctx context.Context) error {
	var count int64
	if err := repo.Db.WithContext(ctx).Model(&model.User{}).Where("is_admin = ?", true).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	username := config.AppConfig.AdminUsername
	if username == "" {
		return nil
	}
	_, err := CreateUser(ctx, CreateUserInput{
		Username: username,
		Password: config.AppConfig.AdminPassword,
		IsAdmin:  true,
	})
	if errors.Is(err, ErrUserExists) {
		logger.Log.Warn().Str("username", username).Msg("admin username taken by a regular user, seeding skipped")
		return nil
	}
	return err
}
