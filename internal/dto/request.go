package dto

import "time"

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateFolderRequest struct {
	Name     string  `json:"name" binding:"required"`
	ParentID *uint64 `json:"parent_id"`
}

type RenameRequest struct {
	Name string `json:"name" binding:"required"`
}

// MoveRequest moves an entry; a null or zero parent_id means the root.
type MoveRequest struct {
	ParentID *uint64 `json:"parent_id"`
}

type CreateShareRequest struct {
	FileID       uint64     `json:"file_id" binding:"required"`
	Password     string     `json:"password"`
	ExpiresAt    *time.Time `json:"expires_at"`
	MaxDownloads *int64     `json:"max_downloads" binding:"omitempty,gt=0"`
}

type CreateUserRequest struct {
	Username   string `json:"username" binding:"required,max=50"`
	Password   string `json:"password" binding:"required"`
	QuotaBytes int64  `json:"quota_bytes" binding:"gte=0"`
	IsAdmin    bool   `json:"is_admin"`
}

type SetQuotaRequest struct {
	QuotaBytes int64 `json:"quota_bytes" binding:"required,gt=0"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}
