package model

import "time"

type FileShare struct {
	ID uint64 `gorm:"primaryKey" json:"-"`

	ShareID string `gorm:"column:share_id;size:32;uniqueIndex;not null" json:"share_id"`

	// Non-owning reference; the file may be gone by the time the share is consumed.
	FileID    uint64 `gorm:"column:file_id;not null;index" json:"file_id"`
	CreatorID uint64 `gorm:"column:creator_id;not null;index" json:"creator_id"`

	Active bool `gorm:"column:active;not null;default:true" json:"active"`

	PasswordHash *string    `gorm:"column:password_hash;size:255" json:"-"`
	ExpiresAt    *time.Time `gorm:"column:expires_at" json:"expires_at"`

	MaxDownloads     *int64 `gorm:"column:max_downloads" json:"max_downloads"`
	CurrentDownloads int64  `gorm:"column:current_downloads;not null;default:0" json:"current_downloads"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (FileShare) TableName() string {
	return "file_share"
}

// PasswordProtected reports whether consumption requires a password.
func (s *FileShare) PasswordProtected() bool {
	return s.PasswordHash != nil && *s.PasswordHash != ""
}
