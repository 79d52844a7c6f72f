package model

import "time"

type UserFile struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	OwnerID uint64 `gorm:"column:owner_id;not null;index" json:"owner_id"`

	ParentID *uint64 `gorm:"column:parent_id;index" json:"parent_id"`

	Name      string `gorm:"column:name;size:255;not null" json:"name"`
	Extension string `gorm:"column:extension;size:32;not null;default:''" json:"extension"`
	MimeType  string `gorm:"column:mime_type;size:255;not null" json:"mime_type"`
	Size      int64  `gorm:"column:size;not null;default:0" json:"size"`

	// Hex sha256 of the full content, computed while streaming to disk.
	Hash string `gorm:"column:hash;size:64;not null;index" json:"hash"`

	// Object name inside the owner's data area; never derived from Name.
	StorageKey string `gorm:"column:storage_key;size:128;not null" json:"-"`

	DerivativeRef *string `gorm:"column:derivative_ref;size:128" json:"derivative_ref"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (UserFile) TableName() string {
	return "user_file"
}

/*
ParentID 与 DerivativeRef 可以为空 所以使用指针
OwnerID 必定对应某个 User 使用值类型
*/
