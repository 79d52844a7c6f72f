package model

import "time"

type Folder struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	OwnerID uint64 `gorm:"column:owner_id;not null;index" json:"owner_id"`

	// nil means the folder sits at the owner's root.
	ParentID *uint64 `gorm:"column:parent_id;index" json:"parent_id"`

	Name string `gorm:"column:name;size:255;not null" json:"name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Folder) TableName() string {
	return "folder"
}
