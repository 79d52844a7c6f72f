package model

import "time"

type User struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	UserName string `gorm:"column:user_name;type:varchar(50);not null;unique" json:"username"`

	Password string `gorm:"column:pass_word;type:varchar(255);not null" json:"-"`

	IsAdmin bool `gorm:"column:is_admin;not null;default:false" json:"is_admin"`

	QuotaBytes int64 `gorm:"column:quota_bytes;not null;default:0" json:"quota_bytes"` // 容量管理
	UsedBytes  int64 `gorm:"column:used_bytes;not null;default:0" json:"used_bytes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (User) TableName() string {
	return "user_db"
}
