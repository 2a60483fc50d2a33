package models

import (
	"time"

	"gorm.io/datatypes"
)

type Notification struct {
	ID     string `gorm:"type:varchar(36);primaryKey"`
	UserID string `gorm:"type:varchar(36);not null;index"`

	Title   string `gorm:"type:varchar(200);not null"`
	Message string `gorm:"type:text;not null"`
	Type    string `gorm:"type:varchar(30);not null;default:'contract'"`

	Data datatypes.JSON `gorm:"type:jsonb"`

	Read   bool       `gorm:"not null;default:false;index"`
	ReadAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Notification) TableName() string {
	return "notifications"
}
