package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Timestamps 时间戳与软删除；created_at 建索引供目录按最新排序
type Timestamps struct {
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IDModel 自增主键，用于账号
// swagger:model
type IDModel struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamps
}

// UUIDModel 字符串主键，用于游戏与构建，ID 可出现在 URL 与下载链接中
// swagger:model
type UUIDModel struct {
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Timestamps
}

func (m *UUIDModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
