package model

import "time"

const DefaultBuildVersion = "1.0.0"

// GameBuild 单个平台的构建包。DownloadURL 由存储文件 ID 推导，不入库。
// swagger:model GameBuild
type GameBuild struct {
	UUIDModel
	GameID        string    `gorm:"index;type:varchar(36);not null" json:"gameId"`
	CreatorID     uint      `gorm:"index;type:bigint unsigned" json:"creatorId"`
	FileName      string    `gorm:"size:255;not null" json:"fileName"`
	FileSize      int64     `gorm:"not null" json:"fileSize"`
	Platform      Platform  `gorm:"size:50;not null" json:"platform"`
	Version       string    `gorm:"size:50;default:'1.0.0'" json:"version"`
	UploadedAt    time.Time `json:"uploadedAt"`
	StorageFileID string    `gorm:"size:255;not null;index" json:"storageFileId"`
	DownloadURL   string    `gorm:"-" json:"downloadUrl"`
}

func (GameBuild) TableName() string {
	return "game_builds"
}
