package model

import "time"

type LibraryEntry struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	UserID         uint       `gorm:"uniqueIndex:idx_library_user_game;type:bigint unsigned" json:"userId"`
	GameID         string     `gorm:"uniqueIndex:idx_library_user_game;type:varchar(36)" json:"gameId"`
	PurchasedAt    time.Time  `json:"purchasedAt"`
	DownloadCount  int        `gorm:"default:0" json:"downloadCount"`
	LastDownloaded *time.Time `json:"lastDownloaded"`
}

func (LibraryEntry) TableName() string {
	return "library_entries"
}
