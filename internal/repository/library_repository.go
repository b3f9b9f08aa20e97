package repository

import (
	"errors"
	"gamehub_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LibraryRepository struct {
	DB *gorm.DB
}

func NewLibraryRepository(db *gorm.DB) *LibraryRepository {
	return &LibraryRepository{DB: db}
}

func (r *LibraryRepository) Find(userID uint, gameID string) (*model.LibraryEntry, error) {
	var entry model.LibraryEntry
	err := r.DB.Where("user_id = ? AND game_id = ?", userID, gameID).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *LibraryRepository) Has(userID uint, gameID string) (bool, error) {
	_, err := r.Find(userID, gameID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *LibraryRepository) ListByUser(userID uint) ([]model.LibraryEntry, error) {
	var entries []model.LibraryEntry
	err := r.DB.Where("user_id = ?", userID).Order("purchased_at DESC").Find(&entries).Error
	return entries, err
}

// RecordDownload 有条目则累加下载次数，否则（仅 createIfMissing 时）新建条目
func (r *LibraryRepository) RecordDownload(userID uint, gameID string, createIfMissing bool) error {
	now := time.Now()
	return r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.LibraryEntry{}).
			Where("user_id = ? AND game_id = ?", userID, gameID).
			Updates(map[string]interface{}{
				"download_count":  gorm.Expr("download_count + ?", 1),
				"last_downloaded": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 || !createIfMissing {
			return nil
		}

		entry := model.LibraryEntry{
			UserID:         userID,
			GameID:         gameID,
			PurchasedAt:    now,
			DownloadCount:  1,
			LastDownloaded: &now,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error
	})
}
