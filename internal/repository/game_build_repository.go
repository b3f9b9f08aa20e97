package repository

import (
	"errors"
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/util"

	"gorm.io/gorm"
)

type GameBuildRepository struct {
	DB *gorm.DB
}

func NewGameBuildRepository(db *gorm.DB) *GameBuildRepository {
	return &GameBuildRepository{DB: db}
}

// FindByGameID 构建列表总是按 game_id 现查，不依赖游戏记录上的冗余字段
func (r *GameBuildRepository) FindByGameID(gameID string) ([]model.GameBuild, error) {
	var builds []model.GameBuild
	err := r.DB.Where("game_id = ?", gameID).
		Order("uploaded_at DESC").
		Find(&builds).Error
	return builds, err
}

func (r *GameBuildRepository) FindByID(gameID, buildID string) (*model.GameBuild, error) {
	var build model.GameBuild
	err := r.DB.Where("id = ? AND game_id = ?", buildID, gameID).First(&build).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrBuildNotFound
	}
	if err != nil {
		return nil, err
	}
	return &build, nil
}

// FindByStorageFileID 按存储文件 ID 反查构建，用于文件下载鉴权
func (r *GameBuildRepository) FindByStorageFileID(fileID string) (*model.GameBuild, error) {
	var build model.GameBuild
	err := r.DB.Where("storage_file_id = ?", fileID).First(&build).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrBuildNotFound
	}
	if err != nil {
		return nil, err
	}
	return &build, nil
}

// FindOrphans 查找所属游戏已不存在的构建记录
func (r *GameBuildRepository) FindOrphans(limit int) ([]model.GameBuild, error) {
	var builds []model.GameBuild
	err := r.DB.Where("game_id NOT IN (?)", r.DB.Model(&model.Game{}).Select("id")).
		Limit(limit).
		Find(&builds).Error
	return builds, err
}

func (r *GameBuildRepository) DeleteByIDs(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.Unscoped().Where("id IN ?", ids).Delete(&model.GameBuild{}).Error
}
