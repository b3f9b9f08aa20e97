package repository

import (
	"context"
	"errors"
	"fmt"
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/util"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GameRepository struct {
	DB *gorm.DB
	// 0 表示不限制单次查询的数组包含谓词数量
	ArrayContainsLimit int
}

func NewGameRepository(db *gorm.DB) *GameRepository {
	return &GameRepository{DB: db}
}

func (r *GameRepository) Capabilities() StoreCapabilities {
	return StoreCapabilities{ArrayContainsLimit: r.ArrayContainsLimit}
}

// Query 执行目录查询。未知字段直接报错，不拼接到 SQL 中。
func (r *GameRepository) Query(ctx context.Context, q CatalogQuery) ([]model.Game, error) {
	db := r.DB.WithContext(ctx).Model(&model.Game{})

	for _, p := range q.Predicates {
		col, ok := gameColumns[p.Field]
		if !ok {
			return nil, fmt.Errorf("unsupported predicate field %q", p.Field)
		}
		switch p.Op {
		case OpEq:
			db = db.Where(col+" = ?", p.Value)
		case OpArrayContains:
			db = db.Where(datatypes.JSONArrayQuery(col).Contains(p.Value))
		default:
			return nil, fmt.Errorf("unsupported predicate op %q", p.Op)
		}
	}

	col, ok := gameColumns[q.Order.Field]
	if !ok {
		return nil, fmt.Errorf("unsupported order field %q", q.Order.Field)
	}
	dir, cmp := "ASC", ">"
	if q.Order.Desc {
		dir, cmp = "DESC", "<"
	}

	if q.After != nil {
		db = db.Where(
			fmt.Sprintf("((%s %s ?) OR (%s = ? AND id %s ?))", col, cmp, col, cmp),
			q.After.Value, q.After.Value, q.After.ID,
		)
	}

	db = db.Order(col + " " + dir).Order("id " + dir)
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var games []model.Game
	if err := db.Find(&games).Error; err != nil {
		return nil, err
	}
	return games, nil
}

func (r *GameRepository) FindByID(id string) (*model.Game, error) {
	var game model.Game
	err := r.DB.Preload("Builds", func(db *gorm.DB) *gorm.DB {
		return db.Order("uploaded_at DESC")
	}).Where("id = ?", id).First(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (r *GameRepository) FindByDeveloper(developerID uint) ([]model.Game, error) {
	var games []model.Game
	err := r.DB.Where("developer_id = ?", developerID).
		Order("created_at DESC").
		Find(&games).Error
	return games, err
}

func (r *GameRepository) FindByIDs(ids []string) ([]model.Game, error) {
	var games []model.Game
	if len(ids) == 0 {
		return games, nil
	}
	err := r.DB.Where("id IN ?", ids).Find(&games).Error
	return games, err
}

func (r *GameRepository) Create(game *model.Game) error {
	return r.DB.Omit("Builds").Create(game).Error
}

// 开发者可编辑的列；下载数、评分、状态由各自的流程单独更新
var editableGameColumns = []string{
	"title", "short_description", "full_description", "genre", "platforms", "tags",
	"cover_image_url", "screenshots", "price", "is_free", "visibility", "updated_at",
}

// Update 只写回可编辑列，不覆盖并发写入的 download_count / rating / status
func (r *GameRepository) Update(game *model.Game) error {
	return r.DB.Model(game).Select(editableGameColumns).Updates(game).Error
}

func (r *GameRepository) UpdateStatus(id string, status model.GameStatus) error {
	return r.DB.Model(&model.Game{}).Where("id = ?", id).Update("status", status).Error
}

func (r *GameRepository) IncrementDownload(id string) error {
	return r.DB.Model(&model.Game{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + ?", 1)).
		Error
}

// Delete 删除游戏及其构建记录、库条目，返回被删除构建的存储文件 ID 以便清理对象存储
func (r *GameRepository) Delete(id string) ([]string, error) {
	var fileIDs []string
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var game model.Game
		if err := tx.Where("id = ?", id).First(&game).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrGameNotFound
			}
			return err
		}

		if err := tx.Model(&model.GameBuild{}).Where("game_id = ?", id).
			Pluck("storage_file_id", &fileIDs).Error; err != nil {
			return err
		}

		if err := tx.Unscoped().Where("game_id = ?", id).Delete(&model.GameBuild{}).Error; err != nil {
			return err
		}
		if err := tx.Where("game_id = ?", id).Delete(&model.LibraryEntry{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&game).Error
	})
	if err != nil {
		return nil, err
	}
	return fileIDs, nil
}

// AttachBuilds 在一个事务中写入构建记录并刷新游戏的 updated_at
func (r *GameRepository) AttachBuilds(ctx context.Context, gameID string, builds []model.GameBuild) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Game{}).Where("id = ?", gameID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return util.ErrGameNotFound
		}

		if len(builds) > 0 {
			for i := range builds {
				builds[i].GameID = gameID
			}
			if err := tx.Create(&builds).Error; err != nil {
				return err
			}
		}

		return tx.Model(&model.Game{}).Where("id = ?", gameID).
			UpdateColumn("updated_at", time.Now()).Error
	})
}
