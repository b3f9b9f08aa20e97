package database

import (
	"gamehub_backend/internal/model"
	"log"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrate 执行版本化迁移；空库直接按当前模型建表
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202609010001_create_catalog",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.User{}, &model.Game{}, &model.GameBuild{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("game_builds", "games", "users")
			},
		},
		{
			ID: "202609150001_create_library",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.LibraryEntry{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("library_entries")
			},
		},
		{
			ID: "202610010001_build_storage_file_id",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasColumn(&model.GameBuild{}, "storage_file_id") {
					return nil
				}
				return tx.Migrator().AddColumn(&model.GameBuild{}, "StorageFileID")
			},
		},
		{
			ID: "202610150001_build_storage_file_id_index",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasIndex(&model.GameBuild{}, "StorageFileID") {
					return nil
				}
				return tx.Migrator().CreateIndex(&model.GameBuild{}, "StorageFileID")
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropIndex(&model.GameBuild{}, "StorageFileID")
			},
		},
	})

	m.InitSchema(func(tx *gorm.DB) error {
		log.Println("clean database detected, running full schema initialization")
		return tx.AutoMigrate(
			&model.User{},
			&model.Game{},
			&model.GameBuild{},
			&model.LibraryEntry{},
		)
	})

	if err := m.Migrate(); err != nil {
		return err
	}
	log.Println("Database migration completed")
	return nil
}
