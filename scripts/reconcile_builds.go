// 清理孤立构建脚本
//
// 删除游戏时存储对象只做尽力删除，失败的对象和残留的构建记录由此脚本补偿清理。
//
// 用法: go run scripts/reconcile_builds.go [-dry-run] [-batch 200]

package main

import (
	"context"
	"flag"
	"gamehub_backend/internal/config"
	"gamehub_backend/internal/repository"
	"gamehub_backend/internal/service"
	"gamehub_backend/pkg/database"
	"gamehub_backend/pkg/logger"
	"log"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "只列出孤立构建，不删除")
	batch := flag.Int("batch", 200, "每批处理数量")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	builds := repository.NewGameBuildRepository(db)
	storage := service.NewStorageService(cfg)
	ctx := context.Background()

	total := 0
	for {
		orphans, err := builds.FindOrphans(*batch)
		if err != nil {
			log.Fatalf("查询孤立构建失败: %v", err)
		}
		if len(orphans) == 0 {
			break
		}

		ids := make([]string, 0, len(orphans))
		for _, b := range orphans {
			log.Printf("孤立构建 %s (game=%s, file=%s)", b.ID, b.GameID, b.StorageFileID)
			ids = append(ids, b.ID)
			if !*dryRun {
				storage.DeleteQuietly(ctx, b.StorageFileID)
			}
		}
		total += len(orphans)

		if *dryRun {
			break
		}
		if err := builds.DeleteByIDs(ids); err != nil {
			log.Fatalf("删除构建记录失败: %v", err)
		}
	}

	log.Printf("完成！共 %d 条孤立构建", total)
}
