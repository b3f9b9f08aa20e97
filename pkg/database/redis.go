package database

import (
	"context"
	"fmt"
	"gamehub_backend/internal/config"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisDialTimeout = 3 * time.Second

// InitRedis Redis 仅用于下载去重与上传进度镜像，连接失败时由调用方决定是否继续
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 5,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	log.Printf("Redis connection established (%s, db %d)", addr, cfg.DB)
	return rdb, nil
}
