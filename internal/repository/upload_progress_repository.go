package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"gamehub_backend/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	uploadProgressKeyPrefix = "upload_progress:"
	uploadProgressTTL       = 24 * time.Hour
)

// UploadProgressRepository 把上传单元快照同步到 Redis，便于多实例共享进度
type UploadProgressRepository struct {
	Redis *redis.Client
}

func NewUploadProgressRepository(rdb *redis.Client) *UploadProgressRepository {
	return &UploadProgressRepository{Redis: rdb}
}

func uploadProgressKey(userID uint) string {
	return fmt.Sprintf("%s%d", uploadProgressKeyPrefix, userID)
}

func (r *UploadProgressRepository) Save(ctx context.Context, userID uint, unit model.UploadUnit) error {
	val, err := json.Marshal(unit)
	if err != nil {
		return err
	}
	key := uploadProgressKey(userID)
	pipe := r.Redis.TxPipeline()
	pipe.HSet(ctx, key, unit.ID, val)
	pipe.Expire(ctx, key, uploadProgressTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *UploadProgressRepository) Delete(ctx context.Context, userID uint, unitID string) error {
	return r.Redis.HDel(ctx, uploadProgressKey(userID), unitID).Err()
}
