package service

import (
	"context"
	"errors"
	"fmt"
	"gamehub_backend/internal/config"
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/util"
	"gamehub_backend/pkg/logger"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const signedURLExpiry = 15 * time.Minute

// storage.type 的取值
const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

var ErrInvalidFileID = errors.New("invalid file id")

// FileLocation 本地存储返回 Path，远端存储返回带签名的 URL
type FileLocation struct {
	Path string
	URL  string
}

// StorageProvider 定义通用存储接口，Upload 返回不透明的文件 ID
type StorageProvider interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, fileID string) error
	Locate(ctx context.Context, fileID string) (*FileLocation, error)
	Type() string
}

// LocalStorageProvider 本地存储实现
type LocalStorageProvider struct {
	Config *config.StorageConfig
}

func (p *LocalStorageProvider) path(fileID string) (string, error) {
	clean := filepath.Clean("/" + fileID)
	if clean == "/" {
		return "", ErrInvalidFileID
	}
	return filepath.Join(p.Config.LocalPath, clean), nil
}

func (p *LocalStorageProvider) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	dst, err := p.path(objectName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return objectName, nil
}

func (p *LocalStorageProvider) Delete(ctx context.Context, fileID string) error {
	dst, err := p.path(fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (p *LocalStorageProvider) Locate(ctx context.Context, fileID string) (*FileLocation, error) {
	dst, err := p.path(fileID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dst); err != nil {
		return nil, err
	}
	return &FileLocation{Path: dst}, nil
}

func (p *LocalStorageProvider) Type() string { return StorageLocal }

// MinioStorageProvider MinIO存储实现
type MinioStorageProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Config: cfg, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return objectName, nil
}

func (p *MinioStorageProvider) Delete(ctx context.Context, fileID string) error {
	return p.Client.RemoveObject(ctx, p.Config.MinioBucket, fileID, minio.RemoveObjectOptions{})
}

func (p *MinioStorageProvider) Locate(ctx context.Context, fileID string) (*FileLocation, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(fileID)))
	u, err := p.Client.PresignedGetObject(ctx, p.Config.MinioBucket, fileID, signedURLExpiry, params)
	if err != nil {
		return nil, err
	}
	return &FileLocation{URL: u.String()}, nil
}

func (p *MinioStorageProvider) Type() string { return StorageMinio }

// OSSStorageProvider 阿里云OSS存储实现
type OSSStorageProvider struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Config: cfg, Client: client}, nil
}

func (p *OSSStorageProvider) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return "", err
	}

	err = bucket.PutObject(objectName, reader,
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentLength(size),
	)
	if err != nil {
		return "", err
	}
	return objectName, nil
}

func (p *OSSStorageProvider) Delete(ctx context.Context, fileID string) error {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return err
	}
	return bucket.DeleteObject(fileID, oss.WithContext(ctx))
}

func (p *OSSStorageProvider) Locate(ctx context.Context, fileID string) (*FileLocation, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return nil, err
	}
	signed, err := bucket.SignURL(fileID, oss.HTTPGet, int64(signedURLExpiry.Seconds()))
	if err != nil {
		return nil, err
	}
	return &FileLocation{URL: signed}, nil
}

func (p *OSSStorageProvider) Type() string { return StorageOSS }

// StorageService 存储服务
type StorageService struct {
	Provider      StorageProvider
	PublicHost    string
	DownloadRoute string
}

func NewStorageService(cfg *config.Config) *StorageService {
	var provider StorageProvider
	switch cfg.Storage.Type {
	case StorageMinio:
		p, err := NewMinioStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Error("MinIO provider init failed, falling back to local storage", zap.Error(err))
		} else {
			provider = p
		}
	case StorageOSS:
		p, err := NewOSSStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Error("OSS provider init failed, falling back to local storage", zap.Error(err))
		} else {
			provider = p
		}
	}

	if provider == nil {
		provider = &LocalStorageProvider{Config: &cfg.Storage}
	}

	return NewStorageServiceWithProvider(provider, cfg.Storage)
}

func NewStorageServiceWithProvider(provider StorageProvider, cfg config.StorageConfig) *StorageService {
	return &StorageService{
		Provider:      provider,
		PublicHost:    cfg.PublicHost,
		DownloadRoute: strings.Trim(cfg.DownloadRoute, "/"),
	}
}

// BuildObjectName builds/<platform>/<uuid>-<filename>
func BuildObjectName(platform model.Platform, filename string) string {
	dir := strings.ToLower(strings.ReplaceAll(string(platform), " ", "-"))
	return fmt.Sprintf("builds/%s/%s-%s", dir, uuid.NewString(), util.SanitizeFilename(filename))
}

func (s *StorageService) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	return s.Provider.Upload(ctx, objectName, reader, size, contentType)
}

func (s *StorageService) Delete(ctx context.Context, fileID string) error {
	return s.Provider.Delete(ctx, fileID)
}

func (s *StorageService) Locate(ctx context.Context, fileID string) (*FileLocation, error) {
	return s.Provider.Locate(ctx, fileID)
}

// DownloadURL https://<host>/<route>?id=<fileId>
func (s *StorageService) DownloadURL(fileID string) string {
	return fmt.Sprintf("https://%s/%s?id=%s", s.PublicHost, s.DownloadRoute, url.QueryEscape(fileID))
}

// DeleteQuietly 尽力删除，失败只记录日志，留给离线清理
func (s *StorageService) DeleteQuietly(ctx context.Context, fileIDs ...string) {
	for _, id := range fileIDs {
		if id == "" {
			continue
		}
		if err := s.Provider.Delete(ctx, id); err != nil {
			logger.Log.Warn("Failed to delete stored object",
				zap.String("fileId", id),
				zap.String("provider", s.Provider.Type()),
				zap.Error(err),
			)
		}
	}
}
