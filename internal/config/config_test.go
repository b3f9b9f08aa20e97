package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644))
	return dir
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	storage := filepath.Join(t.TempDir(), "objects")
	dir := writeConfig(t, `
server:
  mode: debug
database:
  host: 127.0.0.1
jwt:
  secret: short
storage:
  type: local
  local_path: `+storage+`
`)
	t.Setenv("DATABASE_HOST", "db.internal")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 72*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, 12, cfg.Catalog.DefaultPageSize)
	assert.Equal(t, 100, cfg.Catalog.MaxPageSize)
	assert.EqualValues(t, 500<<20, cfg.Upload.MaxFileSize())
	assert.Contains(t, cfg.Upload.AllowedExtensions, ".apk")
	assert.Equal(t, "api/files", cfg.Storage.DownloadRoute)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 50, cfg.Redis.PoolSize)
	assert.Equal(t, 100, cfg.Database.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime())
	assert.Equal(t, "utf8mb4", cfg.Database.Charset)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "logs/app.log", cfg.Log.File)
	assert.InDelta(t, 1.0, cfg.Tracing.SampleRatio, 1e-9)
	assert.DirExists(t, storage)
}

func TestLoadConfigRejectsWeakReleaseSecret(t *testing.T) {
	dir := writeConfig(t, `
server:
  mode: release
jwt:
  secret: too-short
storage:
  type: minio
`)
	_, err := LoadConfig(dir)
	assert.ErrorContains(t, err, "JWT secret is too short")
}

func TestValidateCatalogAndUploadLimits(t *testing.T) {
	cfg := Config{
		Catalog: CatalogConfig{DefaultPageSize: 12, MaxPageSize: 100},
		Upload:  UploadConfig{MaxFileSizeMB: 500},
	}
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.Catalog.MaxPageSize = 5
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Upload.MaxFileSizeMB = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Tracing.SampleRatio = 1.5
	assert.ErrorContains(t, bad.Validate(), "sample_ratio")
}
