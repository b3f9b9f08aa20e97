package logger

import (
	"os"
	"path/filepath"
	"testing"

	"gamehub_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		mode, level string
		want        zapcore.Level
	}{
		{"debug", "error", zapcore.DebugLevel},
		{"release", "warn", zapcore.WarnLevel},
		{"release", "", zapcore.InfoLevel},
		{"release", "loud", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		cfg := &config.Config{Server: config.ServerConfig{Mode: tc.mode}, Log: config.LogConfig{Level: tc.level}}
		assert.Equal(t, tc.want, parseLevel(cfg), "%s/%s", tc.mode, tc.level)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "release"},
		Log:    config.LogConfig{Level: "warn", File: filepath.Join(t.TempDir(), "app.log"), MaxSizeMB: 1},
	}
	l := New(cfg)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.ErrorLevel))
	l.Warn("written to file")

	info, err := os.Stat(cfg.Log.File)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
