package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metabridge/internal/vfs"
)

func TestConfigDir(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "")
		dir := ConfigDir()
		assert.NotEmpty(t, dir)
		assert.True(t, strings.HasSuffix(dir, ".metabridge"), "should end with .metabridge")
	})

	t.Run("override with METABRIDGE_CONFIG_DIR", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "/tmp/test-metabridge-config")
		assert.Equal(t, "/tmp/test-metabridge-config", ConfigDir())
		assert.Equal(t, "/tmp/test-metabridge-config/settings.yaml", SettingsPath())
		assert.Equal(t, "/tmp/test-metabridge-config/meta.db", DefaultStorePath())
	})
}

func TestEmbeddedDefaults(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())

	s, err := Load()
	require.NoError(t, err)
	assert.True(t, s.FileNameRequired)
	assert.Equal(t, 4, s.Workers)
	assert.Equal(t, "off", s.LogLevel)
	assert.Equal(t, DefaultStorePath(), s.StorePath)
	assert.Equal(t, []string{"*.exe", "*.dll"}, s.ImagePatterns)

	params := s.VolumeParams()
	assert.Equal(t, time.Second, params.FileInfoTimeout)
	assert.IsType(t, &vfs.PatternOracle{}, s.Oracle())
}

func TestInitConfigDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	t.Setenv(EnvConfigDir, dir)

	created, err := InitConfigDir()
	require.NoError(t, err)
	assert.True(t, created)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	created, err = InitConfigDir()
	require.NoError(t, err)
	assert.False(t, created, "existing settings are kept")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())

	s := &Settings{VolumePrefix: `\srv\share`, Workers: 8, LogLevel: "debug", FileInfoTimeoutMs: 250}
	require.NoError(t, Save(s))

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, `\srv\share`, got.VolumePrefix)
	assert.Equal(t, 8, got.Workers)
	assert.Equal(t, "debug", got.LogLevel)
	assert.Equal(t, 250*time.Millisecond, got.VolumeParams().FileInfoTimeout)
	assert.Equal(t, vfs.AllowAll{}, got.Oracle())
}

func TestParseValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"defaults", "{}", ""},
		{"uppercase level", "log_level: DEBUG", ""},
		{"none level", "log_level: none", ""},
		{"bad level", "log_level: loud", "LogLevel"},
		{"too many workers", "workers: 1000", "Workers"},
		{"negative timeout", "file_info_timeout_ms: -1", "FileInfoTimeoutMs"},
		{"empty pattern", "mapped_patterns: ['']", "MappedPatterns"},
		{"not yaml", "workers: [", "failed to parse"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := Parse([]byte(tt.yaml))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, s)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyLogLevel(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "off", "OFF"} {
		assert.NoError(t, ApplyLogLevel(level), level)
	}
	assert.Error(t, ApplyLogLevel("chatty"))
}
